package database

import (
	"time"

	"igcrawler/pkg/models"
)

type ProfileModel struct {
	Handle         string `gorm:"primaryKey"`
	FullName       string `gorm:"not null;default:''"`
	Biography      string `gorm:"not null;default:''"`
	Category       string `gorm:"not null;default:''"`
	ExternalURL    string `gorm:"not null;default:''"`
	IsPrivate      bool   `gorm:"not null;default:false"`
	IsBusiness     bool   `gorm:"not null;default:false"`
	FollowerCount  *int64
	FollowingCount *int64
	MediaCount     *int64
	Inactive       bool      `gorm:"not null;default:false"`
	FirstSeenAt    time.Time `gorm:"not null"`
	LastUpdatedAt  time.Time `gorm:"not null"`
}

func (ProfileModel) TableName() string { return "profiles" }

type MediaItemModel struct {
	ID           uint   `gorm:"primaryKey"`
	OwnerHandle  string `gorm:"not null;index:idx_media_owner_url,unique"`
	URL          string `gorm:"not null;index:idx_media_owner_url,unique"`
	Kind         string `gorm:"not null"`
	SubKind      string `gorm:"not null;default:''"`
	LikeCount    int64  `gorm:"not null;default:0"`
	CommentCount int64  `gorm:"not null;default:0"`
}

func (MediaItemModel) TableName() string { return "media_items" }

func toProfileModel(p *models.Profile) ProfileModel {
	return ProfileModel{
		Handle:         p.Handle,
		FullName:       p.FullName,
		Biography:      p.Biography,
		Category:       p.Category,
		ExternalURL:    p.ExternalURL,
		IsPrivate:      p.IsPrivate,
		IsBusiness:     p.IsBusiness,
		FollowerCount:  p.FollowerCount,
		FollowingCount: p.FollowingCount,
		MediaCount:     p.MediaCount,
		Inactive:       p.Inactive,
		FirstSeenAt:    p.FirstSeenAt,
		LastUpdatedAt:  p.LastUpdatedAt,
	}
}

func toProfile(m ProfileModel) models.Profile {
	return models.Profile{
		Handle:         m.Handle,
		FullName:       m.FullName,
		Biography:      m.Biography,
		Category:       m.Category,
		ExternalURL:    m.ExternalURL,
		IsPrivate:      m.IsPrivate,
		IsBusiness:     m.IsBusiness,
		FollowerCount:  m.FollowerCount,
		FollowingCount: m.FollowingCount,
		MediaCount:     m.MediaCount,
		Inactive:       m.Inactive,
		FirstSeenAt:    m.FirstSeenAt,
		LastUpdatedAt:  m.LastUpdatedAt,
	}
}

func toMediaItemModel(item models.MediaItem) MediaItemModel {
	return MediaItemModel{
		OwnerHandle:  item.OwnerHandle,
		URL:          item.URL,
		Kind:         string(item.Kind),
		SubKind:      string(item.SubKind),
		LikeCount:    item.LikeCount,
		CommentCount: item.CommentCount,
	}
}

func toMediaItem(m MediaItemModel) models.MediaItem {
	return models.MediaItem{
		OwnerHandle:  m.OwnerHandle,
		URL:          m.URL,
		Kind:         models.MediaKind(m.Kind),
		SubKind:      models.PostSubKind(m.SubKind),
		LikeCount:    m.LikeCount,
		CommentCount: m.CommentCount,
	}
}
