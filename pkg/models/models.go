package models

import "time"

// MediaKind distinguishes the two kinds of media rows persisted for a profile.
type MediaKind string

const (
	MediaKindPost      MediaKind = "post"
	MediaKindHighlight MediaKind = "highlight"
)

// PostSubKind is only set for posts; highlights carry no sub-kind.
type PostSubKind string

const (
	PostSubKindPhoto PostSubKind = "photo"
	PostSubKindVideo PostSubKind = "video"
)

// Profile is the primary crawled record, keyed by its public handle.
// Count fields are pointers because "never fetched" and "zero" are
// different states: completeness depends on presence, not value.
type Profile struct {
	Handle         string    `json:"handle"`
	FullName       string    `json:"full_name"`
	Biography      string    `json:"biography"`
	Category       string    `json:"category,omitempty"`
	ExternalURL    string    `json:"external_url,omitempty"`
	IsPrivate      bool      `json:"is_private"`
	IsBusiness     bool      `json:"is_business"`
	FollowerCount  *int64    `json:"follower_count"`
	FollowingCount *int64    `json:"following_count"`
	MediaCount     *int64    `json:"media_count"`
	Inactive       bool      `json:"inactive"`
	FirstSeenAt    time.Time `json:"first_seen_at"`
	LastUpdatedAt  time.Time `json:"last_updated_at"`
}

// IsComplete reports whether the profile needs no further fetching: all
// three counters are present and the last fetch attempt did not error.
func (p *Profile) IsComplete() bool {
	return p.FollowerCount != nil &&
		p.FollowingCount != nil &&
		p.MediaCount != nil &&
		!p.Inactive
}

// MediaItem is a post or highlight thumbnail reference owned by a profile.
// (OwnerHandle, URL) is the logical identity; re-crawling an owner replaces
// its whole media set.
type MediaItem struct {
	OwnerHandle  string      `json:"owner_handle"`
	URL          string      `json:"url"`
	Kind         MediaKind   `json:"kind"`
	SubKind      PostSubKind `json:"sub_kind,omitempty"`
	LikeCount    int64       `json:"like_count"`
	CommentCount int64       `json:"comment_count"`
}

// ProbeResult is the raw outcome of probing a candidate query identifier
// against a known profile. The doc id validator inspects status and body
// to decide whether the identifier is live.
type ProbeResult struct {
	Status int
	Body   string
}

// Stats summarizes crawl progress across the whole datastore.
type Stats struct {
	TotalProfiles    int64 `json:"total_profiles"`
	CompleteProfiles int64 `json:"complete_profiles"`
	PendingProfiles  int64 `json:"pending_profiles"`
	InactiveProfiles int64 `json:"inactive_profiles"`
	PrivateProfiles  int64 `json:"private_profiles"`
	BusinessProfiles int64 `json:"business_profiles"`
	TotalMedia       int64 `json:"total_media"`
	TotalPosts       int64 `json:"total_posts"`
	TotalHighlights  int64 `json:"total_highlights"`
}

// Progress returns the completion percentage, 0 when the store is empty.
func (s *Stats) Progress() float64 {
	if s.TotalProfiles == 0 {
		return 0
	}
	return float64(s.CompleteProfiles) / float64(s.TotalProfiles) * 100
}
