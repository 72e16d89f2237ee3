package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	_ "modernc.org/sqlite"

	"igcrawler/pkg/models"
)

// incompletePredicate selects profiles that still need a crawl pass: any
// missing counter, or a row marked inactive after a failed attempt.
const incompletePredicate = "follower_count IS NULL OR following_count IS NULL OR media_count IS NULL OR inactive = 1"

// Store is the crawl datastore. All methods are safe for serial use; the
// crawler never touches it from more than one goroutine.
type Store struct {
	db *gorm.DB
}

// Open opens the SQLite database at path with foreign keys enabled.
func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path + "?_pragma=foreign_keys(1)",
	}, &gorm.Config{})
}

// New creates a Store over an opened database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// OpenStore opens the database, runs migrations, and returns a ready Store.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return New(db), nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertProfile writes a crawled profile. An existing row keeps its
// first_seen_at; everything else is replaced. Fresh data always clears the
// inactive flag, since a successful crawl proves the profile is reachable.
func (s *Store) UpsertProfile(ctx context.Context, p *models.Profile) error {
	now := time.Now().UTC()
	m := toProfileModel(p)
	m.Inactive = false
	m.LastUpdatedAt = now
	if m.FirstSeenAt.IsZero() {
		m.FirstSeenAt = now
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "handle"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"full_name", "biography", "category", "external_url",
			"is_private", "is_business",
			"follower_count", "following_count", "media_count",
			"inactive", "last_updated_at",
		}),
	}).Create(&m).Error
}

// GetProfile returns the profile for handle, or (nil, nil) when absent.
func (s *Store) GetProfile(ctx context.Context, handle string) (*models.Profile, error) {
	var m ProfileModel
	err := s.db.WithContext(ctx).First(&m, "handle = ?", handle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := toProfile(m)
	return &p, nil
}

// IsComplete reports whether handle needs no further crawling. An unknown
// handle is not complete.
func (s *Store) IsComplete(ctx context.Context, handle string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&ProfileModel{}).
		Where("handle = ?", handle).
		Where("NOT (" + incompletePredicate + ")").
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ReplaceMedia swaps the full media set of one owner inside a transaction.
// An empty items slice clears the owner's media; the old rows never
// coexist with the new ones.
func (s *Store) ReplaceMedia(ctx context.Context, ownerHandle string, items []models.MediaItem) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_handle = ?", ownerHandle).Delete(&MediaItemModel{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		rows := make([]MediaItemModel, 0, len(items))
		for _, item := range items {
			m := toMediaItemModel(item)
			m.OwnerHandle = ownerHandle
			rows = append(rows, m)
		}
		return tx.Create(&rows).Error
	})
}

// MediaFor returns the stored media set for one owner.
func (s *Store) MediaFor(ctx context.Context, ownerHandle string) ([]models.MediaItem, error) {
	var rows []MediaItemModel
	if err := s.db.WithContext(ctx).
		Where("owner_handle = ?", ownerHandle).
		Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]models.MediaItem, 0, len(rows))
	for _, m := range rows {
		items = append(items, toMediaItem(m))
	}
	return items, nil
}

// SelectPending returns the handles still needing a crawl, oldest update
// first so stalled rows get revisited before fresh ones. With force every
// known handle qualifies. A limit of zero means no limit.
func (s *Store) SelectPending(ctx context.Context, force bool, limit int) ([]string, error) {
	q := s.db.WithContext(ctx).Model(&ProfileModel{})
	if !force {
		q = q.Where(incompletePredicate)
	}
	q = q.Order("last_updated_at ASC, handle ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var handles []string
	if err := q.Pluck("handle", &handles).Error; err != nil {
		return nil, err
	}
	return handles, nil
}

// Seed inserts handles as pending rows. Handles already present are left
// untouched, crawled data is never overwritten by a seed.
func (s *Store) Seed(ctx context.Context, handles []string) (int, error) {
	if len(handles) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	rows := make([]ProfileModel, 0, len(handles))
	for _, h := range handles {
		rows = append(rows, ProfileModel{
			Handle:        h,
			FirstSeenAt:   now,
			LastUpdatedAt: now,
		})
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "handle"}},
		DoNothing: true,
	}).Create(&rows)
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// MarkInactive flags a handle after a terminal crawl failure so the next
// pending pass retries it. An unknown handle gets a placeholder row.
func (s *Store) MarkInactive(ctx context.Context, handle string) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&ProfileModel{}).
		Where("handle = ?", handle).
		Updates(map[string]interface{}{
			"inactive":        true,
			"last_updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&ProfileModel{
		Handle:        handle,
		Inactive:      true,
		FirstSeenAt:   now,
		LastUpdatedAt: now,
	}).Error
}

// Stats aggregates crawl progress counters.
func (s *Store) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{}
	db := s.db.WithContext(ctx)

	counts := []struct {
		dst   *int64
		model interface{}
		where string
	}{
		{&stats.TotalProfiles, &ProfileModel{}, ""},
		{&stats.PendingProfiles, &ProfileModel{}, incompletePredicate},
		{&stats.InactiveProfiles, &ProfileModel{}, "inactive = 1"},
		{&stats.PrivateProfiles, &ProfileModel{}, "is_private = 1"},
		{&stats.BusinessProfiles, &ProfileModel{}, "is_business = 1"},
		{&stats.TotalMedia, &MediaItemModel{}, ""},
		{&stats.TotalPosts, &MediaItemModel{}, "kind = 'post'"},
		{&stats.TotalHighlights, &MediaItemModel{}, "kind = 'highlight'"},
	}
	for _, c := range counts {
		q := db.Model(c.model)
		if c.where != "" {
			q = q.Where(c.where)
		}
		if err := q.Count(c.dst).Error; err != nil {
			return nil, err
		}
	}
	stats.CompleteProfiles = stats.TotalProfiles - stats.PendingProfiles
	return stats, nil
}

// AllProfiles returns every profile ordered by handle. Used by export.
func (s *Store) AllProfiles(ctx context.Context) ([]models.Profile, error) {
	var rows []ProfileModel
	if err := s.db.WithContext(ctx).Order("handle ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	profiles := make([]models.Profile, 0, len(rows))
	for _, m := range rows {
		profiles = append(profiles, toProfile(m))
	}
	return profiles, nil
}

// AllMedia returns every media item ordered by owner. Used by export.
func (s *Store) AllMedia(ctx context.Context) ([]models.MediaItem, error) {
	var rows []MediaItemModel
	if err := s.db.WithContext(ctx).Order("owner_handle ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]models.MediaItem, 0, len(rows))
	for _, m := range rows {
		items = append(items, toMediaItem(m))
	}
	return items, nil
}

// PurgeAll deletes every profile and media row. Irreversible.
func (s *Store) PurgeAll(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&MediaItemModel{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&ProfileModel{}).Error
	})
}
