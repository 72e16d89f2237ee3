package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"igcrawler/pkg/models"
)

// Datastore is the read surface export needs.
type Datastore interface {
	AllProfiles(ctx context.Context) ([]models.Profile, error)
	AllMedia(ctx context.Context) ([]models.MediaItem, error)
}

// ProfilesCSV writes every profile as CSV. Null counters render as empty
// cells so a spreadsheet keeps "never fetched" distinct from zero.
func ProfilesCSV(ctx context.Context, store Datastore, w io.Writer) error {
	profiles, err := store.AllProfiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}

	cw := csv.NewWriter(w)
	header := []string{
		"handle", "full_name", "category", "external_url",
		"is_private", "is_business",
		"follower_count", "following_count", "media_count",
		"inactive", "first_seen_at", "last_updated_at",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, p := range profiles {
		record := []string{
			p.Handle, p.FullName, p.Category, p.ExternalURL,
			strconv.FormatBool(p.IsPrivate), strconv.FormatBool(p.IsBusiness),
			formatCount(p.FollowerCount), formatCount(p.FollowingCount), formatCount(p.MediaCount),
			strconv.FormatBool(p.Inactive),
			p.FirstSeenAt.UTC().Format(time.RFC3339),
			p.LastUpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// MediaCSV writes every media item as CSV.
func MediaCSV(ctx context.Context, store Datastore, w io.Writer) error {
	items, err := store.AllMedia(ctx)
	if err != nil {
		return fmt.Errorf("failed to load media: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"owner_handle", "url", "kind", "sub_kind", "like_count", "comment_count"}); err != nil {
		return err
	}
	for _, item := range items {
		record := []string{
			item.OwnerHandle, item.URL,
			string(item.Kind), string(item.SubKind),
			strconv.FormatInt(item.LikeCount, 10),
			strconv.FormatInt(item.CommentCount, 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// dump is the JSON export envelope.
type dump struct {
	ExportedAt time.Time          `json:"exported_at"`
	Profiles   []models.Profile   `json:"profiles"`
	Media      []models.MediaItem `json:"media"`
}

// JSON writes the whole datastore as one JSON document.
func JSON(ctx context.Context, store Datastore, w io.Writer) error {
	profiles, err := store.AllProfiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	media, err := store.AllMedia(ctx)
	if err != nil {
		return fmt.Errorf("failed to load media: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(dump{
		ExportedAt: time.Now().UTC(),
		Profiles:   profiles,
		Media:      media,
	})
}

func formatCount(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
