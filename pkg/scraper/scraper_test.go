package scraper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"igcrawler/pkg/database"
	apierrors "igcrawler/pkg/errors"
	"igcrawler/pkg/logger"
	"igcrawler/pkg/models"
	"igcrawler/pkg/ratelimit"
)

func int64Ptr(v int64) *int64 { return &v }

// fakeClient scripts per-handle API behavior.
type fakeClient struct {
	profiles   map[string]*models.Profile
	posts      map[string][]models.MediaItem
	highlights map[string][]models.MediaItem
	errs       map[string]error

	highlightsErrs map[string]error
	postsErrs      map[string]error

	calls []string
}

func (f *fakeClient) ResolveUserID(ctx context.Context, handle string) (string, error) {
	f.calls = append(f.calls, "resolve:"+handle)
	if err, ok := f.errs[handle]; ok {
		return "", err
	}
	return "uid-" + handle, nil
}

func (f *fakeClient) FetchProfile(ctx context.Context, userID, handle string) (*models.Profile, error) {
	f.calls = append(f.calls, "profile:"+handle)
	p, ok := f.profiles[handle]
	if !ok {
		return nil, apierrors.New(apierrors.ErrorTypeNotFound, "user not found", 404)
	}
	return p, nil
}

func (f *fakeClient) FetchHighlights(ctx context.Context, userID, handle string) ([]models.MediaItem, error) {
	f.calls = append(f.calls, "highlights:"+handle)
	if err, ok := f.highlightsErrs[handle]; ok {
		return nil, err
	}
	return f.highlights[handle], nil
}

func (f *fakeClient) FetchPosts(ctx context.Context, userID, handle string) ([]models.MediaItem, error) {
	f.calls = append(f.calls, "posts:"+handle)
	if err, ok := f.postsErrs[handle]; ok {
		return nil, err
	}
	return f.posts[handle], nil
}

func completeProfile(handle string) *models.Profile {
	return &models.Profile{
		Handle:         handle,
		FollowerCount:  int64Ptr(100),
		FollowingCount: int64Ptr(50),
		MediaCount:     int64Ptr(3),
	}
}

func postItem(handle, url string) models.MediaItem {
	return models.MediaItem{
		OwnerHandle: handle,
		URL:         url,
		Kind:        models.MediaKindPost,
		SubKind:     models.PostSubKindPhoto,
	}
}

func highlightItem(handle, url string) models.MediaItem {
	return models.MediaItem{OwnerHandle: handle, URL: url, Kind: models.MediaKindHighlight}
}

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.OpenStore(context.Background(), filepath.Join(t.TempDir(), "crawl_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func fastPolicy() *ratelimit.Policy {
	return ratelimit.NewPolicy(time.Millisecond, 0, 0, time.Millisecond, logger.NopLogger{})
}

func newCrawler(client APIClient, store Datastore, force bool) *Crawler {
	return New(client, store, fastPolicy(), force, 3, logger.NopLogger{})
}

func TestCrawlProfilePersistsEverything(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	client := &fakeClient{
		profiles: map[string]*models.Profile{"alpha": completeProfile("alpha")},
		posts: map[string][]models.MediaItem{
			"alpha": {postItem("alpha", "https://cdn/p1.jpg"), postItem("alpha", "https://cdn/p2.jpg")},
		},
		highlights: map[string][]models.MediaItem{
			"alpha": {highlightItem("alpha", "https://cdn/h1.jpg")},
		},
	}

	result := newCrawler(client, store, false).CrawlProfile(ctx, "alpha")
	if result.Status != StatusCrawled {
		t.Fatalf("status = %s, err = %v", result.Status, result.Err)
	}
	if result.PostsSaved != 2 || result.HighlightsSaved != 1 {
		t.Errorf("saved posts=%d highlights=%d", result.PostsSaved, result.HighlightsSaved)
	}

	complete, err := store.IsComplete(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if !complete {
		t.Error("crawled profile should be complete")
	}

	media, err := store.MediaFor(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(media) != 3 {
		t.Errorf("expected 3 media rows, got %d", len(media))
	}
}

func TestCrawlProfileSkipsComplete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.UpsertProfile(ctx, completeProfile("alpha")); err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{}
	result := newCrawler(client, store, false).CrawlProfile(ctx, "alpha")
	if result.Status != StatusSkipped {
		t.Fatalf("status = %s", result.Status)
	}
	if len(client.calls) != 0 {
		t.Errorf("skip must not touch the network, calls = %v", client.calls)
	}
}

func TestCrawlProfileForceRescrapesComplete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.UpsertProfile(ctx, completeProfile("alpha")); err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{
		profiles: map[string]*models.Profile{"alpha": completeProfile("alpha")},
	}
	result := newCrawler(client, store, true).CrawlProfile(ctx, "alpha")
	if result.Status != StatusCrawled {
		t.Fatalf("status = %s, err = %v", result.Status, result.Err)
	}
}

func TestCrawlProfileNotFoundMarksInactive(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	client := &fakeClient{
		errs: map[string]error{
			"ghost": apierrors.New(apierrors.ErrorTypeNotFound, "user not found", 404),
		},
	}

	result := newCrawler(client, store, false).CrawlProfile(ctx, "ghost")
	if result.Status != StatusFailed {
		t.Fatalf("status = %s", result.Status)
	}
	if result.FailureKind != apierrors.ErrorTypeNotFound {
		t.Errorf("failure kind = %s", result.FailureKind)
	}

	p, err := store.GetProfile(ctx, "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || !p.Inactive {
		t.Error("failed handle should be marked inactive")
	}

	media, err := store.MediaFor(ctx, "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if len(media) != 0 {
		t.Errorf("no media should be persisted for a failed crawl, got %d", len(media))
	}
}

func TestCrawlPendingAbortsAfterConsecutiveAuthFailures(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if _, err := store.Seed(ctx, []string{"u1", "u2", "u3", "u4"}); err != nil {
		t.Fatal(err)
	}

	authErr := apierrors.New(apierrors.ErrorTypeAuth, "session expired", 401)
	client := &fakeClient{
		errs: map[string]error{"u1": authErr, "u2": authErr, "u3": authErr, "u4": authErr},
	}

	var results []Result
	summary, err := newCrawler(client, store, false).CrawlPending(ctx, 0, func(r Result) {
		results = append(results, r)
	})
	if err != ErrAuthAborted {
		t.Fatalf("expected ErrAuthAborted, got %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected abort after 3 failures, got %d results", len(results))
	}
	if summary.Failed != 3 {
		t.Errorf("summary.Failed = %d", summary.Failed)
	}
}

func TestCrawlPendingAuthCounterResets(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if _, err := store.Seed(ctx, []string{"u1", "u2", "u3", "u4", "u5"}); err != nil {
		t.Fatal(err)
	}

	authErr := apierrors.New(apierrors.ErrorTypeAuth, "session expired", 401)
	client := &fakeClient{
		profiles: map[string]*models.Profile{
			"u1": completeProfile("u1"), "u2": completeProfile("u2"),
			"u3": completeProfile("u3"), "u4": completeProfile("u4"),
			"u5": completeProfile("u5"),
		},
		errs: map[string]error{"u2": authErr, "u4": authErr},
	}

	summary, err := newCrawler(client, store, false).CrawlPending(ctx, 0, nil)
	if err != nil {
		t.Fatalf("interleaved auth failures must not abort: %v", err)
	}
	if summary.Crawled != 3 || summary.Failed != 2 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestCrawlPendingStopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Seed(context.Background(), []string{"u1", "u2", "u3"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeClient{
		profiles: map[string]*models.Profile{
			"u1": completeProfile("u1"), "u2": completeProfile("u2"), "u3": completeProfile("u3"),
		},
	}

	var count int
	summary, err := newCrawler(client, store, false).CrawlPending(ctx, 0, func(Result) {
		count++
		if count == 1 {
			cancel()
		}
	})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary.Crawled != 1 {
		t.Errorf("expected 1 crawled before cancel, got %d", summary.Crawled)
	}
	if count != 1 {
		t.Errorf("expected no further handles after cancel, got %d", count)
	}
}

func TestCrawlPendingHonorsLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if _, err := store.Seed(ctx, []string{"u1", "u2", "u3"}); err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{
		profiles: map[string]*models.Profile{
			"u1": completeProfile("u1"), "u2": completeProfile("u2"), "u3": completeProfile("u3"),
		},
	}

	summary, err := newCrawler(client, store, false).CrawlPending(ctx, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Crawled != 2 {
		t.Errorf("expected 2 crawled with limit, got %d", summary.Crawled)
	}
}

// Full pass over a fresh store: one live handle, one missing. The second
// run must only see the failed handle as pending.
func TestCrawlPendingSeededRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if _, err := store.Seed(ctx, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{
		profiles: map[string]*models.Profile{"a": completeProfile("a")},
		posts: map[string][]models.MediaItem{
			"a": {postItem("a", "https://cdn/a-p1.jpg"), postItem("a", "https://cdn/a-p2.jpg")},
		},
		highlights: map[string][]models.MediaItem{
			"a": {highlightItem("a", "https://cdn/a-h1.jpg")},
		},
		errs: map[string]error{
			"b": apierrors.New(apierrors.ErrorTypeNotFound, "user not found", 404),
		},
	}

	summary, err := newCrawler(client, store, false).CrawlPending(ctx, 0, nil)
	if err != nil {
		t.Fatalf("CrawlPending failed: %v", err)
	}
	if summary.Crawled != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	completeA, err := store.IsComplete(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if !completeA {
		t.Error("a should be complete")
	}

	mediaA, err := store.MediaFor(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(mediaA) != 3 {
		t.Errorf("a should have 3 media rows, got %d", len(mediaA))
	}

	b, err := store.GetProfile(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if b == nil || !b.Inactive {
		t.Error("b should be marked inactive")
	}
	mediaB, err := store.MediaFor(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if len(mediaB) != 0 {
		t.Errorf("b should have no media, got %d", len(mediaB))
	}

	pending, err := store.SelectPending(ctx, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0] != "b" {
		t.Errorf("pending after run = %v, want [b]", pending)
	}
}

func TestCrawlProfileHighlightsFailureKeepsPosts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	client := &fakeClient{
		profiles: map[string]*models.Profile{"alpha": completeProfile("alpha")},
		posts: map[string][]models.MediaItem{
			"alpha": {postItem("alpha", "https://cdn/p1.jpg")},
		},
		highlightsErrs: map[string]error{
			"alpha": apierrors.New(apierrors.ErrorTypeServerError, "server error", 500),
		},
	}

	result := newCrawler(client, store, false).CrawlProfile(ctx, "alpha")
	if result.Status != StatusCrawled {
		t.Fatalf("status = %s, err = %v", result.Status, result.Err)
	}
	if result.PostsSaved != 1 || result.HighlightsSaved != 0 {
		t.Errorf("saved posts=%d highlights=%d", result.PostsSaved, result.HighlightsSaved)
	}
	if result.FailureKind != apierrors.ErrorTypeServerError {
		t.Errorf("failure kind = %s", result.FailureKind)
	}

	complete, err := store.IsComplete(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if !complete {
		t.Error("a highlights give-up must not fail the whole entity")
	}
	media, err := store.MediaFor(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(media) != 1 || media[0].Kind != models.MediaKindPost {
		t.Errorf("expected the post to survive, got %v", media)
	}
}

func TestCrawlProfilePostsRateLimitGiveUpStillPersists(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	client := &fakeClient{
		profiles: map[string]*models.Profile{"alpha": completeProfile("alpha")},
		highlights: map[string][]models.MediaItem{
			"alpha": {highlightItem("alpha", "https://cdn/h1.jpg")},
		},
		postsErrs: map[string]error{
			"alpha": apierrors.New(apierrors.ErrorTypeRateLimit, "rate limit exceeded", 429),
		},
	}

	result := newCrawler(client, store, false).CrawlProfile(ctx, "alpha")
	if result.Status != StatusCrawled {
		t.Fatalf("status = %s, err = %v", result.Status, result.Err)
	}
	if result.FailureKind != apierrors.ErrorTypeRateLimit {
		t.Errorf("failure kind = %s", result.FailureKind)
	}
	if result.HighlightsSaved != 1 || result.PostsSaved != 0 {
		t.Errorf("saved posts=%d highlights=%d", result.PostsSaved, result.HighlightsSaved)
	}

	complete, err := store.IsComplete(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if !complete {
		t.Error("profile with counters should be complete despite the posts give-up")
	}
}

func TestCrawlProfileRetriesOnceOnRateLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	attempts := 0
	client := &rateLimitOnceClient{inner: &fakeClient{
		profiles: map[string]*models.Profile{"alpha": completeProfile("alpha")},
	}, attempts: &attempts}

	result := newCrawler(client, store, false).CrawlProfile(ctx, "alpha")
	if result.Status != StatusCrawled {
		t.Fatalf("status = %s, err = %v", result.Status, result.Err)
	}
	if attempts != 2 {
		t.Errorf("expected resolve to be attempted twice, got %d", attempts)
	}
}

// rateLimitOnceClient rate-limits the first ResolveUserID call only.
type rateLimitOnceClient struct {
	inner    *fakeClient
	attempts *int
}

func (r *rateLimitOnceClient) ResolveUserID(ctx context.Context, handle string) (string, error) {
	*r.attempts++
	if *r.attempts == 1 {
		return "", apierrors.New(apierrors.ErrorTypeRateLimit, "rate limit exceeded", 429)
	}
	return r.inner.ResolveUserID(ctx, handle)
}

func (r *rateLimitOnceClient) FetchProfile(ctx context.Context, userID, handle string) (*models.Profile, error) {
	return r.inner.FetchProfile(ctx, userID, handle)
}

func (r *rateLimitOnceClient) FetchHighlights(ctx context.Context, userID, handle string) ([]models.MediaItem, error) {
	return r.inner.FetchHighlights(ctx, userID, handle)
}

func (r *rateLimitOnceClient) FetchPosts(ctx context.Context, userID, handle string) ([]models.MediaItem, error) {
	return r.inner.FetchPosts(ctx, userID, handle)
}
