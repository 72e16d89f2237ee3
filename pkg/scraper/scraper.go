package scraper

import (
	"context"
	"errors"
	"fmt"

	apierrors "igcrawler/pkg/errors"
	"igcrawler/pkg/logger"
	"igcrawler/pkg/models"
	"igcrawler/pkg/ratelimit"
)

// ErrAuthAborted signals that a batch stopped after too many consecutive
// authentication failures. Continuing would burn the remaining handles
// against a dead session.
var ErrAuthAborted = errors.New("aborted after repeated authentication failures")

// Status classifies the outcome of one profile crawl.
type Status string

const (
	StatusCrawled Status = "crawled"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result describes the outcome of crawling one handle.
type Result struct {
	Handle          string
	Status          Status
	Profile         *models.Profile
	PostsSaved      int
	HighlightsSaved int
	FailureKind     apierrors.ErrorType
	Err             error
}

// Summary aggregates a batch run.
type Summary struct {
	Crawled int
	Skipped int
	Failed  int
}

// Crawler walks pending profiles one at a time: resolve the user id, fetch
// profile, highlights, and posts, then persist everything for that handle.
// Strictly serial; there is never more than one request in flight.
type Crawler struct {
	client APIClient
	store  Datastore
	policy *ratelimit.Policy

	forceRescrape   bool
	maxAuthFailures int
	logger          logger.Logger
}

// New creates a Crawler.
func New(client APIClient, store Datastore, policy *ratelimit.Policy, forceRescrape bool, maxAuthFailures int, log logger.Logger) *Crawler {
	if log == nil {
		log = logger.GetLogger()
	}
	if maxAuthFailures <= 0 {
		maxAuthFailures = 3
	}
	return &Crawler{
		client:          client,
		store:           store,
		policy:          policy,
		forceRescrape:   forceRescrape,
		maxAuthFailures: maxAuthFailures,
		logger:          log,
	}
}

// CrawlProfile crawls a single handle end to end. A handle that is already
// complete is skipped unless force rescraping is on. A terminal failure in
// the resolve or profile stages marks the handle inactive so a later run
// retries it. Highlights and posts are best-effort: a give-up there keeps
// an empty set for that kind and the entity still persists as crawled.
func (c *Crawler) CrawlProfile(ctx context.Context, handle string) Result {
	result := Result{Handle: handle}

	if !c.forceRescrape {
		complete, err := c.store.IsComplete(ctx, handle)
		if err != nil {
			result.Status = StatusFailed
			result.Err = fmt.Errorf("failed to check completeness: %w", err)
			return result
		}
		if complete {
			c.logger.DebugWithFields("skipping complete profile", map[string]interface{}{
				"username": handle,
			})
			result.Status = StatusSkipped
			return result
		}
	}

	c.logger.InfoWithFields("crawling profile", map[string]interface{}{
		"username": handle,
	})

	var userID string
	err := c.policy.Do(ctx, func() error {
		var opErr error
		userID, opErr = c.client.ResolveUserID(ctx, handle)
		return opErr
	})
	if err != nil {
		return c.failed(ctx, result, "resolve user id", err)
	}

	var profile *models.Profile
	err = c.policy.Do(ctx, func() error {
		var opErr error
		profile, opErr = c.client.FetchProfile(ctx, userID, handle)
		return opErr
	})
	if err != nil {
		return c.failed(ctx, result, "fetch profile", err)
	}

	var highlights []models.MediaItem
	err = c.policy.Do(ctx, func() error {
		var opErr error
		highlights, opErr = c.client.FetchHighlights(ctx, userID, handle)
		return opErr
	})
	if err != nil {
		if isCancellation(err) {
			result.Status = StatusFailed
			result.Err = fmt.Errorf("fetch highlights: %w", err)
			return result
		}
		highlights = nil
		result.FailureKind = apierrors.TypeOf(err)
		c.logger.WarnWithFields("highlights fetch failed, keeping empty set", map[string]interface{}{
			"username": handle,
			"kind":     string(result.FailureKind),
			"error":    err.Error(),
		})
	}

	var posts []models.MediaItem
	err = c.policy.Do(ctx, func() error {
		var opErr error
		posts, opErr = c.client.FetchPosts(ctx, userID, handle)
		return opErr
	})
	if err != nil {
		if isCancellation(err) {
			result.Status = StatusFailed
			result.Err = fmt.Errorf("fetch posts: %w", err)
			return result
		}
		posts = nil
		result.FailureKind = apierrors.TypeOf(err)
		c.logger.WarnWithFields("posts fetch failed, keeping empty set", map[string]interface{}{
			"username": handle,
			"kind":     string(result.FailureKind),
			"error":    err.Error(),
		})
	}

	if err := c.store.UpsertProfile(ctx, profile); err != nil {
		result.Status = StatusFailed
		result.Err = fmt.Errorf("failed to persist profile: %w", err)
		return result
	}
	media := make([]models.MediaItem, 0, len(posts)+len(highlights))
	media = append(media, posts...)
	media = append(media, highlights...)
	if err := c.store.ReplaceMedia(ctx, handle, media); err != nil {
		result.Status = StatusFailed
		result.Err = fmt.Errorf("failed to persist media: %w", err)
		return result
	}

	c.logger.InfoWithFields("profile crawled", map[string]interface{}{
		"username":   handle,
		"posts":      len(posts),
		"highlights": len(highlights),
	})

	result.Status = StatusCrawled
	result.Profile = profile
	result.PostsSaved = len(posts)
	result.HighlightsSaved = len(highlights)
	return result
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// failed records a terminal fetch failure. Cancellation passes through
// untouched; every API failure marks the handle inactive for a later retry.
func (c *Crawler) failed(ctx context.Context, result Result, stage string, err error) Result {
	result.Status = StatusFailed
	result.Err = fmt.Errorf("%s: %w", stage, err)

	if isCancellation(err) {
		return result
	}

	result.FailureKind = apierrors.TypeOf(err)
	c.logger.WarnWithFields("profile crawl failed", map[string]interface{}{
		"username": result.Handle,
		"stage":    stage,
		"kind":     string(result.FailureKind),
		"error":    err.Error(),
	})

	if markErr := c.store.MarkInactive(ctx, result.Handle); markErr != nil {
		c.logger.ErrorWithFields("failed to mark profile inactive", map[string]interface{}{
			"username": result.Handle,
			"error":    markErr.Error(),
		})
	}
	return result
}

// CrawlPending crawls every handle the datastore reports as pending. The
// loop checks for cancellation before each handle, waits a randomized
// delay between handles, applies the penalty delay after a rate-limit
// give-up, and aborts with ErrAuthAborted after maxAuthFailures
// consecutive authentication failures.
func (c *Crawler) CrawlPending(ctx context.Context, limit int, onResult func(Result)) (*Summary, error) {
	handles, err := c.store.SelectPending(ctx, c.forceRescrape, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending profiles: %w", err)
	}
	return c.CrawlHandles(ctx, handles, onResult)
}

// CrawlHandles crawls an explicit list of handles with the same pacing
// and abort rules as CrawlPending.
func (c *Crawler) CrawlHandles(ctx context.Context, handles []string, onResult func(Result)) (*Summary, error) {
	c.logger.InfoWithFields("starting crawl batch", map[string]interface{}{
		"pending": len(handles),
	})

	summary := &Summary{}
	authFailures := 0

	for i, handle := range handles {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result := c.CrawlProfile(ctx, handle)
		if onResult != nil {
			onResult(result)
		}

		switch result.Status {
		case StatusCrawled:
			summary.Crawled++
		case StatusSkipped:
			summary.Skipped++
		case StatusFailed:
			summary.Failed++
			if errors.Is(result.Err, context.Canceled) || errors.Is(result.Err, context.DeadlineExceeded) {
				return summary, result.Err
			}
		}

		if result.FailureKind == apierrors.ErrorTypeAuth {
			authFailures++
			if authFailures >= c.maxAuthFailures {
				c.logger.ErrorWithFields("aborting batch, session looks dead", map[string]interface{}{
					"consecutive_auth_failures": authFailures,
				})
				return summary, ErrAuthAborted
			}
		} else {
			authFailures = 0
		}

		if i == len(handles)-1 {
			break
		}
		if result.FailureKind == apierrors.ErrorTypeRateLimit {
			if err := c.policy.WaitPenalty(ctx); err != nil {
				return summary, err
			}
		}
		if result.Status != StatusSkipped {
			if err := c.policy.WaitBetweenEntities(ctx); err != nil {
				return summary, err
			}
		}
	}

	c.logger.InfoWithFields("crawl batch finished", map[string]interface{}{
		"crawled": summary.Crawled,
		"skipped": summary.Skipped,
		"failed":  summary.Failed,
	})
	return summary, nil
}
