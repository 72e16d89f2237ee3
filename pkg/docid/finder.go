package docid

import (
	"context"
	"strings"
	"time"

	apierrors "igcrawler/pkg/errors"
	"igcrawler/pkg/logger"
	"igcrawler/pkg/models"
)

// Source is the transport surface discovery needs: fetch text to scan and
// probe a candidate id against a known profile.
type Source interface {
	FetchSource(ctx context.Context, url string) (string, error)
	Probe(ctx context.Context, docID, probeUserID string) (models.ProbeResult, error)
}

// Verdict is the outcome of probing one candidate.
type Verdict string

const (
	// VerdictValid: the probe returned recognizable profile data.
	VerdictValid Verdict = "valid"
	// VerdictInvalid: the API rejected the id as unknown.
	VerdictInvalid Verdict = "invalid"
	// VerdictUnconfirmed: the response was inconclusive (transient failure,
	// unexpected shape). The id may still work.
	VerdictUnconfirmed Verdict = "unconfirmed"
)

// Finder discovers and validates profile query ids by scanning the public
// pages and bundles for numeric candidates and probing each one.
type Finder struct {
	source        Source
	probeUserID   string
	probeDelay    time.Duration
	maxCandidates int
	logger        logger.Logger

	// wait is swapped out in tests to avoid real sleeps
	wait func(ctx context.Context, d time.Duration) error
}

// NewFinder creates a Finder. probeUserID must reference a profile that
// reliably exists, so a data-shaped response proves the id and not the user.
func NewFinder(source Source, probeUserID string, probeDelay time.Duration, maxCandidates int, log logger.Logger) *Finder {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Finder{
		source:        source,
		probeUserID:   probeUserID,
		probeDelay:    probeDelay,
		maxCandidates: maxCandidates,
		logger:        log,
		wait:          waitCtx,
	}
}

// sourcePages are the entry pages scanned for candidates and bundle URLs.
var sourcePages = []string{"/", "/instagram/"}

// maxConsecutiveRateLimits bounds how many rate-limited probes in a row a
// validation run tolerates before giving up entirely.
const maxConsecutiveRateLimits = 3

// Collect scans the entry pages and their referenced script bundles and
// returns the unique candidate ids across all sources, sorted longest
// first and capped at maxCandidates.
func (f *Finder) Collect(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var candidates []string
	add := func(ids []string) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				candidates = append(candidates, id)
			}
		}
	}

	var bundles []string
	for _, page := range sourcePages {
		text, err := f.source.FetchSource(ctx, page)
		if err != nil {
			f.logger.WarnWithFields("failed to fetch source page", map[string]interface{}{
				"page":  page,
				"error": err.Error(),
			})
			continue
		}
		add(extractCandidates(text))
		bundles = append(bundles, extractScriptURLs(text)...)
	}

	for _, bundle := range bundles {
		if len(candidates) >= f.maxCandidates {
			break
		}
		text, err := f.source.FetchSource(ctx, bundle)
		if err != nil {
			continue
		}
		add(extractCandidates(text))
	}

	sortByLengthDesc(candidates)
	if len(candidates) > f.maxCandidates {
		candidates = candidates[:f.maxCandidates]
	}

	f.logger.InfoWithFields("collected doc id candidates", map[string]interface{}{
		"count": len(candidates),
	})
	return candidates, nil
}

// Validate probes each candidate in order, waiting probeDelay between
// probes, and returns the registry document. The first valid id becomes
// the recommendation. A rate-limited probe leaves its candidate
// unconfirmed and the run continues; only maxConsecutiveRateLimits
// rate limits in a row, or an auth failure, abort the whole run.
func (f *Finder) Validate(ctx context.Context, candidates []string) (*Document, error) {
	doc := &Document{DiscoveredAt: time.Now().UTC()}

	rateLimited := 0
	for i, id := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i > 0 {
			if err := f.wait(ctx, f.probeDelay); err != nil {
				return nil, err
			}
		}

		verdict, err := f.probeOne(ctx, id)
		if err != nil {
			if !apierrors.IsRateLimit(err) {
				return nil, err
			}
			rateLimited++
			if rateLimited >= maxConsecutiveRateLimits {
				return nil, err
			}
		} else {
			rateLimited = 0
		}

		f.logger.DebugWithFields("probed candidate", map[string]interface{}{
			"doc_id":  id,
			"verdict": string(verdict),
		})

		if verdict == VerdictValid {
			doc.ValidDocIDs = append(doc.ValidDocIDs, id)
			if doc.Recommended == "" {
				doc.Recommended = id
			}
		}
	}

	f.logger.InfoWithFields("doc id validation finished", map[string]interface{}{
		"probed": len(candidates),
		"valid":  len(doc.ValidDocIDs),
	})
	return doc, nil
}

// probeOne classifies a single candidate. The API answers an unknown id
// with a "was not found" error message; a response carrying a user object
// proves the id is live. Rate-limit and auth failures come back alongside
// the unconfirmed verdict so the caller can decide whether to go on.
func (f *Finder) probeOne(ctx context.Context, id string) (Verdict, error) {
	result, err := f.source.Probe(ctx, id, f.probeUserID)
	if err != nil {
		if apierrors.IsRateLimit(err) || apierrors.IsAuth(err) {
			return VerdictUnconfirmed, err
		}
		return VerdictUnconfirmed, nil
	}
	return classifyProbe(result), nil
}

// classifyProbe maps a raw probe response to a verdict.
func classifyProbe(result models.ProbeResult) Verdict {
	body := result.Body
	if strings.Contains(body, "was not found") {
		return VerdictInvalid
	}
	if result.Status != 200 {
		return VerdictUnconfirmed
	}
	if strings.Contains(body, `"user"`) && !strings.Contains(body, `"user":null`) {
		return VerdictValid
	}
	return VerdictUnconfirmed
}

func waitCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
