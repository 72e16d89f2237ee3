package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	apierrors "igcrawler/pkg/errors"
	"igcrawler/pkg/logger"
)

// Decision is the outcome of classifying one request attempt.
type Decision int

const (
	// Success: the response is usable, no further attempts needed.
	Success Decision = iota
	// Retry: wait out the cooldown and attempt exactly once more.
	Retry
	// GiveUp: the operation failed terminally for this entity.
	GiveUp
)

func (d Decision) String() string {
	switch d {
	case Success:
		return "success"
	case Retry:
		return "retry"
	case GiveUp:
		return "give_up"
	default:
		return "unknown"
	}
}

// Classify maps an HTTP status to a retry decision. 429 is the only
// retryable status, and only for a single attempt; 404 and everything
// else is terminal. Do consults it for its single permitted retry.
func Classify(statusCode int) Decision {
	switch statusCode {
	case http.StatusOK:
		return Success
	case http.StatusTooManyRequests:
		return Retry
	default:
		return GiveUp
	}
}

// Policy applies the crawl pacing rules: a fixed cooldown before the one
// permitted 429 retry, a randomized delay between entities, and a penalty
// delay after a rate-limit give-up.
type Policy struct {
	Cooldown time.Duration
	DelayMin time.Duration
	DelayMax time.Duration
	Penalty  time.Duration

	logger logger.Logger

	// wait is swapped out in tests to avoid real sleeps
	wait func(ctx context.Context, d time.Duration) error
}

// NewPolicy creates a Policy from the configured pacing values.
func NewPolicy(cooldown, delayMin, delayMax, penalty time.Duration, log logger.Logger) *Policy {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Policy{
		Cooldown: cooldown,
		DelayMin: delayMin,
		DelayMax: delayMax,
		Penalty:  penalty,
		logger:   log,
		wait:     Wait,
	}
}

// Do runs op, and if its failure classifies as Retry, waits out the
// cooldown and runs it exactly once more. A second rate-limit failure, and
// every other failure kind, is returned to the caller unchanged.
func (p *Policy) Do(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || Classify(errorStatus(err)) != Retry {
		return err
	}

	p.logger.WarnWithFields("rate limited, cooling down before retry", map[string]interface{}{
		"cooldown": p.Cooldown,
	})
	if werr := p.wait(ctx, p.Cooldown); werr != nil {
		return werr
	}
	return op()
}

// errorStatus extracts the HTTP status carried by a typed API error.
// Untyped errors classify as status 0, which never retries.
func errorStatus(err error) int {
	var apiErr *apierrors.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// EntityDelay returns a randomized delay drawn from [DelayMin, DelayMax],
// applied between any two entities to keep the request cadence below the
// API's implicit threshold.
func (p *Policy) EntityDelay() time.Duration {
	if p.DelayMax <= p.DelayMin {
		return p.DelayMin
	}
	spread := p.DelayMax - p.DelayMin
	return p.DelayMin + time.Duration(rand.Int63n(int64(spread)))
}

// WaitBetweenEntities blocks for a randomized inter-entity delay.
func (p *Policy) WaitBetweenEntities(ctx context.Context) error {
	return p.wait(ctx, p.EntityDelay())
}

// WaitPenalty blocks for the extra delay applied after a rate-limit
// give-up, before the batch moves on to the next entity.
func (p *Policy) WaitPenalty(ctx context.Context) error {
	p.logger.WarnWithFields("rate limit give-up, applying penalty delay", map[string]interface{}{
		"penalty": p.Penalty,
	})
	return p.wait(ctx, p.Penalty)
}

// Wait sleeps for the given duration or until the context is cancelled.
func Wait(ctx context.Context, d time.Duration) error {
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
