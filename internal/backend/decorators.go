package backend

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/BTreeMap/PostPipe/internal/flow"
	"github.com/BTreeMap/PostPipe/internal/models"
)

// call runs one backend operation. The decorators wrap every operation through it.
type call func(ctx context.Context) error

// decorator adapts a per-call wrapper into a flow.Backend.
type decorator struct {
	next flow.Backend
	wrap func(ctx context.Context, op string, fn call) error
}

func (d *decorator) AnalyzeContext(ctx context.Context, message, audience string, tone models.Tone) (models.CampaignContext, error) {
	var out models.CampaignContext
	err := d.wrap(ctx, flow.OpAnalyzeContext, func(ctx context.Context) error {
		var err error
		out, err = d.next.AnalyzeContext(ctx, message, audience, tone)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *decorator) GeneratePosts(ctx context.Context, cc models.CampaignContext, message, audience string, tone models.Tone, useEmojis bool) (models.AggregatePosts, error) {
	var out models.AggregatePosts
	err := d.wrap(ctx, flow.OpGeneratePosts, func(ctx context.Context) error {
		var err error
		out, err = d.next.GeneratePosts(ctx, cc, message, audience, tone, useEmojis)
		return err
	})
	if err != nil {
		return models.AggregatePosts{}, err
	}
	return out, nil
}

func (d *decorator) RefinePosts(ctx context.Context, current models.AggregatePosts, feedback string) (models.AggregatePosts, error) {
	var out models.AggregatePosts
	err := d.wrap(ctx, flow.OpRefinePosts, func(ctx context.Context) error {
		var err error
		out, err = d.next.RefinePosts(ctx, current, feedback)
		return err
	})
	if err != nil {
		return models.AggregatePosts{}, err
	}
	return out, nil
}

// WithTimeout bounds every backend call by d. An expired deadline is reported as a
// timeout BackendError.
func WithTimeout(next flow.Backend, d time.Duration) flow.Backend {
	if d <= 0 {
		return next
	}
	return &decorator{next: next, wrap: func(ctx context.Context, op string, fn call) error {
		cctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		err := fn(cctx)
		if err != nil && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
			slog.Warn("backend call timed out", "op", op, "timeout", d)
			return &models.BackendError{Op: op, Kind: models.BackendErrorTimeout, Err: err}
		}
		return err
	}}
}

// RetryOpts holds configuration for the retry decorator.
type RetryOpts struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
}

// RetryOption defines a configuration option for the retry decorator.
type RetryOption func(*RetryOpts)

// WithMaxRetries sets how many times a failed call is retried.
func WithMaxRetries(n uint64) RetryOption {
	return func(o *RetryOpts) { o.MaxRetries = n }
}

// WithInitialInterval sets the first backoff delay.
func WithInitialInterval(d time.Duration) RetryOption {
	return func(o *RetryOpts) { o.InitialInterval = d }
}

// WithMaxElapsedTime bounds the total time spent retrying one call.
func WithMaxElapsedTime(d time.Duration) RetryOption {
	return func(o *RetryOpts) { o.MaxElapsedTime = d }
}

// WithRetry retries calls that fail with a temporary BackendError using exponential
// backoff. Other failures are returned immediately.
func WithRetry(next flow.Backend, opts ...RetryOption) flow.Backend {
	cfg := RetryOpts{MaxRetries: 2, InitialInterval: 500 * time.Millisecond, MaxElapsedTime: 30 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxRetries == 0 {
		return next
	}
	return &decorator{next: next, wrap: func(ctx context.Context, op string, fn call) error {
		// BackOff implementations are stateful; build a fresh one per call.
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = cfg.InitialInterval
		bo.MaxElapsedTime = cfg.MaxElapsedTime
		policy := backoff.WithContext(backoff.WithMaxRetries(bo, cfg.MaxRetries), ctx)

		attempt := 0
		err := backoff.Retry(func() error {
			attempt++
			err := fn(ctx)
			if err == nil {
				return nil
			}
			if !models.IsTemporaryBackendError(err) {
				return backoff.Permanent(err)
			}
			slog.Warn("backend call failed, retrying", "op", op, "attempt", attempt, "error", err)
			return err
		}, policy)
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// Context ended while waiting between attempts.
			return models.NewBackendError(op, models.BackendErrorCanceled, err)
		}
		return err
	}}
}
