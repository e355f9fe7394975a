package embeddings

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

const (
	DefaultAttempts       = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 8 * time.Second
	DefaultCallTimeout    = 30 * time.Second
)

// RetryConfig bounds how hard a Client is retried.
type RetryConfig struct {
	// Attempts is the total number of tries, including the first.
	Attempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// CallTimeout is the deadline applied to each individual attempt.
	CallTimeout time.Duration

	Logger *slog.Logger
}

// Retrying wraps a Client so that Process, Embed and Extract are retried
// with exponential backoff on ErrModelUnavailable and ErrModelTimeout.
// Invalid input is never retried.
type Retrying struct {
	client Client
	cfg    RetryConfig
	logger *slog.Logger
}

// WithRetry returns client wrapped in the retry policy.
func WithRetry(client Client, cfg RetryConfig) *Retrying {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	return &Retrying{client: client, cfg: cfg, logger: logger.OrNop(cfg.Logger)}
}

func (r *Retrying) Process(ctx context.Context, in Input) (*Result, error) {
	var res *Result
	err := r.do(ctx, "process", func(ctx context.Context) error {
		var err error
		res, err = r.client.Process(ctx, in)
		return err
	})
	return res, err
}

func (r *Retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	var emb []float32
	err := r.do(ctx, "embed", func(ctx context.Context) error {
		var err error
		emb, err = r.client.Embed(ctx, text)
		return err
	})
	return emb, err
}

func (r *Retrying) Extract(ctx context.Context, text string) ([]memory.EntityRef, error) {
	var refs []memory.EntityRef
	err := r.do(ctx, "extract", func(ctx context.Context) error {
		var err error
		refs, err = r.client.Extract(ctx, text)
		return err
	})
	return refs, err
}

func (r *Retrying) Close() error {
	return r.client.Close()
}

func (r *Retrying) do(ctx context.Context, op string, fn func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialBackoff
	b.MaxInterval = r.cfg.MaxBackoff
	b.Multiplier = 2
	b.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()

		err := memory.ModelError(op, fn(callCtx))
		if err == nil {
			return nil
		}
		// The caller's own deadline ending is not something a retry can fix.
		if ctx.Err() != nil || !(errors.Is(err, memory.ErrModelUnavailable) || errors.Is(err, memory.ErrModelTimeout)) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warn("model call failed, retrying",
			"op", op,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.Attempts-1)), ctx)
	return backoff.RetryNotify(operation, policy, notify)
}

var _ Client = (*Retrying)(nil)
