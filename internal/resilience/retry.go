package resilience

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Engine calls happen inside a capture tick, so the whole retry budget has
// to stay well under the shortest interval a user can pick.
const (
	EngineRetries     = 2
	EngineBackoff     = 50 * time.Millisecond
	EngineBackoffCap  = 250 * time.Millisecond
	EngineJitterRatio = 0.2
)

// RetryConfig controls how a failed OCR engine call is repeated.
// Zero fields take the Engine* values.
type RetryConfig struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
	IsRetryable  func(error) bool
}

// OCRRetryConfig returns the settings used for recognition calls.
func OCRRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   EngineRetries,
		BaseDelay:    EngineBackoff,
		MaxDelay:     EngineBackoffCap,
		JitterFactor: EngineJitterRatio,
		IsRetryable:  IsRetryableGRPC,
	}
}

// IsRetryableGRPC reports whether the engine failed in a way a second
// attempt can fix: it was restarting, overloaded or too slow. Anything
// else, including errors that never crossed the wire, is final.
func IsRetryableGRPC(err error) bool {
	if err == nil {
		return false
	}
	s, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

// Retry calls fn until it succeeds, fails for good, or runs out of attempts.
// It gives up early when the next backoff would outlive ctx's deadline, so a
// slow engine costs the current frame and not the next one.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	cfg = cfg.filled()
	var err error
	for attempt := 0; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = fn(); err == nil {
			return nil
		}
		if attempt == cfg.MaxRetries || !cfg.IsRetryable(err) {
			return err
		}

		wait := backoffDelay(cfg, attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			slog.Debug("ocr retry skipped, frame deadline too close", "attempt", attempt+1, "wait", wait, "error", err)
			return err
		}
		slog.Debug("retrying ocr engine call", "attempt", attempt+1, "of", cfg.MaxRetries, "wait", wait, "error", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// backoffDelay doubles BaseDelay per attempt up to MaxDelay and spreads it
// by JitterFactor around the centre.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	wait := min(cfg.BaseDelay<<min(attempt, 6), cfg.MaxDelay)
	spread := float64(wait) * cfg.JitterFactor * (rand.Float64() - 0.5)
	return wait + time.Duration(spread)
}

func (c RetryConfig) filled() RetryConfig {
	d := OCRRetryConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.JitterFactor <= 0 {
		c.JitterFactor = d.JitterFactor
	}
	if c.IsRetryable == nil {
		c.IsRetryable = d.IsRetryable
	}
	return c
}
