package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"bilicrawl/pkg/errors"
	"bilicrawl/pkg/logger"
)

// Class is the retry decision for a failed call.
type Class int

const (
	// Permanent aborts immediately.
	Permanent Class = iota
	// RateLimited waits and retries, consuming one attempt.
	RateLimited
	// AuthExpired refreshes the credential and retries without waiting
	// or consuming an attempt.
	AuthExpired
)

// Classifier maps an error to a retry decision.
type Classifier func(err error) Class

// DefaultClassifier classifies via the Bilibili error taxonomy: envelope
// code -352 and HTTP 412 are the only transient signals.
func DefaultClassifier(err error) Class {
	switch {
	case errors.IsAuthExpired(err):
		return AuthExpired
	case errors.IsRateLimited(err):
		return RateLimited
	default:
		return Permanent
	}
}

var (
	// ErrRetriesExhausted is returned when the rate-limit budget runs out.
	ErrRetriesExhausted = stderrors.New("retries exhausted")
	// ErrRefreshFailed is returned when the credential refresh itself
	// fails; the call is not retried further.
	ErrRefreshFailed = stderrors.New("credential refresh failed")
)

// Config controls the retry loop.
type Config struct {
	// MaxRetries caps the total rate-limited attempts for one call: the
	// operation runs at most MaxRetries times before the budget is
	// exhausted. Refresh retries do not consume it.
	MaxRetries int
	// InitialWait is the first rate-limit sleep. Doubled after every
	// rate-limited attempt.
	InitialWait time.Duration
	// Classify decides what to do with a failed call. Defaults to
	// DefaultClassifier.
	Classify Classifier
	// Refresh renews the credential on an auth-expired error. Nil makes
	// auth-expired permanent.
	Refresh func(ctx context.Context) error
	// OnWait is invoked before each rate-limit sleep with the attempt
	// number (1-based) and the wait about to be slept.
	OnWait func(attempt int, wait time.Duration)

	Logger logger.Logger
}

// DefaultConfig matches the crawler's standard policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  5,
		InitialWait: 3 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.InitialWait <= 0 {
		c.InitialWait = 3 * time.Second
	}
	if c.Classify == nil {
		c.Classify = DefaultClassifier
	}
	if c.Logger == nil {
		c.Logger = logger.GetLogger()
	}
	return c
}

// Do runs op under the retry policy.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	_, err := DoWithResult(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoWithResult runs op under the retry policy and returns its result.
//
// Every rate-limited failure consumes one attempt from the budget; when
// the budget is spent the call fails with ErrRetriesExhausted, so the
// operation runs at most MaxRetries times. Failures with budget left
// sleep the current wait and double it. An auth-expired error triggers exactly one
// credential refresh for the whole call and retries immediately; a second
// expiry, or a refresh failure, is terminal. Everything else aborts on
// the first occurrence.
func DoWithResult[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	cfg = cfg.withDefaults()

	wait := cfg.InitialWait
	budget := cfg.MaxRetries
	refreshed := false
	attempt := 0

	for {
		attempt++

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		switch cfg.Classify(err) {
		case AuthExpired:
			if refreshed || cfg.Refresh == nil {
				cfg.Logger.WithError(err).Error("credential still expired after refresh")
				return zero, err
			}
			cfg.Logger.Info("credential expired, refreshing")
			if rerr := cfg.Refresh(ctx); rerr != nil {
				return zero, fmt.Errorf("%w: %v", ErrRefreshFailed, rerr)
			}
			refreshed = true
			// Retry immediately: no wait, budget untouched.

		case RateLimited:
			budget--
			if budget <= 0 {
				cfg.Logger.WithError(err).Error("rate limited, retry budget exhausted")
				return zero, fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
			}
			cfg.Logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"wait":    wait,
			}).Warn("rate limited, backing off")
			if cfg.OnWait != nil {
				cfg.OnWait(attempt, wait)
			}
			if serr := sleep(ctx, wait); serr != nil {
				return zero, serr
			}
			wait *= 2

		default:
			return zero, err
		}
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
