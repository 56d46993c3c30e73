// Package retrylimit throttles outgoing requests with a rate that adapts to
// the responses, and retries failed calls with backoff. HTTP status errors
// get special treatment: 429 lowers the rate, 4xx other than 429 is not
// retried.
//
//	lim := retrylimit.NewAdaptiveLimiter(2, 1, 5, 0.5, 0.5)
//	err := retrylimit.WithRetry(ctx, func() error {
//	    return search(ctx, query)
//	}, lim)
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter is a token bucket whose rate climbs by stepUp after
// successes and is multiplied by stepDown after overload responses.
type AdaptiveLimiter struct {
	mu        sync.RWMutex
	limiter   *rate.Limiter
	minLimit  rate.Limit
	maxLimit  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	lastError time.Time
}

// NewAdaptiveLimiter starts at initial requests per second and stays within
// [min, max]. Rates below one request per second are allowed.
func NewAdaptiveLimiter(initial, min, max rate.Limit, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	if min <= 0 {
		min = 0.1
	}
	if max < min {
		max = min
	}
	initial = clamp(initial, min, max)
	burst := maxInt(1, int(initial))
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, burst),
		minLimit: min,
		maxLimit: max,
		stepUp:   stepUp,
		stepDown: stepDown,
	}
}

// Wait blocks until a token is available or ctx ends.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// Success raises the rate, unless an overload was seen in the last
// cooldown period.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.lastError) > cooldown {
		a.adjustLimit(a.limiter.Limit() + a.stepUp)
	}
}

// RateLimited lowers the rate after an overload response.
func (a *AdaptiveLimiter) RateLimited() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = time.Now()
	newLimit := rate.Limit(float64(a.limiter.Limit()) * a.stepDown)
	a.adjustLimit(newLimit)
}

// CurrentLimit returns the current requests per second.
func (a *AdaptiveLimiter) CurrentLimit() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return float64(a.limiter.Limit())
}

func (a *AdaptiveLimiter) adjustLimit(newLimit rate.Limit) {
	newLimit = clamp(newLimit, a.minLimit, a.maxLimit)
	if newLimit != a.limiter.Limit() {
		a.limiter.SetLimit(newLimit)
		a.limiter.SetBurst(maxInt(1, int(newLimit)))
	}
}

// cooldown is how long after an overload response the rate stays put.
const cooldown = 10 * time.Second

// StatusError is returned for unexpected HTTP responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.Code)
}

func (e *StatusError) StatusCode() int { return e.Code }

// HTTPError is implemented by errors that carry an HTTP status code.
type HTTPError interface {
	error
	StatusCode() int
}

// FatalError stops retries immediately.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts    int           // at least 1
	InitialDelay   time.Duration // first backoff
	MaxDelay       time.Duration // backoff ceiling
	RateLimitDelay time.Duration // fixed pause after a 429
	Multiplier     float64
	Jitter         bool
	Logger         zerolog.Logger
}

// DefaultRetryConfig suits interactive lookups: a few quick attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   300 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		RateLimitDelay: time.Second,
		Multiplier:     2.0,
		Jitter:         true,
		Logger:         zerolog.Nop(),
	}
}

// WithRetry runs fn with DefaultRetryConfig.
func WithRetry(ctx context.Context, fn func() error, lim *AdaptiveLimiter) error {
	return WithRetryConfig(ctx, fn, lim, DefaultRetryConfig())
}

// WithRetryConfig runs fn until it succeeds, returns a FatalError or a
// non-retryable HTTP error, ctx ends, or the attempts run out. The last
// error is returned.
func WithRetryConfig(ctx context.Context, fn func() error, lim *AdaptiveLimiter, cfg RetryConfig) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	delay := cfg.InitialDelay

	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if lim != nil {
			if werr := lim.Wait(ctx); werr != nil {
				return werr
			}
		}

		err = fn()
		if err == nil {
			if lim != nil {
				lim.Success()
			}
			if attempt > 1 {
				cfg.Logger.Debug().Int("attempt", attempt).Msg("retry succeeded")
			}
			return nil
		}

		var fatal *FatalError
		if errors.As(err, &fatal) || !retryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if isRateLimitError(err) {
			wait = cfg.RateLimitDelay
		}
		if isRateLimitError(err) || isServerError(err) {
			if lim != nil {
				lim.RateLimited()
			}
		}
		if cfg.Jitter {
			wait = addJitter(wait)
		}

		cfg.Logger.Warn().Err(err).Int("attempt", attempt).Dur("sleep", wait).Msg("request failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("after %d attempts: %w", cfg.MaxAttempts, err)
}

// addJitter adds up to 25% to delay.
func addJitter(delay time.Duration) time.Duration {
	if delay < 4 {
		return delay
	}
	return delay + rand.N(delay/4)
}

func retryable(err error) bool {
	var httpErr HTTPError
	if !errors.As(err, &httpErr) {
		return true
	}
	code := httpErr.StatusCode()
	return code == http.StatusTooManyRequests || code >= 500
}

func isRateLimitError(err error) bool {
	var httpErr HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode() == http.StatusTooManyRequests
}

func isServerError(err error) bool {
	var httpErr HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	code := httpErr.StatusCode()
	return code >= 500 && code < 600
}

func clamp(v, lo, hi rate.Limit) rate.Limit {
	return max(lo, min(v, hi))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
