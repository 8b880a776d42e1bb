// Package retry runs operations with exponential backoff and bounded jitter
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/maklermate/maklermate-api/internal/config"
	goretry "github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Default retry configuration
const (
	DefaultMaxRetries    = 3
	DefaultInitialDelay  = 1 * time.Second
	DefaultMaxDelay      = 10 * time.Second
	DefaultBackoffFactor = 2.0

	// JitterFraction bounds the random delay added to every backoff step
	JitterFraction = 0.3
)

// ErrNoResponse marks a failure where the remote side never answered
var ErrNoResponse = errors.New("no response")

// TransientStatusCodes are the HTTP statuses retried by IsTransient
var TransientStatusCodes = map[int]struct{}{
	http.StatusRequestTimeout:      {},
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

// StatusError is returned by HTTP clients for non-2xx responses
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Options configures Do. Zero delays and factors fall back to the defaults.
// MaxRetries counts attempts after the first one, so zero means a single try.
type Options struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// Retryable decides whether a failure is worth another attempt.
	// Defaults to IsTransient.
	Retryable func(error) bool

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.MaxDelay < o.InitialDelay {
		o.MaxDelay = o.InitialDelay
	}
	if o.BackoffFactor < 1 {
		o.BackoffFactor = DefaultBackoffFactor
	}
	if o.Retryable == nil {
		o.Retryable = IsTransient
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// DefaultOptions returns the default configuration
func DefaultOptions() Options {
	return Options{
		MaxRetries:    DefaultMaxRetries,
		InitialDelay:  DefaultInitialDelay,
		MaxDelay:      DefaultMaxDelay,
		BackoffFactor: DefaultBackoffFactor,
	}
}

// FromConfig builds options from the retry section of the configuration
func FromConfig(cfg *config.RetryConfig, logger *zap.Logger) Options {
	return Options{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialDelay(),
		MaxDelay:      cfg.MaxDelay(),
		BackoffFactor: cfg.BackoffFactor,
		Logger:        logger,
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// retries are used up. The last error of op is returned unchanged.
// A cancelled context stops waiting and returns the context error.
func Do(ctx context.Context, op func(ctx context.Context) error, opts Options) error {
	opts = opts.withDefaults()
	backoff := goretry.WithMaxRetries(uint64(opts.MaxRetries), NewBackoff(opts))

	attempt := 0
	return goretry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := op(ctx)
		if err == nil || !opts.Retryable(err) {
			return err
		}
		opts.Logger.Debug("Operation failed, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err))
		return goretry.RetryableError(err)
	})
}

// NewBackoff returns the delay sequence used by Do:
// min(initial * factor^attempt, max) plus up to JitterFraction of that value
func NewBackoff(opts Options) goretry.Backoff {
	opts = opts.withDefaults()
	var mu sync.Mutex
	attempt := 0
	return goretry.BackoffFunc(func() (time.Duration, bool) {
		mu.Lock()
		n := attempt
		attempt++
		mu.Unlock()
		return Delay(opts, n, rand.Float64()), false
	})
}

// Delay computes the wait before retry number attempt (zero based).
// r is a random number in [0, 1) that scales the jitter.
func Delay(opts Options, attempt int, r float64) time.Duration {
	opts = opts.withDefaults()
	base := float64(opts.InitialDelay) * math.Pow(opts.BackoffFactor, float64(attempt))
	if base > float64(opts.MaxDelay) || math.IsInf(base, 0) || math.IsNaN(base) {
		base = float64(opts.MaxDelay)
	}
	if r < 0 || r >= 1 {
		r = 0
	}
	return time.Duration(base + base*JitterFraction*r)
}

// IsTransient reports whether err looks like a temporary failure: the
// request got no response at all, or the response carried a status code
// from TransientStatusCodes. Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		_, ok := TransientStatusCodes[se.Code]
		return ok
	}
	if errors.Is(err, ErrNoResponse) {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
