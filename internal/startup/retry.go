// Package startup runs boot-time work that depends on services which
// may not be reachable yet, such as the first watchlist sync against
// the provider.
package startup

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig bounds the backoff loop.
type RetryConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Multiplier   float64
}

// DefaultRetryConfig suits provider calls at boot: the watchlist host
// is usually reachable within the first couple of minutes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay: 5 * time.Second,
		MaxDelay:     5 * time.Minute,
		MaxAttempts:  5,
		Multiplier:   2.0,
	}
}

var retryableFragments = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"no route to host",
	"host is down",
	"network is unreachable",
	"temporary failure in name resolution",
	"dial tcp",
	"dial udp",
	"timeout",
	"i/o timeout",
}

// IsNetworkError reports whether an error looks like transient network
// unavailability rather than a real failure. String matching covers
// wrapped errors that lost their net.Error type.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	var dnsErr *net.DNSError
	if errors.As(err, &netErr) || errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// WithRetry runs fn, retrying with exponential backoff while it keeps
// failing with network errors. Any other error aborts immediately.
func WithRetry(ctx context.Context, name string, cfg RetryConfig, fn func() error, logger *zerolog.Logger) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().Str("operation", name).Int("attempt", attempt).Msg("succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !IsNetworkError(err) {
			logger.Error().Err(err).Str("operation", name).Msg("non-network error, giving up")
			return err
		}
		if attempt >= cfg.MaxAttempts {
			logger.Error().Err(lastErr).Str("operation", name).
				Int("attempts", cfg.MaxAttempts).Msg("still failing after all retries")
			return lastErr
		}

		logger.Warn().Err(err).Str("operation", name).
			Int("attempt", attempt).Int("maxAttempts", cfg.MaxAttempts).
			Dur("nextRetryIn", delay).Msg("network error, will retry")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
