package license

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// ActivationLimiter throttles activation attempts so a stolen key list
// cannot be brute-forced through this installation. Process-local; the
// authority applies its own limits server-side.
type ActivationLimiter struct {
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewActivationLimiter creates a limiter allowing rps sustained attempts
// with the given burst
func NewActivationLimiter(rps float64, burst int, logger *slog.Logger) *ActivationLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivationLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger.With(slog.String("component", "activation_limiter")),
	}
}

// Allow reports whether another activation attempt may proceed now
func (l *ActivationLimiter) Allow(ctx context.Context) bool {
	if l.limiter.Allow() {
		return true
	}
	l.logger.WarnContext(ctx, "activation attempt rate limited")
	return false
}
