package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrLimitExceeded = errors.New("ai call limit exceeded")

// AIRateLimiter caps model attempts per day across all models.
type AIRateLimiter struct {
	mu        sync.Mutex
	perModel  map[string]int
	total     int
	rejected  int
	maxTotal  int
	resetTime time.Time
	now       func() time.Time
	log       *slog.Logger
}

// NewAIRateLimiter returns a limiter allowing maxTotal attempts per 24
// hours. Zero or less means unlimited; attempts are still counted.
func NewAIRateLimiter(maxTotal int, log *slog.Logger) *AIRateLimiter {
	if log == nil {
		log = slog.Default()
	}
	rl := &AIRateLimiter{
		perModel: make(map[string]int),
		maxTotal: maxTotal,
		now:      time.Now,
		log:      log,
	}
	rl.resetTime = rl.now().Add(24 * time.Hour)
	return rl
}

// CanUse reports whether another attempt would be allowed.
func (rl *AIRateLimiter) CanUse() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.checkReset()
	return rl.maxTotal <= 0 || rl.total < rl.maxTotal
}

// Use counts one attempt against model, or returns ErrLimitExceeded.
func (rl *AIRateLimiter) Use(model string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.checkReset()

	if rl.maxTotal > 0 && rl.total >= rl.maxTotal {
		rl.rejected++
		rl.log.Warn("ai call limit reached", "used", rl.total, "limit", rl.maxTotal, "model", model)
		return fmt.Errorf("%w (%d/%d, resets %s)", ErrLimitExceeded, rl.total, rl.maxTotal, rl.resetTime.Format(time.RFC3339))
	}

	rl.perModel[model]++
	rl.total++
	rl.log.Debug("ai usage", "model", model, "model_used", rl.perModel[model], "total", rl.total, "limit", rl.maxTotal)
	return nil
}

// GetStats returns current rate limiter statistics
func (rl *AIRateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	perModel := make(map[string]int, len(rl.perModel))
	for m, n := range rl.perModel {
		perModel[m] = n
	}

	return map[string]interface{}{
		"total_used":  rl.total,
		"total_limit": rl.maxTotal,
		"rejected":    rl.rejected,
		"models":      perModel,
		"reset_time":  rl.resetTime,
	}
}

// checkReset resets counters if reset time has passed
func (rl *AIRateLimiter) checkReset() {
	now := rl.now()
	if !now.After(rl.resetTime) {
		return
	}
	rl.log.Info("resetting ai call counters", "used", rl.total, "rejected", rl.rejected)
	rl.perModel = make(map[string]int)
	rl.total = 0
	rl.rejected = 0
	rl.resetTime = now.Add(24 * time.Hour)
}
