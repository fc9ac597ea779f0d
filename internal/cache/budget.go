package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateBudget caps the number of generation calls per fixed time window.
// The window rolls over lazily on the first call after it ends.
type RateBudget struct {
	limit  int
	window time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu          sync.Mutex
	windowStart time.Time
	used        int
}

// BudgetOption configures a RateBudget.
type BudgetOption func(*RateBudget)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) BudgetOption {
	return func(b *RateBudget) { b.now = now }
}

// NewRateBudget allows limit units per window. A limit of zero disables
// generation entirely.
func NewRateBudget(limit int, window time.Duration, logger *zap.Logger, opts ...BudgetOption) *RateBudget {
	if window <= 0 {
		window = time.Hour
	}
	if limit < 0 {
		limit = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &RateBudget{
		limit:  limit,
		window: window,
		now:    time.Now,
		logger: logger.Named("rate-budget"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// rollover resets the counter if the current window has ended. Callers hold mu.
func (b *RateBudget) rollover() {
	start := b.now().Truncate(b.window)
	if !start.Equal(b.windowStart) {
		if b.used > 0 {
			b.logger.Debug("budget window rolled over",
				zap.Time("previous_window", b.windowStart),
				zap.Int("used", b.used))
		}
		b.windowStart = start
		b.used = 0
	}
}

// TryConsume takes cost units from the current window. It never blocks and
// returns false, consuming nothing, when the remaining budget is too small.
func (b *RateBudget) TryConsume(cost int) bool {
	if cost < 1 {
		cost = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover()
	if b.used+cost > b.limit {
		b.logger.Info("generation budget exhausted",
			zap.Int("limit", b.limit),
			zap.Int("used", b.used),
			zap.Time("window_start", b.windowStart))
		return false
	}
	b.used += cost
	return true
}

// Remaining returns the units left in the current window.
func (b *RateBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover()
	return b.limit - b.used
}

// Limit returns the per-window budget.
func (b *RateBudget) Limit() int {
	return b.limit
}
