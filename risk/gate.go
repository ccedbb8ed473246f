package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Gate owns the mutable risk state for one trading session: the rolling
// hourly order counts, the running daily P&L, and the set of idempotency
// keys already consumed. All checks for one admission run under a single
// lock so concurrent submissions cannot both pass a limit that only one
// should pass.
type Gate struct {
	caps CapsSource
	now  func() time.Time

	mu       sync.Mutex
	hourly   map[int64]int // epoch-hour -> committed order count
	dailyPnL decimal.Decimal
	seen     map[string]struct{}
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the gate's time source. Used by tests to control
// window rollover.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate creates a Gate drawing its limits from src.
func NewGate(src CapsSource, opts ...Option) *Gate {
	g := &Gate{
		caps:   src,
		now:    time.Now,
		hourly: make(map[int64]int),
		seen:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit decides whether an order with the given stake may be submitted.
// It mutates nothing: a rejected or failed downstream submission must not
// consume a rate-limit slot or burn an idempotency key. Call Commit after a
// confirmed fill.
func (g *Gate) Admit(stake decimal.Decimal, idempotencyKey string) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	caps := g.caps.Caps()

	if idempotencyKey != "" {
		if _, dup := g.seen[idempotencyKey]; dup {
			return deny(ReasonDuplicate)
		}
	}

	bucket := g.tick()
	if caps.MaxOrdersPerHour > 0 && g.hourly[bucket] >= caps.MaxOrdersPerHour {
		return deny(ReasonRateLimit)
	}
	if !caps.MaxPosition.IsZero() && stake.GreaterThan(caps.MaxPosition) {
		return deny(ReasonPositionCap)
	}
	if !caps.MaxDailyLoss.IsZero() && g.dailyPnL.LessThan(caps.MaxDailyLoss.Abs().Neg()) {
		return deny(ReasonDailyLoss)
	}
	return allow()
}

// Commit records a confirmed fill: it consumes one rate-limit slot in the
// current hour bucket, marks the idempotency key as used, and folds the
// realized P&L delta into the daily total.
func (g *Gate) Commit(pnlDelta decimal.Decimal, idempotencyKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	bucket := g.tick()
	g.hourly[bucket]++
	g.dailyPnL = g.dailyPnL.Add(pnlDelta)
	if idempotencyKey != "" {
		g.seen[idempotencyKey] = struct{}{}
	}
}

// DailyPnL returns the running daily P&L total.
func (g *Gate) DailyPnL() decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dailyPnL
}

// ResetDaily clears the daily P&L total. The daily boundary (midnight UTC,
// market open, ...) is the caller's choice; wire this to whatever job marks
// the boundary.
func (g *Gate) ResetDaily() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyPnL = decimal.Zero
}

// tick returns the current epoch-hour bucket and opportunistically prunes
// buckets older than two hours. Callers must hold g.mu.
func (g *Gate) tick() int64 {
	h := g.now().Unix() / 3600
	for k := range g.hourly {
		if k < h-2 {
			delete(g.hourly, k)
		}
	}
	return h
}
