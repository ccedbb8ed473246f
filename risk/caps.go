// Package risk gates every order submission through hot-reloadable limits:
// a rolling hourly order counter, a daily-loss circuit breaker, a per-order
// position cap, and idempotency-key protection.
package risk

import (
	"github.com/shopspring/decimal"
)

// Caps are the configured risk limits. A zero value disables the
// corresponding check.
type Caps struct {
	MaxOrdersPerHour int             `json:"max_orders_per_hour"`
	MaxDailyLoss     decimal.Decimal `json:"max_daily_loss"`
	MaxPosition      decimal.Decimal `json:"max_position"`
}

// DefaultCaps mirrors the server defaults: 30 orders/hour, loss and
// position caps disabled.
func DefaultCaps() Caps {
	return Caps{MaxOrdersPerHour: 30}
}

// CapsSource supplies the current limits for each admission decision, so
// operators can tighten caps between calls without restarting.
type CapsSource interface {
	Caps() Caps
}

// StaticCaps is a CapsSource that always returns the same limits.
type StaticCaps Caps

func (s StaticCaps) Caps() Caps { return Caps(s) }

// Reason identifies why an admission decision went the way it did. The
// string values are stable: callers and the audit log rely on them.
type Reason string

const (
	ReasonOK          Reason = "ok"
	ReasonDuplicate   Reason = "duplicate_order"
	ReasonRateLimit   Reason = "order_rate_exceeded"
	ReasonPositionCap Reason = "stake_exceeds_position_cap"
	ReasonDailyLoss   Reason = "daily_loss_limit_reached"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision        { return Decision{Allowed: true, Reason: ReasonOK} }
func deny(r Reason) Decision { return Decision{Reason: r} }
