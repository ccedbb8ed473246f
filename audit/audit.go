// Package audit provides the append-only event log the execution core
// writes every decision to: risk admissions and rejections, composed
// orders, scheduler actions, and broker responses. Records are written
// once and never mutated.
package audit

import "time"

// Record is one audit event as read back from a sink.
type Record struct {
	ID      string
	Time    time.Time
	Event   string
	Payload map[string]any
}

// Sink is an append-only event log. Implementations must make each Write
// independently durable (flush-on-write) and safe for concurrent writers;
// only each writer's own ordering is preserved.
type Sink interface {
	Write(event string, payload map[string]any) error
	Close() error
}

// Event names written by the execution core.
const (
	EventRiskRejected   = "order.risk.rejected"
	EventInvalid        = "order.invalid"
	EventDisabled       = "order.disabled"
	EventPaperFill      = "order.paper.fill"
	EventLiveSubmitted  = "order.live.submitted"
	EventLiveError      = "order.live.error"
	EventCloseScheduled = "order.close.scheduled"
	EventCloseFired     = "order.close.fired"
	EventCloseError     = "order.close.error"
	EventPreview        = "order.preview"
)
