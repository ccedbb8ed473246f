// Package dispatch orchestrates order submission: risk admission, order
// composition, close scheduling for deferred types, and paper or live
// execution with bounded retries.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradewell/execution/audit"
	"github.com/tradewell/execution/broker"
	"github.com/tradewell/execution/metrics"
	"github.com/tradewell/execution/order"
	"github.com/tradewell/execution/pkg/id"
	"github.com/tradewell/execution/risk"
	"github.com/tradewell/execution/schedule"
)

// Mode selects paper (simulated fills, no broker calls) or live execution.
type Mode string

const (
	Paper Mode = "paper"
	Live  Mode = "live"
)

// Status is a submission's terminal state. A submission moves
// PENDING -> {REJECTED | SCHEDULED | SUBMITTING -> {FILLED | BROKER_ERROR}};
// a SCHEDULED submission becomes a fresh PENDING one when its job fires.
type Status string

const (
	StatusRejected    Status = "REJECTED"
	StatusScheduled   Status = "SCHEDULED"
	StatusFilled      Status = "FILLED"
	StatusBrokerError Status = "BROKER_ERROR"
)

// ReasonDisabled rejects every submission while the trading kill switch is
// off. It shares the risk.Reason namespace so callers branch on one code.
const ReasonDisabled risk.Reason = "trading_disabled"

// Result reports what happened to one submission.
type Result struct {
	ID     string      // submission ULID
	Status Status
	Reason risk.Reason // set for REJECTED results

	Spec *order.Spec // composed broker order, when one was built

	// Scheduling outcome, for SCHEDULED results.
	JobID   string
	FiresAt time.Time

	// Execution outcome.
	FillPrice decimal.Decimal // paper fills
	Broker    *broker.Result  // live acknowledgement
	Retries   int             // transient failures retried on the live path
}

// Config holds the dispatcher's operating knobs.
type Config struct {
	Mode        Mode
	Enabled     bool // global kill switch; false rejects every submission
	MaxOrderQty int  // per-leg quantity cap, 0 disables
	Retry       RetryPolicy
	CloseTime   schedule.CloseTime
	Timezone    *time.Location // market zone for close scheduling
}

// Dispatcher wires the risk gate, composer, scheduler, broker client, and
// audit sink into the single Submit entry point.
type Dispatcher struct {
	cfg    Config
	gate   *risk.Gate
	sched  *schedule.Scheduler
	client broker.Client
	sink   audit.Sink
	log    *slog.Logger
}

// New creates a Dispatcher. client may be nil in paper mode.
func New(cfg Config, gate *risk.Gate, sched *schedule.Scheduler, client broker.Client, sink audit.Sink, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if (cfg.CloseTime == schedule.CloseTime{}) {
		cfg.CloseTime = schedule.DefaultCloseTime
	}
	return &Dispatcher{
		cfg:    cfg,
		gate:   gate,
		sched:  sched,
		client: client,
		sink:   sink,
		log:    log,
	}
}

// Preview composes the intent without risk checks, scheduling, or
// submission. Deferred MOC/LOC intents preview their fire-time resolution.
func (d *Dispatcher) Preview(in order.Intent) (order.Composed, error) {
	composed, err := order.Compose(in)
	if err != nil {
		return order.Composed{}, err
	}
	d.audit(audit.EventPreview, map[string]any{
		"symbol": in.Symbol,
		"intent": in,
		"spec":   composed.Spec,
	})
	return composed, nil
}

// Submit runs one intent through the full path: kill switch, risk
// admission, composition, then scheduling / paper fill / live placement.
// Risk rejections come back as a REJECTED Result with a nil error: they
// are decisions, not failures. Malformed intents and broker failures
// return an error alongside the Result.
func (d *Dispatcher) Submit(ctx context.Context, in order.Intent) (Result, error) {
	res := Result{ID: id.New()}

	if err := d.checkQty(in); err != nil {
		res.Status = StatusRejected
		d.audit(audit.EventInvalid, map[string]any{
			"symbol": in.Symbol,
			"intent": in,
			"error":  err.Error(),
		})
		metrics.Submission(string(d.cfg.Mode), "rejected")
		return res, err
	}

	if !d.cfg.Enabled {
		res.Status = StatusRejected
		res.Reason = ReasonDisabled
		// Preview stays visible even while trading is off.
		if composed, err := order.Compose(in); err == nil {
			res.Spec = composed.Spec
		}
		d.audit(audit.EventDisabled, map[string]any{
			"symbol": in.Symbol,
			"intent": in,
		})
		metrics.Submission(string(d.cfg.Mode), "rejected")
		return res, nil
	}

	if decision := d.gate.Admit(in.Stake(), in.IdempotencyKey); !decision.Allowed {
		res.Status = StatusRejected
		res.Reason = decision.Reason
		d.audit(audit.EventRiskRejected, map[string]any{
			"symbol":  in.Symbol,
			"account": in.AccountID,
			"reason":  string(decision.Reason),
			"intent":  in,
		})
		metrics.RiskRejection(string(decision.Reason))
		metrics.Submission(string(d.cfg.Mode), "rejected")
		d.log.Warn("order rejected by risk gate",
			slog.String("symbol", in.Symbol),
			slog.String("reason", string(decision.Reason)))
		return res, nil
	}

	composed, err := order.Compose(in)
	if err != nil {
		res.Status = StatusRejected
		d.audit(audit.EventInvalid, map[string]any{
			"symbol": in.Symbol,
			"intent": in,
			"error":  err.Error(),
		})
		metrics.Submission(string(d.cfg.Mode), "rejected")
		return res, err
	}
	res.Spec = composed.Spec

	if composed.Deferred {
		return d.scheduleClose(res, in)
	}
	if d.cfg.Mode == Paper {
		return d.paperFill(res, in, composed), nil
	}
	return d.placeLive(ctx, res, in, composed)
}

func (d *Dispatcher) checkQty(in order.Intent) error {
	if d.cfg.MaxOrderQty <= 0 {
		return nil
	}
	for _, l := range in.Legs {
		if l.Quantity > d.cfg.MaxOrderQty {
			return fmt.Errorf("%w: leg quantity %d exceeds cap %d",
				order.ErrInvalidIntent, l.Quantity, d.cfg.MaxOrderQty)
		}
	}
	return nil
}

// scheduleClose registers the deferred MOC/LOC job. The job goes back
// through Submit when it fires, so it faces the risk gate again under
// fire-time conditions.
func (d *Dispatcher) scheduleClose(res Result, in order.Intent) (Result, error) {
	job, err := d.sched.ScheduleNearClose(in, d.cfg.CloseTime, d.cfg.Timezone, d.fireClose)
	if err != nil {
		res.Status = StatusRejected
		d.audit(audit.EventCloseError, map[string]any{
			"symbol": in.Symbol,
			"intent": in,
			"error":  err.Error(),
		})
		metrics.Submission(string(d.cfg.Mode), "rejected")
		return res, err
	}

	res.Status = StatusScheduled
	res.JobID = job.ID
	res.FiresAt = job.FiresAt
	d.audit(audit.EventCloseScheduled, map[string]any{
		"symbol":        in.Symbol,
		"account":       in.AccountID,
		"intent":        in,
		"job_id":        job.ID,
		"scheduled_for": job.FiresAt.Format(time.RFC3339),
		"mode":          string(d.cfg.Mode),
	})
	metrics.ScheduledJob("scheduled")
	metrics.Submission(string(d.cfg.Mode), "scheduled")
	return res, nil
}

// fireClose runs on the job's timer goroutine. It resolves the deferred
// type (MOC->MARKET, LOC->LIMIT at locPrice) and resubmits as a fresh
// synchronous call, tagged with the original intent for traceability.
func (d *Dispatcher) fireClose(job *schedule.Job) {
	resolved, err := order.ResolveClose(job.Intent)
	if err != nil {
		d.audit(audit.EventCloseError, map[string]any{
			"job_id": job.ID,
			"intent": job.Intent,
			"error":  err.Error(),
		})
		metrics.ScheduledJob("error")
		return
	}

	d.audit(audit.EventCloseFired, map[string]any{
		"job_id":   job.ID,
		"original": job.Intent,
		"resolved": string(resolved.Type),
	})
	metrics.ScheduledJob("fired")

	if _, err := d.Submit(context.Background(), resolved); err != nil {
		d.audit(audit.EventCloseError, map[string]any{
			"job_id": job.ID,
			"intent": job.Intent,
			"error":  err.Error(),
		})
	}
}

// paperFill synthesizes a deterministic fill at the intent's limit price
// (zero for market orders) without touching the broker.
func (d *Dispatcher) paperFill(res Result, in order.Intent, composed order.Composed) Result {
	fill := decimal.Zero
	if in.Price != nil {
		fill = *in.Price
	}
	d.gate.Commit(decimal.Zero, in.IdempotencyKey)

	res.Status = StatusFilled
	res.FillPrice = fill
	d.audit(audit.EventPaperFill, map[string]any{
		"mode":       string(Paper),
		"symbol":     in.Symbol,
		"account":    in.AccountID,
		"intent":     in,
		"spec":       composed.Spec,
		"fill_price": fill,
		"status":     string(StatusFilled),
	})
	metrics.Submission(string(Paper), "filled")
	d.log.Info("paper fill",
		slog.String("symbol", in.Symbol),
		slog.String("fill_price", fill.String()))
	return res
}

// placeLive submits through the broker client under the retry policy.
func (d *Dispatcher) placeLive(ctx context.Context, res Result, in order.Intent, composed order.Composed) (Result, error) {
	if in.AccountID == "" {
		res.Status = StatusRejected
		err := fmt.Errorf("%w: account ID required for live trading", order.ErrInvalidIntent)
		d.audit(audit.EventInvalid, map[string]any{
			"symbol": in.Symbol,
			"intent": in,
			"error":  err.Error(),
		})
		metrics.Submission(string(Live), "rejected")
		return res, err
	}

	var ack broker.Result
	retries, err := d.cfg.Retry.Execute(ctx, func() error {
		var opErr error
		ack, opErr = d.client.PlaceOrder(ctx, in.AccountID, composed.Spec)
		return opErr
	})
	res.Retries = retries
	metrics.BrokerRetries(retries)

	if err != nil {
		res.Status = StatusBrokerError
		d.audit(audit.EventLiveError, map[string]any{
			"symbol":  in.Symbol,
			"account": in.AccountID,
			"intent":  in,
			"spec":    composed.Spec,
			"error":   err.Error(),
			"retries": retries,
		})
		metrics.Submission(string(Live), "broker_error")
		d.log.Error("live order failed",
			slog.String("symbol", in.Symbol),
			slog.Int("retries", retries),
			slog.String("error", err.Error()))
		return res, err
	}

	d.gate.Commit(decimal.Zero, in.IdempotencyKey)

	res.Status = StatusFilled
	res.Broker = &ack
	d.audit(audit.EventLiveSubmitted, map[string]any{
		"symbol":   in.Symbol,
		"account":  in.AccountID,
		"intent":   in,
		"spec":     composed.Spec,
		"order_id": ack.OrderID,
		"location": ack.Location,
		"retries":  retries,
	})
	metrics.Submission(string(Live), "filled")
	d.log.Info("live order submitted",
		slog.String("symbol", in.Symbol),
		slog.String("order_id", ack.OrderID))
	return res, nil
}

// audit writes one record, logging rather than failing the submission if
// the sink itself errors. The sink write happens before any return to the
// caller, so no decision goes unrecorded.
func (d *Dispatcher) audit(event string, payload map[string]any) {
	if d.sink == nil {
		return
	}
	if err := d.sink.Write(event, payload); err != nil {
		d.log.Error("audit write failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}
