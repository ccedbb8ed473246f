package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewell/execution/audit"
	"github.com/tradewell/execution/broker"
	"github.com/tradewell/execution/order"
	"github.com/tradewell/execution/risk"
	"github.com/tradewell/execution/schedule"
)

// stubBroker scripts a sequence of errors before succeeding.
type stubBroker struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	result broker.Result
}

func (b *stubBroker) Name() string { return "stub" }

func (b *stubBroker) PlaceOrder(_ context.Context, _ string, _ *order.Spec) (broker.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if len(b.errs) > 0 {
		err := b.errs[0]
		b.errs = b.errs[1:]
		return broker.Result{}, err
	}
	return b.result, nil
}

func (b *stubBroker) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func dp(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func limitIntent() order.Intent {
	return order.Intent{
		AccountID: "ACC-1",
		Symbol:    "AAPL",
		Type:      order.Limit,
		Price:     dp("101.50"),
		Legs:      []order.Leg{{Action: order.Buy, Asset: order.Stock, Quantity: 2}},
	}
}

type harness struct {
	d      *Dispatcher
	gate   *risk.Gate
	sched  *schedule.Scheduler
	client *stubBroker
	sink   *audit.MemorySink
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	cfg := Config{
		Mode:    Paper,
		Enabled: true,
		Retry:   RetryPolicy{Attempts: 3, Backoff: time.Millisecond},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{
		gate:   risk.NewGate(risk.StaticCaps(risk.DefaultCaps())),
		sched:  schedule.New(nil),
		client: &stubBroker{result: broker.Result{Status: 201, OrderID: "789"}},
		sink:   audit.NewMemorySink(),
	}
	h.d = New(cfg, h.gate, h.sched, h.client, h.sink, nil)
	return h
}

func TestSubmitPaperFill(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	res, err := h.d.Submit(context.Background(), limitIntent())
	require.NoError(t, err)

	assert.Equal(t, StatusFilled, res.Status)
	assert.True(t, res.FillPrice.Equal(decimal.RequireFromString("101.50")))
	require.NotNil(t, res.Spec)
	assert.Equal(t, "101.50", res.Spec.Price)
	assert.NotEmpty(t, res.ID)

	// Paper mode never touches the broker.
	assert.Equal(t, 0, h.client.callCount())
	assert.Equal(t, []string{audit.EventPaperFill}, h.sink.Events())
}

func TestSubmitPaperNeverCallsBrokerForAnyType(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	intents := []order.Intent{limitIntent()}
	market := limitIntent()
	market.Type = order.Market
	market.Price = nil
	intents = append(intents, market)
	bracket := limitIntent()
	bracket.Type = order.Bracket
	bracket.Attached = &order.Attached{Target: dp("110"), Stop: dp("95")}
	intents = append(intents, bracket)

	for _, in := range intents {
		_, err := h.d.Submit(context.Background(), in)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, h.client.callCount())
}

func TestSubmitRiskRejection(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	in := limitIntent()
	in.IdempotencyKey = "dup-key"

	res, err := h.d.Submit(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, StatusFilled, res.Status)

	res, err = h.d.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, risk.ReasonDuplicate, res.Reason)

	events := h.sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, audit.EventRiskRejected, events[1])
	// The exact reason code is audited verbatim.
	assert.Equal(t, "duplicate_order", h.sink.Records()[1].Payload["reason"])
}

func TestSubmitInvalidIntent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	in := limitIntent()
	in.Price = nil // LIMIT without a price

	res, err := h.d.Submit(context.Background(), in)
	assert.ErrorIs(t, err, order.ErrInvalidIntent)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, []string{audit.EventInvalid}, h.sink.Events())
	assert.Equal(t, 0, h.client.callCount())
}

func TestSubmitQuantityCap(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config) { cfg.MaxOrderQty = 5 })
	in := limitIntent()
	in.Legs[0].Quantity = 6

	_, err := h.d.Submit(context.Background(), in)
	assert.ErrorIs(t, err, order.ErrInvalidIntent)
}

func TestSubmitDisabledKillSwitch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config) { cfg.Enabled = false })

	res, err := h.d.Submit(context.Background(), limitIntent())
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, ReasonDisabled, res.Reason)
	// The composed preview is still returned.
	require.NotNil(t, res.Spec)
	assert.Equal(t, "101.50", res.Spec.Price)
	assert.Equal(t, []string{audit.EventDisabled}, h.sink.Events())
}

func TestSubmitLivePlacesOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config) { cfg.Mode = Live })

	res, err := h.d.Submit(context.Background(), limitIntent())
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, res.Status)
	require.NotNil(t, res.Broker)
	assert.Equal(t, "789", res.Broker.OrderID)
	assert.Equal(t, 1, h.client.callCount())
	assert.Equal(t, 0, res.Retries)
	assert.Equal(t, []string{audit.EventLiveSubmitted}, h.sink.Events())
}

func TestSubmitLiveRetriesTransient(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config) { cfg.Mode = Live })
	h.client.errs = []error{
		broker.Transient(503, "unavailable", nil),
		broker.Transient(503, "unavailable", nil),
	}

	res, err := h.d.Submit(context.Background(), limitIntent())
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, res.Status)
	assert.Equal(t, 2, res.Retries)
	assert.Equal(t, 3, h.client.callCount())
}

func TestSubmitLivePermanentFailsFast(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config) { cfg.Mode = Live })
	h.client.errs = []error{broker.Permanent(400, "validation failed", nil)}

	res, err := h.d.Submit(context.Background(), limitIntent())
	require.Error(t, err)
	assert.True(t, broker.IsPermanent(err))
	assert.Equal(t, StatusBrokerError, res.Status)
	assert.Equal(t, 0, res.Retries)
	assert.Equal(t, 1, h.client.callCount())
	assert.Equal(t, []string{audit.EventLiveError}, h.sink.Events())
}

func TestSubmitLiveExhaustsRetries(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config) { cfg.Mode = Live })
	h.client.errs = []error{
		broker.Transient(500, "boom", nil),
		broker.Transient(500, "boom", nil),
		broker.Transient(500, "boom", nil),
	}

	res, err := h.d.Submit(context.Background(), limitIntent())
	require.Error(t, err)
	assert.Equal(t, StatusBrokerError, res.Status)
	assert.Equal(t, 2, res.Retries)
	assert.Equal(t, 3, h.client.callCount())

	// A failed submission consumes no rate-limit slot or idempotency key:
	// the same submission passes once the broker recovers.
	res, err = h.d.Submit(context.Background(), limitIntent())
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, res.Status)
}

func TestSubmitLiveRequiresAccount(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *Config) { cfg.Mode = Live })
	in := limitIntent()
	in.AccountID = ""

	_, err := h.d.Submit(context.Background(), in)
	assert.ErrorIs(t, err, order.ErrInvalidIntent)
	assert.Equal(t, 0, h.client.callCount())
}

func TestSubmitMOCSchedules(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	in := limitIntent()
	in.Type = order.MOC
	in.Price = nil

	res, err := h.d.Submit(context.Background(), in)
	require.NoError(t, err)
	defer h.sched.Cancel(res.JobID)

	assert.Equal(t, StatusScheduled, res.Status)
	assert.NotEmpty(t, res.JobID)
	assert.False(t, res.FiresAt.IsZero())
	assert.NotEqual(t, time.Saturday, res.FiresAt.Weekday())
	assert.NotEqual(t, time.Sunday, res.FiresAt.Weekday())
	// No broker call, no fill yet.
	assert.Equal(t, 0, h.client.callCount())
	assert.Equal(t, []string{audit.EventCloseScheduled}, h.sink.Events())
}

func TestSubmitMOCWithoutAccountRejected(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	in := limitIntent()
	in.Type = order.MOC
	in.AccountID = ""

	res, err := h.d.Submit(context.Background(), in)
	assert.ErrorIs(t, err, schedule.ErrNoAccount)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Empty(t, h.sched.Pending())
}

func TestScheduledFireResubmitsThroughGate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	// Fire the close job directly through the dispatcher's callback, as the
	// timer would.
	px := decimal.RequireFromString("99.90")
	in := limitIntent()
	in.Type = order.LOC
	in.Price = nil
	in.LOCPrice = &px

	job := h.sched.ScheduleAt(in, time.Now().Add(time.Hour), func(*schedule.Job) {})
	require.True(t, h.sched.Cancel(job.ID))

	h.d.fireClose(job)

	events := h.sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, audit.EventCloseFired, events[0])
	assert.Equal(t, audit.EventPaperFill, events[1])

	// The fired submission resolved LOC to a LIMIT at locPrice.
	fill := h.sink.Records()[1]
	spec, ok := fill.Payload["spec"].(*order.Spec)
	require.True(t, ok)
	assert.Equal(t, order.Limit, spec.OrderType)
	assert.Equal(t, "99.90", spec.Price)
}

func TestScheduledFireFacesRiskGateAgain(t *testing.T) {
	t.Parallel()

	caps := risk.Caps{MaxOrdersPerHour: 1}
	h := newHarness(t, nil)
	h.gate = risk.NewGate(risk.StaticCaps(caps))
	h.d.gate = h.gate

	// Consume the only slot before the job fires.
	h.gate.Commit(decimal.Zero, "")

	in := limitIntent()
	in.Type = order.MOC
	job := h.sched.ScheduleAt(in, time.Now().Add(time.Hour), func(*schedule.Job) {})
	require.True(t, h.sched.Cancel(job.ID))

	h.d.fireClose(job)

	events := h.sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, audit.EventCloseFired, events[0])
	assert.Equal(t, audit.EventRiskRejected, events[1])
	assert.Equal(t, "order_rate_exceeded", h.sink.Records()[1].Payload["reason"])
}

func TestPreviewComposesWithoutSubmitting(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	composed, err := h.d.Preview(limitIntent())
	require.NoError(t, err)
	require.NotNil(t, composed.Spec)
	assert.Equal(t, order.Limit, composed.Spec.OrderType)

	assert.Equal(t, 0, h.client.callCount())
	assert.Equal(t, []string{audit.EventPreview}, h.sink.Events())
	// Preview does not consume risk capacity.
	assert.True(t, h.gate.DailyPnL().IsZero())
}

func TestSubmitEndToEndScheduledPaperFire(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	in := limitIntent()
	in.Type = order.MOC
	in.Price = nil

	// Submit schedules; then fire the pending job immediately through a
	// short-fuse rescheduled copy to exercise the timer path end to end.
	res, err := h.d.Submit(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, StatusScheduled, res.Status)
	require.True(t, h.sched.Cancel(res.JobID))

	done := make(chan struct{})
	h.sched.ScheduleAt(in, time.Now().Add(5*time.Millisecond), func(j *schedule.Job) {
		h.d.fireClose(j)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled job did not fire")
	}

	events := h.sink.Events()
	require.Len(t, events, 3)
	assert.Equal(t, audit.EventCloseScheduled, events[0])
	assert.Equal(t, audit.EventCloseFired, events[1])
	assert.Equal(t, audit.EventPaperFill, events[2])
}
