package schedule

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tradewell/execution/order"
	"github.com/tradewell/execution/pkg/id"
)

var (
	// ErrNoAccount rejects a deferred order before any job is registered:
	// the fire-time submission cannot succeed without an account.
	ErrNoAccount = errors.New("account ID required for close scheduling")

	// ErrNotDeferred rejects intents that are not MOC/LOC.
	ErrNotDeferred = errors.New("order type is not MOC or LOC")
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusFired     Status = "FIRED"
	StatusCancelled Status = "CANCELLED"
)

// Job is one scheduled close submission. A job fires exactly once; fired
// and cancelled jobs are discarded, never re-armed.
type Job struct {
	ID      string
	FiresAt time.Time
	Intent  order.Intent

	mu     sync.Mutex
	status Status
	timer  *time.Timer
}

// Status returns the job's current lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// claim transitions PENDING -> to, reporting whether this caller won the
// transition. Firing and cancellation race through here, so whichever
// claims first wins and the loser is a no-op.
func (j *Job) claim(to Status) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPending {
		return false
	}
	j.status = to
	return true
}

// FireFunc receives the job when its timer elapses. It runs on the timer's
// own goroutine, so one job's submission never blocks another's.
type FireFunc func(*Job)

// Scheduler registers one-shot deferred jobs and fires each exactly once.
type Scheduler struct {
	log *slog.Logger
	now func() time.Time

	mu   sync.Mutex
	jobs map[string]*Job
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the scheduler's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates an empty Scheduler.
func New(log *slog.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		log:  log,
		now:  time.Now,
		jobs: make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleNearClose registers a job firing at the next valid close
// submission time for the given intent. Only MOC/LOC intents with an
// account ID are accepted.
func (s *Scheduler) ScheduleNearClose(in order.Intent, ct CloseTime, loc *time.Location, fire FireFunc) (*Job, error) {
	if in.Type != order.MOC && in.Type != order.LOC {
		return nil, fmt.Errorf("%w: got %q", ErrNotDeferred, in.Type)
	}
	if in.AccountID == "" {
		return nil, ErrNoAccount
	}
	if in.Type == order.LOC && in.LOCPrice == nil {
		return nil, fmt.Errorf("%w: LOC order has no locPrice", order.ErrInvalidIntent)
	}
	return s.ScheduleAt(in, NextClose(s.now(), ct, loc), fire), nil
}

// ScheduleAt registers a job firing at the given instant. The fire callback
// runs on its own goroutine when the timer elapses; a job whose Cancel won
// the race never fires.
func (s *Scheduler) ScheduleAt(in order.Intent, at time.Time, fire FireFunc) *Job {
	j := &Job{
		ID:      id.New(),
		FiresAt: at,
		Intent:  in,
		status:  StatusPending,
	}

	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()

	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	j.mu.Lock()
	j.timer = time.AfterFunc(delay, func() {
		if !j.claim(StatusFired) {
			return // cancelled first
		}
		s.log.Info("scheduled job firing",
			slog.String("job_id", j.ID),
			slog.String("symbol", j.Intent.Symbol),
			slog.String("type", string(j.Intent.Type)))
		fire(j)
		s.remove(j.ID)
	})
	j.mu.Unlock()

	s.log.Info("scheduled close submission",
		slog.String("job_id", j.ID),
		slog.Time("fires_at", at),
		slog.String("symbol", in.Symbol))
	return j
}

// Cancel stops a pending job. It reports false when the job is unknown,
// already fired, or firing concurrently; firing in progress wins over a
// late cancel.
func (s *Scheduler) Cancel(jobID string) bool {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	if !j.claim(StatusCancelled) {
		return false
	}
	j.mu.Lock()
	if j.timer != nil {
		j.timer.Stop()
	}
	j.mu.Unlock()
	s.remove(jobID)
	s.log.Info("scheduled job cancelled", slog.String("job_id", jobID))
	return true
}

// Pending returns the jobs still waiting to fire.
func (s *Scheduler) Pending() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

func (s *Scheduler) remove(jobID string) {
	s.mu.Lock()
	delete(s.jobs, jobID)
	s.mu.Unlock()
}
