package work

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Schedule computes the next due instant strictly after a point in
// time. Both schedule kinds (fixed interval and calendar cron) are
// consumed through this single method.
type Schedule interface {
	Next(after time.Time) time.Time
}

// Every returns a fixed-interval schedule.
func Every(d time.Duration) Schedule {
	return cron.Every(d)
}

// Cron returns a calendar schedule from a standard 5-field cron
// expression.
func Cron(expr string) (Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// ParseSchedule accepts either a 5-field cron expression or an
// "@every <duration>" descriptor.
func ParseSchedule(spec string) (Schedule, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Enqueuer submits a job for execution. The return value reports
// whether the item was accepted.
type Enqueuer interface {
	Enqueue(jobType string, payload Payload) bool
}

// Entry is one scheduled job.
type Entry struct {
	Name     string
	Schedule Schedule
	Payload  Payload

	next time.Time
}

// Scheduler enqueues jobs when their schedule comes due. Each entry
// enqueues at most once per due instant; instants that pass while the
// process is down are not backfilled, because next-due times are
// seeded from wall-clock now at Start.
type Scheduler struct {
	pool    Enqueuer
	entries []*Entry
	tick    time.Duration
	log     zerolog.Logger

	// now is swappable for tests.
	now func() time.Time

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
	started bool
}

// NewScheduler creates a scheduler feeding the given pool.
func NewScheduler(pool Enqueuer, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		pool:    pool,
		tick:    time.Second,
		log:     log.With().Str("component", "scheduler").Logger(),
		now:     time.Now,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Add registers a scheduled job. spec is a cron expression or an
// "@every <duration>" descriptor. Must be called before Start.
func (s *Scheduler) Add(jobType string, spec string, payload Payload) error {
	sched, err := ParseSchedule(spec)
	if err != nil {
		return err
	}

	s.entries = append(s.entries, &Entry{
		Name:     jobType,
		Schedule: sched,
		Payload:  payload,
	})

	s.log.Info().
		Str("job", jobType).
		Str("schedule", spec).
		Msg("Registered scheduled job")

	return nil
}

// Start seeds next-due times from now and begins the ticking loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	now := s.now()
	for _, e := range s.entries {
		e.next = e.Schedule.Next(now)
	}
	s.mu.Unlock()

	go s.loop()
}

// Stop terminates the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	close(s.stop)
	<-s.stopped
}

func (s *Scheduler) loop() {
	defer close(s.stopped)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.checkDue(s.now())
		}
	}
}

// checkDue enqueues every entry whose next-due instant has arrived and
// advances it. Advancing before the next tick guarantees at most one
// enqueue per due instant even if ticks bunch up.
func (s *Scheduler) checkDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.next.After(now) {
			continue
		}

		if !s.pool.Enqueue(e.Name, e.Payload) {
			s.log.Error().Str("job", e.Name).Msg("Failed to enqueue scheduled job")
		} else {
			s.log.Debug().Str("job", e.Name).Time("due", e.next).Msg("Enqueued scheduled job")
		}

		e.next = e.Schedule.Next(now)
	}
}
