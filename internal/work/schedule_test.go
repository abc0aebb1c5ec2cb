package work

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureEnqueuer records every enqueue it receives.
type captureEnqueuer struct {
	mu       sync.Mutex
	calls    []string
	payloads []Payload
	accept   bool
}

func newCaptureEnqueuer() *captureEnqueuer {
	return &captureEnqueuer{accept: true}
}

func (e *captureEnqueuer) Enqueue(jobType string, payload Payload) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, jobType)
	e.payloads = append(e.payloads, payload)
	return e.accept
}

func (e *captureEnqueuer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func TestParseScheduleCron(t *testing.T) {
	sched, err := ParseSchedule("0 22 * * *")
	require.NoError(t, err)

	after := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)
	next := sched.Next(after)
	assert.Equal(t, time.Date(2026, 3, 2, 22, 0, 0, 0, time.Local), next)

	// Strictly after: asking from the due instant itself moves to the
	// next day.
	next = sched.Next(next)
	assert.Equal(t, time.Date(2026, 3, 3, 22, 0, 0, 0, time.Local), next)
}

func TestParseScheduleEvery(t *testing.T) {
	sched, err := ParseSchedule("@every 15m")
	require.NoError(t, err)

	after := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, after.Add(15*time.Minute), sched.Next(after))
}

func TestParseScheduleInvalid(t *testing.T) {
	_, err := ParseSchedule("not a schedule")
	assert.Error(t, err)

	_, err = ParseSchedule("* * * * * *")
	assert.Error(t, err)
}

func TestSchedulerEnqueuesOncePerDueInstant(t *testing.T) {
	pool := newCaptureEnqueuer()
	s := NewScheduler(pool, zerolog.Nop())
	require.NoError(t, s.Add(JobCleanupCache, "@every 1h", nil))

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	s.Start()
	defer s.Stop()

	due := base.Add(time.Hour)

	// Several ticks land on the same due instant; only the first
	// enqueues because next is advanced immediately.
	s.checkDue(due)
	s.checkDue(due)
	s.checkDue(due.Add(time.Second))
	assert.Equal(t, 1, pool.count())

	// The following due instant enqueues again.
	s.checkDue(due.Add(time.Hour))
	assert.Equal(t, 2, pool.count())
}

func TestSchedulerDoesNotBackfillMissedRuns(t *testing.T) {
	pool := newCaptureEnqueuer()
	s := NewScheduler(pool, zerolog.Nop())
	require.NoError(t, s.Add(JobCollectMarketData, "@every 1h", nil))

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	s.Start()
	defer s.Stop()

	// Three schedule periods pass in one gap; a single run fires, not
	// three.
	s.checkDue(base.Add(3 * time.Hour))
	assert.Equal(t, 1, pool.count())
}

func TestSchedulerNotDueYet(t *testing.T) {
	pool := newCaptureEnqueuer()
	s := NewScheduler(pool, zerolog.Nop())
	require.NoError(t, s.Add(JobCleanupCache, "@every 1h", nil))

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	s.Start()
	defer s.Stop()

	s.checkDue(base.Add(30 * time.Minute))
	assert.Equal(t, 0, pool.count())
}

func TestSchedulerAddInvalidSpec(t *testing.T) {
	s := NewScheduler(newCaptureEnqueuer(), zerolog.Nop())
	assert.Error(t, s.Add(JobCleanupCache, "whenever", nil))
}
