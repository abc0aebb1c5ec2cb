package work

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Pool defaults.
const (
	DefaultWorkers    = 4
	DefaultJobTimeout = 30 * time.Minute
	DefaultMaxRetries = 3
	DefaultBackoff    = time.Minute

	// maxBackoff caps exponential growth of the retry delay.
	maxBackoff = 30 * time.Minute

	// reentryDelay is how long a deferred non-reentrant run waits
	// before trying again. Deferral does not consume an attempt.
	reentryDelay = 2 * time.Second

	queueCapacity = 256
)

// PoolConfig configures the worker pool. Zero values fall back to the
// defaults above.
type PoolConfig struct {
	Workers    int
	JobTimeout time.Duration
	MaxRetries int // retries after the first attempt; total attempts = MaxRetries+1
	Backoff    time.Duration
}

// Pool is a bounded worker pool consuming an internal queue. Each run
// executes under a wall-clock timeout; transient failures are
// re-enqueued with exponential backoff up to the retry budget.
type Pool struct {
	registry *Registry
	cfg      PoolConfig
	queue    chan *Item
	log      zerolog.Logger

	mu          sync.Mutex
	inFlight    map[string]bool // job names of running non-reentrant jobs
	lastResults map[string]Result

	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewPool creates a worker pool over the given registry.
func NewPool(registry *Registry, cfg PoolConfig, log zerolog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}

	return &Pool{
		registry:    registry,
		cfg:         cfg,
		queue:       make(chan *Item, queueCapacity),
		log:         log.With().Str("component", "worker_pool").Logger(),
		inFlight:    make(map[string]bool),
		lastResults: make(map[string]Result),
		stop:        make(chan struct{}),
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.log.Info().Int("workers", p.cfg.Workers).Msg("Worker pool started")
}

// Stop signals the workers and waits for in-flight runs to finish.
// Queued items are abandoned; schedules re-enqueue on the next start.
func (p *Pool) Stop() {
	close(p.stop)
	p.wg.Wait()
}

// Enqueue submits a job by type name. Returns false for unknown job
// types or when the queue is full.
func (p *Pool) Enqueue(jobType string, payload Payload) bool {
	if !p.registry.Has(jobType) {
		p.log.Warn().Str("job", jobType).Msg("Refusing to enqueue unknown job type")
		return false
	}

	return p.submit(&Item{
		ID:         uuid.NewString(),
		Type:       jobType,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	})
}

// LastResult returns the most recent result for a job name.
func (p *Pool) LastResult(jobType string) (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res, ok := p.lastResults[jobType]
	return res, ok
}

func (p *Pool) submit(item *Item) bool {
	select {
	case p.queue <- item:
		return true
	default:
		p.log.Error().Str("job", item.Type).Msg("Queue full, dropping item")
		return false
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			return
		case item := <-p.queue:
			p.process(item)
		}
	}
}

func (p *Pool) process(item *Item) {
	jt := p.registry.Get(item.Type)
	if jt == nil {
		p.log.Error().Str("job", item.Type).Msg("Job type vanished from registry")
		return
	}

	if jt.NonReentrant && !p.tryAcquire(jt.Name) {
		// An instance is in flight; defer without consuming an attempt.
		p.requeueAfter(item, reentryDelay)
		return
	}

	timeout := p.cfg.JobTimeout
	if jt.Timeout > 0 {
		timeout = jt.Timeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	start := time.Now()
	counts, err := jt.Execute(ctx, item.Payload)
	cancel()

	if jt.NonReentrant {
		p.release(jt.Name)
	}

	item.Attempts++

	res := Result{
		Job:      jt.Name,
		ItemID:   item.ID,
		Counts:   counts,
		Err:      err,
		Attempt:  item.Attempts,
		Duration: time.Since(start),
		EndedAt:  time.Now(),
	}
	if err != nil {
		res.Error = err.Error()
	}
	p.record(res)

	if err == nil {
		p.log.Info().
			Str("job", jt.Name).
			Int("attempt", item.Attempts).
			Dur("duration", res.Duration).
			Interface("counts", counts).
			Msg("Job completed")
		return
	}

	if IsRetryable(err) && item.Attempts <= p.cfg.MaxRetries {
		delay := p.backoffDelay(item.Attempts)
		p.log.Warn().
			Err(err).
			Str("job", jt.Name).
			Int("attempt", item.Attempts).
			Dur("retry_in", delay).
			Msg("Job failed, will retry")
		p.requeueAfter(item, delay)
		return
	}

	p.log.Error().
		Err(err).
		Str("job", jt.Name).
		Int("attempts", item.Attempts).
		Bool("retryable", IsRetryable(err)).
		Interface("counts", counts).
		Msg("Job failed permanently")
}

// backoffDelay doubles the base delay per completed attempt, capped.
func (p *Pool) backoffDelay(attempts int) time.Duration {
	delay := p.cfg.Backoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// requeueAfter re-submits an item after a delay, unless the pool is
// stopping.
func (p *Pool) requeueAfter(item *Item, delay time.Duration) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		select {
		case <-p.stop:
		case <-time.After(delay):
			p.submit(item)
		}
	}()
}

func (p *Pool) tryAcquire(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inFlight[name] {
		return false
	}
	p.inFlight[name] = true
	return true
}

func (p *Pool) release(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.inFlight, name)
}

func (p *Pool) record(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastResults[res.Job] = res
}
