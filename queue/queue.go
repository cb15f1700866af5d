// Package queue runs call enrichment and alert delivery on a bounded,
// fixed-size worker pool. Producers never block for long: a full queue drops
// the job and counts it against its kind.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Kind names what a job does. Counters are kept per kind.
type Kind string

const (
	KindEnrich Kind = "enrich"
	KindAlert  Kind = "alert"
)

// Job is one unit of background work.
type Job struct {
	ID   string
	Kind Kind
	Run  func(context.Context) error
}

// KindStats counts outcomes for one job kind.
type KindStats struct {
	Done    uint64 `json:"done"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Length      int                `json:"length"`
	Capacity    int                `json:"capacity"`
	WorkerCount int                `json:"workerCount"`
	Processed   uint64             `json:"processed"`
	Failed      uint64             `json:"failed"`
	Dropped     uint64             `json:"dropped"`
	Kinds       map[Kind]KindStats `json:"kinds"`
}

// Option customizes a Queue.
type Option func(*Queue)

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithCompletionHook is called after every job, success or failure.
func WithCompletionHook(fn func(error)) Option {
	return func(q *Queue) { q.onComplete = fn }
}

const minRetryInterval = 10 * time.Millisecond

type runState int

const (
	idle runState = iota
	running
	stopped
)

// Queue is a bounded job channel drained by a fixed number of workers.
type Queue struct {
	jobs       chan Job
	workers    int
	timeout    time.Duration
	logger     *slog.Logger
	onComplete func(error)
	wg         sync.WaitGroup

	mu    sync.RWMutex
	state runState

	countMu sync.Mutex
	kinds   map[Kind]*KindStats
}

// New creates a queue holding up to capacity pending jobs, each run with the
// given timeout.
func New(capacity, workers int, timeout time.Duration, opts ...Option) *Queue {
	q := &Queue{
		jobs:    make(chan Job, capacity),
		workers: workers,
		timeout: timeout,
		logger:  slog.Default(),
		kinds:   make(map[Kind]*KindStats),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the workers. Later calls are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != idle {
		return
	}
	q.state = running
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
}

// Enqueue offers a job without waiting. It reports false when the queue is
// full or not running.
func (q *Queue) Enqueue(j Job) bool {
	ok, full := q.offer(j)
	if !ok {
		q.drop(j, full)
	}
	return ok
}

// EnqueueWithRetry keeps offering j every interval until window elapses or ctx
// ends. It returns (enqueued, droppedFull); droppedFull is true only when the
// job was given up on because the queue stayed full.
func (q *Queue) EnqueueWithRetry(ctx context.Context, j Job, window, interval time.Duration) (bool, bool) {
	ok, full := q.offer(j)
	if ok || !full {
		if !ok {
			q.drop(j, false)
		}
		return ok, false
	}
	if interval <= 0 {
		interval = minRetryInterval
	}
	deadline := time.NewTimer(window)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			q.drop(j, false)
			return false, false
		case <-deadline.C:
			q.drop(j, true)
			return false, true
		case <-tick.C:
			if ok, full = q.offer(j); ok {
				return true, false
			}
			if !full {
				q.drop(j, false)
				return false, false
			}
		}
	}
}

// offer reports whether j was queued and, if not, whether the reason was a
// full channel.
func (q *Queue) offer(j Job) (ok, full bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.state != running {
		return false, false
	}
	select {
	case q.jobs <- j:
		return true, false
	default:
		return false, true
	}
}

func (q *Queue) drop(j Job, full bool) {
	q.count(j.Kind, func(s *KindStats) { s.Dropped++ })
	if full {
		q.logger.Warn("job queue full, dropping job", "job", j.ID, "kind", j.Kind)
		return
	}
	q.logger.Warn("job rejected, queue not running", "job", j.ID, "kind", j.Kind)
}

// Stop closes the queue to new jobs and waits for queued ones to finish, or
// for ctx to end.
func (q *Queue) Stop(ctx context.Context) {
	q.mu.Lock()
	if q.state != running {
		q.mu.Unlock()
		return
	}
	q.state = stopped
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Healthy reports whether the workers are running.
func (q *Queue) Healthy() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.state == running
}

// Stats returns queue depth and per-kind outcome counters.
func (q *Queue) Stats() Stats {
	st := Stats{
		Length:      len(q.jobs),
		Capacity:    cap(q.jobs),
		WorkerCount: q.workers,
		Kinds:       make(map[Kind]KindStats),
	}
	q.countMu.Lock()
	defer q.countMu.Unlock()
	for k, s := range q.kinds {
		st.Kinds[k] = *s
		st.Processed += s.Done + s.Failed
		st.Failed += s.Failed
		st.Dropped += s.Dropped
	}
	return st
}

func (q *Queue) count(k Kind, fn func(*KindStats)) {
	q.countMu.Lock()
	defer q.countMu.Unlock()
	s, ok := q.kinds[k]
	if !ok {
		s = &KindStats{}
		q.kinds[k] = s
	}
	fn(s)
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q.jobs:
			if !ok {
				return
			}
			q.run(ctx, j)
		}
	}
}

func (q *Queue) run(ctx context.Context, j Job) {
	start := time.Now()
	err := q.call(ctx, j)
	if err != nil {
		q.count(j.Kind, func(s *KindStats) { s.Failed++ })
		q.logger.Warn("job failed", "kind", j.Kind, "job", j.ID, "duration_ms", time.Since(start).Milliseconds(), "error", err)
	} else {
		q.count(j.Kind, func(s *KindStats) { s.Done++ })
		q.logger.Debug("job done", "kind", j.Kind, "job", j.ID, "duration_ms", time.Since(start).Milliseconds())
	}
	if q.onComplete != nil {
		q.onComplete(err)
	}
}

// call runs j under the per-job timeout and turns a panic into an error.
func (q *Queue) call(ctx context.Context, j Job) (err error) {
	jobCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.ID, r)
		}
	}()
	return j.Run(jobCtx)
}
