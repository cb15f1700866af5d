package metrics

import (
	"sync/atomic"

	"dispatch_triage/incident"
)

// Metrics captures shared operational stats for classification, enrichment
// and the worker pool.
type Metrics struct {
	queueLength   int64
	queueCapacity int64
	workerCount   int64

	processedJobs int64
	failedJobs    int64

	classifications int64
	police          int64
	fire            int64
	medical         int64
	overrides       int64

	generativeAttempts  int64
	generativeSuccesses int64
	generativeFallbacks int64
	staleDrops          int64

	callsStarted   int64
	callsCompleted int64
}

// Snapshot provides a consistent view of the current metrics.
type Snapshot struct {
	QueueLength         int              `json:"queueLength"`
	QueueCapacity       int              `json:"queueCapacity"`
	WorkerCount         int              `json:"workerCount"`
	ProcessedJobs       int64            `json:"processedJobs"`
	FailedJobs          int64            `json:"failedJobs"`
	Classifications     int64            `json:"classifications"`
	ByCategory          map[string]int64 `json:"byCategory"`
	Overrides           int64            `json:"overrides"`
	GenerativeAttempts  int64            `json:"generativeAttempts"`
	GenerativeSuccesses int64            `json:"generativeSuccesses"`
	GenerativeFallbacks int64            `json:"generativeFallbacks"`
	StaleDrops          int64            `json:"staleDrops"`
	CallsStarted        int64            `json:"callsStarted"`
	CallsCompleted      int64            `json:"callsCompleted"`
}

// New creates a zeroed Metrics instance.
func New() *Metrics {
	return &Metrics{}
}

// UpdateQueue records the current queue stats.
func (m *Metrics) UpdateQueue(length, capacity, workers int) {
	atomic.StoreInt64(&m.queueLength, int64(length))
	atomic.StoreInt64(&m.queueCapacity, int64(capacity))
	atomic.StoreInt64(&m.workerCount, int64(workers))
}

// RecordJobCompletion increments processed/failed counters based on outcome.
func (m *Metrics) RecordJobCompletion(err error) {
	atomic.AddInt64(&m.processedJobs, 1)
	if err != nil {
		atomic.AddInt64(&m.failedJobs, 1)
	}
}

// RecordClassification counts one engine result.
func (m *Metrics) RecordClassification(a incident.Assessment, override bool) {
	atomic.AddInt64(&m.classifications, 1)
	switch a.Category {
	case incident.Police:
		atomic.AddInt64(&m.police, 1)
	case incident.Fire:
		atomic.AddInt64(&m.fire, 1)
	case incident.Medical:
		atomic.AddInt64(&m.medical, 1)
	}
	if override {
		atomic.AddInt64(&m.overrides, 1)
	}
}

// RecordGenerative counts a backend attempt and whether it produced a result.
func (m *Metrics) RecordGenerative(ok bool) {
	atomic.AddInt64(&m.generativeAttempts, 1)
	if ok {
		atomic.AddInt64(&m.generativeSuccesses, 1)
		return
	}
	atomic.AddInt64(&m.generativeFallbacks, 1)
}

// RecordStaleDrop counts an enrichment result discarded for an outdated sequence.
func (m *Metrics) RecordStaleDrop() {
	atomic.AddInt64(&m.staleDrops, 1)
}

// RecordCallStarted counts a call entering the queue.
func (m *Metrics) RecordCallStarted() {
	atomic.AddInt64(&m.callsStarted, 1)
}

// RecordCallCompleted counts a routed call.
func (m *Metrics) RecordCallCompleted() {
	atomic.AddInt64(&m.callsCompleted, 1)
}

// Snapshot returns a read-only view of metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		QueueLength:     int(atomic.LoadInt64(&m.queueLength)),
		QueueCapacity:   int(atomic.LoadInt64(&m.queueCapacity)),
		WorkerCount:     int(atomic.LoadInt64(&m.workerCount)),
		ProcessedJobs:   atomic.LoadInt64(&m.processedJobs),
		FailedJobs:      atomic.LoadInt64(&m.failedJobs),
		Classifications: atomic.LoadInt64(&m.classifications),
		ByCategory: map[string]int64{
			string(incident.Police):  atomic.LoadInt64(&m.police),
			string(incident.Fire):    atomic.LoadInt64(&m.fire),
			string(incident.Medical): atomic.LoadInt64(&m.medical),
		},
		Overrides:           atomic.LoadInt64(&m.overrides),
		GenerativeAttempts:  atomic.LoadInt64(&m.generativeAttempts),
		GenerativeSuccesses: atomic.LoadInt64(&m.generativeSuccesses),
		GenerativeFallbacks: atomic.LoadInt64(&m.generativeFallbacks),
		StaleDrops:          atomic.LoadInt64(&m.staleDrops),
		CallsStarted:        atomic.LoadInt64(&m.callsStarted),
		CallsCompleted:      atomic.LoadInt64(&m.callsCompleted),
	}
}
