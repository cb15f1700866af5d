// Package session drives live calls: every fragment is classified at once and
// the generative refinement is scheduled behind a debounce.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"dispatch_triage/config"
	"dispatch_triage/formatting"
	"dispatch_triage/generative"
	"dispatch_triage/incident"
	"dispatch_triage/internal/dispatch"
	"dispatch_triage/queue"
	"dispatch_triage/triage"
)

// Resolver refines an engine assessment. *generative.Adapter implements it.
type Resolver interface {
	Resolve(ctx context.Context, transcript string, base incident.Assessment) generative.Result
}

// Enqueuer schedules background work. *queue.Queue implements it.
type Enqueuer interface {
	Enqueue(j queue.Job) bool
	EnqueueWithRetry(ctx context.Context, j queue.Job, window, interval time.Duration) (bool, bool)
}

const (
	alertRetryWindow   = 500 * time.Millisecond
	alertRetryInterval = 50 * time.Millisecond
)

// Notifier delivers High-priority alerts.
type Notifier interface {
	Notify(ctx context.Context, alert formatting.IncidentAlert) error
}

// Recorder receives session counters. *metrics.Metrics implements it.
type Recorder interface {
	RecordClassification(a incident.Assessment, override bool)
	RecordStaleDrop()
	RecordCallStarted()
	RecordCallCompleted()
}

type noopRecorder struct{}

func (noopRecorder) RecordClassification(incident.Assessment, bool) {}
func (noopRecorder) RecordStaleDrop()                               {}
func (noopRecorder) RecordCallStarted()                             {}
func (noopRecorder) RecordCallCompleted()                           {}

// Options wires a Manager. Engine and Calls are required; a nil Resolver or
// Jobs disables enrichment and alerts.
type Options struct {
	Engine   *triage.Engine
	Calls    *dispatch.CallQueue
	Resolver Resolver
	Jobs     Enqueuer
	Notifier Notifier
	Metrics  Recorder
	Debounce config.DebounceConfig
	Logger   *slog.Logger
	Now      func() time.Time
}

type callState struct {
	timer       *time.Timer
	enrichedLen int
	alerted     bool
}

// Manager owns per-call debounce state.
type Manager struct {
	opts Options
	seq  *generative.Sequence

	appendMu sync.Mutex

	mu     sync.Mutex
	states map[string]*callState
}

// NewManager builds a manager.
func NewManager(opts Options) *Manager {
	if opts.Metrics == nil {
		opts.Metrics = noopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{opts: opts, seq: generative.NewSequence(), states: make(map[string]*callState)}
}

// Calls exposes the underlying call queue.
func (m *Manager) Calls() *dispatch.CallQueue { return m.opts.Calls }

// Start opens a new call.
func (m *Manager) Start(callerID string) dispatch.Call {
	c := m.opts.Calls.Start(callerID)
	m.opts.Metrics.RecordCallStarted()
	m.opts.Logger.Info("call started", "call", c.ID, "caller", c.CallerID)
	return c
}

// Append adds a transcript fragment, re-classifies the whole transcript and
// schedules enrichment. Blank fragments leave the call unchanged.
func (m *Manager) Append(ctx context.Context, callID, fragment string) (dispatch.Call, error) {
	m.appendMu.Lock()
	defer m.appendMu.Unlock()

	call, err := m.opts.Calls.Get(callID)
	if err != nil {
		return dispatch.Call{}, err
	}
	if call.Status != dispatch.StatusInProgress {
		return dispatch.Call{}, fmt.Errorf("append to %s: %w", callID, dispatch.ErrNotFound)
	}
	text := formatting.CleanFragment(fragment)
	if text == "" {
		return call, nil
	}
	now := m.opts.Now()
	entries := append(call.Transcript, formatting.TranscriptEntry{Timestamp: now, Text: text})
	call.Transcript = entries
	joined := call.Text()

	base := m.opts.Engine.Classify(joined)
	m.opts.Metrics.RecordClassification(base, triage.IsNonEmergency(base))
	res := generative.EngineResult(joined, base, now)

	// Any enrichment still running was computed on a shorter transcript.
	m.seq.Next(callID)
	updated, err := m.opts.Calls.Update(callID, updateFor(res, entries))
	if err != nil {
		return dispatch.Call{}, err
	}
	m.opts.Logger.Debug("fragment classified", "call", callID, "category", base.Category, "priority", base.Priority)
	m.maybeAlert(ctx, updated)
	m.schedule(callID, joined)
	return updated, nil
}

// Route completes a call and drops its pending enrichment.
func (m *Manager) Route(ctx context.Context, callID string) (dispatch.Call, error) {
	m.forget(callID)
	c, err := m.opts.Calls.Route(ctx, callID)
	if err != nil {
		return dispatch.Call{}, err
	}
	m.opts.Metrics.RecordCallCompleted()
	m.opts.Logger.Info("call routed", "call", callID, "dispatch_time", c.DispatchTime)
	return c, nil
}

// Clear drops every call and pending timer.
func (m *Manager) Clear() {
	m.mu.Lock()
	for id, st := range m.states {
		if st.timer != nil {
			st.timer.Stop()
		}
		m.seq.Forget(id)
	}
	m.states = make(map[string]*callState)
	m.mu.Unlock()
	m.opts.Calls.Clear()
}

// Close stops pending debounce timers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.states {
		if st.timer != nil {
			st.timer.Stop()
		}
	}
}

// Classify is the stateless path used by the API and CLI.
func (m *Manager) Classify(ctx context.Context, transcript string, enrich bool) generative.Result {
	base := m.opts.Engine.Classify(transcript)
	m.opts.Metrics.RecordClassification(base, triage.IsNonEmergency(base))
	if enrich && m.opts.Resolver != nil {
		return m.opts.Resolver.Resolve(ctx, transcript, base)
	}
	return generative.EngineResult(transcript, base, m.opts.Now())
}

// Ingest turns a whole transcript file into a call, one fragment per line.
func (m *Manager) Ingest(ctx context.Context, name, text string) (dispatch.Call, error) {
	c := m.Start("")
	for _, line := range strings.Split(text, "\n") {
		updated, err := m.Append(ctx, c.ID, line)
		if err != nil {
			return dispatch.Call{}, err
		}
		c = updated
	}
	m.opts.Logger.Info("transcript ingested", "file", name, "call", c.ID, "priority", c.Assessment.Priority)
	return c, nil
}

// Report builds the export for a call.
func (m *Manager) Report(callID string) (formatting.Report, error) {
	c, err := m.opts.Calls.Get(callID)
	if err != nil {
		return formatting.Report{}, err
	}
	return formatting.NewReport(m.opts.Now(), c.Transcript, c.Assessment, c.UrgentBrief, c.Summary, c.Questions), nil
}

// schedule arms the debounce timer once the transcript is long enough and has
// grown enough since the last enrichment.
func (m *Manager) schedule(callID, transcript string) {
	if m.opts.Resolver == nil || m.opts.Jobs == nil {
		return
	}
	d := m.opts.Debounce
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state(callID)
	if len(transcript) < d.MinChars || len(transcript)-st.enrichedLen < d.MinGrowth {
		return
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(d.Quiet(), func() { m.enqueueEnrichment(callID) })
}

func (m *Manager) enqueueEnrichment(callID string) {
	m.appendMu.Lock()
	call, err := m.opts.Calls.Get(callID)
	if err != nil || call.Status != dispatch.StatusInProgress {
		m.appendMu.Unlock()
		return
	}
	transcript := call.Text()
	n := m.seq.Next(callID)
	m.appendMu.Unlock()

	m.mu.Lock()
	st := m.state(callID)
	st.enrichedLen = len(transcript)
	st.timer = nil
	m.mu.Unlock()

	ok := m.opts.Jobs.Enqueue(queue.Job{
		ID:   fmt.Sprintf("%s#%d", callID, n),
		Kind: queue.KindEnrich,
		Run: func(ctx context.Context) error {
			m.enrich(ctx, callID, n, transcript)
			return nil
		},
	})
	if !ok {
		m.opts.Logger.Warn("enrichment not queued", "call", callID)
	}
}

// enrich runs the resolver and applies its result unless a fragment arrived
// or a newer enrichment was scheduled meanwhile. It reports whether the call
// was updated.
func (m *Manager) enrich(ctx context.Context, callID string, n uint64, transcript string) bool {
	base := m.opts.Engine.Classify(transcript)
	res := m.opts.Resolver.Resolve(ctx, transcript, base)
	if res.Source != generative.SourceGenerative {
		return false
	}
	updated, ok := m.applyEnrichment(callID, n, res)
	if !ok {
		m.opts.Metrics.RecordStaleDrop()
		m.opts.Logger.Debug("stale enrichment dropped", "call", callID, "seq", n)
		return false
	}
	m.maybeAlert(ctx, updated)
	return true
}

// applyEnrichment holds appendMu so no fragment can be rendered between the
// sequence check and the update.
func (m *Manager) applyEnrichment(callID string, n uint64, res generative.Result) (dispatch.Call, bool) {
	m.appendMu.Lock()
	defer m.appendMu.Unlock()
	if !m.seq.IsCurrent(callID, n) {
		return dispatch.Call{}, false
	}
	updated, err := m.opts.Calls.Update(callID, updateFor(res, nil))
	if err != nil {
		return dispatch.Call{}, false
	}
	return updated, true
}

func (m *Manager) maybeAlert(ctx context.Context, c dispatch.Call) {
	if m.opts.Notifier == nil || m.opts.Jobs == nil || c.Assessment.Priority != incident.High {
		return
	}
	m.mu.Lock()
	st := m.state(c.ID)
	already := st.alerted
	st.alerted = true
	m.mu.Unlock()
	if already {
		return
	}
	alert := formatting.IncidentAlert{
		CallID:     c.ID,
		CallerID:   c.CallerID,
		Assessment: c.Assessment,
		Brief:      c.UrgentBrief,
		Where:      c.Summary.Where,
		Timestamp:  m.opts.Now(),
	}
	job := queue.Job{
		ID:   c.ID + "#alert",
		Kind: queue.KindAlert,
		Run: func(ctx context.Context) error {
			return m.opts.Notifier.Notify(ctx, alert)
		},
	}
	if ok, full := m.opts.Jobs.EnqueueWithRetry(ctx, job, alertRetryWindow, alertRetryInterval); !ok {
		m.opts.Logger.Warn("alert dropped", "call", c.ID, "queue_full", full)
	}
}

func (m *Manager) forget(callID string) {
	m.mu.Lock()
	if st, ok := m.states[callID]; ok && st.timer != nil {
		st.timer.Stop()
	}
	delete(m.states, callID)
	m.mu.Unlock()
	m.seq.Forget(callID)
}

// state must be called with m.mu held.
func (m *Manager) state(callID string) *callState {
	st, ok := m.states[callID]
	if !ok {
		st = &callState{}
		m.states[callID] = st
	}
	return st
}

func updateFor(res generative.Result, entries []formatting.TranscriptEntry) dispatch.Update {
	summary := res.Narrative.Summary
	return dispatch.Update{
		Transcript:  entries,
		Assessment:  &res.Assessment,
		UrgentBrief: res.Narrative.UrgentBrief,
		Summary:     &summary,
		Questions:   res.Narrative.Questions,
		Source:      res.Source.String(),
	}
}
