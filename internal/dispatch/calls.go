// Package dispatch tracks calls from first fragment to routing.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dispatch_triage/formatting"
	"dispatch_triage/incident"
	"dispatch_triage/internal/events"
	"dispatch_triage/internal/store"
	"dispatch_triage/reference"
)

// ErrNotFound is returned for unknown or already purged call ids.
var ErrNotFound = errors.New("call not found")

// Status is the lifecycle state of a call.
type Status string

const (
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

const (
	defaultBrief    = "No brief available"
	outcomeResolved = "Resolved"
)

var callerPrefixes = []string{"CALL", "EMRG", "DISP", "URGT"}

// Call is one tracked emergency call.
type Call struct {
	ID              string                       `json:"id"`
	CallerID        string                       `json:"callerId"`
	Status          Status                       `json:"status"`
	StartTime       time.Time                    `json:"startTime"`
	EndTime         *time.Time                   `json:"endTime,omitempty"`
	Transcript      []formatting.TranscriptEntry `json:"transcript"`
	UrgentBrief     string                       `json:"urgentBrief"`
	Summary         formatting.Summary           `json:"summary"`
	Questions       []string                     `json:"questions,omitempty"`
	Assessment      incident.Assessment          `json:"classification"`
	Source          string                       `json:"source,omitempty"`
	DispatchSeconds int                          `json:"dispatchSeconds"`
	DispatchTime    string                       `json:"dispatchTime"`
	Outcome         string                       `json:"outcome,omitempty"`
}

// Text joins the transcript fragments.
func (c Call) Text() string {
	parts := make([]string, 0, len(c.Transcript))
	for _, e := range c.Transcript {
		parts = append(parts, e.Text)
	}
	return formatting.JoinFragments(parts)
}

func (c Call) clone() Call {
	out := c
	out.Transcript = append([]formatting.TranscriptEntry(nil), c.Transcript...)
	out.Questions = append([]string(nil), c.Questions...)
	out.Assessment = c.Assessment.Clone()
	if c.EndTime != nil {
		t := *c.EndTime
		out.EndTime = &t
	}
	return out
}

// Update carries replacement values; zero fields leave the call unchanged.
type Update struct {
	Transcript  []formatting.TranscriptEntry
	Assessment  *incident.Assessment
	UrgentBrief string
	Summary     *formatting.Summary
	Questions   []string
	Source      string
}

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(events.Event)
}

// Archive persists routed calls.
type Archive interface {
	SaveCall(ctx context.Context, c store.CallRecord) error
}

// Options configure a CallQueue. Zero values select defaults.
type Options struct {
	HistoryLimit int
	Retention    time.Duration
	Rand         reference.Rand
	Now          func() time.Time
	Events       Publisher
	Archive      Archive
	Logger       *slog.Logger
}

// CallQueue holds active calls and a capped history of completed ones.
type CallQueue struct {
	mu        sync.RWMutex
	active    map[string]*Call
	completed []Call
	opts      Options
}

// NewCallQueue builds an empty queue.
func NewCallQueue(opts Options) *CallQueue {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	if opts.Rand == nil {
		opts.Rand = reference.GlobalRand()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &CallQueue{active: make(map[string]*Call), opts: opts}
}

// GenerateCallerID returns an id such as "EMRG-0042".
func GenerateCallerID(rnd reference.Rand) string {
	prefix := callerPrefixes[rnd.IntN(len(callerPrefixes))]
	return fmt.Sprintf("%s-%04d", prefix, rnd.IntN(9999))
}

// FormatDispatchTime renders seconds as mm:ss.
func FormatDispatchTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// Start opens a call. An empty callerID gets a generated one.
func (q *CallQueue) Start(callerID string) Call {
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		callerID = GenerateCallerID(q.opts.Rand)
	}
	c := &Call{
		ID:          uuid.NewString(),
		CallerID:    callerID,
		Status:      StatusInProgress,
		StartTime:   q.opts.Now(),
		Transcript:  []formatting.TranscriptEntry{},
		UrgentBrief: defaultBrief,
		Assessment: incident.Assessment{
			Category: incident.Police,
			Priority: incident.Low,
			Severity: incident.SeverityFor(incident.Low),
			Keywords: []incident.Keyword{},
			Routing:  []string{},
		},
		DispatchTime: FormatDispatchTime(0),
	}
	q.mu.Lock()
	q.active[c.ID] = c
	snap := c.clone()
	q.mu.Unlock()

	q.publish(events.CallStarted, snap)
	return snap
}

// Update applies u to an active call.
func (q *CallQueue) Update(id string, u Update) (Call, error) {
	q.mu.Lock()
	c, ok := q.active[id]
	if !ok {
		q.mu.Unlock()
		return Call{}, ErrNotFound
	}
	if u.Transcript != nil {
		c.Transcript = append([]formatting.TranscriptEntry(nil), u.Transcript...)
	}
	if u.Assessment != nil {
		c.Assessment = u.Assessment.Clone()
	}
	if u.UrgentBrief != "" {
		c.UrgentBrief = u.UrgentBrief
	}
	if u.Summary != nil {
		c.Summary = *u.Summary
	}
	if u.Questions != nil {
		c.Questions = append([]string(nil), u.Questions...)
	}
	if u.Source != "" {
		c.Source = u.Source
	}
	snap := q.withElapsed(*c)
	q.mu.Unlock()

	q.publish(events.CallUpdated, snap)
	return snap, nil
}

// Route completes a call: it stamps the end time and dispatch time, moves the
// call to the front of the history and archives it.
func (q *CallQueue) Route(ctx context.Context, id string) (Call, error) {
	q.mu.Lock()
	c, ok := q.active[id]
	if !ok {
		q.mu.Unlock()
		return Call{}, ErrNotFound
	}
	delete(q.active, id)
	end := q.opts.Now()
	c.EndTime = &end
	c.Status = StatusCompleted
	c.DispatchSeconds = int(end.Sub(c.StartTime) / time.Second)
	c.DispatchTime = FormatDispatchTime(c.DispatchSeconds)
	c.Outcome = outcomeResolved
	q.completed = append([]Call{*c}, q.completed...)
	if len(q.completed) > q.opts.HistoryLimit {
		q.completed = q.completed[:q.opts.HistoryLimit]
	}
	snap := c.clone()
	q.mu.Unlock()

	if q.opts.Archive != nil {
		rec, err := ToRecord(snap)
		if err == nil {
			err = q.opts.Archive.SaveCall(ctx, rec)
		}
		if err != nil {
			q.opts.Logger.Warn("archive call failed", "call", id, "error", err)
		}
	}
	q.publish(events.CallRouted, snap)
	return snap, nil
}

// Get returns an active or completed call.
func (q *CallQueue) Get(id string) (Call, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if c, ok := q.active[id]; ok {
		return q.withElapsed(*c), nil
	}
	for _, c := range q.completed {
		if c.ID == id {
			return c.clone(), nil
		}
	}
	return Call{}, ErrNotFound
}

// Active lists in-progress calls, High first, oldest first within a tier.
func (q *CallQueue) Active() []Call {
	q.mu.RLock()
	out := make([]Call, 0, len(q.active))
	for _, c := range q.active {
		out = append(out, q.withElapsed(*c))
	}
	q.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Assessment.Priority.Rank(), out[j].Assessment.Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Completed lists routed calls, most recent first.
func (q *CallQueue) Completed() []Call {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]Call, 0, len(q.completed))
	for _, c := range q.completed {
		out = append(out, c.clone())
	}
	return out
}

// Clear drops every active and completed call.
func (q *CallQueue) Clear() {
	q.mu.Lock()
	q.active = make(map[string]*Call)
	q.completed = nil
	q.mu.Unlock()
	q.publish(events.CallsCleared, nil)
}

// Purge drops completed calls that ended longer ago than the retention window.
// It returns the number removed; a zero retention keeps everything.
func (q *CallQueue) Purge() int {
	if q.opts.Retention <= 0 {
		return 0
	}
	cutoff := q.opts.Now().Add(-q.opts.Retention)
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.completed[:0]
	removed := 0
	for _, c := range q.completed {
		if c.EndTime != nil && c.EndTime.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	q.completed = kept
	return removed
}

// ToRecord flattens a call for storage.
func ToRecord(c Call) (store.CallRecord, error) {
	raw, err := json.Marshal(c.Assessment)
	if err != nil {
		return store.CallRecord{}, fmt.Errorf("encode assessment: %w", err)
	}
	return store.CallRecord{
		CallID:           c.ID,
		CallerID:         c.CallerID,
		Status:           string(c.Status),
		Category:         string(c.Assessment.Category),
		Priority:         string(c.Assessment.Priority),
		Severity:         c.Assessment.Severity,
		Confidence:       c.Assessment.Confidence,
		StandardizedCode: c.Assessment.StandardizedCode,
		UrgentBrief:      c.UrgentBrief,
		Source:           c.Source,
		Transcript:       formatting.FormatTranscript(c.Transcript),
		AssessmentJSON:   string(raw),
		StartedAt:        c.StartTime,
		EndedAt:          c.EndTime,
		DispatchSeconds:  c.DispatchSeconds,
		Outcome:          c.Outcome,
	}, nil
}

// withElapsed snapshots an active call with its live dispatch timer.
func (q *CallQueue) withElapsed(c Call) Call {
	out := c.clone()
	if out.Status == StatusInProgress {
		out.DispatchSeconds = int(q.opts.Now().Sub(out.StartTime) / time.Second)
		out.DispatchTime = FormatDispatchTime(out.DispatchSeconds)
	}
	return out
}

func (q *CallQueue) publish(typ string, c any) {
	if q.opts.Events == nil {
		return
	}
	callID := ""
	if call, ok := c.(Call); ok {
		callID = call.ID
	}
	q.opts.Events.Publish(events.New(typ, callID, c))
}
