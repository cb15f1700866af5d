package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"dispatch_triage/incident"
	"dispatch_triage/internal/events"
	"dispatch_triage/internal/store"
)

type seqRand struct {
	vals []int
	i    int
}

func (s *seqRand) IntN(n int) int {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v % n
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(ev events.Event) {
	p.mu.Lock()
	p.types = append(p.types, ev.Type)
	p.mu.Unlock()
}

type memoryArchive struct {
	records []store.CallRecord
}

func (a *memoryArchive) SaveCall(_ context.Context, c store.CallRecord) error {
	a.records = append(a.records, c)
	return nil
}

func newTestQueue(opts Options) (*CallQueue, *clock) {
	clk := &clock{now: time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)}
	opts.Now = clk.Now
	if opts.Rand == nil {
		opts.Rand = &seqRand{vals: []int{1, 42}}
	}
	return NewCallQueue(opts), clk
}

func withPriority(p incident.Priority) *incident.Assessment {
	return &incident.Assessment{Category: incident.Police, Priority: p, Severity: incident.SeverityFor(p)}
}

func TestGenerateCallerID(t *testing.T) {
	cases := []struct {
		vals []int
		want string
	}{
		{[]int{0, 7}, "CALL-0007"},
		{[]int{1, 42}, "EMRG-0042"},
		{[]int{2, 9998}, "DISP-9998"},
		{[]int{3, 123}, "URGT-0123"},
	}
	for _, tc := range cases {
		if got := GenerateCallerID(&seqRand{vals: tc.vals}); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestFormatDispatchTime(t *testing.T) {
	cases := map[int]string{0: "00:00", 75: "01:15", 3600: "60:00", -5: "00:00"}
	for in, want := range cases {
		if got := FormatDispatchTime(in); got != want {
			t.Fatalf("%d: expected %q, got %q", in, want, got)
		}
	}
}

func TestStartDefaults(t *testing.T) {
	q, _ := newTestQueue(Options{})
	c := q.Start("")
	if c.CallerID != "EMRG-0042" || c.Status != StatusInProgress {
		t.Fatalf("unexpected call %+v", c)
	}
	if c.UrgentBrief != "No brief available" || c.Assessment.Priority != incident.Low || c.Assessment.Category != incident.Police {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.ID == "" || c.DispatchTime != "00:00" {
		t.Fatalf("unexpected id or timer %+v", c)
	}
	if named := q.Start("  CALL-0001 "); named.CallerID != "CALL-0001" {
		t.Fatalf("expected caller id to be kept, got %q", named.CallerID)
	}
}

func TestActiveSortedByPriority(t *testing.T) {
	q, clk := newTestQueue(Options{})
	low := q.Start("low")
	clk.Advance(time.Second)
	high := q.Start("high")
	clk.Advance(time.Second)
	medium := q.Start("medium")
	clk.Advance(time.Second)
	high2 := q.Start("high2")

	for id, p := range map[string]incident.Priority{low.ID: incident.Low, high.ID: incident.High, medium.ID: incident.Medium, high2.ID: incident.High} {
		if _, err := q.Update(id, Update{Assessment: withPriority(p)}); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	var got []string
	for _, c := range q.Active() {
		got = append(got, c.CallerID)
	}
	if diff := cmp.Diff([]string{"high", "high2", "medium", "low"}, got); diff != "" {
		t.Fatalf("active order mismatch (-want +got):\n%s", diff)
	}
}

func TestRouteCompletesCall(t *testing.T) {
	archive := &memoryArchive{}
	pub := &recordingPublisher{}
	q, clk := newTestQueue(Options{Archive: archive, Events: pub})

	c := q.Start("")
	if _, err := q.Update(c.ID, Update{UrgentBrief: "[HIGH] Fire emergency - immediate response required", Source: "Rule engine"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	clk.Advance(5 * time.Second)
	if live, _ := q.Get(c.ID); live.DispatchTime != "00:05" {
		t.Fatalf("expected live timer 00:05, got %q", live.DispatchTime)
	}
	clk.Advance(70 * time.Second)

	routed, err := q.Route(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if routed.Status != StatusCompleted || routed.DispatchTime != "01:15" || routed.Outcome != "Resolved" {
		t.Fatalf("unexpected routed call %+v", routed)
	}
	if routed.EndTime == nil || !routed.EndTime.Equal(clk.Now()) {
		t.Fatalf("expected end time to be stamped, got %v", routed.EndTime)
	}
	if len(q.Active()) != 0 || len(q.Completed()) != 1 {
		t.Fatalf("expected call to move to history")
	}
	if _, err := q.Route(context.Background(), c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second route, got %v", err)
	}
	if got, err := q.Get(c.ID); err != nil || got.Status != StatusCompleted {
		t.Fatalf("expected completed call from Get, got %+v %v", got, err)
	}

	if len(archive.records) != 1 || archive.records[0].DispatchSeconds != 75 || archive.records[0].Status != "Completed" {
		t.Fatalf("unexpected archive %+v", archive.records)
	}
	if diff := cmp.Diff([]string{events.CallStarted, events.CallUpdated, events.CallRouted}, pub.types); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestHistoryIsCapped(t *testing.T) {
	q, clk := newTestQueue(Options{HistoryLimit: 2})
	for _, name := range []string{"a", "b", "c"} {
		c := q.Start(name)
		clk.Advance(time.Second)
		if _, err := q.Route(context.Background(), c.ID); err != nil {
			t.Fatalf("route: %v", err)
		}
	}
	var got []string
	for _, c := range q.Completed() {
		got = append(got, c.CallerID)
	}
	if diff := cmp.Diff([]string{"c", "b"}, got); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestPurgeDropsExpiredHistory(t *testing.T) {
	q, clk := newTestQueue(Options{Retention: 10 * time.Minute})
	old := q.Start("old")
	if _, err := q.Route(context.Background(), old.ID); err != nil {
		t.Fatalf("route: %v", err)
	}
	clk.Advance(11 * time.Minute)
	fresh := q.Start("fresh")
	if _, err := q.Route(context.Background(), fresh.ID); err != nil {
		t.Fatalf("route: %v", err)
	}

	if n := q.Purge(); n != 1 {
		t.Fatalf("expected 1 purged call, got %d", n)
	}
	completed := q.Completed()
	if len(completed) != 1 || completed[0].CallerID != "fresh" {
		t.Fatalf("unexpected history after purge %+v", completed)
	}
}

func TestClearAndUnknownIDs(t *testing.T) {
	pub := &recordingPublisher{}
	q, _ := newTestQueue(Options{Events: pub})
	c := q.Start("")
	q.Clear()
	if len(q.Active()) != 0 || len(q.Completed()) != 0 {
		t.Fatalf("expected empty queue after Clear")
	}
	if _, err := q.Update(c.ID, Update{UrgentBrief: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := q.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if pub.types[len(pub.types)-1] != events.CallsCleared {
		t.Fatalf("expected clear event, got %v", pub.types)
	}
}

func TestSnapshotsDoNotAlias(t *testing.T) {
	q, _ := newTestQueue(Options{})
	c := q.Start("")
	a := &incident.Assessment{Priority: incident.High, Routing: []string{"Police Patrol"}}
	updated, _ := q.Update(c.ID, Update{Assessment: a})
	updated.Assessment.Routing[0] = "changed"
	a.Routing[0] = "changed too"
	got, _ := q.Get(c.ID)
	if got.Assessment.Routing[0] != "Police Patrol" {
		t.Fatalf("queue state was mutated through a snapshot: %v", got.Assessment.Routing)
	}
}
