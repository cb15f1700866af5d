package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func started(t *testing.T, capacity, workers int, timeout time.Duration, opts ...Option) *Queue {
	t.Helper()
	q := New(capacity, workers, timeout, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	q.Start(ctx)
	return q
}

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestQueueRunsEnrichJob(t *testing.T) {
	q := started(t, 10, 1, time.Second)

	var ran int32
	done := make(chan struct{})
	ok := q.Enqueue(Job{ID: "call-1#1", Kind: KindEnrich, Run: func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		close(done)
		return nil
	}})
	if !ok {
		t.Fatalf("expected enqueue to succeed")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("job did not complete")
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("job not run")
	}
}

func TestFullQueueDropsAndCounts(t *testing.T) {
	q := started(t, 1, 0, 100*time.Millisecond)

	if !q.Enqueue(Job{ID: "slow", Kind: KindEnrich, Run: blockUntilDone}) {
		t.Fatalf("expected first enqueue to succeed")
	}
	if q.Enqueue(Job{ID: "drop", Kind: KindEnrich, Run: func(context.Context) error { return nil }}) {
		t.Fatalf("expected enqueue to be rejected when queue is full")
	}
	st := q.Stats()
	if st.Length != 1 || st.Dropped != 1 || st.Kinds[KindEnrich].Dropped != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestEnqueueWithRetryDropsWhenFull(t *testing.T) {
	q := started(t, 1, 0, time.Second)

	if !q.Enqueue(Job{ID: "first", Kind: KindEnrich, Run: blockUntilDone}) {
		t.Fatalf("expected initial enqueue to succeed")
	}
	enqueued, dropped := q.EnqueueWithRetry(context.Background(), Job{ID: "call-1#alert", Kind: KindAlert, Run: func(context.Context) error { return nil }}, 200*time.Millisecond, 50*time.Millisecond)
	if enqueued {
		t.Fatalf("expected enqueue to fail due to full queue")
	}
	if !dropped {
		t.Fatalf("expected enqueue to be reported as dropped after retries")
	}
	if got := q.Stats().Kinds[KindAlert].Dropped; got != 1 {
		t.Fatalf("expected 1 dropped alert, got %d", got)
	}
}

func TestEnqueueWithRetrySucceedsOnceSpaceFrees(t *testing.T) {
	q := started(t, 1, 1, time.Second)

	release := make(chan struct{})
	running := make(chan struct{})
	q.Enqueue(Job{ID: "busy", Kind: KindEnrich, Run: func(context.Context) error {
		close(running)
		<-release
		return nil
	}})
	<-running
	q.Enqueue(Job{ID: "waiting", Kind: KindEnrich, Run: func(context.Context) error { return nil }})

	time.AfterFunc(30*time.Millisecond, func() { close(release) })
	enqueued, dropped := q.EnqueueWithRetry(context.Background(), Job{ID: "call-1#alert", Kind: KindAlert, Run: func(context.Context) error { return nil }}, time.Second, 10*time.Millisecond)
	if !enqueued || dropped {
		t.Fatalf("expected the alert to be queued after a retry, got enqueued=%v dropped=%v", enqueued, dropped)
	}
}

func TestCompletionHookAndKindStats(t *testing.T) {
	var failures atomic.Int32
	finished := make(chan struct{}, 3)
	q := started(t, 4, 1, time.Second, WithCompletionHook(func(err error) {
		if err != nil {
			failures.Add(1)
		}
		finished <- struct{}{}
	}))

	q.Enqueue(Job{ID: "ok", Kind: KindEnrich, Run: func(context.Context) error { return nil }})
	q.Enqueue(Job{ID: "bad", Kind: KindAlert, Run: func(context.Context) error { return errors.New("webhook 502") }})
	q.Enqueue(Job{ID: "boom", Kind: KindAlert, Run: func(context.Context) error { panic("nil notifier") }})
	for i := 0; i < 3; i++ {
		select {
		case <-finished:
		case <-time.After(time.Second):
			t.Fatalf("jobs did not complete")
		}
	}

	st := q.Stats()
	if st.Processed != 3 || st.Failed != 2 {
		t.Fatalf("expected 3 processed and 2 failed, got %+v", st)
	}
	want := map[Kind]KindStats{
		KindEnrich: {Done: 1},
		KindAlert:  {Failed: 2},
	}
	if diff := cmp.Diff(want, st.Kinds); diff != "" {
		t.Fatalf("kind stats mismatch (-want +got):\n%s", diff)
	}
	if failures.Load() != 2 {
		t.Fatalf("expected hook to see 2 failures, got %d", failures.Load())
	}
}

func TestJobTimeout(t *testing.T) {
	errs := make(chan error, 1)
	q := started(t, 1, 1, 20*time.Millisecond)
	q.Enqueue(Job{ID: "slow", Kind: KindEnrich, Run: func(ctx context.Context) error {
		err := blockUntilDone(ctx)
		errs <- err
		return err
	}})
	select {
	case err := <-errs:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("job was not cancelled by its timeout")
	}
}

func TestStopRejectsNewJobs(t *testing.T) {
	q := New(2, 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if q.Enqueue(Job{ID: "early", Kind: KindEnrich, Run: func(context.Context) error { return nil }}) {
		t.Fatalf("expected enqueue before Start to fail")
	}
	q.Start(ctx)
	if !q.Healthy() {
		t.Fatalf("expected started queue to be healthy")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	q.Stop(stopCtx)
	if q.Healthy() {
		t.Fatalf("expected stopped queue to be unhealthy")
	}
	if ok, full := q.EnqueueWithRetry(ctx, Job{ID: "late", Kind: KindAlert, Run: func(context.Context) error { return nil }}, time.Second, 10*time.Millisecond); ok || full {
		t.Fatalf("expected immediate rejection after Stop, got ok=%v full=%v", ok, full)
	}
}
