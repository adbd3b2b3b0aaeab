package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestFollowupQueueRunsTasks(t *testing.T) {
	q := NewFollowupQueue(8, 0, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	var ran atomic.Int64
	q.Enqueue(FollowupTask{Key: "a", Run: func(context.Context) error {
		ran.Add(1)
		return nil
	}})
	waitFor(t, func() bool { return ran.Load() == 1 })

	cancel()
	q.Stop()
}

func TestFollowupQueueDedupesByKey(t *testing.T) {
	q := NewFollowupQueue(8, 0, testLogger())

	var ran atomic.Int64
	task := FollowupTask{Key: "memwrite:t1:3", Run: func(context.Context) error {
		ran.Add(1)
		return nil
	}}
	if !q.Enqueue(task) {
		t.Fatal("first enqueue rejected")
	}
	if q.Enqueue(task) {
		t.Fatal("duplicate idempotency key must be rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	waitFor(t, func() bool { return ran.Load() == 1 })
	cancel()
	q.Stop()
	if got := ran.Load(); got != 1 {
		t.Errorf("task ran %d times, want 1", got)
	}
}

func TestFollowupQueueRetries(t *testing.T) {
	q := NewFollowupQueue(8, 2, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	var attempts atomic.Int64
	q.Enqueue(FollowupTask{Key: "flaky", Run: func(context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}})
	waitFor(t, func() bool { return attempts.Load() == 3 })

	cancel()
	q.Stop()
}

func TestFollowupQueueDrainsOnStop(t *testing.T) {
	q := NewFollowupQueue(8, 0, testLogger())

	var ran atomic.Int64
	for i := 0; i < 4; i++ {
		q.Enqueue(FollowupTask{Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}})
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	cancel()
	q.Stop()
	if got := ran.Load(); got != 4 {
		t.Errorf("drained %d tasks, want 4", got)
	}
}
