package session

import (
	"context"
	"os"
	"sync"
	"testing"

	"islander-chat/pkg/log"
)

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	l, err := log.NewLogger(nil)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func TestManagerRehydrationFidelity(t *testing.T) {
	store := NewMemorySnapshotStore()
	m := NewManager(store, testLogger(t))
	ctx := context.Background()

	sess, release := m.Acquire(ctx, "t-1", "u-1")
	sess.ActiveDomain = "realestate"
	sess.CurrentIntent = "property_search"
	sess.SetSlot("realestate", "location", TextValue("Kyrenia"))
	sess.SetSlot("realestate", "budget", AmountValue(600, "GBP"))
	sess.SetState("realestate", "collecting")
	sess.AppendTurn("user", "need an apartment in kyrenia")
	if err := m.Checkpoint(ctx, sess); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	release()

	// Simulate process restart / reconnect: in-memory session gone.
	m.Evict("t-1")

	sess2, release2 := m.Acquire(ctx, "t-1", "u-1")
	defer release2()
	if sess2 == sess {
		t.Fatal("expected rehydrated session, got cached one")
	}
	if sess2.ActiveDomain != "realestate" || sess2.CurrentIntent != "property_search" {
		t.Errorf("domain/intent = %q/%q", sess2.ActiveDomain, sess2.CurrentIntent)
	}
	if v, ok := sess2.Slot("realestate", "budget"); !ok || v.Amount != 600 || v.Currency != "GBP" {
		t.Errorf("budget = %+v ok=%v", v, ok)
	}
	if sess2.State("realestate") != "collecting" {
		t.Errorf("state = %q", sess2.State("realestate"))
	}
}

func TestManagerFreshSessionOnMiss(t *testing.T) {
	m := NewManager(NewMemorySnapshotStore(), testLogger(t))
	sess, release := m.Acquire(context.Background(), "t-new", "u-new")
	defer release()
	if sess.ThreadID != "t-new" || sess.UserID != "u-new" {
		t.Errorf("sess = %+v", sess)
	}
	if sess.TurnCount != 0 || sess.ActiveDomain != "" {
		t.Errorf("fresh session not empty: %+v", sess)
	}
}

func TestManagerFreshSessionOnCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSnapshotStore(dir)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	writeCorruptSnapshot(t, store, "t-bad")

	m := NewManager(store, testLogger(t))
	sess, release := m.Acquire(context.Background(), "t-bad", "u-1")
	defer release()
	if sess.ActiveDomain != "" || sess.TurnCount != 0 {
		t.Errorf("corrupt snapshot should degrade to fresh session, got %+v", sess)
	}
}

func writeCorruptSnapshot(t *testing.T, store *FileSnapshotStore, threadID string) {
	t.Helper()
	if err := os.WriteFile(store.path(threadID), []byte("{broken"), 0644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
}

func TestManagerSerializesSameThread(t *testing.T) {
	m := NewManager(NewMemorySnapshotStore(), testLogger(t))
	ctx := context.Background()

	const turns = 50
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, release := m.Acquire(ctx, "t-serial", "u-1")
			defer release()
			sess.AppendTurn("user", "hello")
		}()
	}
	wg.Wait()

	sess, release := m.Acquire(ctx, "t-serial", "u-1")
	defer release()
	if sess.TurnCount != turns {
		t.Errorf("turn count = %d, want %d", sess.TurnCount, turns)
	}
}
