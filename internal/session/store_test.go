package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"islander-chat/pkg/config"
	"islander-chat/pkg/errors"
)

func TestMemorySnapshotStoreRoundTrip(t *testing.T) {
	store := NewMemorySnapshotStore()
	defer store.Close()
	ctx := context.Background()

	got, err := store.Get(ctx, "absent")
	if err != nil || got != nil {
		t.Fatalf("miss should be (nil, nil), got %v, %v", got, err)
	}

	snap := &Snapshot{ThreadID: "t-1", UserID: "u-1", ActiveDomain: "realestate", TurnCount: 3}
	if err := store.Put(ctx, snap); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err = store.Get(ctx, "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ActiveDomain != "realestate" || got.TurnCount != 3 {
		t.Errorf("got %+v", got)
	}

	// Mutating the returned snapshot must not leak into the store.
	got.ActiveDomain = "mutated"
	again, _ := store.Get(ctx, "t-1")
	if again.ActiveDomain != "realestate" {
		t.Error("store returned shared snapshot")
	}
}

func TestFileSnapshotStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSnapshotStore(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if got, err := store.Get(ctx, "absent"); err != nil || got != nil {
		t.Fatalf("miss should be (nil, nil), got %v, %v", got, err)
	}

	snap := &Snapshot{
		ThreadID:     "t-7",
		UserID:       "u-7",
		ActiveDomain: "realestate",
		Slots: map[string]map[string]SlotValue{
			"realestate": {"budget": AmountValue(600, "GBP")},
		},
		TurnCount: 4,
		Timestamp: time.Now(),
	}
	if err := store.Put(ctx, snap); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get(ctx, "t-7")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v := got.Slots["realestate"]["budget"]; v.Amount != 600 || v.Currency != "GBP" {
		t.Errorf("budget slot = %+v", v)
	}
}

func TestFileSnapshotStoreCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSnapshotStore(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "t-bad.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err = store.Get(context.Background(), "t-bad")
	if !errors.Is(err, errors.ErrSnapshotCorrupt) {
		t.Errorf("err = %v, want ErrSnapshotCorrupt", err)
	}
}

func TestRedisSnapshotStore(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisSnapshotStore(mr.Addr(), "", 0, time.Hour)
	defer store.Close()
	ctx := context.Background()

	if got, err := store.Get(ctx, "absent"); err != nil || got != nil {
		t.Fatalf("miss should be (nil, nil), got %v, %v", got, err)
	}

	snap := &Snapshot{ThreadID: "t-2", UserID: "u-2", ActiveDomain: "carhire", TurnCount: 1}
	if err := store.Put(ctx, snap); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get(ctx, "t-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ActiveDomain != "carhire" {
		t.Errorf("got %+v", got)
	}

	mr.Set("ichat:snapshot:t-broken", "not json")
	if _, err := store.Get(ctx, "t-broken"); !errors.Is(err, errors.ErrSnapshotCorrupt) {
		t.Errorf("err = %v, want ErrSnapshotCorrupt", err)
	}
}

func TestNewSnapshotStoreFactory(t *testing.T) {
	store, err := NewSnapshotStore(config.SnapshotConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if _, ok := store.(*MemorySnapshotStore); !ok {
		t.Errorf("backend type = %T", store)
	}

	if _, err := NewSnapshotStore(config.SnapshotConfig{Type: "carrier-pigeon"}); err == nil {
		t.Error("unknown backend should fail")
	}
}
