package memorystore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"islander-chat/pkg/config"
	"islander-chat/pkg/errors"
	"islander-chat/pkg/log"
)

func TestHTTPStoreRecall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/memory" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("user_id"); got != "u-1" {
			t.Errorf("user_id = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"snippets": []Snippet{
				{ID: "m-1", UserID: "u-1", Domain: "realestate", Content: "prefers Kyrenia"},
			},
		})
	}))
	defer srv.Close()

	logger, _ := log.NewLogger(nil)
	store := NewHTTPStore(srv.URL, time.Second, 100, logger)
	snips, err := store.Recall(context.Background(), "u-1", "realestate", "", 3)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(snips) != 1 || snips[0].Content != "prefers Kyrenia" {
		t.Errorf("snips = %+v", snips)
	}
}

func TestHTTPStoreRecallTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	logger, _ := log.NewLogger(nil)
	store := NewHTTPStore(srv.URL, time.Second, 100, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := store.Recall(ctx, "u-1", "realestate", "", 3)
	if !errors.Is(err, errors.ErrMemoryTimeout) {
		t.Errorf("err = %v, want ErrMemoryTimeout", err)
	}
}

func TestHTTPStoreWrite(t *testing.T) {
	var got Snippet
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	logger, _ := log.NewLogger(nil)
	store := NewHTTPStore(srv.URL, time.Second, 100, logger)
	err := store.Write(context.Background(), Snippet{ID: "m-2", UserID: "u-1", Domain: "carhire", Content: "automatic only"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if got.ID != "m-2" || got.Content != "automatic only" {
		t.Errorf("server saw %+v", got)
	}
}

func TestNewStoreFactory(t *testing.T) {
	logger, _ := log.NewLogger(nil)
	store, err := NewStore(context.Background(), configFor("nop"), logger)
	if err != nil {
		t.Fatalf("nop: %v", err)
	}
	if _, ok := store.(*NopStore); !ok {
		t.Errorf("type = %T", store)
	}
	if _, err := NewStore(context.Background(), configFor("carrier-pigeon"), logger); err == nil {
		t.Error("unknown type should fail")
	}
}

func configFor(typ string) config.MemoryConfig {
	return config.MemoryConfig{Type: typ, Timeout: "1s"}
}
