package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendTurnParsesReply(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"response_text":         "Found 2 options in Kyrenia.",
			"dialogue_act":          "OFFER_SUMMARY",
			"domain":                "realestate",
			"calibrated_confidence": 0.91,
			"token_usage":           42,
		})
	}))
	defer srv.Close()

	reply, err := sendTurn(srv.URL, "t-1", "u-1", "two bed flat in kyrenia")
	if err != nil {
		t.Fatalf("sendTurn: %v", err)
	}
	if gotBody["thread_id"] != "t-1" || gotBody["user_id"] != "u-1" {
		t.Fatalf("request body = %v", gotBody)
	}
	if reply.DialogueAct != "OFFER_SUMMARY" {
		t.Fatalf("dialogue_act = %q", reply.DialogueAct)
	}
	if reply.Domain != "realestate" || reply.TokenUsage != 42 {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestSendTurnPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"turn failed"}`))
	}))
	defer srv.Close()

	if _, err := sendTurn(srv.URL, "t-1", "u-1", "hello"); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestGetHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"capabilities": map[string]string{
				"realestate": "healthy",
			},
		})
	}))
	defer srv.Close()

	out, err := getHealth(srv.URL)
	if err != nil {
		t.Fatalf("getHealth: %v", err)
	}
	if out["status"] != "ok" {
		t.Fatalf("status = %v", out["status"])
	}
	caps, ok := out["capabilities"].(map[string]interface{})
	if !ok {
		t.Fatalf("capabilities = %v", out["capabilities"])
	}
	if caps["realestate"] != "healthy" {
		t.Fatalf("realestate state = %v", caps["realestate"])
	}
}
