package http

import (
	"bytes"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"islander-chat/internal/api/http/middleware"
	"islander-chat/internal/contextflow"
	"islander-chat/internal/memorystore"
	"islander-chat/internal/offers"
	"islander-chat/internal/policy"
	"islander-chat/internal/router"
	"islander-chat/internal/session"
	"islander-chat/internal/supervisor"
	"islander-chat/pkg/config"
	"islander-chat/pkg/log"
)

type stubClassifier struct{}

func (stubClassifier) Scores(text string) (map[string]float64, error) {
	if bytes.Contains([]byte(text), []byte("apartment")) {
		return map[string]float64{"realestate": 0.9}, nil
	}
	return map[string]float64{"realestate": 0.05}, nil
}

func buildServerForTest(t *testing.T) (*server.Hertz, *supervisor.CapabilityRegistry) {
	t.Helper()
	logger, err := log.NewLogger(nil)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	domains := map[string]config.DomainConfig{
		"realestate": {
			Slots: config.SlotPolicyConfig{
				Required:  []string{"location|anywhere", "budget", "tenure"},
				AskOrder:  []string{"location", "budget", "tenure"},
				MinViable: []string{"location|anywhere", "budget"},
			},
		},
	}

	sessions := session.NewManager(session.NewMemorySnapshotStore(), logger)
	events, err := router.NewEventLog(0, "")
	if err != nil {
		t.Fatalf("event log: %v", err)
	}
	rt := router.New(config.RouterConfig{
		DispatchThreshold: 0.55,
		ClarifyThreshold:  0.35,
		SwitchThreshold:   0.15,
		MinTokens:         3,
		Calibration:       config.CalibrationConfig{A: -4, B: 1},
	}, domains, stubClassifier{}, events, logger)

	contexts := contextflow.NewManager(config.ContextConfig{}, memorystore.NewNopStore(), nil, logger, time.Second)

	inv := offers.NewStaticInventory([]offers.Listing{
		{ID: "p-1", Domain: "realestate", Title: "1+1 flat", Location: "Kyrenia", Price: 450, Currency: "GBP", Bedrooms: 1, Tenure: "rent"},
	})
	cache, err := offers.NewCache(config.OffersConfig{CacheType: "memory"}, domains, inv)
	if err != nil {
		t.Fatalf("offer cache: %v", err)
	}
	engine := policy.NewEngine(domains, cache, logger)

	registry := supervisor.NewCapabilityRegistry(0)
	sup := supervisor.New(config.SupervisorConfig{}, sessions, rt, contexts, engine,
		memorystore.NewNopStore(), registry, nil, logger)
	t.Cleanup(func() {
		sup.Close()
		events.Close()
	})

	h := NewHandler(sup, registry, logger)
	return NewRouter(h, middleware.NewMiddleware()).Build(":0"), registry
}

func TestChatEndpoint(t *testing.T) {
	s, _ := buildServerForTest(t)

	body := []byte(`{"thread_id":"t-1","user_id":"u-1","message":"apartment in kyrenia, 600 pounds to rent, what do you have?"}`)
	w := ut.PerformRequest(s.Engine, "POST", "/api/chat",
		&ut.Body{Body: bytes.NewReader(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("status = %d, body = %s", resp.StatusCode(), resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(`"response_text"`)) {
		t.Errorf("body missing response_text: %s", resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte(`"dialogue_act":"OFFER_SUMMARY"`)) {
		t.Errorf("body missing offer act: %s", resp.Body())
	}
}

func TestChatValidation(t *testing.T) {
	s, _ := buildServerForTest(t)

	for _, body := range []string{
		`{"thread_id":"t-1"}`,
		`{"message":"hello"}`,
		`not json`,
	} {
		w := ut.PerformRequest(s.Engine, "POST", "/api/chat",
			&ut.Body{Body: bytes.NewReader([]byte(body)), Len: len(body)},
			ut.Header{Key: "Content-Type", Value: "application/json"})
		if got := w.Result().StatusCode(); got != 400 {
			t.Errorf("POST /api/chat %q status = %d, want 400", body, got)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, registry := buildServerForTest(t)
	registry.ReportSuccess("realestate")

	w := ut.PerformRequest(s.Engine, "GET", "/api/health", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("status = %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte(`"realestate":"healthy"`)) {
		t.Errorf("body missing capability state: %s", resp.Body())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := buildServerForTest(t)

	w := ut.PerformRequest(s.Engine, "GET", "/metrics", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("status = %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("ichat_")) {
		t.Errorf("metrics output missing ichat_ prefix: %.200s", resp.Body())
	}
}
