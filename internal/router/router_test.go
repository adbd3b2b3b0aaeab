package router

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"islander-chat/internal/session"
	"islander-chat/pkg/config"
	"islander-chat/pkg/log"
)

func testDomains() map[string]config.DomainConfig {
	return map[string]config.DomainConfig{
		"realestate": {
			Cues:        []string{"apartment", "flat", "villa", "rent", "bedroom", "kyrenia", "famagusta"},
			Exemplars:   []string{"need an apartment to rent", "looking for a flat in kyrenia", "villa for sale famagusta"},
			Refinements: []string{"cheaper", "bigger", "smaller", "closer"},
		},
		"carhire": {
			Cues:        []string{"car", "hire", "automatic", "manual", "suv", "pickup"},
			Exemplars:   []string{"hire a car for a week", "need an automatic car at the airport"},
			Refinements: []string{"longer", "automatic"},
		},
	}
}

func testRouterConfig() config.RouterConfig {
	return config.RouterConfig{
		DispatchThreshold: 0.55,
		ClarifyThreshold:  0.35,
		SwitchThreshold:   0.15,
		MinTokens:         3,
		Calibration:       config.CalibrationConfig{A: -4, B: 1},
	}
}

func newTestRouter(t *testing.T, c Classifier) *Router {
	t.Helper()
	logger, err := log.NewLogger(nil)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	events, err := NewEventLog(100, "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	return New(testRouterConfig(), testDomains(), c, events, logger)
}

type fixedClassifier struct {
	scores map[string]float64
	err    error
}

func (f fixedClassifier) Scores(string) (map[string]float64, error) {
	return f.scores, f.err
}

func TestClassifyDispatch(t *testing.T) {
	r := newTestRouter(t, NewLexicalClassifier(testDomains()))
	sess := session.New("t-1", "u-1")

	d, err := r.Classify("looking for an apartment to rent in kyrenia", sess)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if d.Domain != "realestate" {
		t.Errorf("domain = %q", d.Domain)
	}
	if d.Action != ActionDispatch {
		t.Errorf("action = %q, calibrated = %v", d.Action, d.CalibratedConfidence)
	}
}

type scriptedClassifier struct {
	frames []map[string]float64
	i      int
}

func (s *scriptedClassifier) Scores(string) (map[string]float64, error) {
	f := s.frames[s.i%len(s.frames)]
	s.i++
	return f, nil
}

func TestHysteresisNoFlapping(t *testing.T) {
	// Competing domain oscillates just above the sticky domain, always within
	// the switch margin: the active domain must not flip.
	c := &scriptedClassifier{frames: []map[string]float64{
		{"realestate": 0.55, "carhire": 0.62},
		{"realestate": 0.50, "carhire": 0.60},
		{"realestate": 0.58, "carhire": 0.52},
		{"realestate": 0.52, "carhire": 0.64},
		{"realestate": 0.56, "carhire": 0.61},
		{"realestate": 0.49, "carhire": 0.59},
	}}
	r := newTestRouter(t, c)
	sess := session.New("t-1", "u-1")
	sess.ActiveDomain = "realestate"

	switches := 0
	for i := 0; i < len(c.frames); i++ {
		d, _ := r.Classify("some medium length ambiguous sentence here", sess)
		if d.Domain != sess.ActiveDomain {
			switches++
			sess.ActiveDomain = d.Domain
		}
	}
	if switches != 0 {
		t.Errorf("active domain flipped %d times near the switch threshold", switches)
	}
}

func TestSwitchOnStrongEvidence(t *testing.T) {
	r := newTestRouter(t, fixedClassifier{scores: map[string]float64{
		"realestate": 0.1,
		"carhire":    0.9,
	}})
	sess := session.New("t-1", "u-1")
	sess.ActiveDomain = "realestate"

	d, _ := r.Classify("i want to hire an automatic car from the airport tomorrow", sess)
	if d.Domain != "carhire" || d.Action != ActionDispatch {
		t.Errorf("decision = %+v, want dispatch to carhire", d)
	}
}

func TestContinuityShortInput(t *testing.T) {
	r := newTestRouter(t, NewLexicalClassifier(testDomains()))
	sess := session.New("t-1", "u-1")
	sess.ActiveDomain = "realestate"

	d, _ := r.Classify("cheaper", sess)
	if d.Domain != "realestate" || d.Action != ActionStick {
		t.Errorf("decision = %+v, want stick to realestate", d)
	}
}

func TestClarifyGuardrail(t *testing.T) {
	// Raw score high but calibration maps it low: guardrail must force clarify.
	r := newTestRouter(t, fixedClassifier{scores: map[string]float64{
		"realestate": 0.9,
		"carhire":    0.1,
	}})
	bad := Calibration{A: -0.1, B: 3} // calibrated(0.9) well below clarify threshold
	if err := r.SwapCalibration(bad); err != nil {
		t.Fatalf("swap: %v", err)
	}

	sess := session.New("t-1", "u-1")
	d, _ := r.Classify("something about an apartment maybe", sess)
	if d.Action != ActionClarify {
		t.Errorf("action = %q (calibrated %v), want clarify", d.Action, d.CalibratedConfidence)
	}
}

func TestClassifierFailureFallsBack(t *testing.T) {
	r := newTestRouter(t, fixedClassifier{err: errors.New("model load failed")})

	sess := session.New("t-1", "u-1")
	d, err := r.Classify("anything", sess)
	if err == nil {
		t.Error("classifier failure should be reported alongside the fallback")
	}
	if d.Action != ActionClarify {
		t.Errorf("no sticky domain: action = %q, want clarify", d.Action)
	}

	sess.ActiveDomain = "realestate"
	d, err = r.Classify("anything", sess)
	if err == nil {
		t.Error("classifier failure should be reported alongside the fallback")
	}
	if d.Action != ActionStick || d.Domain != "realestate" {
		t.Errorf("sticky fallback: %+v", d)
	}
}

func TestStickFallbackReportsStickyConfidence(t *testing.T) {
	// Top domain clears the switch margin but stays below the dispatch
	// threshold: the decision falls back to the sticky domain, and the
	// reported confidence must be the sticky domain's, not the top's.
	r := newTestRouter(t, fixedClassifier{scores: map[string]float64{
		"carhire":    0.28,
		"realestate": 0.10,
	}})
	sess := session.New("t-1", "u-1")
	sess.ActiveDomain = "realestate"

	d, err := r.Classify("maybe something with a car but honestly not sure yet", sess)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if d.Domain != "realestate" || d.Action != ActionStick {
		t.Fatalf("decision = %+v, want stick to realestate", d)
	}
	if d.RawConfidence != 0.10 {
		t.Errorf("raw = %v, want the sticky domain's score 0.10", d.RawConfidence)
	}
	if want := r.Calibration().Apply(0.10); d.CalibratedConfidence != want {
		t.Errorf("calibrated = %v, want %v (sticky raw recalibrated)", d.CalibratedConfidence, want)
	}
}

func TestPendingEventsSwept(t *testing.T) {
	r := newTestRouter(t, fixedClassifier{scores: map[string]float64{"realestate": 0.9}})
	stale := time.Now().Add(-2 * time.Hour)
	r.mu.Lock()
	for i := 0; i < 4095; i++ {
		r.pending[fmt.Sprintf("t-old-%d", i)] = Event{Domain: "realestate", Time: stale}
	}
	r.mu.Unlock()

	sess := session.New("t-new", "u-1")
	if _, err := r.Classify("looking for an apartment to rent in kyrenia", sess); err != nil {
		t.Fatalf("classify: %v", err)
	}

	r.mu.Lock()
	n := len(r.pending)
	r.mu.Unlock()
	if n != 1 {
		t.Errorf("pending size = %d after sweep, want only the live thread", n)
	}
}

func TestCalibrationMonotone(t *testing.T) {
	c := Calibration{A: -4, B: 1}
	prev := -1.0
	for raw := 0.0; raw <= 1.0; raw += 0.01 {
		p := c.Apply(raw)
		if p < prev {
			t.Fatalf("calibration not monotone at raw=%v: %v < %v", raw, p, prev)
		}
		if p < 0 || p > 1 {
			t.Fatalf("calibrated out of range at raw=%v: %v", raw, p)
		}
		prev = p
	}
}

func TestSwapCalibrationRejectsNonNegativeA(t *testing.T) {
	r := newTestRouter(t, NewLexicalClassifier(testDomains()))
	if err := r.SwapCalibration(Calibration{A: 0.5, B: 0}); err == nil {
		t.Error("positive A must be rejected")
	}
	if err := r.SwapCalibration(Calibration{A: -2, B: 0.5}); err != nil {
		t.Errorf("valid parameters rejected: %v", err)
	}
}
