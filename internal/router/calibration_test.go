package router

import (
	"math/rand"
	"path/filepath"
	"testing"

	"islander-chat/pkg/log"
)

// syntheticEvents draws raw scores and labels them so that accuracy rises
// with the raw score, the regime Platt scaling is meant to fit.
func syntheticEvents(n int, seed int64) []Event {
	rng := rand.New(rand.NewSource(seed))
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		raw := rng.Float64()
		out = append(out, Event{Raw: raw, Correct: rng.Float64() < raw})
	}
	return out
}

func TestFitImprovesECE(t *testing.T) {
	events := syntheticEvents(500, 42)
	start := Calibration{A: -1, B: 2} // deliberately miscalibrated
	fitted := Fit(events, start)

	if fitted.A >= 0 {
		t.Fatalf("fitted A = %v, must stay negative", fitted.A)
	}
	before := ECE(events, start, eceBins)
	after := ECE(events, fitted, eceBins)
	if after >= before {
		t.Errorf("ECE did not improve: %v -> %v", before, after)
	}
	if after > 0.08 {
		t.Errorf("fitted ECE = %v, expected near-calibrated fit", after)
	}
}

func TestFitSkipsSmallWindow(t *testing.T) {
	start := Calibration{A: -3, B: 1}
	got := Fit(syntheticEvents(10, 1), start)
	if got != start {
		t.Errorf("small window should keep current parameters, got %+v", got)
	}
}

func TestRecalibratorSwapsOnGoodFit(t *testing.T) {
	logger, _ := log.NewLogger(nil)
	events, _ := NewEventLog(1000, "")
	for _, ev := range syntheticEvents(600, 7) {
		events.Append(ev)
	}
	r := New(testRouterConfig(), testDomains(), NewLexicalClassifier(testDomains()), events, logger)
	before := r.Calibration()

	rc := NewRecalibrator(r, events, 0, 0.08, logger)
	if !rc.RunOnce() {
		t.Fatal("expected recalibration to swap parameters")
	}
	if r.Calibration() == before {
		t.Error("calibration unchanged after accepted recalibration")
	}
}

func TestRecalibratorKeepsParamsOnBadECE(t *testing.T) {
	logger, _ := log.NewLogger(nil)
	events, _ := NewEventLog(1000, "")
	for _, ev := range syntheticEvents(400, 3) {
		events.Append(ev)
	}
	r := New(testRouterConfig(), testDomains(), NewLexicalClassifier(testDomains()), events, logger)
	before := r.Calibration()

	// A gate no real fit can pass: parameters must stay as they were.
	rc := NewRecalibrator(r, events, 0, 1e-9, logger)
	rc.RunOnce()
	if r.Calibration() != before {
		t.Error("parameters swapped despite failing the ECE gate")
	}
}

func TestCalibrationFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	want := Calibration{A: -3.2, B: 0.8}
	if err := SaveCalibrationFile(path, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadCalibrationFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestECERejectsInvalidFile(t *testing.T) {
	if _, err := LoadCalibrationFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file should error")
	}
}
