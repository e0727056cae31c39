package main

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/cwbudde/algo-karplus/analysis"
	"github.com/cwbudde/algo-karplus/karplus"
	"github.com/cwbudde/algo-karplus/preset"
)

func TestInitCandidateCoversFitParams(t *testing.T) {
	base := karplus.NewDefaultParams()
	defs, cand := initCandidate(base, false)
	if len(defs) != len(fitParams)+1 {
		t.Fatalf("defs len = %d, want %d", len(defs), len(fitParams)+1)
	}
	if len(cand.Vals) != len(defs) {
		t.Fatalf("vals len = %d, want %d", len(cand.Vals), len(defs))
	}
	for i, id := range fitParams {
		want, _ := base.Get(id)
		if float32(cand.Vals[i]) != want {
			t.Fatalf("%s: initial value %f, want %f", id, cand.Vals[i], want)
		}
	}

	defs, _ = initCandidate(base, true)
	if defs[len(defs)-1].Name != knobReleaseAfter {
		t.Fatalf("release knob missing: %+v", defs[len(defs)-1])
	}
}

func TestFromNormalizedFollowsParamRanges(t *testing.T) {
	defs, _ := initCandidate(karplus.NewDefaultParams(), true)
	lo := fromNormalized(make([]float64, len(defs)), defs)
	ones := make([]float64, len(defs))
	for i := range ones {
		ones[i] = 2 // clamped to 1
	}
	hi := fromNormalized(ones, defs)
	for i, d := range defs {
		if math.Abs(lo.Vals[i]-d.Min) > 1e-9 || math.Abs(hi.Vals[i]-d.Max) > 1e-9 {
			t.Fatalf("%s: endpoints got [%f,%f] want [%f,%f]", d.Name, lo.Vals[i], hi.Vals[i], d.Min, d.Max)
		}
	}
}

func TestApplyCandidateLeavesBaseUntouched(t *testing.T) {
	base := karplus.NewDefaultParams()
	defs, cand := initCandidate(base, true)
	for i, d := range defs {
		switch d.Name {
		case karplus.ParamDecay:
			cand.Vals[i] = 0.9
		case karplus.ParamSource:
			cand.Vals[i] = 3
		case knobVelocity:
			cand.Vals[i] = 127
		case knobReleaseAfter:
			cand.Vals[i] = 0.01
		}
	}
	p, velocity, release := applyCandidate(base, defs, cand)
	if p.Decay != 0.9 || p.Waveform != karplus.Noise {
		t.Fatalf("candidate not applied: %+v", p)
	}
	if velocity != 1 || release != 0.05 {
		t.Fatalf("render knobs: velocity=%f release=%f", velocity, release)
	}
	if *base != *karplus.NewDefaultParams() {
		t.Fatalf("base params mutated")
	}
}

func TestWriteOutputsAndResume(t *testing.T) {
	dir := t.TempDir()
	paths := outputPaths{outputPreset: filepath.Join(dir, "out", "fitted.json")}
	base := karplus.NewDefaultParams()
	defs, cand := initCandidate(base, false)
	cand.Vals[1] = 0.85 // decay

	m := analysis.Metrics{Score: 0.3, Similarity: 0.3}
	sum := fitSummary{sampleRate: 48000, note: 69, elapsed: 1.5, evals: 10, variant: "desma", defs: defs, best: cand, metrics: m, base: base, checkpoints: 1}
	if err := writeOutputs(paths, sum); err != nil {
		t.Fatalf("writeOutputs: %v", err)
	}
	loaded, err := preset.LoadJSON(paths.outputPreset)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if loaded.Params.Decay != 0.85 {
		t.Fatalf("fitted preset decay = %f", loaded.Params.Decay)
	}

	_, fresh := initCandidate(base, false)
	resumed, ok, err := loadCandidateFromReport(paths.report(), defs, fresh)
	if err != nil || !ok {
		t.Fatalf("resume failed: ok=%v err=%v", ok, err)
	}
	if resumed.Vals[1] != 0.85 {
		t.Fatalf("resumed decay = %f", resumed.Vals[1])
	}

	_, ok, err = loadCandidateFromReport(filepath.Join(dir, "missing.json"), defs, fresh)
	if ok || err != nil {
		t.Fatalf("missing report should be skipped: ok=%v err=%v", ok, err)
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := loadCandidateFromReport(bad, defs, fresh); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestCandidateRendererIsReusable(t *testing.T) {
	r, err := newCandidateRenderer(testSettings())
	if err != nil {
		t.Fatalf("newCandidateRenderer: %v", err)
	}
	p := karplus.NewDefaultParams()
	a, _, err := r.render(p, 1, 0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	b, _, err := r.render(p, 1, 0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(a) != len(b) || len(a) == 0 {
		t.Fatalf("render lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("reused synth leaked state at %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestNewMayflyConfigVariants(t *testing.T) {
	for _, v := range []string{"ma", "desma", "olce", "eobbma", "gsasma", "mpma", "aoblmoa"} {
		cfg, err := newMayflyConfig(v, 6, 8, 3)
		if err != nil {
			t.Fatalf("%s: %v", v, err)
		}
		if cfg.ProblemSize != 8 || cfg.NPop != 6 || cfg.NC != 12 || cfg.NM < 1 {
			t.Fatalf("%s: unexpected config %+v", v, cfg)
		}
	}
	if _, err := newMayflyConfig("nope", 6, 8, 3); err == nil {
		t.Fatalf("expected error for unknown variant")
	}
}

func TestReserveEvalStopsAtBudget(t *testing.T) {
	var evals atomic.Int64
	for i := 1; i <= 3; i++ {
		n, ok := reserveEval(&evals, 3)
		if !ok || n != int64(i) {
			t.Fatalf("reserve %d: got n=%d ok=%v", i, n, ok)
		}
	}
	if _, ok := reserveEval(&evals, 3); ok {
		t.Fatalf("reserved past budget")
	}
}

func testSettings() renderSettings {
	return renderSettings{
		note:            69,
		sampleRate:      48000,
		seed:            1,
		decayDBFS:       -90,
		decayHoldBlocks: 2,
		minDuration:     0.1,
		maxDuration:     0.2,
	}
}

func TestToNormalizedInvertsFromNormalized(t *testing.T) {
	defs, cand := initCandidate(karplus.NewDefaultParams(), true)
	back := fromNormalized(toNormalized(cand, defs), defs)
	for i, d := range defs {
		if math.Abs(back.Vals[i]-cand.Vals[i]) > 1e-3*(d.Max-d.Min) {
			t.Fatalf("%s: got %f, want %f", d.Name, back.Vals[i], cand.Vals[i])
		}
	}
	if knobIndex(defs, karplus.ParamDecay) != 1 || knobIndex(defs, "missing") != -1 {
		t.Fatalf("knobIndex mismatch")
	}
}

func TestFocusForWidensEveryFourthRound(t *testing.T) {
	sens := []knobSensitivity{{index: 4}, {index: 1}, {index: 6}, {index: 2}}
	if got := focusFor(1, sens, 2); len(got) != 2 || got[0] != 4 || got[1] != 1 {
		t.Fatalf("round 1 focus = %v, want [4 1]", got)
	}
	if got := focusFor(4, sens, 2); len(got) != 4 {
		t.Fatalf("round 4 focus = %v, want all 4 knobs", got)
	}
	if got := focusFor(3, sens, 0); len(got) != 4 {
		t.Fatalf("focus 0 = %v, want all 4 knobs", got)
	}
	if roundWindow(1) != 1 || roundWindow(2) >= 1 || roundWindow(100) != 0.1 {
		t.Fatalf("window: %f %f %f", roundWindow(1), roundWindow(2), roundWindow(100))
	}
}

// TestOptimizationFitsSyntheticTarget swaps the render for a closed-form
// objective: the waveform must match exactly and decay dominates the rest.
func TestOptimizationFitsSyntheticTarget(t *testing.T) {
	base := karplus.NewDefaultParams()
	base.Waveform = karplus.Sine
	defs, start := initCandidate(base, false)
	src := knobIndex(defs, karplus.ParamSource)
	decay := knobIndex(defs, karplus.ParamDecay)

	target := toNormalized(start, defs)
	target[decay] = clamp(target[decay]+0.3, 0, 1)
	if target[decay]-toNormalized(start, defs)[decay] < 0.2 {
		target[decay] -= 0.6
	}
	var calls atomic.Int64
	objective := func(_ *candidateRenderer, c candidate) (analysis.Metrics, error) {
		calls.Add(1)
		pos := toNormalized(c, defs)
		score := 0.0
		if c.Vals[src] != float64(karplus.Noise) {
			score++
		}
		for i, d := range defs {
			w := 0.1
			if i == decay {
				w = 10
			}
			if !d.IsInt {
				score += w * math.Abs(pos[i]-target[i])
			}
		}
		return analysis.Metrics{Score: score}, nil
	}
	initial, _ := objective(nil, start)

	dir := t.TempDir()
	res, err := runOptimization(&optimizationConfig{
		baseParams:       base,
		defs:             defs,
		initCandidate:    start,
		settings:         testSettings(),
		objective:        objective,
		seed:             7,
		timeBudget:       30,
		maxEvals:         400,
		checkpointEvery:  1,
		scanWaveforms:    true,
		sensitivityStep:  0.1,
		focusKnobs:       2,
		mayflyVariant:    "desma",
		mayflyPop:        4,
		mayflyRoundEvals: 40,
		workers:          2,
		paths:            outputPaths{outputPreset: filepath.Join(dir, "fitted.json")},
	})
	if err != nil {
		t.Fatalf("runOptimization: %v", err)
	}
	calls.Add(-1) // the initial score computed above
	if res.evals > 400 || int64(res.evals) != calls.Load() {
		t.Fatalf("evals = %d, objective calls = %d, budget 400", res.evals, calls.Load())
	}
	if res.best.Vals[src] != float64(karplus.Noise) {
		t.Fatalf("source = %v, want %v", res.best.Vals[src], float64(karplus.Noise))
	}
	if res.bestMetrics.Score >= initial.Score-1 {
		t.Fatalf("score %f did not improve past the waveform scan (initial %f)", res.bestMetrics.Score, initial.Score)
	}
	if len(res.sensitivity) == 0 || res.sensitivity[0].Name != karplus.ParamDecay {
		t.Fatalf("sensitivity ranking = %+v, want %s first", res.sensitivity, karplus.ParamDecay)
	}
	for _, s := range res.sensitivity {
		if s.Name == karplus.ParamSource || s.Name == knobVelocity {
			t.Fatalf("discrete knob %s ranked for Mayfly", s.Name)
		}
	}
	if res.checkpoints < 1 {
		t.Fatalf("checkpoints = %d, want >= 1", res.checkpoints)
	}

	sum := fitSummary{defs: defs, best: res.best, metrics: res.bestMetrics, base: base, sensitivity: res.sensitivity}
	paths := outputPaths{outputPreset: filepath.Join(dir, "final.json")}
	if err := writeOutputs(paths, sum); err != nil {
		t.Fatalf("writeOutputs: %v", err)
	}
	b, err := os.ReadFile(paths.report())
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var rep runReport
	if err := json.Unmarshal(b, &rep); err != nil {
		t.Fatalf("parse report: %v", err)
	}
	if len(rep.Sensitivity) != len(res.sensitivity) || rep.Sensitivity[0].Name != karplus.ParamDecay {
		t.Fatalf("report sensitivity = %+v", rep.Sensitivity)
	}
}
