package main

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-karplus/analysis"
	"github.com/cwbudde/algo-karplus/karplus"
	"github.com/cwbudde/mayfly"
)

// objectiveFunc scores one candidate. r belongs to the calling worker.
type objectiveFunc func(r *candidateRenderer, c candidate) (analysis.Metrics, error)

type optimizationConfig struct {
	reference     []float64
	baseParams    *karplus.Params
	defs          []knobDef
	initCandidate candidate
	settings      renderSettings
	objective     objectiveFunc // nil renders and compares against reference

	seed             int64
	timeBudget       float64
	maxEvals         int
	reportEvery      int
	checkpointEvery  int
	scanWaveforms    bool
	sensitivityStep  float64
	focusKnobs       int
	mayflyVariant    string
	mayflyPop        int
	mayflyRoundEvals int
	workers          int

	paths              outputPaths
	writeBestCandidate string
	logger             *slog.Logger
}

// knobSensitivity is the largest score change seen when one knob moves by
// the sensitivity step from the starting candidate.
type knobSensitivity struct {
	Name  string  `json:"name"`
	Delta float64 `json:"delta"`
	index int
}

type optimizationResult struct {
	best        candidate
	bestMetrics analysis.Metrics
	evals       int
	elapsed     float64
	checkpoints int
	sensitivity []knobSensitivity
}

// fitter runs the three fit stages: waveform scan, sensitivity ranking and
// focused Mayfly rounds. It owns the shared best candidate.
type fitter struct {
	cfg       *optimizationConfig
	objective objectiveFunc
	logger    *slog.Logger
	start     time.Time
	deadline  time.Time
	evals     atomic.Int64
	improves  atomic.Int64
	rounds    atomic.Int64

	mu          sync.Mutex
	best        candidate
	bestMetrics analysis.Metrics

	// persistMu serializes checkpoint and snapshot writes.
	persistMu   sync.Mutex
	persisted   int64
	checkpoints int
	snapshot    *candidateRenderer
}

func runOptimization(cfg *optimizationConfig) (*optimizationResult, error) {
	f := &fitter{
		cfg:       cfg,
		objective: cfg.objective,
		logger:    cfg.logger,
		start:     time.Now(),
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.objective == nil {
		f.objective = func(r *candidateRenderer, c candidate) (analysis.Metrics, error) {
			p, velocity, releaseAfter := applyCandidate(cfg.baseParams, cfg.defs, c)
			mono, _, err := r.render(p, velocity, releaseAfter)
			if err != nil {
				return analysis.Metrics{}, err
			}
			return analysis.Compare(cfg.reference, mono, cfg.settings.sampleRate), nil
		}
	}
	f.deadline = f.start.Add(time.Duration(cfg.timeBudget * float64(time.Second)))

	r, err := newCandidateRenderer(cfg.settings)
	if err != nil {
		return nil, err
	}
	first, err := f.objective(r, cfg.initCandidate)
	if err != nil {
		return nil, fmt.Errorf("initial evaluation failed: %w", err)
	}
	f.evals.Store(1)
	f.best, f.bestMetrics = cloneCandidate(cfg.initCandidate), first
	f.logger.Info("start", append([]any{"score", first.Score, "dominant", first.Dominant}, describe(cfg.defs, f.best)...)...)

	if cfg.scanWaveforms {
		if err := f.scanWaveforms(r); err != nil {
			return nil, err
		}
	}
	sens, err := f.rankSensitivity(r)
	if err != nil {
		return nil, err
	}
	f.runRounds(sens)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.persistMu.Lock()
	defer f.persistMu.Unlock()
	return &optimizationResult{
		best:        cloneCandidate(f.best),
		bestMetrics: f.bestMetrics,
		evals:       int(f.evals.Load()),
		elapsed:     time.Since(f.start).Seconds(),
		checkpoints: f.checkpoints,
		sensitivity: sens,
	}, nil
}

func (f *fitter) exhausted() bool {
	return time.Now().After(f.deadline) || f.evals.Load() >= int64(f.cfg.maxEvals)
}

func (f *fitter) current() (candidate, analysis.Metrics) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneCandidate(f.best), f.bestMetrics
}

// evaluate scores c within the eval budget. ok is false once the budget or
// the deadline is spent.
func (f *fitter) evaluate(r *candidateRenderer, c candidate) (m analysis.Metrics, ok bool, err error) {
	if time.Now().After(f.deadline) {
		return m, false, nil
	}
	n, ok := reserveEval(&f.evals, f.cfg.maxEvals)
	if !ok {
		return m, false, nil
	}
	if m, err = f.objective(r, c); err != nil {
		return m, true, err
	}
	f.offer(c, m)
	if f.cfg.reportEvery > 0 && n%int64(f.cfg.reportEvery) == 0 {
		_, best := f.current()
		f.logger.Info("progress", "eval", n, "round", f.rounds.Load(), "elapsed", time.Since(f.start).Round(time.Millisecond), "best", best.Score)
	}
	return m, true, nil
}

// offer keeps c when it beats the current best and persists the result.
func (f *fitter) offer(c candidate, m analysis.Metrics) {
	f.mu.Lock()
	if m.Score >= f.bestMetrics.Score {
		f.mu.Unlock()
		return
	}
	f.best, f.bestMetrics = cloneCandidate(c), m
	n := f.improves.Add(1)
	f.mu.Unlock()

	f.logger.Info("improved", append([]any{"n", n, "score", m.Score, "dominant", m.Dominant, "t60", m.CandT60S}, describe(f.cfg.defs, c)...)...)
	f.persist(n, c, m)
}

func (f *fitter) persist(n int64, c candidate, m analysis.Metrics) {
	f.persistMu.Lock()
	defer f.persistMu.Unlock()
	if n <= f.persisted {
		return
	}
	f.persisted = n

	if f.cfg.writeBestCandidate != "" {
		if f.snapshot == nil {
			r, err := newCandidateRenderer(f.cfg.settings)
			if err != nil {
				f.logger.Warn("snapshot renderer unavailable", "err", err)
				return
			}
			f.snapshot = r
		}
		if err := writeBestCandidateSnapshot(f.cfg.writeBestCandidate, f.snapshot, f.cfg.baseParams, f.cfg.defs, c); err != nil {
			f.logger.Warn("failed to update best candidate wav", "err", err)
		}
	}
	if f.cfg.checkpointEvery <= 0 || n%int64(f.cfg.checkpointEvery) != 0 {
		return
	}
	sum := fitSummary{
		sampleRate:  f.cfg.settings.sampleRate,
		note:        f.cfg.settings.note,
		elapsed:     time.Since(f.start).Seconds(),
		evals:       int(f.evals.Load()),
		variant:     f.cfg.mayflyVariant,
		defs:        f.cfg.defs,
		best:        c,
		metrics:     m,
		base:        f.cfg.baseParams,
		checkpoints: f.checkpoints + 1,
	}
	if err := writeOutputs(f.cfg.paths, sum); err != nil {
		f.logger.Warn("checkpoint write failed", "err", err)
		return
	}
	f.checkpoints++
}

// scanWaveforms tries every exciter waveform on the current best. The
// source knob is discrete, so it is settled here rather than by Mayfly.
func (f *fitter) scanWaveforms(r *candidateRenderer) error {
	idx := knobIndex(f.cfg.defs, karplus.ParamSource)
	if idx < 0 {
		return nil
	}
	base, _ := f.current()
	for w := karplus.Sine; w <= karplus.Noise; w++ {
		if float64(w) == base.Vals[idx] {
			continue
		}
		c := cloneCandidate(base)
		c.Vals[idx] = float64(w)
		if _, ok, err := f.evaluate(r, c); err != nil {
			return fmt.Errorf("waveform %s: %w", w, err)
		} else if !ok {
			return nil
		}
	}
	best, m := f.current()
	f.logger.Info("waveform scan done", "source", karplus.Waveform(best.Vals[idx]).String(), "score", m.Score)
	return nil
}

// rankSensitivity nudges each continuous knob both ways from the current
// best and orders the knobs by the largest score change, largest first.
func (f *fitter) rankSensitivity(r *candidateRenderer) ([]knobSensitivity, error) {
	base, baseM := f.current()
	center := toNormalized(base, f.cfg.defs)
	var sens []knobSensitivity
	for i, d := range f.cfg.defs {
		if d.IsInt {
			continue
		}
		ks := knobSensitivity{Name: d.Name, index: i}
		for _, dir := range []float64{-1, 1} {
			pos := slices.Clone(center)
			pos[i] = clamp(pos[i]+dir*f.cfg.sensitivityStep, 0, 1)
			if pos[i] == center[i] {
				continue
			}
			m, ok, err := f.evaluate(r, fromNormalized(pos, f.cfg.defs))
			if err != nil {
				return nil, fmt.Errorf("sensitivity %s: %w", d.Name, err)
			}
			if !ok {
				break
			}
			ks.Delta = math.Max(ks.Delta, math.Abs(m.Score-baseM.Score))
		}
		sens = append(sens, ks)
	}
	sort.SliceStable(sens, func(a, b int) bool { return sens[a].Delta > sens[b].Delta })
	for _, s := range sens {
		f.logger.Debug("sensitivity", "knob", s.Name, "delta", s.Delta)
	}
	return sens, nil
}

// focusFor picks the knobs a round optimizes: the most sensitive ones, and
// every fourth round all of them so weak knobs still move.
func focusFor(round int, sens []knobSensitivity, focus int) []int {
	n := len(sens)
	if focus > 0 && focus < n && round%4 != 0 {
		n = focus
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = sens[i].index
	}
	return idx
}

// roundWindow is the normalized search width around the best candidate.
// It narrows as rounds accumulate and never drops below 0.1.
func roundWindow(round int) float64 {
	return math.Max(0.1, math.Pow(0.85, float64(round-1)))
}

func (f *fitter) runRounds(sens []knobSensitivity) {
	if len(sens) == 0 {
		return
	}
	var wg sync.WaitGroup
	for w := 0; w < max(f.cfg.workers, 1); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := newCandidateRenderer(f.cfg.settings)
			if err != nil {
				f.logger.Error("worker renderer failed", "err", err)
				return
			}
			for !f.exhausted() {
				if err := f.round(r, int(f.rounds.Add(1)), sens); err != nil {
					f.logger.Error("mayfly round failed", "err", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

// round runs one Mayfly search over the focus knobs inside a box centred
// on the current best. Knobs outside the focus stay at their best values.
func (f *fitter) round(r *candidateRenderer, round int, sens []knobSensitivity) error {
	focus := focusFor(round, sens, f.cfg.focusKnobs)
	best, _ := f.current()
	center := toNormalized(best, f.cfg.defs)
	half := roundWindow(round) / 2
	lo := make([]float64, len(focus))
	hi := make([]float64, len(focus))
	for j, k := range focus {
		lo[j] = math.Max(0, center[k]-half)
		hi[j] = math.Min(1, center[k]+half)
	}

	remaining := f.cfg.maxEvals - int(f.evals.Load())
	if remaining <= 0 {
		return nil
	}
	iters := max(1, min(f.cfg.mayflyRoundEvals, remaining)/(2*f.cfg.mayflyPop))
	mcfg, err := newMayflyConfig(f.cfg.mayflyVariant, f.cfg.mayflyPop, len(focus), iters)
	if err != nil {
		return err
	}
	mcfg.Rand = rand.New(rand.NewSource(f.cfg.seed ^ int64(round)*0x9e3779b1))

	pos := slices.Clone(center)
	mcfg.ObjectiveFunc = func(u []float64) float64 {
		for j, k := range focus {
			pos[k] = lo[j] + clamp(u[j], 0, 1)*(hi[j]-lo[j])
		}
		m, ok, err := f.evaluate(r, fromNormalized(pos, f.cfg.defs))
		switch {
		case !ok:
			return 1e9
		case err != nil:
			return 2
		}
		return m.Score
	}
	f.logger.Debug("round", "n", round, "knobs", len(focus), "window", 2*half, "iters", iters)
	_, err = runMayfly(mcfg)
	return err
}

// describe renders c as slog key/value pairs, waveform by name.
func describe(defs []knobDef, c candidate) []any {
	kv := make([]any, 0, 2*len(defs))
	for i, d := range defs {
		if d.Name == karplus.ParamSource {
			kv = append(kv, d.Name, karplus.Waveform(c.Vals[i]).String())
			continue
		}
		kv = append(kv, d.Name, math.Round(c.Vals[i]*1e4)/1e4)
	}
	return kv
}

func reserveEval(evals *atomic.Int64, maxEvals int) (int64, bool) {
	for {
		cur := evals.Load()
		if cur >= int64(maxEvals) {
			return 0, false
		}
		if evals.CompareAndSwap(cur, cur+1) {
			return cur + 1, true
		}
	}
}

var mayflyVariants = map[string]func() *mayfly.Config{
	"ma":      mayfly.NewDefaultConfig,
	"desma":   mayfly.NewDESMAConfig,
	"olce":    mayfly.NewOLCEConfig,
	"eobbma":  mayfly.NewEOBBMAConfig,
	"gsasma":  mayfly.NewGSASMAConfig,
	"mpma":    mayfly.NewMPMAConfig,
	"aoblmoa": mayfly.NewAOBLMOAConfig,
}

// newMayflyConfig builds a unit-cube search of dims dimensions with equal
// male and female populations.
func newMayflyConfig(variant string, pop int, dims int, iters int) (*mayfly.Config, error) {
	mk, ok := mayflyVariants[strings.ToLower(variant)]
	if !ok {
		return nil, fmt.Errorf("unsupported variant %q", variant)
	}
	cfg := mk()
	cfg.ProblemSize = dims
	cfg.LowerBound, cfg.UpperBound = 0, 1
	cfg.MaxIterations = iters
	cfg.NPop, cfg.NPopF = pop, pop
	cfg.NC = 2 * pop
	cfg.NM = max(1, pop/20)
	return cfg, nil
}

func runMayfly(cfg *mayfly.Config) (res *mayfly.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mayfly panic: %v", r)
		}
	}()
	return mayfly.Optimize(cfg)
}
