package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cwbudde/algo-karplus/analysis"
	"github.com/cwbudde/algo-karplus/internal/wavio"
	"github.com/cwbudde/algo-karplus/karplus"
	"github.com/cwbudde/algo-karplus/preset"
)

type runReport struct {
	ReferencePath   string             `json:"reference_path"`
	PresetPath      string             `json:"preset_path"`
	OutputPreset    string             `json:"output_preset"`
	SampleRate      int                `json:"sample_rate"`
	Note            int                `json:"note"`
	DurationSec     float64            `json:"elapsed_seconds"`
	Evaluations     int                `json:"evaluations"`
	MayflyVariant   string             `json:"mayfly_variant"`
	BestScore       float64            `json:"best_score"`
	BestSimilarity  float64            `json:"best_similarity"`
	BestMetrics     analysis.Metrics   `json:"best_metrics"`
	BestKnobs       map[string]float64 `json:"best_knobs"`
	CheckpointCount int                `json:"checkpoint_count"`
	Sensitivity     []knobSensitivity  `json:"sensitivity,omitempty"`
}

type outputPaths struct {
	outputPreset  string
	reportPath    string
	referencePath string
	presetPath    string
}

func (o outputPaths) report() string {
	if o.reportPath == "" {
		return o.outputPreset + ".report.json"
	}
	return o.reportPath
}

// fitSummary is the state written to the fitted preset and its report.
type fitSummary struct {
	sampleRate  int
	note        int
	elapsed     float64
	evals       int
	variant     string
	defs        []knobDef
	best        candidate
	metrics     analysis.Metrics
	base        *karplus.Params
	checkpoints int
	sensitivity []knobSensitivity
}

func writeOutputs(paths outputPaths, sum fitSummary) error {
	p, _, _ := applyCandidate(sum.base, sum.defs, sum.best)
	if err := os.MkdirAll(filepath.Dir(paths.outputPreset), 0o755); err != nil {
		return err
	}
	if err := preset.SaveJSON(paths.outputPreset, p); err != nil {
		return err
	}

	knobs := make(map[string]float64, len(sum.defs))
	for i, d := range sum.defs {
		knobs[d.Name] = sum.best.Vals[i]
	}
	rep := runReport{
		ReferencePath:   paths.referencePath,
		PresetPath:      paths.presetPath,
		OutputPreset:    paths.outputPreset,
		SampleRate:      sum.sampleRate,
		Note:            sum.note,
		DurationSec:     sum.elapsed,
		Evaluations:     sum.evals,
		MayflyVariant:   sum.variant,
		BestScore:       sum.metrics.Score,
		BestSimilarity:  sum.metrics.Similarity,
		BestMetrics:     sum.metrics,
		BestKnobs:       knobs,
		CheckpointCount: sum.checkpoints,
		Sensitivity:     sum.sensitivity,
	}
	return writeJSON(paths.report(), rep)
}

func writeBestCandidateSnapshot(path string, r *candidateRenderer, base *karplus.Params, defs []knobDef, best candidate) error {
	p, velocity, releaseAfter := applyCandidate(base, defs, best)
	_, stereo, err := r.render(p, velocity, releaseAfter)
	if err != nil {
		return err
	}
	return wavio.WriteStereo(path, stereo, r.settings.sampleRate)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o644)
}
