package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/cwbudde/algo-karplus/karplus"
)

// knobDef is one optimizer dimension. Param knobs map onto a synth
// parameter and move along its skewed range; render knobs are linear.
type knobDef struct {
	Name  string
	Min   float64
	Max   float64
	IsInt bool
	Param bool
}

type candidate struct {
	Vals []float64
}

const (
	knobVelocity     = "render.velocity"
	knobReleaseAfter = "render.release_after"
)

// fitParams are the synth parameters the optimizer moves. Gain is omitted:
// the distance metric normalizes loudness.
var fitParams = []string{
	karplus.ParamSource,
	karplus.ParamDecay,
	karplus.ParamWidth,
	karplus.ParamFilterCutoff,
	karplus.ParamLowCutoff,
	karplus.ParamReverbSize,
	karplus.ParamReverbMix,
}

func initCandidate(base *karplus.Params, fitRelease bool) ([]knobDef, candidate) {
	var defs []knobDef
	var vals []float64
	for _, id := range fitParams {
		spec, _ := karplus.LookupParam(id)
		v, _ := base.Get(id)
		defs = append(defs, knobDef{
			Name:  id,
			Min:   float64(spec.Range.Min),
			Max:   float64(spec.Range.Max),
			IsInt: id == karplus.ParamSource,
			Param: true,
		})
		vals = append(vals, float64(v))
	}

	defs = append(defs, knobDef{Name: knobVelocity, Min: 40, Max: 127, IsInt: true})
	vals = append(vals, 100)
	if fitRelease {
		defs = append(defs, knobDef{Name: knobReleaseAfter, Min: 0.05, Max: 4})
		vals = append(vals, 1)
	}

	for i := range vals {
		vals[i] = clamp(vals[i], defs[i].Min, defs[i].Max)
	}
	return defs, candidate{Vals: vals}
}

// fromNormalized maps optimizer positions in [0,1] to knob values.
func fromNormalized(pos []float64, defs []knobDef) candidate {
	vals := make([]float64, len(defs))
	for i, d := range defs {
		x := 0.0
		if i < len(pos) {
			x = clamp(pos[i], 0, 1)
		}
		var v float64
		if spec, ok := karplus.LookupParam(d.Name); ok && d.Param {
			v = float64(spec.Range.FromNormalized(float32(x)))
		} else {
			v = d.Min + x*(d.Max-d.Min)
		}
		if d.IsInt {
			v = math.Round(v)
		}
		vals[i] = v
	}
	return candidate{Vals: vals}
}

// toNormalized is the inverse of fromNormalized.
func toNormalized(c candidate, defs []knobDef) []float64 {
	pos := make([]float64, len(defs))
	for i, d := range defs {
		if spec, ok := karplus.LookupParam(d.Name); ok && d.Param {
			pos[i] = float64(spec.Range.ToNormalized(float32(c.Vals[i])))
		} else if d.Max > d.Min {
			pos[i] = (c.Vals[i] - d.Min) / (d.Max - d.Min)
		}
		pos[i] = clamp(pos[i], 0, 1)
	}
	return pos
}

func knobIndex(defs []knobDef, name string) int {
	for i, d := range defs {
		if d.Name == name {
			return i
		}
	}
	return -1
}

// applyCandidate returns a params copy with c applied, plus the render
// velocity (0..1) and release time in seconds (0 holds the note).
func applyCandidate(base *karplus.Params, defs []knobDef, c candidate) (*karplus.Params, float32, float64) {
	p := *base
	velocity := float32(100.0 / 127.0)
	releaseAfter := 0.0

	for i, d := range defs {
		v := c.Vals[i]
		switch {
		case d.Param:
			_ = p.Set(d.Name, float32(v))
		case d.Name == knobVelocity:
			velocity = float32(clamp(math.Round(v), 1, 127) / 127)
		case d.Name == knobReleaseAfter:
			releaseAfter = math.Max(v, 0.05)
		}
	}
	return &p, velocity, releaseAfter
}

func loadCandidateFromReport(path string, defs []knobDef, fallback candidate) (candidate, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fallback, false, nil
		}
		return fallback, false, err
	}
	var rep runReport
	if err := json.Unmarshal(b, &rep); err != nil {
		return fallback, false, fmt.Errorf("parse report %s: %w", path, err)
	}
	if len(rep.BestKnobs) == 0 {
		return fallback, false, nil
	}

	vals := make([]float64, len(fallback.Vals))
	copy(vals, fallback.Vals)
	updated := false
	for i, d := range defs {
		if v, ok := rep.BestKnobs[d.Name]; ok {
			vals[i] = clamp(v, d.Min, d.Max)
			if d.IsInt {
				vals[i] = math.Round(vals[i])
			}
			updated = true
		}
	}
	if !updated {
		return fallback, false, nil
	}
	return candidate{Vals: vals}, true, nil
}

func cloneCandidate(c candidate) candidate {
	vals := make([]float64, len(c.Vals))
	copy(vals, c.Vals)
	return candidate{Vals: vals}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
