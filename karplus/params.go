package karplus

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-approx"
)

// Parameter ids.
const (
	ParamGain         = "gain"
	ParamSource       = "source"
	ParamDecay        = "decay"
	ParamWidth        = "width"
	ParamFilterCutoff = "filterCutoff"
	ParamLowCutoff    = "lowFilterCutoff"
	ParamTremoloRate  = "tremoloRate"
	ParamTremoloDepth = "tremoloDepth"
	ParamReverbSize   = "reverbSize"
	ParamReverbMix    = "reverbMix"
)

// ErrUnknownParam is returned by Params.Set and Params.Get for ids not in ParamSpecs.
var ErrUnknownParam = errors.New("unknown parameter")

// Params is the snapshot read once per rendered block.
type Params struct {
	Gain         float32
	Waveform     Waveform
	Decay        float32
	BurstWidth   float32 // seconds
	ExciteCutoff float32 // Hz, feedback filter
	LowCutoff    float32 // Hz, output high-pass
	TremoloRate  float32 // Hz
	TremoloDepth float32
	ReverbSize   float32
	ReverbMix    float32
}

// NewDefaultParams creates default parameters.
func NewDefaultParams() *Params {
	return &Params{
		Gain:         0.5,
		Waveform:     Sine,
		Decay:        0.97,
		BurstWidth:   0.005,
		ExciteCutoff: 2000,
		LowCutoff:    20,
		TremoloRate:  2,
		TremoloDepth: 0,
		ReverbSize:   0.5,
		ReverbMix:    0.5,
	}
}

// Range maps between a parameter's natural value and a normalized [0,1]
// control position. Skew < 1 spends more of the control travel on the low end.
type Range struct {
	Min, Max float32
	Step     float32
	Skew     float32
}

// FromNormalized converts a control position in [0,1] to a value.
func (r Range) FromNormalized(p float32) float32 {
	switch {
	case p <= 0:
		return r.Min
	case p >= 1:
		return r.Max
	}
	if r.Skew > 0 && r.Skew != 1 {
		p = approx.FastExp(float32(math.Log(float64(p))) / r.Skew)
	}
	return r.Min + (r.Max-r.Min)*p
}

// ToNormalized converts a value to a control position in [0,1].
func (r Range) ToNormalized(v float32) float32 {
	span := r.Max - r.Min
	if span <= 0 {
		return 0
	}
	p := (v - r.Min) / span
	switch {
	case p <= 0:
		return 0
	case p >= 1:
		return 1
	}
	if r.Skew > 0 && r.Skew != 1 {
		p = approx.FastExp(float32(math.Log(float64(p))) * r.Skew)
	}
	return p
}

// Snap clamps v to the range and rounds it to the nearest step.
func (r Range) Snap(v float32) float32 {
	if r.Step > 0 {
		v = r.Min + r.Step*float32(math.Round(float64((v-r.Min)/r.Step)))
	}
	return clampf(v, r.Min, r.Max)
}

// Contains reports whether v lies within [Min, Max].
func (r Range) Contains(v float32) bool {
	return v >= r.Min && v <= r.Max
}

// ParamSpec describes one host-visible parameter.
type ParamSpec struct {
	ID      string
	Name    string
	Range   Range
	Default float32
}

var paramSpecs = []ParamSpec{
	{ParamGain, "Gain", Range{0, 1, 0.01, 1}, 0.5},
	{ParamSource, "Source", Range{0, 3, 1, 1}, 0},
	{ParamDecay, "Decay", Range{0.8, 1, 0.01, 1}, 0.97},
	{ParamWidth, "Width", Range{0.001, 0.02, 0.001, 1}, 0.005},
	{ParamFilterCutoff, "Filter Cutoff", Range{20, 20000, 1, 0.3}, 2000},
	{ParamLowCutoff, "Low Filter Cutoff", Range{20, 500, 1, 0.3}, 20},
	{ParamTremoloRate, "Tremolo Rate", Range{0.1, 20, 0.01, 1}, 2},
	{ParamTremoloDepth, "Tremolo Depth", Range{0, 1, 0.01, 1}, 0},
	{ParamReverbSize, "Reverb Size", Range{0, 1, 0.01, 1}, 0.5},
	{ParamReverbMix, "Reverb Mix", Range{0, 1, 0.01, 1}, 0.5},
}

// ParamSpecs returns descriptors for every parameter in display order.
func ParamSpecs() []ParamSpec {
	out := make([]ParamSpec, len(paramSpecs))
	copy(out, paramSpecs)
	return out
}

// LookupParam returns the descriptor for id.
func LookupParam(id string) (ParamSpec, bool) {
	for _, s := range paramSpecs {
		if s.ID == id {
			return s, true
		}
	}
	return ParamSpec{}, false
}

func (p *Params) field(id string) *float32 {
	switch id {
	case ParamGain:
		return &p.Gain
	case ParamDecay:
		return &p.Decay
	case ParamWidth:
		return &p.BurstWidth
	case ParamFilterCutoff:
		return &p.ExciteCutoff
	case ParamLowCutoff:
		return &p.LowCutoff
	case ParamTremoloRate:
		return &p.TremoloRate
	case ParamTremoloDepth:
		return &p.TremoloDepth
	case ParamReverbSize:
		return &p.ReverbSize
	case ParamReverbMix:
		return &p.ReverbMix
	}
	return nil
}

// Set assigns a parameter by id. Values are stored as given; the source
// parameter is rounded to the nearest waveform index and clamped.
func (p *Params) Set(id string, value float32) error {
	if id == ParamSource {
		idx := int(math.Round(float64(value)))
		if idx < int(Sine) {
			idx = int(Sine)
		}
		if idx > int(Noise) {
			idx = int(Noise)
		}
		p.Waveform = Waveform(idx)
		return nil
	}
	f := p.field(id)
	if f == nil {
		return fmt.Errorf("%w: %q", ErrUnknownParam, id)
	}
	*f = value
	return nil
}

// Get returns a parameter by id.
func (p *Params) Get(id string) (float32, error) {
	if id == ParamSource {
		return float32(p.Waveform), nil
	}
	f := p.field(id)
	if f == nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownParam, id)
	}
	return *f, nil
}

// Validate checks every value against its declared range.
func (p *Params) Validate() error {
	for _, s := range paramSpecs {
		v, _ := p.Get(s.ID)
		if !isFinite(v) || !s.Range.Contains(v) {
			return fmt.Errorf("%s must be in [%g,%g]", s.ID, s.Range.Min, s.Range.Max)
		}
	}
	return nil
}
