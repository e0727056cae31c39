package preset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-karplus/karplus"
)

// File is the JSON schema for synth presets. Absent fields keep defaults.
type File struct {
	Gain            *float32 `json:"gain,omitempty"`
	Source          string   `json:"source,omitempty"`
	Decay           *float32 `json:"decay,omitempty"`
	Width           *float32 `json:"width,omitempty"`
	FilterCutoff    *float32 `json:"filter_cutoff,omitempty"`
	LowFilterCutoff *float32 `json:"low_filter_cutoff,omitempty"`
	TremoloRate     *float32 `json:"tremolo_rate,omitempty"`
	TremoloDepth    *float32 `json:"tremolo_depth,omitempty"`
	ReverbSize      *float32 `json:"reverb_size,omitempty"`
	ReverbMix       *float32 `json:"reverb_mix,omitempty"`

	IRWavPath string   `json:"ir_wav_path,omitempty"`
	IRWetMix  *float32 `json:"ir_wet_mix,omitempty"`
}

// Preset is a loaded preset: synth parameters plus offline render settings.
type Preset struct {
	Params    *karplus.Params
	IRWavPath string
	IRWetMix  float32
}

// LoadJSON loads a preset JSON file and applies it on top of default params.
// A relative ir_wav_path is resolved against the preset's directory.
func LoadJSON(path string) (*Preset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse preset %s: %w", path, err)
	}

	p := &Preset{Params: karplus.NewDefaultParams(), IRWetMix: 1}
	if err := ApplyFile(p.Params, &f); err != nil {
		return nil, err
	}
	if f.IRWetMix != nil {
		if *f.IRWetMix < 0 || *f.IRWetMix > 1 {
			return nil, fmt.Errorf("ir_wet_mix must be in [0,1]")
		}
		p.IRWetMix = *f.IRWetMix
	}
	if ir := strings.TrimSpace(f.IRWavPath); ir != "" {
		if !filepath.IsAbs(ir) {
			ir = filepath.Clean(filepath.Join(filepath.Dir(path), ir))
		}
		p.IRWavPath = ir
	}
	return p, nil
}

// ApplyFile applies a parsed preset file onto an existing params object.
func ApplyFile(dst *karplus.Params, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination params")
	}
	if f == nil {
		return nil
	}

	if f.Source != "" {
		w, err := karplus.ParseWaveform(f.Source)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		dst.Waveform = w
	}

	fields := []struct {
		id    string
		key   string
		value *float32
	}{
		{karplus.ParamGain, "gain", f.Gain},
		{karplus.ParamDecay, "decay", f.Decay},
		{karplus.ParamWidth, "width", f.Width},
		{karplus.ParamFilterCutoff, "filter_cutoff", f.FilterCutoff},
		{karplus.ParamLowCutoff, "low_filter_cutoff", f.LowFilterCutoff},
		{karplus.ParamTremoloRate, "tremolo_rate", f.TremoloRate},
		{karplus.ParamTremoloDepth, "tremolo_depth", f.TremoloDepth},
		{karplus.ParamReverbSize, "reverb_size", f.ReverbSize},
		{karplus.ParamReverbMix, "reverb_mix", f.ReverbMix},
	}
	for _, fl := range fields {
		if fl.value == nil {
			continue
		}
		spec, _ := karplus.LookupParam(fl.id)
		if !spec.Range.Contains(*fl.value) {
			return fmt.Errorf("%s must be in [%g,%g]", fl.key, spec.Range.Min, spec.Range.Max)
		}
		if err := dst.Set(fl.id, *fl.value); err != nil {
			return err
		}
	}
	return nil
}

// FromParams builds a complete preset file from p.
func FromParams(p *karplus.Params) *File {
	f := func(v float32) *float32 { return &v }
	return &File{
		Gain:            f(p.Gain),
		Source:          p.Waveform.String(),
		Decay:           f(p.Decay),
		Width:           f(p.BurstWidth),
		FilterCutoff:    f(p.ExciteCutoff),
		LowFilterCutoff: f(p.LowCutoff),
		TremoloRate:     f(p.TremoloRate),
		TremoloDepth:    f(p.TremoloDepth),
		ReverbSize:      f(p.ReverbSize),
		ReverbMix:       f(p.ReverbMix),
	}
}

// SaveJSON writes p as an indented preset file.
func SaveJSON(path string, p *karplus.Params) error {
	b, err := json.MarshalIndent(FromParams(p), "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write preset %s: %w", path, err)
	}
	return nil
}
