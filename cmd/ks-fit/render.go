package main

import (
	"github.com/cwbudde/algo-karplus/internal/wavio"
	"github.com/cwbudde/algo-karplus/karplus"
	"github.com/cwbudde/algo-karplus/render"
)

type renderSettings struct {
	note            int
	sampleRate      int
	seed            uint32
	decayDBFS       float64
	decayHoldBlocks int
	minDuration     float64
	maxDuration     float64
}

// candidateRenderer owns one synth and is not safe for concurrent use;
// every optimizer worker builds its own.
type candidateRenderer struct {
	settings renderSettings
	synth    *karplus.Synth
}

func newCandidateRenderer(rs renderSettings) (*candidateRenderer, error) {
	s, err := karplus.NewSynth(float32(rs.sampleRate), 256, karplus.WithSeed(rs.seed))
	if err != nil {
		return nil, err
	}
	return &candidateRenderer{settings: rs, synth: s}, nil
}

// render returns the mono mixdown and the interleaved stereo render.
func (r *candidateRenderer) render(p *karplus.Params, velocity float32, releaseAfter float64) ([]float64, []float32, error) {
	r.synth.Reset()
	opts := render.DefaultOptions()
	opts.DecayDBFS = r.settings.decayDBFS
	opts.DecayHoldBlocks = r.settings.decayHoldBlocks
	opts.MinDuration = r.settings.minDuration
	opts.MaxDuration = r.settings.maxDuration
	res, err := render.Note(r.synth, r.settings.note, velocity, releaseAfter, p, opts)
	if err != nil {
		return nil, nil, err
	}
	return wavio.StereoToMono64(res.Samples), res.Samples, nil
}
