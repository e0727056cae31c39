package karplus

import (
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	effects "github.com/cwbudde/algo-dsp/dsp/effects/reverb"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

const (
	highpassQ = 1 / math.Sqrt2

	// Freeverb settings: damping 0.5, wet 0.33 and dry 0.4 on the engine's
	// internal scales, mono input summed from two identical channels.
	reverbDamp       = 0.2
	reverbWet        = 0.99
	reverbDry        = 0.8
	reverbInputGain  = 0.03
	reverbRoomOffset = 0.7
	reverbRoomScale  = 0.28
)

// EffectsChain is the shared post-processing applied to the summed voices:
// high-pass, tremolo, reverb blend and output gain.
type EffectsChain struct {
	sampleRate   float64
	highpass     *biquad.Section
	reverb       *effects.Reverb
	tremoloPhase float64

	dry []float64
	wet []float64
}

// NewEffectsChain creates a chain with scratch buffers for blockSize frames.
func NewEffectsChain(sampleRate float64, blockSize int) *EffectsChain {
	c := &EffectsChain{
		highpass: biquad.NewSection(biquad.Coefficients{}),
		reverb:   effects.NewReverb(),
	}
	c.reverb.SetDamp(reverbDamp)
	c.reverb.SetWet(reverbWet)
	c.reverb.SetDry(reverbDry)
	c.reverb.SetGain(reverbInputGain)
	c.Prepare(sampleRate, blockSize)
	return c
}

// Prepare resizes scratch buffers and clears all filter, LFO and reverb state.
func (c *EffectsChain) Prepare(sampleRate float64, blockSize int) {
	c.sampleRate = sampleRate
	c.dry = dspcore.EnsureLen(c.dry, blockSize)
	c.wet = dspcore.EnsureLen(c.wet, blockSize)
	c.Reset()
}

// Reset clears state without touching buffer sizes.
func (c *EffectsChain) Reset() {
	c.highpass.Reset()
	c.reverb.Reset()
	c.tremoloPhase = 0
	dspcore.Zero(c.dry)
	dspcore.Zero(c.wet)
}

// Process transforms the mono voice sum in mix into interleaved stereo out,
// which must hold 2*len(mix) samples. Parameters are read once for the block.
func (c *EffectsChain) Process(mix []float32, p *Params, out []float32) {
	n := len(mix)
	if len(c.dry) < n {
		// Only reached when a host renders more frames than it prepared for.
		c.dry = dspcore.EnsureLen(c.dry, n)
		c.wet = dspcore.EnsureLen(c.wet, n)
	}
	dry := c.dry[:n]
	wet := c.wet[:n]

	c.highpass.Coefficients = design.Highpass(float64(p.LowCutoff), highpassQ, c.sampleRate)

	depth := float64(p.TremoloDepth)
	step := float64(p.TremoloRate) / c.sampleRate
	for i, x := range mix {
		y := c.highpass.ProcessSample(float64(x))

		lfo := tremoloFactor(depth, c.tremoloPhase)
		c.tremoloPhase += step
		if c.tremoloPhase >= 1 {
			c.tremoloPhase -= math.Floor(c.tremoloPhase)
		}

		dry[i] = dspcore.FlushDenormals(y * lfo)
	}

	c.reverb.SetRoomSize(reverbRoomOffset + reverbRoomScale*float64(p.ReverbSize))
	copy(wet, dry)
	c.reverb.ProcessInPlace(wet)

	mixWet := float64(p.ReverbMix)
	mixDry := 1 - mixWet
	gain := float64(p.Gain)
	for i := 0; i < n; i++ {
		s := float32((dry[i]*mixDry + wet[i]*mixWet) * gain)
		out[2*i] = s
		out[2*i+1] = s
	}
}

// TremoloPhase returns the LFO phase in [0,1).
func (c *EffectsChain) TremoloPhase() float64 {
	return c.tremoloPhase
}

// tremoloFactor is the amplitude multiplier at phase; depth 0 yields exactly 1.
func tremoloFactor(depth, phase float64) float64 {
	return 1 - depth*0.5*(1+math.Sin(2*math.Pi*phase))
}
