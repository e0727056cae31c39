package karplus

import (
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"

	"github.com/cwbudde/algo-karplus/dsp"
)

// DelayLineSeconds is the fixed capacity of every voice's delay line.
const DelayLineSeconds = 1.0

// Voice is one Karplus-Strong string: an exciter burst recirculating through
// a ring delay line with a first-order lowpass and a decay factor in the loop.
//
// Pitches whose period exceeds the delay capacity (below 1 Hz) wrap modulo
// the buffer length and alias to the wrong delay. The delay is truncated to
// whole samples, so pitch is quantized.
type Voice struct {
	sampleRate float32
	delay      *dsp.RingBuffer
	readPos    int
	writePos   int

	note       int
	freq       float32
	delayTime  float32 // seconds, 1/freq
	decay      float32
	burstWidth float32
	phase      float32
	noteGain   float32
	active     bool

	exciter  Exciter
	cutoff   float32
	feedback *biquad.Section
}

// NewVoice creates an idle voice. seed feeds the voice's noise generator.
func NewVoice(sampleRate float32, seed uint32) *Voice {
	size := int(math.Round(float64(sampleRate) * DelayLineSeconds))
	return &Voice{
		sampleRate: sampleRate,
		delay:      dsp.NewRingBuffer(size),
		exciter:    newExciter(seed),
		cutoff:     2000,
		feedback:   biquad.NewSection(feedbackCoefficients(2000, sampleRate)),
	}
}

// feedbackCoefficients designs the single-pole loop filter. The cutoff is
// kept inside (0, Nyquist), where the design is defined.
func feedbackCoefficients(cutoff, sampleRate float32) biquad.Coefficients {
	fc := math.Min(math.Max(float64(cutoff), 1), 0.49*float64(sampleRate))
	return design.ButterworthLP(fc, 1, float64(sampleRate))[0]
}

// StartNote (re)starts the voice on note. The delay line contents are kept;
// the feedback filter is retuned to cutoff and its state cleared.
func (v *Voice) StartNote(note int, velocity, decay, burstWidth float32, waveform Waveform, cutoff float32) {
	v.note = note
	v.freq = midiNoteToFreq(note)
	v.delayTime = 1.0 / v.freq
	v.noteGain = velocity
	v.writePos = 0
	v.active = true

	v.decay = decay
	v.burstWidth = burstWidth
	v.exciter.Trigger(waveform, burstWidth)

	if cutoff != v.cutoff {
		v.cutoff = cutoff
		v.feedback.Coefficients = feedbackCoefficients(cutoff, v.sampleRate)
	}
	v.feedback.Reset()
}

// StopNote marks the voice idle. Buffered resonance is dropped immediately.
func (v *Voice) StopNote() {
	v.active = false
}

// IsActive reports whether the voice contributes audio.
func (v *Voice) IsActive() bool {
	return v.active
}

// RenderNextSample advances the string by one sample. It must be called once
// per output sample, in order. Idle voices return 0 without touching state.
func (v *Voice) RenderNextSample(sampleRate float32) float32 {
	if !v.active {
		return 0
	}

	v.readPos = v.delay.Wrap(v.writePos - int(v.delayTime*sampleRate))

	var in float32
	if v.exciter.Gain() > 0 {
		in = v.exciter.Next(v.phase, sampleRate)
	}

	v.phase += v.freq / sampleRate
	if v.phase >= 1 {
		v.phase -= 1
	}

	delayed := v.delay.Read(v.readPos)
	filtered := float32(dspcore.FlushDenormals(v.feedback.ProcessSample(float64(delayed))))

	v.delay.Write(v.writePos, in+filtered*v.decay)

	v.readPos = v.delay.Wrap(v.readPos + 1)
	v.writePos = v.delay.Wrap(v.writePos + 1)

	return filtered * v.noteGain
}

// Note returns the MIDI note last started on this voice.
func (v *Voice) Note() int {
	return v.note
}

// Frequency returns the fundamental of the current note in Hz.
func (v *Voice) Frequency() float32 {
	return v.freq
}

// DelaySamples returns the integer loop delay for the voice's sample rate.
func (v *Voice) DelaySamples() int {
	return int(v.delayTime * v.sampleRate)
}

// ExciterGain returns the current exciter envelope value.
func (v *Voice) ExciterGain() float32 {
	return v.exciter.Gain()
}

// DelayLen returns the delay line capacity in samples.
func (v *Voice) DelayLen() int {
	return v.delay.Len()
}

// Reset silences the voice and clears every piece of state, including the
// delay line and the noise generator.
func (v *Voice) Reset() {
	v.active = false
	v.readPos = 0
	v.writePos = 0
	v.phase = 0
	v.delay.Reset()
	v.feedback.Reset()
	v.exciter.gain = 0
	v.exciter.elapsed = 0
	v.exciter.reseed()
}
