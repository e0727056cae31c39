package karplus

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Waveform selects the exciter burst shape.
type Waveform int

const (
	Sine Waveform = iota
	Sawtooth
	Square
	Noise
)

var waveformNames = [...]string{"Sinusoid", "Sawtooth", "Square", "Noise"}

func (w Waveform) String() string {
	if w < 0 || int(w) >= len(waveformNames) {
		return "Waveform(" + strconv.Itoa(int(w)) + ")"
	}
	return waveformNames[w]
}

// ParseWaveform accepts a display name ("Sinusoid", "sine", "saw", ...) or
// an index 0..3.
func ParseWaveform(s string) (Waveform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "sine", "sin", "sinusoid":
		return Sine, nil
	case "1", "saw", "sawtooth":
		return Sawtooth, nil
	case "2", "square", "sqr":
		return Square, nil
	case "3", "noise", "white":
		return Noise, nil
	}
	return Sine, fmt.Errorf("unknown waveform %q", s)
}

// Exciter produces the decaying burst that seeds a voice's delay line.
// Its gain starts at 1 on Trigger and falls linearly to 0 over the burst
// width; once at 0 it contributes nothing.
type Exciter struct {
	waveform     Waveform
	gain         float32
	burstWidth   float32
	elapsed      int
	noiseState   uint32
	defaultState uint32
}

func newExciter(seed uint32) Exciter {
	if seed == 0 {
		seed = 0x2545f491
	}
	return Exciter{noiseState: seed, defaultState: seed}
}

// Trigger restarts the burst. The noise generator is not reseeded.
func (e *Exciter) Trigger(w Waveform, burstWidth float32) {
	e.waveform = w
	e.burstWidth = burstWidth
	e.gain = 1
	e.elapsed = 0
}

// Gain returns the current burst envelope value.
func (e *Exciter) Gain() float32 {
	return e.gain
}

// Next returns the burst sample for phase scaled by the current gain, then
// advances the envelope by 1/(burstWidth*sampleRate).
func (e *Exciter) Next(phase float32, sampleRate float32) float32 {
	out := e.shape(phase) * e.gain

	e.elapsed++
	burstSamples := e.burstWidth * sampleRate
	g := 1 - float32(e.elapsed)/burstSamples
	if g < 0 || math.IsNaN(float64(g)) {
		g = 0
	}
	e.gain = g
	return out
}

func (e *Exciter) shape(phase float32) float32 {
	switch e.waveform {
	case Sine:
		return float32(math.Sin(2 * math.Pi * float64(phase)))
	case Sawtooth:
		return float32(math.Mod(float64(phase)*2, 2)) - 1
	case Square:
		if math.Sin(2*math.Pi*float64(phase)) >= 0 {
			return 1
		}
		return -1
	case Noise:
		return 2 * (e.nextUniform() - 0.5)
	}
	return 0
}

// nextUniform returns a uniform value in [0,1).
func (e *Exciter) nextUniform() float32 {
	return float32(xorshift32(&e.noiseState)>>8) / float32(1<<24)
}

func (e *Exciter) reseed() {
	e.noiseState = e.defaultState
}

func xorshift32(state *uint32) uint32 {
	x := *state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	*state = x
	return x
}
