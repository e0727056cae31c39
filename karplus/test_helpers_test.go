package karplus

import (
	"math"
	"testing"
)

func measureFundamentalFreq(samples []float32, sampleRate float32) float32 {
	startIdx := len(samples) / 10
	crossings := 0
	for i := startIdx + 1; i < len(samples); i++ {
		if (samples[i-1] < 0 && samples[i] >= 0) || (samples[i-1] >= 0 && samples[i] < 0) {
			crossings++
		}
	}
	if crossings == 0 {
		return 0
	}
	duration := float32(len(samples)-startIdx) / sampleRate
	return float32(crossings) / (2.0 * duration)
}

func windowRMS(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// renderLeft plays events at frame 0 and returns numFrames of the left channel.
func renderLeft(t *testing.T, s *Synth, events []Event, p *Params, numFrames int) []float32 {
	t.Helper()
	out := make([]float32, 0, numFrames)
	pending := events
	for len(out) < numFrames {
		n := s.BlockSize()
		if rem := numFrames - len(out); rem < n {
			n = rem
		}
		block := s.RenderBlock(pending, p, n)
		pending = nil
		if len(block) != 2*n {
			t.Fatalf("unexpected block length: got=%d want=%d", len(block), 2*n)
		}
		for i := 0; i < n; i++ {
			if block[2*i] != block[2*i+1] {
				t.Fatalf("channels differ at frame %d: L=%f R=%f", len(out), block[2*i], block[2*i+1])
			}
			out = append(out, block[2*i])
		}
	}
	return out
}

// heldNoteParams disables every stage that would obscure the string itself.
func heldNoteParams() *Params {
	p := NewDefaultParams()
	p.Gain = 1
	p.Decay = 1
	p.Waveform = Sine
	p.ExciteCutoff = 2000
	p.LowCutoff = 20
	p.TremoloDepth = 0
	p.ReverbMix = 0
	return p
}

func newTestSynth(t *testing.T, opts ...Option) *Synth {
	t.Helper()
	s, err := NewSynth(48000, 256, opts...)
	if err != nil {
		t.Fatalf("NewSynth: %v", err)
	}
	return s
}
