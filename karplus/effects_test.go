package karplus

import (
	"math"
	"testing"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

func TestTremoloDepthZeroIsUnity(t *testing.T) {
	for i := 0; i < 1000; i++ {
		phase := float64(i) / 1000
		if f := tremoloFactor(0, phase); f != 1 {
			t.Fatalf("depth 0 at phase %f: factor=%f", phase, f)
		}
	}
}

func TestTremoloFullDepthSwing(t *testing.T) {
	if f := tremoloFactor(1, 0.25); math.Abs(f) > 1e-12 {
		t.Fatalf("full depth trough got=%f want 0", f)
	}
	if f := tremoloFactor(1, 0.75); math.Abs(f-1) > 1e-12 {
		t.Fatalf("full depth peak got=%f want 1", f)
	}
	if f := tremoloFactor(0.5, 0); math.Abs(f-0.75) > 1e-12 {
		t.Fatalf("half depth at phase 0 got=%f want 0.75", f)
	}
}

func TestTremoloPhaseStaysWrapped(t *testing.T) {
	c := NewEffectsChain(48000, 480)
	p := NewDefaultParams()
	p.TremoloRate = 20
	p.TremoloDepth = 1

	mix := make([]float32, 480)
	out := make([]float32, 960)
	for b := 0; b < 200; b++ {
		c.Process(mix, p, out)
		if ph := c.TremoloPhase(); ph < 0 || ph >= 1 {
			t.Fatalf("tremolo phase escaped [0,1): %f", ph)
		}
	}
}

// TestReverbMixZeroMatchesDryChain rebuilds high-pass, tremolo and gain by
// hand and expects the chain to match it exactly across block boundaries.
func TestReverbMixZeroMatchesDryChain(t *testing.T) {
	const sr = 48000
	const blockSize = 128
	p := NewDefaultParams()
	p.LowCutoff = 80
	p.TremoloRate = 5
	p.TremoloDepth = 0.6
	p.ReverbMix = 0
	p.ReverbSize = 0.9
	p.Gain = 0.7

	input := make([]float32, blockSize*6)
	for i := range input {
		input[i] = float32(0.6*math.Sin(2*math.Pi*110*float64(i)/sr) + 0.3)
	}

	hp := biquad.NewSection(design.Highpass(80, 1/math.Sqrt2, sr))
	phase := 0.0
	want := make([]float32, len(input))
	for i, x := range input {
		y := hp.ProcessSample(float64(x))
		lfo := tremoloFactor(0.6, phase)
		phase += 5.0 / sr
		if phase >= 1 {
			phase -= 1
		}
		want[i] = float32(dspcore.FlushDenormals(y*lfo) * 0.7)
	}

	c := NewEffectsChain(sr, blockSize)
	out := make([]float32, 2*blockSize)
	for b := 0; b < len(input)/blockSize; b++ {
		c.Process(input[b*blockSize:(b+1)*blockSize], p, out)
		for i := 0; i < blockSize; i++ {
			n := b*blockSize + i
			if out[2*i] != out[2*i+1] {
				t.Fatalf("frame %d: channels differ", n)
			}
			if math.Abs(float64(out[2*i]-want[n])) > 1e-6 {
				t.Fatalf("frame %d: got=%f want=%f", n, out[2*i], want[n])
			}
		}
	}
}

func TestHighpassRemovesDC(t *testing.T) {
	c := NewEffectsChain(48000, 1024)
	p := NewDefaultParams()
	p.LowCutoff = 100
	p.ReverbMix = 0
	p.Gain = 1

	mix := make([]float32, 1024)
	for i := range mix {
		mix[i] = 1
	}
	out := make([]float32, 2048)
	for b := 0; b < 20; b++ {
		c.Process(mix, p, out)
	}
	if math.Abs(float64(out[2046])) > 1e-3 {
		t.Fatalf("DC leaked through high-pass: %f", out[2046])
	}
}

func TestReverbProducesTail(t *testing.T) {
	const blockSize = 512
	c := NewEffectsChain(48000, blockSize)
	p := NewDefaultParams()
	p.ReverbMix = 1
	p.Gain = 1

	mix := make([]float32, blockSize)
	out := make([]float32, 2*blockSize)
	mix[0] = 1
	c.Process(mix, p, out)
	mix[0] = 0

	var tail []float32
	for b := 0; b < 10; b++ {
		c.Process(mix, p, out)
		for i := 0; i < blockSize; i++ {
			tail = append(tail, out[2*i])
		}
	}
	if rms := windowRMS(tail); rms < 1e-7 {
		t.Fatalf("expected reverb tail after impulse, rms=%g", rms)
	}

	c.Reset()
	c.Process(mix, p, out)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("reset chain produced %f at %d", s, i)
		}
	}
}

func TestEffectsChainGrowsForOversizedBlock(t *testing.T) {
	c := NewEffectsChain(48000, 64)
	p := NewDefaultParams()
	mix := make([]float32, 300)
	out := make([]float32, 600)
	c.Process(mix, p, out)
	if len(c.dry) < 300 || len(c.wet) < 300 {
		t.Fatalf("scratch buffers not grown: dry=%d wet=%d", len(c.dry), len(c.wet))
	}
}
