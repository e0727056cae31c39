package analysis

import (
	"math"
	"testing"
)

func TestEstimatePitchFindsSine(t *testing.T) {
	sr := 48000
	for _, f := range []float64{55, 220, 440, 1318.5} {
		x := makeDecaySine(sr, f, 1.0, 2.0)
		got, err := EstimatePitch(x, sr, 25, 4500)
		if err != nil {
			t.Fatalf("%g Hz: %v", f, err)
		}
		if math.Abs(got-f) > 1.0 {
			t.Fatalf("pitch got=%.3f want=%.3f", got, f)
		}
	}
}

func TestEstimatePitchRejectsBadInput(t *testing.T) {
	if _, err := EstimatePitch(make([]float64, 100), 48000, 25, 4500); err == nil {
		t.Fatalf("expected error for short input")
	}
	if _, err := EstimatePitch(make([]float64, 4096), 48000, 500, 100); err == nil {
		t.Fatalf("expected error for inverted range")
	}
	if _, err := EstimatePitch(make([]float64, 4096), 48000, 25, 4500); err == nil {
		t.Fatalf("expected error for silent input")
	}
}

func TestZeroCrossingPitch(t *testing.T) {
	sr := 48000
	x := makeDecaySine(sr, 220, 1.0, 10)
	if got := ZeroCrossingPitch(x, sr); math.Abs(got-220) > 1 {
		t.Fatalf("zero-crossing pitch got=%.2f want 220", got)
	}
}

func TestPartialLevelsTrackHarmonics(t *testing.T) {
	sr := 48000
	n := sr / 2
	x := make([]float64, n)
	for i := range x {
		ts := float64(i) / float64(sr)
		x[i] = math.Sin(2*math.Pi*200*ts) + 0.1*math.Sin(2*math.Pi*600*ts)
	}
	levels, err := PartialLevels(x, sr, []float64{200, 400, 600, 30000})
	if err != nil {
		t.Fatalf("PartialLevels: %v", err)
	}
	if !(levels[0] > levels[2] && levels[2] > levels[1]) {
		t.Fatalf("unexpected partial ordering: %v", levels)
	}
	if levels[3] != 0 {
		t.Fatalf("partial above nyquist should be skipped, got %g", levels[3])
	}
}

func TestIdealStringPartials(t *testing.T) {
	partials, err := IdealStringPartials(100, 8)
	if err != nil {
		t.Fatalf("IdealStringPartials: %v", err)
	}
	if math.Abs(partials[0]-100) > 1e-9 {
		t.Fatalf("fundamental got=%f want 100", partials[0])
	}
	for k := 1; k < len(partials); k++ {
		harmonic := 100 * float64(k+1)
		if partials[k] >= harmonic {
			t.Fatalf("partial %d should sit flat of %g, got %g", k+1, harmonic, partials[k])
		}
		if harmonic-partials[k] > harmonic*0.005 {
			t.Fatalf("partial %d too far from harmonic: got=%g want~%g", k+1, partials[k], harmonic)
		}
	}

	if _, err := IdealStringPartials(0, 4); err == nil {
		t.Fatalf("expected error for zero f0")
	}
	if _, err := IdealStringPartials(100, 10000); err == nil {
		t.Fatalf("expected error for too many partials")
	}
}

func TestBandEnergiesLocateTone(t *testing.T) {
	sr := 48000
	x := makeDecaySine(sr, 1500, 0.25, 10)
	bands, err := BandEnergies(x, sr, 125, 8192)
	if err != nil {
		t.Fatalf("BandEnergies: %v", err)
	}
	best := 0
	for i := range bands {
		if bands[i].Power > bands[best].Power {
			best = i
		}
	}
	if bands[best].LowHz > 1500 || bands[best].HighHz <= 1500 {
		t.Fatalf("loudest band [%g,%g) does not contain 1500 Hz", bands[best].LowHz, bands[best].HighHz)
	}
	if _, err := BandEnergies(x, sr, 125, 1000); err == nil {
		t.Fatalf("expected error for non power-of-two size")
	}
}

func TestCentsBetween(t *testing.T) {
	if c := CentsBetween(440, 880); math.Abs(c-1200) > 1e-9 {
		t.Fatalf("octave got=%f", c)
	}
	if !math.IsNaN(CentsBetween(0, 440)) {
		t.Fatalf("expected NaN for zero reference")
	}
}
