package analysis

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/spectrum"
)

// EstimatePitch finds the strongest spectral peak between minHz and maxHz
// and refines it with parabolic interpolation on log magnitudes.
func EstimatePitch(x []float64, sampleRate int, minHz, maxHz float64) (float64, error) {
	if sampleRate <= 0 || minHz <= 0 || maxHz <= minHz {
		return 0, fmt.Errorf("invalid pitch search: sr=%d range=[%g,%g]", sampleRate, minHz, maxHz)
	}
	if len(x) < 256 {
		return 0, fmt.Errorf("signal too short for pitch estimate: %d samples", len(x))
	}
	// Analyse at most 16k samples, zero-padded 4x for finer bins.
	if len(x) > 1<<14 {
		x = x[:1<<14]
	}
	n := nextPow2(4 * len(x))
	mag, err := MagnitudeSpectrum(x, n)
	if err != nil {
		return 0, err
	}

	binHz := float64(sampleRate) / float64(n)
	lo := max(1, int(minHz/binHz))
	hi := min(len(mag)-2, int(math.Ceil(maxHz/binHz)))
	if lo >= hi {
		return 0, fmt.Errorf("pitch range [%g,%g] outside spectrum", minHz, maxHz)
	}

	best := lo
	for k := lo + 1; k <= hi; k++ {
		if mag[k] > mag[best] {
			best = k
		}
	}
	if mag[best] <= 0 {
		return 0, fmt.Errorf("no spectral peak in [%g,%g]", minHz, maxHz)
	}

	a := linToDB(mag[best-1])
	b := linToDB(mag[best])
	c := linToDB(mag[best+1])
	offset := 0.0
	if den := a - 2*b + c; den != 0 {
		offset = 0.5 * (a - c) / den
	}
	return (float64(best) + offset) * binHz, nil
}

// ZeroCrossingPitch estimates the fundamental from the sign-change rate.
// It assumes a DC-free signal dominated by its fundamental.
func ZeroCrossingPitch(x []float64, sampleRate int) float64 {
	if len(x) < 2 || sampleRate <= 0 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(x); i++ {
		if (x[i-1] < 0) != (x[i] < 0) {
			crossings++
		}
	}
	duration := float64(len(x)-1) / float64(sampleRate)
	return float64(crossings) / (2 * duration)
}

// PartialLevels measures Goertzel power at each frequency in freqs.
func PartialLevels(x []float64, sampleRate int, freqs []float64) ([]float64, error) {
	out := make([]float64, len(freqs))
	nyquist := float64(sampleRate) / 2
	for i, f := range freqs {
		if f <= 0 || f >= nyquist {
			continue
		}
		p, err := spectrum.AnalyzeBlock(x, f, float64(sampleRate))
		if err != nil {
			return nil, fmt.Errorf("partial %d at %g Hz: %w", i+1, f, err)
		}
		out[i] = p
	}
	return out, nil
}

// CentsBetween returns the interval from ref to f in cents.
func CentsBetween(ref, f float64) float64 {
	if ref <= 0 || f <= 0 {
		return math.NaN()
	}
	return 1200 * math.Log2(f/ref)
}
