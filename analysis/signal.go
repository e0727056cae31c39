package analysis

import (
	"math"

	dspconv "github.com/cwbudde/algo-dsp/dsp/conv"
)

// onset returns the index of the first sample louder than threshold, or
// len(x) for a silent signal.
func onset(x []float64, threshold float64) int {
	for i, v := range x {
		if math.Abs(v) > threshold {
			return i
		}
	}
	return len(x)
}

// withRMS returns a copy of x scaled to the target RMS. Silent input is
// copied unscaled.
func withRMS(x []float64, target float64) []float64 {
	out := append([]float64(nil), x...)
	r := rms(x)
	if r <= 1e-12 {
		return out
	}
	g := target / r
	for i := range out {
		out[i] *= g
	}
	return out
}

// estimateLag returns the lag in [-maxLag, maxLag] maximizing the cross
// correlation sum ref[i+lag]*cand[i].
func estimateLag(ref []float64, cand []float64, maxLag int) int {
	if len(ref) == 0 || len(cand) == 0 {
		return 0
	}
	corr, err := dspconv.CorrelateFFT(ref, cand)
	if err != nil {
		return 0
	}
	lag, best := 0, math.Inf(-1)
	for l := -maxLag; l <= maxLag; l++ {
		idx := dspconv.IndexFromLag(l, len(cand))
		if idx < 0 || idx >= len(corr) {
			continue
		}
		if corr[idx] > best {
			lag, best = l, corr[idx]
		}
	}
	return lag
}

func alignByLag(ref []float64, cand []float64, lag int) ([]float64, []float64) {
	switch {
	case lag >= len(ref) || -lag >= len(cand):
		return nil, nil
	case lag >= 0:
		return ref[lag:], cand
	default:
		return ref, cand[-lag:]
	}
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// rmsDiff is the RMS of a-b over their common length.
func rmsDiff(a []float64, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}

// envelopeDB returns the framed RMS level of x in dB.
func envelopeDB(x []float64, frame int, hop int) []float64 {
	if frame <= 0 || hop <= 0 || len(x) < frame {
		return nil
	}
	out := make([]float64, 1+(len(x)-frame)/hop)
	for i := range out {
		out[i] = linToDB(rms(x[i*hop : i*hop+frame]))
	}
	return out
}

// spectralRMSEDB compares log magnitude spectra over the attack portion of
// both signals, where the plucked harmonics are strongest.
func spectralRMSEDB(a []float64, b []float64) float64 {
	n := min(len(a), len(b), spectrumFrame)
	if n < 512 {
		return 0
	}
	size := nextPow2(n)
	ma, errA := MagnitudeSpectrum(a[:n], size)
	mb, errB := MagnitudeSpectrum(b[:n], size)
	if errA != nil || errB != nil {
		return 0
	}
	diff := make([]float64, 0, len(ma)-2)
	for k := 1; k < len(ma)-1; k++ {
		diff = append(diff, linToDB(ma[k])-linToDB(mb[k]))
	}
	return rms(diff)
}

func linToDB(x float64) float64 {
	return 20 * math.Log10(math.Max(x, 1e-12))
}

func powerToDB(p float64) float64 {
	return 10 * math.Log10(math.Max(p, 1e-24))
}

// decaySlopeDBPerS fits a line to a dB envelope from its peak down to 60 dB
// below it and returns the slope. NaN means too few frames to fit.
func decaySlopeDBPerS(envDB []float64, hopSec float64) float64 {
	if len(envDB) < 8 || hopSec <= 0 {
		return math.NaN()
	}
	peakIdx := 0
	for i, v := range envDB {
		if v > envDB[peakIdx] {
			peakIdx = i
		}
	}
	start := peakIdx + 1
	floor := envDB[peakIdx] - 60
	end := start
	for end < len(envDB) && envDB[end] >= floor {
		end++
	}
	if end-start < 6 {
		return math.NaN()
	}

	// Least squares over (t, dB).
	var sx, sy, sxx, sxy float64
	for i := start; i < end; i++ {
		t := float64(i-start) * hopSec
		sx += t
		sy += envDB[i]
		sxx += t * t
		sxy += t * envDB[i]
	}
	n := float64(end - start)
	den := n*sxx - sx*sx
	if math.Abs(den) < 1e-12 {
		return math.NaN()
	}
	return (n*sxy - sx*sy) / den
}

func clamp01(x float64) float64 {
	return math.Min(math.Max(x, 0), 1)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
