package analysis

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/spectrum"
	"github.com/cwbudde/algo-dsp/dsp/window"
	algofft "github.com/cwbudde/algo-fft"
)

// MagnitudeSpectrum returns Hann-windowed FFT magnitudes for bins 0..n/2
// of the first n samples of x, zero-padding when x is shorter. n must be a
// power of two.
func MagnitudeSpectrum(x []float64, n int) ([]float64, error) {
	if n < 2 || n&(n-1) != 0 {
		return nil, fmt.Errorf("fft size %d is not a power of two", n)
	}
	m := len(x)
	if m > n {
		m = n
	}
	w, err := window.Hann(m)
	if err != nil {
		return nil, err
	}

	in := make([]complex128, n)
	for i := 0; i < m; i++ {
		in[i] = complex(x[i]*w[i], 0)
	}

	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return nil, err
	}
	out := make([]complex128, n)
	if err := plan.Forward(out, in); err != nil {
		return nil, err
	}
	return spectrum.Magnitude(out[:n/2+1]), nil
}

// BandEnergy is the summed spectral power in [LowHz, HighHz).
type BandEnergy struct {
	LowHz  float64 `json:"low_hz"`
	HighHz float64 `json:"high_hz"`
	Power  float64 `json:"power"`
	DB     float64 `json:"db"`
}

// BandEnergies splits the spectrum of x into octave bands starting at lowHz.
func BandEnergies(x []float64, sampleRate int, lowHz float64, n int) ([]BandEnergy, error) {
	if sampleRate <= 0 || lowHz <= 0 {
		return nil, fmt.Errorf("invalid band analysis settings: sr=%d low=%g", sampleRate, lowHz)
	}
	mag, err := MagnitudeSpectrum(x, n)
	if err != nil {
		return nil, err
	}
	binHz := float64(sampleRate) / float64(n)
	nyquist := float64(sampleRate) / 2

	var bands []BandEnergy
	for lo := lowHz; lo < nyquist; lo *= 2 {
		hi := lo * 2
		if hi > nyquist {
			hi = nyquist
		}
		var p float64
		for k := int(lo / binHz); k < len(mag); k++ {
			f := float64(k) * binHz
			if f < lo {
				continue
			}
			if f >= hi {
				break
			}
			p += mag[k] * mag[k]
		}
		bands = append(bands, BandEnergy{LowHz: lo, HighHz: hi, Power: p, DB: powerToDB(p)})
	}
	return bands, nil
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
