// Package bodyir synthesizes stereo impulse responses for a plucked-string
// instrument body in a room: a Helmholtz air resonance, top-plate modes,
// early reflections and a filtered diffuse tail. The result feeds
// render.IRConvolver when no recorded IR is at hand.
package bodyir

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	pdefd "github.com/cwbudde/algo-pde/fd"
	pdepoisson "github.com/cwbudde/algo-pde/poisson"
)

// Config controls IR generation.
type Config struct {
	SampleRate int
	DurationS  float64
	Seed       int64

	DirectLevel float64

	// Body.
	AirHz          float64 // Helmholtz resonance of the sound hole
	AirDecayS      float64
	TopHz          float64 // lowest top-plate mode
	TopModes       int
	PlateRatio     float64 // Lx/Ly of the top plate
	StiffnessRatio float64 // Dx/Dy along and across the grain
	BodyDecayS     float64
	Brightness     float64

	// Room.
	EarlyCount  int
	LateLevel   float64
	LateDecayS  float64
	LateToneHz  float64 // low-pass corner of the diffuse tail
	StereoWidth float64

	FadeOutS      float64
	NormalizePeak float64
}

// DefaultConfig returns a small-bodied acoustic guitar in a modest room.
func DefaultConfig() Config {
	return Config{
		SampleRate:     48000,
		DurationS:      0.8,
		Seed:           1,
		DirectLevel:    0.7,
		AirHz:          98,
		AirDecayS:      0.12,
		TopHz:          190,
		TopModes:       24,
		PlateRatio:     1.3,
		StiffnessRatio: 12,
		BodyDecayS:     0.06,
		Brightness:     1,
		EarlyCount:     18,
		LateLevel:      0.05,
		LateDecayS:     0.5,
		LateToneHz:     5000,
		StereoWidth:    0.5,
		FadeOutS:       0.01,
		NormalizePeak:  0.9,
	}
}

func (c *Config) Validate() error {
	if c.SampleRate < 8000 {
		return fmt.Errorf("sample rate too low: %d", c.SampleRate)
	}
	if c.DurationS <= 0 {
		return fmt.Errorf("duration must be > 0")
	}
	if c.TopModes < 0 {
		return fmt.Errorf("top modes must be >= 0")
	}
	if c.AirHz <= 0 || c.TopHz <= 0 {
		return fmt.Errorf("resonance frequencies must be > 0")
	}
	if c.PlateRatio <= 0 || c.StiffnessRatio <= 0 {
		return fmt.Errorf("plate ratio and stiffness ratio must be > 0")
	}
	if c.AirDecayS <= 0 || c.BodyDecayS <= 0 || c.LateDecayS <= 0 {
		return fmt.Errorf("decay seconds must be > 0")
	}
	if c.Brightness <= 0 {
		return fmt.Errorf("brightness must be > 0")
	}
	if c.DirectLevel < 0 || c.LateLevel < 0 || c.StereoWidth < 0 || c.EarlyCount < 0 {
		return fmt.Errorf("levels, counts and width must be >= 0")
	}
	if c.LateToneHz <= 0 || c.LateToneHz >= 0.5*float64(c.SampleRate) {
		return fmt.Errorf("late tone must be in (0, nyquist)")
	}
	if c.NormalizePeak <= 0 {
		return fmt.Errorf("normalize peak must be > 0")
	}
	return nil
}

// Generate synthesizes a stereo IR according to cfg.
func Generate(cfg Config) ([]float32, []float32, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	sr := float64(cfg.SampleRate)
	n := max(int(math.Round(cfg.DurationS*sr)), 1)
	left := make([]float64, n)
	right := make([]float64, n)
	rng := rand.New(rand.NewSource(cfg.Seed))

	left[0] += cfg.DirectLevel
	right[0] += cfg.DirectLevel

	// The air mode is centred; plate modes are panned slightly.
	airAmp := 0.8
	airDecay := math.Exp(-1 / (cfg.AirDecayS * sr))
	addMode(left, airAmp, cfg.AirHz, 0, airDecay, sr)
	addMode(right, airAmp, cfg.AirHz, 0, airDecay, sr)

	maxF := 0.45 * sr
	freqs, err := PlateModes(cfg.TopHz, maxF, cfg.TopModes, cfg.PlateRatio, cfg.StiffnessRatio)
	if err != nil {
		return nil, nil, err
	}
	brightnessExp := 0.7 + 0.9*cfg.Brightness
	for _, f := range freqs {
		amp := 0.9 / math.Pow(1+f/cfg.TopHz, brightnessExp)
		amp *= 0.7 + 0.6*rng.Float64()
		// Higher modes ring shorter.
		tau := cfg.BodyDecayS * math.Sqrt(cfg.TopHz/f)
		decay := math.Exp(-1 / (tau * sr))
		pan := (rng.Float64()*2 - 1) * cfg.StereoWidth
		phi := rng.Float64() * 2 * math.Pi
		addMode(left, amp*(1-0.45*pan), f, phi, decay, sr)
		addMode(right, amp*(1+0.45*pan), f, phi+0.01*pan, decay, sr)
	}

	for i := 0; i < cfg.EarlyCount; i++ {
		t := 0.002 + 0.040*rng.Float64()
		idx := int(t * sr)
		if idx <= 0 || idx >= n {
			continue
		}
		amp := (0.10 + 0.30*rng.Float64()) * math.Exp(-t*25)
		pan := (rng.Float64()*2 - 1) * cfg.StereoWidth
		left[idx] += amp * (1 - 0.5*pan)
		right[idx] += amp * (1 + 0.5*pan)
	}

	if cfg.LateLevel > 0 {
		toneL := biquad.NewSection(design.Lowpass(cfg.LateToneHz, 1/math.Sqrt2, sr))
		toneR := biquad.NewSection(design.Lowpass(cfg.LateToneHz, 1/math.Sqrt2, sr))
		for i := 0; i < n; i++ {
			env := math.Exp(-float64(i) / (cfg.LateDecayS * sr))
			left[i] += cfg.LateLevel * env * toneL.ProcessSample(rng.NormFloat64())
			right[i] += cfg.LateLevel * env * toneR.ProcessSample(rng.NormFloat64())
		}
	}

	removeDC(left, sr)
	removeDC(right, sr)
	fadeOut(left, cfg.FadeOutS, sr)
	fadeOut(right, cfg.FadeOutS, sr)

	peak := max(maxAbs(left), maxAbs(right), 1e-12)
	s := cfg.NormalizePeak / peak
	outL := make([]float32, n)
	outR := make([]float32, n)
	for i := 0; i < n; i++ {
		outL[i] = float32(left[i] * s)
		outR[i] = float32(right[i] * s)
	}
	return outL, outR, nil
}

// plateGrid is the interior grid size per axis of the discretized plate.
const plateGrid = 64

// PlateModes returns up to maxModes eigenfrequencies in [f11, maxF] of a
// simply supported orthotropic plate with aspect ratio r and stiffness
// ratio s. Per-axis wavenumbers come from the finite-difference Dirichlet
// Laplacian, so the mode set carries the discretized plate's slight
// compression at high orders:
//
//	f_mn/f_11 = sqrt(s·λm² + 2·√s·λm·λn·r² + λn²·r⁴) / sqrt(s + 2·√s·r² + r⁴)
//
// with λk the k-th axis eigenvalue normalized to λ1.
func PlateModes(f11, maxF float64, maxModes int, r, s float64) ([]float64, error) {
	if maxModes <= 0 {
		return nil, nil
	}
	h := 1.0 / float64(plateGrid+1)
	eig := append([]float64(nil), pdefd.Eigenvalues(plateGrid, h, pdepoisson.Dirichlet)...)
	if len(eig) == 0 || eig[0] <= 0 {
		return nil, fmt.Errorf("plate eigenvalue solve returned no modes")
	}
	sort.Float64s(eig)
	lam := make([]float64, len(eig))
	for i, v := range eig {
		lam[i] = v / eig[0]
	}

	sqrtS := math.Sqrt(s)
	r2 := r * r
	r4 := r2 * r2
	denom := math.Sqrt(s + 2*sqrtS*r2 + r4)

	freqs := make([]float64, 0, maxModes*2)
	for _, lm := range lam {
		if f11*math.Sqrt(s)*lm/denom > maxF {
			break
		}
		for _, ln := range lam {
			f := f11 * math.Sqrt(s*lm*lm+2*sqrtS*lm*ln*r2+ln*ln*r4) / denom
			if f > maxF {
				break
			}
			freqs = append(freqs, f)
		}
	}
	sort.Float64s(freqs)
	if len(freqs) > maxModes {
		freqs = freqs[:maxModes]
	}
	return freqs, nil
}

// addMode adds a decaying cosine via the two-term recurrence.
func addMode(out []float64, amp, freq, phase, decay, sampleRate float64) {
	if len(out) == 0 {
		return
	}
	w := 2 * math.Pi * freq / sampleRate
	cw := math.Cos(w)
	x0 := math.Cos(phase)
	x1 := math.Cos(phase + w)
	env := 1.0

	out[0] += amp * env * x0
	env *= decay
	if len(out) == 1 {
		return
	}
	out[1] += amp * env * x1
	env *= decay
	for i := 2; i < len(out); i++ {
		x2 := 2*cw*x1 - x0
		x0 = x1
		x1 = x2
		out[i] += amp * env * x2
		env *= decay
	}
}

func removeDC(x []float64, sampleRate float64) {
	hp := biquad.NewSection(design.Highpass(10, 1/math.Sqrt2, sampleRate))
	for i, v := range x {
		x[i] = hp.ProcessSample(v)
	}
}

// fadeOut applies a raised-cosine fade over the last fadeS seconds.
func fadeOut(buf []float64, fadeS float64, sampleRate float64) {
	if fadeS <= 0 || len(buf) == 0 {
		return
	}
	fadeSamples := min(int(math.Round(fadeS*sampleRate)), len(buf))
	start := len(buf) - fadeSamples
	for i := 0; i < fadeSamples; i++ {
		t := float64(i) / float64(fadeSamples)
		buf[start+i] *= 0.5 * (1 + math.Cos(t*math.Pi))
	}
}

func maxAbs(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		m = max(m, math.Abs(v))
	}
	return m
}
