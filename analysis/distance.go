package analysis

import (
	"math"
)

// Pitch search range: the lowest and highest string fundamentals of interest.
const (
	pitchMinHz = 25.0
	pitchMaxHz = 4500.0
)

// Component weights of the combined score. They sum to one.
const (
	WeightTime     = 0.20
	WeightEnvelope = 0.20
	WeightSpectral = 0.25
	WeightDecay    = 0.15
	WeightPitch    = 0.20
)

// Analysis framing shared by the envelope and decay measurements.
const (
	envFrame      = 256
	envHop        = 128
	spectrumFrame = 4096
	compareMaxSec = 12
	onsetLevel    = 1e-6
	levelRMS      = 0.1
)

// Saturation points: a component distance at or beyond these maps to 1.
const (
	timeSpan     = 0.25
	envelopeSpan = 30.0 // dB
	spectralSpan = 30.0 // dB
	decaySpan    = 40.0 // dB/s
	pitchSpan    = 100.0
)

// Metrics contains distance and similarity measurements between two audio signals.
type Metrics struct {
	SampleRate int `json:"sample_rate"`

	ReferenceFrames int `json:"reference_frames"`
	CandidateFrames int `json:"candidate_frames"`
	AlignedFrames   int `json:"aligned_frames"`
	LagSamples      int `json:"lag_samples"`

	TimeRMSE        float64 `json:"time_rmse"`
	EnvelopeRMSEDB  float64 `json:"envelope_rmse_db"`
	SpectralRMSEDB  float64 `json:"spectral_rmse_db"`
	RefDecayDBPerS  float64 `json:"ref_decay_db_per_s"`
	CandDecayDBPerS float64 `json:"cand_decay_db_per_s"`
	DecayDiffDBPerS float64 `json:"decay_diff_db_per_s"`
	RefT60S         float64 `json:"ref_t60_s"`
	CandT60S        float64 `json:"cand_t60_s"`
	RefPitchHz      float64 `json:"ref_pitch_hz"`
	CandPitchHz     float64 `json:"cand_pitch_hz"`
	PitchErrorCents float64 `json:"pitch_error_cents"`

	TimeNorm     float64 `json:"time_norm"`
	EnvelopeNorm float64 `json:"envelope_norm"`
	SpectralNorm float64 `json:"spectral_norm"`
	DecayNorm    float64 `json:"decay_norm"`
	PitchNorm    float64 `json:"pitch_norm"`
	Dominant     string  `json:"dominant"`

	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
}

// worst marks m as maximally distant.
func (m *Metrics) worst() Metrics {
	m.Score = 1
	m.Similarity = 0
	return *m
}

// Compare returns objective distance metrics and a combined score in [0,1].
//
// Both signals are cut at their onset, brought to the same RMS level and
// aligned by cross-correlation before the components are measured. Score 0
// means identical; Similarity is exp(-4·Score).
func Compare(reference []float64, candidate []float64, sampleRate int) Metrics {
	m := Metrics{
		SampleRate:      sampleRate,
		ReferenceFrames: len(reference),
		CandidateFrames: len(candidate),
	}
	if sampleRate <= 0 {
		return m.worst()
	}

	ref := withRMS(reference[onset(reference, onsetLevel):], levelRMS)
	cand := withRMS(candidate[onset(candidate, onsetLevel):], levelRMS)
	if len(ref) == 0 || len(cand) == 0 {
		return m.worst()
	}

	maxLag := min(sampleRate/2, len(ref)-1, len(cand)-1)
	m.LagSamples = estimateLag(ref, cand, max(maxLag, 1))
	ref, cand = alignByLag(ref, cand, m.LagSamples)

	n := min(len(ref), len(cand), sampleRate*compareMaxSec)
	if n < 2*envFrame {
		return m.worst()
	}
	ref, cand = ref[:n], cand[:n]
	m.AlignedFrames = n

	m.TimeRMSE = rmsDiff(ref, cand)

	refEnv := envelopeDB(ref, envFrame, envHop)
	candEnv := envelopeDB(cand, envFrame, envHop)
	m.EnvelopeRMSEDB = rmsDiff(refEnv, candEnv)
	m.SpectralRMSEDB = spectralRMSEDB(ref, cand)

	hopSec := float64(envHop) / float64(sampleRate)
	refSlope := decaySlopeDBPerS(refEnv, hopSec)
	candSlope := decaySlopeDBPerS(candEnv, hopSec)
	if isFinite(refSlope) && isFinite(candSlope) {
		m.DecayDiffDBPerS = math.Abs(refSlope - candSlope)
	}
	m.RefDecayDBPerS, m.RefT60S = finiteOrZero(refSlope), t60(refSlope)
	m.CandDecayDBPerS, m.CandT60S = finiteOrZero(candSlope), t60(candSlope)

	// An unmeasurable pitch counts as a full miss.
	m.PitchNorm = 1
	refPitch, errR := EstimatePitch(ref, sampleRate, pitchMinHz, pitchMaxHz)
	candPitch, errC := EstimatePitch(cand, sampleRate, pitchMinHz, pitchMaxHz)
	if errR == nil && errC == nil {
		m.RefPitchHz = refPitch
		m.CandPitchHz = candPitch
		m.PitchErrorCents = math.Abs(CentsBetween(refPitch, candPitch))
		m.PitchNorm = clamp01(m.PitchErrorCents / pitchSpan)
	}

	m.TimeNorm = clamp01(m.TimeRMSE / timeSpan)
	m.EnvelopeNorm = clamp01(m.EnvelopeRMSEDB / envelopeSpan)
	m.SpectralNorm = clamp01(m.SpectralRMSEDB / spectralSpan)
	m.DecayNorm = clamp01(m.DecayDiffDBPerS / decaySpan)

	var best float64
	for _, c := range m.components() {
		m.Score += c.weighted
		if c.weighted > best || m.Dominant == "" {
			best = c.weighted
			m.Dominant = c.name
		}
	}
	m.Score = clamp01(m.Score)
	m.Similarity = math.Exp(-4 * m.Score)
	return m
}

type component struct {
	name     string
	weighted float64
}

func (m *Metrics) components() []component {
	return []component{
		{"time", WeightTime * m.TimeNorm},
		{"envelope", WeightEnvelope * m.EnvelopeNorm},
		{"spectral", WeightSpectral * m.SpectralNorm},
		{"decay", WeightDecay * m.DecayNorm},
		{"pitch", WeightPitch * m.PitchNorm},
	}
}

// t60 converts a decay slope into the time needed to fall by 60 dB.
// Unmeasured or non-decaying slopes report 0 so Metrics stays JSON-safe.
func t60(slopeDBPerS float64) float64 {
	if !isFinite(slopeDBPerS) || slopeDBPerS >= 0 {
		return 0
	}
	return -60 / slopeDBPerS
}

func finiteOrZero(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return v
}
