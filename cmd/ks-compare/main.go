package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/cwbudde/algo-karplus/analysis"
	"github.com/cwbudde/algo-karplus/internal/cliutil"
	"github.com/cwbudde/algo-karplus/internal/wavio"
	"github.com/cwbudde/algo-karplus/karplus"
	"github.com/cwbudde/algo-karplus/render"
)

// report is the JSON output: distance metrics plus per-signal pitch detail.
type report struct {
	Metrics   analysis.Metrics `json:"metrics"`
	Reference signalReport     `json:"reference"`
	Candidate signalReport     `json:"candidate"`
	Bands     []bandPair       `json:"bands,omitempty"`
}

type signalReport struct {
	PitchHz         float64   `json:"pitch_hz"`
	ZeroCrossHz     float64   `json:"zero_cross_hz"`
	PartialsHz      []float64 `json:"partials_hz,omitempty"`
	PartialLevelsDB []float64 `json:"partial_levels_db,omitempty"`
}

type bandPair struct {
	LowHz  float64 `json:"low_hz"`
	HighHz float64 `json:"high_hz"`
	RefDB  float64 `json:"ref_db"`
	CandDB float64 `json:"cand_db"`
}

func main() {
	referencePath := flag.String("reference", "reference/a4.wav", "Reference WAV path")
	candidatePath := flag.String("candidate", "", "Candidate WAV path; if empty, render candidate from the synth")
	presetPath := flag.String("preset", "", "Preset JSON path for rendered candidate (defaults when empty)")
	note := flag.Int("note", 69, "MIDI note for rendered candidate")
	velocity := flag.Int("velocity", 100, "MIDI velocity for rendered candidate")
	sampleRate := flag.Int("sample-rate", 48000, "Analysis sample rate in Hz")
	decayDBFS := flag.Float64("decay-dbfs", -90.0, "Auto-stop threshold in dBFS for rendered candidate")
	decayHoldBlocks := flag.Int("decay-hold-blocks", 6, "Consecutive below-threshold blocks required for stop")
	minDuration := flag.Float64("min-duration", 1.0, "Minimum rendered duration in seconds")
	maxDuration := flag.Float64("max-duration", 10.0, "Maximum rendered duration in seconds")
	releaseAfter := flag.Float64("release-after", 0, "Note hold time before NoteOff (0 holds the note)")
	partials := flag.Int("partials", 8, "Number of partials to report")
	bands := flag.Bool("bands", false, "Report octave band energies")
	writeCandidate := flag.String("write-candidate", "", "Optional path to write rendered candidate WAV")
	jsonOut := flag.Bool("json", false, "Print report as JSON")
	verbose := flag.Bool("v", false, "Verbose logging")
	var overrides cliutil.ParamOverrides
	flag.Var(&overrides, "set", "Parameter override id=value (repeatable)")
	flag.Parse()

	logger := cliutil.NewLogger(*verbose)

	ref, refSR, err := wavio.ReadMono(*referencePath)
	if err != nil {
		cliutil.Die("failed to read reference: %v", err)
	}
	ref, err = wavio.Resample(ref, refSR, *sampleRate)
	if err != nil {
		cliutil.Die("failed to resample reference: %v", err)
	}

	var cand []float64
	if *candidatePath != "" {
		candRaw, candSR, err := wavio.ReadMono(*candidatePath)
		if err != nil {
			cliutil.Die("failed to read candidate: %v", err)
		}
		cand, err = wavio.Resample(candRaw, candSR, *sampleRate)
		if err != nil {
			cliutil.Die("failed to resample candidate: %v", err)
		}
	} else {
		pr, err := cliutil.LoadPreset(*presetPath)
		if err != nil {
			cliutil.Die("%v", err)
		}
		if err := overrides.Apply(pr.Params); err != nil {
			cliutil.Die("invalid -set: %v", err)
		}
		s, err := karplus.NewSynth(float32(*sampleRate), 256, karplus.WithLogger(logger))
		if err != nil {
			cliutil.Die("synth init failed: %v", err)
		}
		opts := render.DefaultOptions()
		opts.DecayDBFS = *decayDBFS
		opts.DecayHoldBlocks = *decayHoldBlocks
		opts.MinDuration = *minDuration
		opts.MaxDuration = *maxDuration
		opts.Logger = logger
		res, err := render.Note(s, *note, float32(*velocity)/127, *releaseAfter, pr.Params, opts)
		if err != nil {
			cliutil.Die("failed to render candidate: %v", err)
		}
		cand = wavio.StereoToMono64(res.Samples)
		if *writeCandidate != "" {
			if err := wavio.WriteStereo(*writeCandidate, res.Samples, *sampleRate); err != nil {
				cliutil.Die("failed to write candidate wav: %v", err)
			}
		}
	}

	rep := report{
		Metrics:   analysis.Compare(ref, cand, *sampleRate),
		Reference: describe(ref, *sampleRate, *partials),
		Candidate: describe(cand, *sampleRate, *partials),
	}
	if *bands {
		rep.Bands = compareBands(ref, cand, *sampleRate)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			cliutil.Die("json encode failed: %v", err)
		}
		return
	}
	printReport(&rep)
}

// describe measures pitch and the levels of the ideal-string partials.
func describe(x []float64, sampleRate int, nPartials int) signalReport {
	var r signalReport
	r.ZeroCrossHz = analysis.ZeroCrossingPitch(x, sampleRate)
	f0, err := analysis.EstimatePitch(x, sampleRate, 25, 4500)
	if err != nil {
		return r
	}
	r.PitchHz = f0
	if nPartials < 1 {
		return r
	}
	freqs, err := analysis.IdealStringPartials(f0, nPartials)
	if err != nil {
		return r
	}
	levels, err := analysis.PartialLevels(x, sampleRate, freqs)
	if err != nil {
		return r
	}
	r.PartialsHz = freqs
	r.PartialLevelsDB = make([]float64, len(levels))
	for i, p := range levels {
		r.PartialLevelsDB[i] = 10 * math.Log10(p+1e-20)
	}
	return r
}

func compareBands(ref, cand []float64, sampleRate int) []bandPair {
	const n = 16384
	rb, err := analysis.BandEnergies(ref, sampleRate, 31.25, n)
	if err != nil {
		return nil
	}
	cb, err := analysis.BandEnergies(cand, sampleRate, 31.25, n)
	if err != nil {
		return nil
	}
	out := make([]bandPair, 0, len(rb))
	for i := range rb {
		if i >= len(cb) {
			break
		}
		out = append(out, bandPair{LowHz: rb[i].LowHz, HighHz: rb[i].HighHz, RefDB: rb[i].DB, CandDB: cb[i].DB})
	}
	return out
}

func printReport(rep *report) {
	m := rep.Metrics
	fmt.Printf("Reference frames: %d\n", m.ReferenceFrames)
	fmt.Printf("Candidate frames: %d\n", m.CandidateFrames)
	fmt.Printf("Aligned frames:   %d\n", m.AlignedFrames)
	fmt.Printf("Lag:              %d samples (%.3f ms)\n", m.LagSamples, 1000.0*float64(m.LagSamples)/float64(m.SampleRate))
	fmt.Println()
	fmt.Printf("Component        Raw          Norm   Weight  Contribution\n")
	fmt.Printf("─────────────────────────────────────────────────────────\n")
	printComp := func(name string, raw string, norm, weight float64, dominant bool) {
		marker := ""
		if dominant {
			marker = " ◄"
		}
		fmt.Printf("%-16s %-12s %5.1f%%  ×%.2f   → %.4f%s\n", name, raw, norm*100, weight, norm*weight, marker)
	}
	printComp("Time RMSE", fmt.Sprintf("%.6f", m.TimeRMSE), m.TimeNorm, analysis.WeightTime, m.Dominant == "time")
	printComp("Envelope RMSE", fmt.Sprintf("%.1f dB", m.EnvelopeRMSEDB), m.EnvelopeNorm, analysis.WeightEnvelope, m.Dominant == "envelope")
	printComp("Spectral RMSE", fmt.Sprintf("%.1f dB", m.SpectralRMSEDB), m.SpectralNorm, analysis.WeightSpectral, m.Dominant == "spectral")
	printComp("Decay diff", fmt.Sprintf("%.1f dB/s", m.DecayDiffDBPerS), m.DecayNorm, analysis.WeightDecay, m.Dominant == "decay")
	printComp("Pitch error", fmt.Sprintf("%.1f cents", m.PitchErrorCents), m.PitchNorm, analysis.WeightPitch, m.Dominant == "pitch")
	fmt.Printf("─────────────────────────────────────────────────────────\n")
	fmt.Printf("Score:            %.4f  (0 best, 1 worst)\n", m.Score)
	fmt.Printf("Similarity:       %.2f%%\n", m.Similarity*100.0)
	fmt.Printf("Dominant factor:  %s\n", m.Dominant)
	fmt.Printf("\nDecay slopes: ref=%.1f dB/s  cand=%.1f dB/s  (T60 %.2f s / %.2f s)\n", m.RefDecayDBPerS, m.CandDecayDBPerS, m.RefT60S, m.CandT60S)
	fmt.Printf("Pitch:        ref=%.2f Hz  cand=%.2f Hz  (zero-cross %.2f / %.2f)\n",
		rep.Reference.PitchHz, rep.Candidate.PitchHz, rep.Reference.ZeroCrossHz, rep.Candidate.ZeroCrossHz)

	if n := min(len(rep.Reference.PartialLevelsDB), len(rep.Candidate.PartialLevelsDB)); n > 0 {
		fmt.Printf("\nPartial  Ref Hz     Ref dB   Cand dB\n")
		for k := 0; k < n; k++ {
			fmt.Printf("%-8d %-10.1f %-8.1f %-8.1f\n", k+1, rep.Reference.PartialsHz[k], rep.Reference.PartialLevelsDB[k], rep.Candidate.PartialLevelsDB[k])
		}
	}
	if len(rep.Bands) > 0 {
		fmt.Printf("\nBand (Hz)          Ref dB   Cand dB\n")
		for _, b := range rep.Bands {
			fmt.Printf("%7.1f-%-9.1f  %-8.1f %-8.1f\n", b.LowHz, b.HighHz, b.RefDB, b.CandDB)
		}
	}
}
