package main

import (
	"flag"
	"fmt"

	"github.com/cwbudde/algo-karplus/internal/cliutil"
	"github.com/cwbudde/algo-karplus/internal/wavio"
)

func main() {
	referencePath := flag.String("reference", "reference/a4.wav", "Reference WAV path")
	presetPath := flag.String("preset", "", "Base preset JSON path (defaults when empty)")
	outputPreset := flag.String("output-preset", "presets/fitted.json", "Path to write best fitted preset JSON")
	reportPath := flag.String("report", "", "Optional report JSON path (default: <output-preset>.report.json)")
	note := flag.Int("note", 69, "MIDI note to fit")
	sampleRate := flag.Int("sample-rate", 48000, "Render/analysis sample rate")
	seed := flag.Int64("seed", 1, "Random seed")
	timeBudget := flag.Float64("time-budget", 60.0, "Optimization time budget in seconds")
	maxEvals := flag.Int("max-evals", 4000, "Maximum objective evaluations")
	reportEvery := flag.Int("report-every", 50, "Log progress every N evaluations")
	checkpointEvery := flag.Int("checkpoint-every", 1, "Write checkpoint every N best-score improvements")
	decayDBFS := flag.Float64("decay-dbfs", -90.0, "Auto-stop threshold in dBFS")
	decayHoldBlocks := flag.Int("decay-hold-blocks", 6, "Consecutive below-threshold blocks for stop")
	minDuration := flag.Float64("min-duration", 1.0, "Minimum render duration in seconds")
	maxDuration := flag.Float64("max-duration", 8.0, "Maximum render duration in seconds")
	fitRelease := flag.Bool("fit-release", false, "Also fit the note-off time")
	writeBestCandidate := flag.String("write-best-candidate", "", "Optional WAV path to write best candidate render")
	resume := flag.Bool("resume", true, "Resume from previous best_knobs report when available")
	resumeReport := flag.String("resume-report", "", "Optional report JSON path to resume from (default: current report path)")
	workersRaw := flag.String("workers", "auto", "Parallel workers: integer >= 1 or 'auto'")
	verbose := flag.Bool("v", false, "Verbose logging")

	mayflyVariant := flag.String("mayfly-variant", "desma", "Mayfly variant: ma|desma|olce|eobbma|gsasma|mpma|aoblmoa")
	mayflyPop := flag.Int("mayfly-pop", 10, "Male and female population size per Mayfly run")
	mayflyRoundEvals := flag.Int("mayfly-round-evals", 240, "Target eval budget per Mayfly round")
	scanWaveforms := flag.Bool("scan-waveforms", true, "Score every exciter waveform before the Mayfly rounds")
	sensitivityStep := flag.Float64("sensitivity-step", 0.1, "Normalized knob step used to rank knob sensitivity")
	focusKnobs := flag.Int("focus", 3, "Most sensitive knobs optimized per round (0 for all)")
	flag.Parse()

	logger := cliutil.NewLogger(*verbose)

	if *maxEvals < 1 {
		cliutil.Die("max-evals must be >= 1")
	}
	if *timeBudget <= 0 {
		cliutil.Die("time-budget must be > 0")
	}
	workers, err := cliutil.ParseWorkers(*workersRaw)
	if err != nil {
		cliutil.Die("invalid -workers: %v", err)
	}
	*reportEvery = max(*reportEvery, 1)
	*checkpointEvery = max(*checkpointEvery, 1)
	*mayflyPop = max(*mayflyPop, 2)
	*mayflyRoundEvals = max(*mayflyRoundEvals, *mayflyPop*2)
	*sensitivityStep = clamp(*sensitivityStep, 0.01, 0.5)

	base, err := cliutil.LoadPreset(*presetPath)
	if err != nil {
		cliutil.Die("%v", err)
	}

	ref, refSR, err := wavio.ReadMono(*referencePath)
	if err != nil {
		cliutil.Die("failed to read reference: %v", err)
	}
	ref, err = wavio.Resample(ref, refSR, *sampleRate)
	if err != nil {
		cliutil.Die("failed to resample reference: %v", err)
	}

	paths := outputPaths{
		outputPreset:  *outputPreset,
		reportPath:    *reportPath,
		referencePath: *referencePath,
		presetPath:    *presetPath,
	}
	defs, initCand := initCandidate(base.Params, *fitRelease)
	if *resume {
		resumePath := *resumeReport
		if resumePath == "" {
			resumePath = paths.report()
		}
		if resumed, ok, err := loadCandidateFromReport(resumePath, defs, initCand); err != nil {
			logger.Warn("resume skipped", "path", resumePath, "err", err)
		} else if ok {
			initCand = resumed
			logger.Info("resumed candidate", "path", resumePath)
		}
	}

	settings := renderSettings{
		note:            *note,
		sampleRate:      *sampleRate,
		seed:            uint32(*seed),
		decayDBFS:       *decayDBFS,
		decayHoldBlocks: *decayHoldBlocks,
		minDuration:     *minDuration,
		maxDuration:     *maxDuration,
	}

	res, err := runOptimization(&optimizationConfig{
		reference:          ref,
		baseParams:         base.Params,
		defs:               defs,
		initCandidate:      initCand,
		settings:           settings,
		seed:               *seed,
		timeBudget:         *timeBudget,
		maxEvals:           *maxEvals,
		reportEvery:        *reportEvery,
		checkpointEvery:    *checkpointEvery,
		mayflyVariant:      *mayflyVariant,
		mayflyPop:          *mayflyPop,
		mayflyRoundEvals:   *mayflyRoundEvals,
		scanWaveforms:      *scanWaveforms,
		sensitivityStep:    *sensitivityStep,
		focusKnobs:         *focusKnobs,
		workers:            workers,
		paths:              paths,
		writeBestCandidate: *writeBestCandidate,
		logger:             logger,
	})
	if err != nil {
		cliutil.Die("optimization failed: %v", err)
	}

	sum := fitSummary{
		sampleRate:  *sampleRate,
		note:        *note,
		elapsed:     res.elapsed,
		evals:       res.evals,
		variant:     *mayflyVariant,
		defs:        defs,
		best:        res.best,
		metrics:     res.bestMetrics,
		base:        base.Params,
		checkpoints: res.checkpoints,
		sensitivity: res.sensitivity,
	}
	if err := writeOutputs(paths, sum); err != nil {
		cliutil.Die("failed to write outputs: %v", err)
	}
	if *writeBestCandidate != "" {
		renderer, err := newCandidateRenderer(settings)
		if err == nil {
			err = writeBestCandidateSnapshot(*writeBestCandidate, renderer, base.Params, defs, res.best)
		}
		if err != nil {
			logger.Warn("failed to write best candidate wav", "err", err)
		}
	}

	fmt.Printf("Done evals=%d elapsed=%.1fs best_score=%.4f best_similarity=%.2f%% pitch_error=%.1f cents workers=%d\n",
		res.evals, res.elapsed, res.bestMetrics.Score, res.bestMetrics.Similarity*100.0, res.bestMetrics.PitchErrorCents, workers)
	fmt.Printf("Wrote %s and %s\n", paths.outputPreset, paths.report())
}
