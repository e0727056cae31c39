package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"

	"github.com/cwbudde/algo-karplus/bodyir"
	"github.com/cwbudde/algo-karplus/internal/cliutil"
	"github.com/cwbudde/algo-karplus/internal/wavio"
	"github.com/cwbudde/algo-karplus/karplus"
	"github.com/cwbudde/algo-karplus/render"
	"github.com/cwbudde/algo-karplus/sequence"
)

func main() {
	note := flag.Int("note", 69, "MIDI note number (69 = A4 = 440 Hz)")
	velocity := flag.Int("velocity", 100, "MIDI velocity (1-127)")
	midiPath := flag.String("midi", "", "Standard MIDI file to render instead of a single note")
	duration := flag.Float64("duration", 2.0, "Duration in seconds (0 = sequence length + 1s)")
	decayDBFS := flag.Float64("decay-dbfs", math.Inf(1), "Auto-stop when stereo block RMS falls below this dBFS (e.g. -90). Disabled by default")
	decayHoldBlocks := flag.Int("decay-hold-blocks", 6, "Consecutive below-threshold blocks required to stop in auto-decay mode")
	minDuration := flag.Float64("min-duration", 0.5, "Minimum render duration in seconds when using -decay-dbfs")
	maxDuration := flag.Float64("max-duration", 20.0, "Maximum render duration in seconds when using -decay-dbfs")
	releaseAfter := flag.Float64("release-after", 0, "Send NoteOff after this many seconds (0 holds the note)")
	sampleRate := flag.Int("sample-rate", 48000, "Render sample rate in Hz")
	blockSize := flag.Int("block-size", 256, "Render block size in frames")
	voices := flag.Int("voices", karplus.DefaultPolyphony, "Polyphony")
	seed := flag.Uint("seed", 1, "Noise seed")
	presetPath := flag.String("preset", "", "Preset JSON file path (defaults when empty)")
	irPath := flag.String("ir", "", "IR WAV path override (optional)")
	bodyIR := flag.Bool("body-ir", false, "Convolve with a synthesized guitar body IR when no IR file is given")
	irWet := flag.Float64("ir-wet", -1, "IR wet mix override in [0,1] (negative keeps the preset value)")
	normalize := flag.Float64("normalize-dbfs", math.NaN(), "Normalize output peak to this dBFS (disabled by default)")
	output := flag.String("output", "output.wav", "Output WAV file path")
	listParams := flag.Bool("list-params", false, "Print the parameter table and exit")
	verbose := flag.Bool("v", false, "Verbose logging")
	var overrides cliutil.ParamOverrides
	flag.Var(&overrides, "set", "Parameter override id=value (repeatable)")
	flag.Parse()

	if *listParams {
		printParams(os.Stdout)
		return
	}

	logger := cliutil.NewLogger(*verbose)

	pr, err := cliutil.LoadPreset(*presetPath)
	if err != nil {
		cliutil.Die("%v", err)
	}
	if err := overrides.Apply(pr.Params); err != nil {
		cliutil.Die("invalid -set: %v", err)
	}
	if *irPath != "" {
		pr.IRWavPath = *irPath
	}
	if *irWet >= 0 {
		pr.IRWetMix = float32(*irWet)
	}

	s, err := karplus.NewSynth(float32(*sampleRate), *blockSize,
		karplus.WithVoices(*voices),
		karplus.WithSeed(uint32(*seed)),
		karplus.WithLogger(logger),
	)
	if err != nil {
		cliutil.Die("synth init failed: %v", err)
	}

	opts := render.DefaultOptions()
	opts.Duration = *duration
	opts.DecayDBFS = *decayDBFS
	opts.DecayHoldBlocks = *decayHoldBlocks
	opts.MinDuration = *minDuration
	opts.MaxDuration = *maxDuration
	opts.Logger = logger
	if pr.IRWavPath != "" {
		conv := render.NewIRConvolver(*sampleRate)
		if err := conv.LoadIR(pr.IRWavPath); err != nil {
			cliutil.Die("failed to load IR %q: %v", pr.IRWavPath, err)
		}
		conv.SetWet(pr.IRWetMix)
		opts.IR = conv
		logger.Debug("ir loaded", "path", pr.IRWavPath, "frames", conv.IRLen(), "wet", pr.IRWetMix)
	} else if *bodyIR {
		cfg := bodyir.DefaultConfig()
		cfg.SampleRate = *sampleRate
		left, right, err := bodyir.Generate(cfg)
		if err != nil {
			cliutil.Die("failed to synthesize body IR: %v", err)
		}
		conv := render.NewIRConvolver(*sampleRate)
		if err := conv.SetIR(left, right); err != nil {
			cliutil.Die("failed to set body IR: %v", err)
		}
		conv.SetWet(pr.IRWetMix)
		opts.IR = conv
		logger.Debug("body ir synthesized", "frames", conv.IRLen(), "wet", pr.IRWetMix)
	}

	var seq *sequence.Sequence
	if *midiPath != "" {
		seq, err = sequence.LoadSMF(*midiPath, float64(*sampleRate))
		if err != nil {
			cliutil.Die("failed to load MIDI file: %v", err)
		}
		fmt.Printf("Rendering %s (%d events, %.2fs) at %d Hz...\n", *midiPath, len(seq.Events), seq.Duration(), *sampleRate)
	} else {
		vel := float32(max(1, min(*velocity, 127))) / 127
		seq = sequence.FromNotes([]sequence.Note{{Key: *note, Velocity: vel, Duration: *releaseAfter}}, float64(*sampleRate))
		fmt.Printf("Rendering note %d, velocity %d at %d Hz (source %s, decay %.3f)...\n", *note, *velocity, *sampleRate, pr.Params.Waveform, pr.Params.Decay)
	}

	res, err := render.Sequence(s, seq, pr.Params, opts)
	if err != nil {
		cliutil.Die("render failed: %v", err)
	}
	if res.AutoStopped {
		fmt.Printf("Auto-stop at %d frames (%.3fs), threshold %.1f dBFS\n", res.Frames, res.Seconds(), *decayDBFS)
	}
	if !math.IsNaN(*normalize) {
		g := render.Normalize(res.Samples, *normalize)
		logger.Debug("normalized", "gain", g, "target_dbfs", *normalize)
	}

	if err := wavio.WriteStereo(*output, res.Samples, *sampleRate); err != nil {
		cliutil.Die("failed to write WAV: %v", err)
	}
	fmt.Printf("Successfully wrote %s (%d frames, peak %.1f dBFS)\n", *output, res.Frames, render.PeakDBFS(res.Samples))
}

func printParams(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMIN\tMAX\tSTEP\tSKEW\tDEFAULT")
	for _, s := range karplus.ParamSpecs() {
		fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%g\t%g\t%g\n", s.ID, s.Name, s.Range.Min, s.Range.Max, s.Range.Step, s.Range.Skew, s.Default)
	}
	tw.Flush()
}
