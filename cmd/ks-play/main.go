package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/cwbudde/algo-karplus/internal/cliutil"
	"github.com/cwbudde/algo-karplus/karplus"
	"github.com/cwbudde/algo-karplus/sequence"
)

func main() {
	midiPath := flag.String("midi", "", "Standard MIDI file to play (plays a demo riff when empty)")
	presetPath := flag.String("preset", "", "Preset JSON file path (defaults when empty)")
	sampleRate := flag.Int("sample-rate", 48000, "Output sample rate in Hz")
	blockSize := flag.Int("block-size", 256, "Synth block size in frames")
	bufferMS := flag.Int("buffer-ms", 40, "Player buffer length in milliseconds")
	tail := flag.Float64("tail", 2.0, "Seconds to keep playing after the last event")
	loop := flag.Bool("loop", false, "Loop the sequence until interrupted")
	tempo := flag.Float64("tempo", 1.0, "Demo riff tempo scale")
	verbose := flag.Bool("v", false, "Verbose logging")
	var overrides cliutil.ParamOverrides
	flag.Var(&overrides, "set", "Parameter override id=value (repeatable)")
	flag.Parse()

	logger := cliutil.NewLogger(*verbose)

	pr, err := cliutil.LoadPreset(*presetPath)
	if err != nil {
		cliutil.Die("%v", err)
	}
	if err := overrides.Apply(pr.Params); err != nil {
		cliutil.Die("invalid -set: %v", err)
	}

	var seq *sequence.Sequence
	if *midiPath != "" {
		seq, err = sequence.LoadSMF(*midiPath, float64(*sampleRate))
		if err != nil {
			cliutil.Die("failed to load MIDI file: %v", err)
		}
	} else {
		seq = sequence.FromNotes(demoRiff(*tempo), float64(*sampleRate))
	}

	s, err := karplus.NewSynth(float32(*sampleRate), *blockSize, karplus.WithLogger(logger))
	if err != nil {
		cliutil.Die("synth init failed: %v", err)
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   *sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(*bufferMS) * time.Millisecond,
	})
	if err != nil {
		cliutil.Die("audio init failed: %v", err)
	}
	<-ready

	reader := newSynthReader(s, seq, pr.Params, *tail, *loop)
	player := ctx.NewPlayer(reader)
	player.Play()
	defer player.Close()

	fmt.Printf("Playing %d events (%.2fs) at %d Hz, Ctrl-C to stop\n", len(seq.Events), seq.Duration(), *sampleRate)
	logger.Debug("playback started", "block_size", *blockSize, "buffer_ms", *bufferMS, "loop", *loop)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	select {
	case <-reader.Done():
		// Let the device drain what is already buffered.
		time.Sleep(time.Duration(*bufferMS) * time.Millisecond)
	case <-interrupt:
		logger.Info("interrupted")
	}
	if err := player.Err(); err != nil {
		cliutil.Die("playback failed: %v", err)
	}
}

// demoRiff is a short open-string arpeggio followed by a chord.
func demoRiff(tempo float64) []sequence.Note {
	if tempo <= 0 {
		tempo = 1
	}
	step := 0.25 / tempo
	keys := []int{40, 45, 50, 55, 59, 64, 59, 55, 50, 45}
	notes := make([]sequence.Note, 0, len(keys)+3)
	for i, k := range keys {
		notes = append(notes, sequence.Note{Key: k, Velocity: 0.8, Start: float64(i) * step})
	}
	chordAt := float64(len(keys)) * step
	for _, k := range []int{52, 56, 59} {
		notes = append(notes, sequence.Note{Key: k, Velocity: 0.9, Start: chordAt, Duration: 8 * step})
	}
	return notes
}
