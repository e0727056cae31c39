package karplus

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"testing"
)

func TestNewSynthRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name      string
		sr        float32
		blockSize int
		opts      []Option
		want      error
	}{
		{"zero sample rate", 0, 256, nil, ErrInvalidSampleRate},
		{"negative sample rate", -48000, 256, nil, ErrInvalidSampleRate},
		{"nan sample rate", float32(math.NaN()), 256, nil, ErrInvalidSampleRate},
		{"inf sample rate", float32(math.Inf(1)), 256, nil, ErrInvalidSampleRate},
		{"zero block", 48000, 0, nil, ErrInvalidBlockSize},
		{"no voices", 48000, 256, []Option{WithVoices(0)}, ErrInvalidVoiceCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSynth(tt.sr, tt.blockSize, tt.opts...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got err=%v want %v", err, tt.want)
			}
		})
	}
}

func TestSynthPitch(t *testing.T) {
	tests := []struct {
		note int
		want float32
	}{
		{69, 440},
		{57, 220},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("Note%d", tt.note), func(t *testing.T) {
			s := newTestSynth(t)
			left := renderLeft(t, s, []Event{NoteOn(tt.note, 1)}, heldNoteParams(), 36000)

			// Truncated delay plus filter group delay flatten the pitch a little.
			got := measureFundamentalFreq(left[12000:36000], 48000)
			if math.Abs(float64(got-tt.want)) > float64(tt.want)*0.05 {
				t.Fatalf("pitch got=%.2f Hz want %.2f Hz ±5%%", got, tt.want)
			}
		})
	}
}

func TestSynthHeldNoteKeepsRinging(t *testing.T) {
	s := newTestSynth(t)
	p := heldNoteParams()
	p.Decay = 0.999
	left := renderLeft(t, s, []Event{NoteOn(60, 1)}, p, 48000)

	early := windowRMS(left[2000:6000])
	late := windowRMS(left[40000:44000])
	if early == 0 || late == 0 {
		t.Fatalf("expected sustained output: early=%g late=%g", early, late)
	}
	if late > early {
		t.Fatalf("energy grew: early=%g late=%g", early, late)
	}
}

func TestSynthNoteOffSilencesAllVoices(t *testing.T) {
	s := newTestSynth(t)
	p := heldNoteParams()
	s.RenderBlock([]Event{NoteOn(60, 1), NoteOn(64, 0.8), NoteOn(67, 0.6)}, p, 256)
	if got := s.Pool().ActiveVoices(); got != 3 {
		t.Fatalf("active voices: got=%d want=3", got)
	}

	// Releasing a single key stops everything.
	s.RenderBlock([]Event{NoteOff(64)}, p, 256)
	if got := s.Pool().ActiveVoices(); got != 0 {
		t.Fatalf("active voices after note-off: got=%d want=0", got)
	}
}

func TestSynthDropsNotesBeyondPolyphony(t *testing.T) {
	s := newTestSynth(t, WithVoices(2))
	if s.Pool().Capacity() != 2 {
		t.Fatalf("capacity: got=%d want=2", s.Pool().Capacity())
	}
	s.RenderBlock([]Event{NoteOn(60, 1), NoteOn(62, 1), NoteOn(64, 1)}, nil, 64)
	if got := s.Pool().ActiveVoices(); got != 2 {
		t.Fatalf("active voices: got=%d want=2", got)
	}
	if s.Pool().Voice(0).Note() != 60 || s.Pool().Voice(1).Note() != 62 {
		t.Fatalf("unexpected allocation: %d %d", s.Pool().Voice(0).Note(), s.Pool().Voice(1).Note())
	}
}

func TestSynthRenderStaysFinite(t *testing.T) {
	s := newTestSynth(t, WithSeed(99))
	p := NewDefaultParams()
	p.Gain = 1
	p.Waveform = Noise
	p.Decay = 1
	p.ExciteCutoff = 20000
	p.BurstWidth = 0.02
	p.TremoloDepth = 1
	p.TremoloRate = 20
	p.ReverbSize = 1
	p.ReverbMix = 1

	for b := 0; b < 1000; b++ {
		var events []Event
		if b%50 == 0 {
			events = []Event{NoteOn(36+b%40, 1)}
		}
		out := s.RenderBlock(events, p, 256)
		for i, x := range out {
			if !isFinite(x) || math.Abs(float64(x)) > 1000 {
				t.Fatalf("block %d sample %d: bad output %f", b, i, x)
			}
		}
	}
}

func TestSynthRenderBlockSizes(t *testing.T) {
	s := newTestSynth(t)
	if out := s.RenderBlock(nil, nil, 100); len(out) != 200 {
		t.Fatalf("short block length: got=%d want=200", len(out))
	}
	if out := s.RenderBlock(nil, nil, 1000); len(out) != 2000 {
		t.Fatalf("oversized block length: got=%d want=2000", len(out))
	}
	if out := s.RenderBlock(nil, nil, 0); len(out) != 0 {
		t.Fatalf("empty block length: got=%d", len(out))
	}
	if s.TailSeconds() != 0 {
		t.Fatalf("unexpected tail: %f", s.TailSeconds())
	}
}

func TestSynthSeedMakesNoiseReproducible(t *testing.T) {
	p := NewDefaultParams()
	p.Waveform = Noise
	render := func() []float32 {
		s := newTestSynth(t, WithSeed(7))
		return renderLeft(t, s, []Event{NoteOn(50, 1)}, p, 4096)
	}
	a, b := render(), render()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("renders diverged at %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestSynthPrepareResetsState(t *testing.T) {
	s := newTestSynth(t)
	s.RenderBlock([]Event{NoteOn(60, 1)}, nil, 256)
	if err := s.Prepare(44100, 128); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if s.SampleRate() != 44100 || s.BlockSize() != 128 {
		t.Fatalf("prepare not applied: sr=%g block=%d", s.SampleRate(), s.BlockSize())
	}
	if s.Pool().ActiveVoices() != 0 {
		t.Fatalf("prepare kept sounding voices")
	}
	if s.Pool().Voice(0).DelayLen() != 44100 {
		t.Fatalf("delay line not resized: %d", s.Pool().Voice(0).DelayLen())
	}
	if err := s.Prepare(44100, -1); !errors.Is(err, ErrInvalidBlockSize) {
		t.Fatalf("expected ErrInvalidBlockSize, got %v", err)
	}
}

func TestSynthLogsPrepare(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := newTestSynth(t, WithLogger(logger))
	if !strings.Contains(buf.String(), "karplus prepared") {
		t.Fatalf("expected prepare log, got %q", buf.String())
	}

	buf.Reset()
	s.RenderBlock([]Event{NoteOn(60, 1)}, nil, 256)
	if buf.Len() != 0 {
		t.Fatalf("render path logged: %q", buf.String())
	}
}

func BenchmarkSynthRenderBlock(b *testing.B) {
	s, err := NewSynth(48000, 256)
	if err != nil {
		b.Fatalf("NewSynth: %v", err)
	}
	p := NewDefaultParams()
	p.ReverbMix = 0.3
	p.TremoloDepth = 0.4
	events := make([]Event, 0, DefaultPolyphony)
	for i := 0; i < DefaultPolyphony; i++ {
		events = append(events, NoteOn(40+i*2, 0.8))
	}
	s.RenderBlock(events, p, 256)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.RenderBlock(nil, p, 256)
	}
}
