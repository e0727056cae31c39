package karplus

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
)

var (
	ErrInvalidSampleRate = errors.New("invalid sample rate")
	ErrInvalidBlockSize  = errors.New("invalid block size")
	ErrInvalidVoiceCount = errors.New("invalid voice count")
)

// Option configures a Synth.
type Option func(*Synth)

// WithVoices sets the polyphony. Defaults to DefaultPolyphony.
func WithVoices(n int) Option {
	return func(s *Synth) { s.numVoices = n }
}

// WithSeed sets the base noise seed for the voice pool.
func WithSeed(seed uint32) Option {
	return func(s *Synth) { s.seed = seed }
}

// WithLogger sets the logger used by lifecycle calls. The render path never logs.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synth) {
		if l != nil {
			s.logger = l
		}
	}
}

// Synth is the block processor: it applies note events, renders the voice
// pool and runs the shared effects chain. It is not safe for concurrent use;
// Prepare and RenderBlock must be called from the same goroutine.
type Synth struct {
	sampleRate float32
	blockSize  int
	numVoices  int
	seed       uint32
	logger     *slog.Logger

	pool     *VoicePool
	effects  *EffectsChain
	defaults *Params

	mix []float32
	out []float32
}

// NewSynth creates a prepared synth.
func NewSynth(sampleRate float32, blockSize int, opts ...Option) (*Synth, error) {
	s := &Synth{
		numVoices: DefaultPolyphony,
		seed:      1,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		defaults:  NewDefaultParams(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.numVoices < 1 {
		return nil, fmt.Errorf("karplus: %d voices: %w", s.numVoices, ErrInvalidVoiceCount)
	}
	if err := s.Prepare(sampleRate, blockSize); err != nil {
		return nil, err
	}
	return s, nil
}

// Prepare reallocates the voice pool and effect buffers. It must be called
// whenever the sample rate or maximum block size changes. All sounding
// notes are dropped.
func (s *Synth) Prepare(sampleRate float32, blockSize int) error {
	if !(sampleRate > 0) || math.IsInf(float64(sampleRate), 0) {
		return fmt.Errorf("karplus: sample rate %g: %w", sampleRate, ErrInvalidSampleRate)
	}
	if blockSize < 1 {
		return fmt.Errorf("karplus: block size %d: %w", blockSize, ErrInvalidBlockSize)
	}

	s.sampleRate = sampleRate
	s.blockSize = blockSize
	s.pool = NewVoicePool(sampleRate, s.numVoices, s.seed)
	if s.effects == nil {
		s.effects = NewEffectsChain(float64(sampleRate), blockSize)
	} else {
		s.effects.Prepare(float64(sampleRate), blockSize)
	}
	s.mix = make([]float32, blockSize)
	s.out = make([]float32, 2*blockSize)

	s.logger.Debug("karplus prepared",
		"sampleRate", sampleRate,
		"blockSize", blockSize,
		"voices", s.pool.Capacity(),
		"delaySamples", s.pool.Voice(0).DelayLen(),
	)
	return nil
}

// RenderBlock applies events, then renders numFrames of interleaved stereo.
// A nil params uses defaults. The returned slice is owned by the synth and
// is overwritten by the next call.
func (s *Synth) RenderBlock(events []Event, params *Params, numFrames int) []float32 {
	if params == nil {
		params = s.defaults
	}
	if numFrames < 0 {
		numFrames = 0
	}
	if numFrames > len(s.mix) {
		s.mix = make([]float32, numFrames)
		s.out = make([]float32, 2*numFrames)
	}

	s.applyEvents(events, params)

	mix := s.mix[:numFrames]
	s.pool.RenderBlock(mix)

	out := s.out[:2*numFrames]
	s.effects.Process(mix, params, out)
	return out
}

func (s *Synth) applyEvents(events []Event, p *Params) {
	for _, ev := range events {
		switch ev.Kind {
		case EventNoteOn:
			s.pool.NoteOn(ev.Note, ev.Velocity, p.Decay, p.BurstWidth, p.Waveform, p.ExciteCutoff)
		case EventNoteOff:
			s.pool.NoteOff()
		}
	}
}

// Reset silences every voice and clears effect state, keeping allocations.
func (s *Synth) Reset() {
	s.pool.Reset()
	s.effects.Reset()
}

// SampleRate returns the prepared sample rate.
func (s *Synth) SampleRate() float32 { return s.sampleRate }

// BlockSize returns the prepared maximum block size.
func (s *Synth) BlockSize() int { return s.blockSize }

// Pool exposes the voice pool for inspection.
func (s *Synth) Pool() *VoicePool { return s.pool }

// Effects exposes the global effects chain for inspection.
func (s *Synth) Effects() *EffectsChain { return s.effects }

// TailSeconds reports how long output continues after the last note-off.
// Note-off silences voices at once, so there is no voice tail.
func (s *Synth) TailSeconds() float64 { return 0 }
