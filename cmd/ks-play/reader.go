package main

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/cwbudde/algo-karplus/karplus"
	"github.com/cwbudde/algo-karplus/sequence"
)

// synthReader is the io.Reader handed to the audio player. Read runs on the
// player's goroutine and is the only caller of the synth once playback
// starts. Output is interleaved stereo float32 little-endian.
type synthReader struct {
	synth     *karplus.Synth
	params    *karplus.Params
	cursor    *sequence.Cursor
	events    []karplus.Event
	endFrame  int64
	loop      bool
	buf       []byte
	pending   []byte // unread tail of buf
	done      chan struct{}
	closeOnce sync.Once
}

func newSynthReader(s *karplus.Synth, seq *sequence.Sequence, p *karplus.Params, tailSeconds float64, loop bool) *synthReader {
	return &synthReader{
		synth:    s,
		params:   p,
		cursor:   sequence.NewCursor(seq),
		events:   make([]karplus.Event, 0, 64),
		endFrame: seq.EndFrame() + int64(tailSeconds*float64(s.SampleRate())),
		loop:     loop,
		buf:      make([]byte, s.BlockSize()*8),
		done:     make(chan struct{}),
	}
}

// Done is closed once the sequence and its tail have been rendered.
func (r *synthReader) Done() <-chan struct{} {
	return r.done
}

func (r *synthReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(r.pending) == 0 {
			r.renderBlock()
		}
		c := copy(p[n:], r.pending)
		r.pending = r.pending[c:]
		n += c
	}
	return n, nil
}

func (r *synthReader) renderBlock() {
	if r.cursor.Frame() >= r.endFrame {
		if r.loop {
			r.cursor.Rewind()
		} else {
			r.closeOnce.Do(func() { close(r.done) })
		}
	}
	frames := r.synth.BlockSize()
	r.events = r.cursor.Next(frames, r.events)
	out := r.synth.RenderBlock(r.events, r.params, frames)

	for i, x := range out {
		binary.LittleEndian.PutUint32(r.buf[i*4:], math.Float32bits(x))
	}
	r.pending = r.buf[:len(out)*4]
}
