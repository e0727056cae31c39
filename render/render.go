// Package render drives a karplus.Synth offline: it feeds a note sequence
// block by block, optionally convolves the result with an impulse response
// and stops either at a fixed length or once the output decays.
package render

import (
	"errors"
	"io"
	"log/slog"
	"math"

	"github.com/cwbudde/algo-karplus/karplus"
	"github.com/cwbudde/algo-karplus/sequence"
)

var ErrNilSynth = errors.New("render: nil synth")

// Options controls the offline render loop.
type Options struct {
	// Duration is the fixed render length in seconds when auto-stop is off.
	// Zero or less renders the sequence plus one second of tail.
	Duration float64
	// DecayDBFS enables auto-stop when finite: rendering ends once stereo
	// block RMS stays below this level for DecayHoldBlocks blocks.
	DecayDBFS       float64
	DecayHoldBlocks int
	MinDuration     float64
	MaxDuration     float64

	// IR convolves the rendered output. Any synth block size works.
	IR     *IRConvolver
	Logger *slog.Logger
}

// DefaultOptions returns a fixed two-second render without auto-stop.
func DefaultOptions() Options {
	return Options{
		Duration:        2,
		DecayDBFS:       math.Inf(1),
		DecayHoldBlocks: 6,
		MinDuration:     0.5,
		MaxDuration:     20,
	}
}

// AutoStop reports whether the decay threshold is active.
func (o Options) AutoStop() bool {
	return !math.IsInf(o.DecayDBFS, 0) && !math.IsNaN(o.DecayDBFS)
}

// Result is an interleaved stereo render.
type Result struct {
	Samples     []float32
	Frames      int
	SampleRate  int
	AutoStopped bool
}

// Seconds returns the rendered length.
func (r *Result) Seconds() float64 {
	return float64(r.Frames) / float64(r.SampleRate)
}

// Note renders a single note that is released after releaseAfter seconds.
// A non-positive releaseAfter holds the note for the whole render.
func Note(s *karplus.Synth, note int, velocity float32, releaseAfter float64, p *karplus.Params, opts Options) (*Result, error) {
	if s == nil {
		return nil, ErrNilSynth
	}
	seq := sequence.FromNotes([]sequence.Note{{
		Key:      note,
		Velocity: velocity,
		Duration: releaseAfter,
	}}, float64(s.SampleRate()))
	return Sequence(s, seq, p, opts)
}

// Sequence renders seq through s in blocks of s.BlockSize(). Events are
// delivered at the start of the block that contains them. In auto-stop
// mode the decay check only starts once every event has been delivered
// and MinDuration has passed. It measures the output after the IR and
// waits until the synth has been quiet for the whole IR tail, so delayed
// or ringing IR energy is never cut. A fixed render whose length comes
// from the sequence is extended by the same tail.
func Sequence(s *karplus.Synth, seq *sequence.Sequence, p *karplus.Params, opts Options) (*Result, error) {
	if s == nil {
		return nil, ErrNilSynth
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sr := float64(s.SampleRate())
	blockSize := s.BlockSize()
	autoStop := opts.AutoStop()

	// Output can keep changing this long after the synth input falls silent.
	tailFrames := int(s.TailSeconds() * sr)
	if opts.IR != nil {
		tailFrames += opts.IR.TailFrames()
	}

	var maxFrames, minFrames int
	if autoStop {
		minFrames = int(sr * opts.MinDuration)
		maxFrames = int(sr * opts.MaxDuration)
		if maxFrames < minFrames {
			maxFrames = minFrames
		}
		if maxFrames < 1 {
			maxFrames = blockSize
		}
	} else {
		d := opts.Duration
		tail := 0
		if d <= 0 {
			d = seq.Duration() + 1
			tail = tailFrames
		}
		maxFrames = max(int(sr*d)+tail, 1)
	}
	holdBlocks := max(opts.DecayHoldBlocks, 1)
	thresholdLin := math.Pow(10, opts.DecayDBFS/20)

	initialFrames := maxFrames
	if autoStop {
		initialFrames = max(minFrames, blockSize)
	}
	res := &Result{
		Samples:    make([]float32, 0, initialFrames*2),
		SampleRate: int(sr),
	}

	cursor := sequence.NewCursor(seq)
	events := make([]karplus.Event, 0, 32)
	belowCount := 0
	// Frames before done are final: rendered and, with an IR, convolved.
	done, checked := 0, 0
	lastLoud := 0
	for res.Frames < maxFrames {
		n := min(blockSize, maxFrames-res.Frames)
		events = cursor.Next(n, events)
		block := s.RenderBlock(events, p, n)
		res.Samples = append(res.Samples, block...)
		res.Frames += n
		if autoStop && stereoRMS(block) >= thresholdLin {
			lastLoud = res.Frames
		}
		if opts.IR == nil {
			done = res.Frames
		} else {
			// Whole partitions only; the remainder waits for the next block.
			ready := (res.Frames - done) / opts.IR.PartSize() * opts.IR.PartSize()
			if err := opts.IR.ProcessInterleaved(res.Samples[2*done : 2*(done+ready)]); err != nil {
				return nil, err
			}
			done += ready
		}

		if !autoStop || !cursor.Done() || done < minFrames || done == checked {
			continue
		}
		if done < lastLoud+tailFrames {
			belowCount = 0
			continue
		}
		level := stereoRMS(res.Samples[2*max(checked, done-blockSize) : 2*done])
		checked = done
		if level < thresholdLin {
			belowCount++
			if belowCount >= holdBlocks {
				res.AutoStopped = true
				break
			}
		} else {
			belowCount = 0
		}
	}

	if res.AutoStopped {
		// Drop the unconvolved remainder; everything judged silent ends at done.
		res.Frames = done
		res.Samples = res.Samples[:2*done]
	} else if done < res.Frames {
		if err := opts.IR.ProcessInterleaved(res.Samples[2*done:]); err != nil {
			return nil, err
		}
	}

	logger.Info("render finished",
		"frames", res.Frames,
		"seconds", res.Seconds(),
		"autoStopped", res.AutoStopped,
		"events", len(seq.Events),
	)
	return res, nil
}

func stereoRMS(interleaved []float32) float64 {
	if len(interleaved) == 0 {
		return 0
	}
	var sum float64
	for _, s := range interleaved {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(interleaved)))
}

// PeakDBFS returns the absolute peak of samples in dBFS.
func PeakDBFS(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		peak = max(peak, math.Abs(float64(s)))
	}
	if peak == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(peak)
}

// Normalize scales samples so the peak sits at targetDBFS. Silent input is
// left unchanged. It returns the applied gain.
func Normalize(samples []float32, targetDBFS float64) float32 {
	peak := PeakDBFS(samples)
	if math.IsInf(peak, -1) {
		return 1
	}
	g := float32(math.Pow(10, (targetDBFS-peak)/20))
	for i := range samples {
		samples[i] *= g
	}
	return g
}
