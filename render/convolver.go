package render

import (
	"fmt"

	dspconv "github.com/cwbudde/algo-dsp/dsp/conv"

	"github.com/cwbudde/algo-karplus/internal/wavio"
)

// IRConvolver applies a stereo impulse response to interleaved stereo audio
// with streaming partitioned convolution, blended against the dry signal.
type IRConvolver struct {
	sampleRate int
	partSize   int
	irLen      int
	wet        float32

	leftOLA  *dspconv.StreamingOverlapAddT[float32, complex64]
	rightOLA *dspconv.StreamingOverlapAddT[float32, complex64]

	// Partition-sized scratch, reused across calls.
	leftIn   []float32
	rightIn  []float32
	leftOut  []float32
	rightOut []float32
}

// NewIRConvolver creates a convolver with an identity IR and full wet mix.
func NewIRConvolver(sampleRate int) *IRConvolver {
	c := &IRConvolver{
		sampleRate: sampleRate,
		partSize:   128,
		wet:        1,
	}
	c.leftIn = make([]float32, c.partSize)
	c.rightIn = make([]float32, c.partSize)
	c.leftOut = make([]float32, c.partSize)
	c.rightOut = make([]float32, c.partSize)
	if err := c.SetIR([]float32{1}, []float32{1}); err != nil {
		panic(err)
	}
	return c
}

// SetIR configures left/right impulse responses. An empty side uses identity.
func (c *IRConvolver) SetIR(leftIR []float32, rightIR []float32) error {
	if len(leftIR) == 0 {
		leftIR = []float32{1}
	}
	if len(rightIR) == 0 {
		rightIR = []float32{1}
	}

	leftOLA, err := dspconv.NewStreamingOverlapAdd32(leftIR, c.partSize)
	if err != nil {
		return fmt.Errorf("left ir: %w", err)
	}
	rightOLA, err := dspconv.NewStreamingOverlapAdd32(rightIR, c.partSize)
	if err != nil {
		return fmt.Errorf("right ir: %w", err)
	}
	c.leftOLA = leftOLA
	c.rightOLA = rightOLA
	c.irLen = max(len(leftIR), len(rightIR))
	return nil
}

// LoadIR reads a mono or stereo IR WAV and resamples it to the render rate.
func (c *IRConvolver) LoadIR(path string) error {
	chans, srcRate, err := wavio.ReadChannels(path)
	if err != nil {
		return err
	}
	if len(chans[0]) == 0 {
		return fmt.Errorf("empty wav data: %s", path)
	}
	left := chans[0]
	right := left
	if len(chans) > 1 {
		right = chans[1]
	}

	left, err = wavio.Resample32(left, srcRate, c.sampleRate)
	if err != nil {
		return err
	}
	right, err = wavio.Resample32(right, srcRate, c.sampleRate)
	if err != nil {
		return err
	}
	return c.SetIR(left, right)
}

// SetWet sets the wet proportion in [0,1]; the dry path gets 1-wet.
func (c *IRConvolver) SetWet(wet float32) {
	if wet < 0 {
		wet = 0
	}
	if wet > 1 {
		wet = 1
	}
	c.wet = wet
}

// IRLen returns the longer IR length in samples.
func (c *IRConvolver) IRLen() int {
	return c.irLen
}

// TailFrames is how long output continues after the input falls silent.
func (c *IRConvolver) TailFrames() int {
	return c.irLen - 1
}

// PartSize returns the partition length in frames.
func (c *IRConvolver) PartSize() int {
	return c.partSize
}

// ProcessInterleaved convolves interleaved stereo in place. A trailing
// partial partition is zero-padded, so calls stay seamless only while each
// chunk is a multiple of PartSize frames.
func (c *IRConvolver) ProcessInterleaved(buf []float32) error {
	frames := len(buf) / 2
	dry := 1 - c.wet
	for start := 0; start < frames; start += c.partSize {
		n := min(c.partSize, frames-start)
		for i := 0; i < c.partSize; i++ {
			if i < n {
				c.leftIn[i] = buf[2*(start+i)]
				c.rightIn[i] = buf[2*(start+i)+1]
			} else {
				c.leftIn[i] = 0
				c.rightIn[i] = 0
			}
		}
		if err := c.leftOLA.ProcessBlockTo(c.leftOut, c.leftIn); err != nil {
			return err
		}
		if err := c.rightOLA.ProcessBlockTo(c.rightOut, c.rightIn); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			l := 2 * (start + i)
			buf[l] = dry*buf[l] + c.wet*c.leftOut[i]
			buf[l+1] = dry*buf[l+1] + c.wet*c.rightOut[i]
		}
	}
	return nil
}

// Reset clears convolution history.
func (c *IRConvolver) Reset() {
	c.leftOLA.Reset()
	c.rightOLA.Reset()
}
