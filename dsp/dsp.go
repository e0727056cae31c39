package dsp

// RingBuffer is a fixed-length circular sample buffer. Positions passed to
// Read and Write are wrapped modulo the buffer length, so no position can
// index out of range.
type RingBuffer struct {
	buffer []float32
	size   int
}

// NewRingBuffer creates a ring buffer holding size samples (minimum 1).
func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{
		buffer: make([]float32, size),
		size:   size,
	}
}

// Len returns the buffer length in samples. It never changes after construction.
func (r *RingBuffer) Len() int {
	return r.size
}

// Wrap maps any integer position onto [0, Len()).
func (r *RingBuffer) Wrap(pos int) int {
	pos %= r.size
	if pos < 0 {
		pos += r.size
	}
	return pos
}

// Write stores a sample at pos.
func (r *RingBuffer) Write(pos int, sample float32) {
	r.buffer[r.Wrap(pos)] = sample
}

// Read returns the sample stored at pos.
func (r *RingBuffer) Read(pos int) float32 {
	return r.buffer[r.Wrap(pos)]
}

// Reset clears the buffer contents.
func (r *RingBuffer) Reset() {
	for i := range r.buffer {
		r.buffer[i] = 0
	}
}
