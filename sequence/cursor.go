package sequence

import "github.com/cwbudde/algo-karplus/karplus"

// Cursor walks a Sequence block by block. Events falling inside a block are
// delivered at that block's start, matching the synth's per-block event
// handling.
type Cursor struct {
	seq   *Sequence
	next  int
	frame int64
}

// NewCursor starts a cursor at frame 0.
func NewCursor(seq *Sequence) *Cursor {
	return &Cursor{seq: seq}
}

// Next appends the events due within the next numFrames frames to dst[:0]
// and advances. It does not allocate once dst has enough capacity.
func (c *Cursor) Next(numFrames int, dst []karplus.Event) []karplus.Event {
	dst = dst[:0]
	end := c.frame + int64(numFrames)
	for c.next < len(c.seq.Events) && c.seq.Events[c.next].Frame < end {
		dst = append(dst, c.seq.Events[c.next].Event)
		c.next++
	}
	c.frame = end
	return dst
}

// Frame returns the position of the next block.
func (c *Cursor) Frame() int64 {
	return c.frame
}

// Done reports whether every event has been delivered.
func (c *Cursor) Done() bool {
	return c.next >= len(c.seq.Events)
}

// Rewind moves the cursor back to frame 0.
func (c *Cursor) Rewind() {
	c.next = 0
	c.frame = 0
}
