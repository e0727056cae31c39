package karplus

import "math"

// midiNoteToFreq converts MIDI note number to frequency in Hz (A4 = 69 = 440 Hz).
func midiNoteToFreq(note int) float32 {
	const a4Freq = 440.0
	const a4Note = 69
	return float32(a4Freq * math.Pow(2, float64(note-a4Note)/12.0))
}

func isFinite(x float32) bool {
	return !math.IsNaN(float64(x)) && !math.IsInf(float64(x), 0)
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
