package karplus

// DefaultPolyphony is the number of voices a Synth allocates unless
// configured otherwise.
const DefaultPolyphony = 16

// VoicePool is a fixed arena of voices scanned in index order.
type VoicePool struct {
	sampleRate float32
	voices     []*Voice
}

// NewVoicePool allocates capacity voices. Each voice gets its own noise
// seed derived from seed and its index.
func NewVoicePool(sampleRate float32, capacity int, seed uint32) *VoicePool {
	if capacity < 1 {
		capacity = 1
	}
	p := &VoicePool{
		sampleRate: sampleRate,
		voices:     make([]*Voice, capacity),
	}
	for i := range p.voices {
		p.voices[i] = NewVoice(sampleRate, voiceSeed(seed, i))
	}
	return p
}

func voiceSeed(seed uint32, index int) uint32 {
	// Golden-ratio stride keeps neighbouring voices decorrelated.
	return seed ^ (uint32(index+1) * 0x9e3779b9)
}

// NoteOn starts the first idle voice. It returns false and changes nothing
// when every voice is busy.
func (p *VoicePool) NoteOn(note int, velocity, decay, burstWidth float32, waveform Waveform, cutoff float32) bool {
	for _, v := range p.voices {
		if !v.IsActive() {
			v.StartNote(note, velocity, decay, burstWidth, waveform, cutoff)
			return true
		}
	}
	return false
}

// NoteOff stops every voice. There is no per-note tracking: any release
// silences all sounding notes.
func (p *VoicePool) NoteOff() {
	for _, v := range p.voices {
		v.StopNote()
	}
}

// RenderNextSample sums one sample from every voice.
func (p *VoicePool) RenderNextSample() float32 {
	var sum float32
	for _, v := range p.voices {
		sum += v.RenderNextSample(p.sampleRate)
	}
	return sum
}

// RenderBlock fills dst with summed voice output, one sample per element.
func (p *VoicePool) RenderBlock(dst []float32) {
	for i := range dst {
		dst[i] = p.RenderNextSample()
	}
}

// ActiveVoices returns the number of sounding voices.
func (p *VoicePool) ActiveVoices() int {
	n := 0
	for _, v := range p.voices {
		if v.IsActive() {
			n++
		}
	}
	return n
}

// Capacity returns the fixed number of voices.
func (p *VoicePool) Capacity() int {
	return len(p.voices)
}

// Voice returns voice i, or nil when out of range.
func (p *VoicePool) Voice(i int) *Voice {
	if i < 0 || i >= len(p.voices) {
		return nil
	}
	return p.voices[i]
}

// Reset silences and clears every voice.
func (p *VoicePool) Reset() {
	for _, v := range p.voices {
		v.Reset()
	}
}
