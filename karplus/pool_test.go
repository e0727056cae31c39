package karplus

import "testing"

func TestPoolAllocatesFirstFreeVoice(t *testing.T) {
	p := NewVoicePool(48000, 4, 1)
	for i, note := range []int{60, 62, 64, 65} {
		if !p.NoteOn(note, 1, 0.97, 0.005, Sine, 2000) {
			t.Fatalf("note-on %d rejected with free voices", i)
		}
		if got := p.Voice(i).Note(); got != note {
			t.Fatalf("voice %d: note got=%d want=%d", i, got, note)
		}
	}
	if p.ActiveVoices() != 4 {
		t.Fatalf("active voices: got=%d want=4", p.ActiveVoices())
	}

	p.Voice(1).StopNote()
	if !p.NoteOn(70, 1, 0.97, 0.005, Sine, 2000) {
		t.Fatalf("note-on rejected after freeing voice 1")
	}
	if p.Voice(1).Note() != 70 {
		t.Fatalf("expected freed voice 1 to be reused, got note %d", p.Voice(1).Note())
	}
}

func TestPoolDropsNoteWhenFull(t *testing.T) {
	p := NewVoicePool(48000, 3, 1)
	for i := 0; i < 3; i++ {
		p.NoteOn(60+i, 1, 0.97, 0.005, Sine, 2000)
	}
	for i := 0; i < 100; i++ {
		p.RenderNextSample()
	}

	type snapshot struct {
		note     int
		writePos int
		gain     float32
	}
	before := make([]snapshot, p.Capacity())
	for i := range before {
		v := p.Voice(i)
		before[i] = snapshot{v.Note(), v.writePos, v.ExciterGain()}
	}

	if p.NoteOn(90, 1, 0.97, 0.005, Sine, 2000) {
		t.Fatalf("full pool accepted a note")
	}
	for i := range before {
		v := p.Voice(i)
		after := snapshot{v.Note(), v.writePos, v.ExciterGain()}
		if after != before[i] {
			t.Fatalf("voice %d changed on dropped note: before=%+v after=%+v", i, before[i], after)
		}
	}
	if p.ActiveVoices() != 3 {
		t.Fatalf("active voices: got=%d want=3", p.ActiveVoices())
	}
}

func TestPoolNoteOffStopsEveryVoice(t *testing.T) {
	p := NewVoicePool(48000, DefaultPolyphony, 1)
	for i := 0; i < 5; i++ {
		p.NoteOn(48+i*3, 1, 0.97, 0.005, Sawtooth, 3000)
	}
	p.NoteOff()
	for i := 0; i < p.Capacity(); i++ {
		if p.Voice(i).IsActive() {
			t.Fatalf("voice %d still active after note-off", i)
		}
	}
	for i := 0; i < 256; i++ {
		if s := p.RenderNextSample(); s != 0 {
			t.Fatalf("silenced pool produced %f", s)
		}
	}
}

func TestPoolRenderBlockSumsVoices(t *testing.T) {
	a := NewVoicePool(48000, 2, 5)
	b := NewVoicePool(48000, 2, 5)
	for _, p := range []*VoicePool{a, b} {
		p.NoteOn(57, 0.7, 0.98, 0.004, Square, 4000)
		p.NoteOn(64, 0.5, 0.98, 0.004, Sine, 4000)
	}

	block := make([]float32, 512)
	a.RenderBlock(block)
	for i, got := range block {
		want := b.Voice(0).RenderNextSample(48000) + b.Voice(1).RenderNextSample(48000)
		if got != want {
			t.Fatalf("sample %d: got=%f want=%f", i, got, want)
		}
	}
}

func TestPoolBounds(t *testing.T) {
	p := NewVoicePool(48000, 0, 1)
	if p.Capacity() != 1 {
		t.Fatalf("expected capacity clamp to 1, got %d", p.Capacity())
	}
	if p.Voice(-1) != nil || p.Voice(1) != nil {
		t.Fatalf("out-of-range Voice should return nil")
	}

	seen := make(map[uint32]bool)
	for i := 0; i < DefaultPolyphony; i++ {
		s := voiceSeed(1, i)
		if seen[s] {
			t.Fatalf("duplicate voice seed at index %d", i)
		}
		seen[s] = true
	}
}
