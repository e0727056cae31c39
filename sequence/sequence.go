// Package sequence turns MIDI input into timed note events for the synth.
package sequence

import (
	"fmt"
	"io"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cwbudde/algo-karplus/karplus"
)

// TimedEvent is a note event scheduled at an absolute frame.
type TimedEvent struct {
	Frame int64
	Event karplus.Event
}

// Sequence is a frame-ordered list of note events.
type Sequence struct {
	SampleRate float64
	Events     []TimedEvent
}

// EventFromMessage decodes a channel voice message. Velocity is scaled by
// 1/127; a note-on with velocity 0 decodes as note-off.
func EventFromMessage(msg midi.Message) (karplus.Event, bool) {
	var ch, key, vel uint8
	if msg.GetNoteStart(&ch, &key, &vel) {
		return karplus.NoteOn(int(key), float32(vel)/127), true
	}
	if msg.GetNoteEnd(&ch, &key) {
		return karplus.NoteOff(int(key)), true
	}
	return karplus.Event{}, false
}

// LoadSMF reads a Standard MIDI File and schedules its notes at sampleRate.
func LoadSMF(path string, sampleRate float64) (*Sequence, error) {
	return collect(smf.ReadTracks(path), sampleRate, path)
}

// ReadSMF is LoadSMF for an in-memory or streamed file.
func ReadSMF(r io.Reader, sampleRate float64) (*Sequence, error) {
	return collect(smf.ReadTracksFrom(r), sampleRate, "stream")
}

func collect(tr *smf.TracksReader, sampleRate float64, name string) (*Sequence, error) {
	if !(sampleRate > 0) {
		return nil, fmt.Errorf("sequence: invalid sample rate %g", sampleRate)
	}
	seq := &Sequence{SampleRate: sampleRate}
	tr.Do(func(te smf.TrackEvent) {
		ev, ok := EventFromMessage(midi.Message(te.Message))
		if !ok {
			return
		}
		frame := int64(float64(te.AbsMicroSeconds) * sampleRate / 1e6)
		seq.Events = append(seq.Events, TimedEvent{Frame: frame, Event: ev})
	})
	if err := tr.Error(); err != nil {
		return nil, fmt.Errorf("read midi %s: %w", name, err)
	}
	seq.sort()
	return seq, nil
}

// Note is a programmatic note with times in seconds.
type Note struct {
	Key      int
	Velocity float32
	Start    float64
	Duration float64 // <= 0 means no note-off
}

// FromNotes schedules notes at sampleRate.
func FromNotes(notes []Note, sampleRate float64) *Sequence {
	seq := &Sequence{SampleRate: sampleRate}
	for _, n := range notes {
		start := int64(n.Start * sampleRate)
		seq.Events = append(seq.Events, TimedEvent{Frame: start, Event: karplus.NoteOn(n.Key, n.Velocity)})
		if n.Duration > 0 {
			end := int64((n.Start + n.Duration) * sampleRate)
			seq.Events = append(seq.Events, TimedEvent{Frame: end, Event: karplus.NoteOff(n.Key)})
		}
	}
	seq.sort()
	return seq
}

// sort orders by frame; at equal frames note-offs precede note-ons so a
// repeated key retriggers instead of being cut by its own release.
func (s *Sequence) sort() {
	sort.SliceStable(s.Events, func(i, j int) bool {
		a, b := s.Events[i], s.Events[j]
		if a.Frame != b.Frame {
			return a.Frame < b.Frame
		}
		return a.Event.Kind == karplus.EventNoteOff && b.Event.Kind == karplus.EventNoteOn
	})
}

// EndFrame returns the frame of the last event, or 0 for an empty sequence.
func (s *Sequence) EndFrame() int64 {
	if len(s.Events) == 0 {
		return 0
	}
	return s.Events[len(s.Events)-1].Frame
}

// Duration returns EndFrame in seconds.
func (s *Sequence) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(s.EndFrame()) / s.SampleRate
}
