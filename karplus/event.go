package karplus

// EventKind identifies a note event.
type EventKind uint8

const (
	EventNoteOn EventKind = iota + 1
	EventNoteOff
)

// Event is a note event consumed at the start of a processing block.
// Note-off carries the key for reference only: every sounding voice is
// stopped regardless of pitch.
type Event struct {
	Kind     EventKind
	Note     int
	Velocity float32 // [0,1]
}

// NoteOn builds a note-on event.
func NoteOn(note int, velocity float32) Event {
	return Event{Kind: EventNoteOn, Note: note, Velocity: velocity}
}

// NoteOff builds a note-off event.
func NoteOff(note int) Event {
	return Event{Kind: EventNoteOff, Note: note}
}

func (k EventKind) String() string {
	switch k {
	case EventNoteOn:
		return "note-on"
	case EventNoteOff:
		return "note-off"
	default:
		return "unknown"
	}
}
