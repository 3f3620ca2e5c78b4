package engine

// MessageKind identifies a normalized MIDI message
type MessageKind uint8

const (
	KindNone MessageKind = iota
	NoteOff
	NoteOn
	PolyAfterTouch
	ControlChange
	ProgramChange
	AfterTouch
	PitchBend
	Clock
	Start
	Continue
	Stop
	SystemReset
)

var kindNames = [...]string{
	KindNone:       "none",
	NoteOff:        "note-off",
	NoteOn:         "note-on",
	PolyAfterTouch: "poly-at",
	ControlChange:  "cc",
	ProgramChange:  "program",
	AfterTouch:     "aftertouch",
	PitchBend:      "bend",
	Clock:          "clock",
	Start:          "start",
	Continue:       "continue",
	Stop:           "stop",
	SystemReset:    "reset",
}

func (k MessageKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsRealtime reports whether the kind bypasses the channel filter
func (k MessageKind) IsRealtime() bool {
	return k >= Clock && k <= SystemReset
}

// Record is one incoming MIDI message, independent of the transport it came
// from. Channel is 1-based (1..16) as on the wire; realtime records ignore it.
// PitchBend carries the 14-bit value as Data1 (LSB) and Data2 (MSB).
type Record struct {
	Channel uint8
	Kind    MessageKind
	Data1   uint8
	Data2   uint8
}

// OutMessage is one MIDI message produced by the send path. Channel is 0-based.
type OutMessage struct {
	Kind    MessageKind
	Channel uint8
	Data1   uint8
	Data2   uint8
}

func noteOnMsg(ch, note, vel uint8) OutMessage {
	return OutMessage{Kind: NoteOn, Channel: ch, Data1: note, Data2: vel}
}

func noteOffMsg(ch, note uint8) OutMessage {
	return OutMessage{Kind: NoteOff, Channel: ch, Data1: note}
}
