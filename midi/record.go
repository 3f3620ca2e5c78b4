package midi

import (
	"go-cvbridge/engine"

	gomidi "gitlab.com/gomidi/midi/v2"
)

var realtimeKinds = []struct {
	typ  gomidi.Type
	kind engine.MessageKind
}{
	{gomidi.TimingClockMsg, engine.Clock},
	{gomidi.StartMsg, engine.Start},
	{gomidi.ContinueMsg, engine.Continue},
	{gomidi.StopMsg, engine.Stop},
	{gomidi.ResetMsg, engine.SystemReset},
}

// ToRecord converts a wire message into an engine record. Messages the engine
// has no use for (sysex, active sense, ...) report false.
func ToRecord(msg gomidi.Message) (engine.Record, bool) {
	for _, rt := range realtimeKinds {
		if msg.Is(rt.typ) {
			return engine.Record{Kind: rt.kind}, true
		}
	}

	var ch, d1, d2 uint8
	var rel int16
	var abs uint16
	kind := engine.KindNone

	switch {
	case msg.GetNoteOn(&ch, &d1, &d2):
		kind = engine.NoteOn
	case msg.GetNoteOff(&ch, &d1, &d2):
		kind = engine.NoteOff
	case msg.GetControlChange(&ch, &d1, &d2):
		kind = engine.ControlChange
	case msg.GetPolyAfterTouch(&ch, &d1, &d2):
		kind = engine.PolyAfterTouch
	case msg.GetAfterTouch(&ch, &d1):
		kind = engine.AfterTouch
	case msg.GetProgramChange(&ch, &d1):
		kind = engine.ProgramChange
	case msg.GetPitchBend(&ch, &rel, &abs):
		kind = engine.PitchBend
		d1, d2 = uint8(abs&0x7f), uint8(abs>>7)
	default:
		return engine.Record{}, false
	}
	// wire channels are 0-based, records are 1-based
	return engine.Record{Channel: ch + 1, Kind: kind, Data1: d1, Data2: d2}, true
}

// ToMessage converts a send path message into wire format
func ToMessage(m engine.OutMessage) (gomidi.Message, bool) {
	ch := m.Channel & 0x0f
	switch m.Kind {
	case engine.NoteOn:
		return gomidi.NoteOn(ch, m.Data1, m.Data2), true
	case engine.NoteOff:
		return gomidi.NoteOff(ch, m.Data1), true
	case engine.ControlChange:
		return gomidi.ControlChange(ch, m.Data1, m.Data2), true
	case engine.AfterTouch:
		return gomidi.AfterTouch(ch, m.Data1), true
	case engine.PolyAfterTouch:
		return gomidi.PolyAfterTouch(ch, m.Data1, m.Data2), true
	case engine.PitchBend:
		v := int(m.Data2&0x7f)<<7 | int(m.Data1&0x7f)
		return gomidi.Pitchbend(ch, int16(v-8192)), true
	}
	return nil, false
}
