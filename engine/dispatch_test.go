package engine

import (
	"reflect"
	"testing"
)

func newEngine(t *testing.T, slots ...Slot) *Engine {
	t.Helper()
	e, err := New(DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.SetSlots(slots)
	return e
}

func noteOn(ch, note, vel uint8) Record {
	return Record{Channel: ch, Kind: NoteOn, Data1: note, Data2: vel}
}

func noteOff(ch, note uint8) Record {
	return Record{Channel: ch, Kind: NoteOff, Data1: note}
}

func cc(ch, num, val uint8) Record {
	return Record{Channel: ch, Kind: ControlChange, Data1: num, Data2: val}
}

func heldNotes(e *Engine, ch uint8) []uint8 {
	var out []uint8
	for _, n := range e.Ledger(ch) {
		out = append(out, n.Note)
	}
	return out
}

func TestNoteFollowsLastHeld(t *testing.T) {
	e := newEngine(t, NewSlot(FnNote, 0))

	e.Dispatch(noteOn(1, 60, 100))
	if got := e.Slot(0).Output; got != NoteCV(60) {
		t.Errorf("after 60 on: expected %d, got %d", NoteCV(60), got)
	}

	e.Dispatch(noteOn(1, 64, 90))
	if got := heldNotes(e, 0); !reflect.DeepEqual(got, []uint8{60, 64}) {
		t.Errorf("expected ledger [60 64], got %v", got)
	}
	if got := e.Slot(0).Output; got != NoteCV(64) {
		t.Errorf("after 64 on: expected %d, got %d", NoteCV(64), got)
	}

	e.Dispatch(noteOff(1, 64))
	if got := heldNotes(e, 0); !reflect.DeepEqual(got, []uint8{60}) {
		t.Errorf("expected ledger [60], got %v", got)
	}
	if got := e.Slot(0).Output; got != NoteCV(60) {
		t.Errorf("after 64 off: expected %d, got %d", NoteCV(60), got)
	}

	e.Dispatch(noteOff(1, 60))
	if got := e.Slot(0).Output; got != NoteCV(60) {
		t.Errorf("pitch should hold after release, got %d", got)
	}
}

func TestNoteVariants(t *testing.T) {
	e := newEngine(t,
		NewSlot(FnNoteMin, 0),
		NewSlot(FnNoteMax, 0),
		NewSlot(FnNotePedal, 0),
		NewSlot(FnNoteInv, 0),
		NewSlot(FnNote, 0).WithTranspose(12),
	)
	for _, n := range []uint8{62, 55, 70, 64} {
		e.Dispatch(noteOn(1, n, 100))
	}
	want := []int32{NoteCV(55), NoteCV(70), NoteCV(62), NoteCV(127 - 64), NoteCV(76)}
	for i, w := range want {
		if got := e.Slot(i).Output; got != w {
			t.Errorf("slot %d (%v): expected %d, got %d", i, e.Slot(i).Function, w, got)
		}
	}
}

func TestNoteOnZeroVelocityIsNoteOff(t *testing.T) {
	e := newEngine(t, NewSlot(FnGate, 0))
	e.Dispatch(noteOn(1, 60, 100))
	e.Dispatch(noteOn(1, 60, 0))
	if got := e.Slot(0).Output; got != 0 {
		t.Errorf("expected gate low, got %d", got)
	}
	if len(e.Ledger(0)) != 0 {
		t.Error("ledger should be empty")
	}
}

func TestGates(t *testing.T) {
	e := newEngine(t, NewSlot(FnGate, 0), NewSlot(FnGateInv, 0))

	e.Dispatch(noteOn(1, 60, 100))
	e.Dispatch(noteOn(1, 62, 100))
	if e.Slot(0).Output != MaxCV || e.Slot(1).Output != 0 {
		t.Errorf("notes held: got gate=%d inv=%d", e.Slot(0).Output, e.Slot(1).Output)
	}

	e.Dispatch(noteOff(1, 60))
	if e.Slot(0).Output != MaxCV {
		t.Error("gate should stay high while a note is held")
	}

	e.Dispatch(noteOff(1, 62))
	if e.Slot(0).Output != 0 || e.Slot(1).Output != MaxCV {
		t.Errorf("all released: got gate=%d inv=%d", e.Slot(0).Output, e.Slot(1).Output)
	}
}

func TestSustainSuppressesGateOff(t *testing.T) {
	e := newEngine(t, NewSlot(FnGate, 0))

	e.Dispatch(cc(1, SustainPedal, 127))
	e.Dispatch(noteOn(1, 60, 100))
	e.Dispatch(noteOff(1, 60))

	if len(e.Ledger(0)) != 0 {
		t.Error("ledger should be empty while sustained")
	}
	if got := e.Slot(0).Output; got != MaxCV {
		t.Fatalf("sustained gate: expected %d, got %d", MaxCV, got)
	}

	logged := len(e.ActivityLog())
	e.Dispatch(cc(1, SustainPedal, 0))
	if got := e.Slot(0).Output; got != 0 {
		t.Fatalf("pedal up: expected gate low, got %d", got)
	}
	if len(e.ActivityLog()) != logged+1 {
		t.Error("release should be logged once")
	}

	// a second pedal-up finds nothing deferred
	e.SetSlot(1, NewSlot(FnGateInv, 0))
	e.Dispatch(cc(1, SustainPedal, 0))
	if got := e.Slot(1).Output; got != 0 {
		t.Errorf("second pedal up should not re-apply the release, got %d", got)
	}
}

func TestSustainKeepsPitch(t *testing.T) {
	e := newEngine(t, NewSlot(FnNote, 0), NewSlot(FnGate, 0))
	e.Dispatch(noteOn(1, 60, 100))
	e.Dispatch(cc(1, SustainPedal, 100))
	e.Dispatch(noteOn(1, 67, 100))
	e.Dispatch(noteOff(1, 67))
	if got := e.Slot(0).Output; got != NoteCV(67) {
		t.Errorf("sustained pitch: expected %d, got %d", NoteCV(67), got)
	}

	e.Dispatch(cc(1, SustainPedal, 0))
	if got := e.Slot(0).Output; got != NoteCV(60) {
		t.Errorf("pedal up: expected fall back to %d, got %d", NoteCV(60), got)
	}
	if e.Slot(1).Output != MaxCV {
		t.Error("60 is still held, gate should stay high")
	}
}

func TestTriggers(t *testing.T) {
	e := newEngine(t, NewSlot(FnTrig, 0), NewSlot(FnTrig1st, 0), NewSlot(FnTrigAlways, 0))
	var outs []SlotOutput

	take := func() []bool {
		outs = e.TakeOutputs(outs[:0])
		return []bool{outs[0].Trig, outs[1].Trig, outs[2].Trig}
	}

	e.Dispatch(noteOn(1, 60, 100))
	if got := take(); !reflect.DeepEqual(got, []bool{true, true, true}) {
		t.Errorf("first note: got %v", got)
	}
	if got := take(); !reflect.DeepEqual(got, []bool{false, false, false}) {
		t.Errorf("triggers should clear after one read, got %v", got)
	}

	e.Dispatch(noteOn(1, 64, 100))
	if got := take(); !reflect.DeepEqual(got, []bool{true, false, true}) {
		t.Errorf("second note: got %v", got)
	}

	e.Dispatch(noteOff(1, 64))
	if got := take(); !reflect.DeepEqual(got, []bool{false, false, true}) {
		t.Errorf("fall back to 60: got %v", got)
	}

	e.Dispatch(noteOff(1, 60))
	if got := take(); !reflect.DeepEqual(got, []bool{false, false, false}) {
		t.Errorf("last release: got %v", got)
	}
}

func TestVelocity(t *testing.T) {
	e := newEngine(t, NewSlot(FnVel, 0))
	e.Dispatch(noteOn(1, 60, 127))
	if got := e.Slot(0).Output; got != MaxCV {
		t.Errorf("expected %d, got %d", MaxCV, got)
	}
	e.Dispatch(noteOn(1, 62, 0x40))
	e.Dispatch(noteOff(1, 62))
	if got := e.Slot(0).Output; got != VelocityCV(127) {
		t.Errorf("expected velocity of remaining note, got %d", got)
	}
}

func TestCCLearnsOnce(t *testing.T) {
	e := newEngine(t, NewSlot(FnCC, 2))

	e.Dispatch(cc(3, 11, 127))
	s := e.Slot(0)
	if n, ok := s.LearnedCC(); !ok || n != 11 {
		t.Fatalf("expected cc 11 learned, got %d (%v)", n, ok)
	}
	if s.Output != MaxCV {
		t.Errorf("expected %d, got %d", MaxCV, s.Output)
	}

	e.Dispatch(cc(3, 7, 0))
	s = e.Slot(0)
	if n, _ := s.LearnedCC(); n != 11 {
		t.Errorf("cc 7 should be ignored, learned is now %d", n)
	}
	if s.Output != MaxCV {
		t.Errorf("cc 7 changed the output to %d", s.Output)
	}
}

func TestModulation(t *testing.T) {
	e := newEngine(t,
		NewSlot(FnAftertouchChannel, 0),
		NewSlot(FnAftertouchPoly, 0),
		NewSlot(FnPitchBend, 0),
	)
	e.Dispatch(Record{Channel: 1, Kind: AfterTouch, Data1: 127})
	e.Dispatch(Record{Channel: 1, Kind: PolyAfterTouch, Data1: 60, Data2: 127})
	e.Dispatch(Record{Channel: 1, Kind: PitchBend, Data1: 0x7f, Data2: 0x7f})

	if got := e.Slot(0).Output; got != MaxCV {
		t.Errorf("channel aftertouch: expected %d, got %d", MaxCV, got)
	}
	if got := e.Slot(1).Output; got != MaxCV {
		t.Errorf("poly aftertouch: expected %d, got %d", MaxCV, got)
	}
	if got, want := e.Slot(2).Output, BendCV(0x7f, 0x7f); got != want || got <= 0 {
		t.Errorf("bend: expected %d, got %d", want, got)
	}
}

func TestLearnBindsToSource(t *testing.T) {
	e := newEngine(t, NewSlot(FnLearn, 0), NewSlot(FnLearn, 0), NewSlot(FnLearn, 0))

	e.Dispatch(noteOn(5, 48, 100))
	for i := 0; i < 3; i++ {
		s := e.Slot(i)
		if s.Function != FnNote || s.Channel != 4 {
			t.Fatalf("slot %d: expected note on ch5, got %v", i, s)
		}
		if s.Output != NoteCV(48) {
			t.Errorf("slot %d: expected %d, got %d", i, NoteCV(48), s.Output)
		}
	}
	if e.Filter().Omni || !e.Filter().Accepts(4) {
		t.Errorf("filter not rebuilt after learning: %+v", e.Filter())
	}

	e.SetSlot(0, NewSlot(FnLearn, 0))
	e.Dispatch(cc(2, 1, 64))
	if s := e.Slot(0); s.Function != FnCC || s.Channel != 1 || s.Aux != 1 {
		t.Errorf("expected cc 1 on ch2, got %v", s)
	}

	e.SetSlot(1, NewSlot(FnLearn, 0))
	e.Dispatch(Record{Channel: 9, Kind: PitchBend, Data1: 0, Data2: 64})
	if s := e.Slot(1); s.Function != FnPitchBend || s.Channel != 8 {
		t.Errorf("expected bend on ch9, got %v", s)
	}

	e.SetSlot(2, NewSlot(FnLearn, 0))
	e.Dispatch(Record{Channel: 9, Kind: AfterTouch, Data1: 10})
	if e.Slot(2).Function != FnLearn {
		t.Error("aftertouch should not bind a learning slot")
	}
}

func TestPolyVoices(t *testing.T) {
	e := newEngine(t,
		NewPolySlot(FnNotePoly, 0, 0),
		NewPolySlot(FnGatePoly, 0, 0),
		NewPolySlot(FnNotePoly, 0, 1),
		NewPolySlot(FnGatePoly, 0, 1),
		NewPolySlot(FnVelPoly, 0, 1),
	)
	if n := len(e.Voices()); n != 2 {
		t.Fatalf("expected pool of 2, got %d", n)
	}

	e.Dispatch(noteOn(1, 60, 100))
	e.Dispatch(noteOn(1, 67, 127))
	if e.Slot(0).Output != NoteCV(60) || e.Slot(2).Output != NoteCV(67) {
		t.Errorf("voice pitches: got %d %d", e.Slot(0).Output, e.Slot(2).Output)
	}
	if e.Slot(1).Output != MaxCV || e.Slot(3).Output != MaxCV {
		t.Error("both voice gates should be high")
	}
	if e.Slot(4).Output != MaxCV {
		t.Errorf("voice 1 velocity: expected %d, got %d", MaxCV, e.Slot(4).Output)
	}

	e.Dispatch(noteOff(1, 60))
	if e.Slot(1).Output != 0 || e.Slot(3).Output != MaxCV {
		t.Errorf("only voice 0 should close: got %d %d", e.Slot(1).Output, e.Slot(3).Output)
	}
	if e.Slot(0).Output != NoteCV(60) {
		t.Error("released voice pitch should hold")
	}
}

func TestPoolResizeOnMappingChange(t *testing.T) {
	e := newEngine(t, NewPolySlot(FnGatePoly, 0, 0))
	e.Dispatch(noteOn(1, 60, 100))
	if !e.Voices()[0].Gated {
		t.Fatal("voice 0 should be gated")
	}
	e.SetSlot(1, NewPolySlot(FnGatePoly, 0, 3))
	v := e.Voices()
	if len(v) != 4 {
		t.Fatalf("expected pool of 4, got %d", len(v))
	}
	for i := range v {
		if v[i].Gated {
			t.Errorf("voice %d survived resize", i)
		}
	}
	if out := e.Slot(0).Output; out != 0 {
		t.Errorf("gate of a discarded voice stayed at %d", out)
	}
}

func TestPolyVoiceStolenAcrossChannels(t *testing.T) {
	e := newEngine(t,
		NewPolySlot(FnGatePoly, 0, 0),
		NewPolySlot(FnGatePoly, 1, 0),
	)
	e.Dispatch(noteOn(1, 60, 100))
	if e.Slot(0).Output != MaxCV {
		t.Fatal("channel 1 gate should open")
	}

	e.Dispatch(noteOn(2, 62, 100))
	if e.Slot(0).Output != 0 || e.Slot(1).Output != MaxCV {
		t.Errorf("after steal: expected 0/%d, got %d/%d", MaxCV, e.Slot(0).Output, e.Slot(1).Output)
	}

	e.Dispatch(noteOff(1, 60))
	e.Dispatch(noteOff(2, 62))
	for i := 0; i < 2; i++ {
		if out := e.Slot(i).Output; out != 0 {
			t.Errorf("slot %d gate stuck at %d", i, out)
		}
	}
}

func TestChannelFilterShortCircuits(t *testing.T) {
	e := newEngine(t, NewSlot(FnNote, 0))
	e.Dispatch(noteOn(3, 60, 100))
	if len(e.Ledger(2)) != 0 {
		t.Error("filtered channel should not reach the ledger")
	}
	if len(e.ActivityLog()) != 0 {
		t.Error("filtered message should not be logged")
	}

	e.Dispatch(Record{Channel: 0, Kind: NoteOn, Data1: 60, Data2: 100})
	e.Dispatch(Record{Channel: 17, Kind: NoteOn, Data1: 60, Data2: 100})
	e.Dispatch(Record{Channel: 1, Kind: ProgramChange, Data1: 3})
	if len(e.ActivityLog()) != 0 {
		t.Error("invalid channels and unhandled kinds should be ignored")
	}
}

func TestActivityLogOncePerMessage(t *testing.T) {
	e := newEngine(t, NewSlot(FnNote, 0), NewSlot(FnGate, 0), NewSlot(FnVel, Omni))
	e.Dispatch(noteOn(1, 60, 100))
	log := e.ActivityLog()
	if len(log) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(log))
	}
	if want := (ActivityEntry{Kind: NoteOn, Channel: 0, Data1: 60, Data2: 100}); log[0] != want {
		t.Errorf("expected %+v, got %+v", want, log[0])
	}

	// same state again: nothing moves, nothing logged
	e.Dispatch(noteOn(1, 60, 100))
	if len(e.ActivityLog()) != 1 {
		t.Errorf("repeat note should not log, got %d entries", len(e.ActivityLog()))
	}
}

func TestClockAndStart(t *testing.T) {
	e := newEngine(t, NewSlot(FnClockOut, 0), NewSlot(FnStartOut, 0))
	var outs []SlotOutput

	e.Dispatch(Record{Kind: Start})
	if !e.Transport().Running {
		t.Error("start should run the transport")
	}
	outs = e.TakeOutputs(outs[:0])
	if !outs[1].Trig {
		t.Error("start output should fire")
	}

	var pulses []int
	for tick := 0; tick < PPQN; tick++ {
		e.Dispatch(Record{Kind: Clock})
		outs = e.TakeOutputs(outs[:0])
		if outs[0].Trig {
			pulses = append(pulses, tick)
		}
	}
	if want := []int{0, 6, 12, 18}; !reflect.DeepEqual(pulses, want) {
		t.Errorf("expected pulses at %v, got %v", want, pulses)
	}

	e.Dispatch(Record{Kind: Continue})
	if e.Transport().Count != 0 {
		t.Error("continue should reset the counter")
	}
}

func TestClockDivisorValidated(t *testing.T) {
	for _, d := range []int{0, 5, 7, 25} {
		if _, err := New(Options{ClockDivisor: d}); err == nil {
			t.Errorf("divisor %d: expected error", d)
		}
	}
}

func TestResetIdempotent(t *testing.T) {
	e := newEngine(t,
		NewSlot(FnNote, 0),
		NewSlot(FnGate, 0),
		NewPolySlot(FnGatePoly, 0, 1),
		NewSlot(FnTrig, 0),
	)
	e.Dispatch(Record{Kind: Start})
	e.Dispatch(cc(1, SustainPedal, 127))
	e.Dispatch(noteOn(1, 60, 100))
	e.Dispatch(noteOn(1, 64, 100))

	e.Dispatch(Record{Kind: Stop})
	once := snapshot(e)
	e.Dispatch(Record{Kind: SystemReset})
	twice := snapshot(e)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("second reset changed state:\n%+v\n%+v", once, twice)
	}
	if once.running || once.sustain != 0 {
		t.Error("transport and latch should be cleared")
	}
	for ch, l := range once.ledgers {
		if len(l) != 0 {
			t.Errorf("ledger %d not empty", ch)
		}
	}
	for i, v := range once.voices {
		if v.Gated {
			t.Errorf("voice %d still gated", i)
		}
	}
	for i, s := range once.slots {
		if s.Output != 0 || s.Trig {
			t.Errorf("slot %d not zeroed: %+v", i, s)
		}
	}
	if once.slots[0].Function != FnNote {
		t.Error("reset should keep configuration")
	}
}

type engineSnapshot struct {
	running bool
	sustain uint16
	ledgers [][]NoteEvent
	voices  []Voice
	slots   [MaxSlots]Slot
}

func snapshot(e *Engine) engineSnapshot {
	s := engineSnapshot{
		running: e.Transport().Running,
		sustain: e.SustainBits(),
		voices:  e.Voices(),
		slots:   e.Slots(),
	}
	for ch := uint8(0); ch < NumChannels; ch++ {
		s.ledgers = append(s.ledgers, e.Ledger(ch))
	}
	return s
}
