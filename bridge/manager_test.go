package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"go-cvbridge/engine"
	"go-cvbridge/hw"
)

type recorder struct {
	mu   sync.Mutex
	msgs []engine.OutMessage
}

func (r *recorder) Broadcast(msgs []engine.OutMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msgs...)
}

func (r *recorder) take() []engine.OutMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.msgs
	r.msgs = nil
	return out
}

// newLoopback builds a bridge whose slot 0 (pitch) and slot 1 (gate) are
// patched into physical inputs 0 and 1, which send a gated note on MIDI
// channel 3
func newLoopback(t *testing.T) (*Manager, *hw.Virtual, *recorder) {
	t.Helper()
	eng, err := engine.New(engine.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	sender, err := engine.NewSender(2, engine.DefaultSendOptions())
	if err != nil {
		t.Fatal(err)
	}
	board := hw.NewVirtual(2)
	board.AddPatch(hw.Patch{Slot: 0, Input: 0})
	board.AddPatch(hw.Patch{Slot: 1, Input: 1, Gate: true})
	out := &recorder{}

	m := NewManager(eng, sender, board, out)
	if err := m.UpdateSlot(0, engine.NewSlot(engine.FnNote, 0)); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateSlot(1, engine.NewSlot(engine.FnGate, 0)); err != nil {
		t.Fatal(err)
	}
	if err := m.Assign(1, engine.Assignment{Function: engine.OutGate, Channel: 2}); err != nil {
		t.Fatal(err)
	}
	m.Tick()
	return m, board, out
}

func TestLoopbackNoteRoundTrip(t *testing.T) {
	m, board, out := newLoopback(t)

	m.Enqueue(engine.Record{Channel: 1, Kind: engine.NoteOn, Data1: 64, Data2: 90})
	m.Tick()

	outs := board.Outputs()
	if outs[0].CV != engine.NoteCV(64) || outs[1].CV != engine.MaxCV {
		t.Errorf("expected pitch %d and gate high, got %+v", engine.NoteCV(64), outs[:2])
	}
	got := out.take()
	want := engine.OutMessage{Kind: engine.NoteOn, Channel: 2, Data1: 64, Data2: 100}
	if len(got) != 1 || got[0] != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	m.Enqueue(engine.Record{Channel: 1, Kind: engine.NoteOff, Data1: 64})
	m.Tick()
	got = out.take()
	want = engine.OutMessage{Kind: engine.NoteOff, Channel: 2, Data1: 64}
	if len(got) != 1 || got[0] != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestConfigAppliedAtTickStart(t *testing.T) {
	m, _, _ := newLoopback(t)

	slot := engine.NewCCSlot(3, 74)
	if err := m.UpdateSlot(5, slot); err != nil {
		t.Fatal(err)
	}
	if got := m.Snapshot().Slots[5]; got.Function != engine.FnNoop {
		t.Errorf("slot changed before the tick: %v", got)
	}
	m.Tick()
	if got := m.Snapshot().Slots[5]; got.Config() != slot.Config() {
		t.Errorf("expected %v after the tick, got %v", slot, got)
	}

	if err := m.UpdateSlot(engine.MaxSlots, slot); err == nil {
		t.Error("expected an error for an out-of-range slot")
	}
	if err := m.Assign(2, engine.Assignment{}); err == nil {
		t.Error("expected an error for an out-of-range physical channel")
	}
}

func TestConfigQueueFull(t *testing.T) {
	m, _, _ := newLoopback(t)
	var err error
	for i := 0; i < configQueueSize+1 && err == nil; i++ {
		err = m.UpdateSlot(2, engine.NewSlot(engine.FnVel, 0))
	}
	if err != ErrQueueFull {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestPanicReleasesEverything(t *testing.T) {
	m, board, out := newLoopback(t)
	m.Enqueue(engine.Record{Channel: 1, Kind: engine.NoteOn, Data1: 60, Data2: 100})
	m.Tick()
	out.take()

	m.Panic()
	m.Tick()

	got := out.take()
	if len(got) != 1 || got[0].Kind != engine.NoteOff || got[0].Channel != 2 || got[0].Data1 != 60 {
		t.Errorf("expected a single NoteOff on channel 2, got %+v", got)
	}
	if held := m.Held(0); len(held) != 0 {
		t.Errorf("expected an empty ledger, got %v", held)
	}
	if outs := board.Outputs(); outs[1].CV != 0 {
		t.Errorf("expected gate low after panic, got %d", outs[1].CV)
	}

	// the gate fell at the same time, but the note was already released
	m.Tick()
	if got := out.take(); len(got) != 0 {
		t.Errorf("expected nothing after the panic tick, got %+v", got)
	}
}

func TestSnapshotAccumulatesTriggers(t *testing.T) {
	m, _, _ := newLoopback(t)
	m.UpdateSlot(4, engine.NewSlot(engine.FnTrig, 0))
	m.Tick()

	m.Enqueue(engine.Record{Channel: 1, Kind: engine.NoteOn, Data1: 60, Data2: 100})
	m.Tick()
	m.Tick()

	s := m.Snapshot()
	if s.Triggered&(1<<4) == 0 {
		t.Errorf("expected slot 4 trig to be seen, got %032b", s.Triggered)
	}
	if s.Processed != 1 {
		t.Errorf("expected 1 processed record, got %d", s.Processed)
	}
	if len(s.Assignments) != 2 || s.Assignments[1].Function != engine.OutGate {
		t.Errorf("unexpected assignments %+v", s.Assignments)
	}
	if again := m.Snapshot(); again.Triggered != 0 {
		t.Errorf("trigger bits should be consumed, got %032b", again.Triggered)
	}
}

func TestRecordsBoundedPerTick(t *testing.T) {
	m, _, _ := newLoopback(t)
	input := make(chan engine.Record, 128)
	for i := 0; i < 100; i++ {
		input <- engine.Record{Channel: 2, Kind: engine.ControlChange, Data1: 1, Data2: uint8(i)}
	}
	m.SetInput(input)

	m.Tick()
	if got := m.Snapshot().Processed; got != maxRecordsPerTick {
		t.Errorf("expected %d records in the first tick, got %d", maxRecordsPerTick, got)
	}
	m.Tick()
	if got := m.Snapshot().Processed; got != 100 {
		t.Errorf("expected all 100 records after two ticks, got %d", got)
	}

	close(input)
	m.Tick()
	if m.input != nil {
		t.Error("closed input should be detached")
	}
}

func TestPolyModeLatestWins(t *testing.T) {
	m, _, _ := newLoopback(t)
	m.SetPolyMode(engine.PolyReuse)
	m.SetPolyMode(engine.PolyReset)
	m.Tick()
	if got := m.Snapshot().PolyMode; got != engine.PolyReset {
		t.Errorf("expected %v, got %v", engine.PolyReset, got)
	}
}

func TestRunReleasesNotesOnShutdown(t *testing.T) {
	m, board, out := newLoopback(t)
	m.SetTickPeriod(time.Millisecond)
	m.Enqueue(engine.Record{Channel: 1, Kind: engine.NoteOn, Data1: 62, Data2: 100})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for len(m.Held(0)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("note never dispatched")
		}
		time.Sleep(time.Millisecond)
	}
	// let the send path see the gate
	for m.Snapshot().Sent == 0 {
		if time.Now().After(deadline) {
			t.Fatal("note never sent")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}

	got := out.take()
	last := got[len(got)-1]
	if last.Kind != engine.NoteOff || last.Data1 != 62 {
		t.Errorf("expected a final NoteOff for 62, got %+v", got)
	}
	for i, o := range board.Outputs() {
		if o.CV != 0 {
			t.Errorf("slot %d: expected zeroed output, got %d", i, o.CV)
		}
	}
}
