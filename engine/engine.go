package engine

import (
	"errors"
	"fmt"
)

// PPQN is the MIDI clock resolution
const PPQN = 24

var (
	ErrClockDivisor = errors.New("clock divisor must divide 24")
	ErrSlotIndex    = errors.New("slot index out of range")
)

// Options configures an Engine
type Options struct {
	// ClockDivisor is the number of FnClockOut pulses per quarter note
	ClockDivisor int
	PolyMode     PolyMode
}

// DefaultOptions returns sixteenth-note clock output and rotating voices
func DefaultOptions() Options {
	return Options{ClockDivisor: 4, PolyMode: PolyRotate}
}

// Transport is the global MIDI clock state
type Transport struct {
	Running bool
	Count   int // clock ticks since the last FnClockOut pulse
}

// SlotOutput is what the hardware driver reads for one slot each tick
type SlotOutput struct {
	CV   int32
	Trig bool
}

// Engine is the MIDI-to-CV state owned by the tick loop. It is not safe for
// concurrent use; callers serialize Dispatch, SetSlot and TakeOutputs.
type Engine struct {
	slots      [MaxSlots]Slot
	ledgers    Ledgers
	latch      SustainLatch
	voices     *VoicePool
	filter     ChannelFilter
	polyFilter ChannelFilter
	log        ActivityLog
	transport  Transport
	clockTicks int
	rebind     bool // a learning slot bound during the current pass
}

// New creates an engine with every slot set to FnNoop
func New(opts Options) (*Engine, error) {
	if opts.ClockDivisor < 1 || opts.ClockDivisor > PPQN || PPQN%opts.ClockDivisor != 0 {
		return nil, fmt.Errorf("%w: %d", ErrClockDivisor, opts.ClockDivisor)
	}
	e := &Engine{
		voices:     NewVoicePool(1, opts.PolyMode),
		clockTicks: PPQN / opts.ClockDivisor,
	}
	e.rebuild()
	return e, nil
}

// SetSlot replaces slot i wholesale. Runtime state of the slot is reset and
// the channel filter and voice pool size are recomputed.
func (e *Engine) SetSlot(i int, s Slot) error {
	if i < 0 || i >= MaxSlots {
		return fmt.Errorf("%w: %d", ErrSlotIndex, i)
	}
	e.slots[i] = s.Config().sanitized()
	e.rebuild()
	return nil
}

// SetSlots replaces the whole table; extra entries are ignored and missing
// ones become FnNoop
func (e *Engine) SetSlots(slots []Slot) {
	for i := range e.slots {
		var s Slot
		if i < len(slots) {
			s = slots[i]
		}
		e.slots[i] = s.Config().sanitized()
	}
	e.rebuild()
}

func (e *Engine) rebuild() {
	e.filter = BuildFilter(e.slots[:])
	e.polyFilter = BuildPolyFilter(e.slots[:])

	maxVoice := 0
	for _, s := range e.slots {
		if int(s.Voice) > maxVoice {
			maxVoice = int(s.Voice)
		}
	}
	if e.voices.Len() == maxVoice+1 {
		return
	}
	e.voices.Resize(maxVoice + 1)
	// a resized pool starts empty; poly outputs follow it
	for i := range e.slots {
		if e.slots[i].Function.UsesVoice() {
			e.slots[i].Output = 0
		}
	}
}

// Slot returns a copy of slot i
func (e *Engine) Slot(i int) Slot {
	if i < 0 || i >= MaxSlots {
		return Slot{}
	}
	return e.slots[i]
}

// Slots returns a copy of the mapping table
func (e *Engine) Slots() [MaxSlots]Slot {
	return e.slots
}

// TakeOutputs appends every slot's output to dst and clears the triggers,
// so each trigger is seen by exactly one read
func (e *Engine) TakeOutputs(dst []SlotOutput) []SlotOutput {
	for i := range e.slots {
		s := &e.slots[i]
		dst = append(dst, SlotOutput{CV: s.Output, Trig: s.Trig})
		s.Trig = false
	}
	return dst
}

func (e *Engine) Filter() ChannelFilter {
	return e.filter
}

// Ledger returns the notes held on a 0-based channel, oldest first
func (e *Engine) Ledger(ch uint8) []NoteEvent {
	if ch >= NumChannels {
		return nil
	}
	return e.ledgers[ch].Notes()
}

func (e *Engine) Voices() []Voice {
	return e.voices.Voices()
}

func (e *Engine) SetPolyMode(m PolyMode) {
	e.voices.SetMode(m)
}

func (e *Engine) PolyMode() PolyMode {
	return e.voices.Mode()
}

// Sustained reports whether the sustain latch is held on a 0-based channel
func (e *Engine) Sustained(ch uint8) bool {
	return e.latch.IsSet(ch)
}

func (e *Engine) SustainBits() uint16 {
	return e.latch.Bits()
}

func (e *Engine) Transport() Transport {
	return e.transport
}

// ActivityLog returns the diagnostic log, oldest first
func (e *Engine) ActivityLog() []ActivityEntry {
	return e.log.Entries()
}

// Reset stops the transport and returns every ledger, the latch, the voice
// pool and all slot outputs to zero. Configuration is kept.
func (e *Engine) Reset() {
	e.transport = Transport{}
	e.ledgers.ClearAll()
	e.latch.Reset()
	e.voices.ClearAll()
	for i := range e.slots {
		s := &e.slots[i]
		s.Output = 0
		s.Trig = false
		s.SemitoneMask = 0
	}
}
