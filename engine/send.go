package engine

import (
	"errors"
	"fmt"
	"strings"
)

// MaxPhysical is the largest number of physical channels a Sender drives
const MaxPhysical = 32

var ErrChannelCount = errors.New("physical channel count must be even and within 2..32")

// OutFunction is what a physical channel sends to MIDI
type OutFunction uint8

const (
	OutNone OutFunction = iota
	OutNote
	OutGate
	OutCC
	OutAftertouch
	OutPitchBend
)

var outFunctionNames = [...]string{
	OutNone:       "none",
	OutNote:       "note",
	OutGate:       "gate",
	OutCC:         "cc",
	OutAftertouch: "aftertouch",
	OutPitchBend:  "bend",
}

func (f OutFunction) String() string {
	if int(f) < len(outFunctionNames) {
		return outFunctionNames[f]
	}
	return fmt.Sprintf("out(%d)", uint8(f))
}

// ParseOutFunction looks an outgoing function up by name
func ParseOutFunction(name string) (OutFunction, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range outFunctionNames {
		if n == name {
			return OutFunction(i), nil
		}
	}
	return OutNone, fmt.Errorf("unknown output function %q", name)
}

// Assignment binds a physical channel to an outgoing MIDI function
type Assignment struct {
	Function OutFunction
	Channel  uint8 // 0-based MIDI channel
	CC       uint8 // controller for OutCC
}

// InputSample is one tick's reading of a physical channel
type InputSample struct {
	CV   int32
	Gate bool
}

// SendOptions tunes the send path
type SendOptions struct {
	NoteLength int   // ticks before a NoteOut note is released
	Hysteresis int32 // CV movement needed before a value counts as changed
	Velocity   uint8
}

// DefaultSendOptions returns the send path defaults
func DefaultSendOptions() SendOptions {
	return SendOptions{NoteLength: 50, Hysteresis: CVPerSemitone / 4, Velocity: 100}
}

// sentNote remembers where a NoteOn went so its NoteOff can follow it there
type sentNote struct {
	channel   uint8
	note      uint8
	countdown int
	active    bool
}

func (n *sentNote) off() OutMessage {
	n.active = false
	return noteOffMsg(n.channel, n.note)
}

type sendChannel struct {
	assign Assignment

	lastCV int32
	primed bool
	gate   bool
	note   int // last quantized note, -1 before the first
	value  int // last controller value sent, -1 before the first

	changed bool // NoteOut value moved this tick
	rose    bool // gate went high this tick

	timed sentNote // NoteOut note waiting for its countdown
	held  sentNote // gate-driven note waiting for gate low
}

func (c *sendChannel) clear() {
	*c = sendChannel{assign: c.assign, note: -1, value: -1}
}

// moved applies hysteresis and reports whether cv is a new value
func (c *sendChannel) moved(cv, hysteresis int32) bool {
	if c.primed && abs32(cv-c.lastCV) < hysteresis {
		return false
	}
	c.primed = true
	c.lastCV = cv
	return true
}

// Sender turns CV/gate readings back into MIDI
type Sender struct {
	chans []sendChannel
	opts  SendOptions
	out   []OutMessage
}

// NewSender creates a send path for n physical channels, paired (0,1), (2,3)...
func NewSender(n int, opts SendOptions) (*Sender, error) {
	if n < 2 || n > MaxPhysical || n%2 != 0 {
		return nil, fmt.Errorf("%w: %d", ErrChannelCount, n)
	}
	if opts.NoteLength < 1 {
		opts.NoteLength = 1
	}
	if opts.Hysteresis < 0 {
		opts.Hysteresis = 0
	}
	opts.Velocity = clamp7(opts.Velocity)
	s := &Sender{chans: make([]sendChannel, n), opts: opts}
	for i := range s.chans {
		s.chans[i].clear()
	}
	return s, nil
}

func (s *Sender) Channels() int {
	return len(s.chans)
}

// Assign changes what physical channel i sends. Notes already sent keep
// their original MIDI channel for the matching NoteOff.
func (s *Sender) Assign(i int, a Assignment) error {
	if i < 0 || i >= len(s.chans) {
		return fmt.Errorf("physical channel %d out of range", i)
	}
	if a.Channel >= NumChannels {
		a.Channel = NumChannels - 1
	}
	a.CC = clamp7(a.CC)
	c := &s.chans[i]
	if c.assign.Function != a.Function {
		c.value = -1
		c.primed = false
	}
	c.assign = a
	return nil
}

func (s *Sender) Assignment(i int) Assignment {
	if i < 0 || i >= len(s.chans) {
		return Assignment{}
	}
	return s.chans[i].assign
}

func sample(samples []InputSample, i int) InputSample {
	if i < len(samples) {
		return samples[i]
	}
	return InputSample{}
}

// Process runs one tick of the send path. The returned slice is reused by the
// next call.
func (s *Sender) Process(samples []InputSample) []OutMessage {
	s.out = s.out[:0]

	for i := range s.chans {
		c := &s.chans[i]
		in := sample(samples, i)
		c.rose = in.Gate && !c.gate
		fell := !in.Gate && c.gate
		c.gate = in.Gate
		c.changed = false

		// a gate note follows the gate even after the channel is reassigned
		if fell && c.held.active {
			s.out = append(s.out, c.held.off())
		}

		switch c.assign.Function {
		case OutNote:
			if !c.primed {
				// the first reading sets the baseline and is not a change
				c.primed = true
				c.lastCV = in.CV
				c.note = int(CVNote(in.CV))
			} else if c.moved(in.CV, s.opts.Hysteresis) {
				if n := int(CVNote(in.CV)); n != c.note {
					// release the old note before the new one is computed
					if c.timed.active {
						s.out = append(s.out, c.timed.off())
					}
					c.note = n
					c.changed = true
				}
			}
		case OutCC, OutAftertouch, OutPitchBend:
			if c.moved(in.CV, s.opts.Hysteresis) {
				s.sendValue(c, in.CV)
			}
		}

		if c.timed.active {
			c.timed.countdown--
			if c.timed.countdown <= 0 {
				s.out = append(s.out, c.timed.off())
			}
		}
	}

	for a := 0; a+1 < len(s.chans); a += 2 {
		ca, cb := &s.chans[a], &s.chans[a+1]
		switch {
		case cb.assign.Function == OutGate && cb.rose:
			if cb.held.active {
				s.out = append(s.out, cb.held.off())
			}
			note := CVNote(sample(samples, a).CV)
			s.out = append(s.out, noteOnMsg(cb.assign.Channel, note, s.opts.Velocity))
			cb.held = sentNote{channel: cb.assign.Channel, note: note, active: true}
		case ca.assign.Function == OutNote && ca.changed:
			note := uint8(ca.note)
			s.out = append(s.out, noteOnMsg(ca.assign.Channel, note, s.opts.Velocity))
			ca.timed = sentNote{channel: ca.assign.Channel, note: note, countdown: s.opts.NoteLength, active: true}
		}
	}
	return s.out
}

func (s *Sender) sendValue(c *sendChannel, cv int32) {
	switch c.assign.Function {
	case OutCC:
		v := int(CVValue(cv))
		if v != c.value {
			c.value = v
			s.out = append(s.out, OutMessage{Kind: ControlChange, Channel: c.assign.Channel, Data1: c.assign.CC, Data2: uint8(v)})
		}
	case OutAftertouch:
		v := int(CVValue(cv))
		if v != c.value {
			c.value = v
			s.out = append(s.out, OutMessage{Kind: AfterTouch, Channel: c.assign.Channel, Data1: uint8(v)})
		}
	case OutPitchBend:
		lsb, msb := CVBend(cv)
		v := int(msb)<<7 | int(lsb)
		if v != c.value {
			c.value = v
			s.out = append(s.out, OutMessage{Kind: PitchBend, Channel: c.assign.Channel, Data1: lsb, Data2: msb})
		}
	}
}

// Reset releases every sounding note and forgets all per-channel history
func (s *Sender) Reset() []OutMessage {
	s.out = s.out[:0]
	for i := range s.chans {
		c := &s.chans[i]
		if c.timed.active {
			s.out = append(s.out, c.timed.off())
		}
		if c.held.active {
			s.out = append(s.out, c.held.off())
		}
		c.clear()
	}
	return s.out
}
