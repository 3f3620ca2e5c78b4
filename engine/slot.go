package engine

import (
	"errors"
	"fmt"
)

const (
	MaxSlots     = 32
	NumChannels  = 16
	Omni         = 16 // slot channel that listens to every MIDI channel
	MaxVoices    = MaxSlots
	MaxTranspose = 24
	NoCC         = -1 // FnCC slot that has not learned a controller yet

	// PackVersion identifies the bit layout written by Pack
	PackVersion = 1
)

var ErrInvalidWord = errors.New("invalid slot word")

// Slot binds one MIDI function to one CV output.
//
// Function, Channel, Voice and Aux are configuration. Aux is interpreted per
// function: a signed semitone transpose for note functions, the learned
// controller number (or NoCC) for FnCC, and unused otherwise. Use Transpose
// and LearnedCC rather than reading Aux directly.
//
// Output, Trig and SemitoneMask are runtime state owned by the dispatcher.
type Slot struct {
	Function Function
	Channel  uint8
	Voice    uint8
	Aux      int8

	Output       int32
	Trig         bool
	SemitoneMask uint16
}

// NewSlot returns a slot with the aux field set to the function's neutral value
func NewSlot(fn Function, channel uint8) Slot {
	s := Slot{Function: fn, Channel: channel}
	if fn == FnCC {
		s.Aux = NoCC
	}
	return s.sanitized()
}

// NewCCSlot returns a CC slot already bound to a controller
func NewCCSlot(channel, cc uint8) Slot {
	return Slot{Function: FnCC, Channel: channel, Aux: int8(clamp7(cc))}.sanitized()
}

// NewPolySlot returns a slot reading one voice of the pool
func NewPolySlot(fn Function, channel, voice uint8) Slot {
	return Slot{Function: fn, Channel: channel, Voice: voice}.sanitized()
}

// WithTranspose returns a copy of s shifted by the given semitones
func (s Slot) WithTranspose(semitones int) Slot {
	if s.Function.UsesTranspose() {
		s.Aux = int8(clampInt(semitones, -MaxTranspose, MaxTranspose))
	}
	return s
}

// Transpose returns the semitone offset for note functions, 0 otherwise
func (s Slot) Transpose() int {
	if s.Function.UsesTranspose() {
		return int(s.Aux)
	}
	return 0
}

// LearnedCC returns the controller an FnCC slot responds to
func (s Slot) LearnedCC() (uint8, bool) {
	if s.Function != FnCC || s.Aux < 0 {
		return 0, false
	}
	return uint8(s.Aux), true
}

func (s Slot) matches(ch uint8) bool {
	return s.Channel == Omni || s.Channel == ch
}

// Config returns only the configuration fields of s
func (s Slot) Config() Slot {
	return Slot{Function: s.Function, Channel: s.Channel, Voice: s.Voice, Aux: s.Aux}
}

// sanitized clamps every configuration field into range
func (s Slot) sanitized() Slot {
	if !s.Function.Valid() {
		s.Function = FnNoop
	}
	if s.Channel > Omni {
		s.Channel = Omni
	}
	if s.Voice >= MaxVoices {
		s.Voice = MaxVoices - 1
	}
	switch {
	case s.Function.UsesTranspose():
		s.Aux = int8(clampInt(int(s.Aux), -MaxTranspose, MaxTranspose))
	case s.Function == FnCC:
		if s.Aux < 0 {
			s.Aux = NoCC
		}
	default:
		s.Aux = 0
	}
	return s
}

func (s Slot) String() string {
	switch {
	case s.Function == FnCC:
		if cc, ok := s.LearnedCC(); ok {
			return fmt.Sprintf("%s %d %s", s.Function, cc, channelName(s.Channel))
		}
		return fmt.Sprintf("%s ? %s", s.Function, channelName(s.Channel))
	case s.Function.UsesVoice():
		return fmt.Sprintf("%s v%d %s", s.Function, s.Voice+1, channelName(s.Channel))
	case s.Function.UsesTranspose() && s.Aux != 0:
		return fmt.Sprintf("%s %+d %s", s.Function, s.Aux, channelName(s.Channel))
	}
	return fmt.Sprintf("%s %s", s.Function, channelName(s.Channel))
}

func channelName(ch uint8) string {
	if ch >= Omni {
		return "omni"
	}
	return fmt.Sprintf("ch%d", ch+1)
}

// Pack serializes the configuration of s into one word:
//
//	bits 31..24 function
//	bits 23..16 channel (0..15, 16 = omni)
//	bits 15..8  voice
//	bits  7..0  aux (two's complement transpose or learned CC, 0xff = none)
//
// Runtime state is not persisted.
func Pack(s Slot) uint32 {
	s = s.sanitized()
	return uint32(s.Function)<<24 | uint32(s.Channel)<<16 | uint32(s.Voice)<<8 | uint32(uint8(s.Aux))
}

// Unpack is the inverse of Pack. A word with an out-of-range field yields a
// FnNoop slot and an error wrapping ErrInvalidWord.
func Unpack(word uint32) (Slot, error) {
	fn := Function(word >> 24)
	ch := uint8(word >> 16)
	voice := uint8(word >> 8)
	aux := int8(uint8(word))

	switch {
	case !fn.Valid():
		return Slot{}, fmt.Errorf("%w: function %d", ErrInvalidWord, uint8(fn))
	case ch > Omni:
		return Slot{}, fmt.Errorf("%w: channel %d", ErrInvalidWord, ch)
	case voice >= MaxVoices:
		return Slot{}, fmt.Errorf("%w: voice %d", ErrInvalidWord, voice)
	case fn.UsesTranspose() && (aux < -MaxTranspose || aux > MaxTranspose):
		return Slot{}, fmt.Errorf("%w: transpose %d", ErrInvalidWord, aux)
	case fn == FnCC && aux < NoCC:
		return Slot{}, fmt.Errorf("%w: cc %d", ErrInvalidWord, aux)
	}
	return Slot{Function: fn, Channel: ch, Voice: voice, Aux: aux}.sanitized(), nil
}

// LoadSlots unpacks a full table. Missing or unreadable words become FnNoop
// slots; the number of degraded words is returned.
func LoadSlots(words []uint32) (slots [MaxSlots]Slot, degraded int) {
	for i := range slots {
		if i >= len(words) {
			continue
		}
		s, err := Unpack(words[i])
		if err != nil {
			degraded++
			continue
		}
		slots[i] = s
	}
	return slots, degraded
}

// PackSlots is the inverse of LoadSlots
func PackSlots(slots []Slot) []uint32 {
	words := make([]uint32, len(slots))
	for i, s := range slots {
		words[i] = Pack(s)
	}
	return words
}
