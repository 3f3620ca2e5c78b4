package engine

import (
	"fmt"
	"strings"
)

// Function is what a mapping slot does with the MIDI traffic it sees
type Function uint8

const (
	FnNoop Function = iota
	FnNote
	FnNotePoly
	FnNoteMin
	FnNoteMax
	FnNotePedal
	FnNoteInv
	FnTrig
	FnTrig1st
	FnTrigAlways
	FnGate
	FnGateInv
	FnGatePoly
	FnVel
	FnVelPoly
	FnCC
	FnAftertouchPoly
	FnAftertouchChannel
	FnPitchBend
	FnClockOut
	FnStartOut
	FnLearn

	numFunctions
)

var functionNames = [numFunctions]string{
	FnNoop:              "noop",
	FnNote:              "note",
	FnNotePoly:          "note-poly",
	FnNoteMin:           "note-min",
	FnNoteMax:           "note-max",
	FnNotePedal:         "note-pedal",
	FnNoteInv:           "note-inv",
	FnTrig:              "trig",
	FnTrig1st:           "trig-1st",
	FnTrigAlways:        "trig-always",
	FnGate:              "gate",
	FnGateInv:           "gate-inv",
	FnGatePoly:          "gate-poly",
	FnVel:               "vel",
	FnVelPoly:           "vel-poly",
	FnCC:                "cc",
	FnAftertouchPoly:    "at-poly",
	FnAftertouchChannel: "at-chan",
	FnPitchBend:         "bend",
	FnClockOut:          "clock",
	FnStartOut:          "start",
	FnLearn:             "learn",
}

func (f Function) String() string {
	if f < numFunctions {
		return functionNames[f]
	}
	return fmt.Sprintf("fn(%d)", uint8(f))
}

// ParseFunction looks a function up by its String name
func ParseFunction(name string) (Function, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range functionNames {
		if n == name {
			return Function(i), nil
		}
	}
	return FnNoop, fmt.Errorf("unknown function %q", name)
}

// Valid reports whether f is a known function
func (f Function) Valid() bool {
	return f < numFunctions
}

// Binding is the learn state of a slot
type Binding uint8

const (
	Unbound Binding = iota
	Learning
	Bound
)

// Binding returns whether the slot does nothing, waits for MIDI to bind it, or
// has a concrete function
func (f Function) Binding() Binding {
	switch f {
	case FnNoop:
		return Unbound
	case FnLearn:
		return Learning
	}
	return Bound
}

// UsesVoice reports whether the function reads the polyphony voice pool
func (f Function) UsesVoice() bool {
	return f == FnNotePoly || f == FnGatePoly || f == FnVelPoly
}

// UsesTranspose reports whether the aux field is a semitone offset
func (f Function) UsesTranspose() bool {
	switch f {
	case FnNote, FnNotePoly, FnNoteMin, FnNoteMax, FnNotePedal, FnNoteInv:
		return true
	}
	return false
}

// Realtime reports whether the function only reacts to transport messages
func (f Function) Realtime() bool {
	return f == FnClockOut || f == FnStartOut
}
