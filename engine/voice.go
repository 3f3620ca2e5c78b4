package engine

import (
	"fmt"
	"strings"
)

// PolyMode selects how FindNextVoice picks a voice
type PolyMode uint8

const (
	PolyRotate PolyMode = iota // round robin, skipping gated voices
	PolyReuse                  // same note goes back to the same voice
	PolyReset                  // lowest free voice first
)

var polyModeNames = [...]string{
	PolyRotate: "rotate",
	PolyReuse:  "reuse",
	PolyReset:  "reset",
}

func (m PolyMode) String() string {
	if int(m) < len(polyModeNames) {
		return polyModeNames[m]
	}
	return fmt.Sprintf("poly(%d)", uint8(m))
}

// ParsePolyMode looks a mode up by name
func ParsePolyMode(name string) (PolyMode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range polyModeNames {
		if n == name {
			return PolyMode(i), nil
		}
	}
	return PolyRotate, fmt.Errorf("unknown poly mode %q", name)
}

// Voice is one polyphonic allocation unit
type Voice struct {
	Note     uint8
	Velocity uint8
	Channel  uint8
	Gated    bool
}

// VoicePool is a fixed set of voices shared by the poly slots
type VoicePool struct {
	voices []Voice
	last   int
	mode   PolyMode
}

// NewVoicePool creates a pool of n voices (at least one)
func NewVoicePool(n int, mode PolyMode) *VoicePool {
	p := &VoicePool{mode: mode}
	p.Resize(n)
	return p
}

func (p *VoicePool) Len() int {
	return len(p.voices)
}

func (p *VoicePool) Mode() PolyMode {
	return p.mode
}

func (p *VoicePool) SetMode(m PolyMode) {
	p.mode = m
}

// Voice returns voice i, or an empty voice when i is out of range
func (p *VoicePool) Voice(i int) Voice {
	if i < 0 || i >= len(p.voices) {
		return Voice{}
	}
	return p.voices[i]
}

// Voices returns a copy of the pool
func (p *VoicePool) Voices() []Voice {
	out := make([]Voice, len(p.voices))
	copy(out, p.voices)
	return out
}

// FindNextVoice picks the voice that should play note
func (p *VoicePool) FindNextVoice(note uint8) int {
	switch p.mode {
	case PolyReset:
		for i, v := range p.voices {
			if !v.Gated {
				return i
			}
		}
		return len(p.voices) - 1
	case PolyReuse:
		for i, v := range p.voices {
			if v.Note == note {
				return i
			}
		}
	}
	return p.rotate()
}

func (p *VoicePool) rotate() int {
	n := len(p.voices)
	start := (p.last + 1) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if !p.voices[idx].Gated {
			return idx
		}
	}
	// all gated, steal the next one
	return start
}

// Write starts note on voice v
func (p *VoicePool) Write(v int, note, vel, ch uint8) {
	if v < 0 || v >= len(p.voices) {
		return
	}
	p.voices[v] = Voice{Note: note, Velocity: vel, Channel: ch, Gated: true}
	p.last = v
}

// Clear releases voice v, keeping its note so pitch outputs hold
func (p *VoicePool) Clear(v int) {
	if v < 0 || v >= len(p.voices) {
		return
	}
	p.voices[v].Velocity = 0
	p.voices[v].Gated = false
}

// Release clears every gated voice playing note on ch
func (p *VoicePool) Release(ch, note uint8) bool {
	released := false
	for i, v := range p.voices {
		if v.Gated && v.Channel == ch && v.Note == note {
			p.Clear(i)
			released = true
		}
	}
	return released
}

// ReleaseUnheld clears gated voices on ch whose note is no longer in l
func (p *VoicePool) ReleaseUnheld(ch uint8, l *Ledger) {
	for i, v := range p.voices {
		if v.Gated && v.Channel == ch && !l.Contains(v.Note) {
			p.Clear(i)
		}
	}
}

// Resize changes the pool length. Any change discards all voice state.
func (p *VoicePool) Resize(n int) {
	if n < 1 {
		n = 1
	}
	if n > MaxVoices {
		n = MaxVoices
	}
	if n == len(p.voices) {
		return
	}
	p.voices = make([]Voice, n)
	p.last = n - 1
}

func (p *VoicePool) ClearAll() {
	for i := range p.voices {
		p.voices[i] = Voice{}
	}
	p.last = len(p.voices) - 1
}
