package engine

// NoteEvent is one held note
type NoteEvent struct {
	Note     uint8
	Velocity uint8
}

// Ledger is the ordered list of notes held on one MIDI channel, oldest first
type Ledger struct {
	notes []NoteEvent
}

// Push appends a note, removing any earlier entry for the same note first
func (l *Ledger) Push(note, vel uint8) {
	l.Pop(note)
	l.notes = append(l.notes, NoteEvent{Note: note, Velocity: vel})
}

// Pop removes a note; absent notes are ignored
func (l *Ledger) Pop(note uint8) {
	for i, n := range l.notes {
		if n.Note == note {
			l.notes = append(l.notes[:i], l.notes[i+1:]...)
			return
		}
	}
}

func (l *Ledger) Len() int {
	return len(l.notes)
}

// Last returns the most recently pressed note
func (l *Ledger) Last() (NoteEvent, bool) {
	if len(l.notes) == 0 {
		return NoteEvent{}, false
	}
	return l.notes[len(l.notes)-1], true
}

// First returns the oldest held note (pedal point)
func (l *Ledger) First() (NoteEvent, bool) {
	if len(l.notes) == 0 {
		return NoteEvent{}, false
	}
	return l.notes[0], true
}

func (l *Ledger) Min() (NoteEvent, bool) {
	if len(l.notes) == 0 {
		return NoteEvent{}, false
	}
	m := l.notes[0]
	for _, n := range l.notes[1:] {
		if n.Note < m.Note {
			m = n
		}
	}
	return m, true
}

func (l *Ledger) Max() (NoteEvent, bool) {
	if len(l.notes) == 0 {
		return NoteEvent{}, false
	}
	m := l.notes[0]
	for _, n := range l.notes[1:] {
		if n.Note > m.Note {
			m = n
		}
	}
	return m, true
}

// LastInverted mirrors the most recent note around the middle of the MIDI range
func (l *Ledger) LastInverted() (uint8, bool) {
	n, ok := l.Last()
	if !ok {
		return 0, false
	}
	return 127 - n.Note, true
}

// VelocityOf returns the velocity of the nth note counting back from the
// most recent one (0 = last)
func (l *Ledger) VelocityOf(nthFromBack int) (uint8, bool) {
	i := len(l.notes) - 1 - nthFromBack
	if nthFromBack < 0 || i < 0 {
		return 0, false
	}
	return l.notes[i].Velocity, true
}

// Contains reports whether note is held
func (l *Ledger) Contains(note uint8) bool {
	for _, n := range l.notes {
		if n.Note == note {
			return true
		}
	}
	return false
}

// SemitoneMask has bit k set when any held note has pitch class k
func (l *Ledger) SemitoneMask() uint16 {
	var mask uint16
	for _, n := range l.notes {
		mask |= 1 << (n.Note % 12)
	}
	return mask
}

// Notes returns a copy of the held notes, oldest first
func (l *Ledger) Notes() []NoteEvent {
	out := make([]NoteEvent, len(l.notes))
	copy(out, l.notes)
	return out
}

func (l *Ledger) Clear() {
	l.notes = l.notes[:0]
}

// Ledgers holds one Ledger per MIDI channel
type Ledgers [NumChannels]Ledger

func (ls *Ledgers) Push(ch, note, vel uint8) {
	if ch < NumChannels {
		ls[ch].Push(note, vel)
	}
}

func (ls *Ledgers) Pop(ch, note uint8) {
	if ch < NumChannels {
		ls[ch].Pop(note)
	}
}

func (ls *Ledgers) ClearAll() {
	for i := range ls {
		ls[i].Clear()
	}
}
