package bridge

import "go-cvbridge/engine"

// Snapshot is a read-only copy of the bridge state for display
type Snapshot struct {
	Slots       [engine.MaxSlots]engine.Slot
	Triggered   uint32 // slots that fired since the previous snapshot
	Assignments []engine.Assignment
	Inputs      []engine.InputSample
	Transport   engine.Transport
	Voices      []engine.Voice
	Sustain     uint16
	Activity    []engine.ActivityEntry
	PolyMode    engine.PolyMode
	Ticks       uint64
	Processed   uint64
	Sent        uint64
}

// Snapshot copies the current state. Trigger bits are consumed.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Slots:     m.engine.Slots(),
		Triggered: m.trigSeen,
		Inputs:    append([]engine.InputSample(nil), m.samples...),
		Transport: m.engine.Transport(),
		Voices:    m.engine.Voices(),
		Sustain:   m.engine.SustainBits(),
		Activity:  m.engine.ActivityLog(),
		PolyMode:  m.engine.PolyMode(),
		Ticks:     m.ticks,
		Processed: m.processed,
		Sent:      m.sent,
	}
	m.trigSeen = 0

	s.Assignments = make([]engine.Assignment, m.sender.Channels())
	for i := range s.Assignments {
		s.Assignments[i] = m.sender.Assignment(i)
	}
	return s
}

// Held returns the notes held on a 0-based channel
func (m *Manager) Held(ch uint8) []engine.NoteEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.Ledger(ch)
}
