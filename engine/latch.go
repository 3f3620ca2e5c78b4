package engine

// SustainPedal is the controller number that drives the latch
const SustainPedal = 64

// SustainLatch holds one sustain bit per MIDI channel. A second bit per
// channel records that a note-off effect was suppressed while the latch was
// held, so release can apply it exactly once.
type SustainLatch struct {
	held     uint16
	deferred uint16
}

func (l *SustainLatch) Set(ch uint8) {
	l.held |= 1 << (ch & 0x0f)
}

// Clear releases the latch and reports whether a suppressed note-off is pending
func (l *SustainLatch) Clear(ch uint8) (deferred bool) {
	bit := uint16(1) << (ch & 0x0f)
	deferred = l.deferred&bit != 0
	l.held &^= bit
	l.deferred &^= bit
	return deferred
}

func (l *SustainLatch) IsSet(ch uint8) bool {
	return l.held&(1<<(ch&0x0f)) != 0
}

// Defer marks a suppressed note-off on a held channel
func (l *SustainLatch) Defer(ch uint8) {
	if l.IsSet(ch) {
		l.deferred |= 1 << (ch & 0x0f)
	}
}

// Bits returns the raw held mask, one bit per channel
func (l *SustainLatch) Bits() uint16 {
	return l.held
}

func (l *SustainLatch) Reset() {
	l.held = 0
	l.deferred = 0
}
