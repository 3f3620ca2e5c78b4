package engine

// DAC fixed-point scale: 128 units per semitone, note 60 sits at 0V.
const (
	CVPerSemitone = 128
	CVPerVolt     = 12 * CVPerSemitone
	MaxCV         = 5 * CVPerVolt // gate level and full-scale modulation
	PitchBendCV   = 3 * CVPerVolt // full bend deflection
	MiddleC       = 60

	bendCenter = 8192
)

// NoteCV returns the pitch CV for a MIDI note, clamped to 0..127
func NoteCV(note int) int32 {
	return int32((clampInt(note, 0, 127) - MiddleC) * CVPerSemitone)
}

// Proportion scales v in 0..max linearly onto 0..scale
func Proportion(v, max, scale int) int32 {
	if max == 0 {
		return 0
	}
	return int32(v * scale / max)
}

// VelocityCV maps a 7-bit value onto the full modulation range
func VelocityCV(v uint8) int32 {
	return Proportion(int(clamp7(v)), 127, MaxCV)
}

// BendCV maps a 14-bit pitch bend (LSB, MSB) onto +/- PitchBendCV
func BendCV(lsb, msb uint8) int32 {
	v := int(clamp7(msb))<<7 | int(clamp7(lsb))
	return Proportion(v-bendCenter, bendCenter, PitchBendCV)
}

// CVNote quantizes a pitch CV to the nearest MIDI note
func CVNote(cv int32) uint8 {
	n := floorDiv(int(cv)+CVPerSemitone/2, CVPerSemitone) + MiddleC
	return uint8(clampInt(n, 0, 127))
}

// CVValue maps a CV onto a 7-bit controller value
func CVValue(cv int32) uint8 {
	return uint8(clampInt(int(cv)*127/MaxCV, 0, 127))
}

// CVBend maps a CV onto a 14-bit pitch bend split into LSB and MSB
func CVBend(cv int32) (lsb, msb uint8) {
	v := clampInt(int(cv)*bendCenter/PitchBendCV, -bendCenter, bendCenter-1) + bendCenter
	return uint8(v & 0x7f), uint8(v >> 7)
}

func clamp7(v uint8) uint8 {
	if v > 127 {
		return 127
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
