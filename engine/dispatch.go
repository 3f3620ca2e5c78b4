package engine

// Dispatch applies one incoming record to the engine
func (e *Engine) Dispatch(r Record) {
	switch r.Kind {
	case Clock:
		e.clock()
		return
	case Start, Continue:
		e.start()
		e.log.Append(ActivityEntry{Kind: r.Kind})
		return
	case Stop, SystemReset:
		e.Reset()
		e.log.Append(ActivityEntry{Kind: r.Kind})
		return
	}

	if r.Channel < 1 || r.Channel > NumChannels {
		return
	}
	ch := r.Channel - 1
	if !e.filter.Accepts(ch) {
		return
	}
	d1, d2 := clamp7(r.Data1), clamp7(r.Data2)

	before := e.slots
	switch r.Kind {
	case NoteOn:
		if d2 == 0 {
			e.noteOff(ch, d1)
		} else {
			e.noteOn(ch, d1, d2)
		}
	case NoteOff:
		e.noteOff(ch, d1)
	case ControlChange:
		e.controlChange(ch, d1, d2)
	case AfterTouch, PolyAfterTouch, PitchBend:
		e.modulation(ch, r.Kind, d1, d2)
	default:
		return
	}
	if e.rebind {
		e.rebind = false
		e.rebuild()
	}
	// one entry per pass, and only when some slot actually moved
	if e.slots != before {
		e.log.Append(ActivityEntry{Kind: r.Kind, Channel: ch, Data1: d1, Data2: d2})
	}
}

func (e *Engine) clock() {
	if e.transport.Count == 0 {
		e.trigAll(FnClockOut)
	}
	e.transport.Count = (e.transport.Count + 1) % e.clockTicks
}

func (e *Engine) start() {
	e.transport.Running = true
	e.transport.Count = 0
	e.trigAll(FnStartOut)
}

func (e *Engine) trigAll(fn Function) {
	for i := range e.slots {
		if e.slots[i].Function == fn {
			e.slots[i].Trig = true
		}
	}
}

// learn binds a learning slot to the source of the first qualifying message.
// This is the only path by which MIDI input changes a slot's function or
// channel.
func (e *Engine) learn(s *Slot, ch uint8, kind MessageKind, d1 uint8) {
	if s.Function != FnLearn {
		return
	}
	switch kind {
	case NoteOn:
		*s = Slot{Function: FnNote, Channel: ch, Voice: s.Voice}
	case ControlChange:
		*s = Slot{Function: FnCC, Channel: ch, Voice: s.Voice, Aux: int8(d1)}
	case PitchBend:
		*s = Slot{Function: FnPitchBend, Channel: ch, Voice: s.Voice}
	default:
		return
	}
	e.rebind = true
}

func (e *Engine) noteOn(ch, note, vel uint8) {
	l := &e.ledgers[ch]
	l.Push(note, vel)
	if e.polyFilter.Accepts(ch) {
		v := e.voices.FindNextVoice(note)
		if prev := e.voices.Voice(v); prev.Gated && prev.Channel != ch {
			e.stealVoice(v, prev.Channel)
		}
		e.voices.Write(v, note, vel, ch)
	}
	mask := l.SemitoneMask()

	for i := range e.slots {
		s := &e.slots[i]
		e.learn(s, ch, NoteOn, note)
		if !s.matches(ch) || s.Function.Binding() != Bound {
			continue
		}
		s.SemitoneMask = mask
		switch s.Function {
		case FnNote, FnNoteMin, FnNoteMax, FnNotePedal, FnNoteInv:
			applyNote(s, l)
		case FnNotePoly, FnGatePoly, FnVelPoly:
			e.applyVoice(s)
		case FnTrig, FnTrigAlways:
			s.Trig = true
		case FnTrig1st:
			if l.Len() == 1 {
				s.Trig = true
			}
		case FnGate:
			s.Output = MaxCV
		case FnGateInv:
			s.Output = 0
		case FnVel:
			s.Output = VelocityCV(vel)
		}
	}
}

func (e *Engine) noteOff(ch, note uint8) {
	l := &e.ledgers[ch]
	last, _ := l.Last()
	wasSounding := l.Len() > 0 && last.Note == note
	l.Pop(note)

	sustained := e.latch.IsSet(ch)
	if sustained {
		e.latch.Defer(ch)
	} else {
		e.voices.Release(ch, note)
	}
	mask := l.SemitoneMask()

	for i := range e.slots {
		s := &e.slots[i]
		if !s.matches(ch) || s.Function.Binding() != Bound {
			continue
		}
		s.SemitoneMask = mask
		if sustained {
			continue
		}
		e.release(s, l, wasSounding && l.Len() > 0)
	}
}

// release recomputes a slot after notes left the ledger. retrig is set when
// the sounding note fell back to an earlier held note.
func (e *Engine) release(s *Slot, l *Ledger, retrig bool) {
	switch s.Function {
	case FnNote, FnNoteMin, FnNoteMax, FnNotePedal, FnNoteInv:
		// pitch holds after the last release
		if l.Len() > 0 {
			applyNote(s, l)
		}
	case FnNotePoly, FnGatePoly, FnVelPoly:
		e.applyVoice(s)
	case FnTrigAlways:
		if retrig {
			s.Trig = true
		}
	case FnGate:
		if l.Len() == 0 {
			s.Output = 0
		}
	case FnGateInv:
		if l.Len() == 0 {
			s.Output = MaxCV
		}
	case FnVel:
		if v, ok := l.VelocityOf(0); ok {
			s.Output = VelocityCV(v)
		}
	}
}

func (e *Engine) controlChange(ch, cc, val uint8) {
	if cc == SustainPedal {
		if val >= 64 {
			e.latch.Set(ch)
		} else if e.latch.IsSet(ch) && e.latch.Clear(ch) {
			e.releaseSustain(ch)
		}
	}

	for i := range e.slots {
		s := &e.slots[i]
		e.learn(s, ch, ControlChange, cc)
		if !s.matches(ch) || s.Function != FnCC {
			continue
		}
		if s.Aux == NoCC {
			s.Aux = int8(cc)
		}
		if uint8(s.Aux) == cc {
			s.Output = VelocityCV(val)
		}
	}
}

// releaseSustain applies the note-off effects that were held back by the pedal
func (e *Engine) releaseSustain(ch uint8) {
	l := &e.ledgers[ch]
	e.voices.ReleaseUnheld(ch, l)
	for i := range e.slots {
		s := &e.slots[i]
		if !s.matches(ch) || s.Function.Binding() != Bound {
			continue
		}
		e.release(s, l, false)
	}
}

func (e *Engine) modulation(ch uint8, kind MessageKind, d1, d2 uint8) {
	for i := range e.slots {
		s := &e.slots[i]
		e.learn(s, ch, kind, d1)
		if !s.matches(ch) {
			continue
		}
		switch {
		case kind == AfterTouch && s.Function == FnAftertouchChannel:
			s.Output = VelocityCV(d1)
		case kind == PolyAfterTouch && s.Function == FnAftertouchPoly:
			s.Output = VelocityCV(d2)
		case kind == PitchBend && s.Function == FnPitchBend:
			s.Output = BendCV(d1, d2)
		}
	}
}

func applyNote(s *Slot, l *Ledger) {
	var n NoteEvent
	var ok bool
	switch s.Function {
	case FnNote:
		n, ok = l.Last()
	case FnNoteMin:
		n, ok = l.Min()
	case FnNoteMax:
		n, ok = l.Max()
	case FnNotePedal:
		n, ok = l.First()
	case FnNoteInv:
		n.Note, ok = l.LastInverted()
	}
	if ok {
		s.Output = NoteCV(int(n.Note) + s.Transpose())
	}
}

// stealVoice closes the gates of ch's slots on voice v before another
// channel takes it over. Pitch and velocity hold as on a release.
func (e *Engine) stealVoice(v int, ch uint8) {
	for i := range e.slots {
		s := &e.slots[i]
		if s.Function == FnGatePoly && int(s.Voice) == v && s.Channel == ch {
			s.Output = 0
		}
	}
}

// applyVoice mirrors the slot's voice onto its output. Voices allocated for
// another channel are ignored unless the slot is omni.
func (e *Engine) applyVoice(s *Slot) {
	idx := int(s.Voice)
	if idx >= e.voices.Len() {
		return
	}
	v := e.voices.Voice(idx)
	if s.Channel != Omni && v.Channel != s.Channel {
		return
	}
	switch s.Function {
	case FnNotePoly:
		if v.Gated {
			s.Output = NoteCV(int(v.Note) + s.Transpose())
		}
	case FnGatePoly:
		if v.Gated {
			s.Output = MaxCV
		} else {
			s.Output = 0
		}
	case FnVelPoly:
		if v.Gated {
			s.Output = VelocityCV(v.Velocity)
		}
	}
}
