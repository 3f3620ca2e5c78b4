package engine

// ChannelFilter caches which MIDI channels any slot listens to
type ChannelFilter struct {
	Mask uint16
	Omni bool
}

// BuildFilter ORs together the channel of every slot. Learning slots accept
// any channel.
func BuildFilter(slots []Slot) ChannelFilter {
	var f ChannelFilter
	for _, s := range slots {
		f.add(s)
	}
	return f
}

// BuildPolyFilter covers only the slots that read the voice pool
func BuildPolyFilter(slots []Slot) ChannelFilter {
	var f ChannelFilter
	for _, s := range slots {
		if s.Function.UsesVoice() {
			f.add(s)
		}
	}
	return f
}

func (f *ChannelFilter) add(s Slot) {
	if s.Channel >= Omni || s.Function == FnLearn {
		f.Omni = true
		return
	}
	f.Mask |= 1 << s.Channel
}

// Accepts reports whether a 0-based channel is of interest
func (f ChannelFilter) Accepts(ch uint8) bool {
	if f.Omni {
		return true
	}
	return ch < NumChannels && (f.Mask>>ch)&1 != 0
}
