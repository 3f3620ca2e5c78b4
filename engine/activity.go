package engine

// ActivityLogSize is the number of entries kept by the activity log
const ActivityLogSize = 7

// ActivityEntry records one message that changed slot state
type ActivityEntry struct {
	Kind    MessageKind
	Channel uint8 // 0-based
	Data1   uint8
	Data2   uint8
}

// ActivityLog is a small ring buffer that drops the oldest entry when full
type ActivityLog struct {
	entries [ActivityLogSize]ActivityEntry
	head    int // next write position
	count   int
}

func (a *ActivityLog) Append(e ActivityEntry) {
	a.entries[a.head] = e
	a.head = (a.head + 1) % ActivityLogSize
	if a.count < ActivityLogSize {
		a.count++
	}
}

func (a *ActivityLog) Len() int {
	return a.count
}

// Entries returns the log oldest first
func (a *ActivityLog) Entries() []ActivityEntry {
	out := make([]ActivityEntry, 0, a.count)
	start := (a.head - a.count + ActivityLogSize) % ActivityLogSize
	for i := 0; i < a.count; i++ {
		out = append(out, a.entries[(start+i)%ActivityLogSize])
	}
	return out
}

func (a *ActivityLog) Clear() {
	a.head = 0
	a.count = 0
}
