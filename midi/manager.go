package midi

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go-cvbridge/debug"
	"go-cvbridge/engine"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// DefaultExclude lists virtual/system ports that are never auto-connected
var DefaultExclude = []string{"Midi Through", "Through Port", "Dummy"}

// RecordQueueSize bounds the shared inbound record queue
const RecordQueueSize = 256

// DeviceEvent is emitted when endpoints connect/disconnect
type DeviceEvent struct {
	Type     DeviceEventType
	Endpoint Endpoint
	ID       string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// DeviceManager handles hot-plug detection of MIDI ports. Every port is an
// input source for the engine and a destination for the send path.
type DeviceManager struct {
	endpoints map[string]Endpoint
	mu        sync.RWMutex
	events    chan DeviceEvent
	records   chan engine.Record
	dropped   atomic.Uint64
	pollRate  time.Duration
	exclude   []string
}

// NewDeviceManager creates a new device manager. Port names containing any of
// exclude (case-insensitive) are skipped.
func NewDeviceManager(exclude []string) *DeviceManager {
	if exclude == nil {
		exclude = DefaultExclude
	}
	return &DeviceManager{
		endpoints: make(map[string]Endpoint),
		events:    make(chan DeviceEvent, 16),
		records:   make(chan engine.Record, RecordQueueSize),
		pollRate:  time.Second,
		exclude:   exclude,
	}
}

// Events returns a channel of device connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Records returns the merged inbound record stream of all endpoints
func (dm *DeviceManager) Records() <-chan engine.Record {
	return dm.records
}

// Dropped returns how many inbound messages were lost to a full queue
func (dm *DeviceManager) Dropped() uint64 {
	return dm.dropped.Load()
}

// Endpoints returns the sorted IDs of connected endpoints
func (dm *DeviceManager) Endpoints() []string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	ids := make([]string, 0, len(dm.endpoints))
	for id := range dm.endpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Attach registers an endpoint that is not managed by the port scan
func (dm *DeviceManager) Attach(ep Endpoint) {
	dm.mu.Lock()
	dm.endpoints[ep.ID()] = ep
	dm.mu.Unlock()
	dm.emit(DeviceEvent{Type: DeviceConnected, Endpoint: ep, ID: ep.ID()})
}

// Broadcast sends every message to every endpoint, in order
func (dm *DeviceManager) Broadcast(msgs []engine.OutMessage) {
	if len(msgs) == 0 {
		return
	}
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, ep := range dm.endpoints {
		for _, m := range msgs {
			if err := ep.Send(m); err != nil {
				debug.LogEvery(50, "midi", "%s: send failed: %v", ep.ID(), err)
				break
			}
		}
	}
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	// Initial scan
	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

func (dm *DeviceManager) scan() {
	// Get current MIDI ports with timeout (CoreMIDI can hang)
	type portsResult struct {
		inPorts  []drivers.In
		outPorts []drivers.Out
	}

	ch := make(chan portsResult, 1)
	go func() {
		ch <- portsResult{inPorts: gomidi.GetInPorts(), outPorts: gomidi.GetOutPorts()}
	}()

	var result portsResult
	select {
	case result = <-ch:
	case <-time.After(3 * time.Second):
		debug.Log("midi", "port scan timed out")
		return
	}

	seen := make(map[string]bool)
	for _, p := range pairPorts(result.inPorts, result.outPorts) {
		if dm.excluded(p.name) {
			continue
		}
		seen[p.name] = true

		dm.mu.RLock()
		_, exists := dm.endpoints[p.name]
		dm.mu.RUnlock()
		if exists {
			continue
		}

		ep, err := NewPortEndpoint(p.name, p.in, p.out, dm.records, &dm.dropped)
		if err != nil {
			debug.Log("midi", "connect %s failed: %v", p.name, err)
			continue
		}
		dm.mu.Lock()
		dm.endpoints[p.name] = ep
		dm.mu.Unlock()
		debug.Log("midi", "connected %s (%s)", p.name, ep.Type())
		dm.emit(DeviceEvent{Type: DeviceConnected, Endpoint: ep, ID: p.name})
	}

	// Check for disconnects
	dm.mu.Lock()
	var removed []string
	for id, ep := range dm.endpoints {
		if _, scanned := ep.(*PortEndpoint); !scanned || seen[id] {
			continue
		}
		ep.Close()
		delete(dm.endpoints, id)
		removed = append(removed, id)
	}
	dm.mu.Unlock()

	for _, id := range removed {
		debug.Log("midi", "disconnected %s", id)
		dm.emit(DeviceEvent{Type: DeviceDisconnected, ID: id})
	}
}

func (dm *DeviceManager) emit(ev DeviceEvent) {
	select {
	case dm.events <- ev:
	default:
	}
}

func (dm *DeviceManager) excluded(name string) bool {
	for _, pat := range dm.exclude {
		if pat != "" && containsCI(name, pat) {
			return true
		}
	}
	return false
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, ep := range dm.endpoints {
		ep.Close()
	}
	dm.endpoints = make(map[string]Endpoint)
}

type portPair struct {
	name string
	in   drivers.In
	out  drivers.Out
}

// pairPorts matches inputs and outputs that share a name
func pairPorts(ins []drivers.In, outs []drivers.Out) []portPair {
	byName := make(map[string]*portPair)
	var order []string
	get := func(name string) *portPair {
		key := strings.ToLower(name)
		p, ok := byName[key]
		if !ok {
			p = &portPair{name: name}
			byName[key] = p
			order = append(order, key)
		}
		return p
	}
	for _, in := range ins {
		get(in.String()).in = in
	}
	for _, out := range outs {
		get(out.String()).out = out
	}
	pairs := make([]portPair, 0, len(order))
	for _, key := range order {
		pairs = append(pairs, *byName[key])
	}
	return pairs
}

func containsCI(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
