// Package bridge runs the tick loop that joins MIDI transports, the mapping
// engine, the CV hardware and the send path.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go-cvbridge/debug"
	"go-cvbridge/engine"
)

// Hardware is the CV/gate side of the bridge
type Hardware interface {
	ReadInputs(dst []engine.InputSample) ([]engine.InputSample, error)
	WriteOutputs(outs []engine.SlotOutput) error
}

// Broadcaster delivers send path messages to every MIDI endpoint
type Broadcaster interface {
	Broadcast(msgs []engine.OutMessage)
}

const (
	DefaultTickPeriod = 2 * time.Millisecond

	maxRecordsPerTick = 64
	configQueueSize   = 64
	injectQueueSize   = 16
	uiFPS             = 30
)

var ErrQueueFull = errors.New("bridge: config queue full")

// SlotUpdate replaces one mapping slot wholesale
type SlotUpdate struct {
	Index int
	Slot  engine.Slot
}

// AssignUpdate changes what one physical input sends
type AssignUpdate struct {
	Index      int
	Assignment engine.Assignment
}

// Manager owns the engine and sender. Configuration changes are queued and
// applied at the start of the next tick so the tick loop never observes a
// half-written slot.
type Manager struct {
	engine *engine.Engine
	sender *engine.Sender
	hw     Hardware
	out    Broadcaster

	input      <-chan engine.Record
	inject     chan engine.Record
	slotChan   chan SlotUpdate
	assignChan chan AssignUpdate
	polyChan   chan engine.PolyMode
	panicking  atomic.Bool

	mu        sync.Mutex
	outs      []engine.SlotOutput
	samples   []engine.InputSample
	pending   []engine.OutMessage
	trigSeen  uint32
	ticks     uint64
	processed uint64
	sent      uint64

	tickPeriod time.Duration

	// Notify TUI of updates
	UpdateChan chan struct{}
}

// NewManager creates a manager. hw and out may be nil.
func NewManager(eng *engine.Engine, sender *engine.Sender, hw Hardware, out Broadcaster) *Manager {
	return &Manager{
		engine:     eng,
		sender:     sender,
		hw:         hw,
		out:        out,
		inject:     make(chan engine.Record, injectQueueSize),
		slotChan:   make(chan SlotUpdate, configQueueSize),
		assignChan: make(chan AssignUpdate, configQueueSize),
		polyChan:   make(chan engine.PolyMode, 1),
		tickPeriod: DefaultTickPeriod,
		UpdateChan: make(chan struct{}, 1),
	}
}

// SetInput sets the inbound record stream (call before Run)
func (m *Manager) SetInput(records <-chan engine.Record) {
	m.input = records
}

// SetTickPeriod sets the tick interval (call before Run)
func (m *Manager) SetTickPeriod(d time.Duration) {
	if d > 0 {
		m.tickPeriod = d
	}
}

// Enqueue injects a record from outside the transports. Reports false when
// the queue is full.
func (m *Manager) Enqueue(r engine.Record) bool {
	select {
	case m.inject <- r:
		return true
	default:
		return false
	}
}

// UpdateSlot queues a whole-slot replacement
func (m *Manager) UpdateSlot(i int, s engine.Slot) error {
	if i < 0 || i >= engine.MaxSlots {
		return fmt.Errorf("%w: %d", engine.ErrSlotIndex, i)
	}
	select {
	case m.slotChan <- SlotUpdate{Index: i, Slot: s}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Assign queues a physical input assignment
func (m *Manager) Assign(i int, a engine.Assignment) error {
	if i < 0 || i >= m.sender.Channels() {
		return fmt.Errorf("physical channel %d out of range", i)
	}
	select {
	case m.assignChan <- AssignUpdate{Index: i, Assignment: a}:
		return nil
	default:
		return ErrQueueFull
	}
}

// SetPolyMode queues a voice allocation policy change. Only the latest
// pending change is kept.
func (m *Manager) SetPolyMode(mode engine.PolyMode) {
	for {
		select {
		case m.polyChan <- mode:
			return
		default:
		}
		select {
		case <-m.polyChan:
		default:
		}
	}
}

// Panic resets the engine and releases every note the send path has sounding,
// as if a SystemReset had arrived
func (m *Manager) Panic() {
	m.panicking.Store(true)
}

// Tick runs one pass: apply queued config, dispatch pending records, write
// slot outputs, read physical inputs and run the send path
func (m *Manager) Tick() {
	m.mu.Lock()

	m.applyConfig()
	m.pending = m.pending[:0]
	if m.panicking.Swap(false) {
		debug.Log("bridge", "panic: resetting engine and releasing notes")
		m.engine.Dispatch(engine.Record{Kind: engine.SystemReset})
		m.pending = append(m.pending, m.sender.Reset()...)
	}
	m.drainRecords()

	m.outs = m.engine.TakeOutputs(m.outs[:0])
	for i, o := range m.outs {
		if o.Trig {
			m.trigSeen |= 1 << i
		}
	}

	if m.hw != nil {
		if err := m.hw.WriteOutputs(m.outs); err != nil {
			debug.LogEvery(100, "bridge", "write outputs: %v", err)
		}
		samples, err := m.hw.ReadInputs(m.samples[:0])
		if err != nil {
			debug.LogEvery(100, "bridge", "read inputs: %v", err)
		} else {
			m.samples = samples
		}
	}

	m.pending = append(m.pending, m.sender.Process(m.samples)...)
	m.sent += uint64(len(m.pending))
	m.ticks++
	msgs := m.pending
	m.mu.Unlock()

	// Tick is only called from one goroutine, so pending is not reused
	// until the next call
	if m.out != nil && len(msgs) > 0 {
		m.out.Broadcast(msgs)
	}
}

func (m *Manager) applyConfig() {
	for {
		select {
		case u := <-m.slotChan:
			if err := m.engine.SetSlot(u.Index, u.Slot); err != nil {
				debug.Log("bridge", "slot %d: %v", u.Index, err)
			}
		case u := <-m.assignChan:
			if err := m.sender.Assign(u.Index, u.Assignment); err != nil {
				debug.Log("bridge", "assign %d: %v", u.Index, err)
			}
		case mode := <-m.polyChan:
			m.engine.SetPolyMode(mode)
		default:
			return
		}
	}
}

func (m *Manager) drainRecords() {
	for n := 0; n < maxRecordsPerTick; n++ {
		select {
		case r := <-m.inject:
			m.engine.Dispatch(r)
		case r, ok := <-m.input:
			if !ok {
				m.input = nil
				continue
			}
			m.engine.Dispatch(r)
		default:
			return
		}
		m.processed++
	}
}

// Run drives Tick at the tick period until ctx is done, then releases every
// sounding note and zeroes the outputs (blocking - run in goroutine)
func (m *Manager) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(m.tickPeriod)
	uiTicker := time.NewTicker(time.Second / uiFPS)
	defer ticker.Stop()
	defer uiTicker.Stop()

	debug.Log("bridge", "tick loop started (%v)", m.tickPeriod)
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case <-ticker.C:
			m.Tick()
		case <-uiTicker.C:
			m.notifyUpdate()
		}
	}
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	msgs := append([]engine.OutMessage(nil), m.sender.Reset()...)
	m.engine.Reset()
	m.outs = m.engine.TakeOutputs(m.outs[:0])
	if m.hw != nil {
		if err := m.hw.WriteOutputs(m.outs); err != nil {
			debug.Log("bridge", "zero outputs: %v", err)
		}
	}
	m.mu.Unlock()

	if m.out != nil && len(msgs) > 0 {
		m.out.Broadcast(msgs)
	}
	debug.Log("bridge", "tick loop stopped, released %d notes", len(msgs))
}

func (m *Manager) notifyUpdate() {
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}
