package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-cvbridge/engine"
)

// AppName names the config directory
const AppName = "go-cvbridge"

// PortConfig controls which MIDI ports are auto-connected
type PortConfig struct {
	Exclude []string `json:"exclude,omitempty"` // case-insensitive substrings
}

// EngineConfig holds the mapping table and its global options
type EngineConfig struct {
	ClockDivisor int      `json:"clockDivisor,omitempty"`
	PolyMode     string   `json:"polyMode,omitempty"`
	Slots        []uint32 `json:"slots,omitempty"` // packed slot words
}

// SendChannelConfig assigns one physical input
type SendChannelConfig struct {
	Function    string `json:"function"`
	MIDIChannel int    `json:"midiChannel"` // 1-16
	CC          int    `json:"cc,omitempty"`
}

// SendConfig controls the CV -> MIDI direction
type SendConfig struct {
	Channels   []SendChannelConfig `json:"channels,omitempty"`
	NoteLength int                 `json:"noteLength,omitempty"` // ticks
	Hysteresis int                 `json:"hysteresis,omitempty"` // CV units
	Velocity   int                 `json:"velocity,omitempty"`
}

// SerialConfig selects the CV board; an empty device means the virtual board
type SerialConfig struct {
	Device string `json:"device,omitempty"`
	Baud   int    `json:"baud,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette string `json:"palette,omitempty"` // path to a GIMP .gpl file
}

// Config is the main configuration structure
type Config struct {
	TickMillis int          `json:"tickMillis,omitempty"`
	Ports      PortConfig   `json:"ports,omitempty"`
	Engine     EngineConfig `json:"engine"`
	Send       SendConfig   `json:"send"`
	Serial     SerialConfig `json:"serial,omitempty"`
	UI         UIConfig     `json:"ui,omitempty"`
}

// DefaultConfig returns a config with sensible defaults: a mono voice on
// channel 1 (pitch, gate, velocity, learnable CC) and four physical inputs
// sending a gated note, a CC and a free note on channel 1
func DefaultConfig() *Config {
	send := engine.DefaultSendOptions()
	return &Config{
		TickMillis: 2,
		Ports: PortConfig{
			Exclude: []string{"Midi Through", "Through Port", "Dummy"},
		},
		Engine: EngineConfig{
			ClockDivisor: engine.DefaultOptions().ClockDivisor,
			PolyMode:     engine.PolyRotate.String(),
			Slots: engine.PackSlots([]engine.Slot{
				engine.NewSlot(engine.FnNote, 0),
				engine.NewSlot(engine.FnGate, 0),
				engine.NewSlot(engine.FnVel, 0),
				engine.NewSlot(engine.FnCC, 0),
			}),
		},
		Send: SendConfig{
			Channels: []SendChannelConfig{
				{Function: engine.OutNone.String(), MIDIChannel: 1},
				{Function: engine.OutGate.String(), MIDIChannel: 1},
				{Function: engine.OutCC.String(), MIDIChannel: 1, CC: 1},
				{Function: engine.OutNote.String(), MIDIChannel: 1},
			},
			NoteLength: send.NoteLength,
			Hysteresis: int(send.Hysteresis),
			Velocity:   int(send.Velocity),
		},
		Serial: SerialConfig{Baud: 115200},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. Fields missing from the file keep
// their defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// TickPeriod returns the tick loop interval
func (c *Config) TickPeriod() time.Duration {
	if c.TickMillis <= 0 {
		return 2 * time.Millisecond
	}
	return time.Duration(c.TickMillis) * time.Millisecond
}

// EngineOptions converts the engine section
func (c *Config) EngineOptions() (engine.Options, error) {
	opts := engine.DefaultOptions()
	if c.Engine.ClockDivisor != 0 {
		opts.ClockDivisor = c.Engine.ClockDivisor
	}
	if c.Engine.PolyMode != "" {
		mode, err := engine.ParsePolyMode(c.Engine.PolyMode)
		if err != nil {
			return opts, err
		}
		opts.PolyMode = mode
	}
	return opts, nil
}

// SlotTable unpacks the stored mapping table. Invalid words load as
// no-op slots and are counted in degraded.
func (c *Config) SlotTable() (slots [engine.MaxSlots]engine.Slot, degraded int) {
	return engine.LoadSlots(c.Engine.Slots)
}

// SetSlots stores a mapping table, trimming trailing no-op slots
func (c *Config) SetSlots(slots []engine.Slot) {
	n := len(slots)
	for n > 0 && slots[n-1].Function == engine.FnNoop {
		n--
	}
	c.Engine.Slots = engine.PackSlots(slots[:n])
}

// SendOptions converts the send section
func (c *Config) SendOptions() engine.SendOptions {
	opts := engine.DefaultSendOptions()
	if c.Send.NoteLength > 0 {
		opts.NoteLength = c.Send.NoteLength
	}
	if c.Send.Hysteresis > 0 {
		opts.Hysteresis = int32(c.Send.Hysteresis)
	}
	if c.Send.Velocity > 0 {
		opts.Velocity = uint8(min(c.Send.Velocity, 127))
	}
	return opts
}

// Assignments converts the send channel list. The count is rounded up to
// an even number of at least two.
func (c *Config) Assignments() ([]engine.Assignment, error) {
	n := len(c.Send.Channels)
	if n%2 != 0 {
		n++
	}
	n = max(n, 2)
	if n > engine.MaxPhysical {
		return nil, fmt.Errorf("%w: %d", engine.ErrChannelCount, len(c.Send.Channels))
	}

	out := make([]engine.Assignment, n)
	for i, ch := range c.Send.Channels {
		fn, err := engine.ParseOutFunction(ch.Function)
		if err != nil {
			return nil, fmt.Errorf("send channel %d: %w", i+1, err)
		}
		if ch.MIDIChannel < 1 || ch.MIDIChannel > engine.NumChannels {
			return nil, fmt.Errorf("send channel %d: midi channel %d out of range", i+1, ch.MIDIChannel)
		}
		if ch.CC < 0 || ch.CC > 127 {
			return nil, fmt.Errorf("send channel %d: cc %d out of range", i+1, ch.CC)
		}
		out[i] = engine.Assignment{Function: fn, Channel: uint8(ch.MIDIChannel - 1), CC: uint8(ch.CC)}
	}
	return out, nil
}
