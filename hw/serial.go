package hw

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go-cvbridge/debug"
	"go-cvbridge/engine"

	"go.bug.st/serial"
)

// DefaultBaud matches the board firmware
const DefaultBaud = 115200

// Serial talks to a CV/gate board over a framed serial link. A background
// reader keeps the most recent input frame; writes happen on the tick loop.
type Serial struct {
	port   io.ReadWriteCloser
	reader FrameReader

	mu       sync.Mutex
	inputs   []engine.InputSample
	frames   uint64
	badFrame uint64

	wmu  sync.Mutex
	done chan struct{}
	once sync.Once
}

// Open opens the named serial device at the given baud rate
func Open(device string, baud int, channels int) (*Serial, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	p, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	if err := p.SetReadTimeout(50 * time.Millisecond); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", device, err)
	}
	debug.Log("hw", "serial opened %s @ %d", device, baud)
	return NewSerial(p, channels), nil
}

// Ports lists serial devices present on the system
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// NewSerial wraps an already-open port. channels is the number of physical
// inputs reported until the board sends its first frame.
func NewSerial(port io.ReadWriteCloser, channels int) *Serial {
	s := &Serial{
		port:   port,
		inputs: make([]engine.InputSample, channels),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *Serial) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			s.ingest(buf[:n])
		}
		if err != nil {
			select {
			case <-s.done:
			default:
				if !errors.Is(err, io.EOF) {
					debug.Log("hw", "serial read failed: %v", err)
				}
			}
			return
		}
	}
}

func (s *Serial) ingest(data []byte) {
	frames, err := s.reader.Feed(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.badFrame++
		debug.LogEvery(20, "hw", "discarded frame: %v", err)
	}
	for _, f := range frames {
		if f.Cmd != CmdInputs {
			continue
		}
		samples, err := DecodeInputs(f.Payload)
		if err != nil {
			s.badFrame++
			continue
		}
		s.inputs = samples
		s.frames++
	}
}

// ReadInputs appends the most recent input frame to dst
func (s *Serial) ReadInputs(dst []engine.InputSample) ([]engine.InputSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(dst, s.inputs...), nil
}

// WriteOutputs sends one output frame
func (s *Serial) WriteOutputs(outs []engine.SlotOutput) error {
	data, err := EncodeOutputs(outs)
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := s.port.Write(data); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// Stats returns good and discarded input frame counts
func (s *Serial) Stats() (frames, bad uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames, s.badFrame
}

func (s *Serial) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.port.Close()
	})
	return err
}
