package midi

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go-cvbridge/debug"
	"go-cvbridge/engine"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// PortEndpoint wraps a driver in/out port pair. Either side may be nil.
type PortEndpoint struct {
	id       string
	inPort   drivers.In
	outPort  drivers.Out
	stopFunc func()

	mu      sync.Mutex
	send    func(gomidi.Message) error
	closed  bool
	dropped *atomic.Uint64
}

// NewPortEndpoint opens the given ports. Incoming messages the engine can use
// are converted and pushed onto records; when records is full the message is
// dropped and counted.
func NewPortEndpoint(id string, inPort drivers.In, outPort drivers.Out, records chan<- engine.Record, dropped *atomic.Uint64) (*PortEndpoint, error) {
	ep := &PortEndpoint{
		id:      id,
		inPort:  inPort,
		outPort: outPort,
		dropped: dropped,
	}

	if outPort != nil {
		send, err := gomidi.SendTo(outPort)
		if err != nil {
			return nil, fmt.Errorf("open output %s: %w", id, err)
		}
		ep.send = send
	}

	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
			rec, ok := ToRecord(msg)
			if !ok {
				return
			}
			select {
			case records <- rec:
			default:
				if ep.dropped != nil {
					ep.dropped.Add(1)
				}
			}
		}, gomidi.HandleError(func(err error) {
			debug.Log("midi", "%s: listen error: %v", id, err)
		}))
		if err != nil {
			if outPort != nil {
				outPort.Close()
			}
			return nil, fmt.Errorf("open input %s: %w", id, err)
		}
		ep.stopFunc = stop
	}

	return ep, nil
}

func (ep *PortEndpoint) ID() string {
	return ep.id
}

// Type reports which directions are open
func (ep *PortEndpoint) Type() EndpointType {
	switch {
	case ep.inPort != nil && ep.outPort != nil:
		return EndpointDuplex
	case ep.inPort != nil:
		return EndpointInput
	case ep.outPort != nil:
		return EndpointOutput
	}
	return EndpointUnknown
}

// Send writes one message. Input-only endpoints ignore it.
func (ep *PortEndpoint) Send(m engine.OutMessage) error {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.send == nil {
		return nil
	}
	msg, ok := ToMessage(m)
	if !ok {
		return nil
	}
	return ep.send(msg)
}

// Close stops listening and closes both ports. Later calls do nothing.
func (ep *PortEndpoint) Close() error {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.closed {
		return nil
	}
	ep.closed = true
	if ep.stopFunc != nil {
		ep.stopFunc()
		ep.stopFunc = nil
	}
	ep.send = nil
	var err error
	if ep.inPort != nil {
		err = ep.inPort.Close()
	}
	if ep.outPort != nil {
		if cerr := ep.outPort.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
