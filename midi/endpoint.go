package midi

import "go-cvbridge/engine"

// Endpoint is one attached MIDI transport. Everything the send path produces
// goes to every endpoint.
type Endpoint interface {
	ID() string
	Send(msg engine.OutMessage) error
	Close() error
}

// EndpointType identifies what an endpoint can do
type EndpointType int

const (
	EndpointUnknown EndpointType = iota
	EndpointInput
	EndpointOutput
	EndpointDuplex
)

func (t EndpointType) String() string {
	switch t {
	case EndpointInput:
		return "in"
	case EndpointOutput:
		return "out"
	case EndpointDuplex:
		return "in/out"
	}
	return "?"
}
