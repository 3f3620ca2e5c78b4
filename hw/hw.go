// Package hw drives the physical CV/gate side of the bridge: slot outputs go
// to DAC channels, physical inputs come back as CV samples plus gate bits.
package hw

import "go-cvbridge/engine"

// Driver is a CV/gate board. Both calls are made from the tick loop only.
type Driver interface {
	// ReadInputs appends the latest sample of every physical input to dst
	ReadInputs(dst []engine.InputSample) ([]engine.InputSample, error)
	// WriteOutputs pushes one tick of slot outputs
	WriteOutputs(outs []engine.SlotOutput) error
	Close() error
}
