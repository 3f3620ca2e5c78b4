package hw

import (
	"sync"

	"go-cvbridge/engine"
)

// Patch routes a slot output back into a physical input, like a patch cable.
// With Gate set the input's gate follows the output (high while CV > 0 or on
// a trig); otherwise the output CV drives the input CV.
type Patch struct {
	Slot  int
	Input int
	Gate  bool
}

// Virtual is an in-memory board used headless and in tests
type Virtual struct {
	mu      sync.Mutex
	inputs  []engine.InputSample
	outputs []engine.SlotOutput
	patches []Patch
	writes  int
}

// NewVirtual creates a board with the given number of physical inputs
func NewVirtual(channels int) *Virtual {
	return &Virtual{inputs: make([]engine.InputSample, channels)}
}

// SetInput sets the sample physical input i reports
func (v *Virtual) SetInput(i int, s engine.InputSample) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i >= 0 && i < len(v.inputs) {
		v.inputs[i] = s
	}
}

// AddPatch installs a patch; out-of-range patches are ignored at write time
func (v *Virtual) AddPatch(p Patch) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.patches = append(v.patches, p)
}

// Outputs returns a copy of the last written slot outputs
func (v *Virtual) Outputs() []engine.SlotOutput {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]engine.SlotOutput(nil), v.outputs...)
}

// Writes returns how many output frames were written
func (v *Virtual) Writes() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.writes
}

func (v *Virtual) ReadInputs(dst []engine.InputSample) ([]engine.InputSample, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append(dst, v.inputs...), nil
}

func (v *Virtual) WriteOutputs(outs []engine.SlotOutput) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.outputs = append(v.outputs[:0], outs...)
	v.writes++
	for _, p := range v.patches {
		if p.Slot < 0 || p.Slot >= len(outs) || p.Input < 0 || p.Input >= len(v.inputs) {
			continue
		}
		o := outs[p.Slot]
		if p.Gate {
			v.inputs[p.Input].Gate = o.CV > 0 || o.Trig
		} else {
			v.inputs[p.Input].CV = o.CV
		}
	}
	return nil
}

func (v *Virtual) Close() error {
	return nil
}
