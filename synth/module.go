package synth

import "fmt"

// Port is a named module input or output with a fixed rate.
type Port struct {
	Name string
	Rate Rate
}

// Module is a unit of signal processing.
//
// Ports and their rates are fixed at construction. Forward must be a pure
// function of its inputs and the resolved parameter values: a module keeps
// no state between calls. Inputs arrive in declared order and have already
// been checked against the declared ports; outputs must match Outputs().
type Module interface {
	Inputs() []Port
	Outputs() []Port
	Parameters() []*Parameter
	Forward(p Values, in []*Signal) ([]*Signal, error)
}

// Constructor builds a module bound to cfg.
type Constructor func(cfg *Config) (Module, error)

// Registration names one module to add to a Synth.
type Registration struct {
	Name string
	New  Constructor
}

// Base carries the declarative part of a Module. Embed it and implement Forward.
type Base struct {
	In     []Port
	Out    []Port
	Params []*Parameter
}

// Inputs returns the declared input ports.
func (b *Base) Inputs() []Port { return b.In }

// Outputs returns the declared output ports.
func (b *Base) Outputs() []Port { return b.Out }

// Parameters returns the owned parameters.
func (b *Base) Parameters() []*Parameter { return b.Params }

// Values is the resolved parameter view one module sees during one call.
type Values struct {
	module string
	snap   *Snapshot
}

// Module returns the name the module was registered under.
func (v Values) Module() string { return v.module }

// BatchID returns the batch being evaluated.
func (v Values) BatchID() uint64 { return v.snap.batchID }

// Get returns the per-voice human-range values of the named parameter.
func (v Values) Get(name string) ([]float64, error) {
	id := ParamID{Module: v.module, Name: name}
	vals, ok := v.snap.Human(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, id)
	}
	return vals, nil
}

// Normalized returns the per-voice normalized values of the named parameter.
func (v Values) Normalized(name string) ([]float64, error) {
	id := ParamID{Module: v.module, Name: name}
	vals, ok := v.snap.Normalized(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, id)
	}
	return vals, nil
}

// VoiceSeed returns a seed for stochastic processing in voice voice. It is
// stable for the voice's global id and distinct per module.
func (v Values) VoiceSeed(voice int) uint64 {
	return mix64(v.snap.VoiceSeed(voice) ^ hashString(v.module))
}
