package synth

import "errors"

var (
	// ErrConfig reports an invalid Config.
	ErrConfig = errors.New("invalid config")
	// ErrShape reports a signal or parameter whose batch or length does not match the contract.
	ErrShape = errors.New("shape mismatch")
	// ErrRate reports a signal whose rate tag does not match the port it feeds.
	ErrRate = errors.New("rate mismatch")
	// ErrParamRange reports a parameter value outside its allowed range.
	ErrParamRange = errors.New("parameter value out of range")
	// ErrUnknownModule is returned when a module name was never registered.
	ErrUnknownModule = errors.New("unknown module")
	// ErrDuplicateModule is returned when a module name is registered twice.
	ErrDuplicateModule = errors.New("duplicate module")
	// ErrUnknownPort is returned when a wiring references an undeclared port.
	ErrUnknownPort = errors.New("unknown port")
	// ErrUnknownParameter is returned when a parameter name is not owned by the module.
	ErrUnknownParameter = errors.New("unknown parameter")
	// ErrSharedParameter is returned when one *Parameter is declared by more than one module.
	ErrSharedParameter = errors.New("parameter shared between modules")
	// ErrGraphEmpty is returned when evaluating a Synth without modules.
	ErrGraphEmpty = errors.New("graph has no modules")
	// ErrCycle is returned when a wiring contains a dependency cycle.
	ErrCycle = errors.New("graph contains cycle")
)
