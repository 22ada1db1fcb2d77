package synth

import "fmt"

// Eval is the per-call view a Patch uses to run modules.
type Eval struct {
	cfg   *Config
	snap  *Snapshot
	nodes map[string]*node
}

// Config returns the synth configuration.
func (e *Eval) Config() *Config { return e.cfg }

// BatchID returns the batch being evaluated.
func (e *Eval) BatchID() uint64 { return e.snap.batchID }

// Snapshot returns the parameter values of this call.
func (e *Eval) Snapshot() *Snapshot { return e.snap }

// Call runs the named module on inputs given in declared port order.
//
// The inputs are checked against the declared ports before Forward runs:
// a wrong count, batch or length fails with ErrShape, a wrong rate tag with
// ErrRate. The module outputs are checked the same way.
func (e *Eval) Call(name string, in ...*Signal) ([]*Signal, error) {
	n, ok := e.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	if len(in) != len(n.in) {
		return nil, fmt.Errorf("%w: module %q takes %d inputs, got %d", ErrShape, name, len(n.in), len(in))
	}
	for i, p := range n.in {
		if err := in[i].checkShape(e.cfg, p.Rate, fmt.Sprintf("module %q input %q", name, p.Name)); err != nil {
			return nil, err
		}
	}

	out, err := n.module.Forward(Values{module: name, snap: e.snap}, in)
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", name, err)
	}

	if len(out) != len(n.out) {
		return nil, fmt.Errorf("%w: module %q returned %d outputs, declares %d", ErrShape, name, len(out), len(n.out))
	}
	for i, p := range n.out {
		if err := out[i].checkShape(e.cfg, p.Rate, fmt.Sprintf("module %q output %q", name, p.Name)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Call1 runs a single-output module and returns that output.
func (e *Eval) Call1(name string, in ...*Signal) (*Signal, error) {
	out, err := e.Call(name, in...)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: module %q has %d outputs, Call1 needs exactly one", ErrShape, name, len(out))
	}
	return out[0], nil
}

// Upsample linearly converts a control-rate signal to audio rate.
func (e *Eval) Upsample(sig *Signal) (*Signal, error) {
	return Upsample(e.cfg, sig, InterpLinear)
}
