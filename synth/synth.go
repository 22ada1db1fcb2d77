package synth

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoPatch is returned when evaluating a Synth that has no patch.
var ErrNoPatch = errors.New("synth has no patch")

// Patch is the topology of a Synth: it pulls module outputs through ev in
// dependency order and returns the final audio-rate buffer.
type Patch interface {
	Output(ev *Eval) (*Signal, error)
}

// PatchFunc adapts a function to Patch.
type PatchFunc func(ev *Eval) (*Signal, error)

// Output calls f(ev).
func (f PatchFunc) Output(ev *Eval) (*Signal, error) { return f(ev) }

type node struct {
	name   string
	module Module
	in     []Port
	out    []Port
}

// Synth owns a set of named modules bound to one Config and evaluates them
// through its Patch. Evaluation is safe for concurrent use: every call works
// on its own parameter Snapshot and transient buffers.
type Synth struct {
	cfg *Config

	mu    sync.RWMutex
	patch Patch
	nodes map[string]*node
	order []string
}

// New creates an empty Synth. patch may be nil and set later with SetPatch.
func New(cfg *Config, patch Patch) (*Synth, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrConfig)
	}
	return &Synth{
		cfg:   cfg,
		patch: patch,
		nodes: make(map[string]*node),
	}, nil
}

// Config returns the configuration shared by all modules.
func (s *Synth) Config() *Config { return s.cfg }

// SetPatch replaces the topology.
func (s *Synth) SetPatch(p Patch) {
	s.mu.Lock()
	s.patch = p
	s.mu.Unlock()
}

// AddModules constructs and registers modules in order. Either every entry
// is registered or none is. A duplicate name (against earlier registrations
// or within regs) fails with ErrDuplicateModule and a parameter declared by
// two modules fails with ErrSharedParameter. A failing constructor aborts
// the call.
func (s *Synth) AddModules(regs ...Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(regs))
	for _, r := range regs {
		if r.Name == "" {
			return errors.New("synth: empty module name")
		}
		if r.New == nil {
			return fmt.Errorf("synth: module %q: nil constructor", r.Name)
		}
		if _, ok := s.nodes[r.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateModule, r.Name)
		}
		if _, ok := seen[r.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateModule, r.Name)
		}
		seen[r.Name] = struct{}{}
	}

	built := make([]*node, 0, len(regs))
	owner := make(map[*Parameter]string)
	for _, r := range regs {
		m, err := r.New(s.cfg)
		if err != nil {
			return fmt.Errorf("synth: construct module %q: %w", r.Name, err)
		}
		if m == nil {
			return fmt.Errorf("synth: module %q: constructor returned nil", r.Name)
		}
		if err := validateModule(r.Name, m); err != nil {
			return err
		}
		for _, p := range m.Parameters() {
			if p.module != "" {
				return fmt.Errorf("%w: %q of module %q is owned by %q", ErrSharedParameter, p.Name(), r.Name, p.module)
			}
			if prev, ok := owner[p]; ok {
				return fmt.Errorf("%w: %q of module %q is owned by %q", ErrSharedParameter, p.Name(), r.Name, prev)
			}
			owner[p] = r.Name
		}
		built = append(built, &node{
			name:   r.Name,
			module: m,
			in:     append([]Port(nil), m.Inputs()...),
			out:    append([]Port(nil), m.Outputs()...),
		})
	}

	nodes := make(map[string]*node, len(s.nodes)+len(built))
	for k, v := range s.nodes {
		nodes[k] = v
	}
	order := append(make([]string, 0, len(s.order)+len(built)), s.order...)
	for _, n := range built {
		for _, p := range n.module.Parameters() {
			p.bind(n.name)
		}
		nodes[n.name] = n
		order = append(order, n.name)
	}
	s.nodes = nodes
	s.order = order
	return nil
}

func validateModule(name string, m Module) error {
	for _, ports := range [][]Port{m.Inputs(), m.Outputs()} {
		seen := make(map[string]struct{}, len(ports))
		for _, p := range ports {
			if _, ok := seen[p.Name]; ok {
				return fmt.Errorf("synth: module %q declares port %q twice", name, p.Name)
			}
			seen[p.Name] = struct{}{}
		}
	}
	if len(m.Outputs()) == 0 {
		return fmt.Errorf("synth: module %q declares no outputs", name)
	}
	params := make(map[string]struct{}, len(m.Parameters()))
	for _, p := range m.Parameters() {
		if p == nil {
			return fmt.Errorf("synth: module %q has a nil parameter", name)
		}
		if _, ok := params[p.Name()]; ok {
			return fmt.Errorf("synth: module %q declares parameter %q twice", name, p.Name())
		}
		params[p.Name()] = struct{}{}
	}
	return nil
}

// Names returns module names in registration order.
func (s *Synth) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Module returns the module registered under name.
func (s *Synth) Module(name string) (Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return n.module, nil
}

// Parameter returns one parameter of a registered module.
func (s *Synth) Parameter(module, name string) (*Parameter, error) {
	m, err := s.Module(module)
	if err != nil {
		return nil, err
	}
	for _, p := range m.Parameters() {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUnknownParameter, module, name)
}

// Parameters returns every parameter, grouped by module in registration order.
func (s *Synth) Parameters() []*Parameter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Parameter
	for _, name := range s.order {
		out = append(out, s.nodes[name].module.Parameters()...)
	}
	return out
}

// Randomize resolves every parameter for batchID: frozen parameters keep
// their values, the rest are drawn per voice. Batch ids above
// MaxBatchID fail with ErrConfig.
func (s *Synth) Randomize(batchID uint64) (*Snapshot, error) {
	s.mu.RLock()
	empty := len(s.order) == 0
	s.mu.RUnlock()
	if empty {
		return nil, ErrGraphEmpty
	}
	if limit := MaxBatchID(s.cfg.BatchSize()); batchID > limit {
		return nil, fmt.Errorf("%w: batch id %d exceeds %d for batch size %d", ErrConfig, batchID, limit, s.cfg.BatchSize())
	}
	return newSnapshot(batchID, s.cfg.BatchSize(), s.Parameters(), s.cfg.Reproducible()), nil
}

// Evaluate renders batch batchID and returns the [batch, audio length] buffer.
func (s *Synth) Evaluate(batchID uint64) (*Signal, error) {
	out, _, err := s.Render(batchID)
	return out, err
}

// Render is Evaluate that also returns the parameter snapshot used.
func (s *Synth) Render(batchID uint64) (*Signal, *Snapshot, error) {
	snap, err := s.Randomize(batchID)
	if err != nil {
		return nil, nil, err
	}
	out, err := s.EvaluateSnapshot(snap)
	if err != nil {
		return nil, nil, err
	}
	return out, snap, nil
}

// EvaluateSnapshot renders with explicitly resolved parameter values.
func (s *Synth) EvaluateSnapshot(snap *Snapshot) (*Signal, error) {
	s.mu.RLock()
	nodes, patch, empty := s.nodes, s.patch, len(s.order) == 0
	s.mu.RUnlock()
	if empty {
		return nil, ErrGraphEmpty
	}
	if patch == nil {
		return nil, ErrNoPatch
	}
	if snap == nil {
		return nil, errors.New("synth: nil snapshot")
	}
	if snap.BatchSize() != s.cfg.BatchSize() {
		return nil, fmt.Errorf("%w: snapshot batch %d, want %d", ErrShape, snap.BatchSize(), s.cfg.BatchSize())
	}

	ev := &Eval{cfg: s.cfg, snap: snap, nodes: nodes}
	out, err := patch.Output(ev)
	if err != nil {
		return nil, err
	}
	if err := out.checkShape(s.cfg, Audio, "synth output"); err != nil {
		return nil, err
	}
	if s.cfg.Precision() == Float32 {
		out.quantize32()
	}
	return out, nil
}
