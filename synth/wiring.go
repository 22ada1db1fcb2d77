package synth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnconnected is returned when a wired module input has no single source.
var ErrUnconnected = errors.New("input not connected")

// Connection feeds the output port From into the input port To. Both are
// written "module.port".
type Connection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Wiring is a declarative topology: a set of connections and the audio-rate
// port that becomes the synth output.
type Wiring struct {
	Connections []Connection `json:"connections"`
	Output      string       `json:"output"`
}

// ParseWiring decodes a JSON wiring.
func ParseWiring(raw []byte) (Wiring, error) {
	var w Wiring
	if err := json.Unmarshal(raw, &w); err != nil {
		return Wiring{}, fmt.Errorf("invalid wiring json: %w", err)
	}
	return w, nil
}

type endpoint struct {
	module string
	port   string
}

func (ep endpoint) String() string { return ep.module + "." + ep.port }

func parseEndpoint(s string) (endpoint, error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return endpoint{}, fmt.Errorf("%w: malformed endpoint %q (want module.port)", ErrUnknownPort, s)
	}
	return endpoint{module: s[:i], port: s[i+1:]}, nil
}

// source locates one module output by module name and output index.
type source struct {
	module string
	index  int
}

type compiledWiring struct {
	order  []string
	inputs map[string][]source
	output source
}

// Compile checks w against the registered modules and returns a Patch that
// runs them in topological order.
//
// Every module named by w must be registered and every port declared. Each
// input of a wired module needs exactly one source, with the same rate as
// the input: a control-rate output feeding an audio-rate input fails with
// ErrRate and needs an upsampler module in between. Cycles fail with ErrCycle.
func (s *Synth) Compile(w Wiring) (Patch, error) {
	s.mu.RLock()
	nodes, order := s.nodes, s.order
	s.mu.RUnlock()

	out, err := parseEndpoint(w.Output)
	if err != nil {
		return nil, err
	}

	used := map[string]bool{}
	lookup := func(ep endpoint, output bool) (*node, int, error) {
		n, ok := nodes[ep.module]
		if !ok {
			return nil, 0, fmt.Errorf("%w: %s", ErrUnknownModule, ep.module)
		}
		ports := n.in
		if output {
			ports = n.out
		}
		for i, p := range ports {
			if p.Name == ep.port {
				used[ep.module] = true
				return n, i, nil
			}
		}
		kind := "input"
		if output {
			kind = "output"
		}
		return nil, 0, fmt.Errorf("%w: module %q has no %s %q", ErrUnknownPort, ep.module, kind, ep.port)
	}

	outNode, outIdx, err := lookup(out, true)
	if err != nil {
		return nil, err
	}
	if r := outNode.out[outIdx].Rate; r != Audio {
		return nil, fmt.Errorf("%w: output %s is %s rate, want audio", ErrRate, out, r)
	}

	inputs := map[string][]source{}
	wired := map[string][]bool{}
	deps := map[string]map[string]bool{}
	for _, c := range w.Connections {
		from, err := parseEndpoint(c.From)
		if err != nil {
			return nil, err
		}
		to, err := parseEndpoint(c.To)
		if err != nil {
			return nil, err
		}
		src, si, err := lookup(from, true)
		if err != nil {
			return nil, err
		}
		dst, di, err := lookup(to, false)
		if err != nil {
			return nil, err
		}
		if sr, dr := src.out[si].Rate, dst.in[di].Rate; sr != dr {
			return nil, fmt.Errorf("%w: %s (%s) feeds %s (%s)", ErrRate, from, sr, to, dr)
		}
		if inputs[to.module] == nil {
			inputs[to.module] = make([]source, len(dst.in))
			wired[to.module] = make([]bool, len(dst.in))
		}
		if wired[to.module][di] {
			return nil, fmt.Errorf("%w: %s connected twice", ErrUnconnected, to)
		}
		wired[to.module][di] = true
		inputs[to.module][di] = source{module: from.module, index: si}
		if deps[to.module] == nil {
			deps[to.module] = map[string]bool{}
		}
		deps[to.module][from.module] = true
	}

	for name := range used {
		n := nodes[name]
		for i, p := range n.in {
			if wired[name] == nil || !wired[name][i] {
				return nil, fmt.Errorf("%w: %s.%s", ErrUnconnected, name, p.Name)
			}
		}
	}

	// Kahn's algorithm, seeded in registration order so the schedule is stable.
	indegree := map[string]int{}
	dependents := map[string][]string{}
	for _, name := range order {
		if !used[name] {
			continue
		}
		indegree[name] = len(deps[name])
		for dep := range deps[name] {
			dependents[dep] = append(dependents[dep], name)
		}
	}
	rank := make(map[string]int, len(order))
	for i, name := range order {
		rank[name] = i
	}
	var queue []string
	for _, name := range order {
		if used[name] && indegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	sched := make([]string, 0, len(indegree))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		sched = append(sched, name)
		next := dependents[name]
		sortByRank(next, rank)
		for _, d := range next {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}
	if len(sched) != len(indegree) {
		return nil, ErrCycle
	}

	return &compiledWiring{
		order:  sched,
		inputs: inputs,
		output: source{module: out.module, index: outIdx},
	}, nil
}

func sortByRank(names []string, rank map[string]int) {
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && rank[names[j]] < rank[names[j-1]]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
}

// Output runs the scheduled modules and returns the wired output port.
func (c *compiledWiring) Output(ev *Eval) (*Signal, error) {
	results := make(map[string][]*Signal, len(c.order))
	for _, name := range c.order {
		srcs := c.inputs[name]
		in := make([]*Signal, len(srcs))
		for i, src := range srcs {
			in[i] = results[src.module][src.index]
		}
		out, err := ev.Call(name, in...)
		if err != nil {
			return nil, err
		}
		results[name] = out
	}
	return results[c.output.module][c.output.index], nil
}
