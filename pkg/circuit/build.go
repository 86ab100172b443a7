package circuit

import (
	"fmt"

	"github.com/edp1096/pedalsim/pkg/circuitdesc"
)

// Circuit is the closed-set numerical model produced by Build. The
// engine package stamps and steps it; Circuit itself has no
// behavior beyond what Build computed once.
type Circuit struct {
	NumNodes    int
	NumBranches int

	Resistors      []Resistor
	Capacitors     []Capacitor
	Inductors      []Inductor
	VoltageSources []VoltageSource
	CurrentSources []CurrentSource
	Diodes         []Diode
	BJTs           []BJT
	OpAmps         []OpAmp
	Potentiometers []Potentiometer
	Switches       []Switch
	Delays         []InCircuitDelay
	Reverbs        []InCircuitReverb

	Models []ModelDef
	LFOs   []circuitdesc.LFO

	NodeNames map[string]int // name -> 1-based node id, ground excluded

	InputNode   int
	OutputNode  int
	VInIndex    int // index into VoltageSources
}

// Dim is the dimension of the MNA system: node voltages plus branch
// currents.
func (c *Circuit) Dim() int { return c.NumNodes + c.NumBranches }

// Build turns a validated circuitdesc.Description into a Circuit,
// enforcing the structural invariants (designated input/output, a
// V_IN source at the input, no floating nodes, resolvable models,
// positive element values). Any failure is a BuildError; once Build
// succeeds, the returned Circuit can never itself misbehave in a way
// that rejects a future sample.
func Build(desc *circuitdesc.Description) (*Circuit, error) {
	if desc.Input == "" || desc.Output == "" {
		return nil, ErrMissingInputOrOutput()
	}

	c := &Circuit{NodeNames: make(map[string]int)}

	modelIndex, err := resolveModels(desc, c)
	if err != nil {
		return nil, err
	}

	lfoIndex := make(map[string]int, len(desc.LFOs))
	for i, l := range desc.LFOs {
		lfoIndex[l.Name] = i
	}
	c.LFOs = desc.LFOs

	nextNode := 1
	nodeID := func(name string) int {
		if isGround(name) {
			return 0
		}
		if id, ok := c.NodeNames[name]; ok {
			return id
		}
		id := nextNode
		c.NodeNames[name] = id
		nextNode++
		return id
	}

	// First pass: assign node ids in component declaration order so
	// ordering is stable and deterministic build-to-build.
	for _, comp := range desc.Components {
		for _, n := range comp.Nodes {
			nodeID(n)
		}
	}
	c.NumNodes = nextNode - 1

	if !isGround(desc.Input) {
		id, ok := c.NodeNames[desc.Input]
		if !ok {
			return nil, &ErrUnknownNode{Component: ".input", Node: desc.Input}
		}
		c.InputNode = id
	}
	if !isGround(desc.Output) {
		id, ok := c.NodeNames[desc.Output]
		if !ok {
			return nil, &ErrUnknownNode{Component: ".output", Node: desc.Output}
		}
		c.OutputNode = id
	}

	// Second pass: assign dense, contiguous branch ids to every
	// voltage-defining element, in the same declaration order.
	nextBranch := c.NumNodes + 1
	branchOf := make(map[string]int)
	for _, comp := range desc.Components {
		switch comp.Kind {
		case circuitdesc.VoltageSource, circuitdesc.Inductor, circuitdesc.OpAmp,
			circuitdesc.DelayEffect, circuitdesc.ReverbEffect:
			branchOf[comp.Name] = nextBranch
			nextBranch++
		}
	}
	c.NumBranches = nextBranch - (c.NumNodes + 1)

	vInFound := false
	for _, comp := range desc.Components {
		nodes := make([]int, len(comp.Nodes))
		for i, n := range comp.Nodes {
			nodes[i] = nodeID(n)
		}

		switch comp.Kind {
		case circuitdesc.Resistor:
			if comp.Value <= 0 {
				return nil, &ErrInvalidValue{Name: comp.Name, Value: comp.Value}
			}
			r := Resistor{Name: comp.Name, P: nodes[0], N: nodes[1], RBase: comp.Value, REff: comp.Value}
			if comp.Mod != nil {
				idx, ok := lfoIndex[comp.Mod.LFO]
				if !ok {
					return nil, &ErrUnknownLFO{Component: comp.Name, LFO: comp.Mod.LFO}
				}
				r.Mod = &ResistorMod{LFOIndex: idx, Depth: comp.Mod.Depth, Range: comp.Mod.Range}
			}
			c.Resistors = append(c.Resistors, r)

		case circuitdesc.Capacitor:
			if comp.Value <= 0 {
				return nil, &ErrInvalidValue{Name: comp.Name, Value: comp.Value}
			}
			c.Capacitors = append(c.Capacitors, Capacitor{Name: comp.Name, P: nodes[0], N: nodes[1], C: comp.Value})

		case circuitdesc.Inductor:
			if comp.Value <= 0 {
				return nil, &ErrInvalidValue{Name: comp.Name, Value: comp.Value}
			}
			c.Inductors = append(c.Inductors, Inductor{Name: comp.Name, P: nodes[0], N: nodes[1], L: comp.Value, Branch: branchOf[comp.Name]})

		case circuitdesc.VoltageSource:
			vs := VoltageSource{Name: comp.Name, P: nodes[0], N: nodes[1], Branch: branchOf[comp.Name], Mode: comp.Mode, Value: comp.Value}
			c.VoltageSources = append(c.VoltageSources, vs)
			if comp.Name == "V_IN" {
				if nodes[0] != c.InputNode && nodes[1] != c.InputNode {
					return nil, ErrMissingVIn()
				}
				vInFound = true
				c.VInIndex = len(c.VoltageSources) - 1
			}

		case circuitdesc.CurrentSource:
			c.CurrentSources = append(c.CurrentSources, CurrentSource{Name: comp.Name, P: nodes[0], N: nodes[1], I: comp.Value})

		case circuitdesc.Diode:
			idx, ok := modelIndex[comp.Model]
			if !ok {
				return nil, &ErrUnknownModel{Name: comp.Model}
			}
			c.Diodes = append(c.Diodes, Diode{Name: comp.Name, Anode: nodes[0], Cat: nodes[1], Model: idx})

		case circuitdesc.BJT:
			idx, ok := modelIndex[comp.Model]
			if !ok {
				return nil, &ErrUnknownModel{Name: comp.Model}
			}
			c.BJTs = append(c.BJTs, BJT{Name: comp.Name, C: nodes[0], B: nodes[1], E: nodes[2], Model: idx, PNP: comp.Polarity == "pnp"})

		case circuitdesc.OpAmp:
			idx, ok := modelIndex[comp.Model]
			if !ok {
				return nil, &ErrUnknownModel{Name: comp.Model}
			}
			c.OpAmps = append(c.OpAmps, OpAmp{Name: comp.Name, InP: nodes[0], InN: nodes[1], Out: nodes[2], Branch: branchOf[comp.Name], Model: idx})

		case circuitdesc.Potentiometer:
			if comp.Value <= 0 {
				return nil, &ErrInvalidValue{Name: comp.Name, Value: comp.Value}
			}
			c.Potentiometers = append(c.Potentiometers, Potentiometer{Name: comp.Name, A: nodes[0], B: nodes[1], Wiper: nodes[2], RTotal: comp.Value, Position: comp.Position})

		case circuitdesc.Switch:
			c.Switches = append(c.Switches, Switch{Name: comp.Name, P: nodes[0], N: nodes[1], Closed: comp.Closed})

		case circuitdesc.DelayEffect:
			c.Delays = append(c.Delays, InCircuitDelay{Name: comp.Name, In: nodes[0], Out: nodes[1], Branch: branchOf[comp.Name], Params: *comp.Delay})

		case circuitdesc.ReverbEffect:
			c.Reverbs = append(c.Reverbs, InCircuitReverb{Name: comp.Name, In: nodes[0], Out: nodes[1], Branch: branchOf[comp.Name], Params: *comp.Reverb})

		default:
			return nil, &ErrInvalidParameter{Name: comp.Name, Reason: fmt.Sprintf("unknown component kind %v", comp.Kind)}
		}
	}

	if !vInFound {
		return nil, ErrMissingVIn()
	}

	if err := validateConnectivity(c); err != nil {
		return nil, err
	}

	return c, nil
}

func isGround(name string) bool {
	return name == "0" || name == "GND"
}

func resolveModels(desc *circuitdesc.Description, c *Circuit) (map[string]int, error) {
	modelIndex := make(map[string]int, len(desc.Models))
	names := make([]string, 0, len(desc.Models))
	for name := range desc.Models {
		names = append(names, name)
	}
	// Deterministic ordering: models are assigned indices in
	// ascending name order rather than Go's randomized map iteration,
	// so two builds from the same Description always agree.
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}
	for _, name := range names {
		m := desc.Models[name]
		modelIndex[name] = len(c.Models)
		c.Models = append(c.Models, m)
	}
	return modelIndex, nil
}
