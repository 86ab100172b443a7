// Package parser reads the small line-oriented, SPICE-like netlist
// DSL used by this repository's tests and CLI. It produces a
// circuitdesc.Description; everything downstream (pkg/circuit.Build)
// works from that data shape alone, so a different or fuller parser
// could replace this one without touching the simulation core.
package parser

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/edp1096/pedalsim/pkg/circuitdesc"
)

// valueSuffix maps the engineering-notation suffixes this DSL
// supports to their multiplier. Deliberately small (no T/G/meg/f):
// guitar-pedal component values never need them.
var valueSuffix = map[byte]float64{
	'k': 1e3,
	'm': 1e-3,
	'u': 1e-6,
	'n': 1e-9,
	'p': 1e-12,
}

var valueRe = regexp.MustCompile(`^([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)([kmunp])?$`)

// ParseValue parses an engineering-notation literal like "4.7k",
// "100n" or "1e-9" into its float64 value.
func ParseValue(tok string) (float64, error) {
	m := valueRe.FindStringSubmatch(strings.TrimSpace(tok))
	if m == nil {
		return 0, fmt.Errorf("parser: invalid value %q", tok)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("parser: invalid value %q: %w", tok, err)
	}
	if m[2] != "" {
		v *= valueSuffix[m[2][0]]
	}
	return v, nil
}

// ParseError reports the source line a parse failure occurred on.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parser: line %d: %v", e.Line, e.Err)
}
func (e *ParseError) Unwrap() error { return e.Err }

// Parse reads a full netlist and returns the circuitdesc.Description
// pkg/circuit.Build consumes. It performs no circuit-level validation
// itself (no floating-node checks, no model-reference checks) — that
// is pkg/circuit's job; Parse only turns text into the Description
// shape.
func Parse(src string) (*circuitdesc.Description, error) {
	desc := &circuitdesc.Description{
		Models: make(map[string]circuitdesc.Model),
	}

	scanner := bufio.NewScanner(strings.NewReader(src))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "*") || strings.HasPrefix(line, "//") {
			continue
		}
		line = strings.TrimSuffix(line, ";")

		if err := parseLine(desc, line); err != nil {
			return nil, &ParseError{Line: lineNo, Err: err}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return desc, nil
}

func parseLine(desc *circuitdesc.Description, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	if strings.HasPrefix(fields[0], ".") {
		return parseDirective(desc, fields)
	}

	// LFO, DELAY and REVERB are keywords followed by the component
	// name as a separate token ("DELAY d1 in out 10m mix=1.0"),
	// unlike R/C/L/.../U where the leading letter of the name itself
	// is the type tag.
	switch strings.ToUpper(fields[0]) {
	case "LFO":
		return parseLFO(desc, fields)
	case "DELAY":
		return parseDelay(desc, fields)
	case "REVERB":
		return parseReverb(desc, fields)
	}

	switch fields[0][0] {
	case 'R', 'r':
		return parseResistor(desc, fields)
	case 'C', 'c':
		return parseTwoTerminalValue(desc, fields, circuitdesc.Capacitor)
	case 'L', 'l':
		return parseTwoTerminalValue(desc, fields, circuitdesc.Inductor)
	case 'V', 'v':
		return parseVoltageSource(desc, fields)
	case 'I', 'i':
		return parseCurrentSource(desc, fields)
	case 'D', 'd':
		return parseDiode(desc, fields)
	case 'Q', 'q':
		return parseBJT(desc, fields)
	case 'U', 'u':
		return parseOpAmp(desc, fields)
	case 'P', 'p':
		if strings.HasPrefix(strings.ToUpper(fields[0]), "POT") {
			return parsePotentiometer(desc, fields)
		}
	case 'S', 's':
		if strings.HasPrefix(strings.ToUpper(fields[0]), "SW") {
			return parseSwitch(desc, fields)
		}
	}

	return fmt.Errorf("unrecognized component %q", fields[0])
}

func parseDirective(desc *circuitdesc.Description, fields []string) error {
	switch strings.ToLower(fields[0]) {
	case ".input":
		if len(fields) < 2 {
			return fmt.Errorf(".input requires a node name")
		}
		desc.Input = fields[1]
	case ".output":
		if len(fields) < 2 {
			return fmt.Errorf(".output requires a node name")
		}
		desc.Output = fields[1]
	case ".model":
		return parseModel(desc, fields)
	default:
		return fmt.Errorf("unknown directive %q", fields[0])
	}
	return nil
}

// parseModel reads `.model <name> <KIND>(key=val key=val ...)`.
func parseModel(desc *circuitdesc.Description, fields []string) error {
	if len(fields) < 3 {
		return fmt.Errorf(".model requires a name and a kind")
	}
	name := fields[1]
	rest := strings.Join(fields[2:], " ")
	open := strings.Index(rest, "(")
	if open < 0 {
		return fmt.Errorf(".model %s: missing parameter list", name)
	}
	kindStr := strings.ToUpper(strings.TrimSpace(rest[:open]))
	close := strings.LastIndex(rest, ")")
	if close < open {
		return fmt.Errorf(".model %s: unterminated parameter list", name)
	}
	params, err := parseKeyValues(rest[open+1 : close])
	if err != nil {
		return fmt.Errorf(".model %s: %w", name, err)
	}

	var m circuitdesc.Model
	switch kindStr {
	case "D", "DIODE":
		m.Kind = circuitdesc.DiodeModel
		m.Is = params["is"]
		m.N = orDefault(params, "n", 1.0)
		m.Vf = params["vf"]
	case "NPN", "PNP", "BJT":
		m.Kind = circuitdesc.BJTModel
		m.Is = params["is"]
		m.N = orDefault(params, "n", 1.0)
		m.Bf = orDefault(params, "bf", 100)
		m.Br = orDefault(params, "br", 1)
		m.Va = params["va"]
	case "OPAMP", "OP":
		m.Kind = circuitdesc.OpAmpModel
		m.Gain = orDefault(params, "gain", 100000)
		m.Rin = orDefault(params, "rin", 1e6)
		m.Rout = params["rout"]
		m.Rail = params["rail"]
	default:
		return fmt.Errorf(".model %s: unknown kind %q", name, kindStr)
	}
	desc.Models[name] = m
	return nil
}

func orDefault(m map[string]float64, key string, def float64) float64 {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

// parseKeyValues parses a "key=value key=value" fragment where values
// are engineering-notation literals.
func parseKeyValues(fragment string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, tok := range strings.Fields(fragment) {
		tok = strings.TrimSuffix(tok, ",")
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed parameter %q", tok)
		}
		v, err := ParseValue(kv[1])
		if err != nil {
			return nil, err
		}
		out[strings.ToLower(kv[0])] = v
	}
	return out, nil
}

func parseLFO(desc *circuitdesc.Description, fields []string) error {
	if len(fields) < 4 {
		return fmt.Errorf("LFO requires name, rate and shape")
	}
	rate, err := ParseValue(fields[2])
	if err != nil {
		return fmt.Errorf("LFO rate: %w", err)
	}
	var shape circuitdesc.Shape
	switch strings.ToLower(fields[3]) {
	case "sine":
		shape = circuitdesc.Sine
	case "triangle":
		shape = circuitdesc.Triangle
	case "sawtooth":
		shape = circuitdesc.Sawtooth
	case "square":
		shape = circuitdesc.Square
	default:
		return fmt.Errorf("LFO: unknown shape %q", fields[3])
	}
	var phase float64
	if len(fields) > 4 {
		phase, err = ParseValue(fields[4])
		if err != nil {
			return fmt.Errorf("LFO phase: %w", err)
		}
	}
	desc.LFOs = append(desc.LFOs, circuitdesc.LFO{Name: fields[1], Rate: rate, Shape: shape, Phase: phase})
	return nil
}

func parseResistor(desc *circuitdesc.Description, fields []string) error {
	if len(fields) < 4 {
		return fmt.Errorf("%s: resistor requires p, n and value", fields[0])
	}
	value, err := ParseValue(fields[3])
	if err != nil {
		return fmt.Errorf("%s: %w", fields[0], err)
	}
	comp := circuitdesc.Component{Kind: circuitdesc.Resistor, Name: fields[0], Nodes: fields[1:3], Value: value}

	if idx := indexOfUpper(fields, "MOD"); idx >= 0 {
		if idx+2 >= len(fields) {
			return fmt.Errorf("%s: MOD requires an LFO name, depth and range", fields[0])
		}
		mod := &circuitdesc.Modulation{LFO: fields[idx+1]}
		kv, err := parseKeyValues(strings.Join(fields[idx+2:], " "))
		if err != nil {
			return fmt.Errorf("%s: %w", fields[0], err)
		}
		mod.Depth = kv["depth"]
		mod.Range = kv["range"]
		comp.Mod = mod
	}

	desc.Components = append(desc.Components, comp)
	return nil
}

func parseTwoTerminalValue(desc *circuitdesc.Description, fields []string, kind circuitdesc.Kind) error {
	if len(fields) < 4 {
		return fmt.Errorf("%s: requires p, n and value", fields[0])
	}
	value, err := ParseValue(fields[3])
	if err != nil {
		return fmt.Errorf("%s: %w", fields[0], err)
	}
	desc.Components = append(desc.Components, circuitdesc.Component{Kind: kind, Name: fields[0], Nodes: fields[1:3], Value: value})
	return nil
}

func parseVoltageSource(desc *circuitdesc.Description, fields []string) error {
	if len(fields) < 3 {
		return fmt.Errorf("%s: requires p and n", fields[0])
	}
	comp := circuitdesc.Component{Kind: circuitdesc.VoltageSource, Name: fields[0], Nodes: fields[1:3]}
	if len(fields) > 3 {
		switch strings.ToUpper(fields[3]) {
		case "AC":
			comp.Mode = circuitdesc.AC
		case "DC":
			comp.Mode = circuitdesc.DC
			if len(fields) > 4 {
				v, err := ParseValue(fields[4])
				if err != nil {
					return fmt.Errorf("%s: %w", fields[0], err)
				}
				comp.Value = v
			}
		default:
			v, err := ParseValue(fields[3])
			if err != nil {
				return fmt.Errorf("%s: %w", fields[0], err)
			}
			comp.Value = v
		}
	}
	desc.Components = append(desc.Components, comp)
	return nil
}

func parseCurrentSource(desc *circuitdesc.Description, fields []string) error {
	if len(fields) < 4 {
		return fmt.Errorf("%s: requires p, n and value", fields[0])
	}
	value, err := ParseValue(fields[3])
	if err != nil {
		return fmt.Errorf("%s: %w", fields[0], err)
	}
	desc.Components = append(desc.Components, circuitdesc.Component{Kind: circuitdesc.CurrentSource, Name: fields[0], Nodes: fields[1:3], Value: value})
	return nil
}

func parseDiode(desc *circuitdesc.Description, fields []string) error {
	if len(fields) < 4 {
		return fmt.Errorf("%s: requires anode, cathode and model", fields[0])
	}
	desc.Components = append(desc.Components, circuitdesc.Component{Kind: circuitdesc.Diode, Name: fields[0], Nodes: fields[1:3], Model: fields[3]})
	return nil
}

func parseBJT(desc *circuitdesc.Description, fields []string) error {
	if len(fields) < 6 {
		return fmt.Errorf("%s: requires c, b, e, model and polarity", fields[0])
	}
	polarity := strings.ToLower(fields[5])
	if polarity != "npn" && polarity != "pnp" {
		return fmt.Errorf("%s: polarity must be npn or pnp, got %q", fields[0], fields[5])
	}
	desc.Components = append(desc.Components, circuitdesc.Component{
		Kind: circuitdesc.BJT, Name: fields[0], Nodes: fields[1:4], Model: fields[4], Polarity: polarity,
	})
	return nil
}

func parseOpAmp(desc *circuitdesc.Description, fields []string) error {
	if len(fields) < 5 {
		return fmt.Errorf("%s: requires in+, in-, out and model", fields[0])
	}
	desc.Components = append(desc.Components, circuitdesc.Component{
		Kind: circuitdesc.OpAmp, Name: fields[0], Nodes: fields[1:4], Model: fields[4],
	})
	return nil
}

func parsePotentiometer(desc *circuitdesc.Description, fields []string) error {
	if len(fields) < 6 {
		return fmt.Errorf("%s: requires a, b, wiper, value and position", fields[0])
	}
	value, err := ParseValue(fields[4])
	if err != nil {
		return fmt.Errorf("%s: %w", fields[0], err)
	}
	position, err := ParseValue(fields[5])
	if err != nil {
		return fmt.Errorf("%s: %w", fields[0], err)
	}
	desc.Components = append(desc.Components, circuitdesc.Component{
		Kind: circuitdesc.Potentiometer, Name: fields[0], Nodes: fields[1:4], Value: value, Position: position,
	})
	return nil
}

func parseSwitch(desc *circuitdesc.Description, fields []string) error {
	if len(fields) < 4 {
		return fmt.Errorf("%s: requires p, n and state", fields[0])
	}
	closed := strings.EqualFold(fields[3], "closed") || fields[3] == "1"
	desc.Components = append(desc.Components, circuitdesc.Component{
		Kind: circuitdesc.Switch, Name: fields[0], Nodes: fields[1:3], Closed: closed,
	})
	return nil
}

// parseDelay reads "DELAY <name> <in> <out> <time> [mix=.. feedback=..]".
func parseDelay(desc *circuitdesc.Description, fields []string) error {
	if len(fields) < 5 {
		return fmt.Errorf("DELAY: requires name, in, out and time")
	}
	name, in, out := fields[1], fields[2], fields[3]
	time, err := ParseValue(fields[4])
	if err != nil {
		return fmt.Errorf("DELAY %s: %w", name, err)
	}
	kv, err := parseKeyValues(strings.Join(fields[5:], " "))
	if err != nil {
		return fmt.Errorf("DELAY %s: %w", name, err)
	}
	params := &circuitdesc.DelayParams{Time: time, Mix: orDefault(kv, "mix", 0.5), Feedback: kv["feedback"]}
	desc.Components = append(desc.Components, circuitdesc.Component{
		Kind: circuitdesc.DelayEffect, Name: name, Nodes: []string{in, out}, Delay: params,
	})
	return nil
}

// parseReverb reads "REVERB <name> <in> <out> [size=.. damping=.. decay=.. mix=.. predelay=..]".
func parseReverb(desc *circuitdesc.Description, fields []string) error {
	if len(fields) < 4 {
		return fmt.Errorf("REVERB: requires name, in and out")
	}
	name, in, out := fields[1], fields[2], fields[3]
	kv, err := parseKeyValues(strings.Join(fields[4:], " "))
	if err != nil {
		return fmt.Errorf("REVERB %s: %w", name, err)
	}
	params := &circuitdesc.ReverbParams{
		Size:     orDefault(kv, "size", 1.0),
		Damping:  orDefault(kv, "damping", 0.5),
		Decay:    orDefault(kv, "decay", 0.5),
		Mix:      orDefault(kv, "mix", 0.5),
		PreDelay: kv["predelay"],
	}
	desc.Components = append(desc.Components, circuitdesc.Component{
		Kind: circuitdesc.ReverbEffect, Name: name, Nodes: []string{in, out}, Reverb: params,
	})
	return nil
}

func indexOfUpper(fields []string, tok string) int {
	for i, f := range fields {
		if strings.EqualFold(f, tok) {
			return i
		}
	}
	return -1
}
