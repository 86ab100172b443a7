package circuit_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/pedalsim/pkg/circuit"
	"github.com/edp1096/pedalsim/pkg/circuitdesc"
)

func voltageDivider() *circuitdesc.Description {
	return &circuitdesc.Description{
		Input:  "in",
		Output: "out",
		Models: map[string]circuitdesc.Model{},
		Components: []circuitdesc.Component{
			{Kind: circuitdesc.VoltageSource, Name: "V_IN", Nodes: []string{"in", "0"}, Mode: circuitdesc.AC},
			{Kind: circuitdesc.Resistor, Name: "R1", Nodes: []string{"in", "out"}, Value: 10000},
			{Kind: circuitdesc.Resistor, Name: "R2", Nodes: []string{"out", "0"}, Value: 10000},
		},
	}
}

func TestBuildVoltageDividerAssignsStableIDs(t *testing.T) {
	c, err := circuit.Build(voltageDivider())
	require.NoError(t, err)

	assert.Equal(t, 2, c.NumNodes) // in, out
	assert.Equal(t, 1, c.NumBranches) // V_IN
	assert.Equal(t, c.NodeNames["in"], c.InputNode)
	assert.Equal(t, c.NodeNames["out"], c.OutputNode)
	assert.Equal(t, 0, c.VInIndex)
	assert.Len(t, c.Resistors, 2)
}

func TestBuildRejectsMissingIO(t *testing.T) {
	desc := voltageDivider()
	desc.Input = ""
	_, err := circuit.Build(desc)
	require.Error(t, err)
	var be circuit.BuildError
	assert.True(t, errors.As(err, &be))
}

func TestBuildRejectsMissingVIn(t *testing.T) {
	desc := voltageDivider()
	desc.Components[0].Name = "V1"
	_, err := circuit.Build(desc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "V_IN")
}

func TestBuildRejectsFloatingNode(t *testing.T) {
	desc := voltageDivider()
	desc.Components = append(desc.Components, circuitdesc.Component{
		Kind: circuitdesc.Resistor, Name: "R3", Nodes: []string{"floating1", "floating2"}, Value: 1000,
	})
	_, err := circuit.Build(desc)
	require.Error(t, err)
	var fn *circuit.ErrFloatingNode
	require.True(t, errors.As(err, &fn))
	assert.Contains(t, []string{"floating1", "floating2"}, fn.Node)
}

func TestBuildRejectsNonPositiveValue(t *testing.T) {
	desc := voltageDivider()
	desc.Components[1].Value = -1
	_, err := circuit.Build(desc)
	require.Error(t, err)
	var iv *circuit.ErrInvalidValue
	require.True(t, errors.As(err, &iv))
}

func TestBuildRejectsUnknownModel(t *testing.T) {
	desc := voltageDivider()
	desc.Components = append(desc.Components, circuitdesc.Component{
		Kind: circuitdesc.Diode, Name: "D1", Nodes: []string{"out", "0"}, Model: "missing",
	})
	_, err := circuit.Build(desc)
	require.Error(t, err)
	var um *circuit.ErrUnknownModel
	require.True(t, errors.As(err, &um))
	assert.Equal(t, "missing", um.Name)
}

func TestBuildResolvesModelsDeterministically(t *testing.T) {
	desc := voltageDivider()
	desc.Models["zzz"] = circuitdesc.Model{Kind: circuitdesc.DiodeModel, Is: 1e-9, N: 1.8}
	desc.Models["aaa"] = circuitdesc.Model{Kind: circuitdesc.DiodeModel, Is: 2e-9, N: 1.5}
	desc.Components = append(desc.Components,
		circuitdesc.Component{Kind: circuitdesc.Diode, Name: "D1", Nodes: []string{"out", "0"}, Model: "zzz"},
		circuitdesc.Component{Kind: circuitdesc.Diode, Name: "D2", Nodes: []string{"0", "out"}, Model: "aaa"},
	)

	c1, err := circuit.Build(desc)
	require.NoError(t, err)
	c2, err := circuit.Build(desc)
	require.NoError(t, err)

	// Models are assigned indices in ascending name order regardless of
	// map iteration order, so repeated builds agree and "aaa" sorts
	// before "zzz".
	assert.Equal(t, c1.Diodes[0].Model, c2.Diodes[0].Model)
	assert.Equal(t, c1.Diodes[1].Model, c2.Diodes[1].Model)
	aaaIdx := c1.Diodes[1].Model // D2 references "aaa"
	zzzIdx := c1.Diodes[0].Model // D1 references "zzz"
	assert.Less(t, aaaIdx, zzzIdx)
}
