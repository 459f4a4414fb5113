package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(nodes []*Node) []string {
	var out []string
	for _, n := range nodes {
		s, _ := n.Text()
		out = append(out, s)
	}
	return out
}

func TestNewRecord(t *testing.T) {
	r, err := NewRecord([]byte(`{"resourceType":"Patient","id":"1"}`))
	require.NoError(t, err)
	assert.Equal(t, "Patient", r.ResourceType())
	assert.Equal(t, "1", r.ID())
	assert.False(t, r.IsOutcome())

	_, err = NewRecord([]byte(`{"id":"1"}`))
	assert.Error(t, err)

	_, err = NewRecord([]byte(`["Patient"]`))
	assert.Error(t, err)

	outcome, err := NewRecord([]byte(`{"resourceType":"OperationOutcome","issue":[]}`))
	require.NoError(t, err)
	assert.True(t, outcome.IsOutcome())
}

func TestRecord_ResolveFlattensArrays(t *testing.T) {
	r, err := NewRecord([]byte(`{
		"resourceType": "Patient",
		"name": [
			{"family": "Smith", "given": ["Anna", "Maria"]},
			{"family": "Jansen", "given": ["Ans"]}
		]
	}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"Anna", "Maria", "Ans"}, texts(r.Resolve("name.given")))
	assert.Equal(t, []string{"Smith", "Jansen"}, texts(r.Resolve("Patient.name.family")))
	assert.Nil(t, r.Resolve("name.prefix"))
	assert.Nil(t, r.Resolve("address.city"))
}

func TestRecord_ResolveChoiceType(t *testing.T) {
	r, err := NewRecord([]byte(`{
		"resourceType": "Observation",
		"effectivePeriod": {"start": "2020-01-01"},
		"effectiveness": "not a choice variant",
		"valueQuantity": {"value": 5}
	}`))
	require.NoError(t, err)

	nodes := r.Resolve("effective[x]")
	require.Len(t, nodes, 1)
	assert.Equal(t, "2020-01-01", nodes[0].StringField("start"))

	values := r.Resolve("value[x].value")
	require.Len(t, values, 1)
	assert.Equal(t, Number, values[0].Kind)
}

func TestRecord_ResolveSkipsNull(t *testing.T) {
	r, err := NewRecord([]byte(`{"resourceType":"Patient","gender":null}`))
	require.NoError(t, err)
	assert.Nil(t, r.Resolve("gender"))
}

func TestRecord_PreserveKeepsFirstCopy(t *testing.T) {
	r, err := NewRecord([]byte(`{"resourceType":"MedicationRequest","medicationReference":{"reference":"Medication/9"}}`))
	require.NoError(t, err)
	assert.Nil(t, r.ResolveOriginal("medicationReference"))

	r.Preserve()
	r.Root.Replace("medicationReference", "medicationCodeableConcept", NewString("changed"))
	r.Preserve()

	assert.Empty(t, r.Resolve("medicationReference"))
	assert.Equal(t, []string{"Medication/9"}, texts(r.ResolveOriginal("medicationReference.reference")))
	assert.Empty(t, r.ResolveOriginal("medicationCodeableConcept"))
}
