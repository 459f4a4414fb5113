package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_KeepsFieldOrder(t *testing.T) {
	input := `{"resourceType":"Patient","id":"p1","name":[{"family":"Smith"}],"gender":"female","active":true,"multipleBirthInteger":2}`

	n, err := Parse([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"resourceType", "id", "name", "gender", "active", "multipleBirthInteger"}, n.Keys())

	out, err := n.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, input, string(out))
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestMarshalJSON_DoesNotEscapeHTML(t *testing.T) {
	n := NewObject()
	n.Set("div", NewString(`<div xmlns="http://www.w3.org/1999/xhtml">a &amp; b</div>`))

	out, err := n.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"div":"<div xmlns=\"http://www.w3.org/1999/xhtml\">a &amp; b</div>"}`, string(out))
}

func TestNode_SetDeleteReplace(t *testing.T) {
	n, err := Parse([]byte(`{"a":1,"b":2,"c":3}`))
	require.NoError(t, err)

	n.Set("d", NewString("x"))
	n.Set("a", NewString("y"))
	assert.Equal(t, []string{"a", "b", "c", "d"}, n.Keys())
	assert.Equal(t, "y", n.StringField("a"))

	assert.True(t, n.Delete("b"))
	assert.False(t, n.Delete("b"))
	assert.Equal(t, []string{"a", "c", "d"}, n.Keys())

	n.Replace("c", "e", NewString("z"))
	assert.Equal(t, []string{"a", "e", "d"}, n.Keys())
	assert.False(t, n.Has("c"))
	assert.Equal(t, "z", n.StringField("e"))

	n.Replace("missing", "f", NewString("w"))
	assert.Equal(t, []string{"a", "e", "d", "f"}, n.Keys())
}

func TestNode_CloneIsDeep(t *testing.T) {
	n, err := Parse([]byte(`{"coding":[{"code":"a"}]}`))
	require.NoError(t, err)

	c := n.Clone()
	c.Get("coding").Items[0].Set("code", NewString("b"))

	assert.Equal(t, "a", n.Get("coding").Items[0].StringField("code"))
	assert.Equal(t, "b", c.Get("coding").Items[0].StringField("code"))
}

func TestNode_NilSafe(t *testing.T) {
	var n *Node
	assert.Nil(t, n.Get("x"))
	assert.False(t, n.Has("x"))
	assert.Nil(t, n.Keys())
	assert.Equal(t, "", n.StringField("x"))
	_, ok := n.Text()
	assert.False(t, ok)
}
