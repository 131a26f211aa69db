package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObject_MarshalJSON_SortedKeys(t *testing.T) {
	obj := NewObject(O("zeta", Int(1)), O("alpha", String("a")), O("mid", Bool(true)))

	data, err := obj.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"a","mid":true,"zeta":1}`, string(data))
}

func TestObject_MarshalJSON_NoHTMLEscaping(t *testing.T) {
	obj := Object{"<k&>": String("<b>&</b>")}

	data, err := obj.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"<k&>":"<b>&</b>"}`, string(data))
}

func TestMarshalValue_AllKinds(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"nil", nil, "null"},
		{"null", Null{}, "null"},
		{"string", String("hi"), `"hi"`},
		{"int", Int(-3), "-3"},
		{"float", Float(1.5), "1.5"},
		{"bool", Bool(false), "false"},
		{"array", Array{Int(1), String("x")}, `[1,"x"]`},
		{"nested", NewObject(O("a", Array{NewObject(O("b", Null{}))})), `{"a":[{"b":null}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalValue(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestUnmarshalValue_NumbersKeepIntegerness(t *testing.T) {
	v, err := UnmarshalValue([]byte(`{"count":3,"price":9.5,"big":1e3,"items":[true,null]}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, Int(3), obj["count"])
	assert.Equal(t, Float(9.5), obj["price"])
	assert.Equal(t, Float(1000), obj["big"])
	assert.Equal(t, Array{Bool(true), Null{}}, obj["items"])
}

func TestObject_UnmarshalJSON_RejectsNonObject(t *testing.T) {
	var obj Object
	err := obj.UnmarshalJSON([]byte(`[1,2]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected JSON object")
}

func TestFromAny_YAMLShapes(t *testing.T) {
	v, err := FromAny(map[string]any{
		"n":     2,
		"f":     float64(4),
		"ratio": 0.25,
		"tags":  []any{"a", nil},
		"inner": map[any]any{"k": true},
	})
	require.NoError(t, err)

	obj := v.(Object)
	assert.Equal(t, Int(2), obj["n"])
	assert.Equal(t, Int(4), obj["f"], "integral floats collapse to Int")
	assert.Equal(t, Float(0.25), obj["ratio"])
	assert.Equal(t, Array{String("a"), Null{}}, obj["tags"])
	assert.Equal(t, Object{"k": Bool(true)}, obj["inner"])
}

func TestFromAny_Unsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	assert.Error(t, err)
}

func TestToAny_RoundTrip(t *testing.T) {
	original := NewObject(O("a", Int(1)), O("b", Array{Float(0.5), Null{}}), O("c", String("x")))

	back, err := FromAny(ToAny(original))
	require.NoError(t, err)
	assert.Equal(t, original, back)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, "null", KindOf(nil))
	assert.Equal(t, "string", KindOf(String("")))
	assert.Equal(t, "number", KindOf(Int(1)))
	assert.Equal(t, "number", KindOf(Float(1)))
	assert.Equal(t, "object", KindOf(Object{}))
}

func TestObject_Clone(t *testing.T) {
	obj := NewObject(O("a", Int(1)))
	clone := obj.Clone()
	clone["a"] = Int(2)

	assert.Equal(t, Int(1), obj["a"])
	assert.Nil(t, Object(nil).Clone())
}
