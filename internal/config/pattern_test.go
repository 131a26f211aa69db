package config

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPattern_Source(t *testing.T) {
	tests := []struct {
		name    string
		pattern Pattern
		present bool
		source  string
	}{
		{"absent", nil, false, ""},
		{"scalar", Scalar("FOO"), true, "FOO"},
		{"fragments", Fragments("A", "B"), true, "A|B"},
		{"empty list", Fragments(), true, ""},
		{"scalar keeps separators", Scalar("A|B|^C$"), true, "A|B|^C$"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.present, tt.pattern.Present())
			assert.Equal(t, tt.source, tt.pattern.Source())
		})
	}
}

func TestPattern_Or(t *testing.T) {
	assert.Equal(t, Scalar("Y"), Scalar("Y").Or(Scalar("X")))
	assert.Equal(t, Scalar("X"), Pattern(nil).Or(Scalar("X")))
	assert.Equal(t, Fragments(), Fragments().Or(Scalar("X")), "a present empty list still wins")
}

func TestPattern_YAML(t *testing.T) {
	var doc struct {
		A Pattern `yaml:"a"`
		B Pattern `yaml:"b"`
		C Pattern `yaml:"c"`
		D Pattern `yaml:"d"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: FOO\nb: [A, B]\nc: []\n"), &doc))
	assert.Equal(t, Scalar("FOO"), doc.A)
	assert.Equal(t, "A|B", doc.B.Source())
	assert.True(t, doc.C.Present())
	assert.False(t, doc.D.Present())

	err := yaml.Unmarshal([]byte("a: {x: 1}\n"), &doc)
	assert.Error(t, err)
}

func TestPattern_JSON(t *testing.T) {
	var p Pattern
	require.NoError(t, json.Unmarshal([]byte(`"FOO"`), &p))
	assert.Equal(t, Scalar("FOO"), p)

	require.NoError(t, json.Unmarshal([]byte(`["A","B"]`), &p))
	assert.Equal(t, "A|B", p.Source())

	require.NoError(t, json.Unmarshal([]byte(`null`), &p))
	assert.False(t, p.Present())

	assert.Error(t, json.Unmarshal([]byte(`42`), &p))

	out, err := json.Marshal(Scalar("FOO"))
	require.NoError(t, err)
	assert.Equal(t, `"FOO"`, string(out))

	out, err = json.Marshal(Fragments("A", "B"))
	require.NoError(t, err)
	assert.Equal(t, `["A","B"]`, string(out))
}
