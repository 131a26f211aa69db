package config

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// PatternSeparator joins pattern fragments into one alternation.
const PatternSeparator = "|"

// Pattern is a filter pattern given either as one source string or as an
// ordered list of fragments. A nil Pattern is absent; a non-nil empty
// Pattern is present but yields an empty source.
type Pattern []string

// Scalar returns a Pattern holding a single source string.
func Scalar(source string) Pattern {
	return Pattern{source}
}

// Fragments returns a Pattern of fragments. The result is never nil, so an
// empty call still counts as present.
func Fragments(parts ...string) Pattern {
	if parts == nil {
		return Pattern{}
	}
	return Pattern(parts)
}

// Present reports whether the pattern was supplied at all.
func (p Pattern) Present() bool {
	return p != nil
}

// Source joins the fragments with PatternSeparator.
func (p Pattern) Source() string {
	return strings.Join(p, PatternSeparator)
}

// Or returns p when present, else alt.
func (p Pattern) Or(alt Pattern) Pattern {
	if p.Present() {
		return p
	}
	return alt
}

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (p *Pattern) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*p = Pattern{node.Value}
		return nil
	case yaml.SequenceNode:
		var parts []string
		if err := node.Decode(&parts); err != nil {
			return err
		}
		*p = Fragments(parts...)
		return nil
	default:
		return fmt.Errorf("line %d: pattern must be a string or a list of strings", node.Line)
	}
}

// MarshalYAML writes a single-fragment pattern as a scalar.
func (p Pattern) MarshalYAML() (any, error) {
	if len(p) == 1 {
		return p[0], nil
	}
	return []string(p), nil
}

// UnmarshalJSON accepts a string or an array of strings.
func (p *Pattern) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = Pattern{s}
		return nil
	}
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("pattern must be a string or an array of strings: %w", err)
	}
	*p = Fragments(parts...)
	return nil
}

// MarshalJSON writes a single-fragment pattern as a string.
func (p Pattern) MarshalJSON() ([]byte, error) {
	if len(p) == 1 {
		return json.MarshalNoEscape(p[0])
	}
	return json.MarshalNoEscape([]string(p))
}
