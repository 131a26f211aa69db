package protocol

import (
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/roach88/storebridge/internal/ir"
)

// ReplacerFunc transforms one member during serialization (replacer) or
// parsing (reviver). key is the member name, the array index, or "" for the
// root. Returning nil drops the member from its object; inside an array it
// becomes null.
type ReplacerFunc func(key string, value ir.Value) ir.Value

// Serializer turns payload trees into the strings that cross the boundary.
// The zero value and a nil *Serializer encode plain JSON.
type Serializer struct {
	Replacer ReplacerFunc
	Reviver  ReplacerFunc
}

// Marshal serializes v. Without a Replacer this is a single encode; with
// one the tree is walked top-down, root first, the way JSON.stringify
// applies a replacer.
func (s *Serializer) Marshal(v any) (string, error) {
	if s == nil || s.Replacer == nil {
		if val, ok := v.(ir.Value); ok {
			b, err := ir.MarshalValue(val)
			if err != nil {
				return "", fmt.Errorf("serialize: %w", err)
			}
			return string(b), nil
		}
		b, err := json.MarshalNoEscape(v)
		if err != nil {
			return "", fmt.Errorf("serialize: %w", err)
		}
		return string(b), nil
	}

	tree, err := toValue(v)
	if err != nil {
		return "", err
	}
	b, err := ir.MarshalValue(replace(s.Replacer, "", tree))
	if err != nil {
		return "", fmt.Errorf("serialize: %w", err)
	}
	return string(b), nil
}

// Unmarshal parses data. With a Reviver the tree is walked bottom-up,
// children before their holder, the way JSON.parse applies a reviver.
func (s *Serializer) Unmarshal(data string) (ir.Value, error) {
	v, err := ir.UnmarshalValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("deserialize: %w", err)
	}
	if s == nil || s.Reviver == nil {
		return v, nil
	}
	revived := revive(s.Reviver, "", v)
	if revived == nil {
		return ir.Null{}, nil
	}
	return revived, nil
}

func toValue(v any) (ir.Value, error) {
	if val, ok := v.(ir.Value); ok {
		return val, nil
	}
	b, err := json.MarshalNoEscape(v)
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	val, err := ir.UnmarshalValue(b)
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	return val, nil
}

func replace(fn ReplacerFunc, key string, v ir.Value) ir.Value {
	v = fn(key, v)
	switch val := v.(type) {
	case ir.Object:
		out := make(ir.Object, len(val))
		for _, k := range val.SortedKeys() {
			if child := replace(fn, k, val[k]); child != nil {
				out[k] = child
			}
		}
		return out
	case ir.Array:
		out := make(ir.Array, len(val))
		for i, elem := range val {
			child := replace(fn, strconv.Itoa(i), elem)
			if child == nil {
				child = ir.Null{}
			}
			out[i] = child
		}
		return out
	default:
		return v
	}
}

func revive(fn ReplacerFunc, key string, v ir.Value) ir.Value {
	switch val := v.(type) {
	case ir.Object:
		out := make(ir.Object, len(val))
		for _, k := range val.SortedKeys() {
			if child := revive(fn, k, val[k]); child != nil {
				out[k] = child
			}
		}
		v = out
	case ir.Array:
		out := make(ir.Array, len(val))
		for i, elem := range val {
			child := revive(fn, strconv.Itoa(i), elem)
			if child == nil {
				child = ir.Null{}
			}
			out[i] = child
		}
		v = out
	}
	return fn(key, v)
}
