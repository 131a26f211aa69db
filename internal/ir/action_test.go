package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionType(t *testing.T) {
	tests := []struct {
		name   string
		action Object
		want   string
		ok     bool
	}{
		{"string tag", NewAction("ADD_TODO"), "ADD_TODO", true},
		{"empty string tag", Object{"type": String("")}, "", true},
		{"numeric tag", Object{"type": Int(4)}, "", false},
		{"object tag", Object{"type": Object{}}, "", false},
		{"missing tag", Object{"payload": Int(1)}, "", false},
		{"nil action", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ActionType(tt.action)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewAction_PayloadMembers(t *testing.T) {
	a := NewAction("SET", O("value", Int(7)))
	assert.Equal(t, Object{"type": String("SET"), "value": Int(7)}, a)
}

func TestCoerceAction(t *testing.T) {
	update := NewAction(UpdateActionType)

	assert.Equal(t, NewAction("PING"), CoerceAction(String("PING")))
	assert.Equal(t, update, CoerceAction(String("")))
	assert.Equal(t, update, CoerceAction(nil))
	assert.Equal(t, update, CoerceAction(Int(3)))
	assert.Equal(t, update, CoerceAction(Object{"payload": Int(1)}))

	custom := Object{"type": Int(5)}
	assert.Equal(t, custom, CoerceAction(custom), "truthy non-string tags pass through")
}
