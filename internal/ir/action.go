package ir

// ActionTypeKey is the member that tags an action.
const ActionTypeKey = "type"

// UpdateActionType is used when an ad hoc report carries no action at all.
const UpdateActionType = "update"

// NewAction creates an action object tagged with actionType.
// Extra pairs become payload members.
func NewAction(actionType string, pairs ...Pair) Object {
	obj := NewObject(pairs...)
	obj[ActionTypeKey] = String(actionType)
	return obj
}

// ActionType returns the action's type tag when it is string-like.
// ok is false for a missing tag or any non-string tag; such actions can't be
// pattern matched.
func ActionType(action Object) (actionType string, ok bool) {
	if action == nil {
		return "", false
	}
	s, ok := action[ActionTypeKey].(String)
	if !ok {
		return "", false
	}
	return string(s), true
}

// HasType reports whether the action carries any type tag at all.
func HasType(action Object) bool {
	v, ok := action[ActionTypeKey]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case nil, Null:
		return false
	case String:
		return t != ""
	case Bool:
		return bool(t)
	case Int:
		return t != 0
	default:
		return true
	}
}

// CoerceAction turns a loosely reported action into an action object:
// a string becomes {type: s}, an object with a truthy type passes through,
// anything else becomes {type: "update"}.
func CoerceAction(v Value) Object {
	switch a := v.(type) {
	case String:
		if a == "" {
			return NewAction(UpdateActionType)
		}
		return NewAction(string(a))
	case Object:
		if HasType(a) {
			return a
		}
	}
	return NewAction(UpdateActionType)
}
