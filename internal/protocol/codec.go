package protocol

import (
	"bytes"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

var (
	// ErrUnknownTag is returned for a tag outside the closed set.
	ErrUnknownTag = errors.New("unknown envelope tag")

	// ErrForeignSource is returned for messages that did not come from a
	// bridge. Receivers should silently drop them.
	ErrForeignSource = errors.New("message source is not the bridge")
)

// Encode writes env as a JSON object with a "type" discriminator.
func Encode(env Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("encode: nil envelope")
	}
	switch env.(type) {
	case *InitInstance, *Init, *Action, *State, *PartialState, *Export,
		*Lifted, *ErrorMessage, *GetReport, *Stop, *Open, *Disconnect:
	default:
		return nil, fmt.Errorf("encode %T: %w", env, ErrUnknownTag)
	}

	body, err := json.MarshalNoEscape(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", env.Tag(), err)
	}
	tag, err := json.MarshalNoEscape(env.Tag())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", env.Tag(), err)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(tag) + 9)
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// Decode parses an envelope. Messages whose source is not Source fail with
// ErrForeignSource; unknown tags fail with ErrUnknownTag.
func Decode(data []byte) (Envelope, error) {
	var head struct {
		Type   Tag    `json:"type"`
		Source string `json:"source"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if head.Source != Source {
		return nil, fmt.Errorf("decode: source %q: %w", head.Source, ErrForeignSource)
	}

	env, err := Empty(head.Type)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Type, err)
	}
	return env, nil
}

// Empty returns a zero envelope of the given tag.
func Empty(tag Tag) (Envelope, error) {
	switch tag {
	case TagInitInstance:
		return &InitInstance{}, nil
	case TagInit:
		return &Init{}, nil
	case TagAction:
		return &Action{}, nil
	case TagState:
		return &State{}, nil
	case TagPartialState:
		return &PartialState{}, nil
	case TagExport:
		return &Export{}, nil
	case TagLifted:
		return &Lifted{}, nil
	case TagError:
		return &ErrorMessage{}, nil
	case TagGetReport:
		return &GetReport{}, nil
	case TagStop:
		return &Stop{}, nil
	case TagOpen:
		return &Open{}, nil
	case TagDisconnect:
		return &Disconnect{}, nil
	default:
		return nil, fmt.Errorf("tag %q: %w", tag, ErrUnknownTag)
	}
}

// ForwardedToMonitors reports whether a transport should pass env on to
// monitors. DISCONNECT is consumed by the transport itself.
func ForwardedToMonitors(env Envelope) bool {
	switch env.(type) {
	case *Disconnect:
		return false
	case *InitInstance, *Init, *Action, *State, *PartialState, *Export,
		*Lifted, *ErrorMessage, *GetReport, *Stop, *Open:
		return true
	default:
		return false
	}
}
