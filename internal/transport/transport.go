// Package transport carries protocol envelopes from a bridge to monitors.
//
// Delivery is not guaranteed. Envelopes for one instance arrive in the
// order they were posted; there is no ordering across instances.
package transport

import (
	"errors"

	"github.com/roach88/storebridge/internal/protocol"
)

var (
	// ErrBufferFull is returned when an instance's queue cannot take more
	// envelopes. The envelope is dropped.
	ErrBufferFull = errors.New("transport buffer full")

	// ErrDisconnected is returned for an instance whose session ended.
	ErrDisconnected = errors.New("instance disconnected")

	// ErrClosed is returned after the transport was closed.
	ErrClosed = errors.New("transport closed")
)

// Transport posts envelopes across the isolation boundary.
type Transport interface {
	Post(env protocol.Envelope) error
}

// Func adapts a function to Transport.
type Func func(env protocol.Envelope) error

// Post calls f.
func (f Func) Post(env protocol.Envelope) error {
	return f(env)
}
