// Package protocol defines the messages exchanged between the bridge and an
// external monitor.
//
// Outbound messages are Envelopes: a closed set of variants, each tagged by
// a Tag and stamped with the Source sentinel and an instance id. The set is
// sealed; every consumer switches over it exhaustively (see Encode, Decode
// and ForwardedToMonitors).
//
// # Split serialization
//
// Large trees (state, action tables, computed states) cross the boundary as
// pre-serialized strings. A Snapshot serializes a lifted state's tables once
// and every envelope built from it reuses the same strings, so a relay tick
// pays for serialization once no matter how many envelopes it sends.
//
// Inbound messages from the monitor are Commands; they are routed to
// listeners by instance id.
package protocol
