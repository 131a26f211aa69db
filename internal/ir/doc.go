// Package ir provides the value model shared by every storebridge package.
//
// Actions and state snapshots are Values: a sealed set of JSON-shaped types.
// ir imports nothing internal so it stays the foundational layer.
//
// Key constraints:
//   - An action is an Object whose "type" member tags it; only a String tag
//     is string-like and can be pattern matched.
//   - Object.MarshalJSON sorts keys so state encodes deterministically.
//   - MarshalCanonical (RFC 8785, NFC strings) is used for annotation bodies
//     and golden traces; it rejects floats.
package ir
