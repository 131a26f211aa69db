// Package filter decides whether a dispatched action is observable.
//
// A per-instance LocalFilter overrides the ambient Global policy. Both carry
// an allowlist and a denylist pattern source; the two gates are evaluated
// independently and either one can suppress an action:
//
//	filtered = (allowlist != "" && !match(allowlist)) || (denylist != "" && match(denylist))
//
// Patterns are ECMAScript regular expressions matched anywhere in the action
// type, the same way String.prototype.match behaves. A pattern that fails to
// compile never suppresses anything, and an action whose type tag is not a
// string is always observable.
package filter
