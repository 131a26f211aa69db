// Package config holds the per-store configuration entity, the global
// options every bridge shares, and the normalizer that turns a loosely
// specified configuration into its canonical form plus the minimal
// Extracted set the dispatch hot path needs.
//
// Configuration can be built in Go or loaded from YAML. Files are checked
// against an embedded CUE schema before they are decoded, and may carry a
// predicate as an expr-lang expression and sanitizers as JavaScript
// function expressions.
package config
