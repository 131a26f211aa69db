// Package bridge instruments application stores so their dispatches can be
// observed from outside the page.
//
// A Bridge owns a Registry of instrumented instances. Stores enter the
// registry through Enhancer (at creation), Instrument (after creation),
// Compose (chained with other enhancers) or Connect (stores that report
// their own actions). Every successful dispatch is cached as the
// instance's last observation and reported to the annotation sink. In
// ModeRelay the bridge also posts protocol envelopes over a Transport and
// routes inbound monitor commands back to the instance through Deliver.
//
// Instance lifecycle:
//
//	UNREGISTERED -> REGISTERED (wrapped, init emitted)
//	REGISTERED   -> UNSUBSCRIBED (listeners dropped, wrapping stays)
//
// Dispatch-time work is synchronous; nothing is batched or throttled.
package bridge
