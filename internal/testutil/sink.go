package testutil

import "sync"

// Annotation is one event captured by RecordingSink.
type Annotation struct {
	Kind     string
	Contents string
}

// RecordingSink captures annotation events in call order.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingSink struct {
	mu     sync.Mutex
	events []Annotation
	err    error
}

// NewRecordingSink creates an empty sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// FailWith makes every later Record return err after capturing the event.
func (s *RecordingSink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Record captures the event.
func (s *RecordingSink) Record(kind, contents string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Annotation{Kind: kind, Contents: contents})
	return s.err
}

// Events returns a copy of the captured events.
func (s *RecordingSink) Events() []Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Annotation, len(s.events))
	copy(out, s.events)
	return out
}

// Contents returns the captured bodies in order.
func (s *RecordingSink) Contents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Contents
	}
	return out
}

// Reset drops every captured event.
func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
