package observe

import (
	"context"
	"errors"
	"log/slog"
)

// AnnotationSink receives annotation events. contents is a canonical JSON
// object. Implementations must tolerate being called on every dispatch.
type AnnotationSink interface {
	Record(kind, contents string) error
}

// SinkFunc adapts a function to AnnotationSink.
type SinkFunc func(kind, contents string) error

// Record calls f.
func (f SinkFunc) Record(kind, contents string) error {
	return f(kind, contents)
}

// MultiSink fans an event out to every sink. All sinks are called even
// when one fails; the failures are joined.
type MultiSink []AnnotationSink

// Record calls each sink in order.
func (m MultiSink) Record(kind, contents string) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(kind, contents); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard AnnotationSink = SinkFunc(func(string, string) error { return nil })

// SlogSink writes events to a structured logger.
type SlogSink struct {
	Logger *slog.Logger
	Level  slog.Level
}

// Record logs the event at the sink's level.
func (s SlogSink) Record(kind, contents string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(context.Background(), s.Level, "annotation",
		"kind", kind,
		"contents", contents,
	)
	return nil
}
