package observe

import (
	"fmt"
	"log/slog"

	"github.com/roach88/storebridge/internal/config"
	"github.com/roach88/storebridge/internal/ir"
)

// AnnotationKind is the kind every bridge annotation is recorded under.
const AnnotationKind = "bridge-setup"

// ConnectionType tells a managed store dispatch apart from an action
// reported ad hoc.
type ConnectionType string

const (
	ConnectionManaged ConnectionType = "managed"
	ConnectionGeneric ConnectionType = "generic"
)

// Event types carried in annotation bodies.
const (
	EventInit   = "init"
	EventAction = "action"
)

// Annotation is the body of one annotation event.
type Annotation struct {
	Type           string         `json:"type"`
	ActionType     string         `json:"actionType,omitempty"`
	ConnectionType ConnectionType `json:"connectionType"`
	InstanceID     int            `json:"instanceId"`
}

// Canonical encodes a as canonical JSON. actionType is left out when empty.
func (a Annotation) Canonical() (string, error) {
	body := map[string]any{
		"type":           a.Type,
		"connectionType": string(a.ConnectionType),
		"instanceId":     a.InstanceID,
	}
	if a.ActionType != "" {
		body["actionType"] = a.ActionType
	}
	b, err := ir.MarshalCanonical(body)
	if err != nil {
		return "", fmt.Errorf("encode annotation: %w", err)
	}
	return string(b), nil
}

// Recorder pairs the cache with the annotation sink: every Save overwrites
// the cache entry and emits one event.
//
// Sink failures are logged and never returned; recording is fire-and-forget.
type Recorder struct {
	cache  *Cache
	sink   AnnotationSink
	logger *slog.Logger
}

// NewRecorder creates a recorder. A nil sink discards events and a nil
// logger uses slog.Default().
func NewRecorder(cache *Cache, sink AnnotationSink, logger *slog.Logger) *Recorder {
	if sink == nil {
		sink = Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{cache: cache, sink: sink, logger: logger}
}

// Cache returns the recorder's cache.
func (r *Recorder) Cache() *Cache {
	return r.cache
}

// Save records the observation and emits an action event.
func (r *Recorder) Save(action ir.Object, state ir.Value, conn ConnectionType, x *config.Extracted, cfg *config.Config) {
	obs := Observation{Action: action, State: state, Extracted: x, Config: cfg}
	r.cache.Record(obs)

	actionType, _ := ir.ActionType(action)
	r.emit(Annotation{
		Type:           EventAction,
		ActionType:     actionType,
		ConnectionType: conn,
		InstanceID:     obs.InstanceID(),
	})
}

// Init emits the init event for a newly registered instance.
func (r *Recorder) Init(id int, conn ConnectionType) {
	r.emit(Annotation{
		Type:           EventInit,
		ConnectionType: conn,
		InstanceID:     id,
	})
}

func (r *Recorder) emit(a Annotation) {
	contents, err := a.Canonical()
	if err != nil {
		r.logger.Error("annotation dropped", "instance_id", a.InstanceID, "error", err)
		return
	}
	if err := r.sink.Record(AnnotationKind, contents); err != nil {
		r.logger.Warn("annotation sink failed",
			"instance_id", a.InstanceID,
			"type", a.Type,
			"error", err,
		)
	}
}
