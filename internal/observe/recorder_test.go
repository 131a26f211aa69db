package observe

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storebridge/internal/config"
	"github.com/roach88/storebridge/internal/ir"
)

type event struct {
	kind     string
	contents string
}

func collect(events *[]event) SinkFunc {
	return func(kind, contents string) error {
		*events = append(*events, event{kind, contents})
		return nil
	}
}

func TestRecorder_SaveShape(t *testing.T) {
	var events []event
	r := NewRecorder(NewCache(), collect(&events), slog.New(slog.DiscardHandler))

	x := &config.Extracted{InstanceID: 3}
	r.Save(ir.NewAction("INCREMENT"), ir.Object{"n": ir.Int(1)}, ConnectionManaged, x, &config.Config{})

	require.Len(t, events, 1)
	assert.Equal(t, "bridge-setup", events[0].kind)
	assert.Equal(t, `{"actionType":"INCREMENT","connectionType":"managed","instanceId":3,"type":"action"}`, events[0].contents)

	got, ok := r.Cache().Get(3)
	require.True(t, ok)
	assert.Equal(t, ir.NewAction("INCREMENT"), got.Action)
}

func TestRecorder_SaveNonStringType(t *testing.T) {
	var events []event
	r := NewRecorder(NewCache(), collect(&events), nil)

	r.Save(ir.Object{"type": ir.Int(4)}, ir.Null{}, ConnectionGeneric, &config.Extracted{InstanceID: 1}, nil)
	require.Len(t, events, 1)
	assert.Equal(t, `{"connectionType":"generic","instanceId":1,"type":"action"}`, events[0].contents)
}

func TestRecorder_Init(t *testing.T) {
	var events []event
	r := NewRecorder(NewCache(), collect(&events), nil)

	r.Init(2, ConnectionManaged)
	require.Len(t, events, 1)
	assert.Equal(t, `{"connectionType":"managed","instanceId":2,"type":"init"}`, events[0].contents)
	assert.Zero(t, r.Cache().Len(), "init does not touch the cache")
}

func TestRecorder_SinkFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	failing := SinkFunc(func(string, string) error { return errors.New("disk full") })
	r := NewRecorder(NewCache(), failing, slog.New(slog.NewTextHandler(&buf, nil)))

	assert.NotPanics(t, func() {
		r.Save(ir.NewAction("A"), ir.Null{}, ConnectionManaged, &config.Extracted{InstanceID: 1}, nil)
	})
	assert.Contains(t, buf.String(), "annotation sink failed")
	assert.Contains(t, buf.String(), "disk full")

	_, ok := r.Cache().Get(1)
	assert.True(t, ok, "the cache is updated even when the sink fails")
}

func TestMultiSink(t *testing.T) {
	var a, b []event
	boom := SinkFunc(func(string, string) error { return errors.New("boom") })
	m := MultiSink{collect(&a), nil, boom, collect(&b)}

	err := m.Record("k", "{}")
	require.Error(t, err)
	assert.Len(t, a, 1)
	assert.Len(t, b, 1, "later sinks still run after a failure")
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	s := SlogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil)), Level: slog.LevelInfo}
	require.NoError(t, s.Record(AnnotationKind, `{"type":"init"}`))
	assert.Contains(t, buf.String(), "kind=bridge-setup")
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard.Record("k", "v"))
}
