package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storebridge/internal/config"
	"github.com/roach88/storebridge/internal/ir"
	"github.com/roach88/storebridge/internal/observe"
)

func TestSaveObservations_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	log := startTestSession(t, s, "", 1)
	ctx := context.Background()

	cache := observe.NewCache()
	cache.Record(observe.Observation{
		Action:    ir.NewAction("INC", ir.O("by", ir.Int(2))),
		State:     ir.Object{"count": ir.Int(2), "ratio": ir.Float(0.5)},
		Extracted: &config.Extracted{InstanceID: 1},
		Config: &config.Config{
			InstanceID:      1,
			Name:            "Counter",
			ActionsDenylist: config.Fragments("A", "B"),
			Predicate:       func(ir.Value, ir.Object) bool { return true },
		},
	})
	require.NoError(t, s.SaveObservations(ctx, log.SessionID(), cache))

	got, ok, err := s.ReadObservation(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, log.SessionID(), got.SessionID)
	assert.Equal(t, ir.NewAction("INC", ir.O("by", ir.Int(2))), got.Action)
	assert.Equal(t, ir.Object{"count": ir.Int(2), "ratio": ir.Float(0.5)}, got.State)
	assert.JSONEq(t, `{"instanceId":1,"name":"Counter","actionsDenylist":["A","B"]}`, got.Config)
}

func TestSaveObservations_Overwrites(t *testing.T) {
	s := createTestStore(t)
	log := startTestSession(t, s, "", 1)
	ctx := context.Background()

	cache := observe.NewCache()
	cache.Record(observe.Observation{Action: ir.NewAction("FIRST"), State: ir.Int(1), Extracted: &config.Extracted{InstanceID: 2}})
	require.NoError(t, s.SaveObservations(ctx, log.SessionID(), cache))

	cache.Record(observe.Observation{Action: ir.NewAction("SECOND"), State: ir.Int(2), Extracted: &config.Extracted{InstanceID: 2}})
	require.NoError(t, s.SaveObservations(ctx, log.SessionID(), cache))

	got, ok, err := s.ReadObservation(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.NewAction("SECOND"), got.Action)
	assert.Equal(t, ir.Int(2), got.State)
	assert.Equal(t, "{}", got.Config)

	max, err := s.MaxInstanceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), max)
}

func TestReadObservation_Missing(t *testing.T) {
	s := createTestStore(t)
	_, ok, err := s.ReadObservation(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, ok)
}
