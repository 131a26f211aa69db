package bridge

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storebridge/internal/config"
	"github.com/roach88/storebridge/internal/ir"
	"github.com/roach88/storebridge/internal/protocol"
	"github.com/roach88/storebridge/internal/testutil"
	"github.com/roach88/storebridge/internal/transport"
)

// postLog is a transport that keeps every envelope, DISCONNECT included.
type postLog struct {
	mu   sync.Mutex
	envs []protocol.Envelope
	err  error
}

func (p *postLog) Post(env protocol.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return p.err
}

func (p *postLog) tags() []protocol.Tag {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]protocol.Tag, len(p.envs))
	for i, env := range p.envs {
		out[i] = env.Tag()
	}
	return out
}

func (p *postLog) last() protocol.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.envs) == 0 {
		return nil
	}
	return p.envs[len(p.envs)-1]
}

func (p *postLog) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = nil
}

func newRelayBridge(t *testing.T, opts ...Option) (*Bridge, *postLog) {
	t.Helper()
	log := &postLog{}
	b, _ := newTestBridge(t, append([]Option{WithMode(ModeRelay), WithTransport(log)}, opts...)...)
	return b, log
}

func TestRelay_ActionEnvelope(t *testing.T) {
	ch := transport.NewChannel(0)
	b, sink := newTestBridge(t, WithMode(ModeRelay), WithTransport(ch))
	store := counterStore(t, b, nil)

	_, err := store.Dispatch(ir.NewAction("INCREMENT"))
	require.NoError(t, err)

	envs := ch.Drain(1)
	require.Len(t, envs, 2)
	assert.Equal(t, protocol.TagInitInstance, envs[0].Tag())

	action, ok := envs[1].(*protocol.Action)
	require.True(t, ok)
	assert.Equal(t, 1, action.InstanceID)
	assert.Equal(t, protocol.Source, action.Source)
	assert.Equal(t, `{"count":1}`, action.Payload)
	assert.JSONEq(t, `{"type":"PERFORM_ACTION","action":{"type":"INCREMENT"},"timestamp":1700000000000}`, action.Action)
	assert.Equal(t, config.DefaultMaxAge, action.MaxAge)
	assert.Equal(t, 2, action.NextActionID)

	// The annotation sink still receives events in relay mode.
	assert.Len(t, sink.Events(), 2)
}

func TestRelay_NextActionIDWithoutHistory(t *testing.T) {
	b, log := newRelayBridge(t)
	plain := &stateOnlyStore{state: ir.Object{}}
	store := b.Instrument(plain, nil)

	for i := 0; i < 3; i++ {
		_, err := store.Dispatch(ir.NewAction("TICK"))
		require.NoError(t, err)
	}

	action, ok := log.last().(*protocol.Action)
	require.True(t, ok)
	assert.Equal(t, 4, action.NextActionID)
}

// stateOnlyStore keeps no history, so the registry counts action ids.
type stateOnlyStore struct {
	state ir.Value
}

func (s *stateOnlyStore) Dispatch(action ir.Object) (any, error) { return action, nil }
func (s *stateOnlyStore) State() ir.Value                       { return s.state }

// pausedStore keeps a one-entry history that recording has paused.
type pausedStore struct {
	stateOnlyStore
}

func (s *pausedStore) LiftedState() protocol.LiftedState {
	return protocol.LiftedState{
		ActionsByID: map[int]protocol.PerformAction{
			0: {Type: protocol.PerformActionType, Action: ir.NewAction("@@INIT")},
		},
		ComputedStates:  []protocol.ComputedState{{State: ir.Object{}}},
		StagedActionIDs: []int{0},
		NextActionID:    1,
		IsPaused:        true,
	}
}

func TestRelay_MaxAgeResolution(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
		opts config.Options
		want int
	}{
		{"default", nil, config.Options{}, 50},
		{"options", nil, config.Options{MaxAge: 30}, 30},
		{"config wins", &config.Config{MaxAge: 10}, config.Options{MaxAge: 30}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, log := newRelayBridge(t, WithOptions(tt.opts))
			store := counterStore(t, b, tt.cfg)
			_, err := store.Dispatch(ir.NewAction("INCREMENT"))
			require.NoError(t, err)

			action, ok := log.last().(*protocol.Action)
			require.True(t, ok)
			assert.Equal(t, tt.want, action.MaxAge)
		})
	}
}

func TestRelay_SuppressedActions(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
		opts config.Options
	}{
		{
			name: "local denylist",
			cfg:  &config.Config{ActionsDenylist: config.Pattern{"INCREMENT"}},
		},
		{
			name: "local allowlist",
			cfg:  &config.Config{ActionsAllowlist: config.Pattern{"DECREMENT"}},
		},
		{
			name: "global denylist",
			opts: config.Options{Filter: "DENYLIST_SPECIFIC", Denylist: "INC"},
		},
		{
			name: "predicate",
			cfg: &config.Config{Predicate: func(state ir.Value, action ir.Object) bool {
				return false
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, log := newRelayBridge(t, WithOptions(tt.opts))
			store := counterStore(t, b, tt.cfg)
			log.reset()

			_, err := store.Dispatch(ir.NewAction("INCREMENT"))
			require.NoError(t, err)

			assert.Empty(t, log.tags())
			_, recorded := b.LastObservation(1)
			assert.True(t, recorded, "suppressed actions are still cached")
		})
	}
}

func TestRelay_Sanitizers(t *testing.T) {
	var gotIndex int
	cfg := &config.Config{
		StateSanitizer: func(state ir.Value, index int) ir.Value {
			gotIndex = index
			return ir.String("<state>")
		},
		ActionSanitizer: func(action ir.Object, id int) ir.Object {
			out := action.Clone()
			out["secret"] = ir.String("***")
			return out
		},
	}
	b, log := newRelayBridge(t)
	store := counterStore(t, b, cfg)

	_, err := store.Dispatch(ir.NewAction("INCREMENT", ir.O("secret", ir.String("hunter2"))))
	require.NoError(t, err)

	action, ok := log.last().(*protocol.Action)
	require.True(t, ok)
	assert.Equal(t, `"<state>"`, action.Payload)
	assert.Contains(t, action.Action, `"secret":"***"`)
	assert.NotContains(t, action.Action, "hunter2")
	assert.Equal(t, 1, gotIndex)

	obs, _ := b.LastObservation(1)
	assert.Equal(t, ir.String("hunter2"), obs.Action["secret"], "the cache keeps the raw action")
}

func TestRelay_StopAndStart(t *testing.T) {
	b, log := newRelayBridge(t)
	store := counterStore(t, b, &config.Config{Name: "counter", Features: map[string]bool{"pause": true}})
	log.reset()

	require.NoError(t, b.Deliver(protocol.Command{Type: protocol.CommandStop, InstanceID: 1}))
	assert.Equal(t, []protocol.Tag{protocol.TagStop}, log.tags())
	assert.True(t, b.Registry().Instances()[0].Stopped)

	_, err := store.Dispatch(ir.NewAction("INCREMENT"))
	require.NoError(t, err)
	assert.Len(t, log.tags(), 1, "nothing relayed while stopped")

	log.reset()
	require.NoError(t, b.Deliver(protocol.Command{Type: protocol.CommandStart, InstanceID: 1}))
	state, ok := log.last().(*protocol.State)
	require.True(t, ok)
	require.NotNil(t, state.LibConfig)
	assert.Equal(t, "counter", state.LibConfig.Name)
	assert.Equal(t, map[string]bool{"pause": true}, state.LibConfig.Features)
	assert.Equal(t, 2, state.Payload.NextActionID)
	assert.Equal(t, []int{0, 1}, state.Payload.StagedActionIDs)
	assert.JSONEq(t, `[{"state":{"count":0}},{"state":{"count":1}}]`, state.Payload.ComputedStates)

	_, err = store.Dispatch(ir.NewAction("INCREMENT"))
	require.NoError(t, err)
	assert.Equal(t, protocol.TagAction, log.last().Tag())
}

func TestRelay_FailedStopSendsNothing(t *testing.T) {
	b, log := newRelayBridge(t)
	counterStore(t, b, nil)
	log.reset()

	require.NoError(t, b.Deliver(protocol.Command{Type: protocol.CommandStop, InstanceID: 1, Failed: true}))
	assert.Empty(t, log.tags())
	assert.True(t, b.Registry().Instances()[0].Stopped)
}

func TestRelay_Update(t *testing.T) {
	b, log := newRelayBridge(t)
	counterStore(t, b, nil)

	require.NoError(t, b.Deliver(protocol.Command{Type: protocol.CommandUpdate, InstanceID: 1}))
	state, ok := log.last().(*protocol.State)
	require.True(t, ok)
	assert.Nil(t, state.LibConfig)
}

func TestRelay_UpdateAfterSnapshotSendsPartialState(t *testing.T) {
	b, log := newRelayBridge(t)
	store := counterStore(t, b, &config.Config{MaxAge: 20})
	_, err := store.Dispatch(ir.NewAction("INCREMENT"))
	require.NoError(t, err)
	log.reset()

	require.NoError(t, b.Deliver(protocol.Command{Type: protocol.CommandUpdate, InstanceID: 1}))
	require.NoError(t, b.Deliver(protocol.Command{Type: protocol.CommandUpdate, InstanceID: 1}))
	assert.Equal(t, []protocol.Tag{protocol.TagState, protocol.TagPartialState}, log.tags())

	partial, ok := log.last().(*protocol.PartialState)
	require.True(t, ok)
	assert.Equal(t, 20, partial.MaxAge)
	assert.Equal(t, 2, partial.Payload.NextActionID)
	assert.Equal(t, []int{0, 1}, partial.Payload.StagedActionIDs)
	assert.JSONEq(t, `[{"state":{"count":0}},{"state":{"count":1}}]`, partial.Payload.ComputedStates)

	// STOP forgets the snapshot; START resends it.
	log.reset()
	require.NoError(t, b.Deliver(protocol.Command{Type: protocol.CommandStop, InstanceID: 1}))
	require.NoError(t, b.Deliver(protocol.Command{Type: protocol.CommandUpdate, InstanceID: 1}))
	require.NoError(t, b.Deliver(protocol.Command{Type: protocol.CommandStart, InstanceID: 1}))
	require.NoError(t, b.Deliver(protocol.Command{Type: protocol.CommandUpdate, InstanceID: 1}))
	assert.Equal(t, []protocol.Tag{
		protocol.TagStop,
		protocol.TagState,
		protocol.TagState,
		protocol.TagPartialState,
	}, log.tags())
}

func TestRelay_StartReportsPausedHistory(t *testing.T) {
	b, log := newRelayBridge(t)
	b.Instrument(&pausedStore{stateOnlyStore{state: ir.Object{}}}, &config.Config{Name: "paused"})
	log.reset()

	require.NoError(t, b.Deliver(protocol.Command{Type: protocol.CommandStart, InstanceID: 1}))
	assert.Equal(t, []protocol.Tag{protocol.TagState, protocol.TagLifted}, log.tags())

	lifted, ok := log.last().(*protocol.Lifted)
	require.True(t, ok)
	require.NotNil(t, lifted.LiftedState.IsPaused)
	assert.True(t, *lifted.LiftedState.IsPaused)
}

func TestRequestReport(t *testing.T) {
	b, log := newRelayBridge(t)
	counterStore(t, b, nil)

	require.NoError(t, b.RequestReport(1, "report-7"))
	report, ok := log.last().(*protocol.GetReport)
	require.True(t, ok)
	assert.Equal(t, 1, report.InstanceID)
	assert.Equal(t, "report-7", report.Payload)
}

func TestRelay_UpdateWithoutHistorySendsInit(t *testing.T) {
	b, log := newRelayBridge(t)
	b.Instrument(&stateOnlyStore{state: ir.Object{"ok": ir.Bool(true)}}, &config.Config{Name: "plain"})

	require.NoError(t, b.Deliver(protocol.Command{Type: protocol.CommandUpdate, InstanceID: 1}))
	init, ok := log.last().(*protocol.Init)
	require.True(t, ok)
	assert.Equal(t, `{"ok":true}`, init.Payload)
	assert.Equal(t, "plain", init.Name)
}

func TestRelay_Export(t *testing.T) {
	b, log := newRelayBridge(t)
	store := counterStore(t, b, nil)
	_, err := store.Dispatch(ir.NewAction("INCREMENT"))
	require.NoError(t, err)

	require.NoError(t, b.Deliver(protocol.Command{Type: protocol.CommandExport, InstanceID: 1}))
	export, ok := log.last().(*protocol.Export)
	require.True(t, ok)
	assert.Contains(t, export.Payload, `"type":"@@INIT"`)
	assert.Contains(t, export.Payload, `"type":"INCREMENT"`)
	assert.Equal(t, `{"count":0}`, export.CommittedState)
}

func TestRelay_RemoteAction(t *testing.T) {
	tests := []struct {
		name string
		cmd  protocol.Command
		want ir.Object
	}{
		{
			name: "json action",
			cmd:  protocol.Command{Action: `{"type":"INCREMENT","by":2}`},
			want: ir.Object{"count": ir.Int(2)},
		},
		{
			name: "plain type",
			cmd:  protocol.Command{Action: "INCREMENT"},
			want: ir.Object{"count": ir.Int(1)},
		},
		{
			name: "payload string",
			cmd:  protocol.Command{Payload: []byte(`"DECREMENT"`)},
			want: ir.Object{"count": ir.Int(-1)},
		},
		{
			name: "payload object",
			cmd:  protocol.Command{Payload: []byte(`{"type":"INCREMENT","by":5}`)},
			want: ir.Object{"count": ir.Int(5)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, log := newRelayBridge(t)
			store := counterStore(t, b, nil)

			cmd := tt.cmd
			cmd.Type = protocol.CommandAction
			cmd.InstanceID = 1
			require.NoError(t, b.Deliver(cmd))

			assert.Equal(t, tt.want, store.State())
			assert.Equal(t, protocol.TagAction, log.last().Tag(), "remote actions are observed like local ones")
		})
	}
}

func TestRelay_RemoteActionRejected(t *testing.T) {
	b, _ := newRelayBridge(t)
	_, err := b.Enhancer(nil)(reducerCreator())(Reducer(testutil.MergeReducer("BAD")), ir.Object{})
	require.NoError(t, err)

	err = b.Deliver(protocol.Command{Type: protocol.CommandAction, InstanceID: 1, Action: "BAD"})
	assert.ErrorIs(t, err, testutil.ErrRejected)
}

func TestRelay_TransportFailure(t *testing.T) {
	b, log := newRelayBridge(t)
	store := counterStore(t, b, nil)
	log.err = errors.New("port closed")

	result, err := store.Dispatch(ir.NewAction("INCREMENT"))

	require.NoError(t, err, "transport failures never reach the dispatcher")
	assert.Equal(t, ir.NewAction("INCREMENT"), result)

	err = b.Deliver(protocol.Command{Type: protocol.CommandUpdate, InstanceID: 1})
	assert.True(t, IsTransportFailed(err))
}

func TestRelay_StoreCreateFailurePostsError(t *testing.T) {
	b, log := newRelayBridge(t)
	failing := func(Reducer, ir.Value) (Store, error) { return nil, errors.New("bad reducer") }

	_, err := b.Enhancer(&config.Config{Name: "broken"})(failing)(testutil.CounterReducer, ir.Null{})
	require.Error(t, err)

	msg, ok := log.last().(*protocol.ErrorMessage)
	require.True(t, ok)
	assert.Equal(t, 1, msg.InstanceID)
	assert.Equal(t, "STORE_CREATE_FAILED", msg.Message)
	assert.Contains(t, msg.Payload, "bad reducer")
}

func TestReportError(t *testing.T) {
	b, log := newRelayBridge(t)

	require.NoError(t, b.ReportError(4, errors.New("plain failure")))
	msg, ok := log.last().(*protocol.ErrorMessage)
	require.True(t, ok)
	assert.Equal(t, "plain failure", msg.Payload)
	assert.Empty(t, msg.Message)

	log.reset()
	assert.NoError(t, b.ReportError(4, nil))
	assert.Empty(t, log.tags())
}

func TestRelay_OpenDisconnectClose(t *testing.T) {
	b, log := newRelayBridge(t)
	counterStore(t, b, nil)
	counterStore(t, b, nil)
	b.Listen(1, func(protocol.Command) {})
	log.reset()

	require.NoError(t, b.Open(1, protocol.PositionRight))
	open, ok := log.last().(*protocol.Open)
	require.True(t, ok)
	assert.Equal(t, protocol.PositionRight, open.Position)

	require.NoError(t, b.Close())
	assert.Equal(t, []protocol.Tag{protocol.TagOpen, protocol.TagDisconnect, protocol.TagDisconnect}, log.tags())
	assert.Equal(t, 0, b.Registry().ListenerCount(1))
}

func TestRelay_ChannelDisconnect(t *testing.T) {
	ch := transport.NewChannel(0)
	b, _ := newTestBridge(t, WithMode(ModeRelay), WithTransport(ch))
	store := counterStore(t, b, nil)

	require.NoError(t, b.Disconnect(1))

	_, err := store.Dispatch(ir.NewAction("INCREMENT"))
	require.NoError(t, err)
	assert.Len(t, ch.Drain(1), 1, "only INIT_INSTANCE was queued before the disconnect")
}

func TestAnnotateMode_IgnoresBuiltinCommands(t *testing.T) {
	b, _ := newTestBridge(t)
	store := counterStore(t, b, nil)

	require.NoError(t, b.Deliver(protocol.Command{Type: protocol.CommandAction, InstanceID: 1, Action: "INCREMENT"}))
	assert.Equal(t, ir.Object{"count": ir.Int(0)}, store.State())
	assert.NoError(t, b.Open(1, protocol.PositionLeft))
}
