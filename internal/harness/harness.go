package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/storebridge/internal/bridge"
	"github.com/roach88/storebridge/internal/ident"
	"github.com/roach88/storebridge/internal/ir"
	"github.com/roach88/storebridge/internal/observe"
	"github.com/roach88/storebridge/internal/protocol"
	"github.com/roach88/storebridge/internal/store"
	"github.com/roach88/storebridge/internal/testutil"
	"github.com/roach88/storebridge/internal/transport"
)

// Harness executes one scenario against a bridge.
type Harness struct {
	store      *store.Store
	log        *store.AnnotationLog
	ids        *ident.Allocator
	envelope   transport.Transport
	bridge     *bridge.Bridge
	clock      *testutil.StepClock
	storeClock *testutil.StepClock
	logger     *slog.Logger

	mu     sync.Mutex
	result *Result
	stores map[string]bridge.Store
	conns  map[string]*bridge.Connection
}

// Option configures a scenario run.
type Option func(*runConfig)

type runConfig struct {
	store    *store.Store
	envelope transport.Transport
	logger   *slog.Logger
}

// WithStore runs against st instead of a fresh in-memory annotation log.
// The session is kept after the run, and instance ids continue after the
// largest id already in st.
func WithStore(st *store.Store) Option {
	return func(c *runConfig) {
		c.store = st
	}
}

// WithEnvelopeWriter also writes every relayed envelope to w as JSON lines.
func WithEnvelopeWriter(w io.Writer) Option {
	return func(c *runConfig) {
		c.envelope = transport.NewWriter(w)
	}
}

// WithLogger sets the bridge logger. Runs are silent by default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// Run executes a scenario and returns the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext executes a scenario and returns the result.
//
// Unless WithStore is given, each scenario runs against a fresh in-memory
// annotation log.
//
// Execution flow:
// 1. Open the annotation log and start a session
// 2. Build the bridge and create the stores
// 3. Perform the steps
// 4. Persist the last observations
// 5. Evaluate assertions
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}

	st := cfg.store
	started := testutil.DefaultEpoch
	ids := ident.NewAllocator()
	if st == nil {
		var err error
		if st, err = store.Open(":memory:"); err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
	} else {
		last, err := st.MaxInstanceID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resume instance ids: %w", err)
		}
		ids = ident.NewAllocatorAt(last)
		started = time.Now()
	}

	alog, err := st.StartSession(ctx, scenario.Name, started)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	h := &Harness{
		store:      st,
		log:        alog,
		ids:        ids,
		envelope:   cfg.envelope,
		clock:      testutil.NewStepClock(time.Time{}, time.Millisecond),
		storeClock: testutil.NewStepClock(time.Time{}, time.Millisecond),
		logger:     cfg.logger,
		result:     NewResult(),
		stores:     make(map[string]bridge.Store),
		conns:      make(map[string]*bridge.Connection),
	}

	b, err := bridge.New(h.bridgeOptions(scenario)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge: %w", err)
	}
	h.bridge = b

	if err := h.createStores(scenario.Stores); err != nil {
		return nil, fmt.Errorf("failed to create stores: %w", err)
	}
	if err := h.executeSteps(scenario.Steps); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	for name, s := range h.stores {
		h.result.State[name] = s.State()
	}
	if err := st.SaveObservations(ctx, alog.SessionID(), b.Registry().Cache()); err != nil {
		return nil, fmt.Errorf("failed to save observations: %w", err)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) bridgeOptions(s *Scenario) []bridge.Option {
	mode := s.Mode
	if mode == "" {
		mode = bridge.ModeAnnotate
	}
	opts := []bridge.Option{
		bridge.WithRegistry(bridge.NewRegistryWith(h.ids)),
		bridge.WithMode(mode),
		bridge.WithOptions(s.Options),
		bridge.WithTitle(s.Title),
		bridge.WithLogger(h.logger),
		bridge.WithClock(h.clock.Now),
		bridge.WithSink(observe.MultiSink{h.log, observe.SinkFunc(h.recordAnnotation)}),
	}
	if mode == bridge.ModeRelay {
		opts = append(opts, bridge.WithTransport(transport.Func(h.recordEnvelope)))
	}
	if s.PageURL != "" {
		opts = append(opts, bridge.WithPageURL(s.PageURL))
	}
	return opts
}

func (h *Harness) createStores(defs []StoreDef) error {
	for _, def := range defs {
		if def.kind() == KindConnection {
			conn := h.bridge.Connect(def.Config)
			h.conns[def.Name] = conn
			h.result.Instances[def.Name] = conn.InstanceID()
			continue
		}

		initial, err := ir.FromAny(def.Initial)
		if err != nil {
			return fmt.Errorf("store %q: initial state: %w", def.Name, err)
		}
		reducer := reducerFor(def)
		creator := func(r bridge.Reducer, init ir.Value) (bridge.Store, error) {
			return testutil.NewReducerStore(testutil.Reducer(r), init, h.storeClock.Now), nil
		}

		var s bridge.Store
		switch def.via() {
		case ViaCompose:
			s, err = h.bridge.Compose(def.Config)(creator)(reducer, initial)
		case ViaInstrument:
			plain, _ := creator(reducer, initial)
			s = h.bridge.Instrument(plain, def.Config)
		default:
			s, err = h.bridge.Enhancer(def.Config)(creator)(reducer, initial)
		}
		if err != nil {
			return fmt.Errorf("store %q: %w", def.Name, err)
		}

		h.stores[def.Name] = s
		if id, ok := bridge.InstanceOf(s); ok {
			h.result.Instances[def.Name] = id
		}
		h.logger.Info("store created", "name", def.Name, "via", def.via())
	}
	return nil
}

func reducerFor(def StoreDef) bridge.Reducer {
	if def.Reducer == "merge" {
		return bridge.Reducer(testutil.MergeReducer(def.Reject...))
	}
	return testutil.CounterReducer
}

func (h *Harness) executeSteps(steps []Step) error {
	for i, step := range steps {
		if err := h.executeStep(i, step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
		h.logger.Info("step completed", "step", i, "op", step.Op, "target", step.Target)
	}
	return nil
}

func (h *Harness) executeStep(index int, step Step) error {
	action, err := optionalValue(step.Action)
	if err != nil {
		return fmt.Errorf("action: %w", err)
	}
	state, err := optionalValue(step.State)
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}
	id := h.result.Instances[step.Target]

	switch step.Op {
	case OpDispatch:
		obj := ir.CoerceAction(action)
		ev := h.addStep(step.Op+":"+describe(obj), id, obj)
		_, err := h.stores[step.Target].Dispatch(obj)
		h.checkOutcome(index, ev, step, err)

	case OpSend:
		h.addStep(step.Op+":"+describe(action), id, action)
		h.conns[step.Target].Send(action, state)

	case OpReport:
		ev := h.addStep(step.Op+":"+describe(ir.CoerceAction(action)), 0, action)
		reported := h.bridge.Send(action, state, step.Config)
		h.setInstance(ev, reported)

	case OpCommand:
		cmd := protocol.Command{
			Type:       protocol.CommandType(step.Command),
			Source:     protocol.ExtensionSource,
			InstanceID: id,
			Failed:     step.Failed,
		}
		if action != nil {
			if cmd.Action, err = actionText(action); err != nil {
				return err
			}
		}
		ev := h.addStep(step.Op+":"+step.Command, id, action)
		h.checkOutcome(index, ev, step, h.bridge.Deliver(cmd))

	case OpInit:
		h.addStep(step.Op+":"+step.Target, id, state)
		if err := h.conns[step.Target].Init(state, nil); err != nil {
			return err
		}

	case OpUnsubscribe:
		h.addStep(step.Op+":"+step.Target, id, nil)
		h.bridge.Unsubscribe(id)

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

// checkOutcome records err on the step event and compares it with the
// step's expectation.
func (h *Harness) checkOutcome(index, ev int, step Step, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.result.Trace[ev].Error = err.Error()
		if !step.ExpectError {
			h.result.AddError(fmt.Sprintf("steps[%d]: %s failed: %v", index, step.Op, err))
		}
		return
	}
	if step.ExpectError {
		h.result.AddError(fmt.Sprintf("steps[%d]: %s succeeded, expected an error", index, step.Op))
	}
}

// addStep appends a step event and returns its index.
func (h *Harness) addStep(label string, id int, body ir.Value) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.add(TraceEvent{Type: EventStep, Label: label, InstanceID: id, Body: body})
	return len(h.result.Trace) - 1
}

func (h *Harness) setInstance(ev, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.Trace[ev].InstanceID = id
}

// recordAnnotation is the trace side of the annotation sink.
func (h *Harness) recordAnnotation(kind, contents string) error {
	body, err := ir.UnmarshalValue([]byte(contents))
	if err != nil {
		return fmt.Errorf("annotation %s: %w", kind, err)
	}
	obj, _ := body.(ir.Object)
	label := EventAnnotation
	if t, ok := obj["type"].(ir.String); ok {
		label += ":" + string(t)
	}
	if at, ok := obj["actionType"].(ir.String); ok {
		label += ":" + string(at)
	}
	id, _ := obj["instanceId"].(ir.Int)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.add(TraceEvent{Type: EventAnnotation, Label: label, InstanceID: int(id), Body: body})
	return nil
}

// recordEnvelope is the harness transport.
func (h *Harness) recordEnvelope(env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	body, err := ir.UnmarshalValue(data)
	if err != nil {
		return fmt.Errorf("envelope %s: %w", env.Tag(), err)
	}

	h.mu.Lock()
	h.result.add(TraceEvent{
		Type:       EventEnvelope,
		Label:      EventEnvelope + ":" + string(env.Tag()),
		InstanceID: env.Instance(),
		Body:       body,
	})
	h.mu.Unlock()

	if h.envelope != nil {
		return h.envelope.Post(env)
	}
	return nil
}

// optionalValue converts a YAML value, keeping absence as nil.
func optionalValue(v any) (ir.Value, error) {
	if v == nil {
		return nil, nil
	}
	return ir.FromAny(v)
}

// describe names an action for trace labels.
func describe(v ir.Value) string {
	switch a := v.(type) {
	case ir.String:
		return string(a)
	case ir.Object:
		if t, ok := ir.ActionType(a); ok {
			return t
		}
	}
	return "-"
}

// actionText renders the action of an ACTION command: strings verbatim,
// anything else as JSON.
func actionText(v ir.Value) (string, error) {
	if s, ok := v.(ir.String); ok {
		return string(s), nil
	}
	b, err := ir.MarshalValue(v)
	if err != nil {
		return "", fmt.Errorf("command action: %w", err)
	}
	return string(b), nil
}
