package bridge

import (
	"github.com/roach88/storebridge/internal/config"
	"github.com/roach88/storebridge/internal/ir"
	"github.com/roach88/storebridge/internal/observe"
	"github.com/roach88/storebridge/internal/protocol"
)

// Connection is a generic connection: a store the bridge does not wrap,
// which reports its own actions through Send.
type Connection struct {
	bridge *Bridge
	inst   *instance
}

// Connect registers a generic connection. raw is normalized once here.
func (b *Bridge) Connect(raw *config.Config) *Connection {
	cfg, x := b.normalizer.Normalize(raw)
	inst := &instance{
		id:   cfg.InstanceID,
		name: cfg.Name,
		conn: observe.ConnectionGeneric,
		cfg:  cfg,
		x:    x,
	}
	b.registry.register(inst)
	b.logger.Info("connection registered",
		"instance_id", inst.id,
		"name", inst.name,
		"mode", b.mode,
	)
	return &Connection{bridge: b, inst: inst}
}

// InstanceID returns the connection's instance id.
func (c *Connection) InstanceID() int {
	return c.inst.id
}

// Init emits the init event. In ModeRelay it also posts INIT with state
// and, when given, the serialized lifted state.
func (c *Connection) Init(state ir.Value, lifted *protocol.LiftedState) error {
	b := c.bridge
	b.recorder.Init(c.inst.id, observe.ConnectionGeneric)
	if b.mode != ModeRelay {
		return nil
	}

	ser := c.inst.cfg.Serializer()
	payload, err := ser.Marshal(c.inst.x.SanitizeState(orNull(state), 0))
	if err != nil {
		return b.serializeFailed(c.inst.id, err, "serialize state")
	}
	var liftedPayload string
	if lifted != nil {
		snap, err := protocol.PrepareSnapshot(*lifted, ser)
		if err != nil {
			return b.serializeFailed(c.inst.id, err, "prepare snapshot")
		}
		if liftedPayload, err = ser.Marshal(snap.Full()); err != nil {
			return b.serializeFailed(c.inst.id, err, "serialize lifted state")
		}
	}
	return b.post(protocol.NewInit(c.inst.id, payload, liftedPayload, c.inst.name, ""))
}

// Subscribe registers fn for monitor commands and returns a func removing
// it.
func (c *Connection) Subscribe(fn Listener) func() {
	return c.bridge.Listen(c.inst.id, fn)
}

// Unsubscribe drops every listener of the connection.
func (c *Connection) Unsubscribe() {
	c.bridge.Unsubscribe(c.inst.id)
}

// Send reports an action and the state it produced. An absent or empty
// action is ignored; a string becomes {type: s}.
func (c *Connection) Send(action, state ir.Value) {
	obj, ok := connectionAction(action)
	if !ok {
		return
	}
	c.bridge.observe(c.inst, obj, orNull(state))
}

// SendBatch reports actions that ran back to back and the one state they
// produced. Each action is recorded on its own; in ModeRelay they go out
// together as a single ACTION. Entries Send would ignore are skipped.
func (c *Connection) SendBatch(actions []ir.Value, state ir.Value) {
	objs := make([]ir.Object, 0, len(actions))
	for _, a := range actions {
		if obj, ok := connectionAction(a); ok {
			objs = append(objs, obj)
		}
	}
	if len(objs) == 0 {
		return
	}
	c.bridge.observeBatch(c.inst, objs, orNull(state))
}

func connectionAction(action ir.Value) (ir.Object, bool) {
	switch a := action.(type) {
	case ir.String:
		if a == "" {
			return nil, false
		}
		return ir.NewAction(string(a)), true
	case ir.Object:
		return a, true
	default:
		return nil, false
	}
}

// Error reports a failure to the monitor. Outside ModeRelay it is only
// logged.
func (c *Connection) Error(payload string) error {
	b := c.bridge
	b.logger.Warn("connection reported an error", "instance_id", c.inst.id, "payload", payload)
	return b.post(protocol.NewError(c.inst.id, payload, ""))
}

// Send reports a single action ad hoc, without registering anything. A
// string action becomes {type: s}; an absent or untyped one becomes
// {type: "update"}. It returns the instance id the report was made under,
// allocated when raw has none.
func (b *Bridge) Send(action, state ir.Value, raw *config.Config) int {
	cfg, x := b.normalizer.Normalize(raw)
	inst := &instance{
		id:   cfg.InstanceID,
		name: cfg.Name,
		conn: observe.ConnectionGeneric,
		cfg:  cfg,
		x:    x,
	}
	b.observe(inst, ir.CoerceAction(action), orNull(state))
	return inst.id
}

// Compose returns an enhancer that instruments the store and then applies
// enhancers right to left around it. The instance id is allocated once,
// when the composed enhancer is applied.
func (b *Bridge) Compose(raw *config.Config, enhancers ...Enhancer) Enhancer {
	return func(next StoreCreator) StoreCreator {
		cfg := raw.Clone()
		cfg.InstanceID = b.registry.IDs().Allocate(cfg.InstanceID)
		creator := b.Enhancer(cfg)(next)
		for i := len(enhancers) - 1; i >= 0; i-- {
			creator = enhancers[i](creator)
		}
		return creator
	}
}

func orNull(v ir.Value) ir.Value {
	if v == nil {
		return ir.Null{}
	}
	return v
}
