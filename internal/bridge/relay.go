package bridge

import (
	"errors"
	"fmt"

	"github.com/roach88/storebridge/internal/config"
	"github.com/roach88/storebridge/internal/ir"
	"github.com/roach88/storebridge/internal/protocol"
)

// announce posts INIT_INSTANCE for a newly registered store.
func (b *Bridge) announce(inst *instance) {
	if b.mode != ModeRelay {
		return
	}
	_ = b.post(protocol.NewInitInstance(inst.id))
}

// relayAction posts one ACTION envelope unless the instance is stopped, the
// action is filtered or the predicate rejects it.
func (b *Bridge) relayAction(inst *instance, action ir.Object, state ir.Value, nextActionID int) {
	if b.registry.isStopped(inst.id) {
		return
	}
	if !inst.x.Observable(state, action) {
		actionType, _ := ir.ActionType(action)
		b.logger.Debug("action not relayed", "instance_id", inst.id, "action_type", actionType)
		return
	}

	actionID := max(nextActionID-1, 0)
	ser := inst.cfg.Serializer()
	payload, err := ser.Marshal(inst.x.SanitizeState(state, actionID))
	if err != nil {
		_ = b.serializeFailed(inst.id, err, "serialize state")
		return
	}
	perform := protocol.NewPerformAction(inst.x.SanitizeAction(action, actionID), b.now())
	encoded, err := ser.Marshal(perform)
	if err != nil {
		_ = b.serializeFailed(inst.id, err, "serialize action")
		return
	}

	maxAge := config.ResolveMaxAge(inst.cfg, b.options)
	_ = b.post(protocol.NewAction(inst.id, payload, encoded, maxAge, nextActionID))
}

// relayBatch posts one ACTION carrying every observable action of the batch
// in order. The last action's id sanitizes the shared state.
func (b *Bridge) relayBatch(inst *instance, actions []ir.Object, state ir.Value, nextActionID int) {
	if b.registry.isStopped(inst.id) {
		return
	}
	ser := inst.cfg.Serializer()
	first := nextActionID - len(actions)
	encoded := make([]string, 0, len(actions))
	for i, action := range actions {
		if !inst.x.Observable(state, action) {
			continue
		}
		actionID := max(first+i, 0)
		entry, err := ser.Marshal(protocol.NewPerformAction(inst.x.SanitizeAction(action, actionID), b.now()))
		if err != nil {
			_ = b.serializeFailed(inst.id, err, "serialize action")
			return
		}
		encoded = append(encoded, entry)
	}
	if len(encoded) == 0 {
		b.logger.Debug("batch not relayed", "instance_id", inst.id, "size", len(actions))
		return
	}

	payload, err := ser.Marshal(inst.x.SanitizeState(state, max(nextActionID-1, 0)))
	if err != nil {
		_ = b.serializeFailed(inst.id, err, "serialize state")
		return
	}
	maxAge := config.ResolveMaxAge(inst.cfg, b.options)
	_ = b.post(protocol.NewActionBatch(inst.id, payload, encoded, maxAge, nextActionID))
}

// relayState posts the instance's full state: a STATE snapshot for stores
// with a lifted history, otherwise an INIT carrying the current state. A
// paused history is followed by a LIFTED ping so the monitor shows it.
func (b *Bridge) relayState(inst *instance, lib *protocol.LibConfig) error {
	ser := inst.cfg.Serializer()
	if ls, ok := inst.store.(LiftedStore); ok {
		lifted := ls.LiftedState()
		snap, err := protocol.PrepareSnapshot(lifted, ser)
		if err != nil {
			return b.serializeFailed(inst.id, err, "prepare snapshot")
		}
		if err := b.post(protocol.NewState(inst.id, snap, lib)); err != nil {
			return err
		}
		b.registry.setSynced(inst.id, true)
		if lifted.IsPaused {
			paused := true
			return b.post(protocol.NewLifted(inst.id, &paused))
		}
		return nil
	}

	payload, err := ser.Marshal(inst.x.SanitizeState(b.currentState(inst), 0))
	if err != nil {
		return b.serializeFailed(inst.id, err, "serialize state")
	}
	return b.post(protocol.NewInit(inst.id, payload, "", inst.name, ""))
}

// relayUpdate answers UPDATE. Once the monitor holds a full snapshot of a
// lifted history it gets a PARTIAL_STATE, which leaves out the skipped ids
// and the lock and pause flags.
func (b *Bridge) relayUpdate(inst *instance) error {
	ls, ok := inst.store.(LiftedStore)
	if !ok || !b.registry.isSynced(inst.id) {
		return b.relayState(inst, nil)
	}
	snap, err := protocol.PrepareSnapshot(ls.LiftedState(), inst.cfg.Serializer())
	if err != nil {
		return b.serializeFailed(inst.id, err, "prepare snapshot")
	}
	maxAge := config.ResolveMaxAge(inst.cfg, b.options)
	return b.post(protocol.NewPartialState(inst.id, snap, maxAge))
}

func (b *Bridge) relayExport(inst *instance) error {
	ls, ok := inst.store.(LiftedStore)
	if !ok {
		b.logger.Debug("export needs a store with history", "instance_id", inst.id)
		return nil
	}
	snap, err := protocol.PrepareSnapshot(ls.LiftedState(), inst.cfg.Serializer())
	if err != nil {
		return b.serializeFailed(inst.id, err, "prepare snapshot")
	}
	actions, err := snap.Exported()
	if err != nil {
		return b.serializeFailed(inst.id, err, "export actions")
	}
	return b.post(protocol.NewExport(inst.id, actions, snap.Full().CommittedState))
}

func (b *Bridge) currentState(inst *instance) ir.Value {
	if inst.store != nil {
		return inst.store.State()
	}
	if obs, ok := b.registry.Cache().Get(inst.id); ok && obs.State != nil {
		return obs.State
	}
	return ir.Null{}
}

func (b *Bridge) serializeFailed(id int, err error, what string) error {
	berr := newError(ErrCodeSerializeFailed, id, err, "%s", what)
	_ = b.ReportError(id, berr)
	return berr
}

// post hands env to the transport. Failures are logged and returned as
// TRANSPORT_FAILED; nothing is retried.
func (b *Bridge) post(env protocol.Envelope) error {
	if b.mode != ModeRelay || b.transport == nil {
		return nil
	}
	if err := b.transport.Post(env); err != nil {
		b.logger.Warn("envelope not delivered",
			"instance_id", env.Instance(),
			"tag", env.Tag(),
			"error", err,
		)
		return newError(ErrCodeTransportFailed, env.Instance(), err, "post %s", env.Tag())
	}
	return nil
}

// ReportError reports a failure of instance id. It is always logged; in
// ModeRelay one ERROR envelope is posted as well.
func (b *Bridge) ReportError(id int, err error) error {
	if err == nil {
		return nil
	}
	b.logger.Error("instance error", "instance_id", id, "error", err)
	if b.mode != ModeRelay {
		return nil
	}
	var message string
	var be *Error
	if errors.As(err, &be) {
		message = string(be.Code)
	}
	return b.post(protocol.NewError(id, err.Error(), message))
}

// Deliver routes a monitor command to its instance. In ModeRelay the
// built-in commands are handled first; listeners are called in both modes.
func (b *Bridge) Deliver(cmd protocol.Command) error {
	inst, ok := b.registry.lookup(cmd.InstanceID)
	if !ok {
		return fmt.Errorf("deliver %s to %d: %w", cmd.Type, cmd.InstanceID, ErrUnknownInstance)
	}

	var err error
	if b.mode == ModeRelay {
		err = b.handle(inst, cmd)
	}
	for _, fn := range b.registry.listenersFor(inst.id) {
		fn(cmd)
	}
	return err
}

func (b *Bridge) handle(inst *instance, cmd protocol.Command) error {
	switch cmd.Type {
	case protocol.CommandStart:
		b.registry.setStopped(inst.id, false)
		return b.relayState(inst, inst.cfg.LibConfig())
	case protocol.CommandStop:
		b.registry.setStopped(inst.id, true)
		b.registry.setSynced(inst.id, false)
		if !cmd.Failed {
			return b.post(protocol.NewStop(inst.id))
		}
	case protocol.CommandUpdate:
		return b.relayUpdate(inst)
	case protocol.CommandExport:
		return b.relayExport(inst)
	case protocol.CommandAction:
		return b.dispatchRemote(inst, cmd)
	default:
		// DISPATCH and IMPORT drive time travel, which the store owns.
		b.logger.Debug("monitor command not handled", "instance_id", inst.id, "type", cmd.Type)
	}
	return nil
}

// dispatchRemote dispatches an action sent by the monitor through the
// wrapped store, so it is observed like any other dispatch.
func (b *Bridge) dispatchRemote(inst *instance, cmd protocol.Command) error {
	if inst.wrap == nil {
		b.logger.Debug("remote action for a connection without a store", "instance_id", inst.id)
		return nil
	}
	action := ir.CoerceAction(remoteAction(cmd))
	if _, err := inst.wrap.Dispatch(action); err != nil {
		return fmt.Errorf("remote dispatch on instance %d: %w", inst.id, err)
	}
	return nil
}

// remoteAction reads the action of an ACTION command. It is JSON text in
// Action, or in Payload either directly or as a JSON string. Text that is
// not JSON is taken as the action type.
func remoteAction(cmd protocol.Command) ir.Value {
	src := cmd.Action
	if src == "" && len(cmd.Payload) > 0 {
		v, err := ir.UnmarshalValue(cmd.Payload)
		if err != nil {
			return ir.Null{}
		}
		s, ok := v.(ir.String)
		if !ok {
			return v
		}
		src = string(s)
	}
	if v, err := ir.UnmarshalValue([]byte(src)); err == nil {
		return v
	}
	return ir.String(src)
}

// Open asks the monitor to open its window for instance id.
func (b *Bridge) Open(id int, position protocol.Position) error {
	return b.post(protocol.NewOpen(id, position))
}

// RequestReport asks the monitor to load the report reportID for instance
// id.
func (b *Bridge) RequestReport(id int, reportID string) error {
	return b.post(protocol.NewGetReport(id, reportID))
}

// Disconnect ends the monitor session of instance id and drops its
// listeners.
func (b *Bridge) Disconnect(id int) error {
	b.registry.removeListeners(id)
	return b.post(protocol.NewDisconnect(id))
}

// Close disconnects every registered instance.
func (b *Bridge) Close() error {
	var errs []error
	for _, info := range b.registry.Instances() {
		if err := b.Disconnect(info.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
