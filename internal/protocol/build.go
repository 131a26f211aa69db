package protocol

import "strings"

// Constructors never fail: payloads arrive already serialized.

// NewInitInstance builds an INIT_INSTANCE envelope.
func NewInitInstance(instanceID int) *InitInstance {
	return &InitInstance{Header: header(instanceID)}
}

// NewInit builds an INIT envelope. liftedState, name and action may be empty.
func NewInit(instanceID int, state, liftedState, name, action string) *Init {
	return &Init{
		Header:      header(instanceID),
		Payload:     state,
		LiftedState: liftedState,
		Name:        name,
		Action:      action,
	}
}

// NewAction builds an ACTION envelope. nextActionID 0 is omitted on the wire.
// isExcess is set once nextActionID passes maxAge so the monitor drops its
// oldest entry.
func NewAction(instanceID int, state, action string, maxAge, nextActionID int) *Action {
	return &Action{
		Header:       header(instanceID),
		Payload:      state,
		Action:       action,
		MaxAge:       maxAge,
		NextActionID: nextActionID,
		IsExcess:     maxAge > 0 && nextActionID > maxAge,
	}
}

// NewActionBatch builds an ACTION envelope for actions that ran back to back
// and share one resulting state. Each entry is an already serialized
// PerformAction; the batch goes on the wire as a JSON array in the given order.
func NewActionBatch(instanceID int, state string, actions []string, maxAge, nextActionID int) *Action {
	batch := "[" + strings.Join(actions, ",") + "]"
	return NewAction(instanceID, state, batch, maxAge, nextActionID)
}

// NewState builds a STATE envelope from a prepared snapshot.
func NewState(instanceID int, snap *Snapshot, lib *LibConfig) *State {
	return &State{
		Header:    header(instanceID),
		Payload:   snap.Full(),
		LibConfig: lib,
	}
}

// NewPartialState builds a PARTIAL_STATE envelope from a prepared snapshot.
func NewPartialState(instanceID int, snap *Snapshot, maxAge int) *PartialState {
	return &PartialState{
		Header:  header(instanceID),
		Payload: snap.Partial(),
		MaxAge:  maxAge,
	}
}

// NewExport builds an EXPORT envelope from serialized actions.
func NewExport(instanceID int, actions, committedState string) *Export {
	return &Export{
		Header:         header(instanceID),
		Payload:        actions,
		CommittedState: committedState,
	}
}

// NewLifted builds a LIFTED status ping.
func NewLifted(instanceID int, isPaused *bool) *Lifted {
	return &Lifted{
		Header:      header(instanceID),
		LiftedState: LiftedStatus{IsPaused: isPaused},
	}
}

// NewError builds an ERROR envelope.
func NewError(instanceID int, payload, message string) *ErrorMessage {
	return &ErrorMessage{
		Header:  header(instanceID),
		Payload: payload,
		Message: message,
	}
}

// NewGetReport builds a GET_REPORT envelope.
func NewGetReport(instanceID int, reportID string) *GetReport {
	return &GetReport{Header: header(instanceID), Payload: reportID}
}

// NewStop builds a STOP envelope.
func NewStop(instanceID int) *Stop {
	return &Stop{Header: header(instanceID)}
}

// NewOpen builds an OPEN envelope.
func NewOpen(instanceID int, position Position) *Open {
	return &Open{Header: header(instanceID), Position: position}
}

// NewDisconnect builds a DISCONNECT envelope.
func NewDisconnect(instanceID int) *Disconnect {
	return &Disconnect{Header: header(instanceID)}
}
