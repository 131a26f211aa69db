package protocol

// Source marks messages originating from the bridge. Receivers drop any
// message on a shared channel whose source differs.
const Source = "@devtools-page"

// Tag discriminates envelope variants.
type Tag string

const (
	TagInitInstance Tag = "INIT_INSTANCE"
	TagInit         Tag = "INIT"
	TagAction       Tag = "ACTION"
	TagState        Tag = "STATE"
	TagPartialState Tag = "PARTIAL_STATE"
	TagExport       Tag = "EXPORT"
	TagLifted       Tag = "LIFTED"
	TagError        Tag = "ERROR"
	TagGetReport    Tag = "GET_REPORT"
	TagStop         Tag = "STOP"
	TagOpen         Tag = "OPEN"
	TagDisconnect   Tag = "DISCONNECT"
)

// Tags is the closed set of envelope tags, in declaration order.
var Tags = []Tag{
	TagInitInstance,
	TagInit,
	TagAction,
	TagState,
	TagPartialState,
	TagExport,
	TagLifted,
	TagError,
	TagGetReport,
	TagStop,
	TagOpen,
	TagDisconnect,
}

// Envelope is one protocol message. Only the pointer types declared in this
// file implement it: each carries its own envelope marker, so embedding
// Header elsewhere does not.
type Envelope interface {
	Tag() Tag
	Instance() int
	envelope()
}

// Header is carried by every variant.
type Header struct {
	Source     string `json:"source"`
	InstanceID int    `json:"instanceId"`
}

// Instance returns the instance id the envelope belongs to.
func (h Header) Instance() int { return h.InstanceID }

func header(instanceID int) Header {
	return Header{Source: Source, InstanceID: instanceID}
}

// InitInstance announces that an instance exists. Sent once at registration.
type InitInstance struct {
	Header
}

func (*InitInstance) Tag() Tag { return TagInitInstance }
func (*InitInstance) envelope() {}

// Init carries the initial state of a connection.
type Init struct {
	Header
	Payload     string `json:"payload"`
	LiftedState string `json:"liftedState,omitempty"`
	Name        string `json:"name,omitempty"`
	Action      string `json:"action,omitempty"`
}

func (*Init) Tag() Tag { return TagInit }
func (*Init) envelope() {}

// Action relays one dispatched action, or a batch sharing one resulting
// state, together with that state.
type Action struct {
	Header
	Payload      string `json:"payload"`
	Action       string `json:"action"`
	MaxAge       int    `json:"maxAge"`
	NextActionID int    `json:"nextActionId,omitempty"`
	IsExcess     bool   `json:"isExcess,omitempty"`
}

func (*Action) Tag() Tag { return TagAction }
func (*Action) envelope() {}

// State carries a full lifted-state snapshot.
type State struct {
	Header
	Payload   SerializedLiftedState `json:"payload"`
	LibConfig *LibConfig            `json:"libConfig,omitempty"`
}

func (*State) Tag() Tag { return TagState }
func (*State) envelope() {}

// PartialState carries the part of a lifted state a monitor is missing.
type PartialState struct {
	Header
	Payload PartialPayload `json:"payload"`
	MaxAge  int            `json:"maxAge"`
}

func (*PartialState) Tag() Tag { return TagPartialState }
func (*PartialState) envelope() {}

// Export carries the staged action history for saving.
type Export struct {
	Header
	Payload        string `json:"payload"`
	CommittedState string `json:"committedState,omitempty"`
}

func (*Export) Tag() Tag { return TagExport }
func (*Export) envelope() {}

// LiftedStatus is the lightweight status carried by Lifted.
type LiftedStatus struct {
	IsPaused *bool `json:"isPaused,omitempty"`
}

// Lifted is a status ping.
type Lifted struct {
	Header
	LiftedState LiftedStatus `json:"liftedState"`
}

func (*Lifted) Tag() Tag { return TagLifted }
func (*Lifted) envelope() {}

// ErrorMessage surfaces a failure in a collaborator (store construction,
// serialization, transport) to the monitor. It is reported once, never
// retried.
type ErrorMessage struct {
	Header
	Payload string `json:"payload"`
	Message string `json:"message,omitempty"`
}

func (*ErrorMessage) Tag() Tag { return TagError }
func (*ErrorMessage) envelope() {}

// GetReport asks the monitor to load a saved report.
type GetReport struct {
	Header
	Payload string `json:"payload"`
}

func (*GetReport) Tag() Tag { return TagGetReport }
func (*GetReport) envelope() {}

// Stop tells the monitor the instance stopped relaying.
type Stop struct {
	Header
}

func (*Stop) Tag() Tag { return TagStop }
func (*Stop) envelope() {}

// Position hints where the monitor window should open.
type Position string

const (
	PositionLeft   Position = "left"
	PositionRight  Position = "right"
	PositionBottom Position = "bottom"
	PositionPanel  Position = "panel"
	PositionRemote Position = "remote"
	PositionWindow Position = "window"
)

// Open asks for the monitor to be opened.
type Open struct {
	Header
	Position Position `json:"position,omitempty"`
}

func (*Open) Tag() Tag { return TagOpen }
func (*Open) envelope() {}

// Disconnect ends a bridge session. It is consumed by the transport and
// never forwarded to monitors.
type Disconnect struct {
	Header
}

func (*Disconnect) Tag() Tag { return TagDisconnect }
func (*Disconnect) envelope() {}

// LibConfig describes the bridged library to the monitor.
type LibConfig struct {
	Name           string          `json:"name,omitempty"`
	ActionCreators string          `json:"actionCreators,omitempty"`
	Features       map[string]bool `json:"features,omitempty"`
	Serialize      bool            `json:"serialize"`
	Type           string          `json:"type,omitempty"`
}
