package websocket

import "github.com/talentgrid/assessment-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionNavigate Action = "navigate"
	ActionEdit     Action = "edit"
	ActionRun      Action = "run"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload is the single client message shape. Index and Source are
// read only by the actions that need them.
type RequestPayload struct {
	Action Action `json:"action"`
	Index  *int   `json:"index,omitempty"`
	Source string `json:"source,omitempty"`
}

// MaxSourceBytes bounds an edited answer.
const MaxSourceBytes = 64 << 10

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState     Event = "state"
	EventSaved     Event = "saved"
	EventTick      Event = Event(model.SessionEventTick)
	EventVerdicts  Event = Event(model.SessionEventVerdicts)
	EventSubmitted Event = Event(model.SessionEventSubmitted)
	EventPong      Event = "pong"
	EventError     Event = "error"
)

// ResponsePayload wraps every server message.
type ResponsePayload struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}
