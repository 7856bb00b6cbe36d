package audit

import "time"

// Action names an auditable authentication event.
type Action string

const (
	ActionLoginSuccess   Action = "login.success"
	ActionLoginDenied    Action = "login.denied"
	ActionAccountCreated Action = "account.created"
	ActionLogout         Action = "logout"
)

// Event is emitted from the login flow to capture key actions. Keep it
// transport-agnostic so sinks can fan out. Detail never contains raw provider
// payloads, only the categorized summary.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	AccountID string    `json:"account_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Client    string    `json:"client,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}
