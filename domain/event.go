package domain

import "time"

const (
	SubjectSTKPushRequested   = "payments.stkpush.requested"
	SubjectSTKPushFailed      = "payments.stkpush.failed"
	SubjectClearanceSubmitted = "clearance.application.submitted"
)

// Event is a fire-and-forget notification published after a state change.
type Event struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}
