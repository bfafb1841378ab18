package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeRegistered       Type = "account.registered"
	TypeLogin            Type = "session.login"
	TypeLogout           Type = "session.logout"
	TypePasswordChanged  Type = "password.changed"
	TypePasswordReset    Type = "password.reset"
	TypeProfileUpdated   Type = "account.updated"
	TypeOTPRequested     Type = "otp.requested"
	TypeOTPVerified      Type = "otp.verified"
	TypeFederatedMatched Type = "federated.matched"
	TypeFederatedLinked  Type = "federated.linked"
	TypeFederatedCreated Type = "federated.created"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp string `json:"timestamp"`
	ActorID   string `json:"actor_id,omitempty"` // account email that triggered the event
}

// New stamps an event with a fresh id and the current time.
func New(t Type, actor string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		ActorID:   actor,
	}
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
