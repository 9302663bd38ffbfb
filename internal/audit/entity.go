// Package audit records the terminal decisions of every flow.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	LoginAccepted          EventType = "login.accepted"
	LoginSkipped           EventType = "login.skipped"
	LoginFailed            EventType = "login.failed"
	ConsentAccepted        EventType = "consent.accepted"
	ConsentRejected        EventType = "consent.rejected"
	LogoutAccepted         EventType = "logout.accepted"
	PasswordResetRequested EventType = "password_reset.requested"
	PasswordResetCompleted EventType = "password_reset.completed"
)

type Event struct {
	ID            string         `json:"id" bson:"_id"`
	Type          EventType      `json:"type" bson:"type"`
	Challenge     string         `json:"challenge,omitempty" bson:"challenge,omitempty"`
	Subject       string         `json:"subject,omitempty" bson:"subject,omitempty"`
	ClientID      string         `json:"clientId,omitempty" bson:"client_id,omitempty"`
	TransactionID string         `json:"transactionId,omitempty" bson:"transaction_id,omitempty"`
	Time          time.Time      `json:"time" bson:"time"`
	Detail        map[string]any `json:"detail,omitempty" bson:"detail,omitempty"`
}

// NewEvent stamps an id and the current time.
func NewEvent(t EventType) Event {
	return Event{ID: uuid.NewString(), Type: t, Time: time.Now().UTC()}
}

// Publisher delivers events to a sink.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
