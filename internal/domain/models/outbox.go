// internal/domain/models/outbox.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Outbox event statuses. Sending marks an event claimed by a
// dispatcher; it returns to pending (or parks as failed) when the
// delivery attempt is recorded.
const (
	OutboxPending = "pending"
	OutboxSending = "sending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// OutboxEvent is a queued notification produced by a bug mutation.
// Mutations append events in the same request; a background dispatcher
// claims pending events and delivers them, so delivery failures never
// affect the API response.
type OutboxEvent struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BugID     primitive.ObjectID `bson:"bug_id" json:"bug_id"`
	ProjectID primitive.ObjectID `bson:"project_id" json:"project_id"`
	Recipient string             `bson:"recipient" json:"recipient"` // email address
	Subject   string             `bson:"subject" json:"subject"`
	Body      string             `bson:"body" json:"body"`

	Status    string     `bson:"status" json:"status"` // pending | sending | sent | failed
	Attempts  int        `bson:"attempts" json:"attempts"`
	LastError string     `bson:"last_error,omitempty" json:"last_error,omitempty"`
	SentAt    *time.Time `bson:"sent_at,omitempty" json:"sent_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
