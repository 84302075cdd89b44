// internal/domain/models/bug.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Bug priorities.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Bug statuses. Transitions between statuses are unrestricted; the
// history array records every change so workflows stay auditable.
const (
	StatusOpen       = "open"
	StatusInProgress = "in-progress"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
	StatusPending    = "pending"
)

// ValidPriority reports whether p is a recognized bug priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ValidStatus reports whether s is a recognized bug status.
func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed, StatusPending:
		return true
	}
	return false
}

// HistoryEntry records one field change on a bug. Entries are produced
// only by the update path, never accepted from clients, and the array
// is append-only.
//
// OldValue/NewValue are `any` because tracked fields have mixed types
// (strings for status/priority/title, ObjectIDs for assignee).
type HistoryEntry struct {
	Field     string             `bson:"field" json:"field"`
	OldValue  any                `bson:"old_value" json:"old_value"`
	NewValue  any                `bson:"new_value" json:"new_value"`
	ChangedBy primitive.ObjectID `bson:"changed_by" json:"changed_by"`
	ChangedAt time.Time          `bson:"changed_at" json:"changed_at"`
	Comment   string             `bson:"comment,omitempty" json:"comment,omitempty"` // status changes only
}

// Comment is one entry in a bug's comments array. Append-only.
type Comment struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	Author    primitive.ObjectID `bson:"author" json:"author"`
	Content   string             `bson:"content" json:"content"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// Bug is a tracked issue inside a project.
//
// NOTE:
//   - ReportedBy and Project are immutable after creation.
//   - History and Comments are append-only arrays embedded on the
//     bug document so a single read returns the full record.
type Bug struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Title       string              `bson:"title" json:"title"`
	Description string              `bson:"description" json:"description"`
	Priority    string              `bson:"priority" json:"priority"` // low | medium | high | critical
	Status      string              `bson:"status" json:"status"`     // open | in-progress | resolved | closed | pending
	AssignedTo  *primitive.ObjectID `bson:"assigned_to,omitempty" json:"assigned_to,omitempty"`
	ReportedBy  primitive.ObjectID  `bson:"reported_by" json:"reported_by"`
	Project     primitive.ObjectID  `bson:"project" json:"project"`

	History  []HistoryEntry `bson:"history" json:"history"`
	Comments []Comment      `bson:"comments" json:"comments"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
