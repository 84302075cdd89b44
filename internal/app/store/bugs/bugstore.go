package bugs

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/dalemusser/trackhub/internal/app/system/normalize"
	"github.com/dalemusser/trackhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrBugNotFound is returned when a lookup matches no bug.
	ErrBugNotFound = errors.New("bug not found")
	errBadPriority = errors.New(`priority must be "low"|"medium"|"high"|"critical"`)
	errBadStatus   = errors.New(`status must be "open"|"in-progress"|"resolved"|"closed"|"pending"`)
)

// Default and maximum page sizes for List.
const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("bugs")}
}

// Create inserts a new bug. Priority defaults to medium and status to
// open when unset.
func (s *Store) Create(ctx context.Context, b models.Bug) (models.Bug, error) {
	b.ID = primitive.NewObjectID()
	if b.Priority == "" {
		b.Priority = models.PriorityMedium
	}
	b.Priority = normalize.Priority(b.Priority)
	if !models.ValidPriority(b.Priority) {
		return models.Bug{}, errBadPriority
	}
	if b.Status == "" {
		b.Status = models.StatusOpen
	}
	b.Status = normalize.Status(b.Status)
	if !models.ValidStatus(b.Status) {
		return models.Bug{}, errBadStatus
	}
	if b.History == nil {
		b.History = []models.HistoryEntry{}
	}
	if b.Comments == nil {
		b.Comments = []models.Comment{}
	}

	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, b); err != nil {
		return models.Bug{}, err
	}
	return b, nil
}

// GetByID loads a bug by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Bug, error) {
	var b models.Bug
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&b); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrBugNotFound
		}
		return nil, err
	}
	return &b, nil
}

// Update holds the bug fields an update request may change. Nil
// pointers mean "leave unchanged". StatusComment, when set, is attached
// to the history entry recording a status change.
type Update struct {
	Title         *string
	Description   *string
	Priority      *string
	Status        *string
	StatusComment string
}

// ApplyUpdate diffs the requested changes against the current document
// and appends one history entry per field that actually changed.
// Fields set to their current value produce neither a write nor a
// history entry. Returns the updated bug and the names of changed
// fields.
func (s *Store) ApplyUpdate(ctx context.Context, id, actorID primitive.ObjectID, upd Update) (*models.Bug, []string, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	set := bson.M{}
	var history []models.HistoryEntry
	var changed []string

	record := func(field string, oldVal, newVal any, comment string) {
		history = append(history, models.HistoryEntry{
			Field:     field,
			OldValue:  oldVal,
			NewValue:  newVal,
			ChangedBy: actorID,
			ChangedAt: now,
			Comment:   comment,
		})
		changed = append(changed, field)
	}

	if upd.Title != nil && *upd.Title != current.Title {
		set["title"] = *upd.Title
		record("title", current.Title, *upd.Title, "")
	}
	if upd.Description != nil && *upd.Description != current.Description {
		set["description"] = *upd.Description
		record("description", current.Description, *upd.Description, "")
	}
	if upd.Priority != nil {
		p := normalize.Priority(*upd.Priority)
		if !models.ValidPriority(p) {
			return nil, nil, errBadPriority
		}
		if p != current.Priority {
			set["priority"] = p
			record("priority", current.Priority, p, "")
		}
	}
	if upd.Status != nil {
		st := normalize.Status(*upd.Status)
		if !models.ValidStatus(st) {
			return nil, nil, errBadStatus
		}
		// Any status may move to any other status.
		if st != current.Status {
			set["status"] = st
			record("status", current.Status, st, upd.StatusComment)
		}
	}

	if len(set) == 0 {
		return current, nil, nil
	}
	set["updated_at"] = now

	var b models.Bug
	err = s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set":  set,
			"$push": bson.M{"history": bson.M{"$each": history}},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&b)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil, ErrBugNotFound
		}
		return nil, nil, err
	}
	return &b, changed, nil
}

// Assign sets or clears the assignee, recording the change in history.
// assigneeID == nil unassigns the bug. Reports whether the assignee
// actually changed.
func (s *Store) Assign(ctx context.Context, id, actorID primitive.ObjectID, assigneeID *primitive.ObjectID) (*models.Bug, bool, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}

	same := (current.AssignedTo == nil && assigneeID == nil) ||
		(current.AssignedTo != nil && assigneeID != nil && *current.AssignedTo == *assigneeID)
	if same {
		return current, false, nil
	}

	now := time.Now().UTC()
	var oldVal, newVal any
	if current.AssignedTo != nil {
		oldVal = current.AssignedTo.Hex()
	}
	if assigneeID != nil {
		newVal = assigneeID.Hex()
	}

	update := bson.M{
		"$push": bson.M{"history": models.HistoryEntry{
			Field:     "assignedTo",
			OldValue:  oldVal,
			NewValue:  newVal,
			ChangedBy: actorID,
			ChangedAt: now,
		}},
	}
	if assigneeID == nil {
		update["$unset"] = bson.M{"assigned_to": ""}
		update["$set"] = bson.M{"updated_at": now}
	} else {
		update["$set"] = bson.M{"assigned_to": assigneeID, "updated_at": now}
	}

	var b models.Bug
	err = s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&b)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, ErrBugNotFound
		}
		return nil, false, err
	}
	return &b, true, nil
}

// AddComment appends a comment to the bug.
func (s *Store) AddComment(ctx context.Context, id, authorID primitive.ObjectID, content string) (models.Comment, error) {
	comment := models.Comment{
		ID:        primitive.NewObjectID(),
		Author:    authorID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$push": bson.M{"comments": comment},
		"$set":  bson.M{"updated_at": comment.CreatedAt},
	})
	if err != nil {
		return models.Comment{}, err
	}
	if res.MatchedCount == 0 {
		return models.Comment{}, ErrBugNotFound
	}
	return comment, nil
}

// Delete removes a bug.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrBugNotFound
	}
	return nil
}

// DeleteByProject removes all bugs in a project and returns the count.
// Used by the project cascade delete; ctx may be a session context when
// the deployment supports transactions.
func (s *Store) DeleteByProject(ctx context.Context, projectID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"project": projectID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// CountByProject returns the number of bugs in a project.
func (s *Store) CountByProject(ctx context.Context, projectID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"project": projectID})
}

// ListFilter describes a bug listing query.
type ListFilter struct {
	Project    primitive.ObjectID
	Status     string
	Priority   string
	AssignedTo *primitive.ObjectID
	ReportedBy *primitive.ObjectID
	StartDate  *time.Time
	EndDate    *time.Time
	SearchText string
	SortBy     string // createdAt | priority | status | title
	SortOrder  string // asc | desc
	Limit      int64
	Skip       int64
}

// sortFields maps API sort keys to stored field names. Unknown keys
// fall back to creation time.
var sortFields = map[string]string{
	"createdAt": "created_at",
	"priority":  "priority",
	"status":    "status",
	"title":     "title",
}

func (f ListFilter) query() bson.M {
	q := bson.M{"project": f.Project}
	if f.Status != "" {
		q["status"] = normalize.Status(f.Status)
	}
	if f.Priority != "" {
		q["priority"] = normalize.Priority(f.Priority)
	}
	if f.AssignedTo != nil {
		q["assigned_to"] = f.AssignedTo
	}
	if f.ReportedBy != nil {
		q["reported_by"] = f.ReportedBy
	}
	if f.StartDate != nil || f.EndDate != nil {
		rng := bson.M{}
		if f.StartDate != nil {
			rng["$gte"] = *f.StartDate
		}
		if f.EndDate != nil {
			rng["$lte"] = *f.EndDate
		}
		q["created_at"] = rng
	}
	if f.SearchText != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.SearchText), Options: "i"}
		q["$or"] = []bson.M{
			{"title": re},
			{"description": re},
		}
	}
	return q
}

// List returns one page of bugs matching the filter plus the total
// match count. The page size is capped at MaxListLimit and defaults to
// DefaultListLimit.
func (s *Store) List(ctx context.Context, f ListFilter) ([]models.Bug, int64, error) {
	query := f.query()

	total, err := s.c.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	sortField, ok := sortFields[f.SortBy]
	if !ok {
		sortField = "created_at"
	}
	order := -1 // newest first by default
	if f.SortOrder == "asc" {
		order = 1
	}

	opts := options.Find().
		SetSort(bson.D{{Key: sortField, Value: order}, {Key: "_id", Value: order}}).
		SetLimit(limit).
		SetSkip(f.Skip)

	cursor, err := s.c.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var list []models.Bug
	if err := cursor.All(ctx, &list); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}
