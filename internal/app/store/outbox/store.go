package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/trackhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNoPending is returned by ClaimPending when the queue is empty.
	ErrNoPending = errors.New("no pending outbox events")
	// ErrEventNotFound is returned when an event ID matches nothing.
	ErrEventNotFound = errors.New("outbox event not found")
)

// MaxAttempts is the delivery attempt cap. An event that fails this
// many times is parked as failed and left for operator inspection.
const MaxAttempts = 5

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("outbox_events")}
}

// Append queues a notification event. Called inside the same request
// that mutates the bug, so the event is durable before the API responds.
func (s *Store) Append(ctx context.Context, ev models.OutboxEvent) (models.OutboxEvent, error) {
	ev.ID = primitive.NewObjectID()
	ev.Status = models.OutboxPending
	ev.Attempts = 0
	ev.LastError = ""
	ev.SentAt = nil

	now := time.Now().UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, ev); err != nil {
		return models.OutboxEvent{}, err
	}
	return ev, nil
}

// StaleClaimAfter is how long a claimed event may sit in the sending
// state before it is treated as abandoned by a crashed dispatcher and
// becomes claimable again.
const StaleClaimAfter = 5 * time.Minute

// ClaimPending atomically claims the oldest deliverable event, moving
// it to the sending state and bumping its attempt count. The status
// change keeps a second dispatcher from picking up the same event; the
// attempt bump means a crash mid-delivery still counts against the cap.
func (s *Store) ClaimPending(ctx context.Context) (*models.OutboxEvent, error) {
	now := time.Now().UTC()
	var ev models.OutboxEvent
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"$or": []bson.M{
			{"status": models.OutboxPending},
			{"status": models.OutboxSending, "updated_at": bson.M{"$lt": now.Add(-StaleClaimAfter)}},
		}},
		bson.M{
			"$inc": bson.M{"attempts": 1},
			"$set": bson.M{"status": models.OutboxSending, "updated_at": now},
		},
		options.FindOneAndUpdate().
			SetSort(bson.D{{Key: "created_at", Value: 1}}).
			SetReturnDocument(options.After)).Decode(&ev)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNoPending
		}
		return nil, err
	}
	return &ev, nil
}

// MarkSent records a successful delivery.
func (s *Store) MarkSent(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now().UTC()
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":     models.OutboxSent,
		"sent_at":    now,
		"updated_at": now,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrEventNotFound
	}
	return nil
}

// MarkFailed records a delivery failure. Events under the attempt cap
// go back to pending for retry; at the cap they are parked as failed.
func (s *Store) MarkFailed(ctx context.Context, id primitive.ObjectID, deliveryErr error) error {
	ev, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	status := models.OutboxPending
	if ev.Attempts >= MaxAttempts {
		status = models.OutboxFailed
	}

	msg := ""
	if deliveryErr != nil {
		msg = deliveryErr.Error()
	}

	_, err = s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":     status,
		"last_error": msg,
		"updated_at": time.Now().UTC(),
	}})
	return err
}

// GetByID loads an event by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.OutboxEvent, error) {
	var ev models.OutboxEvent
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&ev); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// CountPending returns the number of events awaiting delivery.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"status": models.OutboxPending})
}

// PurgeSentBefore deletes delivered events older than the cutoff.
// Failed events are kept for inspection.
func (s *Store) PurgeSentBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{
		"status":  models.OutboxSent,
		"sent_at": bson.M{"$lt": before},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
