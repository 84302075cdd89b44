package outbox_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/trackhub/internal/app/store/outbox"
	"github.com/dalemusser/trackhub/internal/domain/models"
	"github.com/dalemusser/trackhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newEvent(subject string) models.OutboxEvent {
	return models.OutboxEvent{
		BugID:     primitive.NewObjectID(),
		ProjectID: primitive.NewObjectID(),
		Recipient: "dev@example.com",
		Subject:   subject,
		Body:      "You were assigned a bug.",
	}
}

func TestAppend_ForcesPendingState(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := outbox.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ev := newEvent("Assignment")
	ev.Status = models.OutboxSent // callers cannot pre-mark delivery
	ev.Attempts = 9

	saved, err := store.Append(ctx, ev)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if saved.Status != models.OutboxPending {
		t.Errorf("status: got %q, want pending", saved.Status)
	}
	if saved.Attempts != 0 {
		t.Errorf("attempts: got %d, want 0", saved.Attempts)
	}
	if saved.SentAt != nil {
		t.Error("sent_at must start unset")
	}
}

func TestClaimPending_OldestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := outbox.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	first, err := store.Append(ctx, newEvent("first"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := store.Append(ctx, newEvent("second")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	claimed, err := store.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}
	if claimed.ID != first.ID {
		t.Errorf("claimed %q, want the oldest event", claimed.Subject)
	}
	if claimed.Attempts != 1 {
		t.Errorf("attempts after claim: got %d, want 1", claimed.Attempts)
	}
}

func TestClaimPending_ClaimIsExclusive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := outbox.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ev, _ := store.Append(ctx, newEvent("in flight"))

	claimed, err := store.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}
	if claimed.Status != models.OutboxSending {
		t.Errorf("status after claim: got %q, want sending", claimed.Status)
	}

	// A second dispatcher must not get the same event.
	if _, err := store.ClaimPending(ctx); !errors.Is(err, outbox.ErrNoPending) {
		t.Errorf("claimed event must not be claimable again, got %v", err)
	}

	// A claim that sat in sending past the stale window is treated as
	// abandoned by a crashed worker and becomes claimable again.
	stale := time.Now().UTC().Add(-outbox.StaleClaimAfter - time.Minute)
	if _, err := db.Collection("outbox_events").UpdateOne(ctx,
		bson.M{"_id": ev.ID},
		bson.M{"$set": bson.M{"updated_at": stale}}); err != nil {
		t.Fatalf("backdating claim failed: %v", err)
	}

	reclaimed, err := store.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if reclaimed.ID != ev.ID {
		t.Errorf("reclaimed wrong event")
	}
	if reclaimed.Attempts != 2 {
		t.Errorf("attempts after reclaim: got %d, want 2", reclaimed.Attempts)
	}
}

func TestClaimPending_EmptyQueue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := outbox.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.ClaimPending(ctx); !errors.Is(err, outbox.ErrNoPending) {
		t.Errorf("expected ErrNoPending, got %v", err)
	}
}

func TestMarkSent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := outbox.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ev, _ := store.Append(ctx, newEvent("deliver me"))
	if _, err := store.ClaimPending(ctx); err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}
	if err := store.MarkSent(ctx, ev.ID); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}

	after, err := store.GetByID(ctx, ev.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if after.Status != models.OutboxSent {
		t.Errorf("status: got %q, want sent", after.Status)
	}
	if after.SentAt == nil {
		t.Error("expected sent_at set")
	}

	if _, err := store.ClaimPending(ctx); !errors.Is(err, outbox.ErrNoPending) {
		t.Errorf("sent event must not be claimable, got %v", err)
	}
}

func TestMarkFailed_RetriesThenParks(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := outbox.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ev, _ := store.Append(ctx, newEvent("flaky"))

	for i := 0; i < outbox.MaxAttempts; i++ {
		claimed, err := store.ClaimPending(ctx)
		if err != nil {
			t.Fatalf("claim %d failed: %v", i+1, err)
		}
		if claimed.ID != ev.ID {
			t.Fatalf("claimed wrong event")
		}
		if err := store.MarkFailed(ctx, ev.ID, errors.New("smtp timeout")); err != nil {
			t.Fatalf("MarkFailed failed: %v", err)
		}
	}

	after, err := store.GetByID(ctx, ev.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if after.Status != models.OutboxFailed {
		t.Errorf("status after %d failures: got %q, want failed", outbox.MaxAttempts, after.Status)
	}
	if after.LastError != "smtp timeout" {
		t.Errorf("last_error: got %q", after.LastError)
	}

	if _, err := store.ClaimPending(ctx); !errors.Is(err, outbox.ErrNoPending) {
		t.Errorf("parked event must not be claimable, got %v", err)
	}
}

func TestCountPending(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := outbox.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for i := 0; i < 3; i++ {
		if _, err := store.Append(ctx, newEvent("pending")); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	n, err := store.CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending failed: %v", err)
	}
	if n != 3 {
		t.Errorf("pending: got %d, want 3", n)
	}
}

func TestPurgeSentBefore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := outbox.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	old, _ := store.Append(ctx, newEvent("old sent"))
	if err := store.MarkSent(ctx, old.ID); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	if _, err := store.Append(ctx, newEvent("still pending")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	n, err := store.PurgeSentBefore(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("PurgeSentBefore failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged: got %d, want 1", n)
	}

	if _, err := store.GetByID(ctx, old.ID); !errors.Is(err, outbox.ErrEventNotFound) {
		t.Errorf("expected purged event gone, got %v", err)
	}
	pending, _ := store.CountPending(ctx)
	if pending != 1 {
		t.Errorf("pending after purge: got %d, want 1", pending)
	}
}
