package health_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/trackhub/internal/app/features/health"
	"github.com/dalemusser/trackhub/internal/app/store/outbox"
	"github.com/dalemusser/trackhub/internal/domain/models"
	"github.com/dalemusser/trackhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestServe_DatabaseConnected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	handler := health.NewHandler(db.Client(), outbox.New(db), zap.NewNop())

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	handler.Serve(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type: got %q, want %q", contentType, "application/json")
	}

	var response struct {
		Status        string `json:"status"`
		Database      string `json:"database"`
		PendingEmails int64  `json:"pending_emails"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if response.Status != "ok" {
		t.Errorf("status: got %q, want %q", response.Status, "ok")
	}
	if response.Database != "connected" {
		t.Errorf("database: got %q, want %q", response.Database, "connected")
	}
	if response.PendingEmails != 0 {
		t.Errorf("pending_emails: got %d, want 0", response.PendingEmails)
	}
}

func TestServe_ReportsMailBacklog(t *testing.T) {
	db := testutil.SetupTestDB(t)
	handler := health.NewHandler(db.Client(), outbox.New(db), zap.NewNop())

	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := outbox.New(db)
	if _, err := store.Append(ctx, models.OutboxEvent{
		BugID:     primitive.NewObjectID(),
		ProjectID: primitive.NewObjectID(),
		Recipient: "dev@example.com",
		Subject:   "assignment",
		Body:      "you have been assigned a bug",
	}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	handler.Serve(rec, req)

	var response struct {
		PendingEmails int64 `json:"pending_emails"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.PendingEmails != 1 {
		t.Errorf("pending_emails: got %d, want 1", response.PendingEmails)
	}
}
