package users_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/trackhub/internal/app/store/users"
	"github.com/dalemusser/trackhub/internal/app/system/indexes"
	"github.com/dalemusser/trackhub/internal/domain/models"
	"github.com/dalemusser/trackhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCreate_NormalizesFields(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := users.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{
		Name:         "  Alice Johnson  ",
		Email:        "Alice@Example.COM",
		PasswordHash: "hash",
		Role:         models.RoleDeveloper,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if created.Name != "Alice Johnson" {
		t.Errorf("Name: got %q, want trimmed", created.Name)
	}
	if created.Email != "alice@example.com" {
		t.Errorf("Email: got %q, want lowercased", created.Email)
	}
	if created.NameCI == "" {
		t.Error("expected NameCI to be set")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestCreate_DefaultsRoleToTester(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := users.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{
		Name:  "Bob",
		Email: "bob@example.com",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Role != models.RoleTester {
		t.Errorf("Role: got %q, want %q", created.Role, models.RoleTester)
	}
}

func TestCreate_RejectsInvalidRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := users.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.Create(ctx, models.User{
		Name:  "Bad Role",
		Email: "badrole@example.com",
		Role:  "superuser",
	})
	if err == nil {
		t.Error("expected error for invalid role")
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	store := users.New(db)

	if _, err := store.Create(ctx, models.User{Name: "First", Email: "dup@example.com", Role: models.RoleAdmin}); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	_, err := store.Create(ctx, models.User{Name: "Second", Email: "DUP@example.com", Role: models.RoleAdmin})
	if !errors.Is(err, users.ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestGetByEmail_CaseInsensitive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := users.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{Name: "Carol", Email: "carol@example.com", Role: models.RoleTester})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.GetByEmail(ctx, "CAROL@Example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("got wrong user: %v", got.ID)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := users.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.GetByID(ctx, primitive.NewObjectID())
	if !errors.Is(err, users.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGetByGoogleID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := users.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{Name: "Dave", Email: "dave@example.com", Role: models.RoleDeveloper})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.LinkGoogleID(ctx, created.ID, "google-sub-12345"); err != nil {
		t.Fatalf("LinkGoogleID failed: %v", err)
	}

	got, err := store.GetByGoogleID(ctx, "google-sub-12345")
	if err != nil {
		t.Fatalf("GetByGoogleID failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("got wrong user: %v", got.ID)
	}

	if _, err := store.GetByGoogleID(ctx, "no-such-sub"); !errors.Is(err, users.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound for unknown google ID, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := users.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{Name: "Eve", Email: "eve@example.com", Role: models.RoleTester})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := store.UpdateProfile(ctx, created.ID, users.ProfileUpdate{
		Name:   "Eve Smith",
		Avatar: "https://example.com/avatar.png",
		Bio:    "QA engineer",
		ContactPreferences: models.ContactPreferences{
			EmailNotifications: true,
		},
	})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}

	if updated.Name != "Eve Smith" {
		t.Errorf("Name: got %q", updated.Name)
	}
	if updated.Bio != "QA engineer" {
		t.Errorf("Bio: got %q", updated.Bio)
	}
	if !updated.ContactPreferences.EmailNotifications {
		t.Error("expected email notifications enabled")
	}
	if updated.Email != "eve@example.com" {
		t.Error("email must not change through UpdateProfile")
	}
}

func TestResetTokenLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := users.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{Name: "Frank", Email: "frank@example.com", Role: models.RoleDeveloper})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	token := "a1b2c3d4e5f6"
	if err := store.SetResetToken(ctx, created.ID, token, time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("SetResetToken failed: %v", err)
	}

	got, err := store.GetByResetToken(ctx, token)
	if err != nil {
		t.Fatalf("GetByResetToken failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("got wrong user: %v", got.ID)
	}

	if err := store.ResetPassword(ctx, created.ID, "newhash"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	// Token is single-use: a second lookup must fail.
	if _, err := store.GetByResetToken(ctx, token); !errors.Is(err, users.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound after reset, got %v", err)
	}

	after, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if after.PasswordHash != "newhash" {
		t.Error("expected password hash replaced")
	}
}

func TestGetByResetToken_Expired(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := users.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{Name: "Grace", Email: "grace@example.com", Role: models.RoleTester})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.SetResetToken(ctx, created.ID, "expired-token", time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("SetResetToken failed: %v", err)
	}

	if _, err := store.GetByResetToken(ctx, "expired-token"); !errors.Is(err, users.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound for expired token, got %v", err)
	}
}

func TestClearExpiredResetTokens(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := users.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	expired, _ := store.Create(ctx, models.User{Name: "H1", Email: "h1@example.com", Role: models.RoleTester})
	current, _ := store.Create(ctx, models.User{Name: "H2", Email: "h2@example.com", Role: models.RoleTester})

	_ = store.SetResetToken(ctx, expired.ID, "old", time.Now().UTC().Add(-time.Hour))
	_ = store.SetResetToken(ctx, current.ID, "fresh", time.Now().UTC().Add(time.Hour))

	count, err := store.ClearExpiredResetTokens(ctx)
	if err != nil {
		t.Fatalf("ClearExpiredResetTokens failed: %v", err)
	}
	if count != 1 {
		t.Errorf("cleaned count: got %d, want 1", count)
	}

	if _, err := store.GetByResetToken(ctx, "fresh"); err != nil {
		t.Errorf("fresh token should survive cleanup: %v", err)
	}
}

func TestList_SortsAndPages(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := users.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for _, name := range []string{"Charlie", "Alice", "Bob"} {
		if _, err := store.Create(ctx, models.User{Name: name, Email: name + "@example.com", Role: models.RoleTester}); err != nil {
			t.Fatalf("Create %s failed: %v", name, err)
		}
	}

	list, total, err := store.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 {
		t.Errorf("total: got %d, want 3", total)
	}
	if len(list) != 2 {
		t.Fatalf("page size: got %d, want 2", len(list))
	}
	if list[0].Name != "Alice" || list[1].Name != "Bob" {
		t.Errorf("expected name_ci sort, got %q, %q", list[0].Name, list[1].Name)
	}

	rest, _, err := store.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("List page 2 failed: %v", err)
	}
	if len(rest) != 1 || rest[0].Name != "Charlie" {
		t.Errorf("expected Charlie on page 2, got %v", rest)
	}
}
