package profile_test

import (
	"net/http"
	"testing"

	"github.com/dalemusser/trackhub/internal/app/features/profile"
	"github.com/dalemusser/trackhub/internal/app/store/users"
	"github.com/dalemusser/trackhub/internal/domain/models"
	"github.com/dalemusser/trackhub/internal/testutil"
	"go.uber.org/zap"
)

func TestServeProfile(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := profile.NewHandler(users.New(db), zap.NewNop())
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := f.CreateDeveloper(ctx, "Alice", "alice@example.com")
	tu := testutil.TestUser{ID: u.ID.Hex(), Name: u.Name, Email: u.Email, Role: u.Role}

	rec := testutil.NewRecorder()
	h.ServeProfile(rec, testutil.NewAuthenticatedRequest(http.MethodGet, "/api/profile", tu))
	rec.AssertStatus(t, http.StatusOK)

	var resp struct {
		Email        string `json:"email"`
		GoogleLinked bool   `json:"google_linked"`
	}
	rec.DecodeJSON(t, &resp)
	if resp.Email != "alice@example.com" {
		t.Errorf("email: got %q", resp.Email)
	}
	if resp.GoogleLinked {
		t.Error("expected google_linked=false")
	}
}

func TestServeProfile_RequiresUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := profile.NewHandler(users.New(db), zap.NewNop())

	rec := testutil.NewRecorder()
	h.ServeProfile(rec, testutil.NewJSONRequest(http.MethodGet, "/api/profile", nil))
	rec.AssertStatus(t, http.StatusForbidden)
}

func TestHandleUpdateProfile(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := profile.NewHandler(users.New(db), zap.NewNop())
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := f.CreateTester(ctx, "Bob", "bob@example.com")
	tu := testutil.TestUser{ID: u.ID.Hex(), Name: u.Name, Email: u.Email, Role: u.Role}

	req := testutil.NewJSONRequest(http.MethodPut, "/api/profile", map[string]any{
		"name":   "Bob Builder",
		"avatar": "https://example.com/bob.png",
		"bio":    "QA by day",
		"contact_preferences": models.ContactPreferences{
			EmailNotifications: true,
		},
	})
	rec := testutil.NewRecorder()
	h.HandleUpdateProfile(rec, testutil.WithUser(req, tu))
	rec.AssertStatus(t, http.StatusOK)

	stored, err := users.New(db).GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Name != "Bob Builder" {
		t.Errorf("name: got %q", stored.Name)
	}
	if !stored.ContactPreferences.EmailNotifications {
		t.Error("expected email notifications enabled")
	}
	if stored.Email != "bob@example.com" {
		t.Error("email must not change through profile update")
	}
}

func TestHandleUpdateProfile_SanitizesBio(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := profile.NewHandler(users.New(db), zap.NewNop())
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := f.CreateTester(ctx, "Eve", "eve@example.com")
	tu := testutil.TestUser{ID: u.ID.Hex(), Name: u.Name, Email: u.Email, Role: u.Role}

	req := testutil.NewJSONRequest(http.MethodPut, "/api/profile", map[string]any{
		"name": "Eve",
		"bio":  `hello <script>alert("x")</script><b>world</b>`,
	})
	rec := testutil.NewRecorder()
	h.HandleUpdateProfile(rec, testutil.WithUser(req, tu))
	rec.AssertStatus(t, http.StatusOK)

	stored, _ := users.New(db).GetByID(ctx, u.ID)
	if stored.Bio != "hello <b>world</b>" {
		t.Errorf("bio: got %q", stored.Bio)
	}
}

func TestHandleUpdateProfile_RequiresName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := profile.NewHandler(users.New(db), zap.NewNop())
	f := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := f.CreateTester(ctx, "Gone", "gone@example.com")
	tu := testutil.TestUser{ID: u.ID.Hex(), Name: u.Name, Email: u.Email, Role: u.Role}

	req := testutil.NewJSONRequest(http.MethodPut, "/api/profile", map[string]any{"name": "   "})
	rec := testutil.NewRecorder()
	h.HandleUpdateProfile(rec, testutil.WithUser(req, tu))
	rec.AssertStatus(t, http.StatusBadRequest)
}
