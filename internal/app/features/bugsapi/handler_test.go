package bugsapi_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/dalemusser/trackhub/internal/app/features/bugsapi"
	"github.com/dalemusser/trackhub/internal/app/policy/projectpolicy"
	"github.com/dalemusser/trackhub/internal/app/store/bugs"
	"github.com/dalemusser/trackhub/internal/app/store/outbox"
	"github.com/dalemusser/trackhub/internal/app/store/projects"
	"github.com/dalemusser/trackhub/internal/app/store/users"
	"github.com/dalemusser/trackhub/internal/domain/models"
	"github.com/dalemusser/trackhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func newHandler(t *testing.T, db *mongo.Database) *bugsapi.Handler {
	t.Helper()
	return bugsapi.NewHandler(bugs.New(db), users.New(db), outbox.New(db),
		projectpolicy.New(projects.New(db)), nil, "http://localhost:8080", "TrackHub", zap.NewNop())
}

func asTestUser(u models.User) testutil.TestUser {
	return testutil.TestUser{ID: u.ID.Hex(), Name: u.Name, Email: u.Email, Role: u.Role}
}

func bugRequest(method, target string, body any, user testutil.TestUser, projectID, bugID string) *http.Request {
	req := testutil.NewJSONRequest(method, target, body)
	req = testutil.WithUser(req, user)
	req = testutil.WithChiURLParam(req, "projectID", projectID)
	if bugID != "" {
		req = testutil.WithChiURLParam(req, "bugID", bugID)
	}
	return req
}

// team seeds a project with an admin owner, a developer, and a tester.
type team struct {
	owner, dev, tester models.User
	project            models.Project
}

func seedTeam(t *testing.T, f *testutil.Fixtures) team {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := f.CreateAdmin(ctx, "Owner", "owner@example.com")
	dev := f.CreateDeveloper(ctx, "Dev", "dev@example.com")
	tester := f.CreateTester(ctx, "Tester", "tester@example.com")
	p := f.CreateProject(ctx, "Team Project", owner.ID)
	f.AddMember(ctx, p.ID, dev.ID, models.RoleDeveloper)
	f.AddMember(ctx, p.ID, tester.ID, models.RoleTester)
	return team{owner: owner, dev: dev, tester: tester, project: p}
}

func TestHandleCreate_RoleGate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	tm := seedTeam(t, testutil.NewFixtures(t, db))
	pid := tm.project.ID.Hex()

	body := map[string]string{
		"title":       "Crash on save",
		"description": "Saving a draft crashes the editor tab.",
		"priority":    "high",
	}

	rec := testutil.NewRecorder()
	h.HandleCreate(rec, bugRequest(http.MethodPost, "/bugs", body, asTestUser(tm.dev), pid, ""))
	rec.AssertStatus(t, http.StatusCreated)

	var created models.Bug
	rec.DecodeJSON(t, &created)
	if created.Priority != models.PriorityHigh || created.Status != models.StatusOpen {
		t.Errorf("defaults: got %q/%q", created.Priority, created.Status)
	}
	if created.ReportedBy != tm.dev.ID {
		t.Errorf("reported_by: got %v", created.ReportedBy)
	}

	// Testers can read but not create.
	rec = testutil.NewRecorder()
	h.HandleCreate(rec, bugRequest(http.MethodPost, "/bugs", body, asTestUser(tm.tester), pid, ""))
	rec.AssertStatus(t, http.StatusForbidden)

	// Non-members see nothing.
	outsider := testutil.DeveloperUser()
	rec = testutil.NewRecorder()
	h.HandleCreate(rec, bugRequest(http.MethodPost, "/bugs", body, outsider, pid, ""))
	rec.AssertStatus(t, http.StatusForbidden)
}

func TestHandleCreate_ValidatesLengths(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	tm := seedTeam(t, testutil.NewFixtures(t, db))
	pid := tm.project.ID.Hex()

	cases := []struct {
		name string
		body map[string]string
		want string
	}{
		{"short title", map[string]string{
			"title": "ab", "description": "long enough description",
		}, "title must be between"},
		{"long title", map[string]string{
			"title": strings.Repeat("x", 101), "description": "long enough description",
		}, "title must be between"},
		{"short description", map[string]string{
			"title": "Crash on save", "description": "too short",
		}, "description must be between"},
		{"whitespace-padded title", map[string]string{
			"title": "  ab  ", "description": "long enough description",
		}, "title must be between"},
		{"multibyte description over the cap", map[string]string{
			"title": "Crash on save", "description": strings.Repeat("不", 1001),
		}, "description must be between"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := testutil.NewRecorder()
			h.HandleCreate(rec, bugRequest(http.MethodPost, "/bugs", tc.body, asTestUser(tm.dev), pid, ""))
			rec.AssertStatus(t, http.StatusBadRequest)
			rec.AssertContains(t, tc.want)
		})
	}

	// Bounds count characters, not bytes: 400 CJK characters are three
	// bytes each but still well inside the 1000-character cap.
	rec := testutil.NewRecorder()
	h.HandleCreate(rec, bugRequest(http.MethodPost, "/bugs", map[string]string{
		"title":       "多言語のタイトル",
		"description": strings.Repeat("不", 400),
	}, asTestUser(tm.dev), pid, ""))
	rec.AssertStatus(t, http.StatusCreated)
}

func TestHandleCreate_WithAssignee(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	f := testutil.NewFixtures(t, db)
	tm := seedTeam(t, f)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	pid := tm.project.ID.Hex()

	rec := testutil.NewRecorder()
	h.HandleCreate(rec, bugRequest(http.MethodPost, "/bugs", map[string]string{
		"title":       "Login loop",
		"description": "Users bounce between /login and /home forever.",
		"assigned_to": tm.dev.ID.Hex(),
	}, asTestUser(tm.owner), pid, ""))
	rec.AssertStatus(t, http.StatusCreated)

	var created models.Bug
	rec.DecodeJSON(t, &created)
	if created.AssignedTo == nil || *created.AssignedTo != tm.dev.ID {
		t.Errorf("assigned_to: got %v", created.AssignedTo)
	}

	// Assigning at create queues the same notification as /assign.
	pending, err := outbox.New(db).CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending failed: %v", err)
	}
	if pending != 1 {
		t.Errorf("outbox pending: got %d, want 1", pending)
	}

	// A non-member assignee fails before anything is written.
	outsider := f.CreateDeveloper(ctx, "Drifter", "drifter@example.com")
	rec = testutil.NewRecorder()
	h.HandleCreate(rec, bugRequest(http.MethodPost, "/bugs", map[string]string{
		"title":       "Phantom bug",
		"description": "This one should never be created.",
		"assigned_to": outsider.ID.Hex(),
	}, asTestUser(tm.owner), pid, ""))
	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertContains(t, "member of the project")
}

func TestHandleCreate_SanitizesMarkup(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	tm := seedTeam(t, testutil.NewFixtures(t, db))

	rec := testutil.NewRecorder()
	h.HandleCreate(rec, bugRequest(http.MethodPost, "/bugs", map[string]string{
		"title":       `<script>alert(1)</script>Broken page`,
		"description": `see <b>bold</b> <iframe src="x"></iframe> text`,
	}, asTestUser(tm.dev), tm.project.ID.Hex(), ""))
	rec.AssertStatus(t, http.StatusCreated)

	var created models.Bug
	rec.DecodeJSON(t, &created)
	if created.Title != "Broken page" {
		t.Errorf("title: got %q", created.Title)
	}
	if created.Description != "see <b>bold</b>  text" {
		t.Errorf("description: got %q", created.Description)
	}
}

func TestServeList_FiltersAndPaging(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	f := testutil.NewFixtures(t, db)
	tm := seedTeam(t, f)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := bugs.New(db)
	for _, seed := range []struct{ title, status, priority string }{
		{"Crash on login", "open", "critical"},
		{"Slow dashboard", "open", "low"},
		{"Typo in footer", "closed", "low"},
	} {
		if _, err := store.Create(ctx, models.Bug{
			Title: seed.title, Status: seed.status, Priority: seed.priority,
			Project: tm.project.ID, ReportedBy: tm.owner.ID,
		}); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	pid := tm.project.ID.Hex()

	rec := testutil.NewRecorder()
	h.ServeList(rec, bugRequest(http.MethodGet, "/bugs?status=open", nil, asTestUser(tm.tester), pid, ""))
	rec.AssertStatus(t, http.StatusOK)

	var resp struct {
		Bugs  []models.Bug `json:"bugs"`
		Total int64        `json:"total"`
	}
	rec.DecodeJSON(t, &resp)
	if resp.Total != 2 {
		t.Errorf("open bugs: got %d, want 2", resp.Total)
	}

	rec = testutil.NewRecorder()
	h.ServeList(rec, bugRequest(http.MethodGet, "/bugs?search=crash", nil, asTestUser(tm.tester), pid, ""))
	rec.DecodeJSON(t, &resp)
	if resp.Total != 1 || resp.Bugs[0].Title != "Crash on login" {
		t.Errorf("search: got total=%d", resp.Total)
	}

	rec = testutil.NewRecorder()
	h.ServeList(rec, bugRequest(http.MethodGet, "/bugs?limit=2&skip=2&sortBy=title&sortOrder=asc", nil, asTestUser(tm.tester), pid, ""))
	rec.DecodeJSON(t, &resp)
	if resp.Total != 3 || len(resp.Bugs) != 1 {
		t.Errorf("paging: total=%d page=%d", resp.Total, len(resp.Bugs))
	}

	rec = testutil.NewRecorder()
	h.ServeList(rec, bugRequest(http.MethodGet, "/bugs?assignedTo=notanid", nil, asTestUser(tm.tester), pid, ""))
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestServeBug_ScopedToProject(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	f := testutil.NewFixtures(t, db)
	tm := seedTeam(t, f)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	b := f.CreateBug(ctx, "Scoped bug", tm.project.ID, tm.owner.ID)

	rec := testutil.NewRecorder()
	h.ServeBug(rec, bugRequest(http.MethodGet, "/bugs/"+b.ID.Hex(), nil, asTestUser(tm.tester), tm.project.ID.Hex(), b.ID.Hex()))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "Scoped bug")

	// The same bug through another project the caller belongs to is 404.
	otherProject := f.CreateProject(ctx, "Other", tm.owner.ID)
	rec = testutil.NewRecorder()
	h.ServeBug(rec, bugRequest(http.MethodGet, "/bugs/"+b.ID.Hex(), nil, asTestUser(tm.owner), otherProject.ID.Hex(), b.ID.Hex()))
	rec.AssertStatus(t, http.StatusNotFound)
}

func TestHandleUpdate_HistoryAndStatusComment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	f := testutil.NewFixtures(t, db)
	tm := seedTeam(t, f)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	b := f.CreateBug(ctx, "Needs triage", tm.project.ID, tm.owner.ID)

	rec := testutil.NewRecorder()
	h.HandleUpdate(rec, bugRequest(http.MethodPut, "/bugs/"+b.ID.Hex(), map[string]any{
		"status":         "in-progress",
		"priority":       "high",
		"status_comment": "taking this one",
	}, asTestUser(tm.dev), tm.project.ID.Hex(), b.ID.Hex()))
	rec.AssertStatus(t, http.StatusOK)

	var updated models.Bug
	rec.DecodeJSON(t, &updated)
	if len(updated.History) != 2 {
		t.Fatalf("history: got %d entries, want 2", len(updated.History))
	}
	for _, entry := range updated.History {
		if entry.Field == "status" && entry.Comment != "taking this one" {
			t.Errorf("status comment: got %q", entry.Comment)
		}
		if entry.Field == "priority" && entry.Comment != "" {
			t.Errorf("priority entry must not carry the status comment")
		}
	}

	// Testers cannot update.
	rec = testutil.NewRecorder()
	h.HandleUpdate(rec, bugRequest(http.MethodPut, "/bugs/"+b.ID.Hex(), map[string]any{
		"status": "closed",
	}, asTestUser(tm.tester), tm.project.ID.Hex(), b.ID.Hex()))
	rec.AssertStatus(t, http.StatusForbidden)

	// Unknown status rejected.
	rec = testutil.NewRecorder()
	h.HandleUpdate(rec, bugRequest(http.MethodPut, "/bugs/"+b.ID.Hex(), map[string]any{
		"status": "wontfix",
	}, asTestUser(tm.dev), tm.project.ID.Hex(), b.ID.Hex()))
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestHandleUpdate_AssignmentChange(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	f := testutil.NewFixtures(t, db)
	tm := seedTeam(t, f)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	b := f.CreateBug(ctx, "Update assigns too", tm.project.ID, tm.owner.ID)

	rec := testutil.NewRecorder()
	h.HandleUpdate(rec, bugRequest(http.MethodPut, "/bugs/"+b.ID.Hex(), map[string]any{
		"priority":    "critical",
		"assigned_to": tm.dev.ID.Hex(),
	}, asTestUser(tm.owner), tm.project.ID.Hex(), b.ID.Hex()))
	rec.AssertStatus(t, http.StatusOK)

	var updated models.Bug
	rec.DecodeJSON(t, &updated)
	if updated.AssignedTo == nil || *updated.AssignedTo != tm.dev.ID {
		t.Errorf("assigned_to: got %v", updated.AssignedTo)
	}
	if updated.Priority != models.PriorityCritical {
		t.Errorf("priority: got %q", updated.Priority)
	}
	if pending, _ := outbox.New(db).CountPending(ctx); pending != 1 {
		t.Errorf("outbox pending: got %d, want 1", pending)
	}

	// A non-member assignee fails the whole update before any field is
	// written.
	outsider := f.CreateDeveloper(ctx, "Outsider", "lurker@example.com")
	rec = testutil.NewRecorder()
	h.HandleUpdate(rec, bugRequest(http.MethodPut, "/bugs/"+b.ID.Hex(), map[string]any{
		"priority":    "low",
		"assigned_to": outsider.ID.Hex(),
	}, asTestUser(tm.owner), tm.project.ID.Hex(), b.ID.Hex()))
	rec.AssertStatus(t, http.StatusBadRequest)

	after, err := bugs.New(db).GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if after.Priority != models.PriorityCritical {
		t.Errorf("priority after rejected update: got %q, want unchanged", after.Priority)
	}
}

func TestHandleAssign_QueuesOutboxEvent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	f := testutil.NewFixtures(t, db)
	tm := seedTeam(t, f)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	b := f.CreateBug(ctx, "Assign me", tm.project.ID, tm.owner.ID)

	rec := testutil.NewRecorder()
	h.HandleAssign(rec, bugRequest(http.MethodPost, "/bugs/"+b.ID.Hex()+"/assign", map[string]string{
		"assignee_id": tm.dev.ID.Hex(),
	}, asTestUser(tm.owner), tm.project.ID.Hex(), b.ID.Hex()))
	rec.AssertStatus(t, http.StatusOK)

	var updated models.Bug
	rec.DecodeJSON(t, &updated)
	if updated.AssignedTo == nil || *updated.AssignedTo != tm.dev.ID {
		t.Errorf("assigned_to: got %v", updated.AssignedTo)
	}

	pending, err := outbox.New(db).CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending failed: %v", err)
	}
	if pending != 1 {
		t.Errorf("outbox pending: got %d, want 1", pending)
	}

	// Re-assigning to the same member must not queue another event.
	rec = testutil.NewRecorder()
	h.HandleAssign(rec, bugRequest(http.MethodPost, "/bugs/"+b.ID.Hex()+"/assign", map[string]string{
		"assignee_id": tm.dev.ID.Hex(),
	}, asTestUser(tm.owner), tm.project.ID.Hex(), b.ID.Hex()))
	rec.AssertStatus(t, http.StatusOK)
	if pending, _ = outbox.New(db).CountPending(ctx); pending != 1 {
		t.Errorf("outbox pending after no-op assign: got %d, want 1", pending)
	}
}

func TestHandleAssign_RejectsNonMember(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	f := testutil.NewFixtures(t, db)
	tm := seedTeam(t, f)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	outsider := f.CreateDeveloper(ctx, "Outsider", "out@example.com")
	b := f.CreateBug(ctx, "No outsiders", tm.project.ID, tm.owner.ID)

	rec := testutil.NewRecorder()
	h.HandleAssign(rec, bugRequest(http.MethodPost, "/bugs/"+b.ID.Hex()+"/assign", map[string]string{
		"assignee_id": outsider.ID.Hex(),
	}, asTestUser(tm.owner), tm.project.ID.Hex(), b.ID.Hex()))
	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertContains(t, "member of the project")
}

func TestHandleAssign_Unassign(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	f := testutil.NewFixtures(t, db)
	tm := seedTeam(t, f)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	b := f.CreateBug(ctx, "Unassign me", tm.project.ID, tm.owner.ID)

	rec := testutil.NewRecorder()
	h.HandleAssign(rec, bugRequest(http.MethodPost, "/bugs/"+b.ID.Hex()+"/assign", map[string]string{
		"assignee_id": tm.dev.ID.Hex(),
	}, asTestUser(tm.owner), tm.project.ID.Hex(), b.ID.Hex()))
	rec.AssertStatus(t, http.StatusOK)

	rec = testutil.NewRecorder()
	h.HandleAssign(rec, bugRequest(http.MethodPost, "/bugs/"+b.ID.Hex()+"/assign", map[string]string{
		"assignee_id": "",
	}, asTestUser(tm.owner), tm.project.ID.Hex(), b.ID.Hex()))
	rec.AssertStatus(t, http.StatusOK)

	var updated models.Bug
	rec.DecodeJSON(t, &updated)
	if updated.AssignedTo != nil {
		t.Errorf("assigned_to after unassign: got %v", updated.AssignedTo)
	}
	if len(updated.History) != 2 {
		t.Errorf("history: got %d entries, want 2", len(updated.History))
	}
}

func TestHandleAddComment(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	f := testutil.NewFixtures(t, db)
	tm := seedTeam(t, f)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	b := f.CreateBug(ctx, "Discuss", tm.project.ID, tm.owner.ID)

	rec := testutil.NewRecorder()
	h.HandleAddComment(rec, bugRequest(http.MethodPost, "/bugs/"+b.ID.Hex()+"/comments", map[string]string{
		"content": "Reproduced on staging",
	}, asTestUser(tm.dev), tm.project.ID.Hex(), b.ID.Hex()))
	rec.AssertStatus(t, http.StatusCreated)

	// The response carries the full bug with comment authors resolved
	// to identities, not raw ObjectIDs.
	var resp struct {
		ID       string `json:"id"`
		Comments []struct {
			Content string `json:"content"`
			Author  *struct {
				ID    string `json:"id"`
				Name  string `json:"name"`
				Email string `json:"email"`
			} `json:"author"`
		} `json:"comments"`
	}
	rec.DecodeJSON(t, &resp)
	if resp.ID != b.ID.Hex() {
		t.Errorf("bug id: got %q", resp.ID)
	}
	if len(resp.Comments) != 1 {
		t.Fatalf("comments: got %d, want 1", len(resp.Comments))
	}
	c := resp.Comments[0]
	if c.Content != "Reproduced on staging" {
		t.Errorf("content: got %q", c.Content)
	}
	if c.Author == nil || c.Author.ID != tm.dev.ID.Hex() || c.Author.Name != tm.dev.Name || c.Author.Email != tm.dev.Email {
		t.Errorf("author: got %+v", c.Author)
	}

	// Testers cannot modify bugs, but commenting is how they report
	// back, so it must succeed for them too.
	rec = testutil.NewRecorder()
	h.HandleAddComment(rec, bugRequest(http.MethodPost, "/bugs/"+b.ID.Hex()+"/comments", map[string]string{
		"content": "Still happens on build 42",
	}, asTestUser(tm.tester), tm.project.ID.Hex(), b.ID.Hex()))
	rec.AssertStatus(t, http.StatusCreated)

	rec = testutil.NewRecorder()
	h.HandleAddComment(rec, bugRequest(http.MethodPost, "/bugs/"+b.ID.Hex()+"/comments", map[string]string{
		"content": "   ",
	}, asTestUser(tm.dev), tm.project.ID.Hex(), b.ID.Hex()))
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestHandleDelete_AdminOnly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	f := testutil.NewFixtures(t, db)
	tm := seedTeam(t, f)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	b := f.CreateBug(ctx, "Delete me", tm.project.ID, tm.owner.ID)

	rec := testutil.NewRecorder()
	h.HandleDelete(rec, bugRequest(http.MethodDelete, "/bugs/"+b.ID.Hex(), nil, asTestUser(tm.dev), tm.project.ID.Hex(), b.ID.Hex()))
	rec.AssertStatus(t, http.StatusForbidden)

	rec = testutil.NewRecorder()
	h.HandleDelete(rec, bugRequest(http.MethodDelete, "/bugs/"+b.ID.Hex(), nil, asTestUser(tm.owner), tm.project.ID.Hex(), b.ID.Hex()))
	rec.AssertStatus(t, http.StatusOK)

	missing := primitive.NewObjectID().Hex()
	rec = testutil.NewRecorder()
	h.HandleDelete(rec, bugRequest(http.MethodDelete, "/bugs/"+missing, nil, asTestUser(tm.owner), tm.project.ID.Hex(), missing))
	rec.AssertStatus(t, http.StatusNotFound)
}

// TestBugLifecycle walks a bug through its whole life: reported by a
// developer, assigned by the admin, discussed, moved to resolved, and
// visible in a filtered list at the end.
func TestBugLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	tm := seedTeam(t, testutil.NewFixtures(t, db))
	ctx, cancel := testutil.TestContext()
	defer cancel()

	pid := tm.project.ID.Hex()

	rec := testutil.NewRecorder()
	h.HandleCreate(rec, bugRequest(http.MethodPost, "/bugs", map[string]string{
		"title":       "Export times out",
		"description": "CSV export hangs past 30s on large projects.",
		"priority":    "critical",
	}, asTestUser(tm.dev), pid, ""))
	rec.AssertStatus(t, http.StatusCreated)

	var b models.Bug
	rec.DecodeJSON(t, &b)
	bid := b.ID.Hex()

	rec = testutil.NewRecorder()
	h.HandleAssign(rec, bugRequest(http.MethodPost, "/bugs/"+bid+"/assign", map[string]string{
		"assignee_id": tm.dev.ID.Hex(),
	}, asTestUser(tm.owner), pid, bid))
	rec.AssertStatus(t, http.StatusOK)

	rec = testutil.NewRecorder()
	h.HandleAddComment(rec, bugRequest(http.MethodPost, "/bugs/"+bid+"/comments", map[string]string{
		"content": "Root cause is an unindexed scan.",
	}, asTestUser(tm.dev), pid, bid))
	rec.AssertStatus(t, http.StatusCreated)

	rec = testutil.NewRecorder()
	h.HandleUpdate(rec, bugRequest(http.MethodPut, "/bugs/"+bid, map[string]any{
		"status":         "resolved",
		"status_comment": "index added",
	}, asTestUser(tm.dev), pid, bid))
	rec.AssertStatus(t, http.StatusOK)

	var resolved models.Bug
	rec.DecodeJSON(t, &resolved)
	if resolved.Status != models.StatusResolved {
		t.Errorf("status: got %q", resolved.Status)
	}
	// assignment + status change
	if len(resolved.History) != 2 {
		t.Errorf("history: got %d entries, want 2", len(resolved.History))
	}
	if len(resolved.Comments) != 1 {
		t.Errorf("comments: got %d, want 1", len(resolved.Comments))
	}

	// The tester can see the resolved bug but never touched it.
	rec = testutil.NewRecorder()
	h.ServeList(rec, bugRequest(http.MethodGet, "/bugs?status=resolved&assignedTo="+tm.dev.ID.Hex(), nil, asTestUser(tm.tester), pid, ""))
	rec.AssertStatus(t, http.StatusOK)

	var list struct {
		Bugs  []models.Bug `json:"bugs"`
		Total int64        `json:"total"`
	}
	rec.DecodeJSON(t, &list)
	if list.Total != 1 || list.Bugs[0].ID != resolved.ID {
		t.Errorf("filtered list: total=%d", list.Total)
	}

	// One outbox event from the assignment.
	if pending, err := outbox.New(db).CountPending(ctx); err != nil || pending != 1 {
		t.Errorf("outbox pending: got %d (err %v), want 1", pending, err)
	}
}
