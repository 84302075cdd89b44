package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/trackhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
// Calling it repeatedly accumulates parameters on the same request.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok {
		rctx = chi.NewRouteContext()
		r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	}
	rctx.URLParams.Add(key, value)
	return r
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser creates a test user with the given global role.
func (f *Fixtures) CreateUser(ctx context.Context, name, email, role string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	// Low cost keeps fixture creation fast; never use this in production code.
	hash, err := bcrypt.GenerateFromPassword([]byte("test-password"), bcrypt.MinCost)
	if err != nil {
		f.t.Fatalf("failed to hash fixture password: %v", err)
	}

	user := models.User{
		ID:           primitive.NewObjectID(),
		Name:         name,
		NameCI:       text.Fold(name),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := f.db.Collection("users").InsertOne(ctx, user); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateAdmin creates a test user with the admin role.
func (f *Fixtures) CreateAdmin(ctx context.Context, name, email string) models.User {
	f.t.Helper()
	return f.CreateUser(ctx, name, email, models.RoleAdmin)
}

// CreateDeveloper creates a test user with the developer role.
func (f *Fixtures) CreateDeveloper(ctx context.Context, name, email string) models.User {
	f.t.Helper()
	return f.CreateUser(ctx, name, email, models.RoleDeveloper)
}

// CreateTester creates a test user with the tester role.
func (f *Fixtures) CreateTester(ctx context.Context, name, email string) models.User {
	f.t.Helper()
	return f.CreateUser(ctx, name, email, models.RoleTester)
}

// CreateProject creates a test project whose creator is its sole admin member.
func (f *Fixtures) CreateProject(ctx context.Context, name string, creatorID primitive.ObjectID) models.Project {
	f.t.Helper()

	now := time.Now().UTC()
	project := models.Project{
		ID:          primitive.NewObjectID(),
		Name:        name,
		NameCI:      text.Fold(name),
		Description: "Test project description",
		CreatedBy:   creatorID,
		Members: []models.Membership{
			{
				ID:      primitive.NewObjectID(),
				UserID:  creatorID,
				Role:    models.RoleAdmin,
				AddedAt: now,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := f.db.Collection("projects").InsertOne(ctx, project); err != nil {
		f.t.Fatalf("failed to create test project: %v", err)
	}
	return project
}

// AddMember appends a membership to an existing test project.
func (f *Fixtures) AddMember(ctx context.Context, projectID, userID primitive.ObjectID, role string) models.Membership {
	f.t.Helper()

	membership := models.Membership{
		ID:      primitive.NewObjectID(),
		UserID:  userID,
		Role:    role,
		AddedAt: time.Now().UTC(),
	}

	_, err := f.db.Collection("projects").UpdateByID(ctx, projectID,
		map[string]any{"$push": map[string]any{"members": membership}})
	if err != nil {
		f.t.Fatalf("failed to add test membership: %v", err)
	}
	return membership
}

// CreateBug creates a test bug in the given project with default
// priority and status.
func (f *Fixtures) CreateBug(ctx context.Context, title string, projectID, reporterID primitive.ObjectID) models.Bug {
	f.t.Helper()

	now := time.Now().UTC()
	bug := models.Bug{
		ID:          primitive.NewObjectID(),
		Title:       title,
		Description: "Test bug description",
		Priority:    models.PriorityMedium,
		Status:      models.StatusOpen,
		ReportedBy:  reporterID,
		Project:     projectID,
		History:     []models.HistoryEntry{},
		Comments:    []models.Comment{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := f.db.Collection("bugs").InsertOne(ctx, bug); err != nil {
		f.t.Fatalf("failed to create test bug: %v", err)
	}
	return bug
}
