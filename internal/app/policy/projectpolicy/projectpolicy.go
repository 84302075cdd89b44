// Package projectpolicy decides what a user may do inside a project.
//
// Every bug and membership operation is scoped to a project, and access
// is granted only through the project's members array. Roles are held
// per project, not globally, so the same user can be an admin of one
// project and a tester in another.
//
// Authorization rules:
//   - read (view bugs, history, comments): admin, developer, tester
//   - write (create/update/assign/comment/delete bugs): admin, developer
//   - manage (project settings, members, project delete): admin
//
// The guard never falls back to a global role: a user with no
// membership in a project cannot see it at all.
package projectpolicy

import (
	"context"
	"errors"

	"github.com/dalemusser/trackhub/internal/app/store/projects"
	"github.com/dalemusser/trackhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotAMember is returned when the user has no membership in the project.
	ErrNotAMember = errors.New("user is not a member of this project")
	// ErrInsufficientRole is returned when the user is a member but the
	// operation requires a stronger role.
	ErrInsufficientRole = errors.New("project role does not permit this operation")
)

// Role sets for the three permission tiers.
var (
	ReadRoles   = []string{models.RoleAdmin, models.RoleDeveloper, models.RoleTester}
	WriteRoles  = []string{models.RoleAdmin, models.RoleDeveloper}
	ManageRoles = []string{models.RoleAdmin}
)

// Guard authorizes users against a project's membership list.
type Guard struct {
	projects *projects.Store
}

func New(projectStore *projects.Store) *Guard {
	return &Guard{projects: projectStore}
}

// Authorize loads the project and checks that the user is a member
// holding one of the allowed roles. On success it returns the project
// and the user's membership so handlers do not re-fetch either.
//
// Errors, in checking order: projects.ErrProjectNotFound, ErrNotAMember,
// ErrInsufficientRole.
func (g *Guard) Authorize(ctx context.Context, projectID, userID primitive.ObjectID, allowedRoles ...string) (*models.Project, models.Membership, error) {
	p, err := g.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, models.Membership{}, err
	}

	m, ok := p.MemberByUserID(userID)
	if !ok {
		return nil, models.Membership{}, ErrNotAMember
	}

	for _, role := range allowedRoles {
		if m.Role == role {
			return p, m, nil
		}
	}
	return nil, models.Membership{}, ErrInsufficientRole
}

// CanRead authorizes read access (any member role).
func (g *Guard) CanRead(ctx context.Context, projectID, userID primitive.ObjectID) (*models.Project, models.Membership, error) {
	return g.Authorize(ctx, projectID, userID, ReadRoles...)
}

// CanWrite authorizes bug mutations (admin or developer).
func (g *Guard) CanWrite(ctx context.Context, projectID, userID primitive.ObjectID) (*models.Project, models.Membership, error) {
	return g.Authorize(ctx, projectID, userID, WriteRoles...)
}

// CanManage authorizes project administration (admin only).
func (g *Guard) CanManage(ctx context.Context, projectID, userID primitive.ObjectID) (*models.Project, models.Membership, error) {
	return g.Authorize(ctx, projectID, userID, ManageRoles...)
}
