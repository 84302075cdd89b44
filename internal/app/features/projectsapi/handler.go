// internal/app/features/projectsapi/handler.go
package projectsapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/dalemusser/trackhub/internal/app/policy/projectpolicy"
	"github.com/dalemusser/trackhub/internal/app/store/bugs"
	"github.com/dalemusser/trackhub/internal/app/store/projects"
	"github.com/dalemusser/trackhub/internal/app/store/users"
	"github.com/dalemusser/trackhub/internal/app/system/apperr"
	"github.com/dalemusser/trackhub/internal/app/system/auditlog"
	"github.com/dalemusser/trackhub/internal/app/system/authz"
	"github.com/dalemusser/trackhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/trackhub/internal/app/system/normalize"
	"github.com/dalemusser/trackhub/internal/app/system/timeouts"
	"github.com/dalemusser/trackhub/internal/app/system/txn"
	"github.com/dalemusser/trackhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler owns project CRUD and membership management.
type Handler struct {
	Client   *mongo.Client // for the cascade-delete transaction
	Projects *projects.Store
	Bugs     *bugs.Store
	Users    *users.Store
	Guard    *projectpolicy.Guard
	AuditLog *auditlog.Logger
	Log      *zap.Logger
}

func NewHandler(client *mongo.Client, projectStore *projects.Store, bugStore *bugs.Store,
	userStore *users.Store, guard *projectpolicy.Guard, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Client:   client,
		Projects: projectStore,
		Bugs:     bugStore,
		Users:    userStore,
		Guard:    guard,
		AuditLog: audit,
		Log:      logger,
	}
}

type memberResponse struct {
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
	AddedAt string `json:"added_at"`
}

type projectResponse struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	CreatedBy   string           `json:"created_by"`
	Members     []memberResponse `json:"members"`
	CreatedAt   string           `json:"created_at"`
	UpdatedAt   string           `json:"updated_at"`
}

func toProjectResponse(p *models.Project) projectResponse {
	resp := projectResponse{
		ID:          p.ID.Hex(),
		Name:        p.Name,
		Description: p.Description,
		CreatedBy:   p.CreatedBy.Hex(),
		Members:     make([]memberResponse, 0, len(p.Members)),
		CreatedAt:   p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:   p.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	for _, m := range p.Members {
		resp.Members = append(resp.Members, memberResponse{
			UserID:  m.UserID.Hex(),
			Role:    m.Role,
			AddedAt: m.AddedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return resp
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /api/projects                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, h.Log, r)
	if !ok {
		return
	}

	var req createProjectRequest
	if err := apperr.DecodeJSON(r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	if normalize.Name(req.Name) == "" {
		apperr.Write(w, h.Log, apperr.Validation("project name is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	p, err := h.Projects.Create(ctx, req.Name, htmlsanitize.Sanitize(req.Description), actorID)
	if err != nil {
		if errors.Is(err, projects.ErrDuplicateProjectName) {
			apperr.Write(w, h.Log, apperr.Conflict("a project with this name already exists"))
			return
		}
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}

	h.AuditLog.ProjectCreated(ctx, r, actorID, p.ID, p.Name)
	apperr.WriteJSON(w, http.StatusCreated, toProjectResponse(&p))
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /api/projects                                                            |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, h.Log, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	list, err := h.Projects.ListByMember(ctx, actorID)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}

	resp := make([]projectResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toProjectResponse(&list[i]))
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]any{"projects": resp})
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /api/projects/{projectID}                                                |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeProject(w http.ResponseWriter, r *http.Request) {
	actorID, projectID, ok := actorAndProject(w, h.Log, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	p, _, err := h.Guard.CanRead(ctx, projectID, actorID)
	if err != nil {
		writeGuardError(w, h.Log, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, toProjectResponse(p))
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /api/projects/{projectID}/members                                        |
*─────────────────────────────────────────────────────────────────────────────*/

type memberDetailResponse struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Role    string `json:"role"`
	AddedAt string `json:"added_at"`
}

// ServeMembers lists the membership roster with each member's name and
// email resolved, so clients don't make one user lookup per row.
func (h *Handler) ServeMembers(w http.ResponseWriter, r *http.Request) {
	actorID, projectID, ok := actorAndProject(w, h.Log, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	p, _, err := h.Guard.CanRead(ctx, projectID, actorID)
	if err != nil {
		writeGuardError(w, h.Log, err)
		return
	}

	ids := make([]primitive.ObjectID, 0, len(p.Members))
	for _, m := range p.Members {
		ids = append(ids, m.UserID)
	}
	accounts, err := h.Users.ListByIDs(ctx, ids)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}
	byID := make(map[primitive.ObjectID]models.User, len(accounts))
	for _, u := range accounts {
		byID[u.ID] = u
	}

	members := make([]memberDetailResponse, 0, len(p.Members))
	for _, m := range p.Members {
		d := memberDetailResponse{
			UserID:  m.UserID.Hex(),
			Role:    m.Role,
			AddedAt: m.AddedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if u, ok := byID[m.UserID]; ok {
			d.Name = u.Name
			d.Email = u.Email
		}
		members = append(members, d)
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]any{"members": members})
}

/*─────────────────────────────────────────────────────────────────────────────*
| PUT /api/projects/{projectID}                                                |
*─────────────────────────────────────────────────────────────────────────────*/

type updateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	actorID, projectID, ok := actorAndProject(w, h.Log, r)
	if !ok {
		return
	}

	var req updateProjectRequest
	if err := apperr.DecodeJSON(r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	if normalize.Name(req.Name) == "" {
		apperr.Write(w, h.Log, apperr.Validation("project name is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if _, _, err := h.Guard.CanManage(ctx, projectID, actorID); err != nil {
		writeGuardError(w, h.Log, err)
		return
	}

	p, err := h.Projects.UpdateInfo(ctx, projectID, req.Name, htmlsanitize.Sanitize(req.Description))
	if err != nil {
		if errors.Is(err, projects.ErrDuplicateProjectName) {
			apperr.Write(w, h.Log, apperr.Conflict("a project with this name already exists"))
			return
		}
		writeGuardError(w, h.Log, err)
		return
	}

	h.AuditLog.ProjectUpdated(ctx, r, actorID, projectID, "name,description")
	apperr.WriteJSON(w, http.StatusOK, toProjectResponse(p))
}

/*─────────────────────────────────────────────────────────────────────────────*
| DELETE /api/projects/{projectID}                                             |
| Removes the project and all its bugs. The two deletes run in a Mongo         |
| transaction where the deployment supports one; standalone servers fall       |
| back to sequential deletes (bugs first, so a crash cannot orphan bugs        |
| under a missing project).                                                    |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actorID, projectID, ok := actorAndProject(w, h.Log, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	p, _, err := h.Guard.CanManage(ctx, projectID, actorID)
	if err != nil {
		writeGuardError(w, h.Log, err)
		return
	}

	var bugsDeleted int64
	err = txn.WithTransaction(ctx, h.Client, func(sc mongo.SessionContext) error {
		n, err := h.Bugs.DeleteByProject(sc, projectID)
		if err != nil {
			return err
		}
		bugsDeleted = n
		return h.Projects.Delete(sc, projectID)
	})
	if err != nil && txn.IsNotSupported(err) {
		h.Log.Warn("transactions unavailable, cascading delete sequentially",
			zap.String("project_id", projectID.Hex()))
		bugsDeleted, err = h.Bugs.DeleteByProject(ctx, projectID)
		if err == nil {
			err = h.Projects.Delete(ctx, projectID)
		}
	}
	if err != nil {
		writeGuardError(w, h.Log, err)
		return
	}

	h.AuditLog.ProjectDeleted(ctx, r, actorID, projectID, p.Name, bugsDeleted)
	apperr.WriteJSON(w, http.StatusOK, map[string]any{
		"message":      "project deleted",
		"bugs_deleted": bugsDeleted,
	})
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /api/projects/{projectID}/members                                       |
*─────────────────────────────────────────────────────────────────────────────*/

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (h *Handler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	actorID, projectID, ok := actorAndProject(w, h.Log, r)
	if !ok {
		return
	}

	var req addMemberRequest
	if err := apperr.DecodeJSON(r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	targetID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Validation("invalid user id"))
		return
	}
	if !models.ValidProjectRole(normalize.Role(req.Role)) {
		apperr.Write(w, h.Log, apperr.Validation(`role must be "admin", "developer", or "tester"`))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if _, _, err := h.Guard.CanManage(ctx, projectID, actorID); err != nil {
		writeGuardError(w, h.Log, err)
		return
	}

	// The target must be a real account.
	if _, err := h.Users.GetByID(ctx, targetID); err != nil {
		apperr.Write(w, h.Log, apperr.NotFound("user"))
		return
	}

	m, err := h.Projects.AddMember(ctx, projectID, targetID, req.Role)
	if err != nil {
		if errors.Is(err, projects.ErrDuplicateMembership) {
			apperr.Write(w, h.Log, apperr.Conflict("user is already a member of this project"))
			return
		}
		writeGuardError(w, h.Log, err)
		return
	}

	h.AuditLog.MemberAdded(ctx, r, actorID, targetID, projectID, m.Role)
	apperr.WriteJSON(w, http.StatusCreated, memberResponse{
		UserID:  m.UserID.Hex(),
		Role:    m.Role,
		AddedAt: m.AddedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

/*─────────────────────────────────────────────────────────────────────────────*
| PUT /api/projects/{projectID}/members/{userID}                               |
*─────────────────────────────────────────────────────────────────────────────*/

type updateMemberRequest struct {
	Role string `json:"role"`
}

func (h *Handler) HandleUpdateMember(w http.ResponseWriter, r *http.Request) {
	actorID, projectID, ok := actorAndProject(w, h.Log, r)
	if !ok {
		return
	}
	targetID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "userID"))
	if err != nil {
		apperr.Write(w, h.Log, apperr.Validation("invalid user id"))
		return
	}

	var req updateMemberRequest
	if err := apperr.DecodeJSON(r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if _, _, err := h.Guard.CanManage(ctx, projectID, actorID); err != nil {
		writeGuardError(w, h.Log, err)
		return
	}

	if err := h.Projects.UpdateMemberRole(ctx, projectID, targetID, req.Role); err != nil {
		writeGuardError(w, h.Log, err)
		return
	}

	h.AuditLog.MemberAdded(ctx, r, actorID, targetID, projectID, normalize.Role(req.Role))
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": "member role updated"})
}

/*─────────────────────────────────────────────────────────────────────────────*
| DELETE /api/projects/{projectID}/members/{userID}                            |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	actorID, projectID, ok := actorAndProject(w, h.Log, r)
	if !ok {
		return
	}
	targetID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "userID"))
	if err != nil {
		apperr.Write(w, h.Log, apperr.Validation("invalid user id"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if _, _, err := h.Guard.CanManage(ctx, projectID, actorID); err != nil {
		writeGuardError(w, h.Log, err)
		return
	}

	if err := h.Projects.RemoveMember(ctx, projectID, targetID); err != nil {
		writeGuardError(w, h.Log, err)
		return
	}

	h.AuditLog.MemberRemoved(ctx, r, actorID, targetID, projectID)
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": "member removed"})
}

// helpers

// actor extracts the signed-in user's ObjectID.
func actor(w http.ResponseWriter, log *zap.Logger, r *http.Request) (primitive.ObjectID, bool) {
	_, _, id, ok := authz.UserCtx(r)
	if !ok {
		apperr.Write(w, log, apperr.Forbidden("authentication required"))
		return primitive.NilObjectID, false
	}
	return id, true
}

// actorAndProject extracts the actor plus the {projectID} URL param.
func actorAndProject(w http.ResponseWriter, log *zap.Logger, r *http.Request) (primitive.ObjectID, primitive.ObjectID, bool) {
	actorID, ok := actor(w, log, r)
	if !ok {
		return primitive.NilObjectID, primitive.NilObjectID, false
	}
	projectID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "projectID"))
	if err != nil {
		apperr.Write(w, log, apperr.Validation("invalid project id"))
		return primitive.NilObjectID, primitive.NilObjectID, false
	}
	return actorID, projectID, true
}

// writeGuardError translates store and policy sentinels into the apperr
// taxonomy.
func writeGuardError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, projects.ErrProjectNotFound):
		apperr.Write(w, log, apperr.NotFound("project"))
	case errors.Is(err, projectpolicy.ErrNotAMember):
		apperr.Write(w, log, apperr.Forbidden("you are not a member of this project"))
	case errors.Is(err, projectpolicy.ErrInsufficientRole):
		apperr.Write(w, log, apperr.Forbidden("your project role does not permit this operation"))
	case errors.Is(err, projects.ErrMembershipNotFound):
		apperr.Write(w, log, apperr.NotFound("membership"))
	case errors.Is(err, projects.ErrLastAdmin):
		apperr.Write(w, log, apperr.Conflict("a project must keep at least one admin"))
	default:
		apperr.Write(w, log, err)
	}
}
