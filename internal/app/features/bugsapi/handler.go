// internal/app/features/bugsapi/handler.go
package bugsapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dalemusser/trackhub/internal/app/policy/projectpolicy"
	"github.com/dalemusser/trackhub/internal/app/store/bugs"
	"github.com/dalemusser/trackhub/internal/app/store/outbox"
	"github.com/dalemusser/trackhub/internal/app/store/projects"
	"github.com/dalemusser/trackhub/internal/app/store/users"
	"github.com/dalemusser/trackhub/internal/app/system/apperr"
	"github.com/dalemusser/trackhub/internal/app/system/auditlog"
	"github.com/dalemusser/trackhub/internal/app/system/auth"
	"github.com/dalemusser/trackhub/internal/app/system/authz"
	"github.com/dalemusser/trackhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/trackhub/internal/app/system/mailer"
	"github.com/dalemusser/trackhub/internal/app/system/timeouts"
	"github.com/dalemusser/trackhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/validate"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler owns the bug endpoints. Every route is scoped to a project
// and gated by the membership guard.
type Handler struct {
	Bugs     *bugs.Store
	Users    *users.Store
	Outbox   *outbox.Store
	Guard    *projectpolicy.Guard
	AuditLog *auditlog.Logger
	BaseURL  string
	SiteName string
	Log      *zap.Logger
}

func NewHandler(bugStore *bugs.Store, userStore *users.Store, outboxStore *outbox.Store,
	guard *projectpolicy.Guard, audit *auditlog.Logger, baseURL, siteName string, logger *zap.Logger) *Handler {
	return &Handler{
		Bugs:     bugStore,
		Users:    userStore,
		Outbox:   outboxStore,
		Guard:    guard,
		AuditLog: audit,
		BaseURL:  baseURL,
		SiteName: siteName,
		Log:      logger,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /api/projects/{projectID}/bugs                                          |
*─────────────────────────────────────────────────────────────────────────────*/

type createBugRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority,omitempty"`
	Status      string `json:"status,omitempty"`
	AssignedTo  string `json:"assigned_to,omitempty"`
}

const (
	titleMinLen       = 3
	titleMaxLen       = 100
	descriptionMinLen = 10
	descriptionMaxLen = 1000
)

// validateBugText bounds are in characters, not bytes, so multibyte
// input is measured the way users count it.
func validateBugText(title, description *string) error {
	if title != nil {
		if n := utf8.RuneCountInString(*title); n < titleMinLen || n > titleMaxLen {
			return apperr.Validation("title must be between 3 and 100 characters")
		}
	}
	if description != nil {
		if n := utf8.RuneCountInString(*description); n < descriptionMinLen || n > descriptionMaxLen {
			return apperr.Validation("description must be between 10 and 1000 characters")
		}
	}
	return nil
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actorID, projectID, ok := actorAndProject(w, h.Log, r)
	if !ok {
		return
	}

	var req createBugRequest
	if err := apperr.DecodeJSON(r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	title := strings.TrimSpace(req.Title)
	description := strings.TrimSpace(req.Description)
	if err := validateBugText(&title, &description); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	p, _, err := h.Guard.CanWrite(ctx, projectID, actorID)
	if err != nil {
		writeGuardError(w, h.Log, err)
		return
	}

	// Optional assignee, subject to the same membership rules as /assign.
	var assignee *models.User
	bug := models.Bug{
		Title:       htmlsanitize.Sanitize(title),
		Description: htmlsanitize.Sanitize(description),
		Priority:    req.Priority,
		Status:      req.Status,
		ReportedBy:  actorID,
		Project:     projectID,
	}
	if req.AssignedTo != "" {
		id, ok := h.resolveAssignee(w, ctx, p, req.AssignedTo, &assignee)
		if !ok {
			return
		}
		bug.AssignedTo = &id
	}

	b, err := h.Bugs.Create(ctx, bug)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Validation(err.Error()))
		return
	}

	h.AuditLog.BugCreated(ctx, r, actorID, b.ID, projectID, b.Title)
	if assignee != nil {
		h.queueAssignmentEmail(ctx, r, &b, p, assignee)
	}
	apperr.WriteJSON(w, http.StatusCreated, b)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /api/projects/{projectID}/bugs                                           |
| Filters: status, priority, assignedTo, reportedBy, startDate, endDate,       |
| search. Paging: limit, skip. Sorting: sortBy, sortOrder.                     |
*─────────────────────────────────────────────────────────────────────────────*/

type listResponse struct {
	Bugs  []models.Bug `json:"bugs"`
	Total int64        `json:"total"`
	Limit int64        `json:"limit"`
	Skip  int64        `json:"skip"`
}

func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	actorID, projectID, ok := actorAndProject(w, h.Log, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if _, _, err := h.Guard.CanRead(ctx, projectID, actorID); err != nil {
		writeGuardError(w, h.Log, err)
		return
	}

	f, err := h.listFilter(r, projectID)
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}

	list, total, err := h.Bugs.List(ctx, f)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}
	if list == nil {
		list = []models.Bug{}
	}

	limit := f.Limit
	if limit <= 0 {
		limit = bugs.DefaultListLimit
	}
	if limit > bugs.MaxListLimit {
		limit = bugs.MaxListLimit
	}
	apperr.WriteJSON(w, http.StatusOK, listResponse{Bugs: list, Total: total, Limit: limit, Skip: f.Skip})
}

// listFilter translates query parameters into a store filter.
func (h *Handler) listFilter(r *http.Request, projectID primitive.ObjectID) (bugs.ListFilter, error) {
	f := bugs.ListFilter{
		Project:    projectID,
		Status:     query.Get(r, "status"),
		Priority:   query.Get(r, "priority"),
		SearchText: query.Get(r, "search"),
		SortBy:     query.Get(r, "sortBy"),
		SortOrder:  query.Get(r, "sortOrder"),
		Limit:      parseInt64(query.Get(r, "limit"), 0),
		Skip:       parseInt64(query.Get(r, "skip"), 0),
	}

	if raw := query.Get(r, "assignedTo"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return f, apperr.Validation("invalid assignedTo id")
		}
		f.AssignedTo = &id
	}
	if raw := query.Get(r, "reportedBy"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return f, apperr.Validation("invalid reportedBy id")
		}
		f.ReportedBy = &id
	}
	if raw := query.Get(r, "startDate"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, apperr.Validation("startDate must be RFC 3339")
		}
		f.StartDate = &ts
	}
	if raw := query.Get(r, "endDate"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, apperr.Validation("endDate must be RFC 3339")
		}
		f.EndDate = &ts
	}
	return f, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /api/projects/{projectID}/bugs/{bugID}                                   |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeBug(w http.ResponseWriter, r *http.Request) {
	actorID, projectID, ok := actorAndProject(w, h.Log, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if _, _, err := h.Guard.CanRead(ctx, projectID, actorID); err != nil {
		writeGuardError(w, h.Log, err)
		return
	}

	b, ok := h.loadProjectBug(w, r, ctx, projectID)
	if !ok {
		return
	}
	apperr.WriteJSON(w, http.StatusOK, b)
}

/*─────────────────────────────────────────────────────────────────────────────*
| PUT /api/projects/{projectID}/bugs/{bugID}                                   |
| Partial update: absent fields are untouched. assigned_to follows the same    |
| membership rules as /assign and queues the same notification.                |
*─────────────────────────────────────────────────────────────────────────────*/

type updateBugRequest struct {
	Title         *string `json:"title,omitempty"`
	Description   *string `json:"description,omitempty"`
	Priority      *string `json:"priority,omitempty"`
	Status        *string `json:"status,omitempty"`
	AssignedTo    *string `json:"assigned_to,omitempty"` // "" unassigns
	StatusComment string  `json:"status_comment,omitempty"`
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	actorID, projectID, ok := actorAndProject(w, h.Log, r)
	if !ok {
		return
	}

	var req updateBugRequest
	if err := apperr.DecodeJSON(r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	if req.Title != nil {
		trimmed := strings.TrimSpace(*req.Title)
		req.Title = &trimmed
	}
	if req.Description != nil {
		trimmed := strings.TrimSpace(*req.Description)
		req.Description = &trimmed
	}
	if err := validateBugText(req.Title, req.Description); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	p, _, err := h.Guard.CanWrite(ctx, projectID, actorID)
	if err != nil {
		writeGuardError(w, h.Log, err)
		return
	}

	b, ok := h.loadProjectBug(w, r, ctx, projectID)
	if !ok {
		return
	}

	// Assignment rides along with the other fields but is resolved
	// first, so a bad assignee fails before any field is written.
	var setAssignee bool
	var assigneeID *primitive.ObjectID
	var assignee *models.User
	if req.AssignedTo != nil {
		setAssignee = true
		if *req.AssignedTo != "" {
			id, ok := h.resolveAssignee(w, ctx, p, *req.AssignedTo, &assignee)
			if !ok {
				return
			}
			assigneeID = &id
		}
	}

	upd := bugs.Update{
		Priority:      req.Priority,
		Status:        req.Status,
		StatusComment: req.StatusComment,
	}
	if req.Title != nil {
		clean := htmlsanitize.Sanitize(strings.TrimSpace(*req.Title))
		upd.Title = &clean
	}
	if req.Description != nil {
		clean := htmlsanitize.Sanitize(*req.Description)
		upd.Description = &clean
	}

	updated, changed, err := h.Bugs.ApplyUpdate(ctx, b.ID, actorID, upd)
	if err != nil {
		if errors.Is(err, bugs.ErrBugNotFound) {
			apperr.Write(w, h.Log, apperr.NotFound("bug"))
			return
		}
		apperr.Write(w, h.Log, apperr.Validation(err.Error()))
		return
	}

	if len(changed) > 0 {
		h.AuditLog.BugUpdated(ctx, r, actorID, b.ID, projectID, strings.Join(changed, ","))
	}

	if setAssignee {
		reassigned, didChange, err := h.Bugs.Assign(ctx, b.ID, actorID, assigneeID)
		if err != nil {
			apperr.Write(w, h.Log, apperr.Internal(err))
			return
		}
		if didChange {
			h.AuditLog.BugAssigned(ctx, r, actorID, b.ID, projectID, assigneeID)
			if assignee != nil {
				h.queueAssignmentEmail(ctx, r, reassigned, p, assignee)
			}
		}
		updated = reassigned
	}
	apperr.WriteJSON(w, http.StatusOK, updated)
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /api/projects/{projectID}/bugs/{bugID}/assign                           |
| Body: {"assignee_id": "<hex>"} assigns; {"assignee_id": ""} unassigns.       |
| The assignee must be a member of the project. A changed assignment           |
| queues an email notification through the outbox.                             |
*─────────────────────────────────────────────────────────────────────────────*/

type assignRequest struct {
	AssigneeID string `json:"assignee_id"`
}

func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	actorID, projectID, ok := actorAndProject(w, h.Log, r)
	if !ok {
		return
	}

	var req assignRequest
	if err := apperr.DecodeJSON(r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	p, _, err := h.Guard.CanWrite(ctx, projectID, actorID)
	if err != nil {
		writeGuardError(w, h.Log, err)
		return
	}

	b, ok := h.loadProjectBug(w, r, ctx, projectID)
	if !ok {
		return
	}

	var assigneeID *primitive.ObjectID
	var assignee *models.User
	if req.AssigneeID != "" {
		id, ok := h.resolveAssignee(w, ctx, p, req.AssigneeID, &assignee)
		if !ok {
			return
		}
		assigneeID = &id
	}

	updated, changed, err := h.Bugs.Assign(ctx, b.ID, actorID, assigneeID)
	if err != nil {
		if errors.Is(err, bugs.ErrBugNotFound) {
			apperr.Write(w, h.Log, apperr.NotFound("bug"))
			return
		}
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}

	if changed {
		h.AuditLog.BugAssigned(ctx, r, actorID, b.ID, projectID, assigneeID)
		if assignee != nil {
			h.queueAssignmentEmail(ctx, r, updated, p, assignee)
		}
	}
	apperr.WriteJSON(w, http.StatusOK, updated)
}

// resolveAssignee checks an assignee id: well-formed, a member of the
// project, and an existing user with a deliverable email address. On
// failure it writes the error response and reports ok=false.
func (h *Handler) resolveAssignee(w http.ResponseWriter, ctx context.Context, p *models.Project, raw string, out **models.User) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Validation("invalid assignee id"))
		return primitive.NilObjectID, false
	}
	if _, member := p.MemberByUserID(id); !member {
		apperr.Write(w, h.Log, apperr.Validation("assignee must be a member of the project"))
		return primitive.NilObjectID, false
	}
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		apperr.Write(w, h.Log, apperr.NotFound("user"))
		return primitive.NilObjectID, false
	}
	if !validate.SimpleEmailValid(u.Email) {
		apperr.Write(w, h.Log, apperr.Validation("assignee has no valid email address"))
		return primitive.NilObjectID, false
	}
	*out = u
	return id, true
}

// queueAssignmentEmail appends the notification to the outbox. Failures
// are logged, never surfaced: the assignment itself already succeeded.
func (h *Handler) queueAssignmentEmail(ctx context.Context, r *http.Request, b *models.Bug, p *models.Project, assignee *models.User) {
	if !assignee.ContactPreferences.EmailNotifications {
		return
	}

	actorName := "Someone"
	if su, ok := auth.CurrentUser(r); ok {
		actorName = su.Name
	}
	email := mailer.BuildAssignmentEmail(mailer.AssignmentEmailData{
		SiteName:     h.SiteName,
		AssigneeName: assignee.Name,
		BugTitle:     b.Title,
		BugPriority:  b.Priority,
		ProjectName:  p.Name,
		AssignedBy:   actorName,
		BugLink:      h.BaseURL + "/projects/" + p.ID.Hex() + "/bugs/" + b.ID.Hex(),
	})

	if _, err := h.Outbox.Append(ctx, models.OutboxEvent{
		BugID:     b.ID,
		ProjectID: p.ID,
		Recipient: assignee.Email,
		Subject:   email.Subject,
		Body:      email.TextBody,
	}); err != nil {
		h.Log.Error("failed to queue assignment notification",
			zap.String("bug_id", b.ID.Hex()),
			zap.Error(err))
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /api/projects/{projectID}/bugs/{bugID}/comments                         |
*─────────────────────────────────────────────────────────────────────────────*/

type commentRequest struct {
	Content string `json:"content"`
}

type commentAuthor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type commentView struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	Author    *commentAuthor `json:"author,omitempty"` // omitted when the account was deleted
}

// bugWithComments shadows the raw comments array with author-resolved views.
type bugWithComments struct {
	models.Bug
	Comments []commentView `json:"comments"`
}

// resolveCommentAuthors replaces raw author IDs with user identities so
// clients don't need a lookup per comment.
func (h *Handler) resolveCommentAuthors(ctx context.Context, b *models.Bug) (bugWithComments, error) {
	seen := make(map[primitive.ObjectID]bool, len(b.Comments))
	var ids []primitive.ObjectID
	for _, c := range b.Comments {
		if !seen[c.Author] {
			seen[c.Author] = true
			ids = append(ids, c.Author)
		}
	}

	authors, err := h.Users.ListByIDs(ctx, ids)
	if err != nil {
		return bugWithComments{}, err
	}
	byID := make(map[primitive.ObjectID]commentAuthor, len(authors))
	for _, u := range authors {
		byID[u.ID] = commentAuthor{ID: u.ID.Hex(), Name: u.Name, Email: u.Email}
	}

	views := make([]commentView, 0, len(b.Comments))
	for _, c := range b.Comments {
		v := commentView{ID: c.ID.Hex(), Content: c.Content, CreatedAt: c.CreatedAt}
		if a, ok := byID[c.Author]; ok {
			v.Author = &a
		}
		views = append(views, v)
	}
	return bugWithComments{Bug: *b, Comments: views}, nil
}

func (h *Handler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	actorID, projectID, ok := actorAndProject(w, h.Log, r)
	if !ok {
		return
	}

	var req commentRequest
	if err := apperr.DecodeJSON(r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		apperr.Write(w, h.Log, apperr.Validation("comment content is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	// Commenting is open to every member, testers included; it is how
	// testers report back on bugs they cannot otherwise modify.
	if _, _, err := h.Guard.CanRead(ctx, projectID, actorID); err != nil {
		writeGuardError(w, h.Log, err)
		return
	}

	b, ok := h.loadProjectBug(w, r, ctx, projectID)
	if !ok {
		return
	}

	if _, err := h.Bugs.AddComment(ctx, b.ID, actorID, htmlsanitize.Sanitize(strings.TrimSpace(req.Content))); err != nil {
		if errors.Is(err, bugs.ErrBugNotFound) {
			apperr.Write(w, h.Log, apperr.NotFound("bug"))
			return
		}
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}

	updated, err := h.Bugs.GetByID(ctx, b.ID)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}
	resp, err := h.resolveCommentAuthors(ctx, updated)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}

	h.AuditLog.BugCommented(ctx, r, actorID, b.ID, projectID)
	apperr.WriteJSON(w, http.StatusCreated, resp)
}

/*─────────────────────────────────────────────────────────────────────────────*
| DELETE /api/projects/{projectID}/bugs/{bugID}                                |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actorID, projectID, ok := actorAndProject(w, h.Log, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if _, _, err := h.Guard.CanManage(ctx, projectID, actorID); err != nil {
		writeGuardError(w, h.Log, err)
		return
	}

	b, ok := h.loadProjectBug(w, r, ctx, projectID)
	if !ok {
		return
	}

	if err := h.Bugs.Delete(ctx, b.ID); err != nil {
		if errors.Is(err, bugs.ErrBugNotFound) {
			apperr.Write(w, h.Log, apperr.NotFound("bug"))
			return
		}
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}

	h.AuditLog.BugDeleted(ctx, r, actorID, b.ID, projectID, b.Title)
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": "bug deleted"})
}

// helpers

// loadProjectBug fetches the {bugID} bug and verifies it belongs to the
// project in the URL, so bugs cannot be reached through a project the
// caller merely happens to be a member of.
func (h *Handler) loadProjectBug(w http.ResponseWriter, r *http.Request, ctx context.Context, projectID primitive.ObjectID) (*models.Bug, bool) {
	bugID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "bugID"))
	if err != nil {
		apperr.Write(w, h.Log, apperr.Validation("invalid bug id"))
		return nil, false
	}

	b, err := h.Bugs.GetByID(ctx, bugID)
	if err != nil {
		apperr.Write(w, h.Log, apperr.NotFound("bug"))
		return nil, false
	}
	if b.Project != projectID {
		apperr.Write(w, h.Log, apperr.NotFound("bug"))
		return nil, false
	}
	return b, true
}

func actor(w http.ResponseWriter, log *zap.Logger, r *http.Request) (primitive.ObjectID, bool) {
	_, _, id, ok := authz.UserCtx(r)
	if !ok {
		apperr.Write(w, log, apperr.Forbidden("authentication required"))
		return primitive.NilObjectID, false
	}
	return id, true
}

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

func writeGuardError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, projects.ErrProjectNotFound):
		apperr.Write(w, log, apperr.NotFound("project"))
	case errors.Is(err, projectpolicy.ErrNotAMember):
		apperr.Write(w, log, apperr.Forbidden("you are not a member of this project"))
	case errors.Is(err, projectpolicy.ErrInsufficientRole):
		apperr.Write(w, log, apperr.Forbidden("your project role does not permit this operation"))
	default:
		apperr.Write(w, log, err)
	}
}

func parseInt64(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
