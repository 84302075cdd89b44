// internal/app/features/profile/handler.go
package profile

import (
	"context"
	"net/http"

	"github.com/dalemusser/trackhub/internal/app/store/users"
	"github.com/dalemusser/trackhub/internal/app/system/apperr"
	"github.com/dalemusser/trackhub/internal/app/system/authz"
	"github.com/dalemusser/trackhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/trackhub/internal/app/system/normalize"
	"github.com/dalemusser/trackhub/internal/app/system/timeouts"
	"github.com/dalemusser/trackhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler owns the signed-in user's profile endpoints.
type Handler struct {
	Users *users.Store
	Log   *zap.Logger
}

func NewHandler(userStore *users.Store, logger *zap.Logger) *Handler {
	return &Handler{Users: userStore, Log: logger}
}

// profileResponse includes the private fields (contact preferences)
// that the public user shape omits.
type profileResponse struct {
	ID                 string                    `json:"id"`
	Name               string                    `json:"name"`
	Email              string                    `json:"email"`
	Role               string                    `json:"role"`
	Avatar             string                    `json:"avatar,omitempty"`
	Bio                string                    `json:"bio,omitempty"`
	ContactPreferences models.ContactPreferences `json:"contact_preferences"`
	GoogleLinked       bool                      `json:"google_linked"`
}

func toProfileResponse(u *models.User) profileResponse {
	return profileResponse{
		ID:                 u.ID.Hex(),
		Name:               u.Name,
		Email:              u.Email,
		Role:               u.Role,
		Avatar:             u.Avatar,
		Bio:                u.Bio,
		ContactPreferences: u.ContactPreferences,
		GoogleLinked:       u.GoogleID != nil && *u.GoogleID != "",
	}
}

// ServeProfile handles GET /api/profile.
func (h *Handler) ServeProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, h.Log, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		apperr.Write(w, h.Log, apperr.NotFound("user"))
		return
	}
	apperr.WriteJSON(w, http.StatusOK, toProfileResponse(u))
}

type updateProfileRequest struct {
	Name               string                    `json:"name"`
	Avatar             string                    `json:"avatar"`
	Bio                string                    `json:"bio"`
	ContactPreferences models.ContactPreferences `json:"contact_preferences"`
}

// HandleUpdateProfile handles PUT /api/profile. Email and role cannot
// be changed here; bio is sanitized since it may be rendered as HTML by
// clients.
func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, h.Log, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := apperr.DecodeJSON(r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	if normalize.Name(req.Name) == "" {
		apperr.Write(w, h.Log, apperr.Validation("name is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	u, err := h.Users.UpdateProfile(ctx, userID, users.ProfileUpdate{
		Name:               req.Name,
		Avatar:             req.Avatar,
		Bio:                htmlsanitize.Sanitize(req.Bio),
		ContactPreferences: req.ContactPreferences,
	})
	if err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, toProfileResponse(u))
}

// currentUserID extracts the signed-in user's ObjectID, writing the
// error response itself when that fails.
func currentUserID(w http.ResponseWriter, log *zap.Logger, r *http.Request) (primitive.ObjectID, bool) {
	_, _, id, ok := authz.UserCtx(r)
	if !ok {
		apperr.Write(w, log, apperr.Forbidden("authentication required"))
		return primitive.NilObjectID, false
	}
	return id, true
}
