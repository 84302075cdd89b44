// internal/app/features/usersdir/handler.go

// Package usersdir exposes the user directory: admins can list every
// account, and any signed-in user can look up a single user by id.
package usersdir

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dalemusser/trackhub/internal/app/store/users"
	"github.com/dalemusser/trackhub/internal/app/system/apperr"
	"github.com/dalemusser/trackhub/internal/app/system/timeouts"
	"github.com/dalemusser/trackhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handler owns the user directory endpoints.
type Handler struct {
	Users *users.Store
	Log   *zap.Logger
}

func NewHandler(userStore *users.Store, logger *zap.Logger) *Handler {
	return &Handler{Users: userStore, Log: logger}
}

type userResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Avatar string `json:"avatar,omitempty"`
}

func toUserResponse(u models.User) userResponse {
	return userResponse{
		ID:     u.ID.Hex(),
		Name:   u.Name,
		Email:  u.Email,
		Role:   u.Role,
		Avatar: u.Avatar,
	}
}

type listResponse struct {
	Users []userResponse `json:"users"`
	Total int64          `json:"total"`
	Limit int64          `json:"limit"`
	Skip  int64          `json:"skip"`
}

// ServeList handles GET /api/users?limit=&skip=.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	limit := parseInt64(query.Get(r, "limit"), defaultPageSize)
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	skip := parseInt64(query.Get(r, "skip"), 0)
	if skip < 0 {
		skip = 0
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	list, total, err := h.Users.List(ctx, limit, skip)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}

	resp := listResponse{
		Users: make([]userResponse, 0, len(list)),
		Total: total,
		Limit: limit,
		Skip:  skip,
	}
	for _, u := range list {
		resp.Users = append(resp.Users, toUserResponse(u))
	}
	apperr.WriteJSON(w, http.StatusOK, resp)
}

// ServeUser handles GET /api/users/{userID}.
func (h *Handler) ServeUser(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "userID"))
	if err != nil {
		apperr.Write(w, h.Log, apperr.Validation("invalid user id"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		apperr.Write(w, h.Log, apperr.NotFound("user"))
		return
	}
	apperr.WriteJSON(w, http.StatusOK, toUserResponse(*u))
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
