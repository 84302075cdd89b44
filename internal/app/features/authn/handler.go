// internal/app/features/authn/handler.go
package authn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/trackhub/internal/app/store/users"
	"github.com/dalemusser/trackhub/internal/app/system/apperr"
	"github.com/dalemusser/trackhub/internal/app/system/auditlog"
	"github.com/dalemusser/trackhub/internal/app/system/auth"
	"github.com/dalemusser/trackhub/internal/app/system/mailer"
	"github.com/dalemusser/trackhub/internal/app/system/normalize"
	"github.com/dalemusser/trackhub/internal/app/system/ratelimit"
	"github.com/dalemusser/trackhub/internal/app/system/timeouts"
	"github.com/dalemusser/trackhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is deliberately above the library default; login is rare
// enough that the extra hashing time is acceptable.
const bcryptCost = 12

// Reset tokens are 32 random bytes (64 hex chars) valid for one hour.
const (
	resetTokenBytes = 32
	resetTokenTTL   = time.Hour
)

// Handler owns registration, login, and password management.
type Handler struct {
	Users    *users.Store
	Auth     *auth.Manager
	Limiter  *ratelimit.LoginLimiter
	AuditLog *auditlog.Logger
	Mail     mailer.Sender
	BaseURL  string
	SiteName string
	Log      *zap.Logger
}

// NewHandler constructs the authentication handler.
func NewHandler(userStore *users.Store, authMgr *auth.Manager, limiter *ratelimit.LoginLimiter,
	audit *auditlog.Logger, mail mailer.Sender, baseURL, siteName string, logger *zap.Logger) *Handler {
	return &Handler{
		Users:    userStore,
		Auth:     authMgr,
		Limiter:  limiter,
		AuditLog: audit,
		Mail:     mail,
		BaseURL:  baseURL,
		SiteName: siteName,
		Log:      logger,
	}
}

// userResponse is the public shape of a user record. The password hash
// and reset token never leave the store layer.
type userResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Avatar string `json:"avatar,omitempty"`
	Bio    string `json:"bio,omitempty"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:     u.ID.Hex(),
		Name:   u.Name,
		Email:  u.Email,
		Role:   u.Role,
		Avatar: u.Avatar,
		Bio:    u.Bio,
	}
}

// tokenResponse is returned by register and login.
type tokenResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /api/auth/register                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := apperr.DecodeJSON(r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	if normalize.Name(req.Name) == "" {
		apperr.Write(w, h.Log, apperr.Validation("name is required"))
		return
	}
	if normalize.Email(req.Email) == "" {
		apperr.Write(w, h.Log, apperr.Validation("email is required"))
		return
	}
	if len(req.Password) < 8 {
		apperr.Write(w, h.Log, apperr.Validation("password must be at least 8 characters"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	created, err := h.Users.Create(ctx, models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         req.Role,
	})
	if err != nil {
		if errors.Is(err, users.ErrDuplicateEmail) {
			apperr.Write(w, h.Log, apperr.Conflict("a user with this email already exists"))
			return
		}
		apperr.Write(w, h.Log, apperr.Validation(err.Error()))
		return
	}

	h.AuditLog.UserRegistered(ctx, r, created.ID, created.Email)

	token, err := h.Auth.IssueToken(created.ID.Hex(), created.Name, created.Email, created.Role)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}
	apperr.WriteJSON(w, http.StatusCreated, tokenResponse{Token: token, User: toUserResponse(&created)})
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /api/auth/login                                                         |
*─────────────────────────────────────────────────────────────────────────────*/

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := apperr.DecodeJSON(r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}

	email := normalize.Email(req.Email)
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if allowed, reason := h.Limiter.Check(r, email); !allowed {
		h.AuditLog.LoginFailedRateLimit(ctx, r, email)
		h.Log.Warn("login rate limited", zap.String("reason", reason))
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts, try again later")
		return
	}

	u, err := h.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			h.AuditLog.LoginFailedUserNotFound(ctx, r, email)
			writeInvalidCredentials(w)
			return
		}
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}

	// Google-only accounts have no password hash to check.
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		h.AuditLog.LoginFailedWrongPassword(ctx, r, u.ID, u.Email)
		writeInvalidCredentials(w)
		return
	}

	h.Limiter.ResetEmail(email)
	h.AuditLog.LoginSuccess(ctx, r, u.ID, u.Email)

	token, err := h.Auth.IssueToken(u.ID.Hex(), u.Name, u.Email, u.Role)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}
	apperr.WriteJSON(w, http.StatusOK, tokenResponse{Token: token, User: toUserResponse(u)})
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /api/auth/password  (signed in)                                         |
*─────────────────────────────────────────────────────────────────────────────*/

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	su, ok := auth.CurrentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	userID, err := primitive.ObjectIDFromHex(su.ID)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}

	var req changePasswordRequest
	if err := apperr.DecodeJSON(r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	if len(req.NewPassword) < 8 {
		apperr.Write(w, h.Log, apperr.Validation("new password must be at least 8 characters"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		apperr.Write(w, h.Log, apperr.NotFound("user"))
		return
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.CurrentPassword)) != nil {
		apperr.Write(w, h.Log, apperr.Forbidden("current password is incorrect"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}
	if err := h.Users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}

	h.AuditLog.PasswordChanged(ctx, r, userID)
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /api/auth/forgot-password                                               |
*─────────────────────────────────────────────────────────────────────────────*/

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// HandleForgotPassword always answers 200 with the same body so the
// endpoint cannot be used to probe which emails have accounts.
func (h *Handler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := apperr.DecodeJSON(r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	genericOK := func() {
		apperr.WriteJSON(w, http.StatusOK, map[string]string{
			"message": "if that email has an account, a reset link has been sent",
		})
	}

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, users.ErrUserNotFound) {
			h.Log.Error("forgot-password lookup failed", zap.Error(err))
		}
		genericOK()
		return
	}

	token, err := newResetToken()
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}
	expires := time.Now().UTC().Add(resetTokenTTL)
	if err := h.Users.SetResetToken(ctx, u.ID, token, expires); err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}

	email := mailer.BuildResetEmail(mailer.ResetEmailData{
		SiteName:  h.SiteName,
		UserName:  u.Name,
		ResetLink: h.BaseURL + "/reset-password?token=" + token,
		ExpiresIn: "1 hour",
	})
	email.To = u.Email
	if err := h.Mail.Send(ctx, email); err != nil {
		// The token is already stored; the user can retry the request.
		h.Log.Error("failed to send reset email", zap.Error(err))
	}

	h.AuditLog.PasswordResetRequested(ctx, r, u.ID, u.Email)
	genericOK()
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /api/auth/reset-password                                                |
*─────────────────────────────────────────────────────────────────────────────*/

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Handler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := apperr.DecodeJSON(r, &req); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}
	if len(req.Password) < 8 {
		apperr.Write(w, h.Log, apperr.Validation("password must be at least 8 characters"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	u, err := h.Users.GetByResetToken(ctx, req.Token)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Validation("invalid or expired reset token"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}
	if err := h.Users.ResetPassword(ctx, u.ID, string(hash)); err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}

	h.AuditLog.PasswordResetCompleted(ctx, r, u.ID)
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": "password has been reset"})
}

// HandleLogout acknowledges a sign-out. Tokens are stateless bearer
// JWTs with no server-side session to revoke; clients discard the
// token and this endpoint exists so they have a uniform call to make.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	apperr.WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// helpers

func newResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func writeInvalidCredentials(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
}

// writeError mirrors the apperr wire shape for the statuses (401, 429)
// that sit outside the apperr taxonomy.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]map[string]string{
		"error": {"kind": kind, "message": msg},
	})
}
