// internal/app/features/googleauth/handler.go
package googleauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/trackhub/internal/app/store/users"
	"github.com/dalemusser/trackhub/internal/app/system/apperr"
	"github.com/dalemusser/trackhub/internal/app/system/auditlog"
	"github.com/dalemusser/trackhub/internal/app/system/auth"
	"github.com/dalemusser/trackhub/internal/app/system/timeouts"
	"github.com/dalemusser/trackhub/internal/domain/models"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	stateCookieName = "oauth_state"
	stateCookieTTL  = 600 // seconds
)

// Handler handles Google OAuth sign-in. Accounts are matched by linked
// Google ID first, then by email (which links the Google ID), and are
// created on the fly for first-time users.
type Handler struct {
	Users    *users.Store
	Auth     *auth.Manager
	AuditLog *auditlog.Logger
	Log      *zap.Logger

	ClientID     string
	ClientSecret string
	RedirectURL  string // e.g., "https://trackhub.example.com/api/auth/google/callback"

	state *securecookie.SecureCookie
}

// NewHandler creates a Google OAuth handler. stateKey signs the state
// cookie that ties the callback to the browser that started the flow.
func NewHandler(userStore *users.Store, authMgr *auth.Manager, audit *auditlog.Logger,
	clientID, clientSecret, baseURL string, stateKey []byte, logger *zap.Logger) *Handler {
	sc := securecookie.New(stateKey, nil)
	sc.MaxAge(stateCookieTTL)
	return &Handler{
		Users:        userStore,
		Auth:         authMgr,
		AuditLog:     audit,
		Log:          logger,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  baseURL + "/api/auth/google/callback",
		state:        sc,
	}
}

func (h *Handler) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.ClientID,
		ClientSecret: h.ClientSecret,
		RedirectURL:  h.RedirectURL,
		Scopes: []string{
			"openid",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

// IsConfigured reports whether Google OAuth credentials are present.
func (h *Handler) IsConfigured() bool {
	return h.ClientID != "" && h.ClientSecret != ""
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /api/auth/google                                                         |
| Starts the flow: sets the signed state cookie and redirects to Google.       |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if !h.IsConfigured() {
		apperr.Write(w, h.Log, apperr.Validation("google sign-in is not configured"))
		return
	}

	state, err := generateState()
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}

	encoded, err := h.state.Encode(stateCookieName, state)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   stateCookieTTL,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.oauth2Config().AuthCodeURL(state), http.StatusTemporaryRedirect)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /api/auth/google/callback                                                |
| Exchanges the code, resolves or creates the account, returns a token.        |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.Log.Warn("google oauth denied",
			zap.String("error", errParam),
			zap.String("description", r.URL.Query().Get("error_description")))
		apperr.Write(w, h.Log, apperr.Forbidden("google sign-in was denied"))
		return
	}

	if err := h.checkState(w, r); err != nil {
		apperr.Write(w, h.Log, err)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		apperr.Write(w, h.Log, apperr.Validation("missing authorization code"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	token, err := h.oauth2Config().Exchange(ctx, code)
	if err != nil {
		h.Log.Error("google token exchange failed", zap.Error(err))
		apperr.Write(w, h.Log, apperr.Validation("authorization code exchange failed"))
		return
	}

	info, err := fetchUserInfo(ctx, token)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}
	if info.Email == "" {
		apperr.Write(w, h.Log, apperr.Validation("google account has no email"))
		return
	}

	u, created, err := h.resolveUser(ctx, info)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}

	if created {
		h.AuditLog.UserRegistered(ctx, r, u.ID, u.Email)
	}
	h.AuditLog.GoogleLoginSuccess(ctx, r, u.ID, u.Email)

	jwt, err := h.Auth.IssueToken(u.ID.Hex(), u.Name, u.Email, u.Role)
	if err != nil {
		apperr.Write(w, h.Log, apperr.Internal(err))
		return
	}

	apperr.WriteJSON(w, http.StatusOK, map[string]any{
		"token": jwt,
		"user": map[string]string{
			"id":    u.ID.Hex(),
			"name":  u.Name,
			"email": u.Email,
			"role":  u.Role,
		},
	})
}

// checkState verifies the query state against the signed cookie and
// clears the cookie either way, making the state single-use.
func (h *Handler) checkState(w http.ResponseWriter, r *http.Request) *apperr.Error {
	queryState := r.URL.Query().Get("state")
	if queryState == "" {
		return apperr.Validation("missing state parameter")
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		return apperr.Validation("missing state cookie")
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/", MaxAge: -1})

	var stored string
	if err := h.state.Decode(stateCookieName, cookie.Value, &stored); err != nil {
		return apperr.Validation("invalid or expired state cookie")
	}
	if stored != queryState {
		h.Log.Warn("oauth state mismatch")
		return apperr.Validation("state mismatch")
	}
	return nil
}

// resolveUser maps Google identity to a local account, linking or
// creating as needed. Reports whether a new account was created.
func (h *Handler) resolveUser(ctx context.Context, info *userInfo) (*models.User, bool, error) {
	u, err := h.Users.GetByGoogleID(ctx, info.ID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, users.ErrUserNotFound) {
		return nil, false, err
	}

	u, err = h.Users.GetByEmail(ctx, info.Email)
	if err == nil {
		if err := h.Users.LinkGoogleID(ctx, u.ID, info.ID); err != nil {
			return nil, false, err
		}
		return u, false, nil
	}
	if !errors.Is(err, users.ErrUserNotFound) {
		return nil, false, err
	}

	name := info.Name
	if name == "" {
		name = info.Email
	}
	created, err := h.Users.Create(ctx, models.User{
		Name:   name,
		Email:  info.Email,
		Avatar: info.Picture,
		// No password hash: this account can only sign in via Google
		// until a reset sets one.
	})
	if err != nil {
		return nil, false, err
	}
	if err := h.Users.LinkGoogleID(ctx, created.ID, info.ID); err != nil {
		return nil, false, err
	}
	return &created, true, nil
}

// userInfo is the subset of Google's userinfo response we use.
type userInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func fetchUserInfo(ctx context.Context, token *oauth2.Token) (*userInfo, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return nil, fmt.Errorf("fetch google user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google userinfo returned status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode google user info: %w", err)
	}
	return &info, nil
}

func generateState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
