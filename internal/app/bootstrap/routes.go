// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	authnfeature "github.com/dalemusser/trackhub/internal/app/features/authn"
	bugsfeature "github.com/dalemusser/trackhub/internal/app/features/bugsapi"
	googleauthfeature "github.com/dalemusser/trackhub/internal/app/features/googleauth"
	healthfeature "github.com/dalemusser/trackhub/internal/app/features/health"
	profilefeature "github.com/dalemusser/trackhub/internal/app/features/profile"
	projectsfeature "github.com/dalemusser/trackhub/internal/app/features/projectsapi"
	usersdirfeature "github.com/dalemusser/trackhub/internal/app/features/usersdir"
	"github.com/dalemusser/trackhub/internal/app/policy/projectpolicy"
	auditstore "github.com/dalemusser/trackhub/internal/app/store/audit"
	"github.com/dalemusser/trackhub/internal/app/store/bugs"
	"github.com/dalemusser/trackhub/internal/app/store/outbox"
	"github.com/dalemusser/trackhub/internal/app/store/projects"
	"github.com/dalemusser/trackhub/internal/app/store/users"
	"github.com/dalemusser/trackhub/internal/app/system/auditlog"
	"github.com/dalemusser/trackhub/internal/app/system/auth"
	"github.com/dalemusser/trackhub/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. At this point you have access to:
//   - coreCfg: WAFFLE core configuration (ports, env, timeouts, etc.)
//   - appCfg: app-specific configuration defined in AppConfig
//   - deps: any DB or backend clients bundled in DBDeps
//   - logger: the fully configured zap.Logger for this app
//
// TrackHub is a JSON API. The token middleware loads the current user
// into context for every request; each feature router decides whether
// an anonymous caller is acceptable.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	db := deps.MongoDatabase

	authMgr, err := auth.NewManager(appCfg.JWTSecret, appCfg.JWTTTL, logger)
	if err != nil {
		logger.Error("auth manager init failed", zap.Error(err))
		return nil, err
	}

	// Stores shared across features.
	userStore := users.New(db)
	projectStore := projects.New(db)
	bugStore := bugs.New(db)
	outboxStore := outbox.New(db)

	guard := projectpolicy.New(projectStore)
	auditLog := auditlog.New(auditstore.New(db), logger, auditlog.Config{
		Auth:     appCfg.AuditLogAuth,
		Activity: appCfg.AuditLogActivity,
	})

	r := chi.NewRouter()

	// Global auth middleware: loads the bearer-token user into context.
	// This makes the current user available to all handlers via auth.CurrentUser(r).
	r.Use(authMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, outboxStore, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Route("/api", func(api chi.Router) {
		// Authentication: register, login, password lifecycle.
		authnHandler := authnfeature.NewHandler(userStore, authMgr, ratelimit.NewLoginLimiter(),
			auditLog, newMailSender(appCfg, logger), appCfg.BaseURL, appCfg.SiteName, logger)
		api.Mount("/auth", authnfeature.Routes(authnHandler))

		// Google OAuth login. The static /auth/google prefix wins over
		// the /auth mount above, so both can coexist.
		googleHandler := googleauthfeature.NewHandler(userStore, authMgr, auditLog,
			appCfg.GoogleClientID, appCfg.GoogleClientSecret, appCfg.BaseURL,
			[]byte(appCfg.OAuthStateKey), logger)
		api.Mount("/auth/google", googleauthfeature.Routes(googleHandler))

		// Current user's profile.
		profileHandler := profilefeature.NewHandler(userStore, logger)
		api.Mount("/profile", profilefeature.Routes(profileHandler))

		// User directory: admin-only listing, per-user lookup for all.
		usersHandler := usersdirfeature.NewHandler(userStore, logger)
		api.Mount("/users", usersdirfeature.Routes(usersHandler))

		// Projects, with bugs nested under each project.
		bugsHandler := bugsfeature.NewHandler(bugStore, userStore, outboxStore, guard,
			auditLog, appCfg.BaseURL, appCfg.SiteName, logger)
		projectsHandler := projectsfeature.NewHandler(deps.MongoClient, projectStore, bugStore,
			userStore, guard, auditLog, logger)
		api.Mount("/projects", projectsfeature.Routes(projectsHandler, bugsfeature.Routes(bugsHandler)))
	})

	return r, nil
}
