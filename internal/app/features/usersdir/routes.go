// internal/app/features/usersdir/routes.go
package usersdir

import (
	"github.com/dalemusser/trackhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)
	// The full directory is admin-only; individual lookups are open to
	// any signed-in user so assignee names can be displayed.
	r.With(auth.RequireRole("admin")).Get("/", h.ServeList)
	r.Get("/{userID}", h.ServeUser)
	return r
}
