// internal/app/features/bugsapi/routes.go
package bugsapi

import (
	"github.com/dalemusser/trackhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes is mounted under /api/projects/{projectID}/bugs.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Post("/", h.HandleCreate)
	r.Get("/", h.ServeList)

	r.Route("/{bugID}", func(r chi.Router) {
		r.Get("/", h.ServeBug)
		r.Put("/", h.HandleUpdate)
		r.Delete("/", h.HandleDelete)
		r.Post("/assign", h.HandleAssign)
		r.Post("/comments", h.HandleAddComment)
	})
	return r
}
