// internal/app/features/projectsapi/routes.go
package projectsapi

import (
	"github.com/dalemusser/trackhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes builds the project router. bugRoutes is mounted under
// /{projectID}/bugs so bug URLs always carry their project scope.
func Routes(h *Handler, bugRoutes chi.Router) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Post("/", h.HandleCreate)
	r.Get("/", h.ServeList)

	r.Route("/{projectID}", func(r chi.Router) {
		r.Get("/", h.ServeProject)
		r.Put("/", h.HandleUpdate)
		r.Delete("/", h.HandleDelete)

		r.Get("/members", h.ServeMembers)
		r.Post("/members", h.HandleAddMember)
		r.Put("/members/{userID}", h.HandleUpdateMember)
		r.Delete("/members/{userID}", h.HandleRemoveMember)

		r.Mount("/bugs", bugRoutes)
	})
	return r
}
