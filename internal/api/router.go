package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/pvarki/takbackend/internal/api/handlers"
	mw "github.com/pvarki/takbackend/internal/api/middleware"
)

type Dependencies struct {
	HMACSecret  []byte
	CORSOrigins []string
	RateLimiter *mw.RateLimiter

	HealthHandler       *handlers.HealthHandler
	InstancesHandler    *handlers.InstancesHandler
	SequencesHandler    *handlers.SequencesHandler
	CallbacksHandler    *handlers.CallbacksHandler
	InstructionsHandler *handlers.InstructionsHandler
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS(dep.CORSOrigins))
	if dep.RateLimiter != nil {
		r.Use(dep.RateLimiter.Middleware)
	}
	r.Use(chimid.Compress(5))

	// Health endpoints
	r.Get("/healthz", dep.HealthHandler.Liveness)
	r.Get("/readyz", dep.HealthHandler.Readiness)

	r.Route("/api/v1", func(api chi.Router) {
		// Public: the pipeline callback and links handed to end users.
		api.Post("/tak/callbacks/{id}", dep.CallbacksHandler.Complete)
		api.Get("/sequences/nextclient/{id}", dep.SequencesHandler.NextClient)
		api.Get("/tak/clients/{id}/instructions", dep.InstructionsHandler.Client)
		api.Get("/tak/clients/{id}/instructions/zip", dep.InstructionsHandler.ClientZip)
		api.Get("/tak/instances/{id}/instructions", dep.InstructionsHandler.Owner)
		api.Get("/tak/instances/{id}/instructions/enduser", dep.InstructionsHandler.EndUser)

		// Protected routes
		api.Group(func(protected chi.Router) {
			protected.Use(mw.Auth(dep.HMACSecret))

			protected.Get("/tak/instances", dep.InstancesHandler.List)
			protected.Post("/tak/instances", dep.InstancesHandler.Create)
			protected.Get("/tak/instances/{id}", dep.InstancesHandler.Get)
			protected.Delete("/tak/instances/{id}", dep.InstancesHandler.Delete)
			protected.Get("/tak/instances/{id}/sequences", dep.SequencesHandler.ListForInstance)

			protected.Post("/tak/sequences", dep.SequencesHandler.Create)
			protected.Delete("/tak/sequences/{id}", dep.SequencesHandler.Delete)
		})
	})

	return r
}
