package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/faceid/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	personsHandler := handlers.NewPersonsHandler(s.engine)
	enrollHandler := handlers.NewEnrollHandler(s.engine, s.config.Matching.QualityThreshold)
	identifyHandler := handlers.NewIdentifyHandler(s.engine)
	indexHandler := handlers.NewIndexHandler(s.engine, s.config.Index.Path)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Persons
		r.Post("/persons", personsHandler.Create)
		r.Get("/persons", personsHandler.List)
		r.Get("/persons/{id}", personsHandler.Get)
		r.Delete("/persons/{id}", personsHandler.Delete)
		r.Get("/persons/{id}/faces", personsHandler.ListFaces)

		// Enrollment
		r.Post("/persons/{id}/enroll", enrollHandler.Enroll)
		r.Get("/enrollments/{id}", enrollHandler.Get)

		// Matching
		r.Post("/identify", identifyHandler.Identify)
		r.Post("/verify", identifyHandler.Verify)

		// Faces
		r.Delete("/faces/{id}", personsHandler.DeleteFace)

		// Index maintenance
		r.Get("/index/stats", indexHandler.Stats)
		r.Post("/index/save", indexHandler.Save)
		r.Post("/index/rebuild", indexHandler.Rebuild)
	})
}
