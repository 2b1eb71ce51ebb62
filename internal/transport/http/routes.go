package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "evidence-job-service/docs"
)

// NewRouter wires the API surface. Case and evidence ingestion happen
// elsewhere; this service owns job submission and observation.
func NewRouter(handler *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/cases/{caseID}/jobs", func(r chi.Router) {
		r.Post("/", handler.SubmitJob)
		r.Get("/", handler.ListCaseJobs)
	})
	r.Get("/jobs/{id}", handler.GetJob)
	r.Get("/modules", handler.ListModules)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
