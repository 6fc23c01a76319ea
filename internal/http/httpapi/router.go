package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"paintnum/internal/http/handlers"
	"paintnum/internal/middleware"
)

// NewRouter wires the API routes and the static mounts for uploaded and
// processed files.
func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(app.Config.CORSOrigins))
	r.Use(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute))
	r.Use(middleware.Logger(app.Logger))

	r.Get("/healthz", app.Health)

	r.Post("/upload", app.Upload)

	r.Route("/project", func(r chi.Router) {
		r.Post("/", app.ProjectsCreate)
		r.Get("/", app.ProjectsList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.ProjectsGet)
			r.Patch("/", app.ProjectsUpdate)
			r.Delete("/", app.ProjectsDelete)
			r.Post("/process", app.ProjectsProcess)
		})
	})

	// Originals and pipeline outputs are served read-only.
	fileServer(r, "/uploads", http.Dir(app.Files.BasePath()))
	fileServer(r, "/processed", http.Dir(app.Files.ProcessedPath()))

	return r
}

func fileServer(r chi.Router, prefix string, root http.FileSystem) {
	fs := http.StripPrefix(prefix, http.FileServer(root))
	r.Get(prefix+"/*", func(w http.ResponseWriter, req *http.Request) {
		fs.ServeHTTP(w, req)
	})
}
