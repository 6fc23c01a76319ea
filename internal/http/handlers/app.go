package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"paintnum/internal/domain"
	"paintnum/internal/infra"
	"paintnum/internal/paint"
	"paintnum/internal/storage"
)

// Processor runs the paint-by-numbers pipeline. Satisfied by *paint.Pipeline
// and by fakes in tests.
type Processor interface {
	Process(ctx context.Context, sourcePath string, numColors int, outputName string) (*paint.Result, error)
}

// App is the handler container with its injected collaborators.
type App struct {
	Config   *infra.Config
	Logger   zerolog.Logger
	Projects domain.ProjectRepository
	Files    *storage.FileStore
	Pipeline Processor
}

func NewApp(cfg *infra.Config, logger zerolog.Logger, projects domain.ProjectRepository, files *storage.FileStore, pipeline Processor) *App {
	return &App{Config: cfg, Logger: logger, Projects: projects, Files: files, Pipeline: pipeline}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{"error": code, "message": message})
}
