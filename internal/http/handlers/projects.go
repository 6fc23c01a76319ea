package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"paintnum/internal/domain"
	"paintnum/internal/paint"
	"paintnum/internal/quant"
	"paintnum/internal/stylize"
)

type createProjectRequest struct {
	Title     string `json:"title"`
	ImageURL  string `json:"imageUrl"`
	NumColors int    `json:"numColors"`
}

type updateProjectRequest struct {
	Title     *string `json:"title"`
	ImageURL  *string `json:"imageUrl"`
	NumColors *int    `json:"numColors"`
}

type projectResponse struct {
	ID                int64  `json:"id"`
	Title             string `json:"title"`
	ImageURL          string `json:"imageUrl"`
	NumColors         int    `json:"numColors"`
	Status            string `json:"status"`
	ProcessedImageURL string `json:"processedImageUrl,omitempty"`
	PaletteImageURL   string `json:"paletteImageUrl,omitempty"`
	ArchiveURL        string `json:"archiveUrl,omitempty"`
	ErrorMessage      string `json:"errorMessage,omitempty"`
	CreatedAt         string `json:"createdAt"`
	UpdatedAt         string `json:"updatedAt"`
}

func toProjectResponse(p *domain.Project) projectResponse {
	return projectResponse{
		ID:                p.ID,
		Title:             p.Title,
		ImageURL:          p.ImageURL,
		NumColors:         p.NumColors,
		Status:            string(p.Status),
		ProcessedImageURL: p.ProcessedImageURL,
		PaletteImageURL:   p.PaletteImageURL,
		ArchiveURL:        p.ArchiveURL,
		ErrorMessage:      p.ErrorMessage,
		CreatedAt:         p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         p.UpdatedAt.Format(time.RFC3339),
	}
}

func (a *App) ProjectsCreate(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.ImageURL) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "imageUrl required")
		return
	}
	if req.NumColors < 0 || req.NumColors > a.Config.MaxNumColors {
		a.error(w, http.StatusBadRequest, "bad_request",
			fmt.Sprintf("numColors must be within [0, %d]", a.Config.MaxNumColors))
		return
	}

	p, err := a.Projects.Create(r.Context(), &domain.Project{
		Title:     strings.TrimSpace(req.Title),
		ImageURL:  strings.TrimSpace(req.ImageURL),
		NumColors: req.NumColors,
	})
	if err != nil {
		a.Logger.Error().Err(err).Msg("project create failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create project")
		return
	}
	a.json(w, http.StatusCreated, toProjectResponse(p))
}

func (a *App) ProjectsList(w http.ResponseWriter, r *http.Request) {
	projects, err := a.Projects.List(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("project list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list projects")
		return
	}
	items := make([]projectResponse, 0, len(projects))
	for i := range projects {
		items = append(items, toProjectResponse(&projects[i]))
	}
	a.json(w, http.StatusOK, items)
}

func (a *App) ProjectsGet(w http.ResponseWriter, r *http.Request) {
	id, ok := a.projectID(w, r)
	if !ok {
		return
	}
	p, err := a.Projects.GetByID(r.Context(), id)
	if err != nil {
		a.projectError(w, err, "failed to load project")
		return
	}
	a.json(w, http.StatusOK, toProjectResponse(p))
}

func (a *App) ProjectsUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := a.projectID(w, r)
	if !ok {
		return
	}
	var req updateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.NumColors != nil && (*req.NumColors < 0 || *req.NumColors > a.Config.MaxNumColors) {
		a.error(w, http.StatusBadRequest, "bad_request",
			fmt.Sprintf("numColors must be within [0, %d]", a.Config.MaxNumColors))
		return
	}
	p, err := a.Projects.Update(r.Context(), id, domain.ProjectUpdate{
		Title:     req.Title,
		ImageURL:  req.ImageURL,
		NumColors: req.NumColors,
	})
	if err != nil {
		a.projectError(w, err, "failed to update project")
		return
	}
	a.json(w, http.StatusOK, toProjectResponse(p))
}

func (a *App) ProjectsDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := a.projectID(w, r)
	if !ok {
		return
	}
	if err := a.Projects.Delete(r.Context(), id); err != nil {
		a.projectError(w, err, "failed to delete project")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ProjectsProcess claims the project, runs the pipeline synchronously, and
// records the outcome. Any pipeline failure moves the record to the failed
// status so clients never see an indefinite "processing".
func (a *App) ProjectsProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := a.projectID(w, r)
	if !ok {
		return
	}

	p, err := a.Projects.ClaimForProcessing(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "project not found")
		case errors.Is(err, domain.ErrAlreadyProcessing):
			a.error(w, http.StatusConflict, "conflict", "project is already being processed")
		default:
			a.Logger.Error().Err(err).Int64("project_id", id).Msg("claim failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to start processing")
		}
		return
	}

	sourcePath, err := a.Files.Resolve(path.Base(p.ImageURL))
	if err != nil {
		_ = a.Projects.MarkFailed(context.WithoutCancel(r.Context()), id, err.Error())
		a.error(w, http.StatusNotFound, "source_not_found", "source image not found")
		return
	}
	numColors := p.NumColors
	if numColors <= 0 {
		numColors = a.Config.DefaultNumColors
	}
	if numColors > a.Config.MaxNumColors {
		numColors = a.Config.MaxNumColors
	}
	outputName := fmt.Sprintf("processed-%d-%d", p.ID, time.Now().UnixMilli())

	result, err := a.Pipeline.Process(r.Context(), sourcePath, numColors, outputName)
	if err != nil {
		a.Logger.Error().Err(err).Int64("project_id", id).Msg("pipeline failed")
		// Record the failure even when the client has gone away.
		markCtx := context.WithoutCancel(r.Context())
		if markErr := a.Projects.MarkFailed(markCtx, id, err.Error()); markErr != nil {
			a.Logger.Error().Err(markErr).Int64("project_id", id).Msg("mark failed did not persist")
		}
		a.pipelineError(w, err)
		return
	}

	// The run already produced its artifacts; record the outcome even when
	// the client has gone away, and never leave the record at processing.
	markCtx := context.WithoutCancel(r.Context())
	if _, err := a.Projects.MarkCompleted(markCtx, id, domain.ProcessedArtifacts{
		ProcessedImageURL: result.ProcessedImageURL,
		PaletteImageURL:   result.PaletteImageURL,
		ArchiveURL:        result.ArchiveURL,
	}); err != nil {
		a.Logger.Error().Err(err).Int64("project_id", id).Msg("mark completed failed")
		if markErr := a.Projects.MarkFailed(markCtx, id, "processing finished but could not be recorded"); markErr != nil {
			a.Logger.Error().Err(markErr).Int64("project_id", id).Msg("mark failed did not persist")
		}
		a.error(w, http.StatusInternalServerError, "internal", "processing finished but could not be recorded")
		return
	}

	a.json(w, http.StatusOK, map[string]any{
		"message":           "Processing completed",
		"processedImageUrl": result.ProcessedImageURL,
		"paletteImageUrl":   result.PaletteImageURL,
		"archiveUrl":        result.ArchiveURL,
	})
}

func (a *App) pipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, paint.ErrSourceNotFound):
		a.error(w, http.StatusNotFound, "source_not_found", "source image not found")
	case errors.Is(err, quant.ErrEmptyPalette):
		a.error(w, http.StatusUnprocessableEntity, "empty_palette", "image has no usable colors")
	case errors.Is(err, stylize.ErrTimeout):
		a.error(w, http.StatusGatewayTimeout, "stylize_timeout", "stylization service timed out")
	case errors.Is(err, stylize.ErrStylize):
		a.error(w, http.StatusBadGateway, "stylize_failed", "stylization service failed")
	default:
		a.error(w, http.StatusInternalServerError, "internal", "processing failed")
	}
}

func (a *App) projectID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid project id")
		return 0, false
	}
	return id, true
}

func (a *App) projectError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "project not found")
		return
	}
	if errors.Is(err, domain.ErrInvalidInput) {
		a.error(w, http.StatusBadRequest, "bad_request", "no fields to update")
		return
	}
	a.Logger.Error().Err(err).Msg(msg)
	a.error(w, http.StatusInternalServerError, "internal", msg)
}
