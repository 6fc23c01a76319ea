package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"paintnum/internal/domain"
	"paintnum/internal/infra"
	"paintnum/internal/paint"
	"paintnum/internal/quant"
	"paintnum/internal/storage"
	"paintnum/internal/stylize"
)

// fakeProjectRepo is an in-memory ProjectRepository for handler tests.
type fakeProjectRepo struct {
	projects map[int64]*domain.Project
	nextID   int64

	failedMessages map[int64]string
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{
		projects:       map[int64]*domain.Project{},
		nextID:         1,
		failedMessages: map[int64]string{},
	}
}

func (f *fakeProjectRepo) add(p domain.Project) *domain.Project {
	p.ID = f.nextID
	f.nextID++
	if p.Status == "" {
		p.Status = domain.ProjectStatusPending
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	f.projects[p.ID] = &p
	return &p
}

func (f *fakeProjectRepo) Create(ctx context.Context, p *domain.Project) (*domain.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.add(*p), nil
}

func (f *fakeProjectRepo) GetByID(ctx context.Context, id int64) (*domain.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := f.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProjectRepo) List(ctx context.Context) ([]domain.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.Project, 0, len(f.projects))
	for _, p := range f.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProjectRepo) Update(ctx context.Context, id int64, upd domain.ProjectUpdate) (*domain.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if upd.Title == nil && upd.ImageURL == nil && upd.NumColors == nil {
		return nil, domain.ErrInvalidInput
	}
	p, ok := f.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if upd.Title != nil {
		p.Title = *upd.Title
	}
	if upd.ImageURL != nil {
		p.ImageURL = *upd.ImageURL
	}
	if upd.NumColors != nil {
		p.NumColors = *upd.NumColors
	}
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (f *fakeProjectRepo) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := f.projects[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.projects, id)
	return nil
}

func (f *fakeProjectRepo) ClaimForProcessing(ctx context.Context, id int64) (*domain.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := f.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if p.Status == domain.ProjectStatusProcessing {
		return nil, domain.ErrAlreadyProcessing
	}
	p.Status = domain.ProjectStatusProcessing
	p.ErrorMessage = ""
	cp := *p
	return &cp, nil
}

func (f *fakeProjectRepo) MarkCompleted(ctx context.Context, id int64, artifacts domain.ProcessedArtifacts) (*domain.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := f.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p.Status = domain.ProjectStatusCompleted
	p.ProcessedImageURL = artifacts.ProcessedImageURL
	p.PaletteImageURL = artifacts.PaletteImageURL
	p.ArchiveURL = artifacts.ArchiveURL
	p.ErrorMessage = ""
	cp := *p
	return &cp, nil
}

func (f *fakeProjectRepo) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, ok := f.projects[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = domain.ProjectStatusFailed
	p.ErrorMessage = errMsg
	f.failedMessages[id] = errMsg
	return nil
}

// fakeProcessor returns a canned result or error and records its last call.
// When cancel is set it fires mid-run, standing in for a client that
// disconnects while the pipeline is working.
type fakeProcessor struct {
	result *paint.Result
	err    error
	cancel context.CancelFunc

	lastSource string
	lastColors int
}

func (f *fakeProcessor) Process(_ context.Context, sourcePath string, numColors int, _ string) (*paint.Result, error) {
	f.lastSource = sourcePath
	f.lastColors = numColors
	if f.cancel != nil {
		f.cancel()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestApp(t *testing.T, repo domain.ProjectRepository, proc Processor) *App {
	t.Helper()
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	cfg := &infra.Config{DefaultNumColors: 25, MaxNumColors: 64}
	return NewApp(cfg, zerolog.Nop(), repo, files, proc)
}

func newTestRouter(a *App) http.Handler {
	r := chi.NewRouter()
	r.Route("/project", func(r chi.Router) {
		r.Post("/", a.ProjectsCreate)
		r.Get("/", a.ProjectsList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.ProjectsGet)
			r.Patch("/", a.ProjectsUpdate)
			r.Delete("/", a.ProjectsDelete)
			r.Post("/process", a.ProjectsProcess)
		})
	})
	return r
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestProjectsCreate(t *testing.T) {
	repo := newFakeProjectRepo()
	h := newTestRouter(newTestApp(t, repo, &fakeProcessor{}))

	rec := doJSON(t, h, http.MethodPost, "/project", map[string]any{
		"title":     "Sunset",
		"imageUrl":  "/uploads/abc.png",
		"numColors": 12,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "pending" {
		t.Fatalf("status field = %v, want pending", body["status"])
	}
	if body["imageUrl"] != "/uploads/abc.png" {
		t.Fatalf("imageUrl = %v", body["imageUrl"])
	}
}

func TestProjectsCreateValidation(t *testing.T) {
	repo := newFakeProjectRepo()
	h := newTestRouter(newTestApp(t, repo, &fakeProcessor{}))

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing imageUrl", map[string]any{"title": "x"}},
		{"numColors too large", map[string]any{"imageUrl": "/uploads/a.png", "numColors": 1000}},
		{"negative numColors", map[string]any{"imageUrl": "/uploads/a.png", "numColors": -1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/project", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
	if len(repo.projects) != 0 {
		t.Fatalf("invalid requests must not create projects, got %d", len(repo.projects))
	}
}

func TestProjectsGetNotFound(t *testing.T) {
	h := newTestRouter(newTestApp(t, newFakeProjectRepo(), &fakeProcessor{}))

	rec := doJSON(t, h, http.MethodGet, "/project/42", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "not_found" {
		t.Fatalf("error code = %v", body["error"])
	}
}

func TestProjectsGetInvalidID(t *testing.T) {
	h := newTestRouter(newTestApp(t, newFakeProjectRepo(), &fakeProcessor{}))

	rec := doJSON(t, h, http.MethodGet, "/project/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestProjectsUpdate(t *testing.T) {
	repo := newFakeProjectRepo()
	p := repo.add(domain.Project{Title: "Old", ImageURL: "/uploads/a.png", NumColors: 10})
	h := newTestRouter(newTestApp(t, repo, &fakeProcessor{}))

	rec := doJSON(t, h, http.MethodPatch, fmt.Sprintf("/project/%d", p.ID), map[string]any{"title": "New"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["title"] != "New" {
		t.Fatalf("title = %v, want New", body["title"])
	}
	if body["numColors"] != float64(10) {
		t.Fatalf("numColors = %v, should be unchanged", body["numColors"])
	}
}

func TestProjectsUpdateEmptyBody(t *testing.T) {
	repo := newFakeProjectRepo()
	p := repo.add(domain.Project{Title: "Keep", ImageURL: "/uploads/a.png"})
	h := newTestRouter(newTestApp(t, repo, &fakeProcessor{}))

	rec := doJSON(t, h, http.MethodPatch, fmt.Sprintf("/project/%d", p.ID), map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if repo.projects[p.ID].Title != "Keep" {
		t.Fatal("empty patch must not modify the project")
	}
}

func TestProjectsDelete(t *testing.T) {
	repo := newFakeProjectRepo()
	p := repo.add(domain.Project{ImageURL: "/uploads/a.png"})
	h := newTestRouter(newTestApp(t, repo, &fakeProcessor{}))

	rec := doJSON(t, h, http.MethodDelete, fmt.Sprintf("/project/%d", p.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if _, ok := repo.projects[p.ID]; ok {
		t.Fatal("project still present after delete")
	}
}

func TestProjectsProcessSuccess(t *testing.T) {
	repo := newFakeProjectRepo()
	p := repo.add(domain.Project{ImageURL: "/uploads/src.png", NumColors: 8})
	proc := &fakeProcessor{result: &paint.Result{
		ProcessedImageURL: "/processed/out.png",
		PaletteImageURL:   "/processed/out-palette.png",
		ArchiveURL:        "/processed/out.zip",
		Palette:           []quant.RGB{{R: 1}},
	}}
	app := newTestApp(t, repo, proc)
	h := newTestRouter(app)

	rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/project/%d/process", p.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["processedImageUrl"] != "/processed/out.png" {
		t.Fatalf("processedImageUrl = %v", body["processedImageUrl"])
	}
	if body["archiveUrl"] != "/processed/out.zip" {
		t.Fatalf("archiveUrl = %v", body["archiveUrl"])
	}

	stored := repo.projects[p.ID]
	if stored.Status != domain.ProjectStatusCompleted {
		t.Fatalf("status after processing = %s, want completed", stored.Status)
	}
	if stored.ProcessedImageURL != "/processed/out.png" {
		t.Fatalf("stored ProcessedImageURL = %q", stored.ProcessedImageURL)
	}
	if proc.lastColors != 8 {
		t.Fatalf("pipeline numColors = %d, want the project's 8", proc.lastColors)
	}
	if !strings.HasSuffix(proc.lastSource, "src.png") {
		t.Fatalf("pipeline source = %q, want the uploaded file", proc.lastSource)
	}
}

func TestProjectsProcessDefaultsNumColors(t *testing.T) {
	repo := newFakeProjectRepo()
	p := repo.add(domain.Project{ImageURL: "/uploads/src.png"})
	proc := &fakeProcessor{result: &paint.Result{}}
	h := newTestRouter(newTestApp(t, repo, proc))

	rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/project/%d/process", p.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if proc.lastColors != 25 {
		t.Fatalf("pipeline numColors = %d, want the configured default 25", proc.lastColors)
	}
}

func TestProjectsProcessCompletionSurvivesClientDisconnect(t *testing.T) {
	repo := newFakeProjectRepo()
	p := repo.add(domain.Project{ImageURL: "/uploads/src.png", NumColors: 4})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := &fakeProcessor{
		result: &paint.Result{ProcessedImageURL: "/processed/out.png"},
		cancel: cancel,
	}
	h := newTestRouter(newTestApp(t, repo, proc))

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/project/%d/process", p.ID), nil)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	stored := repo.projects[p.ID]
	if stored.Status != domain.ProjectStatusCompleted {
		t.Fatalf("status after disconnected success = %s, want completed", stored.Status)
	}
	if stored.ProcessedImageURL != "/processed/out.png" {
		t.Fatalf("stored ProcessedImageURL = %q", stored.ProcessedImageURL)
	}
}

func TestProjectsProcessFailureSurvivesClientDisconnect(t *testing.T) {
	repo := newFakeProjectRepo()
	p := repo.add(domain.Project{ImageURL: "/uploads/src.png", NumColors: 4})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := &fakeProcessor{err: fmt.Errorf("disk on fire"), cancel: cancel}
	h := newTestRouter(newTestApp(t, repo, proc))

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/project/%d/process", p.ID), nil)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	stored := repo.projects[p.ID]
	if stored.Status != domain.ProjectStatusFailed {
		t.Fatalf("status after disconnected failure = %s, want failed", stored.Status)
	}
}

func TestProjectsProcessUnresolvableSourceMarksFailed(t *testing.T) {
	repo := newFakeProjectRepo()
	p := repo.add(domain.Project{ImageURL: "", NumColors: 4})
	h := newTestRouter(newTestApp(t, repo, &fakeProcessor{}))

	rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/project/%d/process", p.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	stored := repo.projects[p.ID]
	if stored.Status != domain.ProjectStatusFailed {
		t.Fatalf("status after unresolvable source = %s, want failed", stored.Status)
	}
	if repo.failedMessages[p.ID] == "" {
		t.Fatal("expected a recorded failure message")
	}
}

func TestProjectsProcessConflict(t *testing.T) {
	repo := newFakeProjectRepo()
	p := repo.add(domain.Project{ImageURL: "/uploads/src.png", Status: domain.ProjectStatusProcessing})
	h := newTestRouter(newTestApp(t, repo, &fakeProcessor{}))

	rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/project/%d/process", p.ID), nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestProjectsProcessMissingProject(t *testing.T) {
	h := newTestRouter(newTestApp(t, newFakeProjectRepo(), &fakeProcessor{}))

	rec := doJSON(t, h, http.MethodPost, "/project/99/process", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestProjectsProcessFailureMarksFailed(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"missing source", fmt.Errorf("wrap: %w", paint.ErrSourceNotFound), http.StatusNotFound},
		{"empty palette", quant.ErrEmptyPalette, http.StatusUnprocessableEntity},
		{"stylize timeout", stylize.ErrTimeout, http.StatusGatewayTimeout},
		{"stylize failure", stylize.ErrStylize, http.StatusBadGateway},
		{"unknown failure", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeProjectRepo()
			p := repo.add(domain.Project{ImageURL: "/uploads/src.png", NumColors: 5})
			h := newTestRouter(newTestApp(t, repo, &fakeProcessor{err: tc.err}))

			rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/project/%d/process", p.ID), nil)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.wantStatus, rec.Body.String())
			}

			stored := repo.projects[p.ID]
			if stored.Status != domain.ProjectStatusFailed {
				t.Fatalf("status after failure = %s, want failed", stored.Status)
			}
			if repo.failedMessages[p.ID] == "" {
				t.Fatal("expected a recorded failure message")
			}
		})
	}
}
