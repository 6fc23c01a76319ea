package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paintnum/internal/domain"
)

const projectColumns = `id, title, image_url, num_colors, status, processed_image_url, palette_image_url, archive_url, error_message, created_at, updated_at`

// ProjectRepositoryPG implements domain.ProjectRepository.
type ProjectRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewProjectRepository creates a project repository backed by PostgreSQL.
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepositoryPG {
	return &ProjectRepositoryPG{pool: pool}
}

// Create inserts a new project record with the pending status.
func (r *ProjectRepositoryPG) Create(ctx context.Context, p *domain.Project) (*domain.Project, error) {
	query := `
INSERT INTO projects (title, image_url, num_colors, status)
VALUES ($1, $2, $3, $4)
RETURNING ` + projectColumns + `;
`
	row := r.pool.QueryRow(ctx, query, p.Title, p.ImageURL, p.NumColors, domain.ProjectStatusPending)
	return scanProject(row)
}

// GetByID fetches a project by its identifier.
func (r *ProjectRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1;`
	return scanProject(r.pool.QueryRow(ctx, query, id))
}

// List returns all projects, newest first.
func (r *ProjectRepositoryPG) List(ctx context.Context) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY created_at DESC;`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		p, err := scanProjectRow(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// Update applies a partial update and returns the new row.
func (r *ProjectRepositoryPG) Update(ctx context.Context, id int64, upd domain.ProjectUpdate) (*domain.Project, error) {
	if upd.Title == nil && upd.ImageURL == nil && upd.NumColors == nil {
		return nil, domain.ErrInvalidInput
	}
	query := `
UPDATE projects
SET title = COALESCE($2, title),
    image_url = COALESCE($3, image_url),
    num_colors = COALESCE($4, num_colors),
    updated_at = NOW()
WHERE id = $1
RETURNING ` + projectColumns + `;
`
	row := r.pool.QueryRow(ctx, query, id, upd.Title, upd.ImageURL, upd.NumColors)
	return scanProject(row)
}

// Delete removes a project record.
func (r *ProjectRepositoryPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClaimForProcessing atomically moves a project into the processing status.
// The guard clause makes concurrent claims for the same project race-free:
// the second request finds no matching row and gets ErrAlreadyProcessing.
func (r *ProjectRepositoryPG) ClaimForProcessing(ctx context.Context, id int64) (*domain.Project, error) {
	query := `
UPDATE projects
SET status = $2,
    error_message = '',
    updated_at = NOW()
WHERE id = $1 AND status <> $2
RETURNING ` + projectColumns + `;
`
	p, err := scanProject(r.pool.QueryRow(ctx, query, id, domain.ProjectStatusProcessing))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	// No row matched: either the project is gone or another request holds it.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrAlreadyProcessing
}

// MarkCompleted stores artifact URLs and finishes the lifecycle.
func (r *ProjectRepositoryPG) MarkCompleted(ctx context.Context, id int64, artifacts domain.ProcessedArtifacts) (*domain.Project, error) {
	query := `
UPDATE projects
SET status = $2,
    processed_image_url = $3,
    palette_image_url = $4,
    archive_url = $5,
    error_message = '',
    updated_at = NOW()
WHERE id = $1
RETURNING ` + projectColumns + `;
`
	row := r.pool.QueryRow(ctx, query, id, domain.ProjectStatusCompleted,
		artifacts.ProcessedImageURL, artifacts.PaletteImageURL, artifacts.ArchiveURL)
	return scanProject(row)
}

// MarkFailed records a pipeline failure with its message.
func (r *ProjectRepositoryPG) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	query := `
UPDATE projects
SET status = $2,
    error_message = $3,
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, domain.ProjectStatusFailed, strings.TrimSpace(errMsg))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	p, err := scanProjectRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanProjectRow(row rowScanner) (*domain.Project, error) {
	var p domain.Project
	if err := row.Scan(
		&p.ID,
		&p.Title,
		&p.ImageURL,
		&p.NumColors,
		&p.Status,
		&p.ProcessedImageURL,
		&p.PaletteImageURL,
		&p.ArchiveURL,
		&p.ErrorMessage,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}
