package domain

import "context"

// ProjectRepository defines persistence for project records.
type ProjectRepository interface {
	Create(ctx context.Context, p *Project) (*Project, error)
	GetByID(ctx context.Context, id int64) (*Project, error)
	List(ctx context.Context) ([]Project, error)
	Update(ctx context.Context, id int64, upd ProjectUpdate) (*Project, error)
	Delete(ctx context.Context, id int64) error

	// ClaimForProcessing transitions a project to the processing status.
	// The transition only succeeds when the project is not already
	// processing; a concurrent claim loses with ErrAlreadyProcessing.
	ClaimForProcessing(ctx context.Context, id int64) (*Project, error)

	// MarkCompleted stores the produced artifact URLs and moves the
	// project to the completed status, clearing any previous error.
	MarkCompleted(ctx context.Context, id int64, artifacts ProcessedArtifacts) (*Project, error)

	// MarkFailed moves the project to the terminal failed status with an
	// error message so clients can distinguish "still working" from
	// "broken".
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}
