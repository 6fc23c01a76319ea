package domain

import "time"

// ProjectStatus enumerates the project lifecycle states.
type ProjectStatus string

const (
	ProjectStatusPending    ProjectStatus = "pending"
	ProjectStatusProcessing ProjectStatus = "processing"
	ProjectStatusCompleted  ProjectStatus = "completed"
	ProjectStatusFailed     ProjectStatus = "failed"
)

// Project is a single paint-by-numbers job: an uploaded source image and,
// once processed, the quantized rendering plus its companion artifacts.
type Project struct {
	ID                int64
	Title             string
	ImageURL          string
	NumColors         int
	Status            ProjectStatus
	ProcessedImageURL string
	PaletteImageURL   string
	ArchiveURL        string
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ProjectUpdate carries the mutable fields of a PATCH request. Nil means
// "leave unchanged".
type ProjectUpdate struct {
	Title     *string
	ImageURL  *string
	NumColors *int
}

// ProcessedArtifacts holds the URLs produced by a successful pipeline run.
type ProcessedArtifacts struct {
	ProcessedImageURL string
	PaletteImageURL   string
	ArchiveURL        string
}
