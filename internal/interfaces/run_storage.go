package interfaces

import (
	"context"
	"errors"

	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
)

// ErrRunNotFound is returned when a run record does not exist
var ErrRunNotFound = errors.New("run not found")

// RunStorage persists run history (one record per run, one per processed entity)
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)

	// ListRuns returns runs newest first; limit <= 0 returns all
	ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)

	SaveAttempt(ctx context.Context, attempt *models.AttemptRecord) error

	// ListAttempts returns the attempt records of a run in processing order
	ListAttempts(ctx context.Context, runID string) ([]*models.AttemptRecord, error)
}
