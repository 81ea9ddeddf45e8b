package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
)

// RunStorage implements interfaces.RunStorage for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RunStorage) SaveRun(ctx context.Context, run *models.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *RunStorage) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	var run models.RunRecord
	if err := s.db.Store().Get(id, &run); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &run, nil
}

func (s *RunStorage) ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.RunRecord
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	result := make([]*models.RunRecord, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

func (s *RunStorage) SaveAttempt(ctx context.Context, attempt *models.AttemptRecord) error {
	if attempt.ID == "" {
		return fmt.Errorf("attempt ID is required")
	}
	if err := s.db.Store().Upsert(attempt.ID, attempt); err != nil {
		return fmt.Errorf("failed to save attempt for %s: %w", attempt.EntityID, err)
	}
	return nil
}

func (s *RunStorage) ListAttempts(ctx context.Context, runID string) ([]*models.AttemptRecord, error) {
	var attempts []models.AttemptRecord
	if err := s.db.Store().Find(&attempts, badgerhold.Where("RunID").Eq(runID).SortBy("At")); err != nil {
		return nil, fmt.Errorf("failed to list attempts of run %s: %w", runID, err)
	}

	result := make([]*models.AttemptRecord, len(attempts))
	for i := range attempts {
		result[i] = &attempts[i]
	}
	return result, nil
}
