// -----------------------------------------------------------------------
// Entity Queue Processor - sequential pass over the batch
// -----------------------------------------------------------------------

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/hugorneri/RPA-DCTFWEB/internal/common"
	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
	"github.com/hugorneri/RPA-DCTFWEB/internal/workflow"
)

// Progress messages shown to operators
const (
	progressProcessing = "Processando %s..."

	// ProgressDone closes every pass over the batch, including stopped ones
	ProgressDone = "Processamento concluído!"
	// LoginPrompt is reported while a fresh session waits for the manual login
	LoginPrompt = "Aguardando confirmação de login..."
)

// EntityRunner runs one entity within a retry budget
type EntityRunner interface {
	Run(ctx context.Context, session interfaces.Session, entity models.Entity, budget int) (workflow.Result, error)
}

// Processor walks the batch in order, skipping completed entities and flushing the ledger after each one
type Processor struct {
	runner EntityRunner
	budget int
}

// NewProcessor creates a new processor with a per-entity attempt budget
func NewProcessor(runner EntityRunner, entityAttempts int) *Processor {
	return &Processor{
		runner: runner,
		budget: entityAttempts,
	}
}

// Process handles every entity of batch on session.
// Returns ErrCancelled after a cooperative stop and a wrapped error when the session must be replaced.
func (p *Processor) Process(ctx context.Context, rc *RunContext, session interfaces.Session, batch []models.Entity) error {
	total := len(batch)
	logger := rc.Logger

	for i, entity := range batch {
		if rc.stopped() {
			logger.Info().Int("index", i).Int("total", total).Msg("Stop requested, ending batch")
			rc.progress(ProgressDone, total, total)
			return ErrCancelled
		}

		rc.progress(fmt.Sprintf(progressProcessing, entity.ID), i+1, total)

		if rc.Ledger.IsDone(entity.ID) {
			logger.Debug().Str("entity_id", string(entity.ID)).Msg("Already completed, skipping")
			continue
		}

		result, err := p.runner.Run(ctx, session, entity, p.budget)
		status := result.Status
		if err != nil {
			status = models.StatusUnexpectedError
		}

		if setErr := rc.Ledger.Set(entity.ID, status); setErr != nil {
			logger.Error().Err(setErr).Str("entity_id", string(entity.ID)).Msg("Failed to record status")
		}
		if flushErr := rc.Ledger.Flush(ctx); flushErr != nil {
			logger.Warn().Err(flushErr).Str("entity_id", string(entity.ID)).Msg("Failed to persist ledger, continuing with in-memory state")
		}

		logger.Info().
			Str("entity_id", string(entity.ID)).
			Str("code", entity.Code).
			Str("status", status.Label()).
			Int("attempts", result.Attempts).
			Msg("Entity processed")

		p.record(ctx, rc, entity, status, result, err)

		if err != nil {
			return fmt.Errorf("session failed while processing %s: %w", entity.ID, err)
		}
	}

	rc.progress(ProgressDone, total, total)
	return nil
}

func (p *Processor) record(ctx context.Context, rc *RunContext, entity models.Entity, status models.Status, result workflow.Result, runErr error) {
	if rc.History == nil {
		return
	}

	attempt := &models.AttemptRecord{
		ID:       common.NewAttemptID(),
		RunID:    rc.RunID,
		EntityID: string(entity.ID),
		Code:     entity.Code,
		Status:   status,
		Attempts: result.Attempts,
		Artifact: result.Last.ArtifactPath,
		Captured: result.Last.Artifact,
		At:       time.Now(),
	}
	switch {
	case runErr != nil:
		attempt.Error = runErr.Error()
	case result.Last.Err != nil:
		attempt.Error = result.Last.Err.Error()
	}

	if err := rc.History.SaveAttempt(ctx, attempt); err != nil {
		rc.Logger.Warn().Err(err).Str("entity_id", attempt.EntityID).Msg("Failed to record attempt history")
	}
}
