// -----------------------------------------------------------------------
// Per-Entity Workflow Runner - bounded retries of one entity's workflow
// -----------------------------------------------------------------------

package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hugorneri/RPA-DCTFWEB/internal/common"
	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
)

// Workflow performs one attempt of the portal interaction for one entity
type Workflow interface {
	Attempt(ctx context.Context, session interfaces.Session, entity models.Entity) Outcome
}

// RunnerConfig controls the retry loop
type RunnerConfig struct {
	// RetryPause is the wait between attempts of the same entity
	RetryPause time.Duration
}

// Runner retries a workflow for one entity within a per-entity budget
type Runner struct {
	workflow Workflow
	config   RunnerConfig
	logger   arbor.ILogger
}

// NewRunner creates a new runner
func NewRunner(workflow Workflow, config RunnerConfig, logger arbor.ILogger) *Runner {
	return &Runner{
		workflow: workflow,
		config:   config,
		logger:   logger,
	}
}

// Run drives the entity until it reaches a terminal status or the budget is spent.
// A non-nil error means the session is no longer usable and the caller must escalate.
func (r *Runner) Run(ctx context.Context, session interfaces.Session, entity models.Entity, budget int) (Result, error) {
	if budget < 1 {
		budget = 1
	}

	result := Result{Entity: entity}
	remaining := budget

	for remaining > 0 {
		result.Attempts++
		outcome := r.workflow.Attempt(ctx, session, entity)
		result.Last = outcome
		result.Status = outcome.Status()

		switch outcome.Kind {
		case OutcomeSuccess:
			if !outcome.Artifact {
				r.logger.Warn().
					Str("entity_id", string(entity.ID)).
					Str("code", entity.Code).
					Msg("Guide issued but no downloaded file was captured")
			}
			return result, nil

		case OutcomeNotFound:
			r.logger.Info().
				Str("entity_id", string(entity.ID)).
				Msg("No declaration found for entity")
			r.resetContext(ctx, session)
			return result, nil

		case OutcomeRetryable:
			remaining--
			r.resetContext(ctx, session)
			r.logger.Warn().
				Err(outcome.Err).
				Str("entity_id", string(entity.ID)).
				Str("checkpoint", string(outcome.Checkpoint)).
				Int("attempt", result.Attempts).
				Int("remaining", remaining).
				Msg("Element timeout, retrying entity")

			if remaining == 0 {
				break
			}
			if err := common.SleepContext(ctx, r.config.RetryPause); err != nil {
				result.Status = models.StatusUnexpectedError
				return result, fmt.Errorf("entity %s interrupted: %w", entity.ID, err)
			}

		case OutcomeFatal:
			if outcome.IsSessionLevel() {
				result.Status = models.StatusUnexpectedError
				return result, fmt.Errorf("entity %s at %s: %w", entity.ID, outcome.Checkpoint, outcome.Err)
			}
			r.resetContext(ctx, session)
			r.logger.Error().
				Err(outcome.Err).
				Str("entity_id", string(entity.ID)).
				Str("checkpoint", string(outcome.Checkpoint)).
				Int("attempt", result.Attempts).
				Msg("Unexpected error, giving up on entity")
			return result, nil
		}
	}

	r.logger.Error().
		Str("entity_id", string(entity.ID)).
		Int("attempts", result.Attempts).
		Msg("Attempts exhausted for entity")
	return result, nil
}

// resetContext returns the session to the top-level document before the next step
func (r *Runner) resetContext(ctx context.Context, session interfaces.Session) {
	if err := session.ExitToTopContext(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to reset browser context")
	}
}
