// -----------------------------------------------------------------------
// Session Supervisor - outer retry loop around browser sessions
// -----------------------------------------------------------------------

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hugorneri/RPA-DCTFWEB/internal/common"
	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
)

var (
	// ErrAttemptsExhausted is returned when every session attempt failed
	ErrAttemptsExhausted = errors.New("session attempts exhausted")

	// ErrCancelled reports a cooperative stop
	ErrCancelled = errors.New("run cancelled")
)

// LoginVerifier checks the portal after the operator confirms login
type LoginVerifier interface {
	VerifyLogin(ctx context.Context, session interfaces.Session) bool
}

// SupervisorConfig controls the outer retry loop
type SupervisorConfig struct {
	SessionAttempts int
	// Backoff is the fixed wait between session attempts
	Backoff time.Duration
	// Workbook is recorded in the run history
	Workbook string
}

// Supervisor acquires sessions and reruns the whole batch on session-level failures
type Supervisor struct {
	driver    interfaces.Driver
	processor *Processor
	verifier  LoginVerifier
	config    SupervisorConfig
}

// NewSupervisor creates a new supervisor. verifier may be nil.
func NewSupervisor(driver interfaces.Driver, processor *Processor, verifier LoginVerifier, config SupervisorConfig) *Supervisor {
	if config.SessionAttempts < 1 {
		config.SessionAttempts = 1
	}
	return &Supervisor{
		driver:    driver,
		processor: processor,
		verifier:  verifier,
		config:    config,
	}
}

// Run processes batch until it completes, a stop is requested or the session budget is spent.
// Only exhaustion is returned as an error. The session of every attempt is closed before Run returns.
func (s *Supervisor) Run(ctx context.Context, rc *RunContext, batch []models.Entity) (models.RunOutcome, error) {
	logger := rc.Logger
	record := s.startRecord(ctx, rc, len(batch))

	remaining := s.config.SessionAttempts
	attempt := 0
	var lastErr error

	for remaining > 0 {
		if rc.stopped() {
			logger.Info().Int("attempt", attempt).Msg("Stop requested before session attempt")
			return s.finish(ctx, rc, record, attempt, models.RunCancelled, nil)
		}

		attempt++
		logger.Info().Int("attempt", attempt).Int("remaining", remaining).Msg("Starting session attempt")

		err := s.attempt(ctx, rc, batch)
		switch {
		case err == nil:
			logger.Info().Int("attempt", attempt).Msg("Batch completed")
			return s.finish(ctx, rc, record, attempt, models.RunSucceeded, nil)
		case errors.Is(err, ErrCancelled):
			return s.finish(ctx, rc, record, attempt, models.RunCancelled, nil)
		case ctx.Err() != nil:
			logger.Warn().Err(err).Msg("Run interrupted")
			return s.finish(ctx, rc, record, attempt, models.RunCancelled, nil)
		}

		lastErr = err
		remaining--
		logger.Error().Err(err).Int("attempt", attempt).Int("remaining", remaining).Msg("Session attempt failed")

		if remaining > 0 {
			if err := common.SleepContext(ctx, s.config.Backoff); err != nil {
				return s.finish(ctx, rc, record, attempt, models.RunCancelled, nil)
			}
		}
	}

	err := fmt.Errorf("%w after %d attempts: %v", ErrAttemptsExhausted, attempt, lastErr)
	return s.finish(ctx, rc, record, attempt, models.RunExhausted, err)
}

// attempt runs the batch on one fresh session. The session is closed on every exit path.
func (s *Supervisor) attempt(ctx context.Context, rc *RunContext, batch []models.Entity) (err error) {
	defer func() {
		if r := recover(); r != nil {
			rc.Logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", common.GetStackTrace()).
				Msg("Recovered from panic in session attempt")
			err = fmt.Errorf("panic in session attempt: %v", r)
		}
	}()

	if rc.Gate != nil {
		rc.Gate.Arm()
	}

	session, err := s.driver.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire browser session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			rc.Logger.Warn().Err(cerr).Msg("Failed to close browser session")
		}
	}()

	if rc.Gate != nil {
		rc.progress(LoginPrompt, 0, len(batch))
		rc.Logger.Info().Msg("Waiting for login confirmation")
		if err := rc.Gate.Wait(ctx, rc.Cancel); err != nil {
			return err
		}
	}
	if s.verifier != nil {
		s.verifier.VerifyLogin(ctx, session)
	}

	return s.processor.Process(ctx, rc, session, batch)
}

func (s *Supervisor) startRecord(ctx context.Context, rc *RunContext, total int) *models.RunRecord {
	record := &models.RunRecord{
		ID:        rc.RunID,
		Period:    rc.Period,
		Workbook:  s.config.Workbook,
		StartedAt: time.Now(),
		Outcome:   models.RunRunning,
		Total:     total,
	}
	s.saveRecord(ctx, rc, record)
	return record
}

// finish flushes the ledger one last time and closes the run record
func (s *Supervisor) finish(ctx context.Context, rc *RunContext, record *models.RunRecord, attempts int, outcome models.RunOutcome, runErr error) (models.RunOutcome, error) {
	if err := rc.Ledger.Flush(context.WithoutCancel(ctx)); err != nil {
		rc.Logger.Warn().Err(err).Msg("Final ledger flush failed")
	}

	now := time.Now()
	record.FinishedAt = &now
	record.Outcome = outcome
	record.SessionAttempts = attempts
	record.Counts = rc.Ledger.Counts()
	if runErr != nil {
		record.Error = runErr.Error()
	}
	s.saveRecord(context.WithoutCancel(ctx), rc, record)

	rc.Logger.Info().
		Str("outcome", string(outcome)).
		Int("session_attempts", attempts).
		Dur("elapsed", now.Sub(record.StartedAt)).
		Msg("Run finished")

	return outcome, runErr
}

func (s *Supervisor) saveRecord(ctx context.Context, rc *RunContext, record *models.RunRecord) {
	if rc.History == nil {
		return
	}
	if err := rc.History.SaveRun(ctx, record); err != nil {
		rc.Logger.Warn().Err(err).Str("run_id", record.ID).Msg("Failed to record run history")
	}
}
