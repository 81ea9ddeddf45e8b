// -----------------------------------------------------------------------
// Run Service - starts, controls and observes one supervised run at a time
// -----------------------------------------------------------------------

package runs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hugorneri/RPA-DCTFWEB/internal/common"
	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
	"github.com/hugorneri/RPA-DCTFWEB/internal/ledger"
	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
	"github.com/hugorneri/RPA-DCTFWEB/internal/orchestrator"
)

var (
	ErrRunInProgress    = errors.New("a run is already in progress")
	ErrNoActiveRun      = errors.New("no active run")
	ErrNotAwaitingLogin = errors.New("run is not waiting for login confirmation")
)

// eventBuffer bounds progress events queued for the dispatcher
const eventBuffer = 256

// State is the externally visible state of the service
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingLogin State = "awaiting_login"
	StateRunning       State = "running"
	StateStopping      State = "stopping"
	StateFinished      State = "finished"
)

// Snapshot describes the current or last run
type Snapshot struct {
	RunID      string            `json:"run_id,omitempty"`
	State      State             `json:"state"`
	Outcome    models.RunOutcome `json:"outcome,omitempty"`
	Error      string            `json:"error,omitempty"`
	Message    string            `json:"message,omitempty"`
	Current    int               `json:"current"`
	Total      int               `json:"total"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// ProgressEvent is the payload of interfaces.EventRunProgress
type ProgressEvent struct {
	RunID   string    `json:"run_id"`
	Message string    `json:"message"`
	Current int       `json:"current"`
	Total   int       `json:"total"`
	Time    time.Time `json:"time"`

	// Milestone marks the login prompt and the end of a pass; these are never dropped or throttled
	Milestone bool `json:"milestone,omitempty"`
}

func isMilestone(message string) bool {
	return message == orchestrator.LoginPrompt || message == orchestrator.ProgressDone
}

// LogFields exposes the snapshot to the event logger
func (s Snapshot) LogFields() map[string]string {
	return map[string]string{
		"run_id":  s.RunID,
		"state":   string(s.State),
		"outcome": string(s.Outcome),
		"error":   s.Error,
	}
}

// LogFields exposes the progress report to the event logger
func (p ProgressEvent) LogFields() map[string]string {
	return map[string]string{
		"run_id":   p.RunID,
		"message":  p.Message,
		"progress": fmt.Sprintf("%d/%d", p.Current, p.Total),
	}
}

// Dependencies are the collaborators of a run
type Dependencies struct {
	Store    interfaces.RowStore
	Driver   interfaces.Driver
	Runner   orchestrator.EntityRunner
	Verifier orchestrator.LoginVerifier
	History  interfaces.RunStorage
	Events   interfaces.EventService
}

// Service owns at most one active run
type Service struct {
	config *common.Config
	deps   Dependencies
	logger arbor.ILogger

	mu      sync.Mutex
	current *run
	buffer  int
}

// NewService creates a new run service
func NewService(config *common.Config, deps Dependencies, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		deps:   deps,
		logger: logger,
		buffer: eventBuffer,
	}
}

type run struct {
	id     string
	stop   orchestrator.StopFlag
	gate   *orchestrator.LoginGate
	cancel context.CancelFunc
	done   chan struct{}
	events chan interfaces.Event
	ledger *ledger.Ledger

	mu       sync.Mutex
	snapshot Snapshot
	err      error

	emitMu sync.Mutex
	closed bool
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *run) view() Snapshot {
	r.mu.Lock()
	snap := r.snapshot
	r.mu.Unlock()

	switch {
	case r.finished():
		snap.State = StateFinished
	case r.stop.Stopped():
		snap.State = StateStopping
	case r.gate.Awaiting():
		snap.State = StateAwaitingLogin
	default:
		snap.State = StateRunning
	}
	return snap
}

// emit queues an event for the dispatcher. Ordinary events are dropped when the buffer is full;
// milestone events wait for room so the login prompt and the final report always arrive.
func (r *run) emit(logger arbor.ILogger, event interfaces.Event, milestone bool) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	if r.closed {
		return
	}
	if milestone {
		r.events <- event
		return
	}
	select {
	case r.events <- event:
	default:
		logger.Debug().Str("event_type", string(event.Type)).Msg("Event buffer full, dropping event")
	}
}

func (r *run) closeEvents() {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	r.closed = true
	close(r.events)
}

// Start loads the batch and launches the supervisor on a worker goroutine.
// The run outlives ctx cancellation; use Stop or Cancel to end it.
func (s *Service) Start(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && !s.current.finished() {
		return "", ErrRunInProgress
	}

	l, err := ledger.Load(ctx, s.deps.Store)
	if err != nil {
		return "", err
	}

	now := time.Now()
	r := &run{
		id:     common.NewRunID(),
		gate:   orchestrator.NewLoginGate(),
		done:   make(chan struct{}),
		events: make(chan interfaces.Event, s.buffer),
		ledger: l,
		snapshot: Snapshot{
			Total:     l.Len(),
			StartedAt: &now,
		},
	}
	r.snapshot.RunID = r.id

	logger := s.logger.WithCorrelationId(r.id)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	rc := &orchestrator.RunContext{
		RunID:    r.id,
		Period:   s.config.Run.Period,
		Ledger:   l,
		Progress: orchestrator.ProgressFunc(func(message string, current, total int) { s.report(r, logger, message, current, total) }),
		Cancel:   &r.stop,
		Gate:     r.gate,
		Logger:   logger,
		History:  s.deps.History,
	}

	processor := orchestrator.NewProcessor(s.deps.Runner, s.config.Run.EntityAttempts)
	supervisor := orchestrator.NewSupervisor(s.deps.Driver, processor, s.deps.Verifier, orchestrator.SupervisorConfig{
		SessionAttempts: s.config.Run.SessionAttempts,
		Backoff:         s.config.Run.SessionBackoffDuration(),
		Workbook:        s.deps.Store.Location(),
	})

	s.current = r

	common.SafeGo(logger, "run-events", func() { s.dispatch(r) })
	common.SafeGo(logger, "run-worker", func() {
		defer r.closeEvents()
		defer close(r.done)
		defer cancel()

		outcome, err := supervisor.Run(runCtx, rc, l.Entities())
		s.complete(r, outcome, err)
	})

	logger.Info().
		Str("run_id", r.id).
		Int("entities", l.Len()).
		Str("workbook", s.deps.Store.Location()).
		Msg("Run started")

	r.emit(logger, interfaces.Event{Type: interfaces.EventRunState, Payload: r.view()}, false)
	return r.id, nil
}

func (s *Service) report(r *run, logger arbor.ILogger, message string, current, total int) {
	r.mu.Lock()
	r.snapshot.Message = message
	r.snapshot.Current = current
	r.snapshot.Total = total
	r.mu.Unlock()

	milestone := isMilestone(message)
	r.emit(logger, interfaces.Event{
		Type: interfaces.EventRunProgress,
		Payload: ProgressEvent{
			RunID:     r.id,
			Message:   message,
			Current:   current,
			Total:     total,
			Time:      time.Now(),
			Milestone: milestone,
		},
	}, milestone)
}

func (s *Service) complete(r *run, outcome models.RunOutcome, err error) {
	now := time.Now()
	r.mu.Lock()
	r.snapshot.Outcome = outcome
	r.snapshot.FinishedAt = &now
	r.err = err
	if err != nil {
		r.snapshot.Error = err.Error()
	}
	snap := r.snapshot
	r.mu.Unlock()

	snap.State = StateFinished
	r.emit(s.logger, interfaces.Event{Type: interfaces.EventRunState, Payload: snap}, true)
}

// dispatch publishes the run's events in order until the worker closes the queue
func (s *Service) dispatch(r *run) {
	for event := range r.events {
		if s.deps.Events == nil {
			continue
		}
		if err := s.deps.Events.PublishSync(context.Background(), event); err != nil {
			s.logger.Debug().Err(err).Str("event_type", string(event.Type)).Msg("Event delivery failed")
		}
	}
}

func (s *Service) active() (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.finished() {
		return nil, ErrNoActiveRun
	}
	return s.current, nil
}

// ConfirmLogin releases the worker blocked on the login gate
func (s *Service) ConfirmLogin() error {
	r, err := s.active()
	if err != nil {
		return err
	}
	if !r.gate.Awaiting() {
		return ErrNotAwaitingLogin
	}
	r.gate.Confirm()
	s.logger.Info().Str("run_id", r.id).Msg("Login confirmed")
	return nil
}

// Stop requests a cooperative stop at the next entity boundary
func (s *Service) Stop() error {
	r, err := s.active()
	if err != nil {
		return err
	}
	r.stop.Stop()
	s.logger.Info().Str("run_id", r.id).Msg("Stop requested")
	r.emit(s.logger, interfaces.Event{Type: interfaces.EventRunState, Payload: r.view()}, false)
	return nil
}

// Cancel aborts the run immediately, interrupting any in-flight browser step
func (s *Service) Cancel() error {
	r, err := s.active()
	if err != nil {
		return err
	}
	r.stop.Stop()
	r.cancel()
	s.logger.Warn().Str("run_id", r.id).Msg("Run cancelled")
	return nil
}

// Status returns the state of the current or last run
func (s *Service) Status() Snapshot {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()

	if r == nil {
		return Snapshot{State: StateIdle}
	}
	return r.view()
}

// Wait blocks until the current run finishes and returns its outcome.
// The error is the run's own error (attempts exhausted) or ctx's.
func (s *Service) Wait(ctx context.Context) (models.RunOutcome, error) {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()

	if r == nil {
		return "", ErrNoActiveRun
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot.Outcome, r.err
}

// Entities returns the in-memory ledger while a run is active and the row store otherwise
func (s *Service) Entities(ctx context.Context) ([]models.Entity, error) {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r != nil && !r.finished() {
		return r.ledger.Entities(), nil
	}

	batch, err := s.deps.Store.LoadBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return batch, nil
}

// Close stops and cancels an active run and waits for it to end
func (s *Service) Close() error {
	r, err := s.active()
	if err != nil {
		return nil
	}
	r.stop.Stop()
	r.cancel()
	<-r.done
	return nil
}
