package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
	"github.com/hugorneri/RPA-DCTFWEB/internal/ledger"
	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
	"github.com/hugorneri/RPA-DCTFWEB/internal/workflow"
)

type memoryStore struct {
	rows     []models.Entity
	persists int
	failNext error
}

func (m *memoryStore) LoadBatch(ctx context.Context) ([]models.Entity, error) {
	out := make([]models.Entity, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *memoryStore) Persist(ctx context.Context, batch []models.Entity) error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.rows = make([]models.Entity, len(batch))
	copy(m.rows, batch)
	m.persists++
	return nil
}

func (m *memoryStore) Location() string { return "memory" }

func (m *memoryStore) status(id models.TaxID) models.Status {
	for _, e := range m.rows {
		if e.ID == id {
			return e.Status
		}
	}
	return models.StatusPending
}

type fakeSession struct {
	closed int
}

func (s *fakeSession) NavigateTo(ctx context.Context, url string) error { return nil }
func (s *fakeSession) WaitForElement(ctx context.Context, l interfaces.Locator, d time.Duration) (interfaces.Element, error) {
	return nil, interfaces.ErrElementTimeout
}
func (s *fakeSession) Click(ctx context.Context, el interfaces.Element) error { return nil }
func (s *fakeSession) TypeText(ctx context.Context, el interfaces.Element, t string) error { return nil }
func (s *fakeSession) EnterNestedContext(ctx context.Context, f interfaces.Element) error { return nil }
func (s *fakeSession) ExitToTopContext(ctx context.Context) error { return nil }
func (s *fakeSession) DownloadDirectory() string { return "" }
func (s *fakeSession) Close() error { s.closed++; return nil }

// fakeDriver fails the first len(failures) acquisitions with the given errors
type fakeDriver struct {
	failures []error
	acquires int
	sessions []*fakeSession
}

func (d *fakeDriver) Acquire(ctx context.Context) (interfaces.Session, error) {
	d.acquires++
	if d.acquires <= len(d.failures) {
		return nil, d.failures[d.acquires-1]
	}
	s := &fakeSession{}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDriver) closedSessions() int {
	n := 0
	for _, s := range d.sessions {
		n += s.closed
	}
	return n
}

// funcRunner delegates to fn and counts invocations per entity
type funcRunner struct {
	fn    func(entity models.Entity, call int) (workflow.Result, error)
	calls map[models.TaxID]int
}

func newFuncRunner(fn func(entity models.Entity, call int) (workflow.Result, error)) *funcRunner {
	return &funcRunner{fn: fn, calls: map[models.TaxID]int{}}
}

func (r *funcRunner) Run(ctx context.Context, session interfaces.Session, entity models.Entity, budget int) (workflow.Result, error) {
	r.calls[entity.ID]++
	return r.fn(entity, r.calls[entity.ID])
}

func completed(entity models.Entity, call int) (workflow.Result, error) {
	return workflow.Result{Entity: entity, Status: models.StatusCompleted, Attempts: 1, Last: workflow.Success("", true)}, nil
}

type progressEvent struct {
	message        string
	current, total int
}

type progressRecorder struct {
	mu     sync.Mutex
	events []progressEvent
}

func (p *progressRecorder) Progress(message string, current, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, progressEvent{message, current, total})
}

func (p *progressRecorder) last() progressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type memoryHistory struct {
	runs     map[string]models.RunRecord
	attempts []models.AttemptRecord
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{runs: map[string]models.RunRecord{}}
}

func (h *memoryHistory) SaveRun(ctx context.Context, run *models.RunRecord) error {
	h.runs[run.ID] = *run
	return nil
}

func (h *memoryHistory) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	run, ok := h.runs[id]
	if !ok {
		return nil, interfaces.ErrRunNotFound
	}
	return &run, nil
}

func (h *memoryHistory) ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	return nil, errors.New("not implemented")
}

func (h *memoryHistory) SaveAttempt(ctx context.Context, attempt *models.AttemptRecord) error {
	h.attempts = append(h.attempts, *attempt)
	return nil
}

func (h *memoryHistory) ListAttempts(ctx context.Context, runID string) ([]*models.AttemptRecord, error) {
	return nil, errors.New("not implemented")
}

func batchOf(ids ...string) []models.Entity {
	batch := make([]models.Entity, 0, len(ids))
	for i, id := range ids {
		batch = append(batch, models.Entity{ID: models.TaxID(id), Code: id, Row: i + 2})
	}
	return batch
}

func newRunContext(store *memoryStore) (*RunContext, *progressRecorder) {
	progress := &progressRecorder{}
	return &RunContext{
		RunID:    "run_test",
		Period:   "06 2025",
		Ledger:   ledger.New(store, store.rows),
		Progress: progress,
		Cancel:   &StopFlag{},
		Logger:   arbor.NewLogger(),
	}, progress
}
