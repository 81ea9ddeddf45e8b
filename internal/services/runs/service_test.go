package runs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/hugorneri/RPA-DCTFWEB/internal/common"
	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
	"github.com/hugorneri/RPA-DCTFWEB/internal/orchestrator"
	"github.com/hugorneri/RPA-DCTFWEB/internal/services/events"
	"github.com/hugorneri/RPA-DCTFWEB/internal/workflow"
)

type memoryStore struct {
	mu      sync.Mutex
	rows    []models.Entity
	loadErr error
}

func (m *memoryStore) LoadBatch(ctx context.Context) ([]models.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]models.Entity, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *memoryStore) Persist(ctx context.Context, batch []models.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = make([]models.Entity, len(batch))
	copy(m.rows, batch)
	return nil
}

func (m *memoryStore) Location() string { return "memory.xlsx" }

type stubSession struct{}

func (stubSession) NavigateTo(ctx context.Context, url string) error { return nil }
func (stubSession) WaitForElement(ctx context.Context, l interfaces.Locator, d time.Duration) (interfaces.Element, error) {
	return nil, interfaces.ErrElementTimeout
}
func (stubSession) Click(ctx context.Context, el interfaces.Element) error { return nil }
func (stubSession) TypeText(ctx context.Context, el interfaces.Element, t string) error { return nil }
func (stubSession) EnterNestedContext(ctx context.Context, f interfaces.Element) error { return nil }
func (stubSession) ExitToTopContext(ctx context.Context) error { return nil }
func (stubSession) DownloadDirectory() string { return "" }
func (stubSession) Close() error { return nil }

type stubDriver struct{}

func (stubDriver) Acquire(ctx context.Context) (interfaces.Session, error) { return stubSession{}, nil }

type completingRunner struct{}

func (completingRunner) Run(ctx context.Context, s interfaces.Session, e models.Entity, budget int) (workflow.Result, error) {
	return workflow.Result{Entity: e, Status: models.StatusCompleted, Attempts: 1}, nil
}

// gatedRunner completes every entity except block, which waits for release
type gatedRunner struct {
	block   models.TaxID
	reached chan struct{}
	release chan struct{}
}

func (g *gatedRunner) Run(ctx context.Context, s interfaces.Session, e models.Entity, budget int) (workflow.Result, error) {
	if e.ID == g.block {
		close(g.reached)
		select {
		case <-g.release:
		case <-ctx.Done():
		}
	}
	return workflow.Result{Entity: e, Status: models.StatusCompleted, Attempts: 1}, nil
}

func newTestService(t *testing.T, store *memoryStore) (*Service, interfaces.EventService) {
	t.Helper()
	config := common.NewDefaultConfig()
	config.Run.SessionBackoff = "1ms"
	bus := events.NewService(arbor.NewLogger())
	t.Cleanup(func() { bus.Close() })

	svc := NewService(config, Dependencies{
		Store:  store,
		Driver: stubDriver{},
		Runner: completingRunner{},
		Events: bus,
	}, arbor.NewLogger())
	t.Cleanup(func() { svc.Close() })
	return svc, bus
}

func awaitState(t *testing.T, svc *Service, state State) {
	t.Helper()
	require.Eventually(t, func() bool { return svc.Status().State == state }, 2*time.Second, 10*time.Millisecond)
}

func TestService_RunToCompletion(t *testing.T) {
	store := &memoryStore{rows: []models.Entity{{ID: "A", Code: "A", Row: 2}, {ID: "B", Code: "B", Row: 3}}}
	svc, bus := newTestService(t, store)

	var mu sync.Mutex
	var progress []ProgressEvent
	_, err := bus.Subscribe(interfaces.EventRunProgress, func(ctx context.Context, event interfaces.Event) error {
		mu.Lock()
		defer mu.Unlock()
		progress = append(progress, event.Payload.(ProgressEvent))
		return nil
	})
	require.NoError(t, err)

	runID, err := svc.Start(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	_, err = svc.Start(context.Background())
	assert.True(t, errors.Is(err, ErrRunInProgress))

	awaitState(t, svc, StateAwaitingLogin)
	require.NoError(t, svc.ConfirmLogin())

	outcome, err := svc.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, outcome)

	snap := svc.Status()
	assert.Equal(t, StateFinished, snap.State)
	assert.Equal(t, runID, snap.RunID)
	assert.Equal(t, 2, snap.Current)
	assert.Equal(t, 2, snap.Total)

	entities, err := svc.Entities(context.Background())
	require.NoError(t, err)
	for _, e := range entities {
		assert.Equal(t, models.StatusCompleted, e.Status)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(progress) > 0 && progress[len(progress)-1].Message == "Processamento concluído!"
	}, time.Second, 10*time.Millisecond)

	_, err = svc.Start(context.Background())
	assert.NoError(t, err, "a finished run does not block the next one")
}

func TestService_StopWhileAwaitingLogin(t *testing.T) {
	store := &memoryStore{rows: []models.Entity{{ID: "A", Code: "A", Row: 2}}}
	svc, _ := newTestService(t, store)

	_, err := svc.Start(context.Background())
	require.NoError(t, err)
	awaitState(t, svc, StateAwaitingLogin)

	require.NoError(t, svc.Stop())
	outcome, err := svc.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunCancelled, outcome)
	assert.True(t, store.rows[0].Status.IsPending())
}

func TestService_CancelAbortsRun(t *testing.T) {
	store := &memoryStore{rows: []models.Entity{{ID: "A", Code: "A", Row: 2}}}
	svc, _ := newTestService(t, store)

	_, err := svc.Start(context.Background())
	require.NoError(t, err)
	awaitState(t, svc, StateAwaitingLogin)

	require.NoError(t, svc.Cancel())
	outcome, err := svc.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunCancelled, outcome)
}

func TestService_ControlsWithoutRun(t *testing.T) {
	svc, _ := newTestService(t, &memoryStore{})

	assert.Equal(t, StateIdle, svc.Status().State)
	assert.True(t, errors.Is(svc.ConfirmLogin(), ErrNoActiveRun))
	assert.True(t, errors.Is(svc.Stop(), ErrNoActiveRun))
	assert.True(t, errors.Is(svc.Cancel(), ErrNoActiveRun))
	_, err := svc.Wait(context.Background())
	assert.True(t, errors.Is(err, ErrNoActiveRun))
}

func TestService_StartFailsWhenBatchCannotLoad(t *testing.T) {
	svc, _ := newTestService(t, &memoryStore{loadErr: errors.New("workbook missing")})

	_, err := svc.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateIdle, svc.Status().State)
}

func TestService_EntitiesServesLedgerDuringRun(t *testing.T) {
	store := &memoryStore{rows: []models.Entity{{ID: "A", Code: "A", Row: 2}, {ID: "B", Code: "B", Row: 3}}}
	svc, _ := newTestService(t, store)
	runner := &gatedRunner{block: "B", reached: make(chan struct{}), release: make(chan struct{})}
	svc.deps.Runner = runner

	_, err := svc.Start(context.Background())
	require.NoError(t, err)
	awaitState(t, svc, StateAwaitingLogin)
	require.NoError(t, svc.ConfirmLogin())

	select {
	case <-runner.reached:
	case <-time.After(2 * time.Second):
		t.Fatal("runner never reached B")
	}

	// the workbook becomes unreadable mid-run; the active run still answers from memory
	store.mu.Lock()
	store.loadErr = errors.New("workbook locked by another program")
	store.mu.Unlock()

	entities, err := svc.Entities(context.Background())
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, models.StatusCompleted, entities[0].Status)
	assert.True(t, entities[1].Status.IsPending())

	close(runner.release)
	_, err = svc.Wait(context.Background())
	require.NoError(t, err)

	_, err = svc.Entities(context.Background())
	assert.Error(t, err, "finished runs read the row store")
}

func TestService_MilestoneEventsSurviveFullBuffer(t *testing.T) {
	rows := make([]models.Entity, 20)
	for i := range rows {
		id := models.TaxID(fmt.Sprintf("%02d", i))
		rows[i] = models.Entity{ID: id, Code: string(id), Row: i + 2}
	}
	store := &memoryStore{rows: rows}
	svc, bus := newTestService(t, store)
	svc.buffer = 1

	release := make(chan struct{})
	var mu sync.Mutex
	var messages []string
	var milestones []string
	var states []State
	_, err := bus.Subscribe(interfaces.EventRunProgress, func(ctx context.Context, event interfaces.Event) error {
		<-release
		p := event.Payload.(ProgressEvent)
		mu.Lock()
		defer mu.Unlock()
		messages = append(messages, p.Message)
		if p.Milestone {
			milestones = append(milestones, p.Message)
		}
		return nil
	})
	require.NoError(t, err)
	_, err = bus.Subscribe(interfaces.EventRunState, func(ctx context.Context, event interfaces.Event) error {
		<-release
		mu.Lock()
		defer mu.Unlock()
		states = append(states, event.Payload.(Snapshot).State)
		return nil
	})
	require.NoError(t, err)

	_, err = svc.Start(context.Background())
	require.NoError(t, err)
	awaitState(t, svc, StateAwaitingLogin)
	require.NoError(t, svc.ConfirmLogin())

	time.AfterFunc(200*time.Millisecond, func() { close(release) })
	outcome, err := svc.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, outcome)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) > 0 && states[len(states)-1] == StateFinished
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{orchestrator.LoginPrompt, orchestrator.ProgressDone}, milestones)
	assert.Equal(t, orchestrator.ProgressDone, messages[len(messages)-1])
	assert.Less(t, len(messages), len(rows)+2, "ordinary reports are dropped while the buffer is full")
}
