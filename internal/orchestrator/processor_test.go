package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
	"github.com/hugorneri/RPA-DCTFWEB/internal/workflow"
)

func TestProcessor_SkipsCompletedEntitiesOnRerun(t *testing.T) {
	store := &memoryStore{rows: batchOf("A", "B", "C")}
	runner := newFuncRunner(completed)
	processor := NewProcessor(runner, 3)

	rc, _ := newRunContext(store)
	require.NoError(t, processor.Process(context.Background(), rc, &fakeSession{}, rc.Ledger.Entities()))
	assert.Equal(t, 3, len(runner.calls))

	// A second run over the persisted rows does no work
	rerun := newFuncRunner(completed)
	rc2, _ := newRunContext(store)
	require.NoError(t, NewProcessor(rerun, 3).Process(context.Background(), rc2, &fakeSession{}, rc2.Ledger.Entities()))
	assert.Empty(t, rerun.calls)
}

func TestProcessor_EveryEntityGetsAStatus(t *testing.T) {
	store := &memoryStore{rows: batchOf("A", "B", "C", "D")}
	statuses := map[models.TaxID]models.Status{
		"A": models.StatusCompleted,
		"B": models.StatusNotFound,
		"C": models.StatusDownloadError,
		"D": models.StatusUnexpectedError,
	}
	runner := newFuncRunner(func(entity models.Entity, call int) (workflow.Result, error) {
		return workflow.Result{Entity: entity, Status: statuses[entity.ID], Attempts: 1}, nil
	})

	rc, _ := newRunContext(store)
	require.NoError(t, NewProcessor(runner, 3).Process(context.Background(), rc, &fakeSession{}, rc.Ledger.Entities()))

	for id, want := range statuses {
		assert.Equal(t, want, store.status(id), string(id))
	}
	assert.Equal(t, 4, store.persists, "ledger flushed after every entity")
}

func TestProcessor_CancellationStopsAtEntityBoundary(t *testing.T) {
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("E%02d", i)
	}
	store := &memoryStore{rows: batchOf(ids...)}
	rc, progress := newRunContext(store)
	stop := rc.Cancel.(*StopFlag)

	processed := 0
	runner := newFuncRunner(func(entity models.Entity, call int) (workflow.Result, error) {
		processed++
		if processed == 3 {
			stop.Stop()
		}
		return workflow.Result{Entity: entity, Status: models.StatusCompleted, Attempts: 1}, nil
	})

	err := NewProcessor(runner, 3).Process(context.Background(), rc, &fakeSession{}, rc.Ledger.Entities())

	assert.True(t, errors.Is(err, ErrCancelled))
	assert.Equal(t, 3, processed)
	for i, id := range ids {
		if i < 3 {
			assert.Equal(t, models.StatusCompleted, store.status(models.TaxID(id)))
		} else {
			assert.Equal(t, models.StatusPending, store.status(models.TaxID(id)))
		}
	}
	assert.Equal(t, progressEvent{"Processamento concluído!", 10, 10}, progress.last())
}

// perEntityWorkflow scripts one outcome per entity and counts invocations
type perEntityWorkflow struct {
	outcomes map[models.TaxID]workflow.Outcome
	calls    map[models.TaxID]int
}

func (w *perEntityWorkflow) Attempt(ctx context.Context, s interfaces.Session, entity models.Entity) workflow.Outcome {
	w.calls[entity.ID]++
	return w.outcomes[entity.ID]
}

func TestProcessor_TwoEntityScenario(t *testing.T) {
	store := &memoryStore{rows: batchOf("11.111.111/0001-11", "22.222.222/0001-22")}
	w := &perEntityWorkflow{
		outcomes: map[models.TaxID]workflow.Outcome{
			"11.111.111/0001-11": workflow.Success("/downloads/11.111.111/0001-11 DARFWEB 06 2025.pdf", true),
			"22.222.222/0001-22": workflow.Retryable(workflow.CheckpointIssueDocument, interfaces.ErrElementTimeout),
		},
		calls: map[models.TaxID]int{},
	}
	runner := workflow.NewRunner(w, workflow.RunnerConfig{}, arbor.NewLogger())
	rc, progress := newRunContext(store)

	require.NoError(t, NewProcessor(runner, 3).Process(context.Background(), rc, &fakeSession{}, rc.Ledger.Entities()))

	assert.Equal(t, 1, w.calls["11.111.111/0001-11"])
	assert.Equal(t, 3, w.calls["22.222.222/0001-22"])
	assert.Equal(t, models.StatusCompleted, store.status("11.111.111/0001-11"))
	assert.Equal(t, models.StatusDownloadError, store.status("22.222.222/0001-22"))

	assert.Equal(t, []progressEvent{
		{"Processando 11.111.111/0001-11...", 1, 2},
		{"Processando 22.222.222/0001-22...", 2, 2},
		{"Processamento concluído!", 2, 2},
	}, progress.events)
}

func TestProcessor_FlushFailureIsNotFatal(t *testing.T) {
	store := &memoryStore{rows: batchOf("A", "B")}
	store.failNext = errors.New("workbook open in another program")
	runner := newFuncRunner(completed)
	rc, _ := newRunContext(store)

	require.NoError(t, NewProcessor(runner, 3).Process(context.Background(), rc, &fakeSession{}, rc.Ledger.Entities()))

	assert.Equal(t, 1, runner.calls["B"], "run continues after a failed flush")
	assert.Equal(t, models.StatusCompleted, store.status("A"), "next flush carries the earlier status")
	assert.Equal(t, models.StatusCompleted, store.status("B"))
}

func TestProcessor_SessionErrorEscalatesAfterRecording(t *testing.T) {
	store := &memoryStore{rows: batchOf("A", "B")}
	runner := newFuncRunner(func(entity models.Entity, call int) (workflow.Result, error) {
		return workflow.Result{Entity: entity, Status: models.StatusUnexpectedError, Attempts: 1}, interfaces.ErrSessionClosed
	})
	rc, _ := newRunContext(store)
	history := newMemoryHistory()
	rc.History = history

	err := NewProcessor(runner, 3).Process(context.Background(), rc, &fakeSession{}, rc.Ledger.Entities())

	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrSessionClosed))
	assert.Equal(t, models.StatusUnexpectedError, store.status("A"))
	assert.Equal(t, 0, runner.calls["B"])
	require.Len(t, history.attempts, 1)
	assert.Equal(t, "A", history.attempts[0].EntityID)
	assert.NotEmpty(t, history.attempts[0].Error)
}
