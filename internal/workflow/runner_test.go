package workflow

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
)

// scriptedWorkflow returns outcomes in order and repeats the last one
type scriptedWorkflow struct {
	outcomes []Outcome
	calls    int
}

func (w *scriptedWorkflow) Attempt(ctx context.Context, session interfaces.Session, entity models.Entity) Outcome {
	i := w.calls
	if i >= len(w.outcomes) {
		i = len(w.outcomes) - 1
	}
	w.calls++
	return w.outcomes[i]
}

var errTimeout = fmt.Errorf("link: %w", interfaces.ErrElementTimeout)

func newTestRunner(w Workflow) *Runner {
	return NewRunner(w, RunnerConfig{}, arbor.NewLogger())
}

func TestRunner_BoundedRetries(t *testing.T) {
	w := &scriptedWorkflow{outcomes: []Outcome{Retryable(CheckpointHome, errTimeout)}}
	s := newFakeSession()

	result, err := newTestRunner(w).Run(context.Background(), s, testEntity, 3)

	require.NoError(t, err)
	assert.Equal(t, 3, w.calls)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, models.StatusDownloadError, result.Status)
	assert.Equal(t, 3, s.exits, "context reset after every timeout")
}

func TestRunner_RetryThenSuccess(t *testing.T) {
	w := &scriptedWorkflow{outcomes: []Outcome{
		Retryable(CheckpointIssueDocument, errTimeout),
		Success("/downloads/A1 DARFWEB 06 2025.pdf", true),
	}}

	result, err := newTestRunner(w).Run(context.Background(), newFakeSession(), testEntity, 3)

	require.NoError(t, err)
	assert.Equal(t, 2, w.calls)
	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.True(t, result.Last.Artifact)
}

func TestRunner_NotFoundIsTerminal(t *testing.T) {
	w := &scriptedWorkflow{outcomes: []Outcome{NotFound()}}

	result, err := newTestRunner(w).Run(context.Background(), newFakeSession(), testEntity, 3)

	require.NoError(t, err)
	assert.Equal(t, 1, w.calls)
	assert.Equal(t, models.StatusNotFound, result.Status)
}

func TestRunner_UnexpectedErrorSpendsWholeBudget(t *testing.T) {
	w := &scriptedWorkflow{outcomes: []Outcome{
		Fatal(FailureUnexpected, CheckpointSearchFilter, errors.New("stale element")),
		Success("", true),
	}}

	result, err := newTestRunner(w).Run(context.Background(), newFakeSession(), testEntity, 3)

	require.NoError(t, err)
	assert.Equal(t, 1, w.calls)
	assert.Equal(t, models.StatusUnexpectedError, result.Status)
}

func TestRunner_SessionLostEscalates(t *testing.T) {
	w := &scriptedWorkflow{outcomes: []Outcome{
		Fatal(FailureSessionLost, CheckpointHome, interfaces.ErrSessionClosed),
	}}

	result, err := newTestRunner(w).Run(context.Background(), newFakeSession(), testEntity, 3)

	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrSessionClosed))
	assert.Equal(t, models.StatusUnexpectedError, result.Status)
	assert.Equal(t, 1, w.calls)
}

func TestRunner_NonPositiveBudgetRunsOnce(t *testing.T) {
	w := &scriptedWorkflow{outcomes: []Outcome{Retryable(CheckpointHome, errTimeout)}}

	result, err := newTestRunner(w).Run(context.Background(), newFakeSession(), testEntity, 0)

	require.NoError(t, err)
	assert.Equal(t, 1, w.calls)
	assert.Equal(t, models.StatusDownloadError, result.Status)
}

func TestRunner_CancelledDuringRetryPause(t *testing.T) {
	w := &scriptedWorkflow{outcomes: []Outcome{Retryable(CheckpointHome, errTimeout)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestRunner(w).Run(ctx, newFakeSession(), testEntity, 3)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, w.calls)
}
