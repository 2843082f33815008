package task

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"comic-server/internal/models"
)

func newTestExecutor(t *testing.T, client *stubClient, maxConcurrent int) (*Executor, *runnerFixture) {
	t.Helper()
	f := newRunnerFixture(t, client)

	registry := NewRegistry(zap.NewNop())
	require.NoError(t, registry.Register(sampleDefinition()))

	executor := NewExecutor(registry, f.runner, f.generations, maxConcurrent, 16, zap.NewNop())
	t.Cleanup(executor.Cleanup)
	return executor, f
}

func submitSample(t *testing.T, e *Executor, priority models.TaskPriority, marker string) uuid.UUID {
	t.Helper()
	tc := models.TaskContext{
		ProjectID:         uuid.New(),
		UserID:            uuid.New(),
		AdditionalContext: map[string]any{"marker": marker},
	}
	params := sampleParams(1)
	params.Priority = priority

	id, err := e.Submit(context.Background(), models.KindSceneSummary, tc, params, false)
	require.NoError(t, err)
	return id
}

func waitForIdle(t *testing.T, e *Executor) {
	t.Helper()
	require.Eventually(t, func() bool {
		info := e.QueueInfo()
		return info.Queued == 0 && info.Active == 0
	}, 5*time.Second, 5*time.Millisecond, "executor did not drain")
}

func TestExecutor_UnknownKind(t *testing.T) {
	e, _ := newTestExecutor(t, &stubClient{response: `{"summary":"x"}`}, 3)

	_, err := e.Submit(context.Background(), models.TaskKind("haiku"), models.TaskContext{}, models.TaskParameters{}, false)
	assert.ErrorIs(t, err, models.ErrUnknownTaskKind)
}

func TestExecutor_BoundedConcurrency(t *testing.T) {
	gate := make(chan struct{})
	client := &stubClient{response: `{"summary":"x"}`, gate: gate}
	e, _ := newTestExecutor(t, client, 3)

	for i := 0; i < 10; i++ {
		submitSample(t, e, models.PriorityMedium, "sample")
	}

	require.Eventually(t, func() bool {
		return e.QueueInfo().Active == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 7, e.QueueInfo().Queued)

	close(gate)
	waitForIdle(t, e)

	assert.LessOrEqual(t, client.peak, int32(3), "never more than max_concurrent tasks active")
	assert.Len(t, client.recordedPrompts(), 10)
}

func TestExecutor_PriorityOrder(t *testing.T) {
	gate := make(chan struct{})
	client := &stubClient{response: `{"summary":"x"}`, gate: gate}
	e, _ := newTestExecutor(t, client, 1)

	// Occupy the single slot so subsequent submissions pile up in the
	// backlog.
	submitSample(t, e, models.PriorityMedium, "blocker")
	require.Eventually(t, func() bool { return e.QueueInfo().Active == 1 }, 2*time.Second, 5*time.Millisecond)

	submitSample(t, e, models.PriorityLow, "low")
	submitSample(t, e, models.PriorityCritical, "critical")
	submitSample(t, e, models.PriorityMedium, "medium")

	close(gate)
	waitForIdle(t, e)

	prompts := client.recordedPrompts()
	require.Len(t, prompts, 4)
	markers := make([]string, 0, 3)
	for _, p := range prompts[1:] {
		for _, marker := range []string{"critical", "medium", "low"} {
			if strings.Contains(p, marker) {
				markers = append(markers, marker)
			}
		}
	}
	assert.Equal(t, []string{"critical", "medium", "low"}, markers)
}

func TestExecutor_FIFOWithinPriority(t *testing.T) {
	gate := make(chan struct{})
	client := &stubClient{response: `{"summary":"x"}`, gate: gate}
	e, _ := newTestExecutor(t, client, 1)

	submitSample(t, e, models.PriorityMedium, "blocker")
	require.Eventually(t, func() bool { return e.QueueInfo().Active == 1 }, 2*time.Second, 5*time.Millisecond)

	submitSample(t, e, models.PriorityMedium, "first")
	submitSample(t, e, models.PriorityMedium, "second")
	submitSample(t, e, models.PriorityMedium, "third")

	close(gate)
	waitForIdle(t, e)

	prompts := client.recordedPrompts()
	require.Len(t, prompts, 4)
	assert.Contains(t, prompts[1], "first")
	assert.Contains(t, prompts[2], "second")
	assert.Contains(t, prompts[3], "third")
}

func TestExecutor_CancelQueuedTaskNeverRuns(t *testing.T) {
	gate := make(chan struct{})
	client := &stubClient{response: `{"summary":"x"}`, gate: gate}
	e, f := newTestExecutor(t, client, 1)

	submitSample(t, e, models.PriorityMedium, "blocker")
	require.Eventually(t, func() bool { return e.QueueInfo().Active == 1 }, 2*time.Second, 5*time.Millisecond)

	queuedID := submitSample(t, e, models.PriorityMedium, "victim")
	assert.Equal(t, 1, e.QueueInfo().Queued)

	cancelled := e.Cancel(context.Background(), queuedID)
	assert.True(t, cancelled)
	assert.Equal(t, 0, e.QueueInfo().Queued)

	close(gate)
	waitForIdle(t, e)

	for _, p := range client.recordedPrompts() {
		assert.NotContains(t, p, "victim", "cancelled task must never execute")
	}
	f.generations.AssertCalled(t, "MarkFailed", context.Background(), queuedID, "cancelled before execution")
}

func TestExecutor_CancelUnknownTask(t *testing.T) {
	e, _ := newTestExecutor(t, &stubClient{response: `{"summary":"x"}`}, 1)
	assert.False(t, e.Cancel(context.Background(), uuid.New()))
}

func TestExecutor_CancelRunningTask(t *testing.T) {
	gate := make(chan struct{})
	client := &stubClient{response: `{"summary":"x"}`, gate: gate}
	e, _ := newTestExecutor(t, client, 1)

	id := submitSample(t, e, models.PriorityMedium, "runner")
	require.Eventually(t, func() bool { return e.QueueInfo().Active == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.True(t, e.Cancel(context.Background(), id))
	waitForIdle(t, e)

	status, err := e.GetTaskStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateFailed, status.State)
}

func TestExecutor_StatusLifecycle(t *testing.T) {
	gate := make(chan struct{})
	client := &stubClient{response: `{"summary":"x"}`, gate: gate}
	e, _ := newTestExecutor(t, client, 1)

	running := submitSample(t, e, models.PriorityMedium, "running")
	require.Eventually(t, func() bool { return e.QueueInfo().Active == 1 }, 2*time.Second, 5*time.Millisecond)

	queued := submitSample(t, e, models.PriorityLow, "queued")

	status, err := e.GetTaskStatus(context.Background(), running)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateInProgress, status.State)

	status, err = e.GetTaskStatus(context.Background(), queued)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateQueued, status.State)
	assert.Equal(t, 1, status.Position)

	close(gate)
	waitForIdle(t, e)

	status, err = e.GetTaskStatus(context.Background(), running)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateCompleted, status.State)
	require.NotNil(t, status.Result)
	assert.True(t, status.Result.Success)
}

func TestExecutor_StatusFallsBackToStore(t *testing.T) {
	client := &stubClient{response: `{"summary":"x"}`}
	e, f := newTestExecutor(t, client, 1)

	unknown := uuid.New()
	f.generations.On("GetByID", context.Background(), unknown).Return(nil, models.ErrNotFound)

	status, err := e.GetTaskStatus(context.Background(), unknown)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateNotFound, status.State)

	persisted := uuid.New()
	f.generations.On("GetByID", context.Background(), persisted).Return(&models.Generation{
		ID:     persisted,
		Kind:   models.KindSceneSummary,
		Status: models.GenerationCompleted,
	}, nil)

	status, err = e.GetTaskStatus(context.Background(), persisted)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateCompleted, status.State)
}

func TestExecutor_ExecuteImmediately(t *testing.T) {
	client := &stubClient{response: `{"summary":"sync"}`}
	e, _ := newTestExecutor(t, client, 3)

	tc := models.TaskContext{ProjectID: uuid.New(), AdditionalContext: map[string]any{"marker": "sync"}}
	id, err := e.Submit(context.Background(), models.KindSceneSummary, tc, sampleParams(1), true)
	require.NoError(t, err)

	status, err := e.GetTaskStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateCompleted, status.State)
}

func TestExecutor_BatchExecuteWaves(t *testing.T) {
	client := &stubClient{response: `{"summary":"x"}`}
	e, _ := newTestExecutor(t, client, 3)

	configs := make([]TaskConfig, 5)
	for i := range configs {
		configs[i] = TaskConfig{
			Kind:       models.KindSceneSummary,
			Context:    models.TaskContext{ProjectID: uuid.New(), AdditionalContext: map[string]any{"marker": "batch"}},
			Parameters: sampleParams(1),
		}
	}
	// One bad config must not abort the batch.
	configs[2].Kind = models.TaskKind("haiku")

	results := e.BatchExecute(context.Background(), configs, 2)
	require.Len(t, results, 5)
	for i, result := range results {
		if i == 2 {
			assert.False(t, result.Success)
			assert.Contains(t, result.Error, "unknown task kind")
		} else {
			assert.True(t, result.Success, "task %d: %s", i, result.Error)
		}
	}
}

func TestExecutor_RetryFailedGeneration(t *testing.T) {
	client := &stubClient{err: errors.New("provider down"), failures: 3, response: `{"summary":"recovered"}`}
	e, f := newTestExecutor(t, client, 1)

	tc := models.TaskContext{
		ProjectID:         uuid.New(),
		UserID:            uuid.New(),
		AdditionalContext: map[string]any{"marker": "retryme"},
	}
	id, err := e.Submit(context.Background(), models.KindSceneSummary, tc, sampleParams(1), true)
	require.NoError(t, err)

	status, err := e.GetTaskStatus(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, models.TaskStateFailed, status.State)

	f.generations.On("GetByID", mock.Anything, id).Return(&models.Generation{
		ID:         id,
		ProjectID:  tc.ProjectID,
		UserID:     tc.UserID,
		Kind:       models.KindSceneSummary,
		Status:     models.GenerationFailed,
		Parameters: sampleParams(1),
	}, nil)
	f.generations.On("ResetForRetry", mock.Anything, id).Return(nil)

	require.NoError(t, e.Retry(context.Background(), id))
	waitForIdle(t, e)

	f.generations.AssertCalled(t, "ResetForRetry", mock.Anything, id)
	status, err = e.GetTaskStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateCompleted, status.State)
	assert.Len(t, client.recordedPrompts(), 4, "three failed attempts plus the retried success")
}

func TestExecutor_RetryNonFailedGeneration(t *testing.T) {
	e, f := newTestExecutor(t, &stubClient{response: `{"summary":"x"}`}, 1)

	id := uuid.New()
	f.generations.On("GetByID", mock.Anything, id).Return(&models.Generation{
		ID:     id,
		Kind:   models.KindSceneSummary,
		Status: models.GenerationCompleted,
	}, nil)
	f.generations.On("ResetForRetry", mock.Anything, id).Return(models.ErrNotFound)

	err := e.Retry(context.Background(), id)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 0, e.QueueInfo().Queued)
}

func TestFillDefaults_ExplicitZeroTemperature(t *testing.T) {
	zero := 0.0
	filled := fillDefaults(models.TaskParameters{Temperature: &zero})
	require.NotNil(t, filled.Temperature)
	assert.Zero(t, *filled.Temperature)

	filled = fillDefaults(models.TaskParameters{})
	require.NotNil(t, filled.Temperature)
	assert.Equal(t, models.DefaultTemperature, *filled.Temperature)
}

func TestExecutor_ResultsCacheEviction(t *testing.T) {
	client := &stubClient{response: `{"summary":"x"}`}
	f := newRunnerFixture(t, client)
	registry := NewRegistry(zap.NewNop())
	require.NoError(t, registry.Register(sampleDefinition()))

	e := NewExecutor(registry, f.runner, f.generations, 1, 2, zap.NewNop())
	t.Cleanup(e.Cleanup)

	tc := models.TaskContext{ProjectID: uuid.New(), AdditionalContext: map[string]any{"marker": "m"}}
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		id, err := e.Submit(context.Background(), models.KindSceneSummary, tc, sampleParams(1), true)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	assert.Equal(t, 2, e.QueueInfo().CachedResults)

	// The evicted result falls back to the persisted record.
	f.generations.On("GetByID", context.Background(), ids[0]).Return(&models.Generation{
		ID:     ids[0],
		Status: models.GenerationCompleted,
	}, nil)
	status, err := e.GetTaskStatus(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.TaskStateCompleted, status.State)
}
