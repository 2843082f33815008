package task

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comic-server/internal/models"
	"comic-server/internal/repository"
)

// queuedTask is one backlog entry. seq preserves arrival order for
// priority ties.
type queuedTask struct {
	generationID uuid.UUID
	def          *Definition
	tc           models.TaskContext
	params       models.TaskParameters
	gen          *models.Generation
	seq          uint64
}

type activeTask struct {
	kind   models.TaskKind
	cancel context.CancelFunc
}

// TaskConfig is one entry of a batch submission.
type TaskConfig struct {
	Kind       models.TaskKind       `json:"kind"`
	Context    models.TaskContext    `json:"context"`
	Parameters models.TaskParameters `json:"parameters"`
}

// QueueInfo is a snapshot of the executor's state.
type QueueInfo struct {
	Queued        int `json:"queued"`
	Active        int `json:"active"`
	MaxConcurrent int `json:"max_concurrent"`
	CachedResults int `json:"cached_results"`
}

// Executor schedules generation tasks with bounded concurrency and a
// priority-ordered backlog. Task failures are captured inside their
// TaskResult; only submission-time configuration errors surface as
// errors.
type Executor struct {
	registry      *Registry
	runner        *Runner
	generations   repository.GenerationRepository
	maxConcurrent int
	resultsCap    int
	logger        *zap.Logger

	mu          sync.Mutex
	backlog     []*queuedTask
	active      map[uuid.UUID]*activeTask
	results     map[uuid.UUID]models.TaskResult
	resultOrder []uuid.UUID
	nextSeq     uint64
	closed      bool

	wg sync.WaitGroup
}

func NewExecutor(registry *Registry, runner *Runner, generations repository.GenerationRepository, maxConcurrent, resultsCap int, logger *zap.Logger) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	if resultsCap <= 0 {
		resultsCap = 256
	}
	return &Executor{
		registry:      registry,
		runner:        runner,
		generations:   generations,
		maxConcurrent: maxConcurrent,
		resultsCap:    resultsCap,
		logger:        logger.Named("TaskExecutor"),
		active:        make(map[uuid.UUID]*activeTask),
		results:       make(map[uuid.UUID]models.TaskResult),
	}
}

// Submit resolves the kind, eagerly creates the Generation record and
// either executes synchronously or queues the task. The generation id
// is returned immediately in both cases; callers poll status.
func (e *Executor) Submit(ctx context.Context, kind models.TaskKind, tc models.TaskContext, params models.TaskParameters, executeImmediately bool) (uuid.UUID, error) {
	def, err := e.registry.Get(kind)
	if err != nil {
		return uuid.Nil, err
	}
	params = fillDefaults(params)

	gen, err := e.runner.Prepare(ctx, def, tc, params)
	if err != nil {
		return uuid.Nil, err
	}
	recordSubmitted(string(kind), params.Priority.String())

	if executeImmediately {
		result := e.runner.Execute(ctx, def, gen, tc, params)
		recordFinished(string(kind), result.Success, result.ExecutionTime.Seconds())
		e.mu.Lock()
		e.cacheResult(gen.ID, result)
		e.mu.Unlock()
		return gen.ID, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return uuid.Nil, errors.New("executor is shut down")
	}
	e.nextSeq++
	e.backlog = append(e.backlog, &queuedTask{
		generationID: gen.ID,
		def:          def,
		tc:           tc,
		params:       params,
		gen:          gen,
		seq:          e.nextSeq,
	})
	tasksBacklogDepth.Set(float64(len(e.backlog)))
	e.drainLocked()
	return gen.ID, nil
}

// drainLocked launches backlog entries while capacity remains. Caller
// holds e.mu.
func (e *Executor) drainLocked() {
	sort.SliceStable(e.backlog, func(i, j int) bool {
		if e.backlog[i].params.Priority != e.backlog[j].params.Priority {
			return e.backlog[i].params.Priority > e.backlog[j].params.Priority
		}
		return e.backlog[i].seq < e.backlog[j].seq
	})

	for len(e.active) < e.maxConcurrent && len(e.backlog) > 0 {
		next := e.backlog[0]
		e.backlog = e.backlog[1:]
		e.launchLocked(next)
	}
	tasksBacklogDepth.Set(float64(len(e.backlog)))
}

// launchLocked starts one task as a concurrent unit. Caller holds e.mu.
func (e *Executor) launchLocked(qt *queuedTask) {
	taskCtx, cancel := context.WithCancel(context.Background())
	e.active[qt.generationID] = &activeTask{kind: qt.def.Kind, cancel: cancel}
	tasksInFlight.Set(float64(len(e.active)))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()

		result := e.runner.Execute(taskCtx, qt.def, qt.gen, qt.tc, qt.params)
		recordFinished(string(qt.def.Kind), result.Success, result.ExecutionTime.Seconds())

		e.mu.Lock()
		delete(e.active, qt.generationID)
		tasksInFlight.Set(float64(len(e.active)))
		e.cacheResult(qt.generationID, result)
		if !e.closed {
			e.drainLocked()
		}
		e.mu.Unlock()
	}()
}

// cacheResult stores a result, evicting the oldest entry when the
// cache is full. Caller holds e.mu.
func (e *Executor) cacheResult(id uuid.UUID, result models.TaskResult) {
	if _, exists := e.results[id]; !exists {
		e.resultOrder = append(e.resultOrder, id)
		if len(e.resultOrder) > e.resultsCap {
			oldest := e.resultOrder[0]
			e.resultOrder = e.resultOrder[1:]
			delete(e.results, oldest)
		}
	}
	e.results[id] = result
}

// GetTaskStatus reports where a task is in its lifecycle, falling back
// to the persisted Generation record for results evicted from the
// cache.
func (e *Executor) GetTaskStatus(ctx context.Context, id uuid.UUID) (models.TaskStatus, error) {
	e.mu.Lock()
	if at, ok := e.active[id]; ok {
		e.mu.Unlock()
		return models.TaskStatus{TaskID: id, State: models.TaskStateInProgress, Kind: at.kind}, nil
	}
	for pos, qt := range e.backlog {
		if qt.generationID == id {
			status := models.TaskStatus{
				TaskID:   id,
				State:    models.TaskStateQueued,
				Kind:     qt.def.Kind,
				Priority: qt.params.Priority,
				Position: pos + 1,
			}
			e.mu.Unlock()
			return status, nil
		}
	}
	if result, ok := e.results[id]; ok {
		e.mu.Unlock()
		state := models.TaskStateCompleted
		if !result.Success {
			state = models.TaskStateFailed
		}
		return models.TaskStatus{TaskID: id, State: state, Result: &result}, nil
	}
	e.mu.Unlock()

	gen, err := e.generations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.TaskStatus{TaskID: id, State: models.TaskStateNotFound}, nil
		}
		return models.TaskStatus{}, err
	}
	return models.TaskStatus{TaskID: id, State: generationState(gen.Status), Kind: gen.Kind}, nil
}

func generationState(status models.GenerationStatus) string {
	switch status {
	case models.GenerationQueued:
		return models.TaskStateQueued
	case models.GenerationProcessing:
		return models.TaskStateInProgress
	case models.GenerationCompleted:
		return models.TaskStateCompleted
	case models.GenerationFailed:
		return models.TaskStateFailed
	default:
		return models.TaskStateNotFound
	}
}

// Cancel stops a task. An in-flight task gets a cooperative
// cancellation request; its final Generation status is authoritative.
// A queued task is removed before it ever starts. Returns whether a
// cancellation occurred.
func (e *Executor) Cancel(ctx context.Context, id uuid.UUID) bool {
	e.mu.Lock()
	if at, ok := e.active[id]; ok {
		e.mu.Unlock()
		at.cancel()
		e.logger.Info("Requested cancellation of running task", zap.String("generation_id", id.String()))
		return true
	}
	for i, qt := range e.backlog {
		if qt.generationID == id {
			e.backlog = append(e.backlog[:i], e.backlog[i+1:]...)
			tasksBacklogDepth.Set(float64(len(e.backlog)))
			e.mu.Unlock()
			if err := e.generations.MarkFailed(ctx, id, "cancelled before execution"); err != nil {
				e.logger.Warn("Failed to mark cancelled generation", zap.Error(err))
			}
			e.logger.Info("Removed queued task from backlog", zap.String("generation_id", id.String()))
			return true
		}
	}
	e.mu.Unlock()
	return false
}

// Retry resets a failed generation back to queued and resubmits it to
// the backlog. The task context is rebuilt from the persisted record;
// free-text instructions are not persisted and do not survive a retry.
func (e *Executor) Retry(ctx context.Context, id uuid.UUID) error {
	gen, err := e.generations.GetByID(ctx, id)
	if err != nil {
		return err
	}
	def, err := e.registry.Get(gen.Kind)
	if err != nil {
		return err
	}
	if err := e.runner.Retry(ctx, id); err != nil {
		return err
	}
	gen.Status = models.GenerationQueued
	gen.RetryCount++

	tc := models.TaskContext{
		ProjectID:        gen.ProjectID,
		UserID:           gen.UserID,
		TargetEntityType: gen.EntityType,
		TargetEntityID:   gen.EntityID,
	}
	params := fillDefaults(gen.Parameters)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("executor is shut down")
	}
	e.nextSeq++
	e.backlog = append(e.backlog, &queuedTask{
		generationID: id,
		def:          def,
		tc:           tc,
		params:       params,
		gen:          gen,
		seq:          e.nextSeq,
	})
	tasksBacklogDepth.Set(float64(len(e.backlog)))
	recordSubmitted(string(gen.Kind), params.Priority.String())
	e.logger.Info("Requeued failed generation",
		zap.String("generation_id", id.String()),
		zap.Int("retry_count", gen.RetryCount))
	e.drainLocked()
	return nil
}

// BatchExecute runs task configs in fixed-size waves, awaiting each
// wave fully. A failed submission or execution becomes a failed
// TaskResult in place; no single task aborts the batch.
func (e *Executor) BatchExecute(ctx context.Context, configs []TaskConfig, maxParallel int) []models.TaskResult {
	if maxParallel <= 0 {
		maxParallel = e.maxConcurrent
	}

	results := make([]models.TaskResult, len(configs))
	for start := 0; start < len(configs); start += maxParallel {
		end := start + maxParallel
		if end > len(configs) {
			end = len(configs)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = e.executeOne(ctx, configs[i])
			}(i)
		}
		wg.Wait()
	}
	return results
}

func (e *Executor) executeOne(ctx context.Context, cfg TaskConfig) models.TaskResult {
	def, err := e.registry.Get(cfg.Kind)
	if err != nil {
		return models.TaskResult{Success: false, Error: err.Error()}
	}
	params := fillDefaults(cfg.Parameters)

	gen, err := e.runner.Prepare(ctx, def, cfg.Context, params)
	if err != nil {
		return models.TaskResult{Success: false, Error: err.Error()}
	}
	recordSubmitted(string(cfg.Kind), params.Priority.String())

	result := e.runner.Execute(ctx, def, gen, cfg.Context, params)
	recordFinished(string(cfg.Kind), result.Success, result.ExecutionTime.Seconds())

	e.mu.Lock()
	e.cacheResult(gen.ID, result)
	e.mu.Unlock()
	return result
}

// QueueInfo snapshots the executor state.
func (e *Executor) QueueInfo() QueueInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return QueueInfo{
		Queued:        len(e.backlog),
		Active:        len(e.active),
		MaxConcurrent: e.maxConcurrent,
		CachedResults: len(e.results),
	}
}

// Cleanup cancels everything in flight, waits for completion and
// clears all state. Used at shutdown.
func (e *Executor) Cleanup() {
	e.mu.Lock()
	e.closed = true
	e.backlog = nil
	for _, at := range e.active {
		at.cancel()
	}
	e.mu.Unlock()

	e.wg.Wait()

	e.mu.Lock()
	e.results = make(map[uuid.UUID]models.TaskResult)
	e.resultOrder = nil
	tasksBacklogDepth.Set(0)
	tasksInFlight.Set(0)
	e.mu.Unlock()

	e.logger.Info("Executor shut down")
}

func fillDefaults(params models.TaskParameters) models.TaskParameters {
	defaults := models.DefaultTaskParameters()
	if params.Temperature == nil {
		params.Temperature = defaults.Temperature
	}
	if params.NumVariants <= 0 {
		params.NumVariants = defaults.NumVariants
	}
	if params.OutputMode == "" {
		params.OutputMode = defaults.OutputMode
	}
	if params.Priority == 0 {
		params.Priority = defaults.Priority
	}
	return params
}
