package task

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comic-server/internal/ai"
	"comic-server/internal/models"
	"comic-server/internal/prompt"
	"comic-server/internal/repository"
)

// RunnerConfig carries the execution defaults shared by all kinds.
type RunnerConfig struct {
	DefaultProvider string
	DefaultModel    string
	MaxAttempts     int
	BaseRetryDelay  time.Duration
}

// Runner executes generation tasks end to end: prompt rendering, LLM
// calls with retry, output parsing, and the draft/generation lifecycle.
// It is generic over task kinds; a Definition supplies what varies.
type Runner struct {
	assembler   *Assembler
	prompts     *prompt.Manager
	client      ai.Client
	generations repository.GenerationRepository
	drafts      repository.DraftRepository
	cfg         RunnerConfig
	logger      *zap.Logger
}

func NewRunner(
	assembler *Assembler,
	prompts *prompt.Manager,
	client ai.Client,
	generations repository.GenerationRepository,
	drafts repository.DraftRepository,
	cfg RunnerConfig,
	logger *zap.Logger,
) *Runner {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = time.Second
	}
	return &Runner{
		assembler:   assembler,
		prompts:     prompts,
		client:      client,
		generations: generations,
		drafts:      drafts,
		cfg:         cfg,
		logger:      logger.Named("TaskRunner"),
	}
}

// resolveModel applies the selection priority: per-call override, then
// the definition's preference, then the configured default.
func (r *Runner) resolveModel(def *Definition, params models.TaskParameters) (provider, model string) {
	provider = params.ProviderOverride
	if provider == "" {
		provider = def.Provider
	}
	if provider == "" {
		provider = r.cfg.DefaultProvider
	}
	model = params.ModelOverride
	if model == "" {
		model = def.Model
	}
	if model == "" {
		model = r.cfg.DefaultModel
	}
	return provider, model
}

// Prepare creates the queued Generation record for a task so an id
// exists before execution starts.
func (r *Runner) Prepare(ctx context.Context, def *Definition, tc models.TaskContext, params models.TaskParameters) (*models.Generation, error) {
	provider, model := r.resolveModel(def, params)
	gen := &models.Generation{
		ProjectID:  tc.ProjectID,
		UserID:     tc.UserID,
		Kind:       def.Kind,
		EntityType: tc.TargetEntityType,
		EntityID:   tc.TargetEntityID,
		Provider:   provider,
		Model:      model,
		Parameters: params,
	}
	if err := r.generations.Create(ctx, gen); err != nil {
		return nil, err
	}
	return gen, nil
}

// Execute runs one generation attempt. Every failure path ends in a
// FAILED generation record and a failed TaskResult; nothing escapes as
// an error to the scheduler.
func (r *Runner) Execute(ctx context.Context, def *Definition, gen *models.Generation, tc models.TaskContext, params models.TaskParameters) models.TaskResult {
	started := time.Now()
	log := r.logger.With(
		zap.String("generation_id", gen.ID.String()),
		zap.String("kind", string(def.Kind)),
	)

	if err := r.generations.MarkProcessing(ctx, gen.ID); err != nil {
		return r.fail(ctx, gen.ID, started, fmt.Errorf("failed to start generation: %w", err), log)
	}

	data, err := r.fetchData(ctx, def, tc, params)
	if err != nil {
		return r.fail(ctx, gen.ID, started, err, log)
	}

	provider, model := gen.Provider, gen.Model
	temperature := models.DefaultTemperature
	if params.Temperature != nil {
		temperature = *params.Temperature
	}
	genParams := ai.GenerationParams{
		Temperature: temperature,
		MaxTokens:   params.MaxTokens,
		Provider:    provider,
		Model:       model,
	}

	numVariants := params.NumVariants
	if numVariants <= 0 {
		numVariants = 1
	}

	type variant struct {
		index   int
		content json.RawMessage
	}
	var variants []variant
	var firstPrompt string
	var lastErr error

	// Variants run sequentially so variant indices stay deterministic
	// and provider rate limits are respected.
	for i := 0; i < numVariants; i++ {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, gen.ID, started, fmt.Errorf("cancelled: %w", err), log)
		}

		promptText, err := r.buildPrompt(def, data, tc.Instructions, i)
		if err != nil {
			return r.fail(ctx, gen.ID, started, err, log)
		}
		if i == 0 {
			firstPrompt = promptText
			if err := r.generations.SetPrompt(ctx, gen.ID, firstPrompt, provider, model); err != nil {
				log.Warn("Failed to record prompt", zap.Error(err))
			}
		}

		raw, err := r.callWithRetry(ctx, def, promptText, params, genParams, log)
		if err != nil {
			// Provider errors are terminal for the whole task, not
			// just this variant: the next variant would hit the same
			// provider state.
			return r.fail(ctx, gen.ID, started, err, log)
		}

		content, err := parseOutput(def, raw, params.StrictSchema)
		if err != nil {
			if params.StrictSchema {
				return r.fail(ctx, gen.ID, started, err, log)
			}
			lastErr = err
			log.Warn("Variant output could not be parsed", zap.Int("variant", i), zap.Error(err))
			continue
		}

		if def.Validate != nil {
			if err := def.Validate(content); err != nil {
				lastErr = err
				log.Warn("Variant failed validation", zap.Int("variant", i), zap.Error(err))
				continue
			}
		}

		variants = append(variants, variant{index: i, content: content})
	}

	if len(variants) == 0 {
		err := fmt.Errorf("no valid outputs generated")
		if lastErr != nil {
			err = fmt.Errorf("no valid outputs generated: %w", lastErr)
		}
		return r.fail(ctx, gen.ID, started, err, log)
	}

	draftIDs := make([]uuid.UUID, 0, len(variants))
	resultIDs := make([]string, 0, len(variants))
	entityID := tc.ProjectID
	if tc.TargetEntityID != nil {
		entityID = *tc.TargetEntityID
	}
	entityType := tc.TargetEntityType
	if entityType == "" {
		entityType = "project"
	}

	for _, v := range variants {
		draft := &models.Draft{
			ProjectID:    &tc.ProjectID,
			EntityType:   entityType,
			EntityID:     entityID,
			Kind:         def.Kind,
			GenerationID: &gen.ID,
			Content:      v.content,
			Metadata: models.DraftMetadata{
				VariantIndex: v.index,
				Temperature:  temperature,
				Kind:         def.Kind,
				Provider:     provider,
				Model:        model,
			},
		}
		if err := r.drafts.Create(ctx, draft); err != nil {
			return r.fail(ctx, gen.ID, started, fmt.Errorf("failed to persist draft: %w", err), log)
		}
		draftIDs = append(draftIDs, draft.ID)
		resultIDs = append(resultIDs, draft.ID.String())
	}

	if err := r.generations.MarkCompleted(ctx, gen.ID, resultIDs); err != nil {
		return r.fail(ctx, gen.ID, started, fmt.Errorf("failed to complete generation: %w", err), log)
	}

	log.Info("Generation completed",
		zap.Int("drafts", len(draftIDs)),
		zap.Duration("execution_time", time.Since(started)))

	return models.TaskResult{
		Success:       true,
		GenerationID:  gen.ID,
		DraftIDs:      draftIDs,
		ExecutionTime: time.Since(started),
	}
}

func (r *Runner) fetchData(ctx context.Context, def *Definition, tc models.TaskContext, params models.TaskParameters) (map[string]any, error) {
	if !params.IncludeContext {
		data := map[string]any{}
		for key, value := range tc.AdditionalContext {
			data[key] = value
		}
		return data, nil
	}
	if def.FetchData != nil {
		return def.FetchData(ctx, r.assembler, tc)
	}
	return r.assembler.Assemble(ctx, tc)
}

// buildPrompt renders the kind's template against the fetched data and
// appends instructions and, for later variants, a diversify directive.
func (r *Runner) buildPrompt(def *Definition, data map[string]any, instructions []string, variantIndex int) (string, error) {
	rendered, err := r.prompts.Render(def.TemplateName, data)
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}

	var b strings.Builder
	b.WriteString(rendered)

	if len(instructions) > 0 {
		b.WriteString("\n\nAdditional instructions:\n")
		for _, instruction := range instructions {
			b.WriteString("- ")
			b.WriteString(instruction)
			b.WriteString("\n")
		}
	}

	if variantIndex > 0 {
		fmt.Fprintf(&b, "\nThis is variant %d. Produce a distinctly different take from earlier variants.\n", variantIndex+1)
	}

	return b.String(), nil
}

// callWithRetry invokes the provider with exponential backoff. Attempts
// are capped; non-retryable errors (authentication, token limit) fail
// immediately.
func (r *Runner) callWithRetry(ctx context.Context, def *Definition, promptText string, params models.TaskParameters, genParams ai.GenerationParams, log *zap.Logger) (string, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay(r.cfg.BaseRetryDelay, attempt)):
			}
		}

		raw, err := r.callOnce(ctx, def, promptText, params, genParams)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !ai.Retryable(err) {
			return "", err
		}
		log.Warn("Provider call failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", r.cfg.MaxAttempts),
			zap.Error(err))
	}
	return "", fmt.Errorf("all %d attempts failed: %w", r.cfg.MaxAttempts, lastErr)
}

// retryDelay doubles from the base: base before the second attempt,
// 2*base before the third, and so on.
func retryDelay(base time.Duration, attempt int) time.Duration {
	return base << uint(attempt-1)
}

func (r *Runner) callOnce(ctx context.Context, def *Definition, promptText string, params models.TaskParameters, genParams ai.GenerationParams) (string, error) {
	if params.OutputMode == models.OutputStructured && def.Schema != nil {
		payload, _, err := r.client.GenerateStructured(ctx, promptText, def.Schema, genParams)
		if err != nil {
			return "", err
		}
		return string(payload), nil
	}

	if params.OutputMode == models.OutputJSON && def.Schema != nil {
		promptText = promptText + "\n\nRespond with JSON matching this schema:\n" + string(def.Schema)
	}
	raw, _, err := r.client.Generate(ctx, promptText, genParams)
	return raw, err
}

// Retry resets a failed generation back to queued.
func (r *Runner) Retry(ctx context.Context, generationID uuid.UUID) error {
	return r.generations.ResetForRetry(ctx, generationID)
}

func (r *Runner) fail(ctx context.Context, generationID uuid.UUID, started time.Time, taskErr error, log *zap.Logger) models.TaskResult {
	log.Error("Generation failed", zap.Error(taskErr))
	// Record the failure even when the task context was cancelled.
	if markErr := r.generations.MarkFailed(context.WithoutCancel(ctx), generationID, taskErr.Error()); markErr != nil {
		log.Error("Failed to mark generation failed", zap.Error(markErr))
	}
	return models.TaskResult{
		Success:       false,
		GenerationID:  generationID,
		Error:         taskErr.Error(),
		ExecutionTime: time.Since(started),
	}
}
