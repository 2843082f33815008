package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"comic-server/internal/models"
	"comic-server/internal/repository"
)

// trimOrder lists context keys from least to most essential. Trimming
// walks this order: a key holding more than one list item is halved,
// anything else is dropped.
var trimOrder = []string{
	"reference_images",
	"images",
	"previous_scene",
	"scenes",
	"panels",
	"instructions",
}

// Assembler fetches hierarchical entity data and compacts it to a token
// budget. A nil redis client disables the bundle cache.
type Assembler struct {
	content     repository.ContentRepository
	cache       *redis.Client
	tokenBudget int
	cacheTTL    time.Duration
	logger      *zap.Logger
}

func NewAssembler(content repository.ContentRepository, cache *redis.Client, tokenBudget int, cacheTTL time.Duration, logger *zap.Logger) *Assembler {
	if tokenBudget <= 0 {
		tokenBudget = 2000
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Assembler{
		content:     content,
		cache:       cache,
		tokenBudget: tokenBudget,
		cacheTTL:    cacheTTL,
		logger:      logger.Named("ContextAssembler"),
	}
}

// Assemble builds the context bundle for a task's target scope, merges
// caller-side additions and instructions, and trims to budget.
func (a *Assembler) Assemble(ctx context.Context, tc models.TaskContext) (map[string]any, error) {
	bundle, err := a.fetchScope(ctx, tc)
	if err != nil {
		return nil, err
	}

	for key, value := range tc.AdditionalContext {
		bundle[key] = value
	}
	if len(tc.Instructions) > 0 {
		bundle["instructions"] = toAnySlice(tc.Instructions)
	}

	return a.TrimToBudget(bundle), nil
}

func (a *Assembler) fetchScope(ctx context.Context, tc models.TaskContext) (map[string]any, error) {
	switch tc.TargetEntityType {
	case "", "project":
		return a.ProjectContext(ctx, tc.ProjectID)
	case "chapter":
		if tc.TargetEntityID == nil {
			return nil, fmt.Errorf("%w: chapter scope requires a target entity id", models.ErrInvalidInput)
		}
		return a.ChapterContext(ctx, *tc.TargetEntityID)
	case "scene":
		if tc.TargetEntityID == nil {
			return nil, fmt.Errorf("%w: scene scope requires a target entity id", models.ErrInvalidInput)
		}
		return a.SceneContext(ctx, *tc.TargetEntityID, true)
	case "panel":
		if tc.TargetEntityID == nil {
			return nil, fmt.Errorf("%w: panel scope requires a target entity id", models.ErrInvalidInput)
		}
		return a.PanelContext(ctx, *tc.TargetEntityID)
	case "character":
		if tc.TargetEntityID == nil {
			return nil, fmt.Errorf("%w: character scope requires a target entity id", models.ErrInvalidInput)
		}
		return a.CharacterContext(ctx, *tc.TargetEntityID, true)
	default:
		return nil, fmt.Errorf("%w: unknown target entity type %q", models.ErrInvalidInput, tc.TargetEntityType)
	}
}

// ProjectContext returns the project record with its chapters and
// characters.
func (a *Assembler) ProjectContext(ctx context.Context, projectID uuid.UUID) (map[string]any, error) {
	if cached, ok := a.cacheGet(ctx, "project", projectID); ok {
		return cached, nil
	}

	project, err := a.content.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("context assembly: %w", err)
	}

	bundle := map[string]any{"project": project}
	if chapters, err := a.content.ListChaptersByProject(ctx, projectID); err == nil && len(chapters) > 0 {
		bundle["chapters"] = toAnySliceOf(chapters)
	}
	if characters, err := a.content.ListCharactersByProject(ctx, projectID); err == nil && len(characters) > 0 {
		bundle["characters"] = toAnySliceOf(characters)
	}

	a.cacheSet(ctx, "project", projectID, bundle)
	return bundle, nil
}

// ChapterContext returns the chapter plus its project and scene list.
func (a *Assembler) ChapterContext(ctx context.Context, chapterID uuid.UUID) (map[string]any, error) {
	if cached, ok := a.cacheGet(ctx, "chapter", chapterID); ok {
		return cached, nil
	}

	chapter, err := a.content.GetChapter(ctx, chapterID)
	if err != nil {
		return nil, fmt.Errorf("context assembly: %w", err)
	}

	bundle := map[string]any{"chapter": chapter}
	if project, err := a.content.GetProject(ctx, chapter.ProjectID); err == nil {
		bundle["project"] = project
	}
	if scenes, err := a.content.ListScenesByChapter(ctx, chapterID); err == nil && len(scenes) > 0 {
		bundle["scenes"] = toAnySliceOf(scenes)
	}

	a.cacheSet(ctx, "chapter", chapterID, bundle)
	return bundle, nil
}

// SceneContext returns the scene, its chapter, the previous sibling
// scene when one exists, and optionally its panels.
func (a *Assembler) SceneContext(ctx context.Context, sceneID uuid.UUID, includePanels bool) (map[string]any, error) {
	if cached, ok := a.cacheGet(ctx, "scene", sceneID); ok {
		return cached, nil
	}

	scene, err := a.content.GetScene(ctx, sceneID)
	if err != nil {
		return nil, fmt.Errorf("context assembly: %w", err)
	}

	bundle := map[string]any{"scene": scene}
	if chapter, err := a.content.GetChapter(ctx, scene.ChapterID); err == nil {
		bundle["chapter"] = chapter
	}
	if prev, err := a.content.GetPreviousScene(ctx, scene.ChapterID, scene.SceneNumber); err == nil {
		bundle["previous_scene"] = prev
	}
	if includePanels {
		if panels, err := a.content.ListPanelsByScene(ctx, sceneID); err == nil && len(panels) > 0 {
			bundle["panels"] = toAnySliceOf(panels)
		}
	}

	a.cacheSet(ctx, "scene", sceneID, bundle)
	return bundle, nil
}

// PanelContext returns the panel, its scene, adjacent panels and any
// attached images.
func (a *Assembler) PanelContext(ctx context.Context, panelID uuid.UUID) (map[string]any, error) {
	if cached, ok := a.cacheGet(ctx, "panel", panelID); ok {
		return cached, nil
	}

	panel, err := a.content.GetPanel(ctx, panelID)
	if err != nil {
		return nil, fmt.Errorf("context assembly: %w", err)
	}

	bundle := map[string]any{"panel": panel}
	if scene, err := a.content.GetScene(ctx, panel.SceneID); err == nil {
		bundle["scene"] = scene
	}
	if prev, err := a.content.GetAdjacentPanel(ctx, panel.SceneID, panel.PanelNumber-1); err == nil {
		bundle["previous_panel"] = prev
	}
	if next, err := a.content.GetAdjacentPanel(ctx, panel.SceneID, panel.PanelNumber+1); err == nil {
		bundle["next_panel"] = next
	}
	if images, err := a.content.ListImages(ctx, "panel", panelID); err == nil && len(images) > 0 {
		bundle["images"] = toAnySliceOf(images)
	}

	a.cacheSet(ctx, "panel", panelID, bundle)
	return bundle, nil
}

// CharacterContext returns the character with reference images and,
// when requested, an appearance count across panels.
func (a *Assembler) CharacterContext(ctx context.Context, characterID uuid.UUID, includeAppearances bool) (map[string]any, error) {
	if cached, ok := a.cacheGet(ctx, "character", characterID); ok {
		return cached, nil
	}

	character, err := a.content.GetCharacter(ctx, characterID)
	if err != nil {
		return nil, fmt.Errorf("context assembly: %w", err)
	}

	bundle := map[string]any{"character": character}
	if project, err := a.content.GetProject(ctx, character.ProjectID); err == nil {
		bundle["project"] = project
	}
	if images, err := a.content.ListImages(ctx, "character", characterID); err == nil && len(images) > 0 {
		bundle["reference_images"] = toAnySliceOf(images)
	}
	if includeAppearances {
		if count, err := a.content.CountCharacterAppearances(ctx, characterID); err == nil {
			bundle["appearance_count"] = count
		}
	}

	a.cacheSet(ctx, "character", characterID, bundle)
	return bundle, nil
}

// EstimateTokens approximates the token count of a serialized bundle.
func EstimateTokens(bundle map[string]any) int {
	serialized, err := json.Marshal(bundle)
	if err != nil {
		return 0
	}
	return len(serialized) / 4
}

// TrimToBudget compacts the bundle until its token estimate fits the
// budget. Keys are visited in trimOrder; a key holding a list of more
// than one item is halved, otherwise the key is dropped. After the
// ordered pass any surviving trim-order key that alone exceeds the
// budget is dropped outright. The root entity records are never
// trimmed, so the bound is best-effort when they alone exceed it.
func (a *Assembler) TrimToBudget(bundle map[string]any) map[string]any {
	estimate := EstimateTokens(bundle)
	if estimate <= a.tokenBudget {
		return bundle
	}

	for _, key := range trimOrder {
		for {
			value, ok := bundle[key]
			if !ok {
				break
			}
			if list, isList := value.([]any); isList && len(list) > 1 {
				bundle[key] = list[:len(list)/2]
			} else {
				delete(bundle, key)
			}
			estimate = EstimateTokens(bundle)
			if estimate <= a.tokenBudget {
				return bundle
			}
		}
	}

	// Hard per-key cap: a single oversized trim-order key is removed
	// rather than silently blowing the budget.
	for _, key := range trimOrder {
		if value, ok := bundle[key]; ok {
			if EstimateTokens(map[string]any{key: value}) > a.tokenBudget {
				delete(bundle, key)
			}
		}
	}

	if estimate = EstimateTokens(bundle); estimate > a.tokenBudget {
		a.logger.Warn("Context bundle exceeds token budget after trimming",
			zap.Int("estimate", estimate),
			zap.Int("budget", a.tokenBudget))
	}
	return bundle
}

func (a *Assembler) cacheKey(scope string, id uuid.UUID) string {
	return fmt.Sprintf("ctx:%s:%s", scope, id)
}

func (a *Assembler) cacheGet(ctx context.Context, scope string, id uuid.UUID) (map[string]any, bool) {
	if a.cache == nil {
		return nil, false
	}
	raw, err := a.cache.Get(ctx, a.cacheKey(scope, id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			a.logger.Debug("Context cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var bundle map[string]any
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, false
	}
	return bundle, true
}

func (a *Assembler) cacheSet(ctx context.Context, scope string, id uuid.UUID, bundle map[string]any) {
	if a.cache == nil {
		return
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, a.cacheKey(scope, id), raw, a.cacheTTL).Err(); err != nil {
		a.logger.Debug("Context cache write failed", zap.Error(err))
	}
}

func toAnySlice(items []string) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

func toAnySliceOf[T any](items []T) []any {
	out := make([]any, len(items))
	for i := range items {
		out[i] = items[i]
	}
	return out
}
