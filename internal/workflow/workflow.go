package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comic-server/internal/models"
	"comic-server/internal/repository"
	"comic-server/internal/task"
)

// Workflow routes completed generations either directly into the
// canonical store or through the draft review queue, and implements
// the approve / feedback / regenerate transitions.
type Workflow struct {
	executor    *task.Executor
	drafts      repository.DraftRepository
	generations repository.GenerationRepository
	content     repository.ContentRepository
	logger      *zap.Logger
}

func New(
	executor *task.Executor,
	drafts repository.DraftRepository,
	generations repository.GenerationRepository,
	content repository.ContentRepository,
	logger *zap.Logger,
) *Workflow {
	return &Workflow{
		executor:    executor,
		drafts:      drafts,
		generations: generations,
		content:     content,
		logger:      logger.Named("Workflow"),
	}
}

// RunGeneration executes a task synchronously and applies the mode
// table parsed from the context's instructions. In direct mode the
// first variant is selected and committed to the canonical store,
// which rejects the remaining variants; in review mode all drafts
// stay pending.
func (w *Workflow) RunGeneration(ctx context.Context, kind models.TaskKind, tc models.TaskContext, params models.TaskParameters) (models.TaskResult, error) {
	generationID, err := w.executor.Submit(ctx, kind, tc, params, true)
	if err != nil {
		return models.TaskResult{}, err
	}

	status, err := w.executor.GetTaskStatus(ctx, generationID)
	if err != nil {
		return models.TaskResult{}, err
	}
	if status.Result == nil {
		return models.TaskResult{}, fmt.Errorf("no result for generation %s", generationID)
	}
	result := *status.Result
	if !result.Success {
		return result, nil
	}

	settings := ParseGenerationSettings(tc.Instructions)
	if settings.Mode(kind) == ModeDirect && len(result.DraftIDs) > 0 {
		// Selecting one draft rejects its pending siblings, so only the
		// first variant can be committed.
		draftID := result.DraftIDs[0]
		if err := w.Approve(ctx, draftID); err != nil {
			w.logger.Error("Direct-mode commit failed",
				zap.String("draft_id", draftID.String()),
				zap.Error(err))
			return result, err
		}
	}
	return result, nil
}

// Approve selects the draft (atomically rejecting pending siblings)
// and promotes its content into canonical entities.
func (w *Workflow) Approve(ctx context.Context, draftID uuid.UUID) error {
	draft, err := w.drafts.GetByID(ctx, draftID)
	if err != nil {
		return err
	}

	if err := w.drafts.Select(ctx, draftID); err != nil {
		return err
	}

	if err := w.commit(ctx, draft); err != nil {
		return fmt.Errorf("draft %s selected but commit failed: %w", draftID, err)
	}

	w.logger.Info("Draft approved",
		zap.String("draft_id", draftID.String()),
		zap.String("kind", string(draft.Kind)))
	return nil
}

// UpdateDraft appends feedback to the draft's trail. With regenerate
// set it resubmits the draft's kind with the accumulated feedback
// folded into the instructions, producing a new draft and leaving this
// one untouched.
func (w *Workflow) UpdateDraft(ctx context.Context, draftID uuid.UUID, feedback string, regenerate bool) (uuid.UUID, error) {
	draft, err := w.drafts.GetByID(ctx, draftID)
	if err != nil {
		return uuid.Nil, err
	}

	if feedback != "" {
		entry := models.DraftFeedback{Text: feedback, CreatedAt: time.Now().UTC()}
		if err := w.drafts.AppendFeedback(ctx, draftID, entry); err != nil {
			return uuid.Nil, err
		}
		draft.Metadata.Feedback = append(draft.Metadata.Feedback, entry)
	}

	if !regenerate {
		return uuid.Nil, nil
	}

	instructions := make([]string, 0, len(draft.Metadata.Feedback))
	for _, fb := range draft.Metadata.Feedback {
		instructions = append(instructions, fb.Text)
	}

	tc := models.TaskContext{
		TargetEntityType: draft.EntityType,
		Instructions:     instructions,
	}
	if draft.ProjectID != nil {
		tc.ProjectID = *draft.ProjectID
	}
	if draft.EntityType != "project" {
		entityID := draft.EntityID
		tc.TargetEntityID = &entityID
	}
	if draft.GenerationID != nil {
		if gen, err := w.generations.GetByID(ctx, *draft.GenerationID); err == nil {
			tc.UserID = gen.UserID
		}
	}

	params := models.DefaultTaskParameters()
	temperature := draft.Metadata.Temperature
	params.Temperature = &temperature
	return w.executor.Submit(ctx, draft.Kind, tc, params, false)
}

// ProjectStatus is the project-level generation overview.
type ProjectStatus struct {
	RecentGenerations []models.Generation `json:"recent_generations"`
	PendingDrafts     int                 `json:"pending_drafts"`
	Queue             task.QueueInfo      `json:"queue"`
}

// GetProjectStatus returns recent generations, the pending draft count
// and the executor queue snapshot for a project.
func (w *Workflow) GetProjectStatus(ctx context.Context, projectID uuid.UUID) (*ProjectStatus, error) {
	generations, err := w.generations.ListRecent(ctx, projectID, "", 20)
	if err != nil {
		return nil, err
	}
	pending, err := w.drafts.CountByStatus(ctx, projectID, models.DraftPending)
	if err != nil {
		return nil, err
	}
	return &ProjectStatus{
		RecentGenerations: generations,
		PendingDrafts:     pending,
		Queue:             w.executor.QueueInfo(),
	}, nil
}

// commit writes a selected draft's content into the canonical tables.
// Kinds without a canonical mapping (visual_prompt) stay as selected
// drafts only.
func (w *Workflow) commit(ctx context.Context, draft *models.Draft) error {
	switch draft.Kind {
	case models.KindProjectSummary:
		var out task.ProjectSummaryOutput
		if err := json.Unmarshal(draft.Content, &out); err != nil {
			return fmt.Errorf("failed to decode project summary: %w", err)
		}
		if draft.ProjectID != nil {
			return w.content.UpdateProjectSummary(ctx, *draft.ProjectID, out.Title, out.Genre, out.Summary)
		}
		// Pre-project draft: the summary becomes the project record. The
		// owner is recovered from the generation that produced the draft.
		if draft.GenerationID == nil {
			return fmt.Errorf("%w: project summary draft has no project or generation", models.ErrInvalidInput)
		}
		gen, err := w.generations.GetByID(ctx, *draft.GenerationID)
		if err != nil {
			return err
		}
		project := &models.Project{
			UserID:      gen.UserID,
			Title:       out.Title,
			Genre:       out.Genre,
			Description: out.Summary,
			Status:      "draft",
		}
		return w.content.CreateProject(ctx, project)

	case models.KindCharacterList:
		var out task.CharacterListOutput
		if err := json.Unmarshal(draft.Content, &out); err != nil {
			return fmt.Errorf("failed to decode character list: %w", err)
		}
		if draft.ProjectID == nil {
			return fmt.Errorf("%w: character list draft has no project", models.ErrInvalidInput)
		}
		for _, item := range out.Characters {
			character := &models.Character{
				ProjectID:   *draft.ProjectID,
				Name:        item.Name,
				Role:        item.Role,
				Description: item.Description,
			}
			if err := w.content.CreateCharacter(ctx, character); err != nil {
				return err
			}
		}
		return nil

	case models.KindChapterList:
		var out task.ChapterListOutput
		if err := json.Unmarshal(draft.Content, &out); err != nil {
			return fmt.Errorf("failed to decode chapter list: %w", err)
		}
		if draft.ProjectID == nil {
			return fmt.Errorf("%w: chapter list draft has no project", models.ErrInvalidInput)
		}
		for _, item := range out.Chapters {
			chapter := &models.Chapter{
				ProjectID:     *draft.ProjectID,
				ChapterNumber: item.ChapterNumber,
				Title:         item.Title,
				Summary:       item.Summary,
			}
			if err := w.content.CreateChapter(ctx, chapter); err != nil {
				return err
			}
		}
		return nil

	case models.KindSceneList:
		var out task.SceneListOutput
		if err := json.Unmarshal(draft.Content, &out); err != nil {
			return fmt.Errorf("failed to decode scene list: %w", err)
		}
		// Scene list drafts target the chapter the scenes belong to.
		if draft.EntityType != "chapter" {
			return fmt.Errorf("%w: scene list draft targets %q, expected chapter", models.ErrInvalidInput, draft.EntityType)
		}
		for _, item := range out.Scenes {
			scene := &models.Scene{
				ChapterID:   draft.EntityID,
				SceneNumber: item.SceneNumber,
				Title:       item.Title,
				Description: item.Description,
			}
			if err := w.content.CreateScene(ctx, scene); err != nil {
				return err
			}
		}
		return nil

	case models.KindPanelList:
		var out task.PanelListOutput
		if err := json.Unmarshal(draft.Content, &out); err != nil {
			return fmt.Errorf("failed to decode panel list: %w", err)
		}
		if draft.EntityType != "scene" {
			return fmt.Errorf("%w: panel list draft targets %q, expected scene", models.ErrInvalidInput, draft.EntityType)
		}
		for _, item := range out.Panels {
			panel := &models.Panel{
				SceneID:     draft.EntityID,
				PanelNumber: item.PanelNumber,
				ShotType:    item.ShotType,
				Description: item.Description,
				Dialogue:    item.Dialogue,
				Narration:   item.Narration,
			}
			if err := w.content.CreatePanel(ctx, panel); err != nil {
				return err
			}
		}
		return nil

	case models.KindCharacterProfile:
		var out task.CharacterProfileOutput
		if err := json.Unmarshal(draft.Content, &out); err != nil {
			return fmt.Errorf("failed to decode character profile: %w", err)
		}
		if draft.EntityType != "character" {
			return fmt.Errorf("%w: character profile draft targets %q, expected character", models.ErrInvalidInput, draft.EntityType)
		}
		return w.content.UpdateCharacterBiography(ctx, draft.EntityID, out.Biography)

	case models.KindSceneSummary:
		var out task.SceneSummaryOutput
		if err := json.Unmarshal(draft.Content, &out); err != nil {
			return fmt.Errorf("failed to decode scene summary: %w", err)
		}
		if draft.EntityType != "scene" {
			return fmt.Errorf("%w: scene summary draft targets %q, expected scene", models.ErrInvalidInput, draft.EntityType)
		}
		return w.content.UpdateSceneSummary(ctx, draft.EntityID, out.Summary)

	default:
		return nil
	}
}
