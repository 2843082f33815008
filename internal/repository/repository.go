package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"comic-server/internal/models"
)

// GenerationRepository persists generation audit records. Status moves
// queued -> processing -> completed|failed; ResetForRetry is the only
// backwards transition and increments retry_count.
type GenerationRepository interface {
	Create(ctx context.Context, gen *models.Generation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Generation, error)
	SetPrompt(ctx context.Context, id uuid.UUID, prompt, provider, model string) error
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, resultIDs []string) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	ResetForRetry(ctx context.Context, id uuid.UUID) error
	ListRecent(ctx context.Context, projectID uuid.UUID, kind models.TaskKind, limit int) ([]models.Generation, error)
}

// DraftRepository persists candidate outputs. Select enforces the
// one-selected-per-(entity, kind) invariant in a single transaction.
type DraftRepository interface {
	Create(ctx context.Context, draft *models.Draft) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Draft, error)
	ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, kind models.TaskKind, status models.DraftStatus) ([]models.Draft, error)
	ListByProject(ctx context.Context, projectID uuid.UUID, status models.DraftStatus) ([]models.Draft, error)
	Select(ctx context.Context, id uuid.UUID) error
	Reject(ctx context.Context, id uuid.UUID) error
	AppendFeedback(ctx context.Context, id uuid.UUID, feedback models.DraftFeedback) error
	CountByStatus(ctx context.Context, projectID uuid.UUID, status models.DraftStatus) (int, error)
	DeleteOldRejected(ctx context.Context, projectID uuid.UUID, olderThan time.Time) (int64, error)
}

// ContentRepository is the canonical story store the core reads for
// context assembly and writes on direct commits and draft approvals.
type ContentRepository interface {
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetChapter(ctx context.Context, id uuid.UUID) (*models.Chapter, error)
	GetScene(ctx context.Context, id uuid.UUID) (*models.Scene, error)
	GetPanel(ctx context.Context, id uuid.UUID) (*models.Panel, error)
	GetCharacter(ctx context.Context, id uuid.UUID) (*models.Character, error)
	GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error)

	ListChaptersByProject(ctx context.Context, projectID uuid.UUID) ([]models.Chapter, error)
	ListScenesByChapter(ctx context.Context, chapterID uuid.UUID) ([]models.Scene, error)
	ListPanelsByScene(ctx context.Context, sceneID uuid.UUID) ([]models.Panel, error)
	ListCharactersByProject(ctx context.Context, projectID uuid.UUID) ([]models.Character, error)

	GetPreviousScene(ctx context.Context, chapterID uuid.UUID, beforeNumber int) (*models.Scene, error)
	GetAdjacentPanel(ctx context.Context, sceneID uuid.UUID, number int) (*models.Panel, error)
	ListImages(ctx context.Context, owner string, ownerID uuid.UUID) ([]models.ImageRef, error)
	CountCharacterAppearances(ctx context.Context, characterID uuid.UUID) (int, error)

	CreateProject(ctx context.Context, project *models.Project) error
	CreateChapter(ctx context.Context, chapter *models.Chapter) error
	CreateScene(ctx context.Context, scene *models.Scene) error
	CreatePanel(ctx context.Context, panel *models.Panel) error
	CreateCharacter(ctx context.Context, character *models.Character) error
	UpdateCharacterBiography(ctx context.Context, id uuid.UUID, biography string) error
	UpdateSceneSummary(ctx context.Context, id uuid.UUID, summary string) error
	UpdateProjectSummary(ctx context.Context, id uuid.UUID, title, genre, description string) error
}
