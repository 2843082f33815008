package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"comic-server/internal/models"
)

// Mock repository.GenerationRepository
type GenerationRepository struct {
	mock.Mock
}

func (m *GenerationRepository) Create(ctx context.Context, gen *models.Generation) error {
	args := m.Called(ctx, gen)
	return args.Error(0)
}
func (m *GenerationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	args := m.Called(ctx, id)
	gen, _ := args.Get(0).(*models.Generation)
	return gen, args.Error(1)
}
func (m *GenerationRepository) SetPrompt(ctx context.Context, id uuid.UUID, prompt, provider, model string) error {
	args := m.Called(ctx, id, prompt, provider, model)
	return args.Error(0)
}
func (m *GenerationRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *GenerationRepository) MarkCompleted(ctx context.Context, id uuid.UUID, resultIDs []string) error {
	args := m.Called(ctx, id, resultIDs)
	return args.Error(0)
}
func (m *GenerationRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	args := m.Called(ctx, id, errorMessage)
	return args.Error(0)
}
func (m *GenerationRepository) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *GenerationRepository) ListRecent(ctx context.Context, projectID uuid.UUID, kind models.TaskKind, limit int) ([]models.Generation, error) {
	args := m.Called(ctx, projectID, kind, limit)
	gens, _ := args.Get(0).([]models.Generation)
	return gens, args.Error(1)
}

// Mock repository.DraftRepository
type DraftRepository struct {
	mock.Mock
}

func (m *DraftRepository) Create(ctx context.Context, draft *models.Draft) error {
	args := m.Called(ctx, draft)
	return args.Error(0)
}
func (m *DraftRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	args := m.Called(ctx, id)
	draft, _ := args.Get(0).(*models.Draft)
	return draft, args.Error(1)
}
func (m *DraftRepository) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, kind models.TaskKind, status models.DraftStatus) ([]models.Draft, error) {
	args := m.Called(ctx, entityType, entityID, kind, status)
	drafts, _ := args.Get(0).([]models.Draft)
	return drafts, args.Error(1)
}
func (m *DraftRepository) ListByProject(ctx context.Context, projectID uuid.UUID, status models.DraftStatus) ([]models.Draft, error) {
	args := m.Called(ctx, projectID, status)
	drafts, _ := args.Get(0).([]models.Draft)
	return drafts, args.Error(1)
}
func (m *DraftRepository) Select(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *DraftRepository) Reject(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *DraftRepository) AppendFeedback(ctx context.Context, id uuid.UUID, feedback models.DraftFeedback) error {
	args := m.Called(ctx, id, feedback)
	return args.Error(0)
}
func (m *DraftRepository) CountByStatus(ctx context.Context, projectID uuid.UUID, status models.DraftStatus) (int, error) {
	args := m.Called(ctx, projectID, status)
	return args.Int(0), args.Error(1)
}
func (m *DraftRepository) DeleteOldRejected(ctx context.Context, projectID uuid.UUID, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, projectID, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

// Mock repository.ContentRepository
type ContentRepository struct {
	mock.Mock
}

func (m *ContentRepository) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Project)
	return p, args.Error(1)
}
func (m *ContentRepository) GetChapter(ctx context.Context, id uuid.UUID) (*models.Chapter, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*models.Chapter)
	return c, args.Error(1)
}
func (m *ContentRepository) GetScene(ctx context.Context, id uuid.UUID) (*models.Scene, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*models.Scene)
	return s, args.Error(1)
}
func (m *ContentRepository) GetPanel(ctx context.Context, id uuid.UUID) (*models.Panel, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Panel)
	return p, args.Error(1)
}
func (m *ContentRepository) GetCharacter(ctx context.Context, id uuid.UUID) (*models.Character, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*models.Character)
	return c, args.Error(1)
}
func (m *ContentRepository) GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	args := m.Called(ctx, id)
	l, _ := args.Get(0).(*models.Location)
	return l, args.Error(1)
}
func (m *ContentRepository) ListChaptersByProject(ctx context.Context, projectID uuid.UUID) ([]models.Chapter, error) {
	args := m.Called(ctx, projectID)
	chapters, _ := args.Get(0).([]models.Chapter)
	return chapters, args.Error(1)
}
func (m *ContentRepository) ListScenesByChapter(ctx context.Context, chapterID uuid.UUID) ([]models.Scene, error) {
	args := m.Called(ctx, chapterID)
	scenes, _ := args.Get(0).([]models.Scene)
	return scenes, args.Error(1)
}
func (m *ContentRepository) ListPanelsByScene(ctx context.Context, sceneID uuid.UUID) ([]models.Panel, error) {
	args := m.Called(ctx, sceneID)
	panels, _ := args.Get(0).([]models.Panel)
	return panels, args.Error(1)
}
func (m *ContentRepository) ListCharactersByProject(ctx context.Context, projectID uuid.UUID) ([]models.Character, error) {
	args := m.Called(ctx, projectID)
	characters, _ := args.Get(0).([]models.Character)
	return characters, args.Error(1)
}
func (m *ContentRepository) GetPreviousScene(ctx context.Context, chapterID uuid.UUID, beforeNumber int) (*models.Scene, error) {
	args := m.Called(ctx, chapterID, beforeNumber)
	s, _ := args.Get(0).(*models.Scene)
	return s, args.Error(1)
}
func (m *ContentRepository) GetAdjacentPanel(ctx context.Context, sceneID uuid.UUID, number int) (*models.Panel, error) {
	args := m.Called(ctx, sceneID, number)
	p, _ := args.Get(0).(*models.Panel)
	return p, args.Error(1)
}
func (m *ContentRepository) ListImages(ctx context.Context, owner string, ownerID uuid.UUID) ([]models.ImageRef, error) {
	args := m.Called(ctx, owner, ownerID)
	images, _ := args.Get(0).([]models.ImageRef)
	return images, args.Error(1)
}
func (m *ContentRepository) CountCharacterAppearances(ctx context.Context, characterID uuid.UUID) (int, error) {
	args := m.Called(ctx, characterID)
	return args.Int(0), args.Error(1)
}
func (m *ContentRepository) CreateProject(ctx context.Context, project *models.Project) error {
	args := m.Called(ctx, project)
	return args.Error(0)
}
func (m *ContentRepository) CreateChapter(ctx context.Context, chapter *models.Chapter) error {
	args := m.Called(ctx, chapter)
	return args.Error(0)
}
func (m *ContentRepository) CreateScene(ctx context.Context, scene *models.Scene) error {
	args := m.Called(ctx, scene)
	return args.Error(0)
}
func (m *ContentRepository) CreatePanel(ctx context.Context, panel *models.Panel) error {
	args := m.Called(ctx, panel)
	return args.Error(0)
}
func (m *ContentRepository) CreateCharacter(ctx context.Context, character *models.Character) error {
	args := m.Called(ctx, character)
	return args.Error(0)
}
func (m *ContentRepository) UpdateCharacterBiography(ctx context.Context, id uuid.UUID, biography string) error {
	args := m.Called(ctx, id, biography)
	return args.Error(0)
}
func (m *ContentRepository) UpdateSceneSummary(ctx context.Context, id uuid.UUID, summary string) error {
	args := m.Called(ctx, id, summary)
	return args.Error(0)
}
func (m *ContentRepository) UpdateProjectSummary(ctx context.Context, id uuid.UUID, title, genre, description string) error {
	args := m.Called(ctx, id, title, genre, description)
	return args.Error(0)
}
