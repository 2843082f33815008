package workflow

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"comic-server/internal/ai"
	"comic-server/internal/mocks"
	"comic-server/internal/models"
	"comic-server/internal/prompt"
	"comic-server/internal/task"
)

// scriptedClient returns a fixed payload for every call.
type scriptedClient struct {
	response string
}

func (s *scriptedClient) Generate(ctx context.Context, promptText string, params ai.GenerationParams) (string, ai.UsageInfo, error) {
	return s.response, ai.UsageInfo{}, nil
}

func (s *scriptedClient) GenerateStructured(ctx context.Context, promptText string, schema json.RawMessage, params ai.GenerationParams) (json.RawMessage, ai.UsageInfo, error) {
	return json.RawMessage(s.response), ai.UsageInfo{}, nil
}

func newTestWorkflow(drafts *mocks.DraftRepository, generations *mocks.GenerationRepository, content *mocks.ContentRepository) *Workflow {
	return New(nil, drafts, generations, content, zap.NewNop())
}

func characterListDraft(t *testing.T, projectID uuid.UUID) *models.Draft {
	t.Helper()
	content, err := json.Marshal(task.CharacterListOutput{Characters: []task.CharacterItem{
		{Name: "Mira", Role: "protagonist", Description: "a tired pilot"},
		{Name: "Joron", Role: "rival"},
	}})
	require.NoError(t, err)

	return &models.Draft{
		ID:         uuid.New(),
		ProjectID:  &projectID,
		EntityType: "project",
		EntityID:   projectID,
		Kind:       models.KindCharacterList,
		Content:    content,
		Status:     models.DraftPending,
	}
}

func TestApprove_SelectsAndCommitsCharacters(t *testing.T) {
	drafts := new(mocks.DraftRepository)
	generations := new(mocks.GenerationRepository)
	content := new(mocks.ContentRepository)
	projectID := uuid.New()
	draft := characterListDraft(t, projectID)

	drafts.On("GetByID", mock.Anything, draft.ID).Return(draft, nil)
	drafts.On("Select", mock.Anything, draft.ID).Return(nil)

	var created []*models.Character
	content.On("CreateCharacter", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = append(created, args.Get(1).(*models.Character))
	}).Return(nil)

	wf := newTestWorkflow(drafts, generations, content)
	require.NoError(t, wf.Approve(context.Background(), draft.ID))

	drafts.AssertCalled(t, "Select", mock.Anything, draft.ID)
	require.Len(t, created, 2)
	assert.Equal(t, "Mira", created[0].Name)
	assert.Equal(t, projectID, created[0].ProjectID)
}

func TestApprove_UnknownDraft(t *testing.T) {
	drafts := new(mocks.DraftRepository)
	drafts.On("GetByID", mock.Anything, mock.Anything).Return(nil, models.ErrNotFound)

	wf := newTestWorkflow(drafts, new(mocks.GenerationRepository), new(mocks.ContentRepository))
	err := wf.Approve(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
	drafts.AssertNotCalled(t, "Select", mock.Anything, mock.Anything)
}

func TestApprove_SceneSummaryUpdatesScene(t *testing.T) {
	drafts := new(mocks.DraftRepository)
	content := new(mocks.ContentRepository)
	sceneID := uuid.New()
	projectID := uuid.New()

	payload, err := json.Marshal(task.SceneSummaryOutput{Summary: "the crew escapes"})
	require.NoError(t, err)
	draft := &models.Draft{
		ID:         uuid.New(),
		ProjectID:  &projectID,
		EntityType: "scene",
		EntityID:   sceneID,
		Kind:       models.KindSceneSummary,
		Content:    payload,
		Status:     models.DraftPending,
	}

	drafts.On("GetByID", mock.Anything, draft.ID).Return(draft, nil)
	drafts.On("Select", mock.Anything, draft.ID).Return(nil)
	content.On("UpdateSceneSummary", mock.Anything, sceneID, "the crew escapes").Return(nil)

	wf := newTestWorkflow(drafts, new(mocks.GenerationRepository), content)
	require.NoError(t, wf.Approve(context.Background(), draft.ID))
	content.AssertCalled(t, "UpdateSceneSummary", mock.Anything, sceneID, "the crew escapes")
}

func TestApprove_VisualPromptHasNoCanonicalCommit(t *testing.T) {
	drafts := new(mocks.DraftRepository)
	content := new(mocks.ContentRepository)
	projectID := uuid.New()
	panelID := uuid.New()

	payload, err := json.Marshal(task.VisualPromptOutput{Prompt: "wide shot, rain"})
	require.NoError(t, err)
	draft := &models.Draft{
		ID:         uuid.New(),
		ProjectID:  &projectID,
		EntityType: "panel",
		EntityID:   panelID,
		Kind:       models.KindVisualPrompt,
		Content:    payload,
		Status:     models.DraftPending,
	}

	drafts.On("GetByID", mock.Anything, draft.ID).Return(draft, nil)
	drafts.On("Select", mock.Anything, draft.ID).Return(nil)

	wf := newTestWorkflow(drafts, new(mocks.GenerationRepository), content)
	require.NoError(t, wf.Approve(context.Background(), draft.ID))
	content.AssertExpectations(t)
}

func TestRunGeneration_DirectModeCommitsOneVariant(t *testing.T) {
	drafts := new(mocks.DraftRepository)
	generations := new(mocks.GenerationRepository)
	content := new(mocks.ContentRepository)

	generations.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		gen := args.Get(1).(*models.Generation)
		gen.ID = uuid.New()
	}).Return(nil)
	generations.On("SetPrompt", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	generations.On("MarkProcessing", mock.Anything, mock.Anything).Return(nil)
	generations.On("MarkCompleted", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	generations.On("MarkFailed", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	first := &models.Draft{}
	var created []*models.Draft
	drafts.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		draft := args.Get(1).(*models.Draft)
		draft.ID = uuid.New()
		draft.Status = models.DraftPending
		if len(created) == 0 {
			*first = *draft
		}
		created = append(created, draft)
	}).Return(nil)
	drafts.On("GetByID", mock.Anything, mock.Anything).Return(first, nil)

	var selected []uuid.UUID
	drafts.On("Select", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		selected = append(selected, args.Get(1).(uuid.UUID))
	}).Return(nil)
	content.On("CreateCharacter", mock.Anything, mock.Anything).Return(nil)

	prompts := prompt.NewManager(zap.NewNop())
	require.NoError(t, prompts.Register("charlist", "invent characters"))

	registry := task.NewRegistry(zap.NewNop())
	require.NoError(t, registry.Register(&task.Definition{
		Kind:         models.KindCharacterList,
		TemplateName: "charlist",
		NewOutput:    func() any { return &task.CharacterListOutput{} },
	}))

	client := &scriptedClient{response: `{"characters": [{"name": "Mira"}, {"name": "Joron"}]}`}
	runner := task.NewRunner(nil, prompts, client, generations, drafts, task.RunnerConfig{
		DefaultProvider: "openai",
		DefaultModel:    "test-model",
	}, zap.NewNop())
	executor := task.NewExecutor(registry, runner, generations, 1, 16, zap.NewNop())
	t.Cleanup(executor.Cleanup)

	wf := New(executor, drafts, generations, content, zap.NewNop())

	tc := models.TaskContext{
		ProjectID:    uuid.New(),
		UserID:       uuid.New(),
		Instructions: []string{"auto generate everything"},
	}
	params := models.DefaultTaskParameters()
	params.NumVariants = 2
	params.OutputMode = models.OutputText
	params.IncludeContext = false

	result, err := wf.RunGeneration(context.Background(), models.KindCharacterList, tc, params)
	require.NoError(t, err)
	require.True(t, result.Success, "result error: %s", result.Error)
	require.Len(t, result.DraftIDs, 2)
	require.Len(t, created, 2)

	// Selecting a draft rejects its pending siblings in the store, so
	// only the first variant may be selected and committed.
	require.Len(t, selected, 1)
	assert.Equal(t, result.DraftIDs[0], selected[0])
	content.AssertNumberOfCalls(t, "CreateCharacter", 2)
}

func TestApprove_ProjectSummaryUpdatesProject(t *testing.T) {
	drafts := new(mocks.DraftRepository)
	content := new(mocks.ContentRepository)
	projectID := uuid.New()

	payload, err := json.Marshal(task.ProjectSummaryOutput{
		Title:   "Ashfall",
		Genre:   "post-apocalyptic",
		Summary: "a city rebuilding after the burn",
	})
	require.NoError(t, err)
	draft := &models.Draft{
		ID:         uuid.New(),
		ProjectID:  &projectID,
		EntityType: "project",
		EntityID:   projectID,
		Kind:       models.KindProjectSummary,
		Content:    payload,
		Status:     models.DraftPending,
	}

	drafts.On("GetByID", mock.Anything, draft.ID).Return(draft, nil)
	drafts.On("Select", mock.Anything, draft.ID).Return(nil)
	content.On("UpdateProjectSummary", mock.Anything, projectID,
		"Ashfall", "post-apocalyptic", "a city rebuilding after the burn").Return(nil)

	wf := newTestWorkflow(drafts, new(mocks.GenerationRepository), content)
	require.NoError(t, wf.Approve(context.Background(), draft.ID))
	content.AssertExpectations(t)
}

func TestApprove_PreProjectSummaryCreatesProject(t *testing.T) {
	drafts := new(mocks.DraftRepository)
	generations := new(mocks.GenerationRepository)
	content := new(mocks.ContentRepository)
	generationID := uuid.New()
	userID := uuid.New()

	payload, err := json.Marshal(task.ProjectSummaryOutput{Title: "Ashfall", Summary: "a city after the burn"})
	require.NoError(t, err)
	draft := &models.Draft{
		ID:           uuid.New(),
		EntityType:   "project",
		EntityID:     uuid.New(),
		Kind:         models.KindProjectSummary,
		GenerationID: &generationID,
		Content:      payload,
		Status:       models.DraftPending,
	}

	drafts.On("GetByID", mock.Anything, draft.ID).Return(draft, nil)
	drafts.On("Select", mock.Anything, draft.ID).Return(nil)
	generations.On("GetByID", mock.Anything, generationID).Return(&models.Generation{
		ID:     generationID,
		UserID: userID,
	}, nil)
	content.On("CreateProject", mock.Anything, mock.MatchedBy(func(p *models.Project) bool {
		return p.UserID == userID && p.Title == "Ashfall" && p.Description == "a city after the burn"
	})).Return(nil)

	wf := newTestWorkflow(drafts, generations, content)
	require.NoError(t, wf.Approve(context.Background(), draft.ID))
	content.AssertExpectations(t)
}

func TestUpdateDraft_AppendsFeedback(t *testing.T) {
	drafts := new(mocks.DraftRepository)
	projectID := uuid.New()
	draft := characterListDraft(t, projectID)

	drafts.On("GetByID", mock.Anything, draft.ID).Return(draft, nil)
	drafts.On("AppendFeedback", mock.Anything, draft.ID, mock.MatchedBy(func(fb models.DraftFeedback) bool {
		return fb.Text == "less grim, more hope"
	})).Return(nil)

	wf := newTestWorkflow(drafts, new(mocks.GenerationRepository), new(mocks.ContentRepository))
	newID, err := wf.UpdateDraft(context.Background(), draft.ID, "less grim, more hope", false)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, newID)
	drafts.AssertExpectations(t)
}

func TestGetProjectStatus(t *testing.T) {
	drafts := new(mocks.DraftRepository)
	generations := new(mocks.GenerationRepository)
	projectID := uuid.New()

	generations.On("ListRecent", mock.Anything, projectID, models.TaskKind(""), 20).Return([]models.Generation{
		{ID: uuid.New(), Kind: models.KindCharacterList, Status: models.GenerationCompleted},
	}, nil)
	drafts.On("CountByStatus", mock.Anything, projectID, models.DraftPending).Return(4, nil)

	registry := task.NewRegistry(zap.NewNop())
	executor := task.NewExecutor(registry, nil, generations, 3, 16, zap.NewNop())
	t.Cleanup(executor.Cleanup)

	wf := New(executor, drafts, generations, new(mocks.ContentRepository), zap.NewNop())
	status, err := wf.GetProjectStatus(context.Background(), projectID)
	require.NoError(t, err)

	assert.Len(t, status.RecentGenerations, 1)
	assert.Equal(t, 4, status.PendingDrafts)
	assert.Equal(t, 3, status.Queue.MaxConcurrent)
}
