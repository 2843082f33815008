package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"comic-server/internal/models"
)

func setupTestDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("comic_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, RunMigrations(dsn, zap.NewNop()))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func newPendingDraft(projectID, entityID uuid.UUID, kind models.TaskKind, variant int) *models.Draft {
	return &models.Draft{
		ProjectID:  &projectID,
		EntityType: "project",
		EntityID:   entityID,
		Kind:       kind,
		Content:    json.RawMessage(`{"summary": "candidate"}`),
		Metadata:   models.DraftMetadata{VariantIndex: variant, Kind: kind},
	}
}

func TestPgDraftRepository_SelectRejectsPendingSiblings(t *testing.T) {
	pool := setupTestDatabase(t)
	repo := NewPgDraftRepository(pool, zap.NewNop())
	ctx := context.Background()

	projectID := uuid.New()
	entityID := uuid.New()
	otherEntityID := uuid.New()

	// Three competing variants for the same entity and kind.
	var siblings []*models.Draft
	for i := 0; i < 3; i++ {
		draft := newPendingDraft(projectID, entityID, models.KindSceneSummary, i)
		require.NoError(t, repo.Create(ctx, draft))
		siblings = append(siblings, draft)
	}
	// Same entity, different kind: must stay untouched.
	otherKind := newPendingDraft(projectID, entityID, models.KindVisualPrompt, 0)
	require.NoError(t, repo.Create(ctx, otherKind))
	// Same kind, different entity: must stay untouched.
	otherEntity := newPendingDraft(projectID, otherEntityID, models.KindSceneSummary, 0)
	require.NoError(t, repo.Create(ctx, otherEntity))

	require.NoError(t, repo.Select(ctx, siblings[1].ID))

	selected, err := repo.GetByID(ctx, siblings[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftSelected, selected.Status)
	assert.NotNil(t, selected.SelectedAt)

	for _, i := range []int{0, 2} {
		rejected, err := repo.GetByID(ctx, siblings[i].ID)
		require.NoError(t, err)
		assert.Equal(t, models.DraftRejected, rejected.Status, "sibling %d", i)
	}

	untouched, err := repo.GetByID(ctx, otherKind.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftPending, untouched.Status)

	untouched, err = repo.GetByID(ctx, otherEntity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftPending, untouched.Status)
}

func TestPgDraftRepository_SelectNonPendingFails(t *testing.T) {
	pool := setupTestDatabase(t)
	repo := NewPgDraftRepository(pool, zap.NewNop())
	ctx := context.Background()

	projectID := uuid.New()
	entityID := uuid.New()

	a := newPendingDraft(projectID, entityID, models.KindSceneSummary, 0)
	b := newPendingDraft(projectID, entityID, models.KindSceneSummary, 1)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	require.NoError(t, repo.Select(ctx, a.ID))

	// b was rejected by a's selection and can no longer be selected.
	err := repo.Select(ctx, b.ID)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	// a stays selected.
	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftSelected, got.Status)
}

func TestPgDraftRepository_FeedbackTrail(t *testing.T) {
	pool := setupTestDatabase(t)
	repo := NewPgDraftRepository(pool, zap.NewNop())
	ctx := context.Background()

	projectID := uuid.New()
	draft := newPendingDraft(projectID, uuid.New(), models.KindSceneSummary, 0)
	require.NoError(t, repo.Create(ctx, draft))

	first := models.DraftFeedback{Text: "too slow", CreatedAt: time.Now().UTC().Truncate(time.Second)}
	second := models.DraftFeedback{Text: "better pacing", CreatedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, repo.AppendFeedback(ctx, draft.ID, first))
	require.NoError(t, repo.AppendFeedback(ctx, draft.ID, second))

	got, err := repo.GetByID(ctx, draft.ID)
	require.NoError(t, err)
	require.Len(t, got.Metadata.Feedback, 2)
	assert.Equal(t, "too slow", got.Metadata.Feedback[0].Text)
	assert.Equal(t, "better pacing", got.Metadata.Feedback[1].Text)
}

func TestPgDraftRepository_ListAndCount(t *testing.T) {
	pool := setupTestDatabase(t)
	repo := NewPgDraftRepository(pool, zap.NewNop())
	ctx := context.Background()

	projectID := uuid.New()
	entityID := uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, newPendingDraft(projectID, entityID, models.KindSceneSummary, i)))
	}

	drafts, err := repo.ListByEntity(ctx, "project", entityID, models.KindSceneSummary, models.DraftPending)
	require.NoError(t, err)
	assert.Len(t, drafts, 3)

	count, err := repo.CountByStatus(ctx, projectID, models.DraftPending)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = repo.CountByStatus(ctx, projectID, models.DraftSelected)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPgGenerationRepository_Lifecycle(t *testing.T) {
	pool := setupTestDatabase(t)
	repo := NewPgGenerationRepository(pool, zap.NewNop())
	ctx := context.Background()

	gen := &models.Generation{
		ProjectID:  uuid.New(),
		UserID:     uuid.New(),
		Kind:       models.KindCharacterList,
		Parameters: models.DefaultTaskParameters(),
	}
	require.NoError(t, repo.Create(ctx, gen))
	require.NotEqual(t, uuid.Nil, gen.ID)
	assert.Equal(t, models.GenerationQueued, gen.Status)

	require.NoError(t, repo.MarkProcessing(ctx, gen.ID))
	// queued -> processing is one-way; a second transition attempt fails.
	assert.ErrorIs(t, repo.MarkProcessing(ctx, gen.ID), models.ErrNotFound)

	require.NoError(t, repo.MarkCompleted(ctx, gen.ID, []string{"draft-1"}))

	got, err := repo.GetByID(ctx, gen.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationCompleted, got.Status)
	assert.Equal(t, []string{"draft-1"}, got.ResultIDs)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)

	// Only failed generations can be reset.
	assert.ErrorIs(t, repo.ResetForRetry(ctx, gen.ID), models.ErrNotFound)
}
