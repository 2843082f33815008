package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"comic-server/internal/models"
)

// PgDraftRepository is the PostgreSQL DraftRepository.
type PgDraftRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPgDraftRepository(pool *pgxpool.Pool, logger *zap.Logger) *PgDraftRepository {
	return &PgDraftRepository{pool: pool, logger: logger.Named("PgDraftRepository")}
}

const draftColumns = `id, project_id, entity_type, entity_id, kind, generation_id, content,
	metadata, status, created_at, updated_at, selected_at`

func (r *PgDraftRepository) Create(ctx context.Context, draft *models.Draft) error {
	metadataJSON, err := json.Marshal(draft.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal draft metadata: %w", err)
	}

	query := `
		INSERT INTO drafts (project_id, entity_type, entity_id, kind, generation_id, content, metadata, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err = r.pool.QueryRow(ctx, query,
		draft.ProjectID, draft.EntityType, draft.EntityID, draft.Kind,
		draft.GenerationID, draft.Content, metadataJSON, models.DraftPending,
	).Scan(&draft.ID, &draft.CreatedAt, &draft.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert draft", zap.Error(err))
		return fmt.Errorf("failed to insert draft: %w", err)
	}
	draft.Status = models.DraftPending
	return nil
}

func (r *PgDraftRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE id = $1`
	return scanDraft(r.pool.QueryRow(ctx, query, id))
}

func (r *PgDraftRepository) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, kind models.TaskKind, status models.DraftStatus) ([]models.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE entity_type = $1 AND entity_id = $2`
	args := []any{entityType, entityID}
	if kind != "" {
		args = append(args, kind)
		query += fmt.Sprintf(` AND kind = $%d`, len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	return r.queryDrafts(ctx, query, args...)
}

func (r *PgDraftRepository) ListByProject(ctx context.Context, projectID uuid.UUID, status models.DraftStatus) ([]models.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE project_id = $1`
	args := []any{projectID}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	return r.queryDrafts(ctx, query, args...)
}

// Select marks the draft selected and rejects its still-pending siblings
// for the same (entity, kind) in one transaction. The sibling update is
// conditional on status = 'pending' so a concurrently selected sibling
// is never demoted.
func (r *PgDraftRepository) Select(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var entityType string
	var entityID uuid.UUID
	var kind models.TaskKind
	var status models.DraftStatus
	err = tx.QueryRow(ctx,
		`SELECT entity_type, entity_id, kind, status FROM drafts WHERE id = $1 FOR UPDATE`, id,
	).Scan(&entityType, &entityID, &kind, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to load draft for selection: %w", err)
	}
	if status != models.DraftPending {
		return fmt.Errorf("%w: draft %s is %s, only pending drafts can be selected", models.ErrInvalidInput, id, status)
	}

	_, err = tx.Exec(ctx, `
		UPDATE drafts SET status = $1, updated_at = now()
		WHERE entity_type = $2 AND entity_id = $3 AND kind = $4
		  AND id <> $5 AND status = $6
	`, models.DraftRejected, entityType, entityID, kind, id, models.DraftPending)
	if err != nil {
		return fmt.Errorf("failed to reject sibling drafts: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE drafts SET status = $1, selected_at = now(), updated_at = now()
		WHERE id = $2
	`, models.DraftSelected, id)
	if err != nil {
		return fmt.Errorf("failed to select draft: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *PgDraftRepository) Reject(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE drafts SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`
	tag, err := r.pool.Exec(ctx, query, id, models.DraftRejected, models.DraftPending)
	if err != nil {
		return fmt.Errorf("failed to reject draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// AppendFeedback pushes one feedback entry onto the metadata trail.
func (r *PgDraftRepository) AppendFeedback(ctx context.Context, id uuid.UUID, feedback models.DraftFeedback) error {
	feedbackJSON, err := json.Marshal(feedback)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}
	query := `
		UPDATE drafts
		SET metadata = jsonb_set(metadata, '{feedback}',
		        COALESCE(metadata->'feedback', '[]'::jsonb) || $2::jsonb),
		    updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, feedbackJSON)
	if err != nil {
		return fmt.Errorf("failed to append draft feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PgDraftRepository) CountByStatus(ctx context.Context, projectID uuid.UUID, status models.DraftStatus) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM drafts WHERE project_id = $1 AND status = $2`,
		projectID, status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count drafts: %w", err)
	}
	return count, nil
}

// DeleteOldRejected removes rejected drafts older than the cutoff.
// Housekeeping only; never called from the generation path.
func (r *PgDraftRepository) DeleteOldRejected(ctx context.Context, projectID uuid.UUID, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM drafts WHERE project_id = $1 AND status = $2 AND created_at < $3`,
		projectID, models.DraftRejected, olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old drafts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgDraftRepository) queryDrafts(ctx context.Context, query string, args ...any) ([]models.Draft, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}
	defer rows.Close()

	var drafts []models.Draft
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, *draft)
	}
	return drafts, rows.Err()
}

func scanDraft(row pgx.Row) (*models.Draft, error) {
	var draft models.Draft
	var metadataJSON []byte
	err := row.Scan(
		&draft.ID, &draft.ProjectID, &draft.EntityType, &draft.EntityID, &draft.Kind,
		&draft.GenerationID, &draft.Content, &metadataJSON, &draft.Status,
		&draft.CreatedAt, &draft.UpdatedAt, &draft.SelectedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan draft: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &draft.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal draft metadata: %w", err)
		}
	}
	return &draft, nil
}
