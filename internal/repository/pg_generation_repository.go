package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"comic-server/internal/models"
)

// PgGenerationRepository is the PostgreSQL GenerationRepository.
type PgGenerationRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPgGenerationRepository(pool *pgxpool.Pool, logger *zap.Logger) *PgGenerationRepository {
	return &PgGenerationRepository{pool: pool, logger: logger.Named("PgGenerationRepository")}
}

const generationColumns = `id, project_id, user_id, kind, status, entity_type, entity_id, prompt,
	provider, model, parameters, result_ids, error_message, retry_count,
	created_at, started_at, completed_at`

func (r *PgGenerationRepository) Create(ctx context.Context, gen *models.Generation) error {
	paramsJSON, err := json.Marshal(gen.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal generation parameters: %w", err)
	}

	query := `
		INSERT INTO generations (project_id, user_id, kind, status, entity_type, entity_id, provider, model, parameters)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err = r.pool.QueryRow(ctx, query,
		gen.ProjectID, gen.UserID, gen.Kind, models.GenerationQueued,
		gen.EntityType, gen.EntityID, gen.Provider, gen.Model, paramsJSON,
	).Scan(&gen.ID, &gen.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert generation", zap.Error(err))
		return fmt.Errorf("failed to insert generation: %w", err)
	}
	gen.Status = models.GenerationQueued
	return nil
}

func (r *PgGenerationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations WHERE id = $1`
	return r.scanGeneration(r.pool.QueryRow(ctx, query, id))
}

func (r *PgGenerationRepository) SetPrompt(ctx context.Context, id uuid.UUID, prompt, provider, model string) error {
	query := `UPDATE generations SET prompt = $2, provider = $3, model = $4 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, prompt, provider, model)
	if err != nil {
		return fmt.Errorf("failed to set generation prompt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PgGenerationRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE generations SET status = $2, started_at = now()
		WHERE id = $1 AND status = $3
	`
	tag, err := r.pool.Exec(ctx, query, id, models.GenerationProcessing, models.GenerationQueued)
	if err != nil {
		return fmt.Errorf("failed to mark generation processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PgGenerationRepository) MarkCompleted(ctx context.Context, id uuid.UUID, resultIDs []string) error {
	query := `
		UPDATE generations SET status = $2, result_ids = $3, completed_at = now()
		WHERE id = $1 AND status = $4
	`
	tag, err := r.pool.Exec(ctx, query, id, models.GenerationCompleted, resultIDs, models.GenerationProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark generation completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PgGenerationRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE generations SET status = $2, error_message = $3, completed_at = now()
		WHERE id = $1 AND status <> $2
	`
	tag, err := r.pool.Exec(ctx, query, id, models.GenerationFailed, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to mark generation failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ResetForRetry moves a failed generation back to queued and increments
// its retry counter. Only failed generations may be reset.
func (r *PgGenerationRepository) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE generations
		SET status = $2, error_message = '', retry_count = retry_count + 1,
		    started_at = NULL, completed_at = NULL
		WHERE id = $1 AND status = $3
	`
	tag, err := r.pool.Exec(ctx, query, id, models.GenerationQueued, models.GenerationFailed)
	if err != nil {
		return fmt.Errorf("failed to reset generation for retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PgGenerationRepository) ListRecent(ctx context.Context, projectID uuid.UUID, kind models.TaskKind, limit int) ([]models.Generation, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ` + generationColumns + ` FROM generations WHERE project_id = $1`
	args := []any{projectID}
	if kind != "" {
		query += ` AND kind = $2`
		args = append(args, kind)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	defer rows.Close()

	var generations []models.Generation
	for rows.Next() {
		gen, err := r.scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		generations = append(generations, *gen)
	}
	return generations, rows.Err()
}

func (r *PgGenerationRepository) scanGeneration(row pgx.Row) (*models.Generation, error) {
	var gen models.Generation
	var paramsJSON []byte
	err := row.Scan(
		&gen.ID, &gen.ProjectID, &gen.UserID, &gen.Kind, &gen.Status,
		&gen.EntityType, &gen.EntityID, &gen.Prompt, &gen.Provider, &gen.Model,
		&paramsJSON, &gen.ResultIDs, &gen.ErrorMessage, &gen.RetryCount,
		&gen.CreatedAt, &gen.StartedAt, &gen.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan generation: %w", err)
	}
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &gen.Parameters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal generation parameters: %w", err)
		}
	}
	return &gen, nil
}
