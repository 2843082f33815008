package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"comic-server/internal/models"
)

// PgContentRepository is the PostgreSQL ContentRepository over the
// canonical story tables.
type PgContentRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPgContentRepository(pool *pgxpool.Pool, logger *zap.Logger) *PgContentRepository {
	return &PgContentRepository{pool: pool, logger: logger.Named("PgContentRepository")}
}

func (r *PgContentRepository) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	query := `
		SELECT id, user_id, title, genre, description, user_input, style_guide, settings, status, created_at, updated_at
		FROM projects WHERE id = $1
	`
	var p models.Project
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.UserID, &p.Title, &p.Genre, &p.Description, &p.UserInput,
		&p.StyleGuide, &p.Settings, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapScanError(err, "project")
	}
	return &p, nil
}

func (r *PgContentRepository) GetChapter(ctx context.Context, id uuid.UUID) (*models.Chapter, error) {
	var c models.Chapter
	err := r.pool.QueryRow(ctx,
		`SELECT id, project_id, chapter_number, title, summary, created_at FROM chapters WHERE id = $1`, id,
	).Scan(&c.ID, &c.ProjectID, &c.ChapterNumber, &c.Title, &c.Summary, &c.CreatedAt)
	if err != nil {
		return nil, mapScanError(err, "chapter")
	}
	return &c, nil
}

func (r *PgContentRepository) GetScene(ctx context.Context, id uuid.UUID) (*models.Scene, error) {
	var s models.Scene
	err := r.pool.QueryRow(ctx,
		`SELECT id, chapter_id, scene_number, title, description, summary, created_at FROM scenes WHERE id = $1`, id,
	).Scan(&s.ID, &s.ChapterID, &s.SceneNumber, &s.Title, &s.Description, &s.Summary, &s.CreatedAt)
	if err != nil {
		return nil, mapScanError(err, "scene")
	}
	return &s, nil
}

func (r *PgContentRepository) GetPanel(ctx context.Context, id uuid.UUID) (*models.Panel, error) {
	var p models.Panel
	err := r.pool.QueryRow(ctx,
		`SELECT id, scene_id, panel_number, shot_type, description, dialogue, narration, character_ids, created_at
		 FROM panels WHERE id = $1`, id,
	).Scan(&p.ID, &p.SceneID, &p.PanelNumber, &p.ShotType, &p.Description, &p.Dialogue, &p.Narration, &p.CharacterIDs, &p.CreatedAt)
	if err != nil {
		return nil, mapScanError(err, "panel")
	}
	return &p, nil
}

func (r *PgContentRepository) GetCharacter(ctx context.Context, id uuid.UUID) (*models.Character, error) {
	var c models.Character
	err := r.pool.QueryRow(ctx,
		`SELECT id, project_id, name, role, description, biography, created_at FROM characters WHERE id = $1`, id,
	).Scan(&c.ID, &c.ProjectID, &c.Name, &c.Role, &c.Description, &c.Biography, &c.CreatedAt)
	if err != nil {
		return nil, mapScanError(err, "character")
	}
	return &c, nil
}

func (r *PgContentRepository) GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	var l models.Location
	err := r.pool.QueryRow(ctx,
		`SELECT id, project_id, name, description, created_at FROM locations WHERE id = $1`, id,
	).Scan(&l.ID, &l.ProjectID, &l.Name, &l.Description, &l.CreatedAt)
	if err != nil {
		return nil, mapScanError(err, "location")
	}
	return &l, nil
}

func (r *PgContentRepository) ListChaptersByProject(ctx context.Context, projectID uuid.UUID) ([]models.Chapter, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, project_id, chapter_number, title, summary, created_at
		 FROM chapters WHERE project_id = $1 ORDER BY chapter_number`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	defer rows.Close()

	var chapters []models.Chapter
	for rows.Next() {
		var c models.Chapter
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.ChapterNumber, &c.Title, &c.Summary, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chapter: %w", err)
		}
		chapters = append(chapters, c)
	}
	return chapters, rows.Err()
}

func (r *PgContentRepository) ListScenesByChapter(ctx context.Context, chapterID uuid.UUID) ([]models.Scene, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, chapter_id, scene_number, title, description, summary, created_at
		 FROM scenes WHERE chapter_id = $1 ORDER BY scene_number`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenes: %w", err)
	}
	defer rows.Close()

	var scenes []models.Scene
	for rows.Next() {
		var s models.Scene
		if err := rows.Scan(&s.ID, &s.ChapterID, &s.SceneNumber, &s.Title, &s.Description, &s.Summary, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scene: %w", err)
		}
		scenes = append(scenes, s)
	}
	return scenes, rows.Err()
}

func (r *PgContentRepository) ListPanelsByScene(ctx context.Context, sceneID uuid.UUID) ([]models.Panel, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, scene_id, panel_number, shot_type, description, dialogue, narration, character_ids, created_at
		 FROM panels WHERE scene_id = $1 ORDER BY panel_number`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("failed to list panels: %w", err)
	}
	defer rows.Close()

	var panels []models.Panel
	for rows.Next() {
		var p models.Panel
		if err := rows.Scan(&p.ID, &p.SceneID, &p.PanelNumber, &p.ShotType, &p.Description, &p.Dialogue, &p.Narration, &p.CharacterIDs, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan panel: %w", err)
		}
		panels = append(panels, p)
	}
	return panels, rows.Err()
}

func (r *PgContentRepository) ListCharactersByProject(ctx context.Context, projectID uuid.UUID) ([]models.Character, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, project_id, name, role, description, biography, created_at
		 FROM characters WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	defer rows.Close()

	var characters []models.Character
	for rows.Next() {
		var c models.Character
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Role, &c.Description, &c.Biography, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan character: %w", err)
		}
		characters = append(characters, c)
	}
	return characters, rows.Err()
}

// GetPreviousScene returns the scene immediately before the given
// number in the chapter, or ErrNotFound when it is the first.
func (r *PgContentRepository) GetPreviousScene(ctx context.Context, chapterID uuid.UUID, beforeNumber int) (*models.Scene, error) {
	var s models.Scene
	err := r.pool.QueryRow(ctx,
		`SELECT id, chapter_id, scene_number, title, description, summary, created_at
		 FROM scenes WHERE chapter_id = $1 AND scene_number < $2
		 ORDER BY scene_number DESC LIMIT 1`, chapterID, beforeNumber,
	).Scan(&s.ID, &s.ChapterID, &s.SceneNumber, &s.Title, &s.Description, &s.Summary, &s.CreatedAt)
	if err != nil {
		return nil, mapScanError(err, "previous scene")
	}
	return &s, nil
}

// GetAdjacentPanel returns the panel with exactly the given number in
// the scene, or ErrNotFound.
func (r *PgContentRepository) GetAdjacentPanel(ctx context.Context, sceneID uuid.UUID, number int) (*models.Panel, error) {
	var p models.Panel
	err := r.pool.QueryRow(ctx,
		`SELECT id, scene_id, panel_number, shot_type, description, dialogue, narration, character_ids, created_at
		 FROM panels WHERE scene_id = $1 AND panel_number = $2`, sceneID, number,
	).Scan(&p.ID, &p.SceneID, &p.PanelNumber, &p.ShotType, &p.Description, &p.Dialogue, &p.Narration, &p.CharacterIDs, &p.CreatedAt)
	if err != nil {
		return nil, mapScanError(err, "panel")
	}
	return &p, nil
}

// ListImages returns image references for one owner: "panel",
// "character" or "location".
func (r *PgContentRepository) ListImages(ctx context.Context, owner string, ownerID uuid.UUID) ([]models.ImageRef, error) {
	var column string
	switch owner {
	case "panel":
		column = "panel_id"
	case "character":
		column = "character_id"
	case "location":
		column = "location_id"
	default:
		return nil, fmt.Errorf("%w: unsupported image owner %q", models.ErrInvalidInput, owner)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, panel_id, character_id, location_id, url, created_at FROM images WHERE `+column+` = $1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()

	var images []models.ImageRef
	for rows.Next() {
		var img models.ImageRef
		if err := rows.Scan(&img.ID, &img.PanelID, &img.CharacterID, &img.LocationID, &img.URL, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (r *PgContentRepository) CountCharacterAppearances(ctx context.Context, characterID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM panels WHERE $1 = ANY(character_ids)`, characterID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count character appearances: %w", err)
	}
	return count, nil
}

func (r *PgContentRepository) CreateProject(ctx context.Context, project *models.Project) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO projects (user_id, title, genre, description, user_input, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, project.UserID, project.Title, project.Genre, project.Description, project.UserInput, project.Status,
	).Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

func (r *PgContentRepository) CreateChapter(ctx context.Context, chapter *models.Chapter) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chapters (project_id, chapter_number, title, summary)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, chapter.ProjectID, chapter.ChapterNumber, chapter.Title, chapter.Summary,
	).Scan(&chapter.ID, &chapter.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert chapter: %w", err)
	}
	return nil
}

func (r *PgContentRepository) CreateScene(ctx context.Context, scene *models.Scene) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO scenes (chapter_id, scene_number, title, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, scene.ChapterID, scene.SceneNumber, scene.Title, scene.Description,
	).Scan(&scene.ID, &scene.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert scene: %w", err)
	}
	return nil
}

func (r *PgContentRepository) CreatePanel(ctx context.Context, panel *models.Panel) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO panels (scene_id, panel_number, shot_type, description, dialogue, narration, character_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, panel.SceneID, panel.PanelNumber, panel.ShotType, panel.Description, panel.Dialogue, panel.Narration, panel.CharacterIDs,
	).Scan(&panel.ID, &panel.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert panel: %w", err)
	}
	return nil
}

func (r *PgContentRepository) CreateCharacter(ctx context.Context, character *models.Character) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO characters (project_id, name, role, description, biography)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, character.ProjectID, character.Name, character.Role, character.Description, character.Biography,
	).Scan(&character.ID, &character.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert character: %w", err)
	}
	return nil
}

func (r *PgContentRepository) UpdateCharacterBiography(ctx context.Context, id uuid.UUID, biography string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE characters SET biography = $2 WHERE id = $1`, id, biography)
	if err != nil {
		return fmt.Errorf("failed to update character biography: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PgContentRepository) UpdateSceneSummary(ctx context.Context, id uuid.UUID, summary string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE scenes SET summary = $2 WHERE id = $1`, id, summary)
	if err != nil {
		return fmt.Errorf("failed to update scene summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateProjectSummary writes a generated summary onto the project.
// An empty genre leaves the stored genre untouched.
func (r *PgContentRepository) UpdateProjectSummary(ctx context.Context, id uuid.UUID, title, genre, description string) error {
	query := `
		UPDATE projects
		SET title = $2,
		    genre = CASE WHEN $3 = '' THEN genre ELSE $3 END,
		    description = $4,
		    updated_at = now()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, title, genre, description)
	if err != nil {
		return fmt.Errorf("failed to update project summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func mapScanError(err error, entity string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %w", entity, models.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", entity, err)
}
