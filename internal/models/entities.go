package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Project is the top-level authoring unit.
type Project struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	Title       string          `json:"title"`
	Genre       string          `json:"genre,omitempty"`
	Description string          `json:"description,omitempty"`
	UserInput   string          `json:"user_input,omitempty"`
	StyleGuide  json.RawMessage `json:"style_guide,omitempty"`
	Settings    json.RawMessage `json:"settings,omitempty"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Chapter struct {
	ID            uuid.UUID `json:"id"`
	ProjectID     uuid.UUID `json:"project_id"`
	ChapterNumber int       `json:"chapter_number"`
	Title         string    `json:"title"`
	Summary       string    `json:"summary,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Scene struct {
	ID          uuid.UUID `json:"id"`
	ChapterID   uuid.UUID `json:"chapter_id"`
	SceneNumber int       `json:"scene_number"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Panel struct {
	ID           uuid.UUID   `json:"id"`
	SceneID      uuid.UUID   `json:"scene_id"`
	PanelNumber  int         `json:"panel_number"`
	ShotType     string      `json:"shot_type,omitempty"`
	Description  string      `json:"description"`
	Dialogue     string      `json:"dialogue,omitempty"`
	Narration    string      `json:"narration,omitempty"`
	CharacterIDs []uuid.UUID `json:"character_ids,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

type Character struct {
	ID          uuid.UUID `json:"id"`
	ProjectID   uuid.UUID `json:"project_id"`
	Name        string    `json:"name"`
	Role        string    `json:"role,omitempty"`
	Description string    `json:"description,omitempty"`
	Biography   string    `json:"biography,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Location struct {
	ID          uuid.UUID `json:"id"`
	ProjectID   uuid.UUID `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ImageRef points at a rendered image owned by exactly one of a panel,
// a character or a location.
type ImageRef struct {
	ID          uuid.UUID  `json:"id"`
	PanelID     *uuid.UUID `json:"panel_id,omitempty"`
	CharacterID *uuid.UUID `json:"character_id,omitempty"`
	LocationID  *uuid.UUID `json:"location_id,omitempty"`
	URL         string     `json:"url"`
	CreatedAt   time.Time  `json:"created_at"`
}
