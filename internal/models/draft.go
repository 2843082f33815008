package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DraftStatus tracks a candidate output through review.
type DraftStatus string

const (
	DraftPending  DraftStatus = "pending"
	DraftSelected DraftStatus = "selected"
	DraftRejected DraftStatus = "rejected"
)

// DraftFeedback is one user remark attached to a draft, kept as a trail
// so regeneration can feed earlier feedback back into the prompt.
type DraftFeedback struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// DraftMetadata records how the draft was produced.
type DraftMetadata struct {
	VariantIndex int             `json:"variant_index"`
	Temperature  float64         `json:"temperature,omitempty"`
	Kind         TaskKind        `json:"kind,omitempty"`
	Provider     string          `json:"provider,omitempty"`
	Model        string          `json:"model,omitempty"`
	Feedback     []DraftFeedback `json:"feedback,omitempty"`
}

// Draft is one candidate output awaiting review. Content is the parsed
// payload as JSON; free-text outputs are stored as a JSON string.
type Draft struct {
	ID           uuid.UUID       `json:"id"`
	ProjectID    *uuid.UUID      `json:"project_id,omitempty"`
	EntityType   string          `json:"entity_type"`
	EntityID     uuid.UUID       `json:"entity_id"`
	Kind         TaskKind        `json:"kind"`
	GenerationID *uuid.UUID      `json:"generation_id,omitempty"`
	Content      json.RawMessage `json:"content"`
	Metadata     DraftMetadata   `json:"metadata"`
	Status       DraftStatus     `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	SelectedAt   *time.Time      `json:"selected_at,omitempty"`
}
