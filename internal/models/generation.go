package models

import (
	"time"

	"github.com/google/uuid"
)

// GenerationStatus tracks one generation record through its lifecycle.
type GenerationStatus string

const (
	GenerationQueued     GenerationStatus = "queued"
	GenerationProcessing GenerationStatus = "processing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

// Generation is the audit record of one task execution: what was asked,
// which provider served it and which drafts came out.
type Generation struct {
	ID           uuid.UUID        `json:"id"`
	ProjectID    uuid.UUID        `json:"project_id"`
	UserID       uuid.UUID        `json:"user_id"`
	Kind         TaskKind         `json:"kind"`
	Status       GenerationStatus `json:"status"`
	EntityType   string           `json:"entity_type,omitempty"`
	EntityID     *uuid.UUID       `json:"entity_id,omitempty"`
	Prompt       string           `json:"prompt,omitempty"`
	Provider     string           `json:"provider,omitempty"`
	Model        string           `json:"model,omitempty"`
	Parameters   TaskParameters   `json:"parameters"`
	ResultIDs    []string         `json:"result_ids,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	RetryCount   int              `json:"retry_count"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}
