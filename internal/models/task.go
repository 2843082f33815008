package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskKind identifies what a generation task produces. Kind strings
// double as template names and generation audit labels.
type TaskKind string

const (
	KindProjectSummary   TaskKind = "project_summary"
	KindCharacterList    TaskKind = "character_list"
	KindChapterList      TaskKind = "chapter_list"
	KindSceneList        TaskKind = "scene_list"
	KindPanelList        TaskKind = "panel_list"
	KindCharacterProfile TaskKind = "character_profile"
	KindSceneSummary     TaskKind = "scene_summary"
	KindVisualPrompt     TaskKind = "visual_prompt"
)

// TaskPriority orders queued tasks. Higher values run first.
type TaskPriority int

const (
	PriorityLow TaskPriority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p TaskPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority parses a priority name, defaulting to medium for an
// empty string.
func ParsePriority(s string) (TaskPriority, error) {
	switch s {
	case "", "medium":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, s)
	}
}

// OutputMode controls how the model response is parsed.
type OutputMode string

const (
	OutputText       OutputMode = "text"
	OutputJSON       OutputMode = "json"
	OutputStructured OutputMode = "structured"
)

// TaskParameters are per-submission knobs. Unset fields are filled
// from DefaultTaskParameters before execution. Temperature is a
// pointer so an explicit zero is distinguishable from unset.
type TaskParameters struct {
	Temperature      *float64     `json:"temperature,omitempty"`
	MaxTokens        int          `json:"max_tokens,omitempty"`
	NumVariants      int          `json:"num_variants"`
	OutputMode       OutputMode   `json:"output_mode"`
	StrictSchema     bool         `json:"strict_schema,omitempty"`
	Priority         TaskPriority `json:"priority"`
	ProviderOverride string       `json:"provider_override,omitempty"`
	ModelOverride    string       `json:"model_override,omitempty"`
	IncludeContext   bool         `json:"include_context"`
}

const DefaultTemperature = 0.7

func DefaultTaskParameters() TaskParameters {
	temperature := DefaultTemperature
	return TaskParameters{
		Temperature:    &temperature,
		NumVariants:    1,
		OutputMode:     OutputStructured,
		Priority:       PriorityMedium,
		IncludeContext: true,
	}
}

// TaskContext names the entity a task targets and carries caller-side
// additions merged into the assembled prompt context.
type TaskContext struct {
	ProjectID         uuid.UUID      `json:"project_id"`
	UserID            uuid.UUID      `json:"user_id"`
	TargetEntityType  string         `json:"target_entity_type,omitempty"`
	TargetEntityID    *uuid.UUID     `json:"target_entity_id,omitempty"`
	AdditionalContext map[string]any `json:"additional_context,omitempty"`
	Instructions      []string       `json:"instructions,omitempty"`
}

// TaskResult is the terminal outcome of one task execution.
type TaskResult struct {
	Success       bool          `json:"success"`
	GenerationID  uuid.UUID     `json:"generation_id"`
	DraftIDs      []uuid.UUID   `json:"draft_ids,omitempty"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime time.Duration `json:"execution_time_ms"`
}

// Task lifecycle states as reported by the executor.
const (
	TaskStateInProgress = "in_progress"
	TaskStateQueued     = "queued"
	TaskStateCompleted  = "completed"
	TaskStateFailed     = "failed"
	TaskStateNotFound   = "not_found"
)

// TaskStatus is the executor's view of one submitted task.
type TaskStatus struct {
	TaskID   uuid.UUID    `json:"task_id"`
	State    string       `json:"state"`
	Kind     TaskKind     `json:"kind,omitempty"`
	Priority TaskPriority `json:"priority,omitempty"`
	Position int          `json:"queue_position,omitempty"`
	Result   *TaskResult  `json:"result,omitempty"`
}
