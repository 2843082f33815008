package task

import (
	"context"
	"encoding/json"

	"comic-server/internal/models"
)

// Definition describes everything that varies per task kind. The runner
// is generic; a Definition plugs the kind-specific pieces into it.
type Definition struct {
	Kind         models.TaskKind
	TemplateName string

	// Schema is the JSON schema sent on structured calls. NewOutput
	// returns a fresh typed value the payload must deserialize into.
	Schema    json.RawMessage
	NewOutput func() any

	// Preferred provider/model. Per-call overrides win; the configured
	// system default fills whatever is left empty.
	Provider string
	Model    string

	// FetchData assembles the prompt data for the target scope. When
	// nil the runner uses the assembler's default scope dispatch.
	FetchData func(ctx context.Context, asm *Assembler, tc models.TaskContext) (map[string]any, error)

	// ParseFallback turns unparseable raw text into a best-effort
	// payload. Must not fail for ordinary prose input.
	ParseFallback func(raw string) (json.RawMessage, error)

	// Validate optionally rejects a parsed variant. A failing variant
	// is dropped without aborting the rest.
	Validate func(payload json.RawMessage) error
}
