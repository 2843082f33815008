package task

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"comic-server/internal/models"
)

// Registry maps task kinds to their definitions. It is constructed once
// at startup and passed by reference; re-registering a kind replaces the
// previous definition with a warning.
type Registry struct {
	mu          sync.RWMutex
	definitions map[models.TaskKind]*Definition
	logger      *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		definitions: make(map[models.TaskKind]*Definition),
		logger:      logger.Named("TaskRegistry"),
	}
}

// Register adds a definition under its kind.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Kind == "" {
		return fmt.Errorf("%w: definition must carry a kind", models.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.definitions[def.Kind]; exists {
		r.logger.Warn("Overwriting registered task kind", zap.String("kind", string(def.Kind)))
	}
	r.definitions[def.Kind] = def
	return nil
}

// Get resolves a kind, returning ErrUnknownTaskKind when absent.
func (r *Registry) Get(kind models.TaskKind) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownTaskKind, kind)
	}
	return def, nil
}

// List returns the registered kinds in sorted order.
func (r *Registry) List() []models.TaskKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]models.TaskKind, 0, len(r.definitions))
	for kind := range r.definitions {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
