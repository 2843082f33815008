package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"text/template"

	"go.uber.org/zap"
)

// Manager holds named prompt templates and renders them against a data
// mapping. Templates are parsed once at registration; RenderString
// handles inline one-off templates.
type Manager struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
	logger    *zap.Logger
}

// NewManager creates an empty template manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		templates: make(map[string]*template.Template),
		logger:    logger.Named("PromptTemplates"),
	}
}

// funcMap exposes helpers to templates: "json" pretty-prints a value,
// "truncateList" caps a list at n items with a trailing summary entry.
func funcMap() template.FuncMap {
	return template.FuncMap{
		"json": func(v any) (string, error) {
			b, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
		"truncateList": truncateList,
	}
}

func truncateList(maxItems int, list []any) []any {
	if len(list) <= maxItems {
		return list
	}
	out := make([]any, 0, maxItems+1)
	out = append(out, list[:maxItems]...)
	out = append(out, fmt.Sprintf("... and %d more items", len(list)-maxItems))
	return out
}

// Register parses and stores a template under the given name.
// Re-registering a name replaces the previous template.
func (m *Manager) Register(name, templateStr string) error {
	tmpl, err := template.New(name).Funcs(funcMap()).Parse(templateStr)
	if err != nil {
		return fmt.Errorf("failed to parse template %q: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.templates[name]; exists {
		m.logger.Warn("Overwriting existing template", zap.String("name", name))
	}
	m.templates[name] = tmpl
	return nil
}

// Render executes a registered template with the given data.
func (m *Manager) Render(name string, data map[string]any) (string, error) {
	m.mu.RLock()
	tmpl, ok := m.templates[name]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template not found: %q", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", name, err)
	}
	return buf.String(), nil
}

// RenderString renders an inline template without registering it.
func (m *Manager) RenderString(templateStr string, data map[string]any) (string, error) {
	tmpl, err := template.New("inline").Funcs(funcMap()).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse inline template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render inline template: %w", err)
	}
	return buf.String(), nil
}

// List returns the registered template names.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.templates))
	for name := range m.templates {
		names = append(names, name)
	}
	return names
}
