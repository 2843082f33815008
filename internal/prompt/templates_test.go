package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager_RegisterAndRender(t *testing.T) {
	m := NewManager(zap.NewNop())
	require.NoError(t, m.Register("greeting", "Hello, {{.name}}!"))

	out, err := m.Render("greeting", map[string]any{"name": "Mira"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Mira!", out)
}

func TestManager_RenderUnknownTemplate(t *testing.T) {
	m := NewManager(zap.NewNop())
	_, err := m.Render("missing", nil)
	assert.Error(t, err)
}

func TestManager_RegisterInvalidTemplate(t *testing.T) {
	m := NewManager(zap.NewNop())
	assert.Error(t, m.Register("broken", "{{.unclosed"))
}

func TestManager_ReRegisterReplaces(t *testing.T) {
	m := NewManager(zap.NewNop())
	require.NoError(t, m.Register("x", "one"))
	require.NoError(t, m.Register("x", "two"))

	out, err := m.Render("x", nil)
	require.NoError(t, err)
	assert.Equal(t, "two", out)
}

func TestManager_RenderString(t *testing.T) {
	m := NewManager(zap.NewNop())
	out, err := m.RenderString("{{.a}}-{{.b}}", map[string]any{"a": "1", "b": "2"})
	require.NoError(t, err)
	assert.Equal(t, "1-2", out)
}

func TestManager_JSONFunc(t *testing.T) {
	m := NewManager(zap.NewNop())
	require.NoError(t, m.Register("j", "{{json .data}}"))

	out, err := m.Render("j", map[string]any{"data": map[string]any{"k": "v"}})
	require.NoError(t, err)
	assert.Contains(t, out, `"k": "v"`)
}

func TestTruncateList(t *testing.T) {
	list := []any{"a", "b", "c", "d", "e"}
	out := truncateList(3, list)
	require.Len(t, out, 4)
	assert.Equal(t, "a", out[0])
	assert.Contains(t, out[3], "2 more items")

	short := truncateList(10, list)
	assert.Len(t, short, 5)
}

func TestRegisterBuiltins(t *testing.T) {
	m := NewManager(zap.NewNop())
	require.NoError(t, RegisterBuiltins(m))

	names := m.List()
	assert.Len(t, names, len(builtinTemplates))

	out, err := m.Render(TemplateCharacterList, map[string]any{
		"project":        map[string]any{"title": "Ashfall"},
		"num_characters": 4,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Ashfall")
	assert.Contains(t, out, "Create 4 distinct characters")
}
