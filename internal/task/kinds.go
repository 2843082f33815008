package task

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"comic-server/internal/models"
	"comic-server/internal/prompt"
)

// Typed output shapes, one per task kind. Parsed payloads must
// deserialize into these before a draft is written.

type ProjectSummaryOutput struct {
	Title   string   `json:"title"`
	Genre   string   `json:"genre,omitempty"`
	Summary string   `json:"summary"`
	Themes  []string `json:"themes,omitempty"`
}

type CharacterItem struct {
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	Description string `json:"description,omitempty"`
}

type CharacterListOutput struct {
	Characters []CharacterItem `json:"characters"`
}

type ChapterItem struct {
	ChapterNumber int    `json:"chapter_number"`
	Title         string `json:"title"`
	Summary       string `json:"summary,omitempty"`
}

type ChapterListOutput struct {
	Chapters []ChapterItem `json:"chapters"`
}

type SceneItem struct {
	SceneNumber int    `json:"scene_number"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type SceneListOutput struct {
	Scenes []SceneItem `json:"scenes"`
}

type PanelItem struct {
	PanelNumber int    `json:"panel_number"`
	ShotType    string `json:"shot_type,omitempty"`
	Description string `json:"description"`
	Dialogue    string `json:"dialogue,omitempty"`
	Narration   string `json:"narration,omitempty"`
}

type PanelListOutput struct {
	Panels []PanelItem `json:"panels"`
}

type CharacterProfileOutput struct {
	Name      string `json:"name,omitempty"`
	Biography string `json:"biography"`
}

type SceneSummaryOutput struct {
	Summary string `json:"summary"`
}

type VisualPromptOutput struct {
	Prompt         string `json:"prompt"`
	Style          string `json:"style,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
}

// JSON schemas sent on structured calls.
var (
	projectSummarySchema = json.RawMessage(`{
	  "type": "object",
	  "properties": {
	    "title": {"type": "string"},
	    "genre": {"type": "string"},
	    "summary": {"type": "string"},
	    "themes": {"type": "array", "items": {"type": "string"}}
	  },
	  "required": ["title", "summary"]
	}`)

	characterListSchema = json.RawMessage(`{
	  "type": "object",
	  "properties": {
	    "characters": {
	      "type": "array",
	      "items": {
	        "type": "object",
	        "properties": {
	          "name": {"type": "string"},
	          "role": {"type": "string"},
	          "description": {"type": "string"}
	        },
	        "required": ["name"]
	      }
	    }
	  },
	  "required": ["characters"]
	}`)

	chapterListSchema = json.RawMessage(`{
	  "type": "object",
	  "properties": {
	    "chapters": {
	      "type": "array",
	      "items": {
	        "type": "object",
	        "properties": {
	          "chapter_number": {"type": "integer"},
	          "title": {"type": "string"},
	          "summary": {"type": "string"}
	        },
	        "required": ["chapter_number", "title"]
	      }
	    }
	  },
	  "required": ["chapters"]
	}`)

	sceneListSchema = json.RawMessage(`{
	  "type": "object",
	  "properties": {
	    "scenes": {
	      "type": "array",
	      "items": {
	        "type": "object",
	        "properties": {
	          "scene_number": {"type": "integer"},
	          "title": {"type": "string"},
	          "description": {"type": "string"}
	        },
	        "required": ["scene_number", "title"]
	      }
	    }
	  },
	  "required": ["scenes"]
	}`)

	panelListSchema = json.RawMessage(`{
	  "type": "object",
	  "properties": {
	    "panels": {
	      "type": "array",
	      "items": {
	        "type": "object",
	        "properties": {
	          "panel_number": {"type": "integer"},
	          "shot_type": {"type": "string"},
	          "description": {"type": "string"},
	          "dialogue": {"type": "string"},
	          "narration": {"type": "string"}
	        },
	        "required": ["panel_number", "description"]
	      }
	    }
	  },
	  "required": ["panels"]
	}`)

	characterProfileSchema = json.RawMessage(`{
	  "type": "object",
	  "properties": {
	    "name": {"type": "string"},
	    "biography": {"type": "string"}
	  },
	  "required": ["biography"]
	}`)

	sceneSummarySchema = json.RawMessage(`{
	  "type": "object",
	  "properties": {
	    "summary": {"type": "string"}
	  },
	  "required": ["summary"]
	}`)

	visualPromptSchema = json.RawMessage(`{
	  "type": "object",
	  "properties": {
	    "prompt": {"type": "string"},
	    "style": {"type": "string"},
	    "negative_prompt": {"type": "string"}
	  },
	  "required": ["prompt"]
	}`)
)

// Definitions returns the built-in task kinds.
func Definitions() []*Definition {
	return []*Definition{
		{
			Kind:         models.KindProjectSummary,
			TemplateName: prompt.TemplateProjectSummary,
			Schema:       projectSummarySchema,
			NewOutput:    func() any { return &ProjectSummaryOutput{} },
			ParseFallback: func(raw string) (json.RawMessage, error) {
				return json.Marshal(ProjectSummaryOutput{Title: firstLine(raw), Summary: strings.TrimSpace(raw)})
			},
			Validate: func(payload json.RawMessage) error {
				var out ProjectSummaryOutput
				if err := json.Unmarshal(payload, &out); err != nil {
					return err
				}
				if strings.TrimSpace(out.Summary) == "" {
					return fmt.Errorf("summary is empty")
				}
				return nil
			},
		},
		{
			Kind:         models.KindCharacterList,
			TemplateName: prompt.TemplateCharacterList,
			Schema:       characterListSchema,
			NewOutput:    func() any { return &CharacterListOutput{} },
			ParseFallback: func(raw string) (json.RawMessage, error) {
				items := bulletItems(raw)
				out := CharacterListOutput{Characters: make([]CharacterItem, 0, len(items))}
				for _, item := range items {
					name, rest := splitNameRest(item)
					out.Characters = append(out.Characters, CharacterItem{Name: name, Description: rest})
				}
				return json.Marshal(out)
			},
			Validate: func(payload json.RawMessage) error {
				var out CharacterListOutput
				if err := json.Unmarshal(payload, &out); err != nil {
					return err
				}
				if len(out.Characters) == 0 {
					return fmt.Errorf("character list is empty")
				}
				return nil
			},
		},
		{
			Kind:         models.KindChapterList,
			TemplateName: prompt.TemplateChapterList,
			Schema:       chapterListSchema,
			NewOutput:    func() any { return &ChapterListOutput{} },
			ParseFallback: func(raw string) (json.RawMessage, error) {
				items := bulletItems(raw)
				out := ChapterListOutput{Chapters: make([]ChapterItem, 0, len(items))}
				for i, item := range items {
					title, rest := splitNameRest(item)
					out.Chapters = append(out.Chapters, ChapterItem{ChapterNumber: i + 1, Title: title, Summary: rest})
				}
				return json.Marshal(out)
			},
			Validate: func(payload json.RawMessage) error {
				var out ChapterListOutput
				if err := json.Unmarshal(payload, &out); err != nil {
					return err
				}
				if len(out.Chapters) == 0 {
					return fmt.Errorf("chapter list is empty")
				}
				return nil
			},
		},
		{
			Kind:         models.KindSceneList,
			TemplateName: prompt.TemplateSceneList,
			Schema:       sceneListSchema,
			NewOutput:    func() any { return &SceneListOutput{} },
			ParseFallback: func(raw string) (json.RawMessage, error) {
				items := bulletItems(raw)
				out := SceneListOutput{Scenes: make([]SceneItem, 0, len(items))}
				for i, item := range items {
					title, rest := splitNameRest(item)
					out.Scenes = append(out.Scenes, SceneItem{SceneNumber: i + 1, Title: title, Description: rest})
				}
				return json.Marshal(out)
			},
			Validate: func(payload json.RawMessage) error {
				var out SceneListOutput
				if err := json.Unmarshal(payload, &out); err != nil {
					return err
				}
				if len(out.Scenes) == 0 {
					return fmt.Errorf("scene list is empty")
				}
				return nil
			},
		},
		{
			Kind:         models.KindPanelList,
			TemplateName: prompt.TemplatePanelList,
			Schema:       panelListSchema,
			NewOutput:    func() any { return &PanelListOutput{} },
			ParseFallback: func(raw string) (json.RawMessage, error) {
				items := bulletItems(raw)
				out := PanelListOutput{Panels: make([]PanelItem, 0, len(items))}
				for i, item := range items {
					out.Panels = append(out.Panels, PanelItem{PanelNumber: i + 1, Description: item})
				}
				return json.Marshal(out)
			},
			Validate: func(payload json.RawMessage) error {
				var out PanelListOutput
				if err := json.Unmarshal(payload, &out); err != nil {
					return err
				}
				if len(out.Panels) == 0 {
					return fmt.Errorf("panel list is empty")
				}
				return nil
			},
		},
		{
			Kind:         models.KindCharacterProfile,
			TemplateName: prompt.TemplateCharacterProfile,
			Schema:       characterProfileSchema,
			NewOutput:    func() any { return &CharacterProfileOutput{} },
			ParseFallback: func(raw string) (json.RawMessage, error) {
				return json.Marshal(CharacterProfileOutput{Biography: strings.TrimSpace(raw)})
			},
		},
		{
			Kind:         models.KindSceneSummary,
			TemplateName: prompt.TemplateSceneSummary,
			Schema:       sceneSummarySchema,
			NewOutput:    func() any { return &SceneSummaryOutput{} },
			ParseFallback: func(raw string) (json.RawMessage, error) {
				return json.Marshal(SceneSummaryOutput{Summary: strings.TrimSpace(raw)})
			},
		},
		{
			Kind:         models.KindVisualPrompt,
			TemplateName: prompt.TemplateVisualPrompt,
			Schema:       visualPromptSchema,
			NewOutput:    func() any { return &VisualPromptOutput{} },
			ParseFallback: func(raw string) (json.RawMessage, error) {
				return json.Marshal(VisualPromptOutput{Prompt: strings.TrimSpace(raw)})
			},
		},
	}
}

// RegisterDefaults registers every built-in kind.
func RegisterDefaults(r *Registry) error {
	for _, def := range Definitions() {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

var bulletRe = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)

// bulletItems extracts bullet or numbered list entries from prose.
// Falls back to non-empty lines when no list markers are present.
func bulletItems(raw string) []string {
	var items, lines []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lines = append(lines, trimmed)
		if bulletRe.MatchString(line) {
			items = append(items, strings.TrimSpace(bulletRe.ReplaceAllString(line, "")))
		}
	}
	if len(items) > 0 {
		return items
	}
	return lines
}

// firstLine returns the first non-empty line of raw, trimmed.
func firstLine(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		return strings.TrimSpace(trimmed[:idx])
	}
	return trimmed
}

// splitNameRest splits "Name: description" or "Name - description"
// style entries.
func splitNameRest(item string) (string, string) {
	for _, sep := range []string{":", " - "} {
		if idx := strings.Index(item, sep); idx > 0 {
			return strings.TrimSpace(item[:idx]), strings.TrimSpace(item[idx+len(sep):])
		}
	}
	return item, ""
}
