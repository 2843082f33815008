package workflow

import (
	"strings"

	"comic-server/internal/models"
)

// GenerationMode decides what happens to completed output: direct
// commits write the canonical entity immediately, review holds a draft
// for approval.
type GenerationMode string

const (
	ModeDirect GenerationMode = "direct"
	ModeReview GenerationMode = "review"
)

// GenerationSettings is the per-kind mode table parsed from free-text
// project instructions.
type GenerationSettings struct {
	DefaultMode GenerationMode
	PerKind     map[models.TaskKind]GenerationMode
}

// Mode resolves the mode for a kind, falling back to the default.
func (s GenerationSettings) Mode(kind models.TaskKind) GenerationMode {
	if mode, ok := s.PerKind[kind]; ok {
		return mode
	}
	if s.DefaultMode != "" {
		return s.DefaultMode
	}
	return ModeReview
}

// kindPhrases maps instruction wording to task kinds. Longer phrases
// are matched via strings.Contains so "character profiles" hits before
// the bare "characters" entry matters.
var kindPhrases = []struct {
	phrase string
	kind   models.TaskKind
}{
	{"character profile", models.KindCharacterProfile},
	{"characters", models.KindCharacterList},
	{"character list", models.KindCharacterList},
	{"chapters", models.KindChapterList},
	{"chapter list", models.KindChapterList},
	{"scene summaries", models.KindSceneSummary},
	{"scene summary", models.KindSceneSummary},
	{"scenes", models.KindSceneList},
	{"scene list", models.KindSceneList},
	{"panels", models.KindPanelList},
	{"panel list", models.KindPanelList},
	{"visual prompt", models.KindVisualPrompt},
	{"summary", models.KindProjectSummary},
}

// ParseGenerationSettings builds the mode table from free-text
// instructions using keyword heuristics: "auto" or "direct" anywhere
// sets the default mode to direct; "review <what>" forces review for
// the named kind; "auto generate <what>" or "direct <what>" forces
// direct for it. Everything else defaults to review.
func ParseGenerationSettings(instructions []string) GenerationSettings {
	settings := GenerationSettings{
		DefaultMode: ModeReview,
		PerKind:     make(map[models.TaskKind]GenerationMode),
	}

	for _, instruction := range instructions {
		text := strings.ToLower(instruction)

		if strings.Contains(text, "auto") || strings.Contains(text, "direct") {
			settings.DefaultMode = ModeDirect
		}

		for _, kp := range kindPhrases {
			idx := strings.Index(text, kp.phrase)
			if idx < 0 {
				continue
			}
			prefix := text[:idx]
			switch {
			case strings.Contains(prefix, "review"):
				settings.PerKind[kp.kind] = ModeReview
			case strings.Contains(prefix, "auto generate"), strings.Contains(prefix, "direct"):
				settings.PerKind[kp.kind] = ModeDirect
			}
		}
	}

	return settings
}
