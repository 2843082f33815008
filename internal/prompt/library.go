package prompt

// Built-in prompt templates, one per task kind. Registered at startup;
// a project may later override a name with its own template.

const (
	TemplateProjectSummary   = "project_summary"
	TemplateCharacterList    = "character_list"
	TemplateChapterList      = "chapter_list"
	TemplateSceneList        = "scene_list"
	TemplatePanelList        = "panel_list"
	TemplateCharacterProfile = "character_profile"
	TemplateSceneSummary     = "scene_summary"
	TemplateVisualPrompt     = "visual_prompt"
)

var builtinTemplates = map[string]string{
	TemplateProjectSummary: `You are a story development assistant for a graphic novel studio.

Based on the following idea from the author, write a project summary.

Author's idea:
{{.user_input}}

Produce a title, a genre, and a 2-3 paragraph description establishing
premise, tone and central conflict.`,

	TemplateCharacterList: `You are a character designer for a graphic novel.

Project:
{{json .project}}

Create {{.num_characters}} distinct characters for this story. For each
character give a name, a role (protagonist, antagonist, supporting), and
a one-paragraph description covering appearance and personality.`,

	TemplateChapterList: `You are a story editor structuring a graphic novel.

Project:
{{json .project}}

Characters:
{{json .characters}}

Outline {{.num_chapters}} chapters. For each chapter give its number, a
title, and a summary of the events it covers. Chapters must follow a
coherent arc from setup through climax to resolution.`,

	TemplateSceneList: `You are a story editor breaking a chapter into scenes.

Chapter:
{{json .chapter}}

Characters:
{{json .characters}}

Break this chapter into {{.num_scenes}} scenes. For each scene give its
number, a title, and a description of what happens, where, and which
characters appear.`,

	TemplatePanelList: `You are a comic artist planning panel layouts.

Scene:
{{json .scene}}

Characters:
{{json .characters}}

Plan {{.num_panels}} panels for this scene. For each panel give its
number, a shot type (wide, medium, close-up, extreme close-up), a visual
description, and any dialogue or narration text.`,

	TemplateCharacterProfile: `You are a character writer deepening a graphic novel character.

Project:
{{json .project}}

Character:
{{json .character}}

Other characters:
{{json .characters}}

Write a full profile: biography, personality traits, motivations, fears,
relationships to the other characters, voice style, and character arc.`,

	TemplateSceneSummary: `You are a story editor summarizing a scene for continuity notes.

Scene:
{{json .scene}}

Panels:
{{json .panels}}

Write a concise summary of the scene: what happens, emotional beats, and
any facts later scenes must stay consistent with.`,

	TemplateVisualPrompt: `You are an art director writing an image-generation prompt.

Target ({{.target_type}}):
{{json .target}}

Project genre: {{.genre}}
Visual style: {{.visual_style}}

Write a single detailed visual prompt describing composition, subjects,
lighting, mood and style, plus a short negative prompt of elements to
avoid.`,
}

// RegisterBuiltins loads the built-in prompt library into the manager.
func RegisterBuiltins(m *Manager) error {
	for name, tmpl := range builtinTemplates {
		if err := m.Register(name, tmpl); err != nil {
			return err
		}
	}
	return nil
}
