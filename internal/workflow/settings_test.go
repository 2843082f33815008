package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"comic-server/internal/models"
)

func TestParseGenerationSettings_DefaultIsReview(t *testing.T) {
	settings := ParseGenerationSettings(nil)
	assert.Equal(t, ModeReview, settings.Mode(models.KindCharacterList))
	assert.Equal(t, ModeReview, settings.Mode(models.KindPanelList))
}

func TestParseGenerationSettings_AutoSetsDirectDefault(t *testing.T) {
	settings := ParseGenerationSettings([]string{"auto everything, I trust the machine"})
	assert.Equal(t, ModeDirect, settings.Mode(models.KindCharacterList))
	assert.Equal(t, ModeDirect, settings.Mode(models.KindSceneList))
}

func TestParseGenerationSettings_DirectKeyword(t *testing.T) {
	settings := ParseGenerationSettings([]string{"direct mode please"})
	assert.Equal(t, ModeDirect, settings.Mode(models.KindChapterList))
}

func TestParseGenerationSettings_ReviewOverridesSpecificKind(t *testing.T) {
	settings := ParseGenerationSettings([]string{
		"auto generate everything but I want to review characters",
	})
	assert.Equal(t, ModeDirect, settings.DefaultMode)
	assert.Equal(t, ModeReview, settings.Mode(models.KindCharacterList))
	assert.Equal(t, ModeDirect, settings.Mode(models.KindSceneList))
}

func TestParseGenerationSettings_AutoGenerateSpecificKind(t *testing.T) {
	settings := ParseGenerationSettings([]string{"auto generate panels"})
	assert.Equal(t, ModeDirect, settings.PerKind[models.KindPanelList])
}

func TestParseGenerationSettings_MultipleInstructions(t *testing.T) {
	settings := ParseGenerationSettings([]string{
		"auto generate chapters",
		"review scenes",
	})
	assert.Equal(t, ModeDirect, settings.Mode(models.KindChapterList))
	assert.Equal(t, ModeReview, settings.Mode(models.KindSceneList))
}
