package llmadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolResultValidateAcceptsKnownEthnicity(t *testing.T) {
	r := toolResult{Ethnicity: "african", Confidence: 0.9}
	assert.NoError(t, r.validate())
}

func TestToolResultValidateRejectsUnknownEnum(t *testing.T) {
	r := toolResult{Ethnicity: "martian", Confidence: 0.5}
	assert.Error(t, r.validate())
}

func TestToolResultValidateRejectsConfidenceAboveCap(t *testing.T) {
	r := toolResult{Ethnicity: "white", Confidence: 1.0}
	assert.Error(t, r.validate())
}

func TestToolResultValidateRejectsNegativeConfidence(t *testing.T) {
	r := toolResult{Ethnicity: "white", Confidence: -0.1}
	assert.Error(t, r.validate())
}

func TestClassifyNameInputSchemaPinsEnum(t *testing.T) {
	schema := classifyNameInputSchema()
	props := schema["properties"].(map[string]any)
	ethnicity := props["ethnicity"].(map[string]any)
	enum := ethnicity["enum"].([]string)
	assert.Contains(t, enum, "unknown")
	assert.Contains(t, enum, "cape_malay")
	assert.Len(t, enum, 7)
}
