package llmadapter

import (
	"fmt"

	"github.com/hjonck/leadscout/pkg/classify"
)

// classifyNameToolName names the single tool every provider is forced to call.
// Its schema is the enforcement mechanism for the closed-schema contract:
// ethnicity is a fixed enum and confidence is capped below 1.0, so a
// provider cannot express "certain" and cannot invent a new category.
const classifyNameToolName = "classify_name"

const classifyNameToolDescription = "Classify a South African person's full name into a broad ethnicity category used for demographic analysis of business leads."

var ethnicityEnum = []string{
	string(classify.African),
	string(classify.White),
	string(classify.Indian),
	string(classify.CapeMalay),
	string(classify.Coloured),
	string(classify.Chinese),
	string(classify.Unknown),
}

// classifyNameInputSchema is the JSON schema for the classify_name tool's
// input, shared verbatim by every provider adapter.
func classifyNameInputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ethnicity": map[string]any{
				"type": "string",
				"enum": ethnicityEnum,
			},
			"confidence": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": maxLLMConfidence,
			},
			"reasoning": map[string]any{
				"type":        "string",
				"description": "Brief justification, for audit purposes only.",
			},
		},
		"required": []string{"ethnicity", "confidence"},
	}
}

// maxLLMConfidence mirrors classify.maxLLMConfidence; an LLM may never
// report full certainty.
const maxLLMConfidence = 0.99

// toolResult is the decoded shape of a classify_name tool call's input.
type toolResult struct {
	Ethnicity  string  `json:"ethnicity"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// validate enforces the schema at the application layer in addition to
// the JSON schema sent to the provider, since providers are not
// guaranteed to honor schema constraints strictly.
func (t toolResult) validate() error {
	eth := classify.Ethnicity(t.Ethnicity)
	if !eth.Valid() {
		return fmt.Errorf("ethnicity %q is not in the closed enumeration", t.Ethnicity)
	}
	if t.Confidence < 0 || t.Confidence > maxLLMConfidence {
		return fmt.Errorf("confidence %v outside [0, %v]", t.Confidence, maxLLMConfidence)
	}
	return nil
}
