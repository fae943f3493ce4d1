package patterns_test

import (
	"testing"

	"github.com/hjonck/leadscout/pkg/classify"
	"github.com/hjonck/leadscout/pkg/names"
	"github.com/hjonck/leadscout/pkg/patterns"
	"github.com/hjonck/leadscout/pkg/phonetic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustInput(t *testing.T, raw string) classify.Input {
	t.Helper()
	n, err := names.Normalize(raw)
	require.NoError(t, err)
	return classify.Input{Name: n, Codes: phonetic.Codes(n.Normalized)}
}

func TestExtractSkipsLowConfidenceAndNonLLM(t *testing.T) {
	in := mustInput(t, "Xiluva Rirhandzu")

	low, err := classify.NewClassification(in.Name, classify.African, 0.5, classify.MethodPhonetic, 0)
	require.NoError(t, err)
	assert.Empty(t, patterns.Extract(in, low).Patterns)

	llmLow, err := classify.NewClassification(in.Name, classify.African, 0.75, classify.MethodLLM, 0)
	require.NoError(t, err)
	assert.Empty(t, patterns.Extract(in, llmLow).Patterns)
}

func TestExtractSkipsUnknown(t *testing.T) {
	in := mustInput(t, "Xiluva Rirhandzu")
	unknown, err := classify.NewClassification(in.Name, classify.Unknown, 0, classify.MethodLLM, 0)
	require.NoError(t, err)
	assert.Empty(t, patterns.Extract(in, unknown).Patterns)
}

func TestExtractStructuralPatterns(t *testing.T) {
	in := mustInput(t, "Xiluva Rirhandzu")
	result, err := classify.NewClassification(in.Name, classify.African, 0.85, classify.MethodLLM, 0)
	require.NoError(t, err)

	extracted := patterns.Extract(in, result)
	require.NotEmpty(t, extracted.Patterns)

	var sawPrefix2 bool
	for _, p := range extracted.Patterns {
		if p.PatternType == "prefix2" && p.PatternValue == "xi" {
			sawPrefix2 = true
		}
		assert.Equal(t, classify.African, p.TargetEthnicity)
	}
	assert.True(t, sawPrefix2, "expected a prefix2 pattern for the full normalized name")
	require.NotNil(t, extracted.Family)
	assert.Equal(t, classify.African, extracted.Family.Ethnicity)
}

func TestExtractCompoundSurname(t *testing.T) {
	in := mustInput(t, "Andreas Petrus van der Merwe")
	result, err := classify.NewClassification(in.Name, classify.White, 0.9, classify.MethodLLM, 0)
	require.NoError(t, err)

	extracted := patterns.Extract(in, result)
	var sawCompound bool
	for _, p := range extracted.Patterns {
		if p.PatternType == "compound_surname" {
			sawCompound = true
			assert.Equal(t, "merwe", p.PatternValue)
		}
	}
	assert.True(t, sawCompound)
}
