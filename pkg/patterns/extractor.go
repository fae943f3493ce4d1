// Package patterns implements the Pattern Extractor: a pure function that
// turns a successful LLM classification into durable patterns for the
// Learning Store, so later lookups of the same or similar names can avoid
// another LLM call.
package patterns

import (
	"github.com/hjonck/leadscout/pkg/classify"
	"github.com/hjonck/leadscout/pkg/dictionary"
	"github.com/hjonck/leadscout/pkg/learning"
	"github.com/hjonck/leadscout/pkg/names"
	"github.com/hjonck/leadscout/pkg/phonetic"
)

// minLLMConfidence is the threshold below which a classification is not
// trusted enough to mint patterns from.
const minLLMConfidence = 0.8

// structuralStartConfidence is the starting confidence for new structural
// and linguistic-marker patterns.
const structuralStartConfidence = 0.7

// FamilyUpdate describes how a phonetic family record should change in
// response to a new verified classification.
type FamilyUpdate struct {
	FamilyKey          string
	Ethnicity          classify.Ethnicity
	RepresentativeName string
}

// Result bundles everything the Pattern Extractor derived from one
// classification: zero or more learned patterns, plus an optional
// phonetic family update.
type Result struct {
	Patterns []learning.LearnedPattern
	Family   *FamilyUpdate
}

// Extract derives patterns from a classification, applying the rule that
// patterns are only minted when result.Method == llm, confidence >= 0.8,
// and the ethnicity is not unknown. Extract is a pure function: it
// returns data for the caller to persist via the Learning Store, rather
// than writing anything itself.
func Extract(in classify.Input, result classify.Classification) Result {
	if result.Method != classify.MethodLLM || result.Confidence < minLLMConfidence || result.Ethnicity == classify.Unknown {
		return Result{}
	}

	tokens := names.Tokens(in.Name.Normalized)
	var out []learning.LearnedPattern

	out = append(out, structuralPatterns(in.Name.Normalized, result.Ethnicity)...)
	if anchor := mostSignificantToken(tokens); anchor != "" && anchor != in.Name.Normalized {
		out = append(out, structuralPatterns(anchor, result.Ethnicity)...)
	}

	if marker, ok := linguisticMarker(tokens); ok {
		out = append(out, learning.LearnedPattern{
			PatternType:     learning.PatternLinguisticMarker,
			PatternValue:    marker,
			TargetEthnicity: result.Ethnicity,
			Confidence:      structuralStartConfidence,
		})
	}

	if run, anchorIdx := dictionary.DetectCompoundRun(tokens); len(run) > 0 && anchorIdx < len(tokens) {
		out = append(out, learning.LearnedPattern{
			PatternType:     learning.PatternCompoundSurname,
			PatternValue:    tokens[anchorIdx],
			TargetEthnicity: result.Ethnicity,
			Confidence:      structuralStartConfidence,
		})
	}

	var family *FamilyUpdate
	if codes := in.Codes; !codes.Empty() {
		family = &FamilyUpdate{
			FamilyKey:          phonetic.FamilyKey(codes),
			Ethnicity:          result.Ethnicity,
			RepresentativeName: in.Name.Original,
		}
	}

	return Result{Patterns: out, Family: family}
}

// structuralPatterns builds the prefix2/prefix3/suffix2/suffix3 patterns
// for a single normalized string (a full name or its most significant
// token).
func structuralPatterns(value string, eth classify.Ethnicity) []learning.LearnedPattern {
	var out []learning.LearnedPattern
	add := func(patternType learning.PatternType, patternValue string) {
		out = append(out, learning.LearnedPattern{
			PatternType:     patternType,
			PatternValue:    patternValue,
			TargetEthnicity: eth,
			Confidence:      structuralStartConfidence,
		})
	}
	if len(value) >= 2 {
		add(learning.PatternPrefix2, value[:2])
		add(learning.PatternSuffix2, value[len(value)-2:])
	}
	if len(value) >= 3 {
		add(learning.PatternPrefix3, value[:3])
		add(learning.PatternSuffix3, value[len(value)-3:])
	}
	return out
}

// mostSignificantToken picks the longest non-particle, non-initial token,
// a simple proxy for "the token that most identifies this name" absent a
// more elaborate surname/forename model.
func mostSignificantToken(tokens []string) string {
	best := ""
	for _, tok := range tokens {
		if dictionary.IsParticle(tok) || names.IsInitial(tok) {
			continue
		}
		if len(tok) > len(best) {
			best = tok
		}
	}
	return best
}

// clickConsonants are digraphs/trigraphs that mark several Southern
// African languages (Xhosa, Zulu) and are a strong structural signal on
// their own, independent of any single dictionary entry.
var clickConsonants = []string{"xh", "qh", "gc", "nc", "nq", "nx", "hl", "tsh"}

// linguisticMarker reports the first recognized linguistic cue found
// across a name's tokens: either a click-consonant sequence or a
// recognized particle, per the decision procedure's "linguistic markers"
// rule.
func linguisticMarker(tokens []string) (string, bool) {
	for _, tok := range tokens {
		for _, marker := range clickConsonants {
			if containsAt(tok, marker) {
				return marker, true
			}
		}
	}
	for _, tok := range tokens {
		if dictionary.IsParticle(tok) {
			return tok, true
		}
	}
	return "", false
}

func containsAt(haystack, needle string) bool {
	if len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
