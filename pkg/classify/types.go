// Package classify defines the shared classification types and the
// cascade Pipeline that runs Rule, Phonetic, Learning, and LLM
// classifiers in a fixed order over a name.
package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/hjonck/leadscout/pkg/names"
	"github.com/hjonck/leadscout/pkg/phonetic"
)

// Ethnicity is the closed set of broad demographic clusters a name can be
// classified into. unknown is reserved for unclassifiable input and must
// never be produced from a low-confidence signal alone.
type Ethnicity string

const (
	African   Ethnicity = "african"
	White     Ethnicity = "white"
	Indian    Ethnicity = "indian"
	CapeMalay Ethnicity = "cape_malay"
	Coloured  Ethnicity = "coloured"
	Chinese   Ethnicity = "chinese"
	Unknown   Ethnicity = "unknown"
)

// Valid reports whether e is one of the closed enumeration members.
func (e Ethnicity) Valid() bool {
	switch e {
	case African, White, Indian, CapeMalay, Coloured, Chinese, Unknown:
		return true
	}
	return false
}

// Method records which layer of the cascade produced a Classification.
type Method string

const (
	MethodRuleBased       Method = "rule_based"
	MethodPhonetic        Method = "phonetic"
	MethodLearned         Method = "learned"
	MethodLLM             Method = "llm"
	MethodCache           Method = "cache"
	MethodCompoundPattern Method = "compound_pattern"
)

// Confidence bounds for each Method, enforced by NewClassification.
const (
	minRuleBasedConfidence = 0.8
	minPhoneticConfidence  = 0.5
	maxPhoneticConfidence  = 0.95
	minLearnedConfidence   = 0.6
	maxLearnedConfidence   = 0.95
	maxLLMConfidence       = 0.99
)

// Classification is the immutable result of classifying one name.
type Classification struct {
	OriginalName   string
	NormalizedName string
	Ethnicity      Ethnicity
	Confidence     float64
	Method         Method
	ProcessingMS   int64
	Provider       string // empty unless Method == MethodLLM
	Cost           float64
}

// NewClassification validates the per-method confidence invariants from
// the data model before constructing a Classification: rule_based >= 0.8,
// phonetic in [0.5, 0.95], learned in [0.6, 0.95], llm <= 0.99.
func NewClassification(n names.Normalized, eth Ethnicity, confidence float64, method Method, elapsed time.Duration) (Classification, error) {
	if !eth.Valid() {
		return Classification{}, fmt.Errorf("classify: invalid ethnicity %q", eth)
	}
	if confidence < 0 || confidence > 1 {
		return Classification{}, fmt.Errorf("classify: confidence %v out of [0,1]", confidence)
	}
	switch method {
	case MethodRuleBased:
		if confidence < minRuleBasedConfidence {
			return Classification{}, fmt.Errorf("classify: rule_based confidence %v below %v", confidence, minRuleBasedConfidence)
		}
	case MethodPhonetic:
		if confidence < minPhoneticConfidence || confidence > maxPhoneticConfidence {
			return Classification{}, fmt.Errorf("classify: phonetic confidence %v outside [%v,%v]", confidence, minPhoneticConfidence, maxPhoneticConfidence)
		}
	case MethodLearned, MethodCompoundPattern:
		if confidence < minLearnedConfidence || confidence > maxLearnedConfidence {
			return Classification{}, fmt.Errorf("classify: learned confidence %v outside [%v,%v]", confidence, minLearnedConfidence, maxLearnedConfidence)
		}
	case MethodLLM:
		if confidence > maxLLMConfidence {
			return Classification{}, fmt.Errorf("classify: llm confidence %v above %v", confidence, maxLLMConfidence)
		}
	case MethodCache:
		// cache replays whatever confidence the original record carried.
	default:
		return Classification{}, fmt.Errorf("classify: unknown method %q", method)
	}

	return Classification{
		OriginalName:   n.Original,
		NormalizedName: n.Normalized,
		Ethnicity:      eth,
		Confidence:     confidence,
		Method:         method,
		ProcessingMS:   elapsed.Milliseconds(),
	}, nil
}

// Input bundles everything a Classifier needs: the normalized name plus
// its precomputed phonetic codes, so the cascade only pays for phonetic
// coding once per name rather than once per classifier.
type Input struct {
	Name  names.Normalized
	Codes phonetic.Code
}

// Classifier is the single-method contract every cascade stage
// implements, deliberately narrow to avoid an open inheritance hierarchy.
type Classifier interface {
	// TryClassify attempts to classify in. It returns (nil, nil) when this
	// classifier has no opinion, so the Pipeline can fall through to the
	// next stage; a non-nil error aborts the cascade.
	TryClassify(ctx context.Context, in Input) (*Classification, error)
}
