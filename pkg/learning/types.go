package learning

import "github.com/hjonck/leadscout/pkg/classify"

// PatternType is the closed set of pattern shapes the Pattern Extractor
// can derive from a verified LLM classification.
type PatternType string

const (
	PatternPrefix2          PatternType = "prefix2"
	PatternPrefix3          PatternType = "prefix3"
	PatternSuffix2          PatternType = "suffix2"
	PatternSuffix3          PatternType = "suffix3"
	PatternPhoneticFamily   PatternType = "phonetic_family"
	PatternLinguisticMarker PatternType = "linguistic_marker"
	PatternCompoundSurname  PatternType = "compound_surname"
)

// LearnedPattern is a reusable rule auto-derived from verified
// classifications. It is never deleted, only deactivated when its
// success rate falls below the accuracy policy threshold.
type LearnedPattern struct {
	ID              string
	PatternType     PatternType
	PatternValue    string
	TargetEthnicity classify.Ethnicity
	Confidence      float64
	EvidenceCount   int
	SuccessCount    int
	FailureCount    int
	Active          bool
	CreatedAt       int64
	UpdatedAt       int64
}

// ApplicationsCount is success_count + failure_count.
func (p LearnedPattern) ApplicationsCount() int {
	return p.SuccessCount + p.FailureCount
}

// SuccessRate is success_count / max(1, applications_count).
func (p LearnedPattern) SuccessRate() float64 {
	applications := p.ApplicationsCount()
	if applications < 1 {
		applications = 1
	}
	return float64(p.SuccessCount) / float64(applications)
}

// ShouldDeactivate reports the accuracy-policy invariant: a pattern with
// success_rate < 0.5 and applications_count >= 20 is automatically
// deactivated.
func (p LearnedPattern) ShouldDeactivate() bool {
	return p.ApplicationsCount() >= 20 && p.SuccessRate() < 0.5
}

// PhoneticFamily is one (family_key, ethnicity) cluster accumulated from
// verified classifications: how many names have landed in this family for
// this ethnicity, the confidence that should carry to a new match, and a
// bounded set of representative original names used to measure
// algorithm-level agreement against a fresh query name.
type PhoneticFamily struct {
	FamilyKey           string
	Ethnicity           classify.Ethnicity
	MemberCount         int
	Confidence          float64
	RepresentativeNames string
	UpdatedAt           int64
}

// LLMRecord is an append-only record of a verified LLM classification,
// the raw material the Pattern Extractor consumes.
type LLMRecord struct {
	Name               string
	NormalizedName     string
	Ethnicity          classify.Ethnicity
	Confidence         float64
	Provider           string
	Cost               float64
	LatencyMS          int64
	PhoneticCodes      string
	StructuralFeatures string
	SessionID          string
	Timestamp          int64
	EvidenceCount      int
}
