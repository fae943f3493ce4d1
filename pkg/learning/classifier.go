package learning

import (
	"context"
	"strings"

	"github.com/hjonck/leadscout/internal/log"
	"github.com/hjonck/leadscout/pkg/classify"
	"github.com/hjonck/leadscout/pkg/phonetic"
	"go.uber.org/zap"
)

var _ classify.Classifier = (*LearnedClassifier)(nil)

// LearnedClassifier adapts a Store into a cascade stage: it tries an exact
// cache hit first, then active learned patterns, so a name the Learning
// Store has already resolved never reaches the LLM Adapter again.
type LearnedClassifier struct {
	store *Store
}

// NewLearnedClassifier wraps store as a Classifier for use in a Pipeline.
func NewLearnedClassifier(store *Store) *LearnedClassifier {
	return &LearnedClassifier{store: store}
}

// TryClassify implements classify.Classifier. A lookup error downgrades to
// "no opinion" rather than aborting the cascade, so a transient storage
// error never blocks a name from reaching later stages.
func (c *LearnedClassifier) TryClassify(ctx context.Context, in classify.Input) (*classify.Classification, error) {
	if result, ok, err := c.store.LookupExact(ctx, in.Name.Normalized); err != nil {
		log.Warn("learning store exact lookup failed, falling through", zap.Error(err))
	} else if ok {
		return result, nil
	}

	if result, ok, err := c.store.LookupPatterns(ctx, in); err != nil {
		log.Warn("learning store pattern lookup failed, falling through", zap.Error(err))
	} else if ok {
		return result, nil
	}

	return nil, nil
}

// minPhoneticNameLength is the smallest compact (space-stripped) name the
// Phonetic Matcher will attempt; single-character input never carries
// enough phonetic signal to classify.
const minPhoneticNameLength = 2

// requiredAgreement is the minimum number of algorithms (of
// phonetic.NumAlgorithms) that must agree between the query name and a
// family's representative names before that family is a candidate.
const requiredAgreement = 2

// phoneticConfidenceCap is the ceiling a family's own confidence is capped
// to before any compound-match boost is applied.
const phoneticConfidenceCap = 0.80

// compoundMatchBoost is added when the query name agrees with a
// representative on every algorithm, not just the required minimum.
const compoundMatchBoost = 0.10

// minPhoneticConfidenceFloor matches classify.NewClassification's lower
// bound for MethodPhonetic; a family whose own confidence sits below it
// is floored rather than rejected, since it still cleared the agreement
// threshold above.
const minPhoneticConfidenceFloor = 0.5

var _ classify.Classifier = (*PhoneticClassifier)(nil)

// PhoneticClassifier adapts a Store's phonetic_families table into a
// cascade stage: classify by proximity to a cluster of previously
// confirmed names sharing a phonetic family key, rather than by any single
// exact or rule-based match.
type PhoneticClassifier struct {
	store *Store
}

// NewPhoneticClassifier wraps store as a Classifier for use in a Pipeline.
func NewPhoneticClassifier(store *Store) *PhoneticClassifier {
	return &PhoneticClassifier{store: store}
}

// TryClassify implements classify.Classifier. It computes the family key
// for in.Codes, looks up every ethnicity cluster sharing that key, and
// picks the cluster with the highest member_count weighted by how well the
// query agrees with that cluster's representative names. Ties break by
// larger member_count, then by lexicographically smaller family key.
func (c *PhoneticClassifier) TryClassify(ctx context.Context, in classify.Input) (*classify.Classification, error) {
	if in.Codes.Empty() {
		return nil, nil
	}
	if len(strings.ReplaceAll(in.Name.Normalized, " ", "")) < minPhoneticNameLength {
		return nil, nil
	}

	key := phonetic.FamilyKey(in.Codes)
	candidates, err := c.store.FamiliesByKey(ctx, key)
	if err != nil {
		log.Warn("phonetic family lookup failed, falling through", zap.Error(err))
		return nil, nil
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	var best PhoneticFamily
	var bestAgreement int
	var bestScore float64
	found := false

	for _, fam := range candidates {
		agreement := bestAgreementFor(in.Codes, fam.RepresentativeNames)
		if agreement < requiredAgreement {
			continue
		}
		score := float64(fam.MemberCount) * (float64(agreement) / float64(phonetic.NumAlgorithms))
		switch {
		case !found:
		case score > bestScore:
		case score == bestScore && fam.MemberCount > best.MemberCount:
		case score == bestScore && fam.MemberCount == best.MemberCount && fam.FamilyKey < best.FamilyKey:
		default:
			continue
		}
		best, bestAgreement, bestScore, found = fam, agreement, score, true
	}
	if !found {
		return nil, nil
	}

	confidence := best.Confidence
	if confidence > phoneticConfidenceCap {
		confidence = phoneticConfidenceCap
	}
	if bestAgreement == phonetic.NumAlgorithms {
		confidence += compoundMatchBoost
	}
	if confidence < minPhoneticConfidenceFloor {
		confidence = minPhoneticConfidenceFloor
	}

	result, err := classify.NewClassification(in.Name, best.Ethnicity, confidence, classify.MethodPhonetic, 0)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// bestAgreementFor recomputes phonetic codes for each representative
// original name and returns the highest algorithm agreement against
// codes, so a family's match strength reflects its closest member rather
// than a blended average.
func bestAgreementFor(codes phonetic.Code, representativeNames string) int {
	best := 0
	for _, name := range strings.Split(representativeNames, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if a := phonetic.Agreement(codes, phonetic.Codes(name)); a > best {
			best = a
		}
	}
	return best
}
