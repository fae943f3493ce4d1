// Package dictionary implements the curated token → ethnicity lookup that
// backs the Classifier Pipeline's rule-based stage: classify_token for raw
// O(1) lookups, and classify_name for the full decision procedure that
// handles particles, compound surnames, and initials.
package dictionary

import (
	"context"
	"embed"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"sync"

	"github.com/hjonck/leadscout/pkg/classify"
	"github.com/hjonck/leadscout/pkg/names"
)

//go:embed data/*.csv
var seedData embed.FS

// Entry is a curated mapping from a lowercased name token to an ethnicity
// with a dictionary-local confidence weight (a prior, not a Confidence in
// the classify package's sense).
type Entry struct {
	Token     string
	Ethnicity classify.Ethnicity
	Weight    float64
}

// particleFamily describes the ethnicity a recognized particle or ordered
// particle sequence (e.g. "van der") is associated with, for the
// compound-particle fallback rule.
type particleFamily struct {
	sequence  []string
	ethnicity classify.Ethnicity
	weight    float64
}

// highWeightThreshold is the dictionary weight above which a significant
// token's classification is trusted enough to drive a rule-based result.
const highWeightThreshold = 0.7

// maxTokenCount is the structural length limit from the decision
// procedure: names longer than this are rejected unless a compound
// particle pattern is recognized.
const maxTokenCount = 6

// particleSet is the set of tokens treated as low-weight connective
// particles rather than significant surname/forename tokens.
var particleSet = map[string]bool{
	"van": true, "der": true, "de": true, "du": true, "le": true, "von": true,
}

// Store is an immutable, in-memory dictionary loaded once at process
// start. It is safe for concurrent reads from any number of goroutines
// since nothing mutates it after Load returns.
type Store struct {
	tokens    map[string]Entry
	particles []particleFamily
}

var (
	loadOnce   sync.Once
	loadResult *Store
	loadErr    error
)

// Load parses the embedded seed CSVs exactly once per process and returns
// the shared Store; subsequent calls return the same instance. Callers
// should obtain the Store once at startup and pass it down explicitly
// rather than reaching for a package-level singleton from business logic.
func Load() (*Store, error) {
	loadOnce.Do(func() {
		loadResult, loadErr = loadFromFS(seedData)
	})
	return loadResult, loadErr
}

func loadFromFS(fsys fs.FS) (*Store, error) {
	tokens, err := loadTokens(fsys)
	if err != nil {
		return nil, err
	}
	particles, err := loadParticles(fsys)
	if err != nil {
		return nil, err
	}
	return &Store{tokens: tokens, particles: particles}, nil
}

func loadTokens(fsys fs.FS) (map[string]Entry, error) {
	f, err := fsys.Open("data/tokens.csv")
	if err != nil {
		return nil, fmt.Errorf("dictionary: opening tokens seed: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := readAllSkippingHeader(r)
	if err != nil {
		return nil, fmt.Errorf("dictionary: parsing tokens seed: %w", err)
	}

	out := make(map[string]Entry, len(records))
	for _, rec := range records {
		if len(rec) != 3 {
			return nil, fmt.Errorf("dictionary: malformed tokens row %v", rec)
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("dictionary: invalid weight in row %v: %w", rec, err)
		}
		token := strings.ToLower(strings.TrimSpace(rec[0]))
		out[token] = Entry{
			Token:     token,
			Ethnicity: classify.Ethnicity(strings.TrimSpace(rec[1])),
			Weight:    weight,
		}
	}
	return out, nil
}

func loadParticles(fsys fs.FS) ([]particleFamily, error) {
	f, err := fsys.Open("data/particles.csv")
	if err != nil {
		return nil, fmt.Errorf("dictionary: opening particles seed: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := readAllSkippingHeader(r)
	if err != nil {
		return nil, fmt.Errorf("dictionary: parsing particles seed: %w", err)
	}

	out := make([]particleFamily, 0, len(records))
	for _, rec := range records {
		if len(rec) != 3 {
			return nil, fmt.Errorf("dictionary: malformed particles row %v", rec)
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("dictionary: invalid weight in row %v: %w", rec, err)
		}
		seq := strings.Fields(strings.ToLower(strings.TrimSpace(rec[0])))
		out = append(out, particleFamily{
			sequence:  seq,
			ethnicity: classify.Ethnicity(strings.TrimSpace(rec[1])),
			weight:    weight,
		})
	}
	return out, nil
}

func readAllSkippingHeader(r *csv.Reader) ([][]string, error) {
	var out [][]string
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// ClassifyToken performs an O(1) lookup of a single lowercased token.
func (s *Store) ClassifyToken(token string) (Entry, bool) {
	e, ok := s.tokens[strings.ToLower(token)]
	return e, ok
}

var _ classify.Classifier = (*RuleClassifier)(nil)

// RuleClassifier adapts a Store into the cascade's first stage,
// implementing the full classify_name decision procedure: particle and
// initial handling, compound-surname recognition, and confidence tiering
// by significant-token agreement.
type RuleClassifier struct {
	store *Store
}

// NewRuleClassifier wraps store as a Classifier for use in a Pipeline.
func NewRuleClassifier(store *Store) *RuleClassifier {
	return &RuleClassifier{store: store}
}

// TryClassify implements classify.Classifier.
func (c *RuleClassifier) TryClassify(_ context.Context, in classify.Input) (*classify.Classification, error) {
	return c.store.classifyName(in.Name)
}

// classifyName runs the decision procedure described in the data model:
// tokenize, categorize into significant/particle/initial, recognize
// compound surnames, classify by significant-token agreement, and fall
// back to a particle-family match at reduced confidence. Returns (nil,
// nil) when no rule applies, so the cascade can fall through.
func (s *Store) classifyName(n names.Normalized) (*classify.Classification, error) {
	tokens := names.Tokens(n.Normalized)
	if len(tokens) == 0 {
		return nil, nil
	}

	particleRun, anchorIdx := DetectCompoundRun(tokens)
	compound := len(particleRun) > 0

	if len(tokens) > maxTokenCount && !compound {
		return nil, nil
	}

	type hit struct {
		idx   int
		entry Entry
	}
	var significantHits []hit
	significantCount := 0

	for i, tok := range tokens {
		if particleSet[tok] || names.IsInitial(tok) {
			continue
		}
		significantCount++
		if e, ok := s.tokens[tok]; ok && e.Weight >= highWeightThreshold {
			significantHits = append(significantHits, hit{idx: i, entry: e})
		}
	}

	if len(significantHits) > 0 {
		counts := map[classify.Ethnicity]int{}
		for _, h := range significantHits {
			counts[h.entry.Ethnicity]++
		}
		majorityEth, majorityCount := majority(counts)

		if majorityCount == len(significantHits) {
			return classificationPtr(n, majorityEth, confidenceForAgreement(len(significantHits), len(significantHits)), classify.MethodRuleBased)
		}
		if majorityCount*2 > len(significantHits) {
			return classificationPtr(n, majorityEth, confidenceForAgreement(majorityCount, len(significantHits)), classify.MethodRuleBased)
		}
		// No majority: defer to the surname anchor if the decision
		// procedure recognized one and it was among the classified hits.
		if compound {
			for _, h := range significantHits {
				if h.idx == anchorIdx {
					return classificationPtr(n, h.entry.Ethnicity, confidenceForAgreement(1, len(significantHits)), classify.MethodRuleBased)
				}
			}
		}
		// Genuinely ambiguous: do not guess. Fall through to later cascade
		// stages rather than asserting Unknown here.
		return nil, nil
	}

	if compound {
		if fam := s.particleFamilyFor(particleRun); fam != nil {
			return classificationPtr(n, fam.ethnicity, 0.70, classify.MethodCompoundPattern)
		}
	}

	return nil, nil
}

// IsParticle reports whether token is a recognized low-weight connective
// particle (e.g. "van", "der", "du", "le", "von", "de") rather than a
// significant name token.
func IsParticle(token string) bool {
	return particleSet[token]
}

// DetectCompoundRun looks for a contiguous run of particle tokens
// immediately followed by a significant token, returning the particle run
// and the index of that following token (the surname anchor). Exposed at
// package level so the Pattern Extractor can reuse the same detection the
// rule-based stage uses when deciding whether a compound_surname pattern
// applies.
func DetectCompoundRun(tokens []string) (run []string, anchorIdx int) {
	for i := 0; i < len(tokens); i++ {
		if !particleSet[tokens[i]] {
			continue
		}
		j := i
		for j < len(tokens) && particleSet[tokens[j]] {
			j++
		}
		if j < len(tokens) && !names.IsInitial(tokens[j]) {
			return tokens[i:j], j
		}
		i = j
	}
	return nil, -1
}

// particleFamilyFor finds the longest matching configured particle
// sequence that is a prefix of run, preferring longer (more specific)
// matches, e.g. "van der" over "van".
func (s *Store) particleFamilyFor(run []string) *particleFamily {
	var best *particleFamily
	for i := range s.particles {
		fam := &s.particles[i]
		if len(fam.sequence) > len(run) {
			continue
		}
		match := true
		for k, tok := range fam.sequence {
			if run[k] != tok {
				match = false
				break
			}
		}
		if match && (best == nil || len(fam.sequence) > len(best.sequence)) {
			best = fam
		}
	}
	return best
}

func majority(counts map[classify.Ethnicity]int) (classify.Ethnicity, int) {
	var best classify.Ethnicity
	bestN := 0
	for eth, n := range counts {
		if n > bestN {
			best, bestN = eth, n
		}
	}
	return best, bestN
}

// confidenceForAgreement maps "how many significant tokens agree out of
// how many were classified" to the 0.85-0.95 tier from the decision
// procedure.
func confidenceForAgreement(agree, total int) float64 {
	switch {
	case total <= 1:
		return 0.85
	case agree == total:
		return 0.95
	default:
		return 0.90
	}
}

func classificationPtr(n names.Normalized, eth classify.Ethnicity, confidence float64, method classify.Method) (*classify.Classification, error) {
	c, err := classify.NewClassification(n, eth, confidence, method, 0)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
