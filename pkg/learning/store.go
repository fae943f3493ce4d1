// Package learning implements the durable Learning Store: a SQLite-backed
// cache of verified LLM classifications and the patterns auto-derived
// from them, consulted by the Classifier Pipeline before any LLM call is
// made.
package learning

import (
	"context"
	"hash/fnv"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/hjonck/leadscout/internal/log"
	"github.com/hjonck/leadscout/internal/migrate"
	_ "github.com/hjonck/leadscout/internal/sqlitedriver" // registers "sqlite3" driver
	"github.com/hjonck/leadscout/pkg/classify"
	"github.com/hjonck/leadscout/pkg/llmadapter"
	"github.com/hjonck/leadscout/pkg/observability"
	"github.com/hjonck/leadscout/pkg/phonetic"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

func migrationsFS() fs.FS {
	return embeddedMigrations
}

// lookupThreshold is the default minimum confidence x success_rate for a
// learned pattern to be returned by LookupPatterns.
const lookupThreshold = 0.6

// patternConfidenceCap is the ceiling every pattern confidence update is
// clamped to, regardless of accumulated evidence.
const patternConfidenceCap = 0.95

// patternConfidenceK is the small constant controlling how fast pattern
// confidence grows with additional evidence: min(0.95, base + k*log(n+1)).
const patternConfidenceK = 0.05

// stripeCount is the number of mutex stripes guarding per-key writes.
// Picking a key's stripe by hashing means unrelated keys essentially
// never contend, while the same key always serializes against itself.
const stripeCount = 64

// Store is the SQLite-backed Learning Store. It is safe for concurrent
// use: reads go straight to SQLite (which serializes internally), and
// writes for the same key are serialized by a striped mutex keyed on
// normalized_name or pattern key.
type Store struct {
	db      *sql.DB
	tracer  observability.Tracer
	stripes [stripeCount]sync.Mutex
}

// Open opens (creating if necessary) the learning database at path,
// enables WAL mode, and applies any pending migrations.
func Open(ctx context.Context, path string, tracer observability.Tracer) (*Store, error) {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("learning: opening database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("learning: enabling WAL: %w", err)
	}

	migrator, err := migrate.New(db, tracer, migrationsFS())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("learning: building migrator: %w", err)
	}
	if err := migrator.MigrateUp(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("learning: migrating schema: %w", err)
	}

	return &Store{db: db, tracer: tracer}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) stripeFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.stripes[h.Sum32()%stripeCount]
}

// LookupExact implements classify.PatternLookup: an O(index) direct cache
// hit against llm_classifications, returned at the original LLM
// confidence (never increased) under method cache.
func (s *Store) LookupExact(ctx context.Context, normalizedName string) (*classify.Classification, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT original_name, ethnicity, confidence
		FROM llm_classifications WHERE normalized_name = ?`, normalizedName)

	var originalName, ethnicity string
	var confidence float64
	if err := row.Scan(&originalName, &ethnicity, &confidence); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("learning: looking up %q: %w", normalizedName, err)
	}

	c := classify.Classification{
		OriginalName:   originalName,
		NormalizedName: normalizedName,
		Ethnicity:      classify.Ethnicity(ethnicity),
		Confidence:     confidence,
		Method:         classify.MethodCache,
	}
	return &c, true, nil
}

// LookupPatterns implements classify.PatternLookup: evaluates active
// patterns against the input's normalized name and phonetic codes, and
// returns the highest-confidence active pattern whose confidence x
// success_rate clears lookupThreshold. When multiple patterns agree, the
// max confidence wins rather than an average.
func (s *Store) LookupPatterns(ctx context.Context, in classify.Input) (*classify.Classification, bool, error) {
	candidates := candidateValues(in)
	if len(candidates) == 0 {
		return nil, false, nil
	}

	var best *LearnedPattern
	var bestScore float64

	for patternType, value := range candidates {
		pattern, ok, err := s.activePattern(ctx, patternType, value)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		score := pattern.Confidence * pattern.SuccessRate()
		if score < lookupThreshold {
			continue
		}
		if best == nil || pattern.Confidence > best.Confidence {
			best = &pattern
			bestScore = score
		}
	}

	if best == nil {
		return nil, false, nil
	}
	log.Debug("pattern lookup hit", zap.String("pattern_id", best.ID), zap.Float64("score", bestScore))

	c, err := classify.NewClassification(in.Name, best.TargetEthnicity, clampLearned(best.Confidence), classify.MethodLearned, 0)
	if err != nil {
		return nil, false, err
	}
	return &c, true, nil
}

func clampLearned(confidence float64) float64 {
	if confidence < 0.6 {
		return 0.6
	}
	if confidence > 0.95 {
		return 0.95
	}
	return confidence
}

// candidateValues derives the structural and phonetic pattern values
// worth checking for in: prefix2/3 and suffix2/3 of the normalized name,
// and the phonetic family key.
func candidateValues(in classify.Input) map[PatternType]string {
	out := map[PatternType]string{}
	n := in.Name.Normalized
	compact := strings.ReplaceAll(n, " ", "")
	if len(compact) >= 2 {
		out[PatternPrefix2] = compact[:2]
		out[PatternSuffix2] = compact[len(compact)-2:]
	}
	if len(compact) >= 3 {
		out[PatternPrefix3] = compact[:3]
		out[PatternSuffix3] = compact[len(compact)-3:]
	}
	if !in.Codes.Empty() {
		out[PatternPhoneticFamily] = phonetic.FamilyKey(in.Codes)
	}
	return out
}

// activePattern looks up the single highest-confidence active pattern for
// (patternType, value) across all target ethnicities.
func (s *Store) activePattern(ctx context.Context, patternType PatternType, value string) (LearnedPattern, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pattern_type, pattern_value, target_ethnicity, confidence,
		       evidence_count, success_count, failure_count, active, created_at, updated_at
		FROM learned_patterns
		WHERE pattern_type = ? AND pattern_value = ? AND active = 1
		ORDER BY confidence DESC LIMIT 1`, string(patternType), value)

	var p LearnedPattern
	var active int
	var eth, pt string
	if err := row.Scan(&p.ID, &pt, &p.PatternValue, &eth, &p.Confidence,
		&p.EvidenceCount, &p.SuccessCount, &p.FailureCount, &active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return LearnedPattern{}, false, nil
		}
		return LearnedPattern{}, false, fmt.Errorf("learning: looking up pattern %s/%s: %w", patternType, value, err)
	}
	p.PatternType = PatternType(pt)
	p.TargetEthnicity = classify.Ethnicity(eth)
	p.Active = active != 0
	return p, true, nil
}

// RecordLLMResult implements classify.ResultRecorder: an idempotent
// upsert keyed by normalized_name that retains the higher-confidence
// record and increments evidence, per LLMRecord's append-only/collapse
// invariant.
func (s *Store) RecordLLMResult(ctx context.Context, in classify.Input, result classify.Classification) error {
	mu := s.stripeFor(in.Name.Normalized)
	mu.Lock()
	defer mu.Unlock()

	now := nowUnix()
	row := s.db.QueryRowContext(ctx,
		"SELECT confidence, evidence_count FROM llm_classifications WHERE normalized_name = ?",
		in.Name.Normalized)

	var existingConfidence float64
	var evidence int
	err := row.Scan(&existingConfidence, &evidence)
	switch {
	case err == sql.ErrNoRows:
		_, execErr := s.db.ExecContext(ctx, `
			INSERT INTO llm_classifications
				(normalized_name, original_name, ethnicity, confidence, provider, cost,
				 latency_ms, phonetic_codes, structural_features, session_id, evidence_count,
				 created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			in.Name.Normalized, result.OriginalName, string(result.Ethnicity), result.Confidence,
			result.Provider, result.Cost, result.ProcessingMS, "", "", "", now, now)
		if execErr != nil {
			return fmt.Errorf("learning: inserting llm classification: %w", execErr)
		}
		return nil
	case err != nil:
		return fmt.Errorf("learning: checking existing llm classification: %w", err)
	}

	// Collapse duplicates by normalized_name, retaining the
	// higher-confidence classification per LLMRecord's invariant.
	if result.Confidence <= existingConfidence {
		_, execErr := s.db.ExecContext(ctx,
			"UPDATE llm_classifications SET evidence_count = evidence_count + 1, updated_at = ? WHERE normalized_name = ?",
			now, in.Name.Normalized)
		if execErr != nil {
			return fmt.Errorf("learning: recording evidence: %w", execErr)
		}
		return nil
	}

	_, execErr := s.db.ExecContext(ctx, `
		UPDATE llm_classifications
		SET ethnicity = ?, confidence = ?, provider = ?, cost = ?, latency_ms = ?,
		    evidence_count = evidence_count + 1, updated_at = ?
		WHERE normalized_name = ?`,
		string(result.Ethnicity), result.Confidence, result.Provider, result.Cost, result.ProcessingMS,
		now, in.Name.Normalized)
	if execErr != nil {
		return fmt.Errorf("learning: updating llm classification: %w", execErr)
	}
	return nil
}

// UpsertPattern inserts or merges a pattern by (pattern_type,
// pattern_value, target_ethnicity). On merge it increments evidence_count
// and recomputes confidence as min(0.95, base + k*log(evidence_count+1)).
func (s *Store) UpsertPattern(ctx context.Context, p LearnedPattern) error {
	key := string(p.PatternType) + "|" + p.PatternValue + "|" + string(p.TargetEthnicity)
	mu := s.stripeFor(key)
	mu.Lock()
	defer mu.Unlock()

	now := nowUnix()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, confidence, evidence_count FROM learned_patterns
		WHERE pattern_type = ? AND pattern_value = ? AND target_ethnicity = ?`,
		string(p.PatternType), p.PatternValue, string(p.TargetEthnicity))

	var id string
	var existingConfidence float64
	var evidence int
	err := row.Scan(&id, &existingConfidence, &evidence)
	if err == sql.ErrNoRows {
		if p.ID == "" {
			p.ID = newPatternID(key, now)
		}
		_, execErr := s.db.ExecContext(ctx, `
			INSERT INTO learned_patterns
				(id, pattern_type, pattern_value, target_ethnicity, confidence,
				 evidence_count, success_count, failure_count, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 1, 0, 0, 1, ?, ?)`,
			p.ID, string(p.PatternType), p.PatternValue, string(p.TargetEthnicity), p.Confidence, now, now)
		if execErr != nil {
			return fmt.Errorf("learning: inserting pattern: %w", execErr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("learning: checking existing pattern: %w", err)
	}

	newEvidence := evidence + 1
	newConfidence := recomputePatternConfidence(p.Confidence, newEvidence)
	if newConfidence < existingConfidence {
		newConfidence = existingConfidence
	}
	_, execErr := s.db.ExecContext(ctx, `
		UPDATE learned_patterns SET confidence = ?, evidence_count = ?, updated_at = ? WHERE id = ?`,
		newConfidence, newEvidence, now, id)
	if execErr != nil {
		return fmt.Errorf("learning: updating pattern: %w", execErr)
	}
	return nil
}

// recomputePatternConfidence applies min(0.95, base + k*log(evidence+1)).
func recomputePatternConfidence(base float64, evidence int) float64 {
	v := base + patternConfidenceK*math.Log(float64(evidence)+1)
	if v > patternConfidenceCap {
		return patternConfidenceCap
	}
	return v
}

// RecordApplication records a pattern's application outcome and, when the
// accuracy policy's threshold is crossed, deactivates the pattern. It
// never deletes a pattern.
func (s *Store) RecordApplication(ctx context.Context, patternID string, success bool) error {
	mu := s.stripeFor(patternID)
	mu.Lock()
	defer mu.Unlock()

	outcome := "failure"
	column := "failure_count"
	if success {
		outcome = "success"
		column = "success_count"
	}
	now := nowUnix()

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO pattern_applications (pattern_id, applied_at, outcome) VALUES (?, ?, ?)",
		patternID, now, outcome); err != nil {
		return fmt.Errorf("learning: recording application: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE learned_patterns SET %s = %s + 1, updated_at = ? WHERE id = ?", column, column),
		now, patternID); err != nil {
		return fmt.Errorf("learning: updating application counts: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT success_count, failure_count FROM learned_patterns WHERE id = ?", patternID)
	var successCount, failureCount int
	if err := row.Scan(&successCount, &failureCount); err != nil {
		return fmt.Errorf("learning: reloading pattern counts: %w", err)
	}
	p := LearnedPattern{SuccessCount: successCount, FailureCount: failureCount}
	if p.ShouldDeactivate() {
		if _, err := s.db.ExecContext(ctx,
			"UPDATE learned_patterns SET active = 0 WHERE id = ?", patternID); err != nil {
			return fmt.Errorf("learning: deactivating pattern: %w", err)
		}
		log.Info("deactivated learned pattern below accuracy threshold",
			zap.String("pattern_id", patternID), zap.Float64("success_rate", p.SuccessRate()))
	}
	return nil
}

var _ llmadapter.ExemplarSource = (*Store)(nil)

// Exemplars implements llmadapter.ExemplarSource: the single
// highest-confidence cached classification per ethnicity, giving the LLM
// Adapter a small, diverse few-shot sample rather than a batch of
// near-duplicate names from one cluster.
func (s *Store) Exemplars(ctx context.Context, in classify.Input, limit int) ([]llmadapter.Exemplar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT original_name, ethnicity, MAX(confidence)
		FROM llm_classifications
		WHERE ethnicity != ?
		GROUP BY ethnicity
		ORDER BY 3 DESC
		LIMIT ?`, string(classify.Unknown), limit)
	if err != nil {
		return nil, fmt.Errorf("learning: selecting exemplars: %w", err)
	}
	defer rows.Close()

	var out []llmadapter.Exemplar
	for rows.Next() {
		var name, eth string
		var confidence float64
		if err := rows.Scan(&name, &eth, &confidence); err != nil {
			return nil, fmt.Errorf("learning: scanning exemplar: %w", err)
		}
		out = append(out, llmadapter.Exemplar{Name: name, Ethnicity: classify.Ethnicity(eth)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("learning: iterating exemplars: %w", err)
	}
	return out, nil
}

// maxRepresentativeNames bounds how many original names are retained per
// family so the column never grows unbounded across a long-running store.
const maxRepresentativeNames = 8

// FamiliesByKey returns every ethnicity cluster sharing family_key, the
// candidate set the Phonetic Matcher chooses among.
func (s *Store) FamiliesByKey(ctx context.Context, familyKey string) ([]PhoneticFamily, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT family_key, ethnicity, member_count, confidence, representative_names, updated_at
		FROM phonetic_families WHERE family_key = ?`, familyKey)
	if err != nil {
		return nil, fmt.Errorf("learning: looking up phonetic families %q: %w", familyKey, err)
	}
	defer rows.Close()

	var out []PhoneticFamily
	for rows.Next() {
		var f PhoneticFamily
		var eth string
		if err := rows.Scan(&f.FamilyKey, &eth, &f.MemberCount, &f.Confidence, &f.RepresentativeNames, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("learning: scanning phonetic family: %w", err)
		}
		f.Ethnicity = classify.Ethnicity(eth)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("learning: iterating phonetic families: %w", err)
	}
	return out, nil
}

// UpsertFamily inserts or merges a (family_key, ethnicity) cluster: member
// count increments, confidence is the running average across members, and
// representativeName is folded into the bounded representative set.
func (s *Store) UpsertFamily(ctx context.Context, familyKey string, ethnicity classify.Ethnicity, representativeName string, confidence float64) error {
	key := familyKey + "|" + string(ethnicity)
	mu := s.stripeFor(key)
	mu.Lock()
	defer mu.Unlock()

	now := nowUnix()
	row := s.db.QueryRowContext(ctx,
		"SELECT member_count, confidence, representative_names FROM phonetic_families WHERE family_key = ? AND ethnicity = ?",
		familyKey, string(ethnicity))

	var memberCount int
	var existingConfidence float64
	var representativeNames string
	err := row.Scan(&memberCount, &existingConfidence, &representativeNames)
	switch {
	case err == sql.ErrNoRows:
		_, execErr := s.db.ExecContext(ctx, `
			INSERT INTO phonetic_families
				(family_key, ethnicity, member_count, confidence, representative_names, updated_at)
			VALUES (?, ?, 1, ?, ?, ?)`,
			familyKey, string(ethnicity), confidence, addRepresentativeName("", representativeName), now)
		if execErr != nil {
			return fmt.Errorf("learning: inserting phonetic family: %w", execErr)
		}
		return nil
	case err != nil:
		return fmt.Errorf("learning: checking existing phonetic family: %w", err)
	}

	newCount := memberCount + 1
	newConfidence := (existingConfidence*float64(memberCount) + confidence) / float64(newCount)
	names := addRepresentativeName(representativeNames, representativeName)
	_, execErr := s.db.ExecContext(ctx, `
		UPDATE phonetic_families SET member_count = ?, confidence = ?, representative_names = ?, updated_at = ?
		WHERE family_key = ? AND ethnicity = ?`,
		newCount, newConfidence, names, now, familyKey, string(ethnicity))
	if execErr != nil {
		return fmt.Errorf("learning: updating phonetic family: %w", execErr)
	}
	return nil
}

// addRepresentativeName appends name to a comma-joined set, de-duplicating
// and keeping only the most recent maxRepresentativeNames entries.
func addRepresentativeName(existing, name string) string {
	if name == "" {
		return existing
	}
	var names []string
	if existing != "" {
		names = strings.Split(existing, ",")
	}
	for _, n := range names {
		if n == name {
			return existing
		}
	}
	names = append(names, name)
	if len(names) > maxRepresentativeNames {
		names = names[len(names)-maxRepresentativeNames:]
	}
	return strings.Join(names, ",")
}

func newPatternID(key string, now int64) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return fmt.Sprintf("%x-%d", h.Sum64(), now)
}

func nowUnix() int64 {
	return time.Now().Unix()
}
