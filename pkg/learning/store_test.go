package learning_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hjonck/leadscout/pkg/classify"
	"github.com/hjonck/leadscout/pkg/learning"
	"github.com/hjonck/leadscout/pkg/names"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *learning.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "learning.db")
	store, err := learning.Open(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustName(t *testing.T, raw string) classify.Input {
	t.Helper()
	n, err := names.Normalize(raw)
	require.NoError(t, err)
	return classify.Input{Name: n}
}

func TestLookupExactMissReturnsFalse(t *testing.T) {
	store := openTestStore(t)
	_, ok, err := store.LookupExact(context.Background(), "nobody here")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordLLMResultThenLookupExact(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	in := mustName(t, "Xiluva Rirhandzu")

	result, err := classify.NewClassification(in.Name, classify.African, 0.85, classify.MethodLLM, 0)
	require.NoError(t, err)
	require.NoError(t, store.RecordLLMResult(ctx, in, result))

	got, ok, err := store.LookupExact(ctx, in.Name.Normalized)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, classify.African, got.Ethnicity)
	assert.Equal(t, classify.MethodCache, got.Method)
	assert.Equal(t, 0.85, got.Confidence)
}

func TestRecordLLMResultKeepsHigherConfidence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	in := mustName(t, "Keagan Visser")

	low, err := classify.NewClassification(in.Name, classify.White, 0.6, classify.MethodLLM, 0)
	require.NoError(t, err)
	high, err := classify.NewClassification(in.Name, classify.White, 0.9, classify.MethodLLM, 0)
	require.NoError(t, err)

	require.NoError(t, store.RecordLLMResult(ctx, in, high))
	require.NoError(t, store.RecordLLMResult(ctx, in, low))

	got, ok, err := store.LookupExact(ctx, in.Name.Normalized)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.9, got.Confidence, "lower-confidence duplicate must not overwrite the higher one")
}

func TestUpsertPatternThenLookupPatterns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertPattern(ctx, learning.LearnedPattern{
		PatternType:     learning.PatternPrefix2,
		PatternValue:    "xi",
		TargetEthnicity: classify.African,
		Confidence:      0.8,
	}))

	in := mustName(t, "Xiluva Rirhandzu")
	got, ok, err := store.LookupPatterns(ctx, in)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, classify.African, got.Ethnicity)
	assert.Equal(t, classify.MethodLearned, got.Method)
}

func TestUpsertPatternMergeIncrementsEvidence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := learning.LearnedPattern{
		PatternType:     learning.PatternSuffix2,
		PatternValue:    "lo",
		TargetEthnicity: classify.African,
		Confidence:      0.7,
	}
	require.NoError(t, store.UpsertPattern(ctx, base))
	require.NoError(t, store.UpsertPattern(ctx, base))

	in := mustName(t, "Kamalo")
	got, ok, err := store.LookupPatterns(ctx, in)
	require.NoError(t, err)
	require.True(t, ok)
	assert.GreaterOrEqual(t, got.Confidence, 0.7)
}

func TestRecordApplicationDeactivatesBelowThreshold(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	pattern := learning.LearnedPattern{
		ID:              "fixed-pattern-id",
		PatternType:     learning.PatternPrefix3,
		PatternValue:    "zzz",
		TargetEthnicity: classify.Coloured,
		Confidence:      0.75,
	}
	require.NoError(t, store.UpsertPattern(ctx, pattern))

	for i := 0; i < 9; i++ {
		require.NoError(t, store.RecordApplication(ctx, pattern.ID, true))
	}
	for i := 0; i < 12; i++ {
		require.NoError(t, store.RecordApplication(ctx, pattern.ID, false))
	}

	// 9 successes / 21 applications < 0.5 and applications >= 20: the
	// pattern must now be deactivated and no longer surfaced by lookups.
	in := mustName(t, "Zzzabc")
	_, ok, err := store.LookupPatterns(ctx, in)
	require.NoError(t, err)
	assert.False(t, ok)
}
