package learning_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hjonck/leadscout/pkg/classify"
	"github.com/hjonck/leadscout/pkg/learning"
)

func TestUpsertFamilyThenFamiliesByKey(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertFamily(ctx, "SND1|NYS1", classify.African, "thabo nkosi", 0.75))
	families, err := store.FamiliesByKey(ctx, "SND1|NYS1")
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, classify.African, families[0].Ethnicity)
	assert.Equal(t, 1, families[0].MemberCount)
	assert.Equal(t, 0.75, families[0].Confidence)
	assert.Contains(t, families[0].RepresentativeNames, "thabo nkosi")
}

func TestUpsertFamilyMergeAveragesConfidenceAndGrowsMemberCount(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertFamily(ctx, "SND2|NYS2", classify.Indian, "priya govender", 0.8))
	require.NoError(t, store.UpsertFamily(ctx, "SND2|NYS2", classify.Indian, "priya pillay", 0.6))

	families, err := store.FamiliesByKey(ctx, "SND2|NYS2")
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, 2, families[0].MemberCount)
	assert.Equal(t, 0.7, families[0].Confidence)
	assert.Contains(t, families[0].RepresentativeNames, "priya govender")
	assert.Contains(t, families[0].RepresentativeNames, "priya pillay")
}

func TestFamiliesByKeyReturnsEveryEthnicityCluster(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertFamily(ctx, "SND3|NYS3", classify.White, "jan van der merwe", 0.7))
	require.NoError(t, store.UpsertFamily(ctx, "SND3|NYS3", classify.CapeMalay, "jan abrahams", 0.65))

	families, err := store.FamiliesByKey(ctx, "SND3|NYS3")
	require.NoError(t, err)
	require.Len(t, families, 2)
}

func TestExemplarsHonorsLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	in := mustName(t, "Sipho Dlamini")

	record := func(name string, eth classify.Ethnicity, confidence float64) {
		n := mustName(t, name)
		result, err := classify.NewClassification(n.Name, eth, confidence, classify.MethodLLM, 0)
		require.NoError(t, err)
		require.NoError(t, store.RecordLLMResult(ctx, n, result))
	}
	record("Sipho Dlamini", classify.African, 0.9)
	record("Jan van der Merwe", classify.White, 0.85)
	record("Priya Govender", classify.Indian, 0.8)

	exemplars, err := store.Exemplars(ctx, in, 2)
	require.NoError(t, err)
	assert.Len(t, exemplars, 2, "limit must bound the returned exemplar count")
}
