package llmadapter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hjonck/leadscout/pkg/classify"
	"github.com/hjonck/leadscout/pkg/llmadapter"
	"github.com/hjonck/leadscout/pkg/names"
	"github.com/hjonck/leadscout/pkg/ratelimit"
)

type fakeProvider struct {
	name       string
	result     *classify.Classification
	err        error
	lastReq    llmadapter.Request
	callsCount int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Classify(_ context.Context, req llmadapter.Request) (*classify.Classification, error) {
	f.callsCount++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeExemplarSource struct {
	exemplars []llmadapter.Exemplar
}

func (f *fakeExemplarSource) Exemplars(context.Context, classify.Input, int) ([]llmadapter.Exemplar, error) {
	return f.exemplars, nil
}

func testInput(t *testing.T, raw string) classify.Input {
	t.Helper()
	n, err := names.Normalize(raw)
	require.NoError(t, err)
	return classify.Input{Name: n}
}

func TestClassifierDeclinesWhenNoProvidersConfigured(t *testing.T) {
	limiter := ratelimit.New()
	defer limiter.Close()

	c := llmadapter.NewClassifier(nil, limiter, nil)
	result, err := c.TryClassify(context.Background(), testInput(t, "Thabo Nkosi"))
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestClassifierCallsAcquiredProviderAndReleases(t *testing.T) {
	in := testInput(t, "Thabo Nkosi")
	want, err := classify.NewClassification(in.Name, classify.African, 0.9, classify.MethodLLM, 0)
	require.NoError(t, err)

	provider := &fakeProvider{name: "anthropic", result: &want}
	limiter := ratelimit.New(ratelimit.Config{Provider: "anthropic", RequestsPerSecond: 10, BurstCapacity: 1})
	defer limiter.Close()

	c := llmadapter.NewClassifier([]llmadapter.Provider{provider}, limiter, nil)
	result, err := c.TryClassify(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, classify.African, result.Ethnicity)
	assert.Equal(t, 1, provider.callsCount)
}

func TestClassifierAttachesExemplarsWhenSourceConfigured(t *testing.T) {
	in := testInput(t, "Thabo Nkosi")
	want, err := classify.NewClassification(in.Name, classify.African, 0.9, classify.MethodLLM, 0)
	require.NoError(t, err)

	provider := &fakeProvider{name: "anthropic", result: &want}
	limiter := ratelimit.New(ratelimit.Config{Provider: "anthropic", RequestsPerSecond: 10, BurstCapacity: 1})
	defer limiter.Close()
	exemplars := &fakeExemplarSource{exemplars: []llmadapter.Exemplar{{Name: "Priya Govender", Ethnicity: classify.Indian}}}

	c := llmadapter.NewClassifier([]llmadapter.Provider{provider}, limiter, exemplars)
	_, err = c.TryClassify(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, provider.lastReq.Exemplars, 1)
	assert.Equal(t, "Priya Govender", provider.lastReq.Exemplars[0].Name)
}

func TestClassifierPropagatesTerminalProviderError(t *testing.T) {
	in := testInput(t, "Thabo Nkosi")
	provider := &fakeProvider{name: "anthropic", err: &llmadapter.Error{Kind: llmadapter.ErrSchemaViolation, Err: assert.AnError}}
	limiter := ratelimit.New(ratelimit.Config{Provider: "anthropic", RequestsPerSecond: 10, BurstCapacity: 1})
	defer limiter.Close()

	c := llmadapter.NewClassifier([]llmadapter.Provider{provider}, limiter, nil)
	result, err := c.TryClassify(context.Background(), in)
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Equal(t, llmadapter.ErrSchemaViolation, llmadapter.KindOf(err))
}
