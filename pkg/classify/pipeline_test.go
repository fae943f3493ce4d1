package classify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hjonck/leadscout/pkg/classify"
	"github.com/hjonck/leadscout/pkg/names"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClassifier struct {
	result *classify.Classification
	err    error
}

func (s stubClassifier) TryClassify(context.Context, classify.Input) (*classify.Classification, error) {
	return s.result, s.err
}

type stubRecorder struct {
	recorded []classify.Classification
}

func (r *stubRecorder) RecordLLMResult(_ context.Context, _ classify.Input, result classify.Classification) error {
	r.recorded = append(r.recorded, result)
	return nil
}

func mustInput(t *testing.T, raw string) classify.Input {
	t.Helper()
	n, err := names.Normalize(raw)
	require.NoError(t, err)
	return classify.Input{Name: n}
}

func TestPipelineReturnsFirstOpinion(t *testing.T) {
	in := mustInput(t, "Bongani Sithole")
	want, err := classify.NewClassification(in.Name, classify.African, 0.9, classify.MethodRuleBased, time.Millisecond)
	require.NoError(t, err)

	declining := stubClassifier{}
	hit := stubClassifier{result: &want}
	never := stubClassifier{result: &classify.Classification{}}

	p := classify.NewPipeline(nil, declining, hit, never)
	got, err := p.Classify(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPipelineAbortsOnStageError(t *testing.T) {
	in := mustInput(t, "Someone")
	failing := stubClassifier{err: errors.New("boom")}
	p := classify.NewPipeline(nil, failing)
	_, err := p.Classify(context.Background(), in)
	assert.Error(t, err)
}

func TestPipelineFallsBackToUnknown(t *testing.T) {
	in := mustInput(t, "Someone Obscure")
	p := classify.NewPipeline(nil)
	got, err := p.Classify(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, classify.Unknown, got.Ethnicity)
	assert.Equal(t, classify.MethodLLM, got.Method)
	assert.Zero(t, got.Confidence)
}

func TestPipelineRecordsLLMResults(t *testing.T) {
	in := mustInput(t, "Xiluva Rirhandzu")
	llmResult, err := classify.NewClassification(in.Name, classify.African, 0.85, classify.MethodLLM, time.Millisecond)
	require.NoError(t, err)

	rec := &stubRecorder{}
	p := classify.NewPipeline(rec, stubClassifier{result: &llmResult})
	_, err = p.Classify(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, rec.recorded, 1)
	assert.Equal(t, llmResult, rec.recorded[0])
}

func TestNewClassificationValidatesConfidenceBounds(t *testing.T) {
	n, err := names.Normalize("Test Name")
	require.NoError(t, err)

	_, err = classify.NewClassification(n, classify.White, 0.5, classify.MethodRuleBased, 0)
	assert.Error(t, err, "rule_based below 0.8 must be rejected")

	_, err = classify.NewClassification(n, classify.White, 0.96, classify.MethodPhonetic, 0)
	assert.Error(t, err, "phonetic above 0.95 must be rejected")

	_, err = classify.NewClassification(n, classify.White, 1.0, classify.MethodLLM, 0)
	assert.Error(t, err, "llm above 0.99 must be rejected")

	_, err = classify.NewClassification(n, classify.Unknown+"x", 0.9, classify.MethodRuleBased, 0)
	assert.Error(t, err, "invalid ethnicity must be rejected")
}
