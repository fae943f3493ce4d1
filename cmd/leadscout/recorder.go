package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hjonck/leadscout/internal/log"
	"github.com/hjonck/leadscout/pkg/classify"
	"github.com/hjonck/leadscout/pkg/learning"
	"github.com/hjonck/leadscout/pkg/patterns"
)

var _ classify.ResultRecorder = (*learningRecorder)(nil)

// learningRecorder adapts a Learning Store into classify.ResultRecorder,
// additionally running the Pattern Extractor over every verified LLM
// result. pkg/patterns.Extract stays a pure function; this is the single
// place its output is persisted, keeping pkg/classify free of any
// dependency on pkg/learning or pkg/patterns.
type learningRecorder struct {
	store      *learning.Store
	writeFails atomic.Int64
}

func newLearningRecorder(store *learning.Store) *learningRecorder {
	return &learningRecorder{store: store}
}

// WriteFailures reports how many pattern/family upserts have failed so
// far. These never fail the classification they were derived from; they
// are logged and counted here instead, so a run summary can surface them.
func (r *learningRecorder) WriteFailures() int64 {
	return r.writeFails.Load()
}

// RecordLLMResult implements classify.ResultRecorder.
func (r *learningRecorder) RecordLLMResult(ctx context.Context, in classify.Input, result classify.Classification) error {
	if err := r.store.RecordLLMResult(ctx, in, result); err != nil {
		return fmt.Errorf("recorder: recording llm result: %w", err)
	}

	extracted := patterns.Extract(in, result)
	for _, p := range extracted.Patterns {
		if err := r.store.UpsertPattern(ctx, p); err != nil {
			r.writeFails.Add(1)
			log.Warn("recorder: upserting learned pattern failed", zap.String("pattern_type", string(p.PatternType)), zap.Error(err))
		}
	}
	if extracted.Family != nil {
		f := extracted.Family
		if err := r.store.UpsertFamily(ctx, f.FamilyKey, f.Ethnicity, f.RepresentativeName, result.Confidence); err != nil {
			r.writeFails.Add(1)
			log.Warn("recorder: upserting phonetic family failed", zap.String("family_key", f.FamilyKey), zap.Error(err))
		}
	}
	return nil
}
