package classify

import (
	"context"
	"fmt"
)

// PatternLookup is the narrow read interface the Pipeline needs from the
// Learning Store. It is defined here, not in pkg/learning, so pkg/classify
// never imports pkg/learning: the Learning Store instead depends on this
// interface's shape (or adapts to it), breaking the cycle that would
// otherwise exist between "the cascade calls the store" and "the store
// records outcomes produced by the cascade".
type PatternLookup interface {
	LookupExact(ctx context.Context, normalizedName string) (*Classification, bool, error)
	LookupPatterns(ctx context.Context, in Input) (*Classification, bool, error)
}

// ResultRecorder is the narrow write interface the Pipeline uses to report
// a freshly produced LLM classification back for learning. Implementations
// should be idempotent: recording the same outcome twice must not corrupt
// state.
type ResultRecorder interface {
	RecordLLMResult(ctx context.Context, in Input, result Classification) error
}

// Pipeline runs a fixed ordered cascade of Classifiers, returning the
// first non-nil Classification. A classifier that errors aborts the whole
// cascade rather than being skipped, since an error means something is
// wrong with the classifier itself, not merely "no opinion".
type Pipeline struct {
	stages   []Classifier
	recorder ResultRecorder
}

// NewPipeline builds a Pipeline from an explicit, ordered stage list.
// Passing the stages in rather than hard-coding them lets callers compose
// a cascade without this package needing to import pkg/dictionary,
// pkg/learning, or pkg/llmadapter directly.
func NewPipeline(recorder ResultRecorder, stages ...Classifier) *Pipeline {
	return &Pipeline{stages: stages, recorder: recorder}
}

// Classify runs the cascade in order and returns the first stage's
// opinion. If every stage declines — including when no LLM stage is
// configured at all, since the cascade must function without one —
// Classify returns Unknown at confidence 0 with method llm, matching the
// documented llm_unavailable outcome.
func (p *Pipeline) Classify(ctx context.Context, in Input) (Classification, error) {
	for _, stage := range p.stages {
		result, err := stage.TryClassify(ctx, in)
		if err != nil {
			return Classification{}, fmt.Errorf("classify: stage failed: %w", err)
		}
		if result == nil {
			continue
		}
		if result.Method == MethodLLM && p.recorder != nil {
			if err := p.recorder.RecordLLMResult(ctx, in, *result); err != nil {
				return Classification{}, fmt.Errorf("classify: recording llm result: %w", err)
			}
		}
		return *result, nil
	}

	fallback, err := NewClassification(in.Name, Unknown, 0, MethodLLM, 0)
	if err != nil {
		return Classification{}, err
	}
	return fallback, nil
}
