package llmadapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/hjonck/leadscout/pkg/classify"
	"github.com/hjonck/leadscout/pkg/ratelimit"
)

// maxExemplars bounds how many few-shot exemplars are attached to a single
// request, keeping prompt size predictable regardless of how large the
// Learning Store grows.
const maxExemplars = 5

// ExemplarSource supplies a small number of prior verified classifications
// to include as few-shot context in a request. Defined here, not in
// pkg/learning, so this package never imports the Learning Store directly;
// the store instead satisfies this interface structurally.
type ExemplarSource interface {
	Exemplars(ctx context.Context, in classify.Input, limit int) ([]Exemplar, error)
}

var _ classify.Classifier = (*Classifier)(nil)

// Classifier adapts a priority-ordered list of Providers, a shared
// ratelimit.Limiter, and an optional ExemplarSource into the cascade's
// last stage: the one layer that leaves the process.
type Classifier struct {
	providers []Provider
	byName    map[string]Provider
	limiter   *ratelimit.Limiter
	exemplars ExemplarSource
}

// NewClassifier builds the LLM cascade stage. exemplars may be nil, in
// which case requests carry no few-shot context.
func NewClassifier(providers []Provider, limiter *ratelimit.Limiter, exemplars ExemplarSource) *Classifier {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Classifier{providers: providers, byName: byName, limiter: limiter, exemplars: exemplars}
}

// TryClassify implements classify.Classifier. When every provider's
// circuit breaker is open, it returns (nil, nil) rather than an error, so
// the Pipeline falls through to its own unknown/confidence-0/method-llm
// fallback — the documented llm_unavailable outcome that never blocks a
// batch. Any other failure (including a provider's own classification
// error) is returned as-is: the caller's retry loop inspects KindOf(err)
// to decide whether to retry or record a terminal failure.
func (c *Classifier) TryClassify(ctx context.Context, in classify.Input) (*classify.Classification, error) {
	if len(c.providers) == 0 {
		return nil, nil
	}

	providerName, err := c.limiter.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ratelimit.ErrAllProvidersUnavailable) {
			return nil, nil
		}
		return nil, err
	}

	provider, ok := c.byName[providerName]
	if !ok {
		c.limiter.Release(providerName, fmt.Errorf("llmadapter: limiter returned unconfigured provider %q", providerName))
		return nil, fmt.Errorf("llmadapter: limiter returned unconfigured provider %q", providerName)
	}

	req := Request{Name: in.Name}
	if c.exemplars != nil {
		if ex, exErr := c.exemplars.Exemplars(ctx, in, maxExemplars); exErr == nil {
			req.Exemplars = ex
		}
	}

	result, callErr := provider.Classify(ctx, req)
	c.limiter.Release(providerName, callErr)
	if callErr != nil {
		return nil, callErr
	}
	return result, nil
}
