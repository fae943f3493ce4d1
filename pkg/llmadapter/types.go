// Package llmadapter provides a provider-agnostic interface to LLM-backed
// name classification, enforcing a closed tool-call schema so that a
// provider response can never smuggle an ethnicity or confidence value
// outside the classifier's contract.
package llmadapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/hjonck/leadscout/pkg/classify"
	"github.com/hjonck/leadscout/pkg/names"
)

// ErrorKind is the closed taxonomy of ways an LLM call can fail.
type ErrorKind string

const (
	ErrAuth                ErrorKind = "auth"
	ErrRateLimited         ErrorKind = "rate_limited"
	ErrTimeout             ErrorKind = "timeout"
	ErrSchemaViolation     ErrorKind = "schema_violation"
	ErrProviderUnavailable ErrorKind = "provider_unavailable"
	ErrContentFiltered     ErrorKind = "content_filtered"
	ErrUnknown             ErrorKind = "unknown"
)

// Retriable reports whether a call that failed with this error kind may
// be retried. schema_violation, content_filtered, and
// auth are terminal for the name in question.
func (k ErrorKind) Retriable() bool {
	switch k {
	case ErrRateLimited, ErrTimeout, ErrProviderUnavailable:
		return true
	default:
		return false
	}
}

// Error wraps an underlying provider error with its classified kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llmadapter: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err, defaulting to ErrUnknown when err
// was not produced by this package.
func KindOf(err error) ErrorKind {
	var adapterErr *Error
	if errors.As(err, &adapterErr) {
		return adapterErr.Kind
	}
	return ErrUnknown
}

// Request is a single name-classification request to an LLM provider.
type Request struct {
	Name names.Normalized
	// Exemplars are a small number of prior verified classifications
	// retrieved from the Learning Store, included as few-shot context.
	Exemplars []Exemplar
}

// Exemplar is a prior verified classification used as few-shot context.
type Exemplar struct {
	Name      string
	Ethnicity classify.Ethnicity
}

// Provider classifies a single name via an LLM, enforcing the
// classify_name tool schema so that any out-of-contract response becomes
// an ErrSchemaViolation rather than a malformed Classification.
type Provider interface {
	Name() string
	Classify(ctx context.Context, req Request) (*classify.Classification, error)
}
