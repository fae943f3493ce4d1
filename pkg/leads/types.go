// Package leads defines the domain types a classification run operates
// over and the Source/Sink interfaces that decouple the Batch Runner
// from any particular file format.
package leads

import (
	"context"

	"github.com/hjonck/leadscout/pkg/classify"
)

// Lead is one input row: a stable 1-based row_index, the field driving
// classification, and arbitrary passthrough fields carried through to
// the output sink untouched.
type Lead struct {
	RowIndex     int64
	DirectorName string
	Fields       map[string]string
}

// ProcessingStatus is the closed outcome of attempting to classify one lead.
type ProcessingStatus string

const (
	StatusSuccess ProcessingStatus = "success"
	StatusFailed  ProcessingStatus = "failed"
	StatusSkipped ProcessingStatus = "skipped"
)

// Result is the per-row outcome written back to the output sink: the
// original lead's passthrough fields plus the classification and failure
// diagnostics. Classification is nil only when Status == skipped; a
// failed LLM classification still carries the unknown/0/llm fallback so
// the output sink never leaves the ethnicity column blank.
type Result struct {
	Lead           Lead
	Classification *classify.Classification
	Status         ProcessingStatus
	ErrorKind      string
	ErrorMessage   string
	Attempts       int

	// ProviderAttempts lists LLM providers tried, in order, for diagnosing
	// failover behavior. No component of this module sets it, so it is
	// always empty, and the Job Store does not persist it.
	ProviderAttempts []string
}

// Source streams Lead records starting at an arbitrary row, so a crashed
// or cancelled run can restart mid-stream without rereading committed
// rows. Implementations must keep memory bounded independent of total
// row count.
type Source interface {
	// TotalRows reports the number of data rows the source holds, used
	// to size batches and report progress.
	TotalRows(ctx context.Context) (int64, error)

	// Fingerprint returns a stable identifier for this source's content,
	// used as the Job Store's input_fingerprint so the same input
	// resumes the same logical job.
	Fingerprint(ctx context.Context) (string, error)

	// Rows streams leads with RowIndex >= startRow in increasing order.
	// The returned channel is closed when the source is exhausted, ctx
	// is cancelled, or a read error occurs (reported on the error
	// channel, which receives at most one value).
	Rows(ctx context.Context, startRow int64) (<-chan Lead, <-chan error)
}

// Sink accepts Results in row_index order, batch by batch. A batch
// commit must be all-or-nothing from the caller's point of view: either
// WriteBatch returns nil and every row in it is durably reflected in the
// next Finish, or the sink's prior committed content is unaffected.
type Sink interface {
	WriteBatch(ctx context.Context, results []Result) error

	// Finish flushes and finalizes the sink. Safe to call more than
	// once; subsequent calls are no-ops.
	Finish(ctx context.Context) error
}
