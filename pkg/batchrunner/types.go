// Package batchrunner provides the end-to-end orchestration of a
// classification job: streaming leads from a Source, classifying them
// with a bounded worker pool, committing results to the Job Store batch
// by batch, and writing them to a Sink, with cooperative cancellation
// and crash-safe resume.
package batchrunner

import (
	"errors"
	"time"

	"github.com/hjonck/leadscout/pkg/ratelimit"
)

// ErrCancelled is returned by Run when the context was cancelled before
// the job reached completed status. The job itself is left paused, not
// failed, and resumable by a later Run.
var ErrCancelled = errors.New("batchrunner: run cancelled")

// Config controls batch sizing, concurrency, and timing. Zero values
// are replaced by withDefaults with the documented operational defaults.
type Config struct {
	BatchSize          int64
	MaxConcurrentLeads int
	ProgressInterval   time.Duration
	CancelGracePeriod  time.Duration
	LockTTL            time.Duration
	ForceLock          bool
	RetryMaxAttempts   int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxConcurrentLeads <= 0 {
		c.MaxConcurrentLeads = 10
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 2 * time.Second
	}
	if c.CancelGracePeriod <= 0 {
		c.CancelGracePeriod = 10 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 900 * time.Second
	}
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = ratelimit.MaxAttempts
	}
	return c
}

// ProgressEvent is emitted at a bounded cadence (at least every
// ProgressInterval, and always right after a batch commits).
type ProgressEvent struct {
	Processed     int64
	Total         int64
	RatePerSecond float64
	ETASeconds    float64
	CurrentRow    int64
}

// ProgressFunc receives progress updates. It must return quickly; Run
// calls it synchronously after each batch commit and also from a
// background ticker goroutine, so calls may overlap.
type ProgressFunc func(ProgressEvent)

// RunResult summarizes a completed or paused Run call.
type RunResult struct {
	JobID          string
	TotalRows      int64
	ProcessedCount int64
	Status         string
}
