// Package jobstore implements the durable Job Store: job, batch, and
// per-lead result records with cross-process exclusive locking and a
// conservative resume cursor, backed by SQLite.
package jobstore

import (
	"errors"

	"github.com/hjonck/leadscout/pkg/classify"
)

// JobStatus is the closed set of states a Job can be in.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobArchived  JobStatus = "archived"
)

// BatchStatus is the closed set of states a Batch progresses through:
// pending -> in_progress -> committed, or back to pending on failed retry.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchInProgress BatchStatus = "in_progress"
	BatchCommitted  BatchStatus = "committed"
	BatchFailed     BatchStatus = "failed"
)

// LeadStatus is the per-row outcome of classifying one lead.
type LeadStatus string

const (
	LeadSuccess LeadStatus = "success"
	LeadFailed  LeadStatus = "failed"
	LeadSkipped LeadStatus = "skipped"
)

// Job is the durable record of one logical run over an input fingerprint.
type Job struct {
	JobID            string
	InputFingerprint string
	TotalRows        int64
	ProcessedCount   int64
	Status           JobStatus
	ConfigSnapshot   string
	LockOwner        string
	LockExpiresAt    int64
	StartedAt        int64
	CompletedAt      int64
}

// Batch is a contiguous, fixed-size slice of rows processed as one unit.
type Batch struct {
	JobID       string
	BatchNumber int64
	FirstRow    int64
	LastRow     int64
	Status      BatchStatus
	StartedAt   int64
	CommittedAt int64
}

// LeadResult is the per-row classification outcome, unique by
// (job_id, row_index) once its enclosing batch is committed.
type LeadResult struct {
	RowIndex       int64
	Status         LeadStatus
	Classification *classify.Classification // nil when Status == skipped
	ErrorKind      string
	ErrorMessage   string
	Attempts       int
}

// ResumeState is what resume() returns: the first row index not yet
// covered by a committed batch.
type ResumeState struct {
	NextRowIndex   int64
	ProcessedCount int64
}

// ErrLockConflict is returned by BeginJob when an unexpired lock on the
// given input fingerprint is held by a different owner.
var ErrLockConflict = errors.New("jobstore: lock held by another owner")

// ErrJobNotFound is returned when an operation references a job_id that
// does not exist.
var ErrJobNotFound = errors.New("jobstore: job not found")
