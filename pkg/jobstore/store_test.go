package jobstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hjonck/leadscout/pkg/jobstore"
)

func openStore(t *testing.T) *jobstore.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.db")
	store, err := jobstore.Open(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBeginJobCreatesNewJob(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	job, err := store.BeginJob(ctx, "fp-1", 100, "owner-a", time.Minute, false, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, int64(100), job.TotalRows)
	assert.Equal(t, jobstore.JobRunning, job.Status)
	assert.Equal(t, int64(0), job.ProcessedCount)
}

func TestBeginJobReturnsLockConflictForUnexpiredForeignLock(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.BeginJob(ctx, "fp-1", 100, "owner-a", time.Hour, false, nil)
	require.NoError(t, err)

	_, err = store.BeginJob(ctx, "fp-1", 100, "owner-b", time.Hour, false, nil)
	assert.ErrorIs(t, err, jobstore.ErrLockConflict)
}

func TestBeginJobSameOwnerReacquiresWithoutConflict(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first, err := store.BeginJob(ctx, "fp-1", 100, "owner-a", time.Hour, false, nil)
	require.NoError(t, err)

	second, err := store.BeginJob(ctx, "fp-1", 100, "owner-a", time.Hour, false, nil)
	require.NoError(t, err)
	assert.Equal(t, first.JobID, second.JobID)
}

func TestBeginJobForceClearsForeignUnexpiredLock(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.BeginJob(ctx, "fp-1", 100, "owner-a", time.Hour, false, nil)
	require.NoError(t, err)

	job, err := store.BeginJob(ctx, "fp-1", 100, "owner-b", time.Hour, true, nil)
	require.NoError(t, err)
	assert.Equal(t, "owner-b", job.LockOwner)
}

func TestBeginJobReclaimsStaleExpiredLockWithoutForce(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.BeginJob(ctx, "fp-1", 100, "owner-a", -time.Second, false, nil)
	require.NoError(t, err)

	job, err := store.BeginJob(ctx, "fp-1", 100, "owner-b", time.Hour, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "owner-b", job.LockOwner)
}

func TestNextPendingBatchCreatesContiguousRanges(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	job, err := store.BeginJob(ctx, "fp-1", 25, "owner-a", time.Hour, false, nil)
	require.NoError(t, err)

	b1, err := store.NextPendingBatch(ctx, job.JobID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b1.FirstRow)
	assert.Equal(t, int64(10), b1.LastRow)

	require.NoError(t, store.CommitBatch(ctx, job.JobID, b1.BatchNumber, nil))

	b2, err := store.NextPendingBatch(ctx, job.JobID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(11), b2.FirstRow)
	assert.Equal(t, int64(20), b2.LastRow)

	require.NoError(t, store.CommitBatch(ctx, job.JobID, b2.BatchNumber, nil))

	b3, err := store.NextPendingBatch(ctx, job.JobID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(21), b3.FirstRow)
	assert.Equal(t, int64(25), b3.LastRow, "final batch clamps to total_rows")

	require.NoError(t, store.CommitBatch(ctx, job.JobID, b3.BatchNumber, nil))

	b4, err := store.NextPendingBatch(ctx, job.JobID, 10)
	require.NoError(t, err)
	assert.Nil(t, b4, "no rows left to assign")
}

func TestNextPendingBatchReturnsReclassifiedBatchBeforeCreatingNew(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	job, err := store.BeginJob(ctx, "fp-1", 30, "owner-a", time.Hour, false, nil)
	require.NoError(t, err)

	b1, err := store.NextPendingBatch(ctx, job.JobID, 10)
	require.NoError(t, err)

	// Simulate a crash before commit: resume reclassifies b1 back to
	// pending, so the next call must hand it out again rather than
	// starting a new range at row 11.
	_, err = store.Resume(ctx, job.JobID)
	require.NoError(t, err)

	b1Again, err := store.NextPendingBatch(ctx, job.JobID, 10)
	require.NoError(t, err)
	assert.Equal(t, b1.BatchNumber, b1Again.BatchNumber)
	assert.Equal(t, b1.FirstRow, b1Again.FirstRow)
}

func TestCommitBatchPersistsResultsAndAdvancesProcessedCount(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	job, err := store.BeginJob(ctx, "fp-1", 10, "owner-a", time.Hour, false, nil)
	require.NoError(t, err)

	batch, err := store.NextPendingBatch(ctx, job.JobID, 10)
	require.NoError(t, err)

	results := []jobstore.LeadResult{
		{RowIndex: 1, Status: jobstore.LeadSuccess, Attempts: 1},
		{RowIndex: 2, Status: jobstore.LeadFailed, ErrorKind: "timeout", ErrorMessage: "boom", Attempts: 3},
	}
	require.NoError(t, store.CommitBatch(ctx, job.JobID, batch.BatchNumber, results))

	status, err := store.JobStatus(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.ProcessedCount)
}

func TestResumeReclassifiesInProgressBatchesToPending(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	job, err := store.BeginJob(ctx, "fp-1", 20, "owner-a", time.Hour, false, nil)
	require.NoError(t, err)

	b1, err := store.NextPendingBatch(ctx, job.JobID, 10)
	require.NoError(t, err)
	require.NoError(t, store.CommitBatch(ctx, job.JobID, b1.BatchNumber, nil))

	// A second batch is taken in_progress but the crash happens before commit.
	_, err = store.NextPendingBatch(ctx, job.JobID, 10)
	require.NoError(t, err)

	state, err := store.Resume(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, int64(11), state.NextRowIndex)

	// The reclassified batch must be handed out again as pending.
	b2, err := store.NextPendingBatch(ctx, job.JobID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(11), b2.FirstRow)
}

func TestCommitPartialBatchSplitsRemainderIntoNewPendingBatch(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	job, err := store.BeginJob(ctx, "fp-1", 10, "owner-a", time.Hour, false, nil)
	require.NoError(t, err)

	batch, err := store.NextPendingBatch(ctx, job.JobID, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), batch.FirstRow)
	require.Equal(t, int64(10), batch.LastRow)

	results := []jobstore.LeadResult{
		{RowIndex: 1, Status: jobstore.LeadSuccess, Attempts: 1},
		{RowIndex: 2, Status: jobstore.LeadSuccess, Attempts: 1},
		{RowIndex: 3, Status: jobstore.LeadSuccess, Attempts: 1},
	}
	require.NoError(t, store.CommitPartialBatch(ctx, job.JobID, batch.BatchNumber, 3, results))

	status, err := store.JobStatus(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), status.ProcessedCount)

	remainder, err := store.NextPendingBatch(ctx, job.JobID, 10)
	require.NoError(t, err)
	require.NotNil(t, remainder)
	assert.Equal(t, int64(4), remainder.FirstRow)
	assert.Equal(t, int64(10), remainder.LastRow)
}

func TestCommittedResultsReturnsRowsInOrder(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	job, err := store.BeginJob(ctx, "fp-1", 10, "owner-a", time.Hour, false, nil)
	require.NoError(t, err)

	batch, err := store.NextPendingBatch(ctx, job.JobID, 10)
	require.NoError(t, err)

	results := []jobstore.LeadResult{
		{RowIndex: 2, Status: jobstore.LeadSuccess, Attempts: 1},
		{RowIndex: 1, Status: jobstore.LeadFailed, ErrorKind: "timeout", Attempts: 3},
	}
	require.NoError(t, store.CommitBatch(ctx, job.JobID, batch.BatchNumber, results))

	committed, err := store.CommittedResults(ctx, job.JobID)
	require.NoError(t, err)
	require.Len(t, committed, 2)
	assert.Equal(t, int64(1), committed[0].RowIndex)
	assert.Equal(t, int64(2), committed[1].RowIndex)
}

func TestFinishJobSetsTerminalStatusAndReleasesLock(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	job, err := store.BeginJob(ctx, "fp-1", 10, "owner-a", time.Hour, false, nil)
	require.NoError(t, err)

	require.NoError(t, store.FinishJob(ctx, job.JobID, jobstore.JobCompleted))

	status, err := store.JobStatus(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobstore.JobCompleted, status.Status)

	// Lock release means a different owner can now begin against the same
	// fingerprint without conflict.
	_, err = store.BeginJob(ctx, "fp-1", 10, "owner-b", time.Hour, false, nil)
	assert.NoError(t, err)
}
