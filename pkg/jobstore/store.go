package jobstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hjonck/leadscout/internal/log"
	"github.com/hjonck/leadscout/internal/migrate"
	_ "github.com/hjonck/leadscout/internal/sqlitedriver" // registers "sqlite3" driver
	"github.com/hjonck/leadscout/pkg/classify"
	"github.com/hjonck/leadscout/pkg/observability"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

func migrationsFS() fs.FS { return embeddedMigrations }

// Store is the SQLite-backed Job Store. Exclusive job locking is a row in
// the locks table, written under SQLite's own write-lock serialization
// rather than an OS-level flock or in-process mutex, since the job
// database may be opened by more than one process across resumed runs.
type Store struct {
	db     *sql.DB
	tracer observability.Tracer
}

// Open opens (creating if necessary) the job database at path, enables
// WAL mode, and applies any pending migrations.
func Open(ctx context.Context, path string, tracer observability.Tracer) (*Store, error) {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("jobstore: opening database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobstore: enabling WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobstore: setting busy_timeout: %w", err)
	}

	migrator, err := migrate.New(db, tracer, migrationsFS())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("jobstore: building migrator: %w", err)
	}
	if err := migrator.MigrateUp(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobstore: migrating schema: %w", err)
	}

	return &Store{db: db, tracer: tracer}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func nowUnix() int64 { return time.Now().Unix() }

// BeginJob acquires (or re-acquires, if owner already holds it) the
// exclusive lock for inputFingerprint, creating a new Job row on first
// run or reusing the existing non-archived one for resumed runs. force
// clears an unexpired lock held by a different owner; without force,
// that case returns ErrLockConflict. A lock whose expires_at has already
// passed is always reclaimed regardless of force.
func (s *Store) BeginJob(ctx context.Context, inputFingerprint string, totalRows int64, owner string, lockTTL time.Duration, force bool, configSnapshot any) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("jobstore: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// The first write statement below (INSERT/UPDATE into locks) forces
	// SQLite to upgrade this transaction from a shared to a reserved
	// lock; a concurrent writer holding that lock makes us wait out
	// busy_timeout rather than racing, which is what gives begin_job its
	// cross-process exclusivity.
	now := nowUnix()
	var lockOwner string
	var lockExpiresAt int64
	err = tx.QueryRowContext(ctx,
		"SELECT owner, expires_at FROM locks WHERE input_fingerprint = ?", inputFingerprint,
	).Scan(&lockOwner, &lockExpiresAt)

	switch {
	case err == sql.ErrNoRows:
		// no lock held; proceed to acquire.
	case err != nil:
		return nil, fmt.Errorf("jobstore: reading lock: %w", err)
	default:
		expired := lockExpiresAt <= now
		sameOwner := lockOwner == owner
		if !expired && !sameOwner && !force {
			return nil, ErrLockConflict
		}
	}

	expiresAt := now + int64(lockTTL.Seconds())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO locks (input_fingerprint, owner, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (input_fingerprint) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at`,
		inputFingerprint, owner, expiresAt,
	); err != nil {
		return nil, fmt.Errorf("jobstore: acquiring lock: %w", err)
	}

	job, err := findJobByFingerprint(ctx, tx, inputFingerprint)
	if err != nil {
		return nil, err
	}

	snapshotJSON := ""
	if configSnapshot != nil {
		b, err := json.Marshal(configSnapshot)
		if err != nil {
			return nil, fmt.Errorf("jobstore: marshaling config snapshot: %w", err)
		}
		snapshotJSON = string(b)
	}

	if job == nil {
		job = &Job{
			JobID:            uuid.NewString(),
			InputFingerprint: inputFingerprint,
			TotalRows:        totalRows,
			Status:           JobRunning,
			ConfigSnapshot:   snapshotJSON,
			LockOwner:        owner,
			LockExpiresAt:    expiresAt,
			StartedAt:        now,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (job_id, input_fingerprint, total_rows, processed_count, status, config_snapshot, lock_owner, lock_expires_at, started_at)
			 VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?)`,
			job.JobID, job.InputFingerprint, job.TotalRows, job.Status, job.ConfigSnapshot, job.LockOwner, job.LockExpiresAt, job.StartedAt,
		); err != nil {
			return nil, fmt.Errorf("jobstore: inserting job: %w", err)
		}
	} else {
		job.Status = JobRunning
		job.LockOwner = owner
		job.LockExpiresAt = expiresAt
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, lock_owner = ?, lock_expires_at = ? WHERE job_id = ?`,
			job.Status, job.LockOwner, job.LockExpiresAt, job.JobID,
		); err != nil {
			return nil, fmt.Errorf("jobstore: updating job: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("jobstore: committing begin_job: %w", err)
	}

	log.Info("job begun", zap.String("job_id", job.JobID), zap.String("input_fingerprint", inputFingerprint))
	return job, nil
}

func findJobByFingerprint(ctx context.Context, tx *sql.Tx, fingerprint string) (*Job, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT job_id, input_fingerprint, total_rows, processed_count, status, config_snapshot, lock_owner, lock_expires_at, started_at, completed_at
		 FROM jobs WHERE input_fingerprint = ? AND status != 'archived' ORDER BY started_at DESC LIMIT 1`,
		fingerprint,
	)
	var j Job
	var lockOwner sql.NullString
	var lockExpiresAt, completedAt sql.NullInt64
	err := row.Scan(&j.JobID, &j.InputFingerprint, &j.TotalRows, &j.ProcessedCount, &j.Status, &j.ConfigSnapshot, &lockOwner, &lockExpiresAt, &j.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobstore: scanning job: %w", err)
	}
	j.LockOwner = lockOwner.String
	j.LockExpiresAt = lockExpiresAt.Int64
	j.CompletedAt = completedAt.Int64
	return &j, nil
}

// NextPendingBatch returns the next pending batch for jobID, marking it
// in_progress, or creates one covering the next contiguous row range
// when none is pending. Returns (nil, nil) once every row up to
// total_rows has been assigned to a batch.
func (s *Store) NextPendingBatch(ctx context.Context, jobID string, batchSize int64) (*Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("jobstore: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var b Batch
	var startedAt, committedAt sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT job_id, batch_number, first_row, last_row, status, started_at, committed_at
		 FROM batches WHERE job_id = ? AND status = 'pending' ORDER BY batch_number ASC LIMIT 1`,
		jobID,
	).Scan(&b.JobID, &b.BatchNumber, &b.FirstRow, &b.LastRow, &b.Status, &startedAt, &committedAt)

	switch {
	case err == nil:
		b.StartedAt = nowUnix()
		b.Status = BatchInProgress
		if _, err := tx.ExecContext(ctx,
			`UPDATE batches SET status = ?, started_at = ? WHERE job_id = ? AND batch_number = ?`,
			b.Status, b.StartedAt, b.JobID, b.BatchNumber,
		); err != nil {
			return nil, fmt.Errorf("jobstore: marking batch in_progress: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("jobstore: committing next_pending_batch: %w", err)
		}
		return &b, nil

	case err != sql.ErrNoRows:
		return nil, fmt.Errorf("jobstore: querying pending batch: %w", err)
	}

	var totalRows int64
	if err := tx.QueryRowContext(ctx, "SELECT total_rows FROM jobs WHERE job_id = ?", jobID).Scan(&totalRows); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("jobstore: reading total_rows: %w", err)
	}

	var maxLastRow sql.NullInt64
	var maxBatchNumber sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		"SELECT MAX(last_row), MAX(batch_number) FROM batches WHERE job_id = ?", jobID,
	).Scan(&maxLastRow, &maxBatchNumber); err != nil {
		return nil, fmt.Errorf("jobstore: reading batch high-water mark: %w", err)
	}

	firstRow := maxLastRow.Int64 + 1
	if firstRow > totalRows {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("jobstore: committing next_pending_batch: %w", err)
		}
		return nil, nil
	}

	lastRow := firstRow + batchSize - 1
	if lastRow > totalRows {
		lastRow = totalRows
	}

	newBatch := Batch{
		JobID:       jobID,
		BatchNumber: maxBatchNumber.Int64 + 1,
		FirstRow:    firstRow,
		LastRow:     lastRow,
		Status:      BatchInProgress,
		StartedAt:   nowUnix(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO batches (job_id, batch_number, first_row, last_row, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		newBatch.JobID, newBatch.BatchNumber, newBatch.FirstRow, newBatch.LastRow, newBatch.Status, newBatch.StartedAt,
	); err != nil {
		return nil, fmt.Errorf("jobstore: inserting batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("jobstore: committing next_pending_batch: %w", err)
	}
	return &newBatch, nil
}

func persistResultsTx(ctx context.Context, tx *sql.Tx, jobID string, results []LeadResult) error {
	for _, r := range results {
		var ethnicity, method, provider sql.NullString
		var confidence, cost sql.NullFloat64
		var processingMS sql.NullInt64
		if r.Classification != nil {
			ethnicity = sql.NullString{String: string(r.Classification.Ethnicity), Valid: true}
			method = sql.NullString{String: string(r.Classification.Method), Valid: true}
			provider = sql.NullString{String: r.Classification.Provider, Valid: r.Classification.Provider != ""}
			confidence = sql.NullFloat64{Float64: r.Classification.Confidence, Valid: true}
			cost = sql.NullFloat64{Float64: r.Classification.Cost, Valid: true}
			processingMS = sql.NullInt64{Int64: r.Classification.ProcessingMS, Valid: true}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lead_results (job_id, row_index, status, ethnicity, confidence, method, processing_ms, provider, cost, error_kind, error_message, attempts)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (job_id, row_index) DO UPDATE SET
			   status = excluded.status, ethnicity = excluded.ethnicity, confidence = excluded.confidence,
			   method = excluded.method, processing_ms = excluded.processing_ms, provider = excluded.provider,
			   cost = excluded.cost, error_kind = excluded.error_kind, error_message = excluded.error_message,
			   attempts = excluded.attempts`,
			jobID, r.RowIndex, r.Status, ethnicity, confidence, method, processingMS, provider, cost, r.ErrorKind, r.ErrorMessage, r.Attempts,
		); err != nil {
			return fmt.Errorf("jobstore: persisting lead result row %d: %w", r.RowIndex, err)
		}
	}
	return nil
}

// CommitBatch atomically persists every result in the batch and marks it
// committed, advancing the job's processed_count. Either every result
// persists and the batch commits, or the whole operation rolls back.
func (s *Store) CommitBatch(ctx context.Context, jobID string, batchNumber int64, results []LeadResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("jobstore: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := persistResultsTx(ctx, tx, jobID, results); err != nil {
		return err
	}

	now := nowUnix()
	res, err := tx.ExecContext(ctx,
		`UPDATE batches SET status = ?, committed_at = ? WHERE job_id = ? AND batch_number = ?`,
		BatchCommitted, now, jobID, batchNumber,
	)
	if err != nil {
		return fmt.Errorf("jobstore: marking batch committed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("jobstore: batch %d not found for job %s", batchNumber, jobID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET processed_count = processed_count + ? WHERE job_id = ?`,
		len(results), jobID,
	); err != nil {
		return fmt.Errorf("jobstore: advancing processed_count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("jobstore: committing commit_batch: %w", err)
	}
	return nil
}

// CommitPartialBatch commits only the prefix of batchNumber up to
// lastRow (first_row-1 <= lastRow <= the batch's original last_row),
// splitting the remainder off into a new pending batch so no row is
// ever silently dropped. Used by the Batch Runner when a cancellation
// signal arrives mid-batch: whatever results finished within the grace
// period commit now, and the unfinished tail is picked up by a later
// next_pending_batch call.
func (s *Store) CommitPartialBatch(ctx context.Context, jobID string, batchNumber, lastRow int64, results []LeadResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("jobstore: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var firstRow, originalLastRow int64
	var maxBatchNumber sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		"SELECT first_row, last_row FROM batches WHERE job_id = ? AND batch_number = ?", jobID, batchNumber,
	).Scan(&firstRow, &originalLastRow); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("jobstore: batch %d not found for job %s", batchNumber, jobID)
		}
		return fmt.Errorf("jobstore: reading batch: %w", err)
	}
	if lastRow < firstRow-1 || lastRow > originalLastRow {
		return fmt.Errorf("jobstore: partial commit lastRow %d out of range [%d, %d]", lastRow, firstRow-1, originalLastRow)
	}

	if err := persistResultsTx(ctx, tx, jobID, results); err != nil {
		return err
	}

	now := nowUnix()
	if _, err := tx.ExecContext(ctx,
		`UPDATE batches SET status = ?, last_row = ?, committed_at = ? WHERE job_id = ? AND batch_number = ?`,
		BatchCommitted, lastRow, now, jobID, batchNumber,
	); err != nil {
		return fmt.Errorf("jobstore: marking partial batch committed: %w", err)
	}

	if lastRow < originalLastRow {
		if err := tx.QueryRowContext(ctx,
			"SELECT MAX(batch_number) FROM batches WHERE job_id = ?", jobID,
		).Scan(&maxBatchNumber); err != nil {
			return fmt.Errorf("jobstore: reading max batch_number: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO batches (job_id, batch_number, first_row, last_row, status) VALUES (?, ?, ?, ?, 'pending')`,
			jobID, maxBatchNumber.Int64+1, lastRow+1, originalLastRow,
		); err != nil {
			return fmt.Errorf("jobstore: splitting remainder batch: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET processed_count = processed_count + ? WHERE job_id = ?`,
		len(results), jobID,
	); err != nil {
		return fmt.Errorf("jobstore: advancing processed_count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("jobstore: committing partial batch: %w", err)
	}
	return nil
}

// CommittedResults returns every committed LeadResult for jobID in
// row_index order, used to replay prior output rows into a freshly
// opened sink on a resumed run.
func (s *Store) CommittedResults(ctx context.Context, jobID string) ([]LeadResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lr.row_index, lr.status, lr.ethnicity, lr.confidence, lr.method, lr.processing_ms, lr.provider, lr.cost, lr.error_kind, lr.error_message, lr.attempts
		 FROM lead_results lr
		 JOIN batches b ON b.job_id = lr.job_id
		 WHERE lr.job_id = ? AND b.status = 'committed' AND lr.row_index BETWEEN b.first_row AND b.last_row
		 ORDER BY lr.row_index ASC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("jobstore: querying committed results: %w", err)
	}
	defer rows.Close()

	var out []LeadResult
	for rows.Next() {
		var r LeadResult
		var ethnicity, method, provider sql.NullString
		var confidence, cost sql.NullFloat64
		var processingMS sql.NullInt64
		if err := rows.Scan(&r.RowIndex, &r.Status, &ethnicity, &confidence, &method, &processingMS, &provider, &cost, &r.ErrorKind, &r.ErrorMessage, &r.Attempts); err != nil {
			return nil, fmt.Errorf("jobstore: scanning committed result: %w", err)
		}
		if ethnicity.Valid {
			classification := classify.Classification{
				Ethnicity:    classify.Ethnicity(ethnicity.String),
				Confidence:   confidence.Float64,
				Method:       classify.Method(method.String),
				ProcessingMS: processingMS.Int64,
				Provider:     provider.String,
				Cost:         cost.Float64,
			}
			r.Classification = &classification
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobstore: iterating committed results: %w", err)
	}
	return out, nil
}

// Resume returns the first row index not yet covered by a committed
// batch, conservatively reclassifying any in_progress batch back to
// pending first, since an in_progress batch from a prior, possibly
// crashed, run has no guarantee its results were ever committed.
func (s *Store) Resume(ctx context.Context, jobID string) (*ResumeState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("jobstore: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`UPDATE batches SET status = 'pending', started_at = NULL WHERE job_id = ? AND status = 'in_progress'`,
		jobID,
	); err != nil {
		return nil, fmt.Errorf("jobstore: reclassifying in_progress batches: %w", err)
	}

	var maxCommittedRow sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(last_row) FROM batches WHERE job_id = ? AND status = 'committed'`, jobID,
	).Scan(&maxCommittedRow); err != nil {
		return nil, fmt.Errorf("jobstore: reading committed high-water mark: %w", err)
	}

	var processedCount int64
	if err := tx.QueryRowContext(ctx, "SELECT processed_count FROM jobs WHERE job_id = ?", jobID).Scan(&processedCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("jobstore: reading processed_count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("jobstore: committing resume: %w", err)
	}

	return &ResumeState{
		NextRowIndex:   maxCommittedRow.Int64 + 1,
		ProcessedCount: processedCount,
	}, nil
}

// FinishJob sets the job's terminal status and releases its lock.
func (s *Store) FinishJob(ctx context.Context, jobID string, status JobStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("jobstore: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := nowUnix()
	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, completed_at = ? WHERE job_id = ?`,
		status, now, jobID,
	)
	if err != nil {
		return fmt.Errorf("jobstore: finishing job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}

	var fingerprint string
	if err := tx.QueryRowContext(ctx, "SELECT input_fingerprint FROM jobs WHERE job_id = ?", jobID).Scan(&fingerprint); err != nil {
		return fmt.Errorf("jobstore: reading fingerprint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM locks WHERE input_fingerprint = ?", fingerprint); err != nil {
		return fmt.Errorf("jobstore: releasing lock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("jobstore: committing finish_job: %w", err)
	}

	log.Info("job finished", zap.String("job_id", jobID), zap.String("status", string(status)))
	return nil
}

// JobStatus returns the current row for jobID, for the CLI's `status`
// subcommand.
func (s *Store) JobStatus(ctx context.Context, jobID string) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("jobstore: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx,
		`SELECT job_id, input_fingerprint, total_rows, processed_count, status, config_snapshot, lock_owner, lock_expires_at, started_at, completed_at
		 FROM jobs WHERE job_id = ?`, jobID)

	var j Job
	var lockOwner sql.NullString
	var lockExpiresAt, completedAt sql.NullInt64
	if err := row.Scan(&j.JobID, &j.InputFingerprint, &j.TotalRows, &j.ProcessedCount, &j.Status, &j.ConfigSnapshot, &lockOwner, &lockExpiresAt, &j.StartedAt, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("jobstore: scanning job: %w", err)
	}
	j.LockOwner = lockOwner.String
	j.LockExpiresAt = lockExpiresAt.Int64
	j.CompletedAt = completedAt.Int64
	return &j, nil
}
