package batchrunner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hjonck/leadscout/internal/log"
	"github.com/hjonck/leadscout/pkg/classify"
	"github.com/hjonck/leadscout/pkg/jobstore"
	"github.com/hjonck/leadscout/pkg/leads"
	"github.com/hjonck/leadscout/pkg/llmadapter"
	"github.com/hjonck/leadscout/pkg/names"
	"github.com/hjonck/leadscout/pkg/observability"
	"github.com/hjonck/leadscout/pkg/phonetic"
	"github.com/hjonck/leadscout/pkg/ratelimit"
)

// Runner drives one classification job from start to completion (or
// cooperative cancellation), coordinating the Job Store, a classification
// Pipeline, and a Source/Sink pair.
type Runner struct {
	store    *jobstore.Store
	pipeline *classify.Pipeline
	source   leads.Source
	sink     leads.Sink
	config   Config
	tracer   observability.Tracer
}

// New constructs a Runner. tracer may be nil, in which case a no-op
// tracer is used.
func New(store *jobstore.Store, pipeline *classify.Pipeline, source leads.Source, sink leads.Sink, config Config, tracer observability.Tracer) *Runner {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	return &Runner{
		store:    store,
		pipeline: pipeline,
		source:   source,
		sink:     sink,
		config:   config.withDefaults(),
		tracer:   tracer,
	}
}

// Run classifies every lead the Source holds, committing to the Job
// Store batch by batch and writing to the Sink as each batch commits.
// If ctx is cancelled mid-batch, Run waits up to CancelGracePeriod for
// in-flight leads to finish, commits whatever prefix of the batch is
// ready, leaves the job paused and its lock released, and returns
// ErrCancelled.
func (r *Runner) Run(ctx context.Context, owner string, onProgress ProgressFunc) (*RunResult, error) {
	ctx, span := r.tracer.StartSpan(ctx, "batchrunner.run")
	defer r.tracer.EndSpan(span)

	totalRows, err := r.source.TotalRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("batchrunner: reading total rows: %w", err)
	}
	fingerprint, err := r.source.Fingerprint(ctx)
	if err != nil {
		return nil, fmt.Errorf("batchrunner: fingerprinting source: %w", err)
	}

	job, err := r.store.BeginJob(ctx, fingerprint, totalRows, owner, r.config.LockTTL, r.config.ForceLock, r.config)
	if err != nil {
		return nil, err
	}

	resumeState, err := r.store.Resume(ctx, job.JobID)
	if err != nil {
		return nil, fmt.Errorf("batchrunner: resuming job %s: %w", job.JobID, err)
	}
	if resumeState.ProcessedCount > 0 {
		if err := r.replayCommitted(ctx, job.JobID, resumeState); err != nil {
			return nil, fmt.Errorf("batchrunner: replaying committed results: %w", err)
		}
	}

	var processed atomic.Int64
	processed.Store(resumeState.ProcessedCount)
	start := time.Now()
	stopProgress := r.startProgressTicker(&processed, totalRows, start, onProgress)
	defer stopProgress()

	for {
		if ctx.Err() != nil {
			if err := r.pauseForCancellation(job.JobID); err != nil {
				log.Warn("batchrunner: pausing job after cancellation", zap.Error(err))
			}
			return &RunResult{JobID: job.JobID, TotalRows: totalRows, ProcessedCount: processed.Load(), Status: string(jobstore.JobPaused)}, ErrCancelled
		}

		batch, err := r.store.NextPendingBatch(ctx, job.JobID, r.config.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("batchrunner: fetching next batch: %w", err)
		}
		if batch == nil {
			break
		}

		cancelled, committed, err := r.runBatch(ctx, job.JobID, batch)
		if err != nil {
			// Commit failure: reclassify back to pending so no row is lost,
			// leave the job paused and resumable.
			if _, resumeErr := r.store.Resume(context.Background(), job.JobID); resumeErr != nil {
				log.Warn("batchrunner: reclassifying batch after commit failure", zap.Error(resumeErr))
			}
			if finishErr := r.store.FinishJob(context.Background(), job.JobID, jobstore.JobPaused); finishErr != nil {
				log.Warn("batchrunner: pausing job after commit failure", zap.Error(finishErr))
			}
			return &RunResult{JobID: job.JobID, TotalRows: totalRows, ProcessedCount: processed.Load(), Status: string(jobstore.JobPaused)}, fmt.Errorf("batchrunner: committing batch %d: %w", batch.BatchNumber, err)
		}

		newProcessed := processed.Add(int64(len(committed)))
		if onProgress != nil {
			onProgress(r.progressEvent(newProcessed, totalRows, start))
		}

		if cancelled {
			if err := r.pauseForCancellation(job.JobID); err != nil {
				log.Warn("batchrunner: pausing job after cancellation", zap.Error(err))
			}
			return &RunResult{JobID: job.JobID, TotalRows: totalRows, ProcessedCount: newProcessed, Status: string(jobstore.JobPaused)}, ErrCancelled
		}
	}

	if err := r.sink.Finish(context.Background()); err != nil {
		return nil, fmt.Errorf("batchrunner: finishing sink: %w", err)
	}
	if err := r.store.FinishJob(ctx, job.JobID, jobstore.JobCompleted); err != nil {
		return nil, fmt.Errorf("batchrunner: finishing job: %w", err)
	}
	return &RunResult{JobID: job.JobID, TotalRows: totalRows, ProcessedCount: processed.Load(), Status: string(jobstore.JobCompleted)}, nil
}

// pauseForCancellation marks the job paused and releases its lock, using
// a fresh context since the run's own context is already cancelled.
func (r *Runner) pauseForCancellation(jobID string) error {
	return r.store.FinishJob(context.Background(), jobID, jobstore.JobPaused)
}

func (r *Runner) progressEvent(processed, total int64, start time.Time) ProgressEvent {
	elapsed := time.Since(start).Seconds()
	var rate, eta float64
	if elapsed > 0 {
		rate = float64(processed) / elapsed
	}
	if rate > 0 {
		eta = float64(total-processed) / rate
	}
	return ProgressEvent{
		Processed:     processed,
		Total:         total,
		RatePerSecond: rate,
		ETASeconds:    eta,
		CurrentRow:    processed,
	}
}

// startProgressTicker emits onProgress every ProgressInterval from a
// background goroutine until the returned stop function is called.
func (r *Runner) startProgressTicker(processed *atomic.Int64, total int64, start time.Time, onProgress ProgressFunc) func() {
	if onProgress == nil {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.config.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				onProgress(r.progressEvent(processed.Load(), total, start))
			case <-stop:
				return
			}
		}
	}()
	return func() { close(stop) }
}

// runBatch processes one batch's leads with bounded concurrency, commits
// whatever prefix completed (the whole batch, absent cancellation), and
// reports the committed results to the sink. cancelled is true when ctx
// was done and the grace period elapsed before every lead finished.
func (r *Runner) runBatch(ctx context.Context, jobID string, batch *jobstore.Batch) (cancelled bool, committed []leads.Result, err error) {
	batchLeads, err := r.collectBatchLeads(ctx, batch)
	if err != nil {
		return false, nil, err
	}

	results, done := r.processBatchLeads(ctx, batchLeads)

	prefixLen := 0
	for prefixLen < len(done) && done[prefixLen] {
		prefixLen++
	}
	cancelled = prefixLen < len(batchLeads)

	committed = results[:prefixLen]
	storeResults := make([]jobstore.LeadResult, len(committed))
	for i, res := range committed {
		storeResults[i] = toStoreResult(res)
	}

	commitCtx := ctx
	if cancelled {
		commitCtx = context.Background()
	}
	lastRow := batch.FirstRow + int64(prefixLen) - 1
	if prefixLen == len(batchLeads) {
		if err := r.store.CommitBatch(commitCtx, jobID, batch.BatchNumber, storeResults); err != nil {
			return cancelled, nil, err
		}
	} else {
		if err := r.store.CommitPartialBatch(commitCtx, jobID, batch.BatchNumber, lastRow, storeResults); err != nil {
			return cancelled, nil, err
		}
	}

	if len(committed) > 0 {
		if err := r.sink.WriteBatch(commitCtx, committed); err != nil {
			return cancelled, nil, fmt.Errorf("writing sink batch: %w", err)
		}
	}
	return cancelled, committed, nil
}

// collectBatchLeads reads exactly the leads covered by batch's row range
// from the source, cancelling the stream as soon as enough are read.
func (r *Runner) collectBatchLeads(ctx context.Context, batch *jobstore.Batch) ([]leads.Lead, error) {
	want := int(batch.LastRow-batch.FirstRow) + 1
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rowsCh, errCh := r.source.Rows(streamCtx, batch.FirstRow)
	out := make([]leads.Lead, 0, want)
	for lead := range rowsCh {
		out = append(out, lead)
		if len(out) == want {
			cancel()
			break
		}
	}
	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			return nil, fmt.Errorf("streaming source rows: %w", err)
		}
	default:
	}
	if len(out) < want && ctx.Err() == nil {
		return nil, fmt.Errorf("source exhausted at row %d, expected through row %d", batch.FirstRow+int64(len(out))-1, batch.LastRow)
	}
	return out, nil
}

// processBatchLeads classifies batchLeads with up to MaxConcurrentLeads
// concurrent workers. done[i] is true once results[i] holds a final
// outcome; a false tail means ctx was cancelled and the grace period
// elapsed before that lead finished.
func (r *Runner) processBatchLeads(ctx context.Context, batchLeads []leads.Lead) ([]leads.Result, []bool) {
	results := make([]leads.Result, len(batchLeads))
	done := make([]bool, len(batchLeads))
	var mu sync.Mutex
	sem := make(chan struct{}, r.config.MaxConcurrentLeads)
	var wg sync.WaitGroup

dispatch:
	for i, lead := range batchLeads {
		select {
		case <-ctx.Done():
			break dispatch
		default:
		}

		wg.Add(1)
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Done()
			break dispatch
		}

		go func(i int, lead leads.Lead) {
			defer wg.Done()
			defer func() { <-sem }()
			result := r.classifyWithRetry(ctx, lead)
			mu.Lock()
			results[i] = result
			done[i] = true
			mu.Unlock()
		}(i, lead)
	}

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-ctx.Done():
		select {
		case <-waitDone:
		case <-time.After(r.config.CancelGracePeriod):
		}
	}

	// A goroutine still in flight past the grace period is abandoned: it
	// will still write into results/done once classifyWithRetry returns,
	// but only at its own index, so copying out under the same mutex here
	// gives the caller a consistent snapshot without racing those writes.
	mu.Lock()
	defer mu.Unlock()
	resultsCopy := append([]leads.Result(nil), results...)
	doneCopy := append([]bool(nil), done...)
	return resultsCopy, doneCopy
}

// classifyWithRetry runs one lead through the classification pipeline,
// retrying retriable failures with the shared backoff schedule.
func (r *Runner) classifyWithRetry(ctx context.Context, lead leads.Lead) leads.Result {
	normalized, err := names.Normalize(lead.DirectorName)
	if err != nil {
		return leads.Result{Lead: lead, Status: leads.StatusSkipped, ErrorKind: "invalid_input", ErrorMessage: err.Error()}
	}
	input := classify.Input{Name: normalized, Codes: phonetic.Codes(normalized.Normalized)}

	var lastErr error
	attempts := 0
	for attempts < r.config.RetryMaxAttempts {
		attempts++
		result, err := r.pipeline.Classify(ctx, input)
		if err == nil {
			res := leads.Result{Lead: lead, Classification: &result, Status: leads.StatusSuccess, Attempts: attempts}
			if result.Method == classify.MethodLLM && result.Ethnicity == classify.Unknown && result.Confidence == 0 {
				// No LLM stage ran at all (disabled, or every provider's
				// breaker open): the documented llm_unavailable outcome,
				// not a retry failure, so Status stays success.
				res.ErrorKind = "llm_unavailable"
			}
			return res
		}
		lastErr = err
		kind := llmadapter.KindOf(err)
		if !kind.Retriable() || attempts == r.config.RetryMaxAttempts {
			break
		}
		timer := time.NewTimer(ratelimit.Backoff(attempts))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			lastErr = ctx.Err()
			attempts = r.config.RetryMaxAttempts
		}
	}

	// A retriable kind that exhausted the retry budget is the documented
	// llm_unavailable outcome; a non-retriable kind is terminal and keeps
	// its specific error_kind, per the fixed taxonomy.
	errorKind := string(llmadapter.KindOf(lastErr))
	if llmadapter.KindOf(lastErr).Retriable() {
		errorKind = "llm_unavailable"
	}
	fallback, cErr := classify.NewClassification(normalized, classify.Unknown, 0, classify.MethodLLM, 0)
	if cErr != nil {
		return leads.Result{Lead: lead, Status: leads.StatusFailed, ErrorKind: errorKind, ErrorMessage: lastErr.Error(), Attempts: attempts}
	}
	return leads.Result{
		Lead:           lead,
		Classification: &fallback,
		Status:         leads.StatusFailed,
		ErrorKind:      errorKind,
		ErrorMessage:   lastErr.Error(),
		Attempts:       attempts,
	}
}

// replayCommitted re-reads passthrough fields for every already-committed
// row and writes them to the sink, since a fresh Sink cannot reopen a
// partially-written output file across process restarts.
func (r *Runner) replayCommitted(ctx context.Context, jobID string, resumeState *jobstore.ResumeState) error {
	committed, err := r.store.CommittedResults(ctx, jobID)
	if err != nil {
		return err
	}
	byRow := make(map[int64]jobstore.LeadResult, len(committed))
	for _, c := range committed {
		byRow[c.RowIndex] = c
	}

	replayCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rowsCh, errCh := r.source.Rows(replayCtx, 1)
	toWrite := make([]leads.Result, 0, len(committed))
	for lead := range rowsCh {
		if lead.RowIndex >= resumeState.NextRowIndex {
			cancel()
			break
		}
		jr, ok := byRow[lead.RowIndex]
		if !ok {
			continue
		}
		toWrite = append(toWrite, leads.Result{
			Lead:           lead,
			Classification: jr.Classification,
			Status:         leads.ProcessingStatus(jr.Status),
			ErrorKind:      jr.ErrorKind,
			ErrorMessage:   jr.ErrorMessage,
			Attempts:       jr.Attempts,
		})
	}
	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			return fmt.Errorf("replaying source rows: %w", err)
		}
	default:
	}
	if len(toWrite) == 0 {
		return nil
	}
	return r.sink.WriteBatch(ctx, toWrite)
}

func toStoreResult(res leads.Result) jobstore.LeadResult {
	return jobstore.LeadResult{
		RowIndex:       res.Lead.RowIndex,
		Status:         jobstore.LeadStatus(res.Status),
		Classification: res.Classification,
		ErrorKind:      res.ErrorKind,
		ErrorMessage:   res.ErrorMessage,
		Attempts:       res.Attempts,
	}
}
