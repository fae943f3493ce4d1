package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hjonck/leadscout/internal/log"
	"github.com/hjonck/leadscout/pkg/batchrunner"
	"github.com/hjonck/leadscout/pkg/classify"
	"github.com/hjonck/leadscout/pkg/dictionary"
	"github.com/hjonck/leadscout/pkg/jobstore"
	"github.com/hjonck/leadscout/pkg/learning"
	"github.com/hjonck/leadscout/pkg/llmadapter"
	"github.com/hjonck/leadscout/pkg/observability"
	"github.com/hjonck/leadscout/pkg/ratelimit"
	"github.com/hjonck/leadscout/pkg/spreadsheet"
)

// Exit codes, in the order an operator should check for them.
const (
	exitSuccess            = 0
	exitInputValidation    = 2
	exitLockConflict       = 3
	exitUnrecoverableStore = 4
	exitCancelled          = 5
)

var (
	runOutputPath string
	runSheet      string
)

var runCmd = &cobra.Command{
	Use:   "run <input.xlsx>",
	Short: "Classify every lead in the input workbook, resuming any paused job for the same input",
	Args:  cobra.ExactArgs(1),
	Run:   runRun,
}

// resumeCmd is an alias for run: BeginJob already resumes a paused job
// for the same input fingerprint, so resuming is just running again.
var resumeCmd = &cobra.Command{
	Use:   "resume <input.xlsx>",
	Short: "Resume a paused job for the given input workbook",
	Args:  cobra.ExactArgs(1),
	Run:   runRun,
}

func init() {
	for _, c := range []*cobra.Command{runCmd, resumeCmd} {
		c.Flags().StringVar(&runOutputPath, "output", "", "output workbook path (default: <input>.classified.xlsx)")
		c.Flags().StringVar(&runSheet, "sheet", "", "sheet name (default: the workbook's first sheet)")
		rootCmd.AddCommand(c)
	}
}

func runRun(cmd *cobra.Command, args []string) {
	os.Exit(runMain(args[0]))
}

func runMain(inputPath string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("leadscout: received interrupt, pausing after the in-flight batch")
		cancel()
	}()

	outputPath := runOutputPath
	if outputPath == "" {
		outputPath = inputPath + ".classified.xlsx"
	}

	source, err := spreadsheet.NewSource(inputPath, runSheet)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitInputValidation
	}
	headers, err := source.Headers(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitInputValidation
	}
	sink, err := spreadsheet.NewSink(outputPath, runSheet, headers)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitInputValidation
	}

	jobStore, err := jobstore.Open(ctx, cfg.JobsDBPath(), observability.NewNoOpTracer())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUnrecoverableStore
	}
	defer jobStore.Close()

	learningStore, err := learning.Open(ctx, cfg.LearningDBPath(), observability.NewNoOpTracer())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUnrecoverableStore
	}
	defer learningStore.Close()

	pipeline, recorder, closeLimiter, err := buildPipeline(ctx, learningStore)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUnrecoverableStore
	}
	defer closeLimiter()

	runner := batchrunner.New(jobStore, pipeline, source, sink, batchrunner.Config{
		BatchSize:          cfg.BatchSize,
		MaxConcurrentLeads: cfg.MaxConcurrentLeads,
		LockTTL:            time.Duration(cfg.LockTTLSeconds) * time.Second,
		ForceLock:          cfg.ForceClearStaleLocks,
		RetryMaxAttempts:   cfg.RetryMaxAttempts,
	}, observability.NewNoOpTracer())

	owner, _ := os.Hostname()
	if owner == "" {
		owner = "leadscout"
	}

	result, err := runner.Run(ctx, owner, func(ev batchrunner.ProgressEvent) {
		log.Info("leadscout: progress",
			zap.Int64("processed", ev.Processed),
			zap.Int64("total", ev.Total),
			zap.Float64("rate_per_second", ev.RatePerSecond),
			zap.Float64("eta_seconds", ev.ETASeconds))
	})
	if err != nil {
		if errors.Is(err, batchrunner.ErrCancelled) {
			fmt.Fprintf(os.Stderr, "leadscout: job %s paused after cancellation (%d/%d rows processed)\n", result.JobID, result.ProcessedCount, result.TotalRows)
			return exitCancelled
		}
		if errors.Is(err, jobstore.ErrLockConflict) {
			fmt.Fprintln(os.Stderr, err)
			return exitLockConflict
		}
		fmt.Fprintln(os.Stderr, err)
		return exitUnrecoverableStore
	}

	fmt.Printf("leadscout: job %s completed, %d/%d rows processed\n", result.JobID, result.ProcessedCount, result.TotalRows)
	if n := recorder.WriteFailures(); n > 0 {
		fmt.Printf("leadscout: %d learning store write(s) failed and were skipped (see logs)\n", n)
	}
	return exitSuccess
}

// buildPipeline assembles the full classification cascade: rule-based
// dictionary, phonetic family matcher, learned patterns and exact cache,
// and finally the LLM Adapter, in that priority order.
func buildPipeline(ctx context.Context, learningStore *learning.Store) (*classify.Pipeline, *learningRecorder, func(), error) {
	noop := func() {}
	dictStore, err := dictionary.Load()
	if err != nil {
		return nil, nil, noop, fmt.Errorf("leadscout: loading dictionary: %w", err)
	}

	stages := []classify.Classifier{
		dictionary.NewRuleClassifier(dictStore),
		learning.NewPhoneticClassifier(learningStore),
		learning.NewLearnedClassifier(learningStore),
	}
	cleanup := noop

	if cfg.LLMEnabled {
		providers, err := llmadapter.BuildProviders(ctx, llmadapter.FactoryConfig{
			Providers:              cfg.LLMProviders,
			AnthropicAPIKey:        cfg.AnthropicAPIKey,
			BedrockRegion:          cfg.BedrockRegion,
			BedrockAccessKeyID:     cfg.BedrockAccessKeyID,
			BedrockSecretAccessKey: cfg.BedrockSecretAccessKey,
			BedrockSessionToken:    cfg.BedrockSessionToken,
			RequestTimeoutSeconds:  cfg.LLMRequestTimeoutS,
		})
		if err != nil {
			return nil, nil, noop, fmt.Errorf("leadscout: building llm providers: %w", err)
		}
		if len(providers) > 0 {
			limiterConfigs := make([]ratelimit.Config, 0, len(providers))
			for _, p := range providers {
				rpm := cfg.LLMPerProviderRPM[p.Name()]
				if rpm <= 0 {
					rpm = 50
				}
				limiterConfigs = append(limiterConfigs, ratelimit.Config{
					Provider:          p.Name(),
					RequestsPerSecond: float64(rpm) / 60,
					BurstCapacity:     5,
				})
			}
			limiter := ratelimit.New(limiterConfigs...)
			cleanup = limiter.Close
			stages = append(stages, llmadapter.NewClassifier(providers, limiter, learningStore))
		}
	}

	recorder := newLearningRecorder(learningStore)
	return classify.NewPipeline(recorder, stages...), recorder, cleanup, nil
}
