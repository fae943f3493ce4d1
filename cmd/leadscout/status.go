package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hjonck/leadscout/pkg/jobstore"
	"github.com/hjonck/leadscout/pkg/observability"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Print a job's current status and progress",
	Args:  cobra.ExactArgs(1),
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	store, err := jobstore.Open(ctx, cfg.JobsDBPath(), observability.NewNoOpTracer())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUnrecoverableStore)
	}
	defer store.Close()

	job, err := store.JobStatus(ctx, args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInputValidation)
	}

	fmt.Printf("job_id:          %s\n", job.JobID)
	fmt.Printf("status:          %s\n", job.Status)
	fmt.Printf("processed_count: %d\n", job.ProcessedCount)
	fmt.Printf("total_rows:      %d\n", job.TotalRows)
	fmt.Printf("started_at:      %d\n", job.StartedAt)
	if job.CompletedAt != 0 {
		fmt.Printf("completed_at:    %d\n", job.CompletedAt)
	}
}
