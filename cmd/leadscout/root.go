package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hjonck/leadscout/internal/version"
	leadscoutconfig "github.com/hjonck/leadscout/pkg/config"
)

var (
	cfgFile string
	cfg     *leadscoutconfig.Config
)

var rootCmd = &cobra.Command{
	Use:     "leadscout",
	Short:   "Classify business leads by probable ethnicity",
	Long:    `leadscout classifies South African business leads by probable ethnicity, combining a rule-based dictionary, phonetic matching, learned patterns, and an LLM fallback, with crash-safe resumable batch runs.`,
	Version: version.Get(),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $LEADSCOUT_DATA_DIR/leadscout.yaml)")

	rootCmd.PersistentFlags().Int64("batch-size", 100, "rows per commit")
	rootCmd.PersistentFlags().Int("max-concurrent-leads", 10, "worker pool size within a batch")
	rootCmd.PersistentFlags().Bool("llm-enabled", true, "allow the LLM Adapter as a last-resort classification stage")
	rootCmd.PersistentFlags().StringSlice("llm-providers", []string{"anthropic", "bedrock"}, "LLM provider priority order for failover")
	rootCmd.PersistentFlags().Int("llm-request-timeout-s", 30, "per-request LLM timeout, in seconds")
	rootCmd.PersistentFlags().Int("retry-max-attempts", 6, "maximum classification attempts per lead")
	rootCmd.PersistentFlags().Int("lock-ttl-s", 900, "job lock expiration, in seconds")
	rootCmd.PersistentFlags().Bool("force-clear-stale-locks", false, "clear a stale lock instead of failing with a lock conflict")
	rootCmd.PersistentFlags().String("anthropic-key", "", "Anthropic API key (or use keyring/env)")

	_ = viper.BindPFlag("batch_size", rootCmd.PersistentFlags().Lookup("batch-size"))
	_ = viper.BindPFlag("max_concurrent_leads", rootCmd.PersistentFlags().Lookup("max-concurrent-leads"))
	_ = viper.BindPFlag("llm_enabled", rootCmd.PersistentFlags().Lookup("llm-enabled"))
	_ = viper.BindPFlag("llm_providers", rootCmd.PersistentFlags().Lookup("llm-providers"))
	_ = viper.BindPFlag("llm_request_timeout_s", rootCmd.PersistentFlags().Lookup("llm-request-timeout-s"))
	_ = viper.BindPFlag("retry_max_attempts", rootCmd.PersistentFlags().Lookup("retry-max-attempts"))
	_ = viper.BindPFlag("lock_ttl_s", rootCmd.PersistentFlags().Lookup("lock-ttl-s"))
	_ = viper.BindPFlag("force_clear_stale_locks", rootCmd.PersistentFlags().Lookup("force-clear-stale-locks"))
	_ = viper.BindPFlag("anthropic_api_key", rootCmd.PersistentFlags().Lookup("anthropic-key"))
}

// initConfig reads the config file, environment, and keyring once cobra
// has parsed flags, so flag values take priority over all of them.
func initConfig() {
	var err error
	cfg, err = leadscoutconfig.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}
