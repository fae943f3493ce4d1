package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hjonck/leadscout/pkg/config"
)

func TestGetLeadScoutDataDirDefaultsUnderHome(t *testing.T) {
	t.Setenv("LEADSCOUT_DATA_DIR", "")
	dir := config.GetLeadScoutDataDir()
	assert.Contains(t, dir, ".leadscout")
	assert.True(t, filepath.IsAbs(dir))
}

func TestGetLeadScoutDataDirHonorsEnvOverride(t *testing.T) {
	t.Setenv("LEADSCOUT_DATA_DIR", "/tmp/custom-leadscout")
	assert.Equal(t, "/tmp/custom-leadscout", config.GetLeadScoutDataDir())
}

func TestGetLeadScoutDataDirExpandsTilde(t *testing.T) {
	t.Setenv("LEADSCOUT_DATA_DIR", "~/my-leadscout")
	dir := config.GetLeadScoutDataDir()
	assert.True(t, filepath.IsAbs(dir))
	assert.Contains(t, dir, "my-leadscout")
}

func TestLoadConfigAppliesDocumentedDefaults(t *testing.T) {
	t.Setenv("LEADSCOUT_DATA_DIR", t.TempDir())
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.EqualValues(t, 100, cfg.BatchSize)
	assert.Equal(t, 10, cfg.MaxConcurrentLeads)
	assert.True(t, cfg.LLMEnabled)
	assert.Equal(t, []string{"anthropic", "bedrock"}, cfg.LLMProviders)
	assert.Equal(t, 30, cfg.LLMRequestTimeoutS)
	assert.Equal(t, 6, cfg.RetryMaxAttempts)
	assert.Equal(t, 0.5, cfg.PatternDeactivationThreshold)
	assert.Equal(t, 20, cfg.MinApplicationsForDeactivation)
	assert.Equal(t, 900, cfg.LockTTLSeconds)
	assert.False(t, cfg.ForceClearStaleLocks)
}

func TestConfigDBPathsAreSiblingsUnderDataDir(t *testing.T) {
	cfg := &config.Config{DataDir: "/var/lib/leadscout"}
	assert.Equal(t, "/var/lib/leadscout/jobs.db", cfg.JobsDBPath())
	assert.Equal(t, "/var/lib/leadscout/learning.db", cfg.LearningDBPath())
}

func TestSecretMappingsReportUnsetUntilFilled(t *testing.T) {
	cfg := &config.Config{}
	for _, mapping := range config.GetSecretMappings() {
		assert.False(t, mapping.IsSet(cfg), "mapping %s should start unset", mapping.KeyringKey)
		mapping.Setter(cfg, "xyz")
		assert.True(t, mapping.IsSet(cfg), "mapping %s should report set after Setter", mapping.KeyringKey)
	}
}
