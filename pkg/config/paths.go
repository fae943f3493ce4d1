package config

import (
	"os"
	"path/filepath"
	"strings"
)

// GetLeadScoutDataDir returns the directory where job/learning databases,
// config files, and logs live.
//
// Priority:
//  1. LEADSCOUT_DATA_DIR environment variable (if set and non-empty)
//  2. ~/.leadscout (default)
//
// The returned path is absolute whenever the home directory (and, for a
// relative LEADSCOUT_DATA_DIR, the current directory) can be resolved;
// otherwise the unresolved path is returned. A leading "~/" in
// LEADSCOUT_DATA_DIR is expanded to the user's home directory and
// relative paths are resolved against the current directory.
//
// This reads directly from os.Getenv rather than viper, since it is called
// during bootstrap to locate the config file itself, before viper has
// anything to read.
func GetLeadScoutDataDir() string {
	if dataDir := os.Getenv("LEADSCOUT_DATA_DIR"); dataDir != "" {
		return expandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".leadscout"
	}
	return filepath.Join(homeDir, ".leadscout")
}

// GetLeadScoutSubDir returns a subdirectory within the data directory.
// Example: GetLeadScoutSubDir("logs") returns ~/.leadscout/logs.
func GetLeadScoutSubDir(subdir string) string {
	return filepath.Join(GetLeadScoutDataDir(), subdir)
}

// expandPath expands a leading ~ and resolves the result to an absolute path.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
