// Package paths centralizes the on-disk layout under ~/.searchbot.
package paths

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.searchbot.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".searchbot")
}

// DBPath returns the message archive database path.
func DBPath() string {
	return filepath.Join(BaseDir(), "archive.db")
}

// LockPath returns the daemon lock file path.
func LockPath() string {
	return filepath.Join(BaseDir(), "LOCK")
}

// LogDir returns the log directory.
func LogDir() string {
	return filepath.Join(BaseDir(), "logs")
}

// LogPath returns the daemon log file path.
func LogPath() string {
	return filepath.Join(LogDir(), "searchbotd.log")
}

// ConfigPath returns the config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDirs creates the data directory tree with proper permissions.
func EnsureDirs() error {
	dirs := []string{
		BaseDir(),
		LogDir(),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
