package store

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// HistoryConfig controls the compactor's enablement and thresholds.
type HistoryConfig struct {
	Enabled             bool
	WriteCountThreshold uint64
	WriteBytesThreshold uint64
}

// Config is the full set of knobs a Store accepts. Build one from
// DefaultConfig and override only the fields that matter; the bool flags
// have no implicit default (Go's zero value is already false), so
// starting from anything else silently disables auto-sync.
type Config struct {
	RepoURL  string
	Branch   string
	Username string
	Token    string
	DataDir  string

	AutoSync            bool
	SyncOnChange        bool
	SyncIntervalMinutes int

	History HistoryConfig
	// Logger must not be left at its zero value; build Config from
	// DefaultConfig, or set this explicitly to zerolog.Nop() or a real
	// logger.
	Logger zerolog.Logger
}

// DefaultConfig returns the configuration spec.md §6 describes as the
// library's defaults: branch "main", username "git", auto-sync and
// on-change sync enabled, no periodic interval, history compaction on
// with the 200-write / 5 MiB thresholds.
func DefaultConfig() Config {
	return Config{
		Branch:       "main",
		Username:     "git",
		DataDir:      defaultDataDir(),
		AutoSync:     true,
		SyncOnChange: true,
		History: HistoryConfig{
			Enabled:             true,
			WriteCountThreshold: 200,
			WriteBytesThreshold: 5 * 1024 * 1024,
		},
		Logger: zerolog.Nop(),
	}
}

func defaultDataDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return filepath.Join(cwd, "storage", ".git-storage")
}

// withFallbacks fills in the handful of fields that must never be empty
// even if the caller built Config by hand instead of from DefaultConfig.
func withFallbacks(c Config) Config {
	if c.Branch == "" {
		c.Branch = "main"
	}
	if c.Username == "" {
		c.Username = "git"
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
	return c
}
