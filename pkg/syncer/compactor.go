package syncer

import (
	"fmt"

	"github.com/bobboyms/git-storage/pkg/bucket"
	"github.com/bobboyms/git-storage/pkg/gitrepo"
	"github.com/rs/zerolog"
)

const (
	// DefaultWriteCountThreshold is spec.md §6's default history.writeCountThreshold.
	DefaultWriteCountThreshold = 200
	// DefaultWriteBytesThreshold is spec.md §6's default history.writeBytesThreshold (5 MiB).
	DefaultWriteBytesThreshold = 5 * 1024 * 1024
)

// runCompaction fires after a successful sync round. It is a no-op unless
// history is enabled, a remote is configured (nothing to push otherwise),
// and either write counter has crossed its threshold.
func runCompaction(repo gitrepo.Repo, buckets *bucket.Store, opts Options, log zerolog.Logger) error {
	if !opts.HistoryEnabled || !repo.HasRemote() {
		return nil
	}

	countLimit := opts.WriteCountLimit
	if countLimit == 0 {
		countLimit = DefaultWriteCountThreshold
	}
	byteLimit := opts.WriteByteLimit
	if byteLimit == 0 {
		byteLimit = DefaultWriteBytesThreshold
	}

	count, bytes := buckets.WriteCounters()
	if count < countLimit && bytes < byteLimit {
		return nil
	}

	log.Info().Uint64("writeCount", count).Uint64("writeBytes", bytes).Msg("compacting history")

	if err := repo.RemoveGitDir(); err != nil {
		return fmt.Errorf("remove .git: %w", err)
	}
	if err := repo.EnsureInitialized(opts.Branch); err != nil {
		return fmt.Errorf("reinitialize repo: %w", err)
	}
	if err := repo.EnsureRemote(opts.RemoteURL); err != nil {
		return fmt.Errorf("reattach origin: %w", err)
	}
	if err := repo.EnsureBranch(opts.Branch); err != nil {
		return fmt.Errorf("checkout branch: %w", err)
	}

	changed, err := repo.StageAll()
	if err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	if changed {
		if err := repo.Commit("compact history"); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}
	if err := repo.Push(opts.Branch, true); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	buckets.ResetCounters()
	return nil
}
