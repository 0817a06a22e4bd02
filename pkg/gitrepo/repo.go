// Package gitrepo is the thin adapter between the sync coordinator and the
// Git transport. spec.md treats Git itself as an external collaborator
// ("assumed available as a library"); this package is that library's
// narrow seam, backed by go-git so the coordinator never shells out to a
// git binary.
package gitrepo

// Repo is everything the sync coordinator needs from a working copy plus
// its origin remote. One Repo instance owns one dataDir exclusively.
type Repo interface {
	// EnsureInitialized creates dataDir if needed and runs `git init`
	// with defaultBranch as HEAD if .git is absent. It is a no-op on an
	// already-initialized repo.
	EnsureInitialized(defaultBranch string) error

	// EnsureRemote adds origin pointing at url unless it is already
	// configured. A blank url means "no remote configured".
	EnsureRemote(url string) error

	// HasRemote reports whether origin is configured.
	HasRemote() bool

	// SetAuth configures the username/token pair used for fetch and push.
	SetAuth(username, token string)

	// EnsureBranch checks out branch, creating it locally (from
	// origin/branch if that exists, or from scratch otherwise) if it
	// does not already exist locally.
	EnsureBranch(branch string) error

	// Fetch updates origin/branch. A RemoteBranchAbsentError is returned
	// (not a generic error) when the branch simply does not exist yet on
	// the remote.
	Fetch(branch string) error

	// ListRemoteBucketFiles lists the data/*.json paths present in the
	// tree at origin/branch. Returns (nil, nil) if the ref cannot be
	// resolved (nothing has been pushed yet).
	ListRemoteBucketFiles(branch string) ([]string, error)

	// ReadRemoteFile reads one blob's contents from the tree at
	// origin/branch. Returns (nil, err) if the ref, path, or blob cannot
	// be resolved; callers treat any error here as "file absent".
	ReadRemoteFile(branch, path string) ([]byte, error)

	// StageAll walks the working-tree status matrix and stages every
	// path whose head/worktree/stage are not all equal: additions and
	// modifications are `add`-ed, deletions are `rm`-ed. It reports
	// whether anything was staged.
	StageAll() (bool, error)

	// Commit records the current index with the fixed author identity.
	// Callers only invoke this after StageAll reports changes.
	Commit(message string) error

	// Push pushes branch to origin, as a force-push when force is true.
	Push(branch string, force bool) error

	// RemoveGitDir deletes the local .git directory entirely, used by
	// the compactor immediately before EnsureInitialized re-creates it.
	RemoveGitDir() error
}

// AuthorName and AuthorEmail are the fixed commit identity spec.md §6
// mandates for every sync and compaction commit.
const (
	AuthorName  = "git-storage"
	AuthorEmail = "sync@git-storage.local"
)
