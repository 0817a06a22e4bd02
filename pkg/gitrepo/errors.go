package gitrepo

import (
	"errors"
	"strings"

	"github.com/bobboyms/git-storage/pkg/kverrors"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// IsRemoteBranchAbsent reports whether err means "the remote branch does
// not exist yet", as opposed to a genuine transport failure. It checks the
// typed kverrors.RemoteBranchAbsentError Fetch itself returns first, then
// go-git's own sentinels, and falls back to the substring sniff spec.md §9
// describes only when the error matches neither — a transport or fork of
// go-git that doesn't use these sentinels still gets a chance to be
// recognized.
func IsRemoteBranchAbsent(err error) bool {
	if err == nil {
		return false
	}
	var branchAbsent *kverrors.RemoteBranchAbsentError
	if errors.As(err, &branchAbsent) {
		return true
	}
	if errors.Is(err, transport.ErrEmptyRemoteRepository) ||
		errors.Is(err, plumbing.ErrReferenceNotFound) ||
		errors.Is(err, git.ErrRemoteNotFound) {
		return true
	}
	msg := err.Error()
	if strings.Contains(msg, "NotFoundError") && strings.Contains(msg, "origin/") {
		return true
	}
	// go-git's own fetch error for a ref that doesn't exist on the remote
	// doesn't wrap one of the sentinels above; match its literal text too.
	return strings.Contains(msg, "couldn't find remote ref")
}
