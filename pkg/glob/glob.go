// Package glob matches store keys against the `*`/`?`-only patterns used by
// keys/scan/list. It is a thin wrapper over doublestar's single-segment
// Match, the glob library the wider retrieval pack already depends on,
// rather than a hand-rolled matcher.
package glob

import (
	"github.com/bmatcuk/doublestar/v4"
	"github.com/bobboyms/git-storage/pkg/kverrors"
)

// Match reports whether key matches pattern. Only `*` and `?` are
// meaningful; doublestar's `**` behaves as a plain `*` would for a
// single path segment, which is all a store key ever is here.
func Match(pattern, key string) (bool, error) {
	ok, err := doublestar.Match(pattern, key)
	if err != nil {
		return false, &kverrors.InvalidPatternError{Pattern: pattern, Cause: err}
	}
	return ok, nil
}
