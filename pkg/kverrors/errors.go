// Package kverrors defines the typed error values used across the store,
// in the same style as the teacher's own pkg/errors: small structs that
// carry the failing operand and format their own message.
package kverrors

import "fmt"

// ErrSyncInFlight's message is the Result.Error that Sync reports when a
// round is already running. Callers never wait; they are expected to retry
// later.
var ErrSyncInFlight = fmt.Errorf("sync already in flight")

// ErrIndexOutOfRange is returned by list operations addressing a missing
// or out-of-bounds element.
var ErrIndexOutOfRange = fmt.Errorf("index out of range")

// WrongTypeError is returned when an operation expects one record type
// (usually list) but the key holds another.
type WrongTypeError struct {
	Key      string
	Expected string
	Actual   string
}

func (e *WrongTypeError) Error() string {
	return "WRONGTYPE Operation against a key holding the wrong kind of value"
}

// CorruptBucketError is reported (not returned) to the logger when a bucket
// file fails to parse. The store tolerates this and returns an empty map.
type CorruptBucketError struct {
	Bucket string
	Cause  error
}

func (e *CorruptBucketError) Error() string {
	return fmt.Sprintf("bucket %q is corrupt: %v", e.Bucket, e.Cause)
}

func (e *CorruptBucketError) Unwrap() error { return e.Cause }

// RemoteBranchAbsentError marks a fetch/resolve failure that the coordinator
// treats as "the branch does not exist on the remote yet", not a hard error.
type RemoteBranchAbsentError struct {
	Branch string
	Cause  error
}

func (e *RemoteBranchAbsentError) Error() string {
	return fmt.Sprintf("remote branch %q not found: %v", e.Branch, e.Cause)
}

func (e *RemoteBranchAbsentError) Unwrap() error { return e.Cause }

// InvalidPatternError marks a scan/keys glob pattern that failed to compile.
type InvalidPatternError struct {
	Pattern string
	Cause   error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Cause)
}

func (e *InvalidPatternError) Unwrap() error { return e.Cause }
