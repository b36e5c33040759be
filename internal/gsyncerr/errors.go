// Package gsyncerr defines the sentinel error taxonomy of spec.md §7:
// callers use errors.Is against these to classify a failure returned from
// any of the C1-C5 entry points, the way `pkg/errors`' own Cause() pattern
// is used throughout the teacher's gsync_client.go/gsync_server.go.
package gsyncerr

import "errors"

var (
	// ErrInvalidArgument marks a failure detected at call entry (bad
	// block size, nil reader, negative offsets) before any side effect
	// occurred.
	ErrInvalidArgument = errors.New("gsync: invalid argument")

	// ErrIO names the failure class of the underlying storage (local file
	// or remote fetch). The internal packages do not attach it: storage
	// errors are returned wrapped with context around the original error,
	// so errors.Is(err, ErrIO) does not match them.
	ErrIO = errors.New("gsync: i/o failure")

	// ErrCancelled marks a task that stopped because its context was
	// cancelled or its progress callback returned false.
	ErrCancelled = errors.New("gsync: operation cancelled")

	// ErrShortFetch marks a fetch callback returning fewer bytes than
	// required for a non-final block, or more bytes than the block size
	// allows.
	ErrShortFetch = errors.New("gsync: fetch callback returned an invalid amount of data")
)
