package errcodes

import "errors"

var (
	// ErrNoRecordFound is returned by store lookups that match nothing.
	ErrNoRecordFound = errors.New("no record found")
	// ErrContextCancelled is returned when an operation is aborted by its context.
	ErrContextCancelled = errors.New("context cancelled")
)
