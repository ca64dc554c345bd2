package wait

import "errors"

var (
	// ErrInvalidArg is returned synchronously for malformed register/update
	// arguments.
	ErrInvalidArg = errors.New("invalid argument")
	// ErrNotFound is returned when no job with the given id exists.
	ErrNotFound = errors.New("wait job not found")
	// ErrAlreadyTerminal is returned by update on a finished job.
	ErrAlreadyTerminal = errors.New("wait job already terminal")
)
