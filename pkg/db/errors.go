package db

import "errors"

var (
	// ErrNotFound indicates an operation referenced an identifier that is
	// absent from storage.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates an operation violated a lifecycle rule,
	// such as closing an already-closed session or recording an outcome
	// other than pass/fail.
	ErrInvalidState = errors.New("invalid state")
)
