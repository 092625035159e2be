package models

import "errors"

var (
	// ErrValidation marks input rejected before it reaches a store.
	ErrValidation = errors.New("validation error")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStorage wraps local persistence failures.
	ErrStorage = errors.New("storage error")
	// ErrAuth wraps sign-up, sign-in and missing-session failures.
	ErrAuth = errors.New("auth error")
	// ErrSync wraps network or remote failures during push or pull.
	ErrSync = errors.New("sync error")
)
