// Package errs contains sentinel errors shared by the store and service layers.
package errs

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (wallet address, txid).
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates a missing, expired or revoked session.
	ErrUnauthorized = errors.New("unauthorized")
)
