// Package apperr holds the application-level error sentinels shared by the
// library client, the lending service and the gateway.
package apperr

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	// ErrInFlight means the same borrow or return is already being processed.
	ErrInFlight = errors.New("request already in progress")
)
