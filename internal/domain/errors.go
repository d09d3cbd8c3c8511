package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	// ErrPersistence marks a failed store write; callers must not treat the record as delivered.
	ErrPersistence = errors.New("persistence failure")
	// ErrTransport marks a failed write to a single live connection. It is logged, never propagated.
	ErrTransport = errors.New("transport failure")
)
