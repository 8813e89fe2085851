// Package common defines shared constants and sentinel errors used across
// cabinetsync components. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrValidation     = errors.New("validation error")

	// Sync lifecycle errors.
	ErrExpired = errors.New("sync package expired")

	// Crypto errors. ErrKeyMismatch is reported before any decryption is
	// attempted; it still matches ErrIntegrity.
	ErrIntegrity   = errors.New("integrity failure")
	ErrKeyMismatch = fmt.Errorf("%w: key mismatch", ErrIntegrity)

	// Collaborator (blob store, relational store) errors.
	ErrTransport = errors.New("transport error")

	// Auth errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// User-facing messages. Integrity and transport failures share the generic
// message so that no cryptographic detail reaches the caller.
const (
	MessageUnauthorized = "You are not allowed to access this shared record."
	MessageExpired      = "This shared record has expired. Ask the owner to share it again."
	MessageValidation   = "The request is invalid."
	MessageGeneric      = "Operation failed, please retry."
)

// UserMessage maps an error returned by the sync workflows to a
// non-technical message suitable for display.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrorUnauthorized), errors.Is(err, ErrorNotFound):
		return MessageUnauthorized
	case errors.Is(err, ErrExpired):
		return MessageExpired
	case errors.Is(err, ErrValidation):
		return MessageValidation
	default:
		return MessageGeneric
	}
}
