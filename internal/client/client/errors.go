package client

import "errors"

var (
	ErrUnavailable     = errors.New("server unavailable")
	ErrUnauthenticated = errors.New("not signed in")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrExpired         = errors.New("expired")
	ErrInvalid         = errors.New("invalid request")
)
