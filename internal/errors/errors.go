package errors

import "errors"

// Common error types shared by the stores and services
var (
	// Lookup errors
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user is inactive")

	// Token errors
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenRevoked     = errors.New("token revoked")
	ErrTokenBlacklisted = errors.New("token subject blacklisted")

	// ErrInvalidScope is a scope outside what the client or original grant allows.
	ErrInvalidScope = errors.New("invalid scope")
)
