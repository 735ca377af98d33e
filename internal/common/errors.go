// Package common defines constants and sentinel errors shared by the
// marksync server, clients and tools. Callers match the errors with errors.Is.
package common

import "errors"

var (
	// repository specific errors
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// service specific errors
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// auth errors
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrNoCredentials       = errors.New("no api credentials")
	ErrInvalidAPIKey       = errors.New("invalid api key (should be hexadecimal)")
	ErrUserDoesNotExist    = errors.New("user does not exist")
	ErrWrongAPIKey         = errors.New("wrong api key")
)
