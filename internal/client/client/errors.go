package client

import "errors"

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUserExists   = errors.New("user already exists")
	ErrRejected     = errors.New("request rejected")
	ErrNotLoggedIn  = errors.New("not logged in")
)
