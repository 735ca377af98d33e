// Package metadata is a small key/value store in the client replica for the
// session: who is logged in, their tokens and when they last synced.
package metadata

import (
	"context"
)

const (
	KeyUsername     = "username"
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyLastSync     = "last_sync"
)

type Repository interface {
	// Get returns nil, nil for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}

// GetString is Get for text values; a missing key reads as "".
func GetString(ctx context.Context, r Repository, key string) (string, error) {
	v, err := r.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// SetStrings stores several text values.
func SetStrings(ctx context.Context, r Repository, values map[string]string) error {
	for k, v := range values {
		if err := r.Set(ctx, k, []byte(v)); err != nil {
			return err
		}
	}
	return nil
}
