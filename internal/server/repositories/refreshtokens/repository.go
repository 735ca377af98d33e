// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/marksync/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking refresh tokens.
type Repository interface {
	// Create stores a new refresh token for userID with an expiry of now+validity.
	Create(ctx context.Context, userID uuid.UUID, token string, validity time.Duration) error

	// Find looks up a refresh token. An absent token is common.ErrorNotFound.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes a refresh token. Deleting an absent token is not an error.
	Delete(ctx context.Context, token string) error
}
