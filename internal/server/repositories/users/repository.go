package users

import (
	"context"

	"github.com/dmitrijs2005/marksync/internal/server/models"
)

type Repository interface {
	// Create inserts the user; a taken username yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}
