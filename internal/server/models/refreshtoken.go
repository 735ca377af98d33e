package models

import (
	"time"

	"github.com/google/uuid"
)

type RefreshToken struct {
	UserID  uuid.UUID
	Token   string
	Expires time.Time
}
