// Package models holds the server's persisted account records.
package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	UserName     string
	PasswordHash []byte
	APIKey       []byte
	Registered   time.Time
}
