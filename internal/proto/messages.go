package proto

import (
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
)

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type RegisterUserRequest struct {
	Username string `json:"username"`
	Password []byte `json:"password"`
}

type RegisterUserResponse struct {
	UserID string `json:"user_id"`
	// APIKey is hex encoded, ready for a browser extension.
	APIKey string `json:"api_key"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password []byte `json:"password"`
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SyncRequest carries the bookmarks as a raw JSON array so the server can
// reject bad records one by one instead of failing the whole call.
type SyncRequest struct {
	Bookmarks json.RawMessage `json:"bookmarks"`
	Full      bool            `json:"full"`
}

func NewSyncRequest(bookmarks []bookmark.Bookmark, full bool) (*SyncRequest, error) {
	if bookmarks == nil {
		bookmarks = []bookmark.Bookmark{}
	}
	raw, err := json.Marshal(bookmarks)
	if err != nil {
		return nil, err
	}
	return &SyncRequest{Bookmarks: raw, Full: full}, nil
}

// RecordStatus reports one rejected record of a SyncRequest. Code is the
// name of a gRPC status code.
type RecordStatus struct {
	Index   int    `json:"index"`
	URL     string `json:"url,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SyncResponse struct {
	Bookmarks []bookmark.Bookmark `json:"bookmarks"`
	Rejected  []RecordStatus      `json:"rejected,omitempty"`
	Added     int                 `json:"added"`
	Updated   int                 `json:"updated"`
}

type ExportRequest struct{}

type ExportResponse struct {
	Key     string    `json:"key"`
	URL     string    `json:"url"`
	Count   int       `json:"count"`
	Expires time.Time `json:"expires"`
}
