package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the access
// token on outbound requests.
const AccessTokenHeaderName = "access_token"

// HTTP headers carrying API credentials for the sync endpoint.
const (
	UsernameHeaderName = "X-QM-API-Username"
	APIKeyHeaderName   = "X-QM-API-Key"

	// Older extension builds still send these.
	LegacyUsernameHeaderName = "Quarchive-Username"
	LegacyAPIKeyHeaderName   = "Quarchive-API-Key"
)

// APIKeySize is the number of random bytes in a user's API key.
const APIKeySize = 32
