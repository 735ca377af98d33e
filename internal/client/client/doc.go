// Package client talks to the marksync server and opens the local replica.
//
// Client is the transport contract the client services depend on; GRPCClient
// implements it over gRPC, attaching the access token to every call and
// refreshing it once when the server reports it expired. Status codes are
// mapped to the sentinel errors in errors.go so callers can use errors.Is.
//
// InitDatabase opens the SQLite replica and applies its embedded migrations.
package client
