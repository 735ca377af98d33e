// Package services holds the client's use cases: session handling against
// the server and editing, importing and syncing the local replica.
package services
