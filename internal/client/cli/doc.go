// Package cli is the marksync command-line client.
//
// Each invocation opens the local replica, resumes the saved session, runs
// one command and stores any tokens that were rotated on the way. Edits
// (add, tag, untag, delete, import) only touch the replica; sync exchanges
// pending bookmarks with the server and merges its answer back in.
package cli
