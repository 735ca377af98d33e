// Package filex resolves the directories the client keeps its files in.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// userConfigDir is a seam for tests.
var userConfigDir = os.UserConfigDir

// EnsureDir creates dir (and parents) with owner and group access only, and
// returns its absolute path.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}
	return abs, nil
}

// DataDir returns dir when set, otherwise <user config dir>/<app>, creating
// it either way.
func DataDir(dir, app string) (string, error) {
	if dir == "" {
		base, err := userConfigDir()
		if err != nil {
			return "", fmt.Errorf("user config dir: %w", err)
		}
		dir = filepath.Join(base, app)
	}
	return EnsureDir(dir)
}
