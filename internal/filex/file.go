// Package filex contains filesystem helpers for the client profile directory.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureParentDir creates the directory that will hold path (for example the
// durable state database) with owner-only permissions and returns it.
// In-memory SQLite DSNs need no directory and are returned as "".
func EnsureParentDir(path string) (string, error) {
	if path == "" || path == ":memory:" || (len(path) > 5 && path[:5] == "file:") {
		return "", nil
	}

	dir := filepath.Dir(path)
	if dir == "." {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		return cwd, nil
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}
