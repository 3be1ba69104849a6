package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsurePrivateDir makes sure dir exists with owner-only permissions and
// returns its absolute path. Relative paths are resolved against the current
// working directory. Pre-existing directories are tightened to 0700; object
// payloads must not be readable by other local users.
func EnsurePrivateDir(dir string) (string, error) {
	if !filepath.IsAbs(dir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		dir = filepath.Join(cwd, dir)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	if err := os.Chmod(dir, 0o700); err != nil {
		return "", fmt.Errorf("chmod %s: %w", dir, err)
	}

	return dir, nil
}
