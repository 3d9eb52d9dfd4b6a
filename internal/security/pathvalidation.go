package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathComponent checks that name can be used verbatim as a single file
// or directory name. Detection labels come from an external model and end up in
// archive paths, so anything that could climb out of the archive directory or
// create nested directories is rejected rather than rewritten.
func ValidatePathComponent(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty path component")
	case name == "." || name == "..":
		return fmt.Errorf("path component %q is not allowed", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("path component %q contains a separator", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("path component %q contains a NUL byte", name)
	}
	return nil
}

// ValidatePathWithinDirectory checks lexically that filePath stays inside dir
// once both are cleaned. It does not touch the filesystem, so it works for
// directories that do not exist yet and for in-memory filesystems.
func ValidatePathWithinDirectory(filePath, dir string) error {
	cleanPath := filepath.Clean(filePath)
	cleanDir := filepath.Clean(dir)

	rel, err := filepath.Rel(cleanDir, cleanPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, dir)
	}
	return nil
}

// SafeJoin joins a trusted base directory with untrusted path components,
// validating each component and the joined result.
func SafeJoin(dir string, components ...string) (string, error) {
	for _, c := range components {
		if err := ValidatePathComponent(c); err != nil {
			return "", err
		}
	}
	joined := filepath.Join(append([]string{dir}, components...)...)
	if err := ValidatePathWithinDirectory(joined, dir); err != nil {
		return "", err
	}
	return joined, nil
}
