package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// StripControl removes NUL and other control characters from s
func StripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// ConfinePath joins rel onto base and fails when the result escapes base
func ConfinePath(base, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute paths not allowed: %s", rel)
	}

	cleanBase := filepath.Clean(base)
	full := filepath.Join(cleanBase, rel)

	relPath, err := filepath.Rel(cleanBase, full)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes %s: %s", base, rel)
	}

	return full, nil
}
