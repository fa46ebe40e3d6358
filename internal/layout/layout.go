package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lopugit/ytmcloner/internal/catalog"
	"github.com/lopugit/ytmcloner/internal/security"
)

// DefaultExt is the extension of every produced file
const DefaultExt = ".mp3"

var separators = strings.NewReplacer("/", "-", "\\", "-")

// Sanitize makes s usable as a single path element: separators become "-",
// control characters are dropped, and names that are empty or "." / ".."
// become "_".
func Sanitize(s string) string {
	s = separators.Replace(security.StripControl(s))
	switch s {
	case "", ".", "..":
		return "_"
	}
	return s
}

// Resolver maps (song, playlist) pairs to OutputDir/<playlist>/<title><Ext>
type Resolver struct {
	OutputDir string
	Ext       string
}

// NewResolver creates a resolver; an empty ext selects DefaultExt
func NewResolver(outputDir, ext string) Resolver {
	if ext == "" {
		ext = DefaultExt
	}
	return Resolver{OutputDir: outputDir, Ext: ext}
}

// Resolve returns the target path of song inside playlist. It is pure.
func (r Resolver) Resolve(song *catalog.Song, playlist string) string {
	return filepath.Join(r.OutputDir, Sanitize(playlist), Sanitize(song.Title)+r.Ext)
}

// Targets returns one path per playlist membership, in membership order
func (r Resolver) Targets(song *catalog.Song) []string {
	paths := make([]string, len(song.Playlists))
	for i, p := range song.Playlists {
		paths[i] = r.Resolve(song, p)
	}
	return paths
}

// Primary returns the first target, the one used for existence checks
func (r Resolver) Primary(song *catalog.Song) string {
	if len(song.Playlists) == 0 {
		return ""
	}
	return r.Resolve(song, song.Playlists[0])
}

// Exists reports whether a regular file is already present at path
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Prepare creates the parent directory of every path. It is safe to call
// concurrently for overlapping paths and fails if a path escapes OutputDir.
func (r Resolver) Prepare(paths []string) error {
	for _, p := range paths {
		rel, err := filepath.Rel(r.OutputDir, p)
		if err != nil {
			return fmt.Errorf("path %s is outside %s: %w", p, r.OutputDir, err)
		}
		if _, err := security.ConfinePath(r.OutputDir, rel); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", p, err)
		}
	}
	return nil
}
