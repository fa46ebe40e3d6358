package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Snapshot file names inside the dump directory
const (
	PlaylistNamesFile = "playlistNames.json"
	PlaylistItemsFile = "playlistItems.json"
	SongsFile         = "songs.json"
	SongMapFile       = "songMap.json"
)

// Catalog is the deduplicated set of songs discovered across playlists.
// It is built single-threaded and read-only once downloads start.
type Catalog struct {
	songs []*Song
	index map[string]*Song

	playlistNames []string
	playlistItems map[string][]Item
}

// New creates an empty catalog
func New() *Catalog {
	return &Catalog{
		index:         make(map[string]*Song),
		playlistItems: make(map[string][]Item),
	}
}

// Fold merges one playlist's items into the catalog. Each video id maps to
// exactly one Song; the playlist name is appended once per fold even if the
// playlist lists the same video twice. Items without a video id are ignored.
func (c *Catalog) Fold(playlistName string, items []Item) {
	if _, ok := c.playlistItems[playlistName]; !ok {
		c.playlistNames = append(c.playlistNames, playlistName)
	}
	c.playlistItems[playlistName] = append(c.playlistItems[playlistName], items...)

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if item.VideoID == "" || seen[item.VideoID] {
			continue
		}
		seen[item.VideoID] = true

		song, ok := c.index[item.VideoID]
		if !ok {
			song = &Song{ID: item.VideoID, Title: item.Title}
			c.songs = append(c.songs, song)
			c.index[song.ID] = song
		}
		song.Playlists = append(song.Playlists, playlistName)
	}
}

// Songs returns the songs in first-seen order
func (c *Catalog) Songs() []*Song {
	return c.songs
}

// Song looks up a song by video id
func (c *Catalog) Song(id string) (*Song, bool) {
	s, ok := c.index[id]
	return s, ok
}

// Len returns the number of distinct songs
func (c *Catalog) Len() int {
	return len(c.songs)
}

// Pairs returns the number of (song, playlist) memberships
func (c *Catalog) Pairs() int {
	n := 0
	for _, s := range c.songs {
		n += len(s.Playlists)
	}
	return n
}

// PlaylistNames returns the folded playlist names in fold order
func (c *Catalog) PlaylistNames() []string {
	return c.playlistNames
}

// Load reads a catalog snapshot written by Save. songs.json is required;
// songMap.json is cross-checked when present and songs only listed there
// are appended in id order.
func Load(dir string) (*Catalog, error) {
	var songs []*Song
	if err := readJSON(filepath.Join(dir, SongsFile), &songs); err != nil {
		return nil, fmt.Errorf("failed to load catalog snapshot: %w", err)
	}

	c := New()
	for i, s := range songs {
		if err := c.add(s); err != nil {
			return nil, fmt.Errorf("%s entry %d: %w", SongsFile, i, err)
		}
	}

	var songMap map[string]*Song
	err := readJSON(filepath.Join(dir, SongMapFile), &songMap)
	switch {
	case err == nil:
		ids := make([]string, 0, len(songMap))
		for id := range songMap {
			if _, ok := c.index[id]; !ok {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		for _, id := range ids {
			s := songMap[id]
			if s != nil && s.ID == "" {
				s.ID = id
			}
			if err := c.add(s); err != nil {
				return nil, fmt.Errorf("%s entry %q: %w", SongMapFile, id, err)
			}
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	// optional, informational only; absent is fine, corrupt is not
	if err := readJSON(filepath.Join(dir, PlaylistNamesFile), &c.playlistNames); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, PlaylistItemsFile), &c.playlistItems); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if c.playlistItems == nil {
		c.playlistItems = make(map[string][]Item)
	}

	return c, nil
}

func (c *Catalog) add(s *Song) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("song without id")
	}
	if len(s.Playlists) == 0 {
		return fmt.Errorf("song %s has no playlists", s.ID)
	}
	if _, dup := c.index[s.ID]; dup {
		return fmt.Errorf("duplicate song id %s", s.ID)
	}
	c.songs = append(c.songs, s)
	c.index[s.ID] = s
	return nil
}

// Save writes the four snapshot files into dir, each atomically
func (c *Catalog) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create dump directory: %w", err)
	}

	names := c.playlistNames
	if names == nil {
		names = []string{}
	}
	songs := c.songs
	if songs == nil {
		songs = []*Song{}
	}

	files := []struct {
		name string
		v    interface{}
	}{
		{PlaylistNamesFile, names},
		{PlaylistItemsFile, c.playlistItems},
		{SongsFile, songs},
		{SongMapFile, c.index},
	}
	for _, f := range files {
		if err := writeJSON(filepath.Join(dir, f.name), f.v); err != nil {
			return err
		}
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// writeJSON writes v as two-space indented JSON via temp file + rename
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
