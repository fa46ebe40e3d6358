package catalog

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakeLister struct {
	playlists    []Playlist
	playlistsErr error
	items        map[string][]Item
	itemErrs     map[string]error
	delays       map[string]time.Duration

	mu      sync.Mutex
	active  int
	peak    int
	fetched []string
}

func (f *fakeLister) Playlists(ctx context.Context, channelID string) ([]Playlist, error) {
	return f.playlists, f.playlistsErr
}

func (f *fakeLister) PlaylistItems(ctx context.Context, playlistID string) ([]Item, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.fetched = append(f.fetched, playlistID)
	f.mu.Unlock()

	time.Sleep(f.delays[playlistID])

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	return f.items[playlistID], f.itemErrs[playlistID]
}

func TestRefreshFoldsInPlaylistOrder(t *testing.T) {
	lister := &fakeLister{
		playlists: []Playlist{{ID: "PL1", Title: "Pop"}, {ID: "PL2", Title: "Rock"}},
		items: map[string][]Item{
			"PL1": items("abc", "def"),
			"PL2": items("ghi", "abc"),
		},
		// the first playlist finishes last
		delays: map[string]time.Duration{"PL1": 30 * time.Millisecond},
	}

	cat, err := NewRefresher(lister, Filter{}, 4, zaptest.NewLogger(t)).Refresh(context.Background(), "UC1")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	var ids []string
	for _, s := range cat.Songs() {
		ids = append(ids, s.ID)
	}
	if !reflect.DeepEqual(ids, []string{"abc", "def", "ghi"}) {
		t.Errorf("song order = %v", ids)
	}
	abc, _ := cat.Song("abc")
	if !reflect.DeepEqual(abc.Playlists, []string{"Pop", "Rock"}) {
		t.Errorf("abc playlists = %v", abc.Playlists)
	}
}

func TestRefreshAppliesFilter(t *testing.T) {
	lister := &fakeLister{
		playlists: []Playlist{{ID: "PL1", Title: "Pop"}, {ID: "PL2", Title: "Rock"}, {ID: "PL3", Title: "Jazz"}},
		items: map[string][]Item{
			"PL1": items("a"),
			"PL2": items("b"),
			"PL3": items("c"),
		},
	}

	cat, err := NewRefresher(lister, Filter{Deny: []string{"Rock"}}, 0, nil).Refresh(context.Background(), "UC1")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if !reflect.DeepEqual(cat.PlaylistNames(), []string{"Pop", "Jazz"}) {
		t.Errorf("PlaylistNames() = %v", cat.PlaylistNames())
	}
	for _, id := range lister.fetched {
		if id == "PL2" {
			t.Error("filtered playlist was fetched")
		}
	}
}

func TestRefreshBoundsConcurrency(t *testing.T) {
	lister := &fakeLister{items: map[string][]Item{}, delays: map[string]time.Duration{}}
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("PL%d", i)
		lister.playlists = append(lister.playlists, Playlist{ID: id, Title: id})
		lister.delays[id] = 10 * time.Millisecond
	}

	if _, err := NewRefresher(lister, Filter{}, 3, nil).Refresh(context.Background(), "UC1"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if lister.peak > 3 {
		t.Errorf("peak concurrent listings = %d, want <= 3", lister.peak)
	}
}

func TestRefreshKeepsPartialData(t *testing.T) {
	lister := &fakeLister{
		playlists:    []Playlist{{ID: "PL1", Title: "Pop"}},
		playlistsErr: fmt.Errorf("page 2 failed"),
		items:        map[string][]Item{"PL1": items("a")},
		itemErrs:     map[string]error{"PL1": fmt.Errorf("page 3 failed")},
	}

	cat, err := NewRefresher(lister, Filter{}, 0, nil).Refresh(context.Background(), "UC1")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if cat.Len() != 1 {
		t.Errorf("Len() = %d, want 1", cat.Len())
	}
}

func TestRefreshFailsWithoutPlaylists(t *testing.T) {
	lister := &fakeLister{playlistsErr: fmt.Errorf("key invalid")}

	if _, err := NewRefresher(lister, Filter{}, 0, nil).Refresh(context.Background(), "UC1"); err == nil {
		t.Error("expected error when no playlist could be listed")
	}
}
