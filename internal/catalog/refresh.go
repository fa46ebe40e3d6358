package catalog

import (
	"context"
	"fmt"

	"github.com/lopugit/ytmcloner/internal/monitoring"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultRefreshConcurrency bounds concurrent playlist item listings
const DefaultRefreshConcurrency = 4

// Lister is the subset of Client used to rebuild the catalog
type Lister interface {
	Playlists(ctx context.Context, channelID string) ([]Playlist, error)
	PlaylistItems(ctx context.Context, playlistID string) ([]Item, error)
}

// Refresher rebuilds the catalog from a channel's playlists
type Refresher struct {
	lister      Lister
	filter      Filter
	concurrency int
	logger      *zap.Logger
}

// NewRefresher creates a refresher; concurrency <= 0 selects the default
func NewRefresher(lister Lister, filter Filter, concurrency int, logger *zap.Logger) *Refresher {
	if concurrency <= 0 {
		concurrency = DefaultRefreshConcurrency
	}
	return &Refresher{
		lister:      lister,
		filter:      filter,
		concurrency: concurrency,
		logger:      monitoring.OrNop(logger),
	}
}

// Refresh lists the channel's playlists, drops those rejected by the filter,
// fetches the remaining playlists' items concurrently and folds them in
// playlist order. Partial listings are kept and logged.
func (r *Refresher) Refresh(ctx context.Context, channelID string) (*Catalog, error) {
	all, err := r.lister.Playlists(ctx, channelID)
	if err != nil {
		if len(all) == 0 {
			return nil, fmt.Errorf("failed to list playlists: %w", err)
		}
		r.logger.Warn("Playlist listing incomplete, continuing with partial list",
			zap.Int("playlists", len(all)),
			zap.Error(err))
	}

	var playlists []Playlist
	for _, p := range all {
		if r.filter.Allowed(p.Title) {
			playlists = append(playlists, p)
		} else {
			r.logger.Debug("Playlist filtered out", zap.String("playlist", p.Title))
		}
	}
	r.logger.Info("Playlists selected",
		zap.Int("listed", len(all)),
		zap.Int("selected", len(playlists)))

	results := make([][]Item, len(playlists))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, p := range playlists {
		g.Go(func() error {
			items, err := r.lister.PlaylistItems(gctx, p.ID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Warn("Playlist items incomplete",
					zap.String("playlist", p.Title),
					zap.Int("items", len(items)),
					zap.Error(err))
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("refresh cancelled: %w", err)
	}

	cat := New()
	for i, p := range playlists {
		cat.Fold(p.Title, results[i])
	}

	r.logger.Info("Catalog refreshed",
		zap.Int("playlists", len(playlists)),
		zap.Int("songs", cat.Len()),
		zap.Int("pairs", cat.Pairs()))

	return cat, nil
}
