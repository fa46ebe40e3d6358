package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/google/uuid"
	"github.com/lopugit/ytmcloner/internal/catalog"
	"github.com/lopugit/ytmcloner/internal/config"
	"github.com/lopugit/ytmcloner/internal/download"
	apperrors "github.com/lopugit/ytmcloner/internal/errors"
	"github.com/lopugit/ytmcloner/internal/metadata"
	"github.com/lopugit/ytmcloner/internal/monitoring"
	"github.com/lopugit/ytmcloner/internal/network"
	"github.com/lopugit/ytmcloner/internal/security"
	"github.com/lopugit/ytmcloner/internal/store"
	"github.com/lopugit/ytmcloner/internal/stream"
	"github.com/lopugit/ytmcloner/internal/transcode"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const (
	catalogTimeout  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

type encryptSecretCmd struct {
	Value string `arg:"positional,required" help:"secret to seal, e.g. an API key or cookie"`
}

type args struct {
	Config        string            `arg:"-c,--config" default:"config.json" help:"path to the JSON config file"`
	Refresh       bool              `arg:"--refresh" help:"rebuild the catalog from the channel, ignoring catalog.use_dump"`
	Download      bool              `arg:"--download" help:"run the download phase even if download.enabled is false"`
	NoDownload    bool              `arg:"--no-download" help:"stop after the catalog phase"`
	DumpDir       string            `arg:"--dump-dir" help:"override catalog.dump_dir"`
	EncryptSecret *encryptSecretCmd `arg:"subcommand:encrypt-secret" help:"print an enc: value usable in the config"`
}

func (args) Description() string {
	return "Mirrors a YouTube channel's playlists into one folder of audio files per playlist.\n"
}

func (args) Version() string {
	return "ytmcloner " + version
}

func main() {
	os.Exit(run())
}

func run() int {
	var a args
	p := arg.MustParse(&a)
	if a.Download && a.NoDownload {
		p.Fail("--download and --no-download are mutually exclusive")
	}

	box := security.NewSecretBox(filepath.Dir(a.Config))
	if a.EncryptSecret != nil {
		sealed, err := box.Seal(a.EncryptSecret.Value)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encrypt-secret: %v\n", err)
			return 1
		}
		fmt.Println(sealed)
		return 0
	}

	cfg, err := config.Load(a.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	if err := cfg.DecryptSecrets(box); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	applyFlags(cfg, &a)

	logger, err := monitoring.NewLogger(cfg.LogConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	runID := uuid.NewString()
	logger = monitoring.WithRun(logger, runID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &application{cfg: cfg, runID: runID, logger: logger}
	return app.exitCode(ctx)
}

func applyFlags(cfg *config.Config, a *args) {
	if a.DumpDir != "" {
		cfg.Catalog.DumpDir = a.DumpDir
	}
	if a.Refresh {
		cfg.Catalog.UseDump = false
	}
	if a.Download {
		cfg.Download.Enabled = true
	}
	if a.NoDownload {
		cfg.Download.Enabled = false
	}
}

type application struct {
	cfg    *config.Config
	runID  string
	logger *zap.Logger

	db      *sql.DB
	history *store.HistoryStore
	manager *download.Manager
}

// exitCode runs the application and maps the outcome to the process exit
// code; a recovered panic counts as a failed run
func (app *application) exitCode(ctx context.Context) int {
	code, err := app.execute(ctx)
	if err != nil {
		app.logger.Error("Run failed",
			zap.String("error_type", string(apperrors.GetErrorType(err))),
			zap.Error(err))
		return 1
	}
	return code
}

// execute runs the catalog and download phases. A panic anywhere below is
// logged and reported as an error.
func (app *application) execute(ctx context.Context) (code int, err error) {
	defer apperrors.Recover(app.logger, "ytmcloner run", &err)

	app.logger.Info("Starting ytmcloner",
		zap.String("version", version),
		zap.Bool("refresh", !app.cfg.Catalog.UseDump),
		zap.Bool("download", app.cfg.Download.Enabled))

	if app.cfg.Download.HistoryDB != "" {
		db, err := store.InitDB(app.cfg.Download.HistoryDB)
		if err != nil {
			return 1, fmt.Errorf("failed to open download history: %w", err)
		}
		defer db.Close()
		app.db = db
		app.history = store.NewHistoryStore(db)
	}

	if app.cfg.Download.Enabled {
		manager, err := app.newManager()
		if err != nil {
			return 1, err
		}
		app.manager = manager
	}

	if addr := app.cfg.Metrics.ListenAddr; addr != "" {
		server := monitoring.NewServer(addr,
			monitoring.NewHealthChecker(version, app.runID, app.db),
			app.status,
			app.logger)
		if err := server.Start(); err != nil {
			return 1, fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				app.logger.Warn("Metrics server shutdown", zap.Error(err))
			}
		}()
	}

	cat, err := app.loadCatalog(ctx)
	if err != nil {
		return 1, err
	}
	app.logger.Info("Catalog ready",
		zap.Int("playlists", len(cat.PlaylistNames())),
		zap.Int("songs", cat.Len()),
		zap.Int("pairs", cat.Pairs()))

	if app.manager == nil {
		app.logger.Info("Download phase disabled")
		return 0, nil
	}

	summary, err := app.manager.Run(ctx, cat)
	app.logHistory(ctx)
	if err != nil {
		return 1, err
	}

	app.logger.Info("Done",
		zap.Int64("downloaded", summary.Downloaded),
		zap.Int64("skipped", summary.Skipped),
		zap.Int64("private", summary.Private),
		zap.Int64("errors", summary.Errors),
		zap.Int64("total", summary.Total),
		zap.Int("jobs", summary.Jobs),
		zap.Int("peak_active", summary.PeakActive),
		zap.String("completion", string(summary.Completion)))

	if !summary.Clean() {
		return 1, nil
	}
	return 0, nil
}

// logHistory reports the history rows written by this run, one line per
// failed song
func (app *application) logHistory(ctx context.Context) {
	if app.history == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	counts, err := app.history.RunCounts(ctx, app.runID)
	if err != nil {
		app.logger.Warn("Failed to read run history", zap.Error(err))
		return
	}
	app.logger.Info("Run history",
		zap.Int("done", counts[store.StatusDone]),
		zap.Int("failed", counts[store.StatusFailed]),
		zap.Int("skipped", counts[store.StatusSkipped]),
		zap.Int("private", counts[store.StatusPrivate]))

	if counts[store.StatusFailed] == 0 {
		return
	}
	failures, err := app.history.Failures(ctx, app.runID)
	if err != nil {
		app.logger.Warn("Failed to read run failures", zap.Error(err))
		return
	}
	for _, f := range failures {
		app.logger.Warn("Failed song",
			zap.String("video_id", f.VideoID),
			zap.String("title", f.Title),
			zap.String("error_type", f.ErrorType),
			zap.String("error", f.ErrorMessage),
			zap.Strings("targets", f.Targets))
	}
}

func (app *application) status() monitoring.BatchStatus {
	if app.manager == nil {
		return monitoring.BatchStatus{}
	}
	return app.manager.Status()
}

// loadCatalog refreshes the catalog from the channel and snapshots it, or
// reads the last snapshot when catalog.use_dump is set
func (app *application) loadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	cfg := app.cfg
	if cfg.Catalog.UseDump {
		cat, err := catalog.Load(cfg.Catalog.DumpDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog snapshot: %w", err)
		}
		return cat, nil
	}

	if err := cfg.RequireChannel(); err != nil {
		return nil, err
	}

	client := catalog.NewClient(catalog.ClientConfig{
		APIKey:            cfg.YouTube.APIKey,
		PageSize:          cfg.YouTube.PageSize,
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
		HTTPClient:        network.NewAPIClient(catalogTimeout),
	}, app.logger)
	filter := catalog.NewFilter(
		cfg.Catalog.UseWhitelist, cfg.Catalog.Whitelist,
		cfg.Catalog.UseBlacklist, cfg.Catalog.Blacklist)

	cat, err := catalog.NewRefresher(client, filter, 0, app.logger).Refresh(ctx, cfg.YouTube.ChannelID)
	if err != nil {
		return nil, err
	}
	if err := cat.Save(cfg.Catalog.DumpDir); err != nil {
		return nil, fmt.Errorf("failed to save catalog snapshot: %w", err)
	}
	return cat, nil
}

func (app *application) newManager() (*download.Manager, error) {
	cfg := app.cfg

	var tagger *metadata.Tagger
	if cfg.Download.EmbedMetadata {
		var artwork *metadata.ArtworkCache
		if cfg.Download.EmbedArtwork {
			cache, err := metadata.NewArtworkCache(
				filepath.Join(cfg.Download.TmpDir, "artwork"),
				network.NewAPIClient(catalogTimeout))
			if err != nil {
				return nil, fmt.Errorf("failed to create artwork cache: %w", err)
			}
			artwork = cache
		}
		tagger = metadata.NewTagger(&metadata.Config{
			EmbedArtwork: cfg.Download.EmbedArtwork,
			ArtworkSize:  cfg.Download.ArtworkSize,
		}, artwork, app.logger)
	}

	fetcher := stream.NewYouTubeFetcher(
		network.NewStreamClient(cfg.RequestTimeout(), cfg.YouTube.Cookie),
		app.logger)
	transcoder := transcode.NewFFmpeg(cfg.Download.FFmpegPath, cfg.Download.Bitrate, app.logger)

	return download.NewManager(download.Options{
		RunID:           app.runID,
		OutputDir:       cfg.Download.OutputDir,
		TmpDir:          cfg.Download.TmpDir,
		Extension:       cfg.Download.Extension,
		Concurrency:     cfg.Download.ConcurrentDownloads,
		SentinelTitle:   cfg.Download.SentinelTitle,
		SettleDelay:     cfg.SettleDelay(),
		MonitorInterval: cfg.MonitorInterval(),
		StallPolls:      cfg.Monitor.StallPolls,
	}, fetcher, transcoder, tagger, app.history, app.logger), nil
}
