package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lopugit/ytmcloner/internal/catalog"
	apperrors "github.com/lopugit/ytmcloner/internal/errors"
	"github.com/lopugit/ytmcloner/internal/layout"
	"github.com/lopugit/ytmcloner/internal/metadata"
	"github.com/lopugit/ytmcloner/internal/monitoring"
	"github.com/lopugit/ytmcloner/internal/store"
	"github.com/lopugit/ytmcloner/internal/stream"
	"github.com/lopugit/ytmcloner/internal/transcode"
	"go.uber.org/zap"
)

// DefaultSentinelTitle marks songs that can never be fetched
const DefaultSentinelTitle = "Private video"

// Options configures a batch
type Options struct {
	RunID           string
	OutputDir       string
	TmpDir          string
	Extension       string
	Concurrency     int
	SentinelTitle   string
	SettleDelay     time.Duration
	MonitorInterval time.Duration
	StallPolls      int
}

// Summary is the outcome of a batch
type Summary struct {
	Snapshot
	Jobs       int           `json:"jobs"`
	Bytes      int64         `json:"bytes"`
	PeakActive int           `json:"peak_active"`
	Completion Completion    `json:"completion"`
	Duration   time.Duration `json:"duration"`
}

// Clean reports whether the batch drained without a failed job
func (s Summary) Clean() bool {
	return s.Errors == 0 && s.Settled == s.Total
}

// Manager plans a batch from a catalog and runs it through the worker pool
type Manager struct {
	opts     Options
	resolver layout.Resolver
	executor *Executor
	history  *store.HistoryStore
	logger   *zap.Logger
	stats    *Stats

	mu    sync.RWMutex
	pool  *WorkerPool
	bytes int64
}

// NewManager creates a download manager. tagger and history may be nil.
func NewManager(
	opts Options,
	fetcher stream.Fetcher,
	transcoder transcode.Transcoder,
	tagger *metadata.Tagger,
	history *store.HistoryStore,
	logger *zap.Logger,
) *Manager {
	if opts.SentinelTitle == "" {
		opts.SentinelTitle = DefaultSentinelTitle
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	logger = monitoring.OrNop(logger)
	resolver := layout.NewResolver(opts.OutputDir, opts.Extension)

	return &Manager{
		opts:     opts,
		resolver: resolver,
		executor: &Executor{
			Fetcher:     fetcher,
			Transcoder:  transcoder,
			Resolver:    resolver,
			Tagger:      tagger,
			SettleDelay: opts.SettleDelay,
			Logger:      logger,
		},
		history: history,
		logger:  logger,
		stats:   &Stats{},
	}
}

// Stats returns the current counters
func (m *Manager) Stats() Snapshot {
	return m.stats.Snapshot()
}

// Status reports the live batch state for the health endpoint
func (m *Manager) Status() monitoring.BatchStatus {
	snap := m.stats.Snapshot()
	status := monitoring.BatchStatus{
		Downloaded: snap.Downloaded,
		Errors:     snap.Errors,
		Remaining:  snap.Remaining(),
		Total:      snap.Total,
	}

	m.mu.RLock()
	pool := m.pool
	m.mu.RUnlock()
	if pool != nil {
		status.Queued = pool.QueueLen()
		status.Active = pool.ActiveJobCount()
	}
	return status
}

// Run downloads every song of cat that is neither present on disk nor
// unavailable, and returns once all submitted jobs finished. The monitor's
// completion signal does not cut the batch short.
func (m *Manager) Run(ctx context.Context, cat *catalog.Catalog) (Summary, error) {
	start := time.Now()

	for _, dir := range []string{m.opts.OutputDir, m.opts.TmpDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Summary{}, apperrors.NewFileSystemError(fmt.Sprintf("failed to create %s", dir), err)
		}
	}

	m.stats.SetTotal(int64(cat.Pairs()))

	pool := NewWorkerPool(m.opts.Concurrency, m.executor.Execute)
	pool.SetLogger(m.logger)
	if err := pool.Start(ctx); err != nil {
		return Summary{}, fmt.Errorf("failed to start worker pool: %w", err)
	}
	m.mu.Lock()
	m.pool = pool
	m.mu.Unlock()

	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		for result := range pool.Results() {
			_ = apperrors.Safely(m.logger, "collect result "+result.JobID, func() error {
				m.collect(ctx, result)
				return nil
			})
		}
	}()

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	monitor := NewMonitor(m.stats, m.opts.MonitorInterval, m.opts.StallPolls, m.logger)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		_ = apperrors.Safely(m.logger, "progress monitor", func() error {
			monitor.Run(monitorCtx)
			return nil
		})
	}()

	jobs := m.plan(ctx, cat, pool)
	m.logger.Info("Batch planned",
		zap.Int("songs", cat.Len()),
		zap.Int("jobs", jobs),
		zap.Int64("total", m.stats.Snapshot().Total),
		zap.Int("concurrency", pool.MaxWorkers()))

	pool.Drain()
	<-aggDone

	var completion Completion
	select {
	case <-monitor.Done():
		completion = monitor.Reason()
	default:
	}
	stopMonitor()
	<-monitorDone

	// one last sample so the final counters are logged and exported
	if final := monitor.Poll(); completion == CompletionNone {
		completion = final
	}
	if completion == CompletionNone && ctx.Err() != nil {
		completion = CompletionCanceled
	}

	m.mu.Lock()
	bytes := m.bytes
	m.mu.Unlock()

	summary := Summary{
		Snapshot:   m.stats.Snapshot(),
		Jobs:       jobs,
		Bytes:      bytes,
		PeakActive: pool.PeakActive(),
		Completion: completion,
		Duration:   time.Since(start),
	}

	m.logger.Info("Batch drained",
		zap.Int64("downloaded", summary.Downloaded),
		zap.Int64("skipped", summary.Skipped),
		zap.Int64("private", summary.Private),
		zap.Int64("errors", summary.Errors),
		zap.Int64("total", summary.Total),
		zap.String("written", humanize.Bytes(uint64(summary.Bytes))),
		zap.Duration("duration", summary.Duration.Round(time.Second)))

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// plan classifies every song and submits a job for the ones to download.
// It returns the number of submitted jobs.
func (m *Manager) plan(ctx context.Context, cat *catalog.Catalog, pool *WorkerPool) int {
	jobs := 0
	for _, song := range cat.Songs() {
		weight := int64(len(song.Playlists))

		if song.Title == m.opts.SentinelTitle {
			m.stats.AddPrivate(weight)
			m.record(ctx, &store.Entry{VideoID: song.ID, Title: song.Title, Status: store.StatusPrivate})
			continue
		}

		if layout.Exists(m.resolver.Primary(song)) {
			m.stats.AddSkipped(weight)
			m.logger.Debug("Already downloaded",
				zap.String("video_id", song.ID),
				zap.String("title", song.Title))
			m.record(ctx, &store.Entry{VideoID: song.ID, Title: song.Title, Status: store.StatusSkipped})
			continue
		}

		if m.history != nil {
			if prev, err := m.history.LastDone(ctx, song.ID); err == nil && prev != nil {
				m.logger.Info("Downloaded before but missing on disk, downloading again",
					zap.String("video_id", song.ID),
					zap.Time("last_done", prev.CreatedAt))
			}
		}

		tempPath := filepath.Join(m.opts.TmpDir, layout.Sanitize(song.ID)+m.resolver.Ext)
		job := NewJob(song, tempPath, m.resolver.Targets(song))
		if err := pool.Submit(job); err != nil {
			m.logger.Warn("Stopped submitting jobs", zap.Error(err))
			break
		}
		jobs++
	}
	return jobs
}

// collect folds one job result into stats, metrics and history. Only the
// aggregator goroutine calls it.
func (m *Manager) collect(ctx context.Context, result *Result) {
	job := result.Job
	entry := &store.Entry{
		VideoID:  job.ID,
		Title:    job.Song.Title,
		Targets:  job.Targets,
		Duration: result.Duration,
	}

	if result.Success {
		m.stats.JobDone(job.Weight())
		monitoring.RecordJobDone(result.Duration, job.Bytes())
		m.mu.Lock()
		m.bytes += job.Bytes()
		m.mu.Unlock()
		entry.Status = store.StatusDone
		entry.Bytes = job.Bytes()
	} else {
		if !job.State().Terminal() {
			// the handler panicked before reaching a terminal state
			_ = job.advance(StateFailed)
		}
		errType := apperrors.GetErrorType(result.Error)
		m.stats.JobFailed(job.Weight())
		monitoring.RecordJobFailed(string(errType))
		m.logger.Error("Error downloading song",
			zap.String("video_id", job.ID),
			zap.String("title", job.Song.Title),
			zap.Strings("playlists", job.Song.Playlists),
			zap.String("state", job.State().String()),
			zap.String("error_type", string(errType)),
			zap.Error(result.Error))
		entry.Status = store.StatusFailed
		entry.ErrorType = string(errType)
		entry.ErrorMessage = result.Error.Error()
	}

	m.record(ctx, entry)
}

func (m *Manager) record(ctx context.Context, entry *store.Entry) {
	if m.history == nil {
		return
	}
	entry.RunID = m.opts.RunID
	// history must survive a cancelled batch
	if err := m.history.Record(context.WithoutCancel(ctx), entry); err != nil {
		m.logger.Warn("Failed to record history", zap.String("video_id", entry.VideoID), zap.Error(err))
	}
}
