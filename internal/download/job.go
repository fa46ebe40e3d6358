package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lopugit/ytmcloner/internal/catalog"
	apperrors "github.com/lopugit/ytmcloner/internal/errors"
	"github.com/lopugit/ytmcloner/internal/layout"
	"github.com/lopugit/ytmcloner/internal/metadata"
	"github.com/lopugit/ytmcloner/internal/monitoring"
	"github.com/lopugit/ytmcloner/internal/stream"
	"github.com/lopugit/ytmcloner/internal/transcode"
	"go.uber.org/zap"
)

// State is a download job state
type State int

const (
	StatePending State = iota
	StateFetching
	StateTranscoding
	StatePlacing
	StateDone
	StateFailed
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateTranscoding:
		return "transcoding"
	case StatePlacing:
		return "placing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s >= StateDone
}

// Job downloads one song once and places it at every target
type Job struct {
	ID       string
	Song     *catalog.Song
	TempPath string
	Targets  []string

	mu         sync.Mutex
	state      State
	bytes      int64
	info       stream.Info
	startedAt  time.Time
	finishedAt time.Time
}

// NewJob creates a pending job
func NewJob(song *catalog.Song, tempPath string, targets []string) *Job {
	return &Job{
		ID:       song.ID,
		Song:     song,
		TempPath: tempPath,
		Targets:  targets,
	}
}

// State returns the current state
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Weight is the number of (song, playlist) pairs the job settles
func (j *Job) Weight() int64 {
	return int64(len(j.Targets))
}

// Bytes returns the size of the placed file
func (j *Job) Bytes() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.bytes
}

// Info returns what the stream reported about the song
func (j *Job) Info() stream.Info {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.info
}

// Duration returns the wall time between Fetching and the terminal state
func (j *Job) Duration() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.startedAt.IsZero() || j.finishedAt.IsZero() {
		return 0
	}
	return j.finishedAt.Sub(j.startedAt)
}

// advance moves the job forward. Failed and Skipped are reachable from any
// non-terminal state; everything else must follow the pipeline order.
func (j *Job) advance(next State) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state.Terminal() {
		return fmt.Errorf("job %s: %s is terminal, cannot move to %s", j.ID, j.state, next)
	}
	if next != StateFailed && next != StateSkipped && next != j.state+1 {
		return fmt.Errorf("job %s: invalid transition %s -> %s", j.ID, j.state, next)
	}

	now := time.Now()
	if next == StateFetching {
		j.startedAt = now
	}
	if next.Terminal() {
		j.finishedAt = now
	}
	j.state = next
	return nil
}

// Executor runs jobs through fetch, transcode and placement
type Executor struct {
	Fetcher     stream.Fetcher
	Transcoder  transcode.Transcoder
	Resolver    layout.Resolver
	Tagger      *metadata.Tagger // nil disables tagging
	SettleDelay time.Duration
	Logger      *zap.Logger
}

// Execute runs job to a terminal state. A non-nil error means Failed; the
// targets are only written once the encoder succeeded.
func (e *Executor) Execute(ctx context.Context, job *Job) (err error) {
	logger := monitoring.OrNop(e.Logger).With(
		zap.String("video_id", job.ID),
		zap.String("title", job.Song.Title))

	defer func() {
		if err != nil {
			if advErr := job.advance(StateFailed); advErr != nil {
				logger.Error("Job state", zap.Error(advErr))
			}
		}
	}()

	if err := job.advance(StateFetching); err != nil {
		return err
	}

	handle := e.Fetcher.Open(ctx, job.ID)
	defer handle.Close()

	select {
	case <-handle.Started():
	case <-handle.Done():
		if err := handle.Err(); err != nil {
			return err
		}
	case <-ctx.Done():
		return apperrors.NewTransportError("fetch cancelled", ctx.Err())
	}

	info := handle.Info()
	job.mu.Lock()
	job.info = info
	job.mu.Unlock()

	logger.Info("Started downloading song",
		zap.Strings("playlists", job.Song.Playlists),
		zap.String("mime_type", info.MimeType))

	if err := job.advance(StateTranscoding); err != nil {
		return err
	}

	if err := e.transcode(ctx, handle, job.TempPath); err != nil {
		removeTemp(logger, job.TempPath)
		return err
	}

	if err := job.advance(StatePlacing); err != nil {
		removeTemp(logger, job.TempPath)
		return err
	}

	size, err := e.place(ctx, logger, job, info)
	if err != nil {
		return err
	}

	job.mu.Lock()
	job.bytes = size
	job.mu.Unlock()

	if err := job.advance(StateDone); err != nil {
		return err
	}

	logger.Info("Finished downloading",
		zap.String("size", humanize.Bytes(uint64(size))),
		zap.Int("targets", len(job.Targets)))
	return nil
}

// transcode pipes the handle into the encoder. The stream's own failure
// wins over the encoder's when both failed.
func (e *Executor) transcode(ctx context.Context, handle *stream.Handle, tempPath string) error {
	encErr := e.Transcoder.Transcode(ctx, handle, tempPath)

	handle.Close()
	<-handle.Done()
	streamErr := handle.Err()

	if encErr != nil {
		if streamErr != nil && !errors.Is(streamErr, io.ErrClosedPipe) {
			return streamErr
		}
		return encErr
	}
	if streamErr != nil {
		return streamErr
	}
	return nil
}

func (e *Executor) place(ctx context.Context, logger *zap.Logger, job *Job, info stream.Info) (int64, error) {
	if e.SettleDelay > 0 {
		timer := time.NewTimer(e.SettleDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return 0, apperrors.NewPlacementError("placement cancelled", ctx.Err())
		}
	}

	if e.Tagger != nil && metadata.Supported(job.TempPath) {
		md := &metadata.TrackMetadata{
			Title:   firstNonEmpty(job.Song.Title, info.Title),
			Artist:  info.Author,
			Album:   job.Song.Playlists[0],
			Comment: "https://www.youtube.com/watch?v=" + job.ID,
		}
		if err := e.Tagger.Tag(ctx, job.TempPath, md, info.ThumbnailURL); err != nil {
			logger.Warn("Failed to tag file", zap.Error(err))
		}
	}

	stat, err := os.Stat(job.TempPath)
	if err != nil {
		return 0, apperrors.NewPlacementError("encoded file missing", err)
	}

	if err := e.Resolver.Prepare(job.Targets); err != nil {
		return 0, apperrors.NewPlacementError("failed to prepare target directories", err)
	}

	// Targets[0] is copied last so it exists only once every other target does
	for i := len(job.Targets) - 1; i >= 0; i-- {
		target := job.Targets[i]
		logger.Debug("Moving to", zap.String("target", target))
		if err := copyFile(job.TempPath, target); err != nil {
			return 0, apperrors.NewPlacementError(fmt.Sprintf("failed to copy to %s", target), err)
		}
	}

	if err := os.Remove(job.TempPath); err != nil {
		return 0, apperrors.NewPlacementError("failed to remove temp file", err)
	}

	return stat.Size(), nil
}

// copyFile copies src to dst through dst.part so a target is either
// complete or absent
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	part := dst + ".part"
	out, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(part)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err = out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	return os.Rename(part, dst)
}

func removeTemp(logger *zap.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove temp file", zap.String("path", path), zap.Error(err))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
