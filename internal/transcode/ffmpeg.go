package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	apperrors "github.com/lopugit/ytmcloner/internal/errors"
	"github.com/lopugit/ytmcloner/internal/monitoring"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

// DefaultBitrate is the MP3 bitrate used when none is configured
const DefaultBitrate = "320k"

// stderrLimit bounds the diagnostic output kept from the encoder
const stderrLimit = 8 << 10

// Transcoder encodes an audio stream into a file
type Transcoder interface {
	Transcode(ctx context.Context, in io.Reader, outputPath string) error
}

// FFmpeg runs an external ffmpeg process reading the stream from stdin
type FFmpeg struct {
	Binary  string
	Bitrate string
	Logger  *zap.Logger
}

// NewFFmpeg creates an ffmpeg bridge. An empty binary means "ffmpeg" on PATH.
func NewFFmpeg(binary, bitrate string, logger *zap.Logger) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	if bitrate == "" {
		bitrate = DefaultBitrate
	}
	return &FFmpeg{
		Binary:  binary,
		Bitrate: bitrate,
		Logger:  monitoring.OrNop(logger),
	}
}

// Args returns the ffmpeg command line (without the binary) for outputPath
func (f *FFmpeg) Args(outputPath string) []string {
	kwargs := ffmpeg.KwArgs{
		"map": "0:a",
		"b:a": f.Bitrate,
	}
	switch strings.ToLower(filepath.Ext(outputPath)) {
	case ".mp3":
		kwargs["acodec"] = "libmp3lame"
	case ".m4a", ".aac":
		kwargs["acodec"] = "aac"
	case ".opus", ".webm", ".ogg":
		kwargs["acodec"] = "libopus"
	case ".flac":
		// lossless, bitrate does not apply
		kwargs["acodec"] = "flac"
		delete(kwargs, "b:a")
	}

	return ffmpeg.Input("pipe:0").
		Output(outputPath, kwargs).
		GlobalArgs("-hide_banner", "-loglevel", "error").
		OverWriteOutput().
		GetArgs()
}

// Transcode encodes in into outputPath. It succeeds only when the process
// exits with status 0; cancelling ctx kills the process.
func (f *FFmpeg) Transcode(ctx context.Context, in io.Reader, outputPath string) error {
	args := f.Args(outputPath)
	cmd := exec.CommandContext(ctx, f.Binary, args...)
	cmd.Stdin = in
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err := cmd.Run()
	if err == nil {
		f.Logger.Debug("Encoded",
			zap.String("output", outputPath),
			zap.Duration("duration", time.Since(start)))
		return nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return apperrors.NewEncodeError(fmt.Sprintf("failed to run %s", f.Binary), err)
	}

	reason := fmt.Sprintf("exit status %d", exitErr.ExitCode())
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		reason = fmt.Sprintf("killed by signal %s", status.Signal())
	}
	if ctx.Err() != nil {
		reason += " (cancelled)"
	}

	msg := fmt.Sprintf("ffmpeg %s", reason)
	if tail := strings.TrimSpace(stderr.String()); tail != "" {
		msg += ": " + tail
	}
	return apperrors.NewEncodeError(msg, err)
}

// tailBuffer keeps the last limit bytes written to it
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
