package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	apperrors "github.com/lopugit/ytmcloner/internal/errors"
	"go.uber.org/zap"
)

// Info describes the negotiated stream
type Info struct {
	VideoID       string
	Title         string
	Author        string
	Duration      time.Duration
	ThumbnailURL  string
	MimeType      string
	Bitrate       int
	ContentLength int64
}

// OpenFunc negotiates a stream and returns its body
type OpenFunc func(ctx context.Context) (io.ReadCloser, Info, error)

// Fetcher opens audio streams by video id
type Fetcher interface {
	// Open never fails synchronously; failures surface through the handle.
	Open(ctx context.Context, videoID string) *Handle
}

// Handle is a readable audio stream produced in the background.
//
// Started is closed once negotiation succeeded. Done is closed after the
// producer finished, successfully or not; Err is valid from then on.
type Handle struct {
	pr     *io.PipeReader
	cancel context.CancelFunc

	started chan struct{}
	done    chan struct{}

	mu   sync.Mutex
	err  error
	info Info
}

// Start runs open on a new goroutine and pipes the returned body into the
// handle. A panic inside open or the copy becomes the handle's error.
func Start(ctx context.Context, logger *zap.Logger, open OpenFunc) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	h := &Handle{
		pr:      pr,
		cancel:  cancel,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}

	go func() {
		err := apperrors.Safely(logger, "audio stream", func() error {
			return h.produce(ctx, pw, open)
		})
		h.finish(pw, err)
	}()

	return h
}

func (h *Handle) produce(ctx context.Context, pw *io.PipeWriter, open OpenFunc) error {
	body, info, err := open(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	h.mu.Lock()
	h.info = info
	h.mu.Unlock()
	close(h.started)

	if _, err := io.Copy(pw, body); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			return apperrors.NewTransportError("stream consumer went away", err)
		}
		if apperrors.GetErrorType(err) == apperrors.ErrTypeUnknown {
			return apperrors.NewTransportError("stream interrupted", err)
		}
		return err
	}
	return nil
}

func (h *Handle) finish(pw *io.PipeWriter, err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()

	if err != nil {
		pw.CloseWithError(err)
	} else {
		pw.Close()
	}
	h.cancel()
	close(h.done)
}

// Read reads stream bytes; it returns the producer's error, or io.EOF on
// a clean end.
func (h *Handle) Read(p []byte) (int, error) {
	return h.pr.Read(p)
}

// Close abandons the stream and stops the producer
func (h *Handle) Close() error {
	h.cancel()
	return h.pr.Close()
}

// Started is closed once the remote negotiation succeeded
func (h *Handle) Started() <-chan struct{} {
	return h.started
}

// Done is closed when the producer reached a terminal outcome
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the terminal error, nil on clean EOF or while still running
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Info returns the stream metadata; zero until Started is closed
func (h *Handle) Info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context, videoID string) *Handle

// Open implements Fetcher
func (f FetcherFunc) Open(ctx context.Context, videoID string) *Handle {
	return f(ctx, videoID)
}
