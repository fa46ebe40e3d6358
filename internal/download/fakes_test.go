package download

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lopugit/ytmcloner/internal/catalog"
	apperrors "github.com/lopugit/ytmcloner/internal/errors"
	"github.com/lopugit/ytmcloner/internal/stream"
	"go.uber.org/zap"
)

func newSong(id, title string, playlists ...string) *catalog.Song {
	return &catalog.Song{ID: id, Title: title, Playlists: playlists}
}

func audioFor(id string) []byte {
	return bytes.Repeat([]byte("audio:"+id+";"), 2048)
}

// fakeFetcher serves audioFor(id) unless the id is listed in openErrs or
// midStreamErrs
type fakeFetcher struct {
	openErrs      map[string]error
	midStreamErrs map[string]error
	opens         atomic.Int32
}

func (f *fakeFetcher) Open(ctx context.Context, videoID string) *stream.Handle {
	f.opens.Add(1)
	return stream.Start(ctx, zap.NewNop(), func(ctx context.Context) (io.ReadCloser, stream.Info, error) {
		if err := f.openErrs[videoID]; err != nil {
			return nil, stream.Info{}, err
		}
		info := stream.Info{VideoID: videoID, Author: "Channel", MimeType: "audio/webm"}
		if err := f.midStreamErrs[videoID]; err != nil {
			return io.NopCloser(io.MultiReader(bytes.NewReader(audioFor(videoID)[:100]), errReader{err})), info, nil
		}
		return io.NopCloser(bytes.NewReader(audioFor(videoID))), info, nil
	})
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// fakeTranscoder copies its input to the output path. Ids in fail get a
// partial file and an encode error.
type fakeTranscoder struct {
	delay  time.Duration
	fail   map[string]bool
	active atomic.Int32
	peak   atomic.Int32

	mu    sync.Mutex
	calls int
}

func (t *fakeTranscoder) Transcode(ctx context.Context, in io.Reader, outputPath string) error {
	n := t.active.Add(1)
	defer t.active.Add(-1)
	for {
		p := t.peak.Load()
		if n <= p || t.peak.CompareAndSwap(p, n) {
			break
		}
	}
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()

	out, err := os.Create(outputPath)
	if err != nil {
		return apperrors.NewEncodeError("create output", err)
	}
	defer out.Close()

	for id := range t.fail {
		if strings.HasPrefix(filepath.Base(outputPath), id) {
			out.Write([]byte("partial"))
			return apperrors.NewEncodeError(fmt.Sprintf("ffmpeg exit status 1 for %s", id), nil)
		}
	}

	if _, err := io.Copy(out, in); err != nil {
		return apperrors.NewEncodeError("reading input", err)
	}
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	return nil
}
