package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kkdai/youtube/v2"
	apperrors "github.com/lopugit/ytmcloner/internal/errors"
	"github.com/lopugit/ytmcloner/internal/monitoring"
	"go.uber.org/zap"
)

// YouTubeFetcher opens the best audio stream of a video with kkdai/youtube
type YouTubeFetcher struct {
	client *youtube.Client
	logger *zap.Logger
}

// NewYouTubeFetcher creates a fetcher. httpClient carries the cookie
// transport and timeouts; nil uses http.DefaultClient.
func NewYouTubeFetcher(httpClient *http.Client, logger *zap.Logger) *YouTubeFetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &YouTubeFetcher{
		client: &youtube.Client{HTTPClient: httpClient},
		logger: monitoring.OrNop(logger),
	}
}

// Open implements Fetcher
func (f *YouTubeFetcher) Open(ctx context.Context, videoID string) *Handle {
	return Start(ctx, f.logger, func(ctx context.Context) (io.ReadCloser, Info, error) {
		return f.open(ctx, videoID)
	})
}

func (f *YouTubeFetcher) open(ctx context.Context, videoID string) (io.ReadCloser, Info, error) {
	video, err := f.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, Info{}, classify(videoID, "resolving video", err)
	}

	format, err := SelectAudioFormat(video.Formats)
	if err != nil {
		return nil, Info{}, apperrors.NewUnavailableError(fmt.Sprintf("video %s: %v", videoID, err), nil)
	}

	body, size, err := f.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, Info{}, classify(videoID, "opening stream", err)
	}

	info := Info{
		VideoID:       videoID,
		Title:         video.Title,
		Author:        video.Author,
		Duration:      video.Duration,
		ThumbnailURL:  bestThumbnailURL(video.Thumbnails),
		MimeType:      format.MimeType,
		Bitrate:       formatBitrate(format),
		ContentLength: size,
	}

	f.logger.Debug("Stream negotiated",
		zap.String("video_id", videoID),
		zap.String("mime_type", info.MimeType),
		zap.Int("bitrate", info.Bitrate),
		zap.Int64("content_length", size))

	return body, info, nil
}

// SelectAudioFormat picks the highest-bitrate audio-only format, falling
// back to the highest-bitrate format that carries audio at all.
func SelectAudioFormat(formats youtube.FormatList) (*youtube.Format, error) {
	var audioOnly, withAudio *youtube.Format

	for i := range formats {
		format := &formats[i]
		if format.AudioChannels == 0 {
			continue
		}
		if withAudio == nil || formatBitrate(format) > formatBitrate(withAudio) {
			withAudio = format
		}
		if format.Width != 0 || format.Height != 0 {
			continue
		}
		if audioOnly == nil || formatBitrate(format) > formatBitrate(audioOnly) {
			audioOnly = format
		}
	}

	if audioOnly != nil {
		return audioOnly, nil
	}
	if withAudio != nil {
		return withAudio, nil
	}
	return nil, errors.New("no format with audio available")
}

func formatBitrate(f *youtube.Format) int {
	if f.Bitrate > 0 {
		return f.Bitrate
	}
	return f.AverageBitrate
}

func bestThumbnailURL(thumbnails youtube.Thumbnails) string {
	bestURL := ""
	var bestArea uint
	for _, thumb := range thumbnails {
		area := thumb.Width * thumb.Height
		if area >= bestArea {
			bestArea = area
			bestURL = thumb.URL
		}
	}
	return bestURL
}

// classify maps library errors onto the error taxonomy. Items that can
// never be fetched are unavailable; everything else is a transport error.
func classify(videoID, stage string, err error) error {
	msg := fmt.Sprintf("video %s: %s", videoID, stage)

	var playability youtube.ErrPlayabiltyStatus
	var status youtube.ErrUnexpectedStatusCode
	switch {
	case errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrLoginRequired),
		errors.Is(err, youtube.ErrNotPlayableInEmbed),
		errors.As(err, &playability):
		return apperrors.NewUnavailableError(msg, err)
	case errors.As(err, &status):
		if int(status) == http.StatusNotFound || int(status) == http.StatusGone {
			return apperrors.NewUnavailableError(msg, err)
		}
		if int(status) == http.StatusTooManyRequests {
			return apperrors.NewTransportError(msg+": rate limited", err)
		}
	}
	return apperrors.NewTransportError(msg, err)
}
