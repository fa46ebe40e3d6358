package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/lopugit/ytmcloner/internal/errors"
	"github.com/lopugit/ytmcloner/internal/monitoring"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the YouTube Data API v3 root
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

	endpointPlaylists     = "playlists"
	endpointPlaylistItems = "playlistItems"
)

// ClientConfig configures the Data API client
type ClientConfig struct {
	APIKey            string
	BaseURL           string
	PageSize          int
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Retry             *apperrors.RetryConfig
}

// Client lists playlists and playlist items through the YouTube Data API
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	pageSize    int
	rateLimiter *rate.Limiter
	retry       apperrors.RetryConfig
	logger      *zap.Logger
}

// NewClient creates a new Data API client
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 50 {
		cfg.PageSize = 50
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	retry := apperrors.DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		httpClient:  cfg.HTTPClient,
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		pageSize:    cfg.PageSize,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		retry:       retry,
		logger:      monitoring.OrNop(logger),
	}
}

// Playlists lists every playlist of a channel. On a page failure the
// playlists collected so far are returned together with the error.
func (c *Client) Playlists(ctx context.Context, channelID string) ([]Playlist, error) {
	var playlists []Playlist
	pageToken := ""

	for {
		c.logger.Info("Getting playlists",
			zap.String("channel_id", channelID),
			zap.String("page", pageToken))

		params := url.Values{}
		params.Set("part", "snippet,contentDetails")
		params.Set("channelId", channelID)

		var page playlistListResponse
		if err := c.getPage(ctx, endpointPlaylists, params, pageToken, &page); err != nil {
			return playlists, err
		}

		for _, p := range page.Items {
			playlists = append(playlists, Playlist{
				ID:        p.ID,
				Title:     p.Snippet.Title,
				ItemCount: p.ContentDetails.ItemCount,
			})
		}

		if page.NextPageToken == "" {
			return playlists, nil
		}
		pageToken = page.NextPageToken
	}
}

// PlaylistItems lists every item of a playlist. On a page failure the items
// collected so far are returned together with the error.
func (c *Client) PlaylistItems(ctx context.Context, playlistID string) ([]Item, error) {
	var items []Item
	pageToken := ""

	for {
		c.logger.Debug("Getting playlist items",
			zap.String("playlist_id", playlistID),
			zap.String("page", pageToken))

		params := url.Values{}
		params.Set("part", "snippet,contentDetails")
		params.Set("playlistId", playlistID)

		var page playlistItemListResponse
		if err := c.getPage(ctx, endpointPlaylistItems, params, pageToken, &page); err != nil {
			return items, err
		}

		for _, it := range page.Items {
			thumb := it.Snippet.Thumbnails.High.URL
			if thumb == "" {
				thumb = it.Snippet.Thumbnails.Medium.URL
			}
			if thumb == "" {
				thumb = it.Snippet.Thumbnails.Default.URL
			}
			items = append(items, Item{
				VideoID:     it.ContentDetails.VideoID,
				Title:       it.Snippet.Title,
				Position:    it.Snippet.Position,
				Channel:     it.Snippet.VideoOwnerChannelTitle,
				PublishedAt: it.Snippet.PublishedAt,
				Thumbnail:   thumb,
			})
		}

		if page.NextPageToken == "" {
			return items, nil
		}
		pageToken = page.NextPageToken
	}
}

// getPage fetches one page with rate limiting and retries
func (c *Client) getPage(ctx context.Context, endpoint string, params url.Values, pageToken string, out interface{}) error {
	params.Set("maxResults", strconv.Itoa(c.pageSize))
	params.Set("key", c.apiKey)
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	apiURL := c.baseURL + "/" + endpoint + "?" + params.Encode()

	return apperrors.RetryWithBackoff(ctx, c.retry, func() error {
		return c.doRequest(ctx, endpoint, apiURL, out)
	})
}

// doRequest performs a single rate-limited GET and decodes the JSON body
func (c *Client) doRequest(ctx context.Context, endpoint, apiURL string, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		monitoring.RecordAPIRequest(endpoint, "error", time.Since(start))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.NewNetworkError(endpoint+" request failed", err)
	}
	defer resp.Body.Close()
	monitoring.RecordAPIRequest(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return statusError(endpoint, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewNetworkError("failed to decode "+endpoint+" response", err)
	}
	return nil
}

// statusError maps a non-200 Data API response onto the error taxonomy
func statusError(endpoint string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var apiErr apiErrorResponse
	msg := http.StatusText(resp.StatusCode)
	reason := ""
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
		if len(apiErr.Error.Errors) > 0 {
			reason = apiErr.Error.Errors[0].Reason
		}
	}
	msg = fmt.Sprintf("%s: %s (status %d)", endpoint, msg, resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || reason == "rateLimitExceeded" || reason == "userRateLimitExceeded":
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return apperrors.NewRateLimitError(msg, retryAfter)
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NewNotFoundError(msg)
	case resp.StatusCode >= 500:
		return apperrors.NewNetworkError(msg, nil)
	default:
		// quotaExceeded, keyInvalid, bad parameters: retrying cannot help
		appErr := apperrors.NewValidationError(msg)
		appErr.StatusCode = resp.StatusCode
		return appErr
	}
}
