package metadata

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/nfnt/resize"
)

// maxArtworkBytes bounds a single thumbnail download
const maxArtworkBytes = 10 << 20

// ArtworkCache downloads, downsizes and caches thumbnails on disk
type ArtworkCache struct {
	cacheDir   string
	httpClient *http.Client
}

// NewArtworkCache creates a new artwork cache. A nil client gets a 30s timeout.
func NewArtworkCache(cacheDir string, httpClient *http.Client) (*ArtworkCache, error) {
	if cacheDir == "" {
		return nil, fmt.Errorf("cache directory cannot be empty")
	}

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &ArtworkCache{
		cacheDir:   cacheDir,
		httpClient: httpClient,
	}, nil
}

// Fetch returns the artwork at url, no larger than size pixels on its
// longest side, and its MIME type.
func (ac *ArtworkCache) Fetch(ctx context.Context, url string, size int) ([]byte, string, error) {
	if url == "" {
		return nil, "", fmt.Errorf("artwork URL cannot be empty")
	}

	cachePath := filepath.Join(ac.cacheDir, ac.generateCacheKey(url, size))
	if data, err := os.ReadFile(cachePath); err == nil {
		return data, http.DetectContentType(data), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create artwork request: %w", err)
	}
	resp, err := ac.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download artwork: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download artwork: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(io.LimitReader(resp.Body, maxArtworkBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read artwork data: %w", err)
	}

	if size > 0 {
		// formats the decoder does not know are embedded as downloaded
		if resized, err := resizeImage(imageData, size); err == nil {
			imageData = resized
		}
	}

	// best effort
	_ = saveToCache(cachePath, imageData)

	return imageData, http.DetectContentType(imageData), nil
}

func (ac *ArtworkCache) generateCacheKey(url string, size int) string {
	hash := md5.Sum([]byte(fmt.Sprintf("%s_%d", url, size)))
	return hex.EncodeToString(hash[:]) + ".img"
}

func saveToCache(cachePath string, data []byte) error {
	tempPath := cachePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tempPath, cachePath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// resizeImage scales the image so its longest side is at most targetSize
func resizeImage(imageData []byte, targetSize int) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= targetSize && height <= targetSize {
		return imageData, nil
	}

	var resized image.Image
	if width > height {
		resized = resize.Resize(uint(targetSize), 0, img, resize.Lanczos3)
	} else {
		resized = resize.Resize(0, uint(targetSize), img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&buf, resized)
	default:
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 95})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), nil
}
