// Package api provides the HTTP client used to fetch remote audio assets.
package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebovdev/soundq/internal/cache"
	"github.com/glebovdev/soundq/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	requestTimeout = 30 * time.Second
	maxAssetBytes  = 256 << 20
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Status)
}

// Client downloads audio files over HTTP(S).
type Client struct {
	client *resty.Client
	disk   *cache.Cache
}

// NewClient creates a client with sensible defaults.
func NewClient() *Client {
	return &Client{
		client: resty.New().
			SetTimeout(requestTimeout).
			SetHeader("User-Agent", fmt.Sprintf("soundq/%s", config.AppVersion)),
	}
}

// WithCache makes the client keep downloaded bodies in c.
func (c *Client) WithCache(disk *cache.Cache) *Client {
	c.disk = disk
	return c
}

// IsRemote reports whether name looks like an http(s) URL.
func IsRemote(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Fetch downloads the whole body at url, or reads it from the disk cache.
func (c *Client) Fetch(url string) ([]byte, error) {
	if c.disk != nil {
		if body := c.disk.GetAsset(url); body != nil {
			log.Debug().Str("url", url).Int("bytes", len(body)).Msg("Remote asset served from cache")
			return body, nil
		}
	}

	resp, err := c.client.R().Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	if !resp.IsSuccess() {
		return nil, &StatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	body := resp.Body()
	if len(body) > maxAssetBytes {
		return nil, fmt.Errorf("asset %s is too large: %d bytes", url, len(body))
	}

	log.Debug().Str("url", url).Int("bytes", len(body)).Msg("Fetched remote asset")

	if c.disk != nil {
		if err := c.disk.SaveAsset(url, body); err != nil {
			log.Warn().Err(err).Str("url", url).Msg("Failed to cache remote asset")
		}
	}
	return body, nil
}
