// Package videos looks up highlight videos for a Pokémon on YouTube.
package videos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResults is how many videos a lookup returns
const maxResults = 6

var ErrNotConfigured = errors.New("youtube api key is not configured")

// Video is one search result
type Video struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title      string `json:"title"`
			Thumbnails struct {
				Default struct {
					URL string `json:"url"`
				} `json:"default"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

// Client searches the YouTube Data API
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a client; an empty apiKey makes every search fail with
// ErrNotConfigured.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an API key is set
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Highlights returns highlight videos for the named Pokémon
func (c *Client) Highlights(ctx context.Context, pokemonName string) ([]Video, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("q", pokemonName+" pokemon highlights")
	q.Set("key", c.apiKey)
	q.Set("type", "video")
	q.Set("maxResults", fmt.Sprint(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searching youtube: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("youtube search returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decoding youtube response: %w", err)
	}

	videos := make([]Video, 0, len(sr.Items))
	for _, item := range sr.Items {
		videos = append(videos, Video{
			ID:        item.ID.VideoID,
			Title:     item.Snippet.Title,
			Thumbnail: item.Snippet.Thumbnails.Default.URL,
		})
	}
	return videos, nil
}
