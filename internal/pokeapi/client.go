// Package pokeapi fetches Pokémon records from the public PokeAPI.
package pokeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ernie/pokearena/internal/domain"
)

var ErrNotFound = errors.New("pokemon not found")

// Client talks to a PokeAPI-compatible endpoint
type Client struct {
	baseURL  string
	http     *http.Client
	cache    Cache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewClient creates a client for baseURL (e.g. https://pokeapi.co/api/v2)
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// WithCache makes the client consult cache before going upstream
func (c *Client) WithCache(cache Cache, ttl time.Duration) *Client {
	c.cache = cache
	c.cacheTTL = ttl
	return c
}

func cacheKey(id int) string {
	return fmt.Sprintf("pokeapi:pokemon:%d", id)
}

// Pokemon fetches a single Pokémon by national dex id
func (c *Client) Pokemon(ctx context.Context, id int) (*domain.Pokemon, error) {
	if c.cache != nil {
		data, ok, err := c.cache.Get(ctx, cacheKey(id))
		if err != nil {
			c.logger.Warn("pokeapi cache read failed", "id", id, "error", err)
		} else if ok {
			var p domain.Pokemon
			if err := json.Unmarshal(data, &p); err == nil {
				return &p, nil
			}
			c.logger.Warn("discarding corrupt cache entry", "id", id)
		}
	}

	data, err := c.getJSON(ctx, fmt.Sprintf("/pokemon/%d", id))
	if err != nil {
		return nil, err
	}

	var p domain.Pokemon
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding pokemon %d: %w", id, err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey(id), data, c.cacheTTL); err != nil {
			c.logger.Warn("pokeapi cache write failed", "id", id, "error", err)
		}
	}
	return &p, nil
}

func (c *Client) getJSON(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("pokeapi returned %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
