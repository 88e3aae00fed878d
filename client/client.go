// Package client is a Go consumer for the key API: a REST fetcher, a
// reconciliation cache, and a websocket listener. The cache converges on
// server state by replacing itself on fetch and applying events in arrival
// order; missed events are recovered with a full re-fetch, never replayed.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/noah-isme/campus-key-api/internal/models"
)

const defaultTimeout = 10 * time.Second

// Config holds connection settings for the API client.
type Config struct {
	BaseURL   string
	APIPrefix string
	Token     string
	Timeout   time.Duration
}

// Client performs authenticated REST calls against the key API.
type Client struct {
	baseURL    *url.URL
	apiPrefix  string
	token      string
	httpClient *http.Client
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New constructs a Client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    base,
		apiPrefix:  cfg.APIPrefix,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// FetchAll retrieves the complete key list, walking pages until exhausted.
func (c *Client) FetchAll(ctx context.Context) ([]models.KeyView, error) {
	var all []models.KeyView
	page := 1
	for {
		path := fmt.Sprintf("%s/keys?page=%d&limit=200", c.apiPrefix, page)
		var keys []models.KeyView
		if err := c.get(ctx, path, &keys); err != nil {
			return nil, err
		}
		all = append(all, keys...)
		if len(keys) < 200 {
			return all, nil
		}
		page++
	}
}

// FetchMine retrieves the keys currently held by the authenticated user.
func (c *Client) FetchMine(ctx context.Context) ([]models.KeyView, error) {
	var keys []models.KeyView
	if err := c.get(ctx, c.apiPrefix+"/keys/my-taken", &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("parse path: %w", err)
	}
	target := c.baseURL.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Error != nil {
		return env.Error
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("request %s failed with status %d", path, resp.StatusCode)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
