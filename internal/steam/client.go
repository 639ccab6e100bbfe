// Package steam is the gateway to the Steam Web API and Steam Store API.
//
// Every call is a single GET without retries. Failures are returned, never
// panicked: a non-2xx answer becomes a *core.UpstreamStatusError, and a
// transport or decode failure becomes a wrapped error.
package steam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"steamgate/internal/core"
	"steamgate/internal/observability"
)

const (
	// DefaultAPIURL is the Steam Web API base URL.
	DefaultAPIURL = "https://api.steampowered.com"
	// DefaultStoreURL is the Steam Store API base URL.
	DefaultStoreURL = "https://store.steampowered.com/api"

	// maxBodySize caps how much of an upstream response is read.
	maxBodySize = 16 << 20
)

// Config holds the Steam client settings.
type Config struct {
	// APIKey is appended as key=<APIKey> to every Web API call. Store calls never carry it.
	APIKey string
	// APIURL is the Web API base URL (defaults to DefaultAPIURL).
	APIURL string
	// StoreURL is the Store API base URL (defaults to DefaultStoreURL).
	StoreURL string
	// StoreRequestsPerSecond paces Store API calls. Zero disables pacing.
	StoreRequestsPerSecond float64
}

// Client issues GET requests against the Steam APIs.
type Client struct {
	httpClient   *http.Client
	config       Config
	storeLimiter *rate.Limiter
}

// New creates a Steam client that sends requests through httpClient.
func New(httpClient *http.Client, cfg Config) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.StoreURL == "" {
		cfg.StoreURL = DefaultStoreURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.StoreURL = strings.TrimRight(cfg.StoreURL, "/")

	c := &Client{
		httpClient: httpClient,
		config:     cfg,
	}
	if cfg.StoreRequestsPerSecond > 0 {
		c.storeLimiter = rate.NewLimiter(rate.Limit(cfg.StoreRequestsPerSecond), 1)
	}
	return c
}

// WebAPI calls <api_url>/<iface>/<command>/<version>?<query>&key=<api key>.
func (c *Client) WebAPI(ctx context.Context, iface, command, version string, query url.Values) ([]byte, error) {
	q := cloneValues(query)
	q.Set("key", c.config.APIKey)

	u := fmt.Sprintf("%s/%s/%s/%s?%s", c.config.APIURL,
		url.PathEscape(iface), url.PathEscape(command), url.PathEscape(version), q.Encode())
	return c.do(ctx, observability.APIWeb, u)
}

// Store calls <store_url>/<command>?<query>, waiting on the Store pacer if one is configured.
func (c *Client) Store(ctx context.Context, command string, query url.Values) ([]byte, error) {
	if c.storeLimiter != nil {
		if err := c.storeLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("store rate limiter: %w", err)
		}
	}

	u := fmt.Sprintf("%s/%s", c.config.StoreURL, url.PathEscape(command))
	if enc := query.Encode(); enc != "" {
		u += "?" + enc
	}
	return c.do(ctx, observability.APIStore, u)
}

// Call performs a GET against an absolute URL and returns the response body.
// Any non-2xx status is returned as a *core.UpstreamStatusError.
func (c *Client) Call(ctx context.Context, rawURL string) ([]byte, error) {
	api := observability.APIWeb
	if strings.HasPrefix(rawURL, c.config.StoreURL) {
		api = observability.APIStore
	}
	return c.do(ctx, api, rawURL)
}

func (c *Client) do(ctx context.Context, api, rawURL string) ([]byte, error) {
	start := time.Now()
	body, outcome, err := c.fetch(ctx, rawURL)
	observability.ObserveUpstream(api, outcome, time.Since(start))
	return body, err
}

func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "error", fmt.Errorf("failed to create request: %w", unwrapURLError(err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error embeds the full URL, which carries the API key.
		return nil, "error", fmt.Errorf("GET %s: %w", redactURL(rawURL), unwrapURLError(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, strconv.Itoa(resp.StatusCode), &core.UpstreamStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        redactURL(rawURL),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, "error", fmt.Errorf("failed to read response from %s: %w", redactURL(rawURL), err)
	}
	return body, "ok", nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+1)
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}

// redactURL hides the key query parameter.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
