// Package fetcher pulls the remote alert state directly over HTTPS, used by
// the manual sync command to rebuild local state without waiting for
// organic page traffic.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	listAlertsPath = "/list_alerts"
	listFiresPath  = "/list_fires"

	// firesPageLimit is the page size the fires listing serves; a short
	// page terminates pagination.
	firesPageLimit = 50
	// firesPageDelay spaces sequential pagination requests.
	firesPageDelay = 2 * time.Second
)

// ErrRemoteRejected reports a response that arrived without the success
// marker.
var ErrRemoteRejected = errors.New("fetcher: remote service rejected the request")

// Options parameterise the sync client.
type Options struct {
	BaseURL   string
	Cookie    string
	UserAgent string
	Timeout   time.Duration
	PageLimit int
	PageDelay time.Duration
}

// Client performs authenticated calls to the alerts service.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a sync client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = firesPageLimit
	}
	if opts.PageDelay <= 0 {
		opts.PageDelay = firesPageDelay
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://pricealerts.tradingview.com"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "sync_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type envelope struct {
	S      string            `json:"s"`
	R      []json.RawMessage `json:"r"`
	ErrMsg string            `json:"errmsg"`
}

// FetchAlerts retrieves the full alert listing.
func (c *Client) FetchAlerts(ctx context.Context) ([]json.RawMessage, error) {
	env, err := c.call(ctx, http.MethodGet, listAlertsPath, nil)
	if err != nil {
		return nil, err
	}
	return env.R, nil
}

type firesPageRequest struct {
	Payload struct {
		Limit  int    `json:"limit"`
		Before *int64 `json:"before,omitempty"`
	} `json:"payload"`
}

type rawFireID struct {
	FireID json.Number `json:"fire_id"`
}

// FetchAllFires walks the fires listing page by page: sequential POSTs with
// a fixed inter-page delay, keyed by the last fire id of the previous page,
// terminating when a page comes back short.
func (c *Client) FetchAllFires(ctx context.Context) ([]json.RawMessage, error) {
	var all []json.RawMessage
	var before *int64

	for {
		page, err := c.fetchFiresPage(ctx, before)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		c.logger.Debug().Int("page_size", len(page)).Int("total", len(all)).Msg("fetched fires page")

		if len(page) < c.opts.PageLimit {
			return all, nil
		}

		last, err := lastFireID(page)
		if err != nil {
			return nil, err
		}
		before = &last

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.opts.PageDelay):
		}
	}
}

func (c *Client) fetchFiresPage(ctx context.Context, before *int64) ([]json.RawMessage, error) {
	var payload firesPageRequest
	payload.Payload.Limit = c.opts.PageLimit
	payload.Payload.Before = before

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	env, err := c.call(ctx, http.MethodPost, listFiresPath, body)
	if err != nil {
		return nil, err
	}
	return env.R, nil
}

func lastFireID(page []json.RawMessage) (int64, error) {
	var fire rawFireID
	if err := json.Unmarshal(page[len(page)-1], &fire); err != nil {
		return 0, fmt.Errorf("decode last fire of page: %w", err)
	}
	id, err := fire.FireID.Int64()
	if err != nil {
		return 0, fmt.Errorf("parse last fire_id: %w", err)
	}
	return id, nil
}

func (c *Client) call(ctx context.Context, method, path string, body []byte) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.opts.Cookie != "" {
		req.Header.Set("Cookie", c.opts.Cookie)
	}
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	if env.S != "ok" {
		if env.ErrMsg != "" {
			return nil, fmt.Errorf("%w: %s", ErrRemoteRejected, env.ErrMsg)
		}
		return nil, ErrRemoteRejected
	}
	return &env, nil
}
