package graph

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Retry policy. Transient failures (network errors, 408, 5xx) are retried a
// few times after a fixed pause. There is no exponential backoff, and
// throttling responses are returned as ErrThrottled without honoring
// Retry-After.
const (
	maxRetries = 3
	retryDelay = 2 * time.Second
	userAgent  = "onedrive-photos/0.1"
)

// DefaultBaseURL is the Microsoft Graph API v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// TokenSource provides OAuth2 bearer tokens. credential.Source satisfies it.
type TokenSource interface {
	Token() (string, error)
}

// Client talks to the signed-in user's OneDrive through the Microsoft
// Graph API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger

	// sleepFunc waits between retries. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Graph API client.
// baseURL is typically DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// Do sends an authenticated request to baseURL+path. A non-nil body is sent
// as JSON and replayed on retries. On success the caller closes the
// response body; any non-2xx status is returned as a *GraphError.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	var payload []byte

	if body != nil {
		var err error
		if payload, err = io.ReadAll(body); err != nil {
			return nil, fmt.Errorf("graph: reading request body: %w", err)
		}
	}

	url := c.baseURL + path

	return c.send(ctx, method+" "+path, func() (*http.Request, error) {
		var rd io.Reader = http.NoBody
		if payload != nil {
			rd = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		tok, err := c.token.Token()
		if err != nil {
			return nil, fmt.Errorf("obtaining token: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+tok)

		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		return req, nil
	})
}

// send runs the retry loop shared by API calls and pre-authenticated
// downloads. newReq builds a fresh request per attempt; op names the call in
// logs and must not contain credentials.
func (c *Client) send(ctx context.Context, op string, newReq func() (*http.Request, error)) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		req, err := newReq()
		if err != nil {
			return nil, fmt.Errorf("graph: %s: %w", op, err)
		}

		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)

		switch {
		case err != nil && ctx.Err() != nil:
			return nil, fmt.Errorf("graph: %s canceled: %w", op, ctx.Err())
		case err != nil:
			if attempt == maxRetries {
				return nil, fmt.Errorf("graph: %s failed after %d retries: %w", op, maxRetries, err)
			}

			c.logger.Warn("retrying after network error",
				slog.String("op", op),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
		case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
			c.logger.Debug("request succeeded", slog.String("op", op), slog.Int("status", resp.StatusCode))

			return resp, nil
		default:
			gerr := newGraphError(resp)
			if !isRetryable(resp.StatusCode) || attempt == maxRetries {
				if attempt > 0 {
					c.logger.Error("request failed after retries",
						slog.String("op", op),
						slog.Int("status", resp.StatusCode),
						slog.Int("attempts", attempt+1),
					)
				}

				return nil, gerr
			}

			c.logger.Warn("retrying after HTTP error",
				slog.String("op", op),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
			)
		}

		if err := c.sleepFunc(ctx, retryDelay); err != nil {
			return nil, fmt.Errorf("graph: %s canceled: %w", op, err)
		}
	}
}

// timeSleep waits for d or until ctx is done.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
