// Package photos is the Google Photos side of the transfer: it uploads raw
// image bytes, confirms them into an album as media items, and finds or
// creates that album. Requests are never retried; a failed call surfaces to
// the caller, which decides per item.
package photos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"google.golang.org/api/googleapi"
)

// DefaultBaseURL is the Photos Library API endpoint.
const DefaultBaseURL = "https://photoslibrary.googleapis.com"

const userAgent = "onedrive-photos/0.1"

// Sentinel errors. Use errors.Is(err, photos.ErrUpload) to check.
var (
	ErrUpload  = errors.New("photos: upload failed")
	ErrRequest = errors.New("photos: request failed")
)

// TokenSource provides OAuth2 bearer tokens. credential.Source satisfies it.
type TokenSource interface {
	Token() (string, error)
}

// Client talks to the Photos Library REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
}

// NewClient creates a Photos Library client. baseURL is normally
// DefaultBaseURL.
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
	}
}

// do executes a single authenticated request. Non-2xx responses are decoded
// into a *googleapi.Error and returned wrapped in sentinel. On success the
// caller owns the response body.
func (c *Client) do(
	ctx context.Context,
	sentinel error,
	method, path string,
	body io.Reader,
	header http.Header,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", sentinel, err)
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: obtaining token: %w", sentinel, err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)

	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", sentinel, method, path, err)
	}

	if apiErr := googleapi.CheckResponse(resp); apiErr != nil {
		resp.Body.Close()

		c.logger.Debug("photos request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return nil, fmt.Errorf("%w: %w", sentinel, apiErr)
	}

	return resp, nil
}

// doJSON marshals in (when non-nil), executes the request, and decodes the
// response into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, sentinel error, method, path string, in, out any) error {
	var body io.Reader

	header := http.Header{}

	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: marshaling request: %w", sentinel, err)
		}

		body = bytes.NewReader(data)

		header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(ctx, sentinel, method, path, body, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", sentinel, err)
	}

	return nil
}

// StatusCode extracts the HTTP status from an error returned by this
// package, or 0 when there is none.
func StatusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}

	return 0
}
