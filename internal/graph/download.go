package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// ErrNoDownloadURL is returned when an item carries no pre-authenticated
// download URL (folders, OneNote packages).
var ErrNoDownloadURL = errors.New("graph: item has no download URL")

// DownloadFromURL streams content from a pre-authenticated URL to w and
// returns the number of bytes written. The URL carries its own auth, so no
// Authorization header is sent. The URL itself is never logged.
// Only the request/response cycle is retried; a failure mid-stream is
// returned to the caller.
func (c *Client) DownloadFromURL(ctx context.Context, downloadURL string, w io.Writer) (int64, error) {
	if downloadURL == "" {
		return 0, ErrNoDownloadURL
	}

	resp, err := c.doPreAuthRetry(ctx, downloadURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, copyErr := io.Copy(w, resp.Body)
	if copyErr != nil {
		c.logger.Error("streaming download content failed",
			slog.String("error", copyErr.Error()),
			slog.Int64("bytes_before_error", n),
		)

		return n, fmt.Errorf("graph: streaming download content: %w", copyErr)
	}

	c.logger.Debug("download complete", slog.Int64("bytes_written", n))

	return n, nil
}

// doPreAuthRetry issues an unauthenticated GET with the same retry policy
// as Do. On success the caller owns the response body.
func (c *Client) doPreAuthRetry(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.send(ctx, "download", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	})
}
