package photos

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// MaxBatchCreate is the API's limit on items per batchCreate call.
const MaxBatchCreate = 50

// NewMediaItem pairs an upload token with the file name the media item
// should carry.
type NewMediaItem struct {
	UploadToken string
	FileName    string
}

// CreationResult is the per-token outcome of BatchCreate.
type CreationResult struct {
	UploadToken string
	MediaItemID string
	FileName    string
	Created     bool
	Reason      string
}

type batchCreateRequest struct {
	AlbumID       string             `json:"albumId,omitempty"`
	NewMediaItems []newMediaItemJSON `json:"newMediaItems"`
}

type newMediaItemJSON struct {
	SimpleMediaItem simpleMediaItem `json:"simpleMediaItem"`
}

type simpleMediaItem struct {
	UploadToken string `json:"uploadToken"`
	FileName    string `json:"fileName,omitempty"`
}

type batchCreateResponse struct {
	NewMediaItemResults []newMediaItemResult `json:"newMediaItemResults"`
}

type newMediaItemResult struct {
	UploadToken string     `json:"uploadToken"`
	Status      *status    `json:"status"`
	MediaItem   *mediaItem `json:"mediaItem"`
}

type status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type mediaItem struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

// UploadBytes sends raw image bytes and returns the upload token that
// BatchCreate consumes. A non-2xx response wraps ErrUpload.
func (c *Client) UploadBytes(ctx context.Context, data []byte, fileName string) (string, error) {
	header := http.Header{}
	header.Set("Content-Type", "application/octet-stream")
	header.Set("X-Goog-Upload-Protocol", "raw")
	header.Set("X-Goog-Upload-Content-Type", http.DetectContentType(data))

	if fileName != "" {
		header.Set("X-Goog-Upload-File-Name", fileName)
	}

	resp, err := c.do(ctx, ErrUpload, http.MethodPost, "/v1/uploads", bytes.NewReader(data), header)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading upload token: %w", ErrUpload, err)
	}

	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("%w: empty upload token", ErrUpload)
	}

	c.logger.Debug("uploaded bytes",
		slog.String("file_name", fileName),
		slog.Int("bytes", len(data)),
	)

	return token, nil
}

// BatchCreate confirms uploaded tokens as media items in albumID with a
// single call. Results come back in input order, one per item, matched by
// upload token with a positional fallback. An item the response does not
// mention is reported as not created. A failure of the call itself is
// returned as an error wrapping ErrUpload.
func (c *Client) BatchCreate(ctx context.Context, albumID string, items []NewMediaItem) ([]CreationResult, error) {
	if len(items) == 0 {
		return nil, nil
	}

	if len(items) > MaxBatchCreate {
		return nil, fmt.Errorf("%w: %d items exceeds batchCreate limit of %d", ErrUpload, len(items), MaxBatchCreate)
	}

	req := batchCreateRequest{AlbumID: albumID}
	for _, it := range items {
		req.NewMediaItems = append(req.NewMediaItems, newMediaItemJSON{
			SimpleMediaItem: simpleMediaItem{UploadToken: it.UploadToken, FileName: it.FileName},
		})
	}

	c.logger.Info("creating media items",
		slog.String("album_id", albumID),
		slog.Int("count", len(items)),
	)

	var resp batchCreateResponse
	if err := c.doJSON(ctx, ErrUpload, http.MethodPost, "/v1/mediaItems:batchCreate", req, &resp); err != nil {
		return nil, err
	}

	return matchResults(items, resp.NewMediaItemResults), nil
}

// matchResults aligns API results with the submitted items.
func matchResults(items []NewMediaItem, results []newMediaItemResult) []CreationResult {
	byToken := make(map[string]*newMediaItemResult, len(results))

	for i := range results {
		if tok := results[i].UploadToken; tok != "" {
			byToken[tok] = &results[i]
		}
	}

	out := make([]CreationResult, len(items))

	for i, it := range items {
		out[i] = CreationResult{UploadToken: it.UploadToken, FileName: it.FileName}

		r, ok := byToken[it.UploadToken]
		if !ok && i < len(results) && results[i].UploadToken == "" {
			r, ok = &results[i], true
		}

		if !ok {
			out[i].Reason = "no result returned for upload token"
			continue
		}

		if r.MediaItem != nil && r.MediaItem.ID != "" && (r.Status == nil || r.Status.Code == 0) {
			out[i].Created = true
			out[i].MediaItemID = r.MediaItem.ID

			if r.MediaItem.Filename != "" {
				out[i].FileName = r.MediaItem.Filename
			}

			continue
		}

		out[i].Reason = "unknown error"
		if r.Status != nil && r.Status.Message != "" {
			out[i].Reason = r.Status.Message
		}
	}

	return out
}
