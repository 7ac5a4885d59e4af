package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tonimelisma/onedrive-photos/internal/graph"
)

// GraphSource adapts the OneDrive client to Source.
type GraphSource struct {
	client *graph.Client
}

// NewGraphSource wraps client.
func NewGraphSource(client *graph.Client) *GraphSource {
	return &GraphSource{client: client}
}

// List returns the folder's children as one snapshot. A missing folder
// wraps ErrSourceNotFound; any other failure wraps ErrTransport.
func (s *GraphSource) List(ctx context.Context, folder string) ([]RemoteItem, error) {
	items, err := s.client.ListChildrenByPath(ctx, folder)
	if errors.Is(err, graph.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceNotFound, folder, err)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %w", ErrTransport, folder, err)
	}

	out := make([]RemoteItem, 0, len(items))

	for i := range items {
		it := &items[i]

		created := it.CreatedAt
		if created.IsZero() {
			created = it.TakenAt
		}

		out = append(out, RemoteItem{
			ID:          it.ID,
			Name:        it.Name,
			DownloadURL: it.DownloadURL,
			CreatedAt:   created,
			Size:        it.Size,
			ContentHash: it.QuickXorHash,
			IsFolder:    it.IsFolder || it.IsPackage,
		})
	}

	return out, nil
}

// Download streams the item's content to w.
func (s *GraphSource) Download(ctx context.Context, item RemoteItem, w io.Writer) (int64, error) {
	return s.client.DownloadFromURL(ctx, item.DownloadURL, w)
}

// Delete removes the item from the source drive.
func (s *GraphSource) Delete(ctx context.Context, item RemoteItem) error {
	return s.client.DeleteItem(ctx, item.ID)
}
