package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/onedrive-photos/internal/photos"
)

// ResolveAlbum returns the id of the app-created album titled title,
// creating and sharing it when none exists. The first title match wins.
// A match the API reports as not writable yields ErrAlbumNotWritable rather
// than a duplicate album. A failed share after creation is logged and the
// new album is still returned.
func ResolveAlbum(ctx context.Context, svc AlbumService, title string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("resolving album", slog.String("title", title))

	pageToken := ""

	for page := 1; ; page++ {
		albums, next, err := svc.ListAlbums(ctx, pageToken)
		if err != nil {
			return "", fmt.Errorf("pipeline: listing albums: %w", err)
		}

		for i := range albums {
			a := &albums[i]
			if a.Title != title {
				continue
			}

			if !a.Writable() {
				return "", fmt.Errorf("%w: %q (%s)", ErrAlbumNotWritable, title, a.ID)
			}

			logger.Info("found existing album",
				slog.String("title", title),
				slog.String("album_id", a.ID),
				slog.Int("page", page),
			)

			return a.ID, nil
		}

		if next == "" {
			break
		}

		pageToken = next
	}

	logger.Info("album not found, creating", slog.String("title", title))

	album, err := svc.CreateAlbum(ctx, title)
	if err != nil {
		return "", fmt.Errorf("pipeline: creating album %q: %w", title, err)
	}

	if err := svc.ShareAlbum(ctx, album.ID); err != nil {
		logger.Warn("sharing album failed, continuing unshared",
			slog.String("album_id", album.ID),
			slog.Int("status", photos.StatusCode(err)),
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("created and shared album",
			slog.String("title", title),
			slog.String("album_id", album.ID),
		)
	}

	return album.ID, nil
}
