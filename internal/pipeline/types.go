// Package pipeline drains a OneDrive folder into a Google Photos album in
// fixed-size sequential batches: list, download, transform, upload, confirm,
// then delete the confirmed sources. Failures are isolated per item; only
// album resolution and listing errors end a run.
package pipeline

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/tonimelisma/onedrive-photos/internal/photos"
	"github.com/tonimelisma/onedrive-photos/internal/transform"
)

// Sentinel errors. Use errors.Is(err, pipeline.ErrTransport) to check.
var (
	ErrTransport         = errors.New("pipeline: transport error")
	ErrSourceNotFound    = errors.New("pipeline: source folder not found")
	ErrDownload          = errors.New("pipeline: download failed")
	ErrContentMismatch   = errors.New("pipeline: downloaded content does not match listed hash")
	ErrTransform         = errors.New("pipeline: transform failed")
	ErrConfirmRejected   = errors.New("pipeline: media item creation rejected")
	ErrAlbumNotWritable  = errors.New("pipeline: album exists but is not writable")
	ErrInvalidTransition = errors.New("pipeline: invalid state transition")
	ErrInvalidConfig     = errors.New("pipeline: invalid configuration")
)

// RemoteItem is one entry of the source listing. Immutable once listed.
type RemoteItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DownloadURL string    `json:"-"` // ephemeral and pre-authenticated; never logged
	CreatedAt   time.Time `json:"created_at"`
	Size        int64     `json:"size"`
	ContentHash string    `json:"content_hash,omitempty"` // base64 QuickXorHash
	IsFolder    bool      `json:"is_folder,omitempty"`
}

// TransferOutcome is the final result for one item.
type TransferOutcome struct {
	Item      RemoteItem `json:"item"`
	State     ItemState  `json:"state"`
	Succeeded bool       `json:"succeeded"` // a media item exists for this source
	Reason    string     `json:"reason,omitempty"`

	MediaItemID     string `json:"media_item_id,omitempty"`
	DeleteSimulated bool   `json:"delete_simulated,omitempty"`
	Err             error  `json:"-"`
}

// Source lists, downloads, and deletes items in the source folder.
type Source interface {
	List(ctx context.Context, folder string) ([]RemoteItem, error)
	Download(ctx context.Context, item RemoteItem, w io.Writer) (int64, error)
	Delete(ctx context.Context, item RemoteItem) error
}

// AlbumService finds and creates destination albums.
type AlbumService interface {
	ListAlbums(ctx context.Context, pageToken string) ([]photos.Album, string, error)
	CreateAlbum(ctx context.Context, title string) (*photos.Album, error)
	ShareAlbum(ctx context.Context, albumID string) error
}

// Destination receives transformed images.
type Destination interface {
	AlbumService
	UploadBytes(ctx context.Context, data []byte, fileName string) (string, error)
	BatchCreate(ctx context.Context, albumID string, items []photos.NewMediaItem) ([]photos.CreationResult, error)
}

// Transformer converts downloaded bytes into upload-ready bytes.
type Transformer interface {
	Transform(raw []byte, createdAt time.Time) (*transform.Result, error)
}

// Recorder receives every terminal outcome, e.g. for an audit journal.
// Errors are logged and never affect the run.
type Recorder interface {
	Record(ctx context.Context, runID, albumID string, outcome TransferOutcome) error
}

// Batches splits items into consecutive slices of at most size items.
func Batches(items []RemoteItem, size int) [][]RemoteItem {
	if size <= 0 || len(items) == 0 {
		return nil
	}

	out := make([][]RemoteItem, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}

	return out
}
