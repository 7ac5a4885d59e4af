package photos

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/go-querystring/query"
)

// albumsPageSize is the maximum page size the albums.list call accepts.
const albumsPageSize = 50

// Album is a Google Photos album as listed or created by this client.
type Album struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	ProductURL      string `json:"productUrl,omitempty"`
	MediaItemsCount string `json:"mediaItemsCount,omitempty"`
	// IsWriteable is nil when the API omits it.
	IsWriteable *bool `json:"isWriteable,omitempty"`
}

// Writable reports whether media can be added. Only an explicit false
// marks an album read-only.
func (a *Album) Writable() bool {
	return a.IsWriteable == nil || *a.IsWriteable
}

type listAlbumsOptions struct {
	PageSize                 int    `url:"pageSize"`
	PageToken                string `url:"pageToken,omitempty"`
	ExcludeNonAppCreatedData bool   `url:"excludeNonAppCreatedData"`
}

type listAlbumsResponse struct {
	Albums        []Album `json:"albums"`
	NextPageToken string  `json:"nextPageToken"`
}

type createAlbumRequest struct {
	Album albumTitle `json:"album"`
}

type albumTitle struct {
	Title string `json:"title"`
}

type shareAlbumRequest struct {
	SharedAlbumOptions sharedAlbumOptions `json:"sharedAlbumOptions"`
}

type sharedAlbumOptions struct {
	IsCollaborative bool `json:"isCollaborative"`
	IsCommentable   bool `json:"isCommentable"`
}

// ListAlbums returns one page of app-created albums and the token for the
// next page (empty on the last page).
func (c *Client) ListAlbums(ctx context.Context, pageToken string) ([]Album, string, error) {
	v, err := query.Values(listAlbumsOptions{
		PageSize:                 albumsPageSize,
		PageToken:                pageToken,
		ExcludeNonAppCreatedData: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: encoding album query: %w", ErrRequest, err)
	}

	var resp listAlbumsResponse
	if err := c.doJSON(ctx, ErrRequest, http.MethodGet, "/v1/albums?"+v.Encode(), nil, &resp); err != nil {
		return nil, "", err
	}

	c.logger.Debug("listed albums page",
		slog.Int("count", len(resp.Albums)),
		slog.Bool("more", resp.NextPageToken != ""),
	)

	return resp.Albums, resp.NextPageToken, nil
}

// CreateAlbum creates an album with the given title.
func (c *Client) CreateAlbum(ctx context.Context, title string) (*Album, error) {
	c.logger.Info("creating album", slog.String("title", title))

	var album Album
	if err := c.doJSON(ctx, ErrRequest, http.MethodPost, "/v1/albums",
		createAlbumRequest{Album: albumTitle{Title: title}}, &album); err != nil {
		return nil, err
	}

	return &album, nil
}

// ShareAlbum makes the album collaborative and commentable.
func (c *Client) ShareAlbum(ctx context.Context, albumID string) error {
	c.logger.Info("sharing album", slog.String("album_id", albumID))

	req := shareAlbumRequest{SharedAlbumOptions: sharedAlbumOptions{IsCollaborative: true, IsCommentable: true}}

	return c.doJSON(ctx, ErrRequest, http.MethodPost, "/v1/albums/"+url.PathEscape(albumID)+":share", req, nil)
}
