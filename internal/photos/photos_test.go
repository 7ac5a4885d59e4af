package photos

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (t staticToken) Token() (string, error) {
	return string(t), nil
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return NewClient(srv.URL, srv.Client(), staticToken("g-token"), nil)
}

func TestUploadBytes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/uploads", r.URL.Path)
		assert.Equal(t, "Bearer g-token", r.Header.Get("Authorization"))
		assert.Equal(t, "raw", r.Header.Get("X-Goog-Upload-Protocol"))
		assert.Equal(t, "image/jpeg", r.Header.Get("X-Goog-Upload-Content-Type"))
		assert.Equal(t, "scan.jpg", r.Header.Get("X-Goog-Upload-File-Name"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, body)

		_, _ = w.Write([]byte("upload-token-1\n"))
	}))

	tok, err := c.UploadBytes(t.Context(), []byte{0xFF, 0xD8, 0xFF, 0xE0}, "scan.jpg")
	require.NoError(t, err)
	assert.Equal(t, "upload-token-1", tok)
}

func TestUploadBytes_ErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"backend unavailable"}}`))
	}))

	_, err := c.UploadBytes(t.Context(), []byte("x"), "a.jpg")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpload)
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
	assert.Contains(t, err.Error(), "backend unavailable")
	assert.Equal(t, int32(1), calls.Load())
}

func TestUploadBytes_EmptyToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	_, err := c.UploadBytes(t.Context(), []byte("x"), "a.jpg")
	assert.ErrorIs(t, err, ErrUpload)
}

func TestBatchCreate_MatchesByToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/mediaItems:batchCreate", r.URL.Path)

		var req batchCreateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "album-1", req.AlbumID)
		assert.Len(t, req.NewMediaItems, 3)
		assert.Equal(t, "b.jpg", req.NewMediaItems[1].SimpleMediaItem.FileName)

		// Results out of order; the second item is rejected.
		fmt.Fprint(w, `{"newMediaItemResults":[
			{"uploadToken":"t3","status":{"message":"Success"},"mediaItem":{"id":"m3","filename":"c.jpg"}},
			{"uploadToken":"t2","status":{"code":3,"message":"Failed: invalid media"}},
			{"uploadToken":"t1","status":{"message":"Success"},"mediaItem":{"id":"m1","filename":"a.jpg"}}
		]}`)
	}))

	results, err := c.BatchCreate(t.Context(), "album-1", []NewMediaItem{
		{UploadToken: "t1", FileName: "a.jpg"},
		{UploadToken: "t2", FileName: "b.jpg"},
		{UploadToken: "t3", FileName: "c.jpg"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Created)
	assert.Equal(t, "m1", results[0].MediaItemID)

	assert.False(t, results[1].Created)
	assert.Equal(t, "Failed: invalid media", results[1].Reason)

	assert.True(t, results[2].Created)
	assert.Equal(t, "m3", results[2].MediaItemID)
}

func TestBatchCreate_PositionalFallbackAndMissing(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"newMediaItemResults":[
			{"mediaItem":{"id":"m1"}}
		]}`)
	}))

	results, err := c.BatchCreate(t.Context(), "album-1", []NewMediaItem{
		{UploadToken: "t1"},
		{UploadToken: "t2"},
	})
	require.NoError(t, err)

	assert.True(t, results[0].Created)
	assert.False(t, results[1].Created)
	assert.Contains(t, results[1].Reason, "no result")
}

func TestBatchCreate_WholeCallFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Request must contain a valid upload token"}}`))
	}))

	_, err := c.BatchCreate(t.Context(), "album-1", []NewMediaItem{{UploadToken: "t1"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpload)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
}

func TestBatchCreate_Limits(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	}))

	results, err := c.BatchCreate(t.Context(), "a", nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = c.BatchCreate(t.Context(), "a", make([]NewMediaItem, MaxBatchCreate+1))
	assert.ErrorIs(t, err, ErrUpload)
}

func TestListAlbums(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/albums", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "50", q.Get("pageSize"))
		assert.Equal(t, "true", q.Get("excludeNonAppCreatedData"))

		if q.Get("pageToken") == "" {
			fmt.Fprint(w, `{"albums":[{"id":"a1","title":"Other"}],"nextPageToken":"p2"}`)
			return
		}

		assert.Equal(t, "p2", q.Get("pageToken"))
		fmt.Fprint(w, `{"albums":[{"id":"a2","title":"Scans","isWriteable":false}]}`)
	}))

	albums, next, err := c.ListAlbums(t.Context(), "")
	require.NoError(t, err)
	require.Len(t, albums, 1)
	assert.Equal(t, "p2", next)
	assert.True(t, albums[0].Writable())

	albums, next, err = c.ListAlbums(t.Context(), next)
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, albums, 1)
	assert.False(t, albums[0].Writable())
}

func TestCreateAndShareAlbum(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/albums":
			var req createAlbumRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "Scans", req.Album.Title)
			fmt.Fprint(w, `{"id":"new-album","title":"Scans","isWriteable":true}`)
		case "/v1/albums/new-album:share":
			var req shareAlbumRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.True(t, req.SharedAlbumOptions.IsCollaborative)
			assert.True(t, req.SharedAlbumOptions.IsCommentable)
			fmt.Fprint(w, `{"shareInfo":{"shareableUrl":"https://photos.example/s"}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	album, err := c.CreateAlbum(t.Context(), "Scans")
	require.NoError(t, err)
	assert.Equal(t, "new-album", album.ID)

	require.NoError(t, c.ShareAlbum(t.Context(), album.ID))
}

func TestShareAlbum_Error(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	err := c.ShareAlbum(t.Context(), "a")
	assert.ErrorIs(t, err, ErrRequest)
	assert.Equal(t, http.StatusForbidden, StatusCode(err))
}
