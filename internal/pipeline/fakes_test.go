package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/tonimelisma/onedrive-photos/internal/photos"
	"github.com/tonimelisma/onedrive-photos/internal/transform"
)

// fakeSource serves a fixed listing from memory.
type fakeSource struct {
	mu sync.Mutex

	items       []RemoteItem
	content     map[string][]byte
	listErr     error
	downloadErr map[string]error
	deleteErr   map[string]error
	deleted     []string
	lists       int
	onDownload  func()
}

func newFakeSource(items ...RemoteItem) *fakeSource {
	s := &fakeSource{
		items:       items,
		content:     make(map[string][]byte),
		downloadErr: make(map[string]error),
		deleteErr:   make(map[string]error),
	}

	for _, it := range items {
		s.content[it.ID] = []byte("raw:" + it.Name)
	}

	return s
}

func (s *fakeSource) List(_ context.Context, _ string) ([]RemoteItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lists++

	if s.listErr != nil {
		return nil, s.listErr
	}

	return slices.Clone(s.items), nil
}

func (s *fakeSource) Download(_ context.Context, item RemoteItem, w io.Writer) (int64, error) {
	s.mu.Lock()
	err := s.downloadErr[item.ID]
	data := s.content[item.ID]
	hook := s.onDownload
	s.mu.Unlock()

	if hook != nil {
		hook()
	}

	if err != nil {
		return 0, err
	}

	n, err := w.Write(data)

	return int64(n), err
}

func (s *fakeSource) Delete(_ context.Context, item RemoteItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deleteErr[item.ID]; err != nil {
		return err
	}

	s.deleted = append(s.deleted, item.ID)

	return nil
}

func (s *fakeSource) deletedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := slices.Clone(s.deleted)
	slices.Sort(out)

	return out
}

// fakeDest is an in-memory photo library.
type fakeDest struct {
	mu sync.Mutex

	pages     [][]photos.Album
	listErr   error
	createErr error
	shareErr  error
	created   []string
	shared    []string

	uploadErr map[string]error
	// reject lists upload file names the confirm call refuses.
	reject   map[string]bool
	batchErr error

	uploads      map[string]string // token -> file name
	batchCalls   [][]photos.NewMediaItem
	uploadedData map[string][]byte
}

func newFakeDest() *fakeDest {
	return &fakeDest{
		uploadErr:    make(map[string]error),
		reject:       make(map[string]bool),
		uploads:      make(map[string]string),
		uploadedData: make(map[string][]byte),
	}
}

func (d *fakeDest) ListAlbums(_ context.Context, pageToken string) ([]photos.Album, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.listErr != nil {
		return nil, "", d.listErr
	}

	if len(d.pages) == 0 {
		return nil, "", nil
	}

	idx := 0
	if pageToken != "" {
		_, _ = fmt.Sscanf(pageToken, "page-%d", &idx)
	}

	next := ""
	if idx+1 < len(d.pages) {
		next = fmt.Sprintf("page-%d", idx+1)
	}

	return d.pages[idx], next, nil
}

func (d *fakeDest) CreateAlbum(_ context.Context, title string) (*photos.Album, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.createErr != nil {
		return nil, d.createErr
	}

	d.created = append(d.created, title)

	return &photos.Album{ID: "album-new", Title: title}, nil
}

func (d *fakeDest) ShareAlbum(_ context.Context, albumID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.shared = append(d.shared, albumID)

	return d.shareErr
}

func (d *fakeDest) UploadBytes(_ context.Context, data []byte, fileName string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.uploadErr[fileName]; err != nil {
		return "", err
	}

	tok := "tok-" + fileName
	d.uploads[tok] = fileName
	d.uploadedData[fileName] = slices.Clone(data)

	return tok, nil
}

func (d *fakeDest) BatchCreate(_ context.Context, _ string, items []photos.NewMediaItem) ([]photos.CreationResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.batchCalls = append(d.batchCalls, slices.Clone(items))

	if d.batchErr != nil {
		return nil, d.batchErr
	}

	out := make([]photos.CreationResult, len(items))
	for i, it := range items {
		out[i] = photos.CreationResult{UploadToken: it.UploadToken, FileName: it.FileName}

		if d.reject[it.FileName] {
			out[i].Reason = "INVALID_ARGUMENT: failed to create media item"
			continue
		}

		out[i].Created = true
		out[i].MediaItemID = "media-" + it.FileName
	}

	return out, nil
}

// fakeTransformer echoes its input and fails on a configured payload.
type fakeTransformer struct {
	mu      sync.Mutex
	fail    map[string]bool
	stamped map[string]time.Time
}

func newFakeTransformer() *fakeTransformer {
	return &fakeTransformer{fail: make(map[string]bool), stamped: make(map[string]time.Time)}
}

func (f *fakeTransformer) Transform(raw []byte, createdAt time.Time) (*transform.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail[string(raw)] {
		return nil, errors.New("unsupported image")
	}

	f.stamped[string(raw)] = createdAt

	return &transform.Result{Data: append([]byte("jpeg:"), raw...), Width: 1, Height: 1}, nil
}

// memRecorder collects recorded outcomes.
type memRecorder struct {
	mu       sync.Mutex
	outcomes []TransferOutcome
	err      error
}

func (r *memRecorder) Record(_ context.Context, _, _ string, oc TransferOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outcomes = append(r.outcomes, oc)

	return r.err
}

func boolPtr(b bool) *bool { return &b }
