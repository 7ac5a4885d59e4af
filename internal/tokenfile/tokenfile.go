// Package tokenfile persists OAuth credential caches. A cache file holds one
// provider's token record plus a small metadata map. Caches carry a dirty
// flag so a run that never refreshed or re-authenticated leaves the file
// untouched on disk.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts cache files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the cache directory.
const DirPerms = 0o700

// File is the on-disk format for a credential cache.
type File struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Cache is the in-memory form of a credential cache file. The zero value is
// an empty, clean cache.
type Cache struct {
	token *oauth2.Token
	meta  map[string]string
	dirty bool
}

// Deserialize replaces the cache contents with the serialized blob. An empty
// blob yields an empty cache. The cache is clean afterwards.
func (c *Cache) Deserialize(data []byte) error {
	c.token = nil
	c.meta = nil
	c.dirty = false

	if len(data) == 0 {
		return nil
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("tokenfile: decoding: %w", err)
	}

	if f.Token == nil {
		return errors.New("tokenfile: missing token field (re-login required)")
	}

	c.token = f.Token
	c.meta = f.Meta

	return nil
}

// Serialize encodes the cache contents. It does not touch the dirty flag.
func (c *Cache) Serialize() ([]byte, error) {
	data, err := json.MarshalIndent(File{Token: c.token, Meta: c.meta}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("tokenfile: encoding: %w", err)
	}

	return data, nil
}

// Token returns a copy of the cached token, or nil when the cache is empty.
func (c *Cache) Token() *oauth2.Token {
	if c.token == nil {
		return nil
	}

	tok := *c.token

	return &tok
}

// SetToken stores tok and marks the cache dirty when it differs from the
// current record.
func (c *Cache) SetToken(tok *oauth2.Token) {
	if tokensEqual(c.token, tok) {
		return
	}

	if tok == nil {
		c.token = nil
	} else {
		cp := *tok
		c.token = &cp
	}

	c.dirty = true
}

// Meta returns a copy of the cached metadata.
func (c *Cache) Meta() map[string]string {
	return maps.Clone(c.meta)
}

// SetMeta merges the given keys into the metadata, marking the cache dirty
// only when a value actually changes.
func (c *Cache) SetMeta(meta map[string]string) {
	for k, v := range meta {
		if cur, ok := c.meta[k]; ok && cur == v {
			continue
		}

		if c.meta == nil {
			c.meta = make(map[string]string, len(meta))
		}

		c.meta[k] = v
		c.dirty = true
	}
}

// HasStateChanged reports whether the cache was modified since it was loaded
// or last saved.
func (c *Cache) HasStateChanged() bool {
	return c.dirty
}

func tokensEqual(a, b *oauth2.Token) bool {
	if a == nil || b == nil {
		return a == b
	}

	return a.AccessToken == b.AccessToken &&
		a.RefreshToken == b.RefreshToken &&
		a.TokenType == b.TokenType &&
		a.Expiry.Equal(b.Expiry)
}

// Load reads a cache file from disk. A missing file yields an empty, clean
// cache rather than an error.
func Load(path string) (*Cache, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Cache{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	c := &Cache{}
	if err := c.Deserialize(data); err != nil {
		return nil, fmt.Errorf("tokenfile: %s: %w", path, err)
	}

	return c, nil
}

// Save writes the cache to path if it is dirty and reports whether a write
// happened. The dirty flag is cleared after a successful write.
func (c *Cache) Save(path string) (bool, error) {
	if !c.dirty {
		return false, nil
	}

	data, err := c.Serialize()
	if err != nil {
		return false, err
	}

	if err := writeAtomic(path, data); err != nil {
		return false, err
	}

	c.dirty = false

	return true, nil
}

// Remove deletes the cache file at path. A missing file is not an error.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}

// writeAtomic writes data via temp file + fsync + rename with 0600
// permissions. Never logs contents.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	// Flush before rename so a power loss cannot leave a partial cache file.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}
