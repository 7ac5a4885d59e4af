package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tonimelisma/onedrive-photos/internal/photos"
)

// Default run parameters.
const (
	DefaultBatchSize   = 20
	DefaultBatchDelay  = time.Second
	DefaultConcurrency = 4
)

// Config holds everything a run needs besides its collaborators. It is
// passed to New and never read from process-wide state.
type Config struct {
	SourceFolder string
	AlbumTitle   string
	BatchSize    int
	BatchDelay   time.Duration
	Concurrency  int
	// TempDir holds per-item download files. Empty means os.TempDir().
	TempDir string
	// IncludeExtensions selects which files are transferred.
	IncludeExtensions []string
	// JunkExtensions are deleted from the source without a transfer.
	JunkExtensions []string
	// DryRun simulates source deletions; uploads still happen.
	DryRun bool
}

// DefaultConfig returns a Config with the documented defaults and no source
// folder or album title.
func DefaultConfig() Config {
	return Config{
		BatchSize:         DefaultBatchSize,
		BatchDelay:        DefaultBatchDelay,
		Concurrency:       DefaultConcurrency,
		IncludeExtensions: []string{".png"},
		JunkExtensions:    []string{".xjr"},
	}
}

// Validate checks the config and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.AlbumTitle) == "" {
		errs = append(errs, errors.New("album title must not be empty"))
	}

	if c.BatchSize < 1 || c.BatchSize > photos.MaxBatchCreate {
		errs = append(errs, fmt.Errorf("batch size must be between 1 and %d, got %d", photos.MaxBatchCreate, c.BatchSize))
	}

	if c.BatchDelay < 0 {
		errs = append(errs, fmt.Errorf("batch delay must not be negative, got %s", c.BatchDelay))
	}

	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}

	if len(c.IncludeExtensions) == 0 {
		errs = append(errs, errors.New("include extensions must not be empty"))
	}

	if overlap := extSet(c.IncludeExtensions).Intersect(extSet(c.JunkExtensions)); overlap.Cardinality() > 0 {
		errs = append(errs, fmt.Errorf("extensions both included and junk: %v", overlap.ToSlice()))
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func (c *Config) tempDir() string {
	if c.TempDir != "" {
		return c.TempDir
	}

	return os.TempDir()
}

// extSet normalizes extensions to lower case with a leading dot.
func extSet(exts []string) mapset.Set[string] {
	s := mapset.NewThreadUnsafeSet[string]()

	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}

		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}

		s.Add(e)
	}

	return s
}
