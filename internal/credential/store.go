// Package credential owns the bearer credentials for the two providers the
// transfer pipeline talks to. A Credential is a plain *oauth2.Token record;
// refreshing is a stateless function over that record, and the Store is the
// only thing that reads or writes the on-disk caches.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/onedrive-photos/internal/tokenfile"
)

// expirySkew treats tokens expiring within this window as already expired,
// so a request never leaves with a token that dies in flight.
const expirySkew = time.Minute

// Sentinel errors. Use errors.Is(err, credential.ErrAuthFailure) to check.
var (
	ErrAuthFailure       = errors.New("credential: authentication failed")
	ErrUnknownProvider   = errors.New("credential: unknown provider")
	ErrNoRefreshToken    = errors.New("credential: no refresh token")
	ErrInteractionDenied = errors.New("credential: interactive login not available")
)

// InteractiveFlow obtains a brand-new token with user involvement (device
// code, browser redirect). It must not persist anything; the Store does.
type InteractiveFlow func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)

// Provider describes one identity provider the Store manages.
type Provider struct {
	Name        string
	OAuth       *oauth2.Config
	CachePath   string
	Interactive InteractiveFlow
}

// Status summarizes a provider's cache for display.
type Status struct {
	Provider   string
	CachePath  string
	HasToken   bool
	HasRefresh bool
	Expiry     time.Time
	Expired    bool
}

// Store acquires, refreshes and persists credentials for a fixed set of
// providers. Safe for concurrent use.
type Store struct {
	// Interactive gates the interactive fallback. The CLI enables it only
	// when stdin is a terminal.
	Interactive bool

	providers map[string]Provider
	logger    *slog.Logger
	nowFunc   func() time.Time

	mu sync.Mutex
}

// NewStore creates a Store for the given providers. Interactive login is
// enabled by default.
func NewStore(logger *slog.Logger, providers ...Provider) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name] = p
	}

	return &Store{
		Interactive: true,
		providers:   m,
		logger:      logger,
		nowFunc:     time.Now,
	}
}

// Acquire returns a valid credential for the named provider. It prefers the
// cached token, then a silent refresh, then the provider's interactive flow.
// Any new or refreshed token is persisted before Acquire returns. When every
// path fails the error wraps ErrAuthFailure.
func (s *Store) Acquire(ctx context.Context, name string) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	cache, err := tokenfile.Load(p.CachePath)
	if err != nil {
		// A corrupt cache is not fatal; interactive login replaces it.
		s.logger.Warn("credential cache unreadable, ignoring",
			slog.String("provider", name),
			slog.String("path", p.CachePath),
			slog.String("error", err.Error()),
		)

		cache = &tokenfile.Cache{}
	}

	cached := cache.Token()
	if s.fresh(cached) {
		s.logger.Info("using cached credential",
			slog.String("provider", name),
			slog.Time("expiry", cached.Expiry),
		)

		return cached, nil
	}

	var failures []error

	if cached != nil && cached.RefreshToken != "" {
		s.logger.Info("cached credential expired, refreshing silently",
			slog.String("provider", name),
		)

		tok, refreshErr := Refresh(ctx, p.OAuth, cached)
		if refreshErr == nil {
			s.persist(p, cache, tok)

			return tok, nil
		}

		s.logger.Warn("silent refresh failed",
			slog.String("provider", name),
			slog.String("error", refreshErr.Error()),
		)

		failures = append(failures, refreshErr)
	}

	tok, err := s.interactive(ctx, p)
	if err != nil {
		failures = append(failures, err)

		return nil, fmt.Errorf("%w: %s: %w", ErrAuthFailure, name, errors.Join(failures...))
	}

	s.persist(p, cache, tok)

	return tok, nil
}

// Login forces the interactive flow for the named provider regardless of
// cache state and persists the result.
func (s *Store) Login(ctx context.Context, name string) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	tok, err := s.interactive(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAuthFailure, name, err)
	}

	cache, loadErr := tokenfile.Load(p.CachePath)
	if loadErr != nil {
		cache = &tokenfile.Cache{}
	}

	s.persist(p, cache, tok)

	return tok, nil
}

// Logout removes the named provider's cache file.
func (s *Store) Logout(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.providers[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	if err := tokenfile.Remove(p.CachePath); err != nil {
		return err
	}

	s.logger.Info("removed credential cache",
		slog.String("provider", name),
		slog.String("path", p.CachePath),
	)

	return nil
}

// Status reports the cache state of the named provider without refreshing.
func (s *Store) Status(name string) (*Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	cache, err := tokenfile.Load(p.CachePath)
	if err != nil {
		return nil, err
	}

	st := &Status{Provider: name, CachePath: p.CachePath}

	if tok := cache.Token(); tok != nil {
		st.HasToken = true
		st.HasRefresh = tok.RefreshToken != ""
		st.Expiry = tok.Expiry
		st.Expired = !s.fresh(tok)
	}

	return st, nil
}

// Providers returns the registered provider names.
func (s *Store) Providers() []string {
	return slices.Sorted(maps.Keys(s.providers))
}

func (s *Store) fresh(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}

	if tok.Expiry.IsZero() {
		return true
	}

	return tok.Expiry.After(s.nowFunc().Add(expirySkew))
}

func (s *Store) interactive(ctx context.Context, p Provider) (*oauth2.Token, error) {
	if !s.Interactive || p.Interactive == nil {
		return nil, fmt.Errorf("%w (run 'onedrive-photos login %s')", ErrInteractionDenied, p.Name)
	}

	s.logger.Info("starting interactive login", slog.String("provider", p.Name))

	tok, err := p.Interactive(ctx, p.OAuth)
	if err != nil {
		return nil, err
	}

	s.logger.Info("interactive login complete",
		slog.String("provider", p.Name),
		slog.Time("expiry", tok.Expiry),
	)

	return tok, nil
}

// persist stores tok in cache and writes the cache file if anything changed.
// A write failure is logged, not returned: the token is still valid for the
// current run.
func (s *Store) persist(p Provider, cache *tokenfile.Cache, tok *oauth2.Token) {
	cache.SetToken(tok)
	cache.SetMeta(map[string]string{"provider": p.Name})

	wrote, err := cache.Save(p.CachePath)
	if err != nil {
		s.logger.Warn("failed to persist credential",
			slog.String("provider", p.Name),
			slog.String("path", p.CachePath),
			slog.String("error", err.Error()),
		)

		return
	}

	if wrote {
		s.logger.Info("persisted credential",
			slog.String("provider", p.Name),
			slog.String("path", p.CachePath),
			slog.Time("expiry", tok.Expiry),
		)
	}
}

// Refresh exchanges the record's refresh token for a new access token. It
// holds no state: the returned record replaces the input. A refresh response
// without a new refresh token keeps the old one.
func Refresh(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token) (*oauth2.Token, error) {
	if tok == nil || tok.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	stale := *tok
	// An empty access token makes the library treat the record as invalid
	// and go straight to the token endpoint.
	stale.AccessToken = ""

	fresh, err := cfg.TokenSource(ctx, &stale).Token()
	if err != nil {
		return nil, fmt.Errorf("credential: refreshing token: %w", err)
	}

	return fresh, nil
}

// Source adapts the Store to the HTTP clients' TokenSource interface. It
// serves the in-memory token until it nears expiry, then asks the Store for
// a new one.
type Source struct {
	store    *Store
	ctx      context.Context
	provider string

	mu  sync.Mutex
	tok *oauth2.Token
}

// TokenSource returns a Source for the named provider. ctx must outlive the
// Source; it is used for any refresh the Source triggers.
func (s *Store) TokenSource(ctx context.Context, provider string) *Source {
	return &Source{store: s, ctx: ctx, provider: provider}
}

// Token returns a valid access token.
func (src *Source) Token() (string, error) {
	src.mu.Lock()
	defer src.mu.Unlock()

	if src.store.fresh(src.tok) {
		return src.tok.AccessToken, nil
	}

	tok, err := src.store.Acquire(src.ctx, src.provider)
	if err != nil {
		return "", err
	}

	src.tok = tok

	return tok.AccessToken, nil
}
