package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/ticktick-mcp/internal/instrumentation"
	"github.com/teemow/ticktick-mcp/internal/ticktick"
)

// TickTick OAuth2 endpoints.
const (
	DefaultAuthURL  = "https://ticktick.com/oauth/authorize"
	DefaultTokenURL = "https://ticktick.com/oauth/token"
)

const (
	// DefaultExpiryMargin is how long before the recorded expiry a token
	// is already treated as expired. It absorbs clock skew and the
	// latency of the call the token is about to be used for.
	DefaultExpiryMargin = 60 * time.Second

	defaultRefreshRetryBackoff = 500 * time.Millisecond
)

// DefaultScopes are the scopes requested during authorization.
var DefaultScopes = []string{"tasks:write", "tasks:read"}

// Credentials is the persisted OAuth2 credential pair.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
}

// ExpiredWithin reports whether the access token is expired or will expire
// within the given margin. A zero expiry is treated as expired.
func (c *Credentials) ExpiredWithin(margin time.Duration) bool {
	if c.Expiry.IsZero() {
		return true
	}
	return !time.Now().Before(c.Expiry.Add(-margin))
}

// Config holds the token store configuration. All values are supplied by
// the caller; the store never reads environment state itself.
type Config struct {
	ClientID     string
	ClientSecret string

	// AuthURL and TokenURL override the TickTick OAuth endpoints
	// (mainly for tests).
	AuthURL  string
	TokenURL string

	// RedirectURL is the redirect URI registered for the OAuth app.
	RedirectURL string

	// Scopes defaults to DefaultScopes.
	Scopes []string

	// ExpiryMargin defaults to DefaultExpiryMargin.
	ExpiryMargin time.Duration

	// RefreshRetryBackoff is the wait before the single retry of a
	// refresh that failed with a network error (default: 500ms).
	RefreshRetryBackoff time.Duration

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// Store owns the OAuth2 credential pair. It hands out non-expired access
// tokens, refreshing them behind an internal mutex so that at most one
// refresh is in flight at a time; concurrent callers wait for that refresh
// and share its result. Every successful refresh is persisted before the
// new token is returned.
type Store struct {
	conf    *oauth2.Config
	storage Storage
	margin  time.Duration
	backoff time.Duration
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	mu     sync.Mutex
	creds  *Credentials
	loaded bool
}

// NewStore creates a token store backed by the given storage.
func NewStore(cfg Config, storage Storage) (*Store, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client ID and client secret are required")
	}
	if storage == nil {
		return nil, fmt.Errorf("credential storage is required")
	}

	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	margin := cfg.ExpiryMargin
	if margin <= 0 {
		margin = DefaultExpiryMargin
	}
	retryBackoff := cfg.RefreshRetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = defaultRefreshRetryBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
		},
		storage: storage,
		margin:  margin,
		backoff: retryBackoff,
		logger:  logger,
		metrics: cfg.Metrics,
	}, nil
}

// AuthURL returns the authorization URL the operator visits to obtain a
// one-time authorization code.
func (s *Store) AuthURL(state string) string {
	return s.conf.AuthCodeURL(state)
}

// HasCredentials reports whether a credential pair is persisted.
func (s *Store) HasCredentials() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLoaded() == nil && s.creds != nil
}

// Credentials returns a copy of the stored credential pair, or
// ErrNoCredentials if none exists.
func (s *Store) Credentials() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return Credentials{}, err
	}
	if s.creds == nil {
		return Credentials{}, ErrNoCredentials
	}
	return *s.creds, nil
}

// Token returns a non-expired access token. If the current token is expired
// or within the expiry margin, it is refreshed first. Callers arriving while
// a refresh is in flight block on it and share its result.
func (s *Store) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return "", err
	}
	if s.creds != nil && s.creds.AccessToken != "" && !s.creds.ExpiredWithin(s.margin) {
		return s.creds.AccessToken, nil
	}
	return s.refreshLocked(ctx)
}

// Refresh exchanges the refresh token for a new credential pair regardless
// of the current token's expiry, persists it, and returns the new access
// token. The API client calls this once after a 401.
func (s *Store) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return "", err
	}
	return s.refreshLocked(ctx)
}

// Bootstrap exchanges a one-time authorization code for the initial
// credential pair and persists it. It is invoked only during first-run
// setup, out-of-band of normal operation.
func (s *Store) Bootstrap(ctx context.Context, authorizationCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.conf.Exchange(ctx, authorizationCode)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		}
		return &ticktick.AuthError{Reason: "authorization code exchange failed", Err: err}
	}

	if err := s.persistLocked(tok); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	}
	s.logger.Info("authorization complete", slog.Time("expiry", tok.Expiry))
	return nil
}

// ensureLoaded reads the persisted credential pair once. A missing pair is
// not an error here; Token and Refresh report it when a token is needed.
// Callers must hold s.mu.
func (s *Store) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	creds, err := s.storage.Load()
	if err != nil {
		if errors.Is(err, ErrNoCredentials) {
			s.loaded = true
			return nil
		}
		return err
	}
	s.creds = creds
	s.loaded = true
	return nil
}

// refreshLocked performs the refresh grant. A rejected refresh token is
// fatal and never retried; a network failure is retried once after a short
// backoff. Callers must hold s.mu.
func (s *Store) refreshLocked(ctx context.Context) (string, error) {
	if s.creds == nil || s.creds.RefreshToken == "" {
		return "", &ticktick.AuthError{Reason: "no refresh token stored; run the authorization flow first"}
	}

	tok, err := s.retrieveWithRetry(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		}
		return "", err
	}

	if err := s.persistLocked(tok); err != nil {
		return "", err
	}
	if s.metrics != nil {
		s.metrics.RecordTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	}
	s.logger.Debug("access token refreshed", slog.Time("expiry", tok.Expiry))
	return tok.AccessToken, nil
}

func (s *Store) retrieveWithRetry(ctx context.Context) (*oauth2.Token, error) {
	tok, err := s.retrieve(ctx)
	if err == nil {
		return tok, nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		// The authorization server answered and said no. The refresh
		// token is dead; only the interactive flow can recover.
		return nil, &ticktick.AuthError{Reason: "refresh token rejected by upstream", Err: err}
	}

	// Network failure: retry once with backoff, bounded by the caller's
	// context.
	select {
	case <-time.After(s.backoff):
	case <-ctx.Done():
		return nil, &ticktick.AuthError{Reason: "token refresh aborted", Err: ctx.Err()}
	}

	tok, err = s.retrieve(ctx)
	if err == nil {
		return tok, nil
	}
	if errors.As(err, &retrieveErr) {
		return nil, &ticktick.AuthError{Reason: "refresh token rejected by upstream", Err: err}
	}
	return nil, &ticktick.AuthError{Reason: "token refresh failed", Err: err}
}

// retrieve forces a refresh grant through the oauth2 package by presenting
// a token that is already expired.
func (s *Store) retrieve(ctx context.Context) (*oauth2.Token, error) {
	ts := s.conf.TokenSource(ctx, &oauth2.Token{
		RefreshToken: s.creds.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	return ts.Token()
}

// persistLocked stores the new credential pair durably before it is handed
// out. The upstream may omit the refresh token on renewal; the previous one
// remains valid in that case. Callers must hold s.mu.
func (s *Store) persistLocked(tok *oauth2.Token) error {
	creds := &Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if creds.RefreshToken == "" && s.creds != nil {
		creds.RefreshToken = s.creds.RefreshToken
	}
	if creds.TokenType == "" {
		creds.TokenType = "Bearer"
	}

	if err := s.storage.Save(creds); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}
	s.creds = creds
	return nil
}
