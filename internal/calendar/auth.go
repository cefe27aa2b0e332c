package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/sheets/v4"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// ErrNoToken means the clinic has not completed the OAuth consent flow yet.
var ErrNoToken = errors.New("calendar: no google token stored")

// OAuthConfig holds the Google OAuth client registration.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenFile    string
}

// Scopes requested during consent.
var Scopes = []string{gcal.CalendarScope, sheets.SpreadsheetsScope}

// OAuth keeps the clinic's Google token on disk and refreshes it on demand.
// It satisfies oauth2.TokenSource so API clients always see a valid token.
type OAuth struct {
	config *oauth2.Config
	path   string
	ctx    context.Context
	logger *logging.Logger

	mu      sync.Mutex
	current *oauth2.Token
}

// NewOAuth builds the token manager. ctx is used for refresh requests.
func NewOAuth(ctx context.Context, cfg OAuthConfig, logger *logging.Logger) *OAuth {
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       Scopes,
		},
		path:   cfg.TokenFile,
		ctx:    ctx,
		logger: logger.Component("google_oauth"),
	}
}

// AuthCodeURL returns the consent URL. Offline access with a forced consent
// prompt guarantees a refresh token.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for a token and stores it.
func (o *OAuth) Exchange(ctx context.Context, code string) error {
	tok, err := o.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("calendar: exchange code: %w", err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.store(tok); err != nil {
		return err
	}
	o.current = tok
	return nil
}

// Token returns a valid access token, refreshing and persisting it when needed.
func (o *OAuth) Token() (*oauth2.Token, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil {
		tok, err := o.load()
		if err != nil {
			return nil, err
		}
		o.current = tok
	}
	if o.current.Valid() {
		return o.current, nil
	}
	refreshed, err := o.config.TokenSource(o.ctx, o.current).Token()
	if err != nil {
		return nil, fmt.Errorf("calendar: refresh token: %w", err)
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = o.current.RefreshToken
	}
	if err := o.store(refreshed); err != nil {
		o.logger.Warn("failed to persist refreshed token", "error", err)
	}
	o.current = refreshed
	return refreshed, nil
}

func (o *OAuth) load() (*oauth2.Token, error) {
	if o.path == "" {
		return nil, ErrNoToken
	}
	raw, err := os.ReadFile(o.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("calendar: read token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("calendar: decode token file: %w", err)
	}
	return &tok, nil
}

func (o *OAuth) store(tok *oauth2.Token) error {
	if o.path == "" {
		return nil
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("calendar: encode token: %w", err)
	}
	if dir := filepath.Dir(o.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("calendar: create token dir: %w", err)
		}
	}
	if err := os.WriteFile(o.path, raw, 0o600); err != nil {
		return fmt.Errorf("calendar: write token file: %w", err)
	}
	return nil
}
