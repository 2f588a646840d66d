// ABOUTME: OAuth configuration and token storage for the Google People API
// ABOUTME: Tokens live at XDG paths; the saved token backs syncs that carry no access token
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ContactsScope grants read/write access to the user's contacts.
const ContactsScope = "https://www.googleapis.com/auth/contacts"

var ErrNoCredentials = errors.New("google OAuth credentials not configured: set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET")

// NewOAuthConfig creates the OAuth2 config for contact sync.
func NewOAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  "http://localhost:8080/oauth/callback",
		Scopes:       []string{ContactsScope},
		Endpoint:     google.Endpoint,
	}
}

// CheckCredentials reports ErrNoCredentials when the client id or secret is missing.
func CheckCredentials(cfg *oauth2.Config) error {
	if cfg == nil || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return ErrNoCredentials
	}
	return nil
}

// DefaultTokenPath returns the XDG path for the stored Google token.
func DefaultTokenPath() string {
	return filepath.Join(xdg.DataHome, "agencyops", "google-credentials.json")
}

// SaveToken writes the token with owner-only permissions.
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return nil
}

// LoadToken reads a token written by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var token oauth2.Token
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return &token, nil
}

// StoredTokenSource returns a refreshing token source for the saved token.
func StoredTokenSource(ctx context.Context, cfg *oauth2.Config, path string) (oauth2.TokenSource, error) {
	if err := CheckCredentials(cfg); err != nil {
		return nil, err
	}
	token, err := LoadToken(path)
	if err != nil {
		return nil, err
	}
	return cfg.TokenSource(ctx, token), nil
}
