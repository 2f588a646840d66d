package sync

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"golang.org/x/oauth2"
)

func TestOAuthConfigCreation(t *testing.T) {
	config := NewOAuthConfig("id", "secret")

	if len(config.Scopes) != 1 || config.Scopes[0] != ContactsScope {
		t.Errorf("expected only the contacts scope, got %v", config.Scopes)
	}
	if err := CheckCredentials(config); err != nil {
		t.Errorf("expected credentials to pass, got %v", err)
	}
	if err := CheckCredentials(NewOAuthConfig("", "secret")); err != ErrNoCredentials {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
}

func TestTokenPathXDG(t *testing.T) {
	path := DefaultTokenPath()

	expectedBase := filepath.Join(xdg.DataHome, "agencyops")
	if !strings.HasPrefix(path, expectedBase) {
		t.Errorf("expected path under %s, got %s", expectedBase, path)
	}
	if filepath.Base(path) != "google-credentials.json" {
		t.Errorf("expected filename google-credentials.json, got %s", filepath.Base(path))
	}
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	if err := SaveToken(path, &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: expiry}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	token, err := LoadToken(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if token.AccessToken != "a" || token.RefreshToken != "r" || !token.Expiry.Equal(expiry) {
		t.Errorf("unexpected token %+v", token)
	}

	ts, err := StoredTokenSource(context.Background(), NewOAuthConfig("id", "secret"), path)
	if err != nil {
		t.Fatalf("token source failed: %v", err)
	}
	got, err := ts.Token()
	if err != nil || got.AccessToken != "a" {
		t.Errorf("expected stored access token, got %v %v", got, err)
	}
}
