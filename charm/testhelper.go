// ABOUTME: Test utilities for creating isolated charm clients
// ABOUTME: Uses temporary directories with BadgerDB so tests get real transactions

package charm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

// NewTestClient creates a badger-backed client in a temporary directory.
// The returned cleanup function closes the database and removes the directory.
func NewTestClient(t *testing.T) (*Client, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "agencyops-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	c, err := OpenLocal(filepath.Join(tmpDir, AppName), zerolog.Nop())
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open badger: %v", err)
	}
	c.config = &Config{Host: "localhost", AutoSync: false}

	cleanup := func() {
		if err := c.Close(); err != nil {
			t.Logf("Warning: failed to close test database: %v", err)
		}
		if err := os.RemoveAll(tmpDir); err != nil {
			t.Logf("Warning: failed to remove temp directory %s: %v", tmpDir, err)
		}
	}

	return c, cleanup
}
