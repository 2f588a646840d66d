// ABOUTME: Charm KV client implementing the record store backend
// ABOUTME: Serializes writers behind a mutex and syncs once per committed transaction

package charm

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/charm/client"
	"github.com/charmbracelet/charm/kv"
	"github.com/harperreed/agencyops/store"
	"github.com/rs/zerolog"
)

var _ store.Backend = (*Client)(nil)

// Client wraps charm KV with config and sync helpers.
type Client struct {
	kv     *kv.KV
	local  *localKV // set for badger-only clients; no server involved
	config *Config
	logger zerolog.Logger
	mu     sync.RWMutex
}

// Open connects to the charm KV database for this app and pulls remote
// changes when auto-sync is on.
func Open(cfg *Config, logger zerolog.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	// charm reads the host from the environment when opening the KV
	_ = os.Setenv("CHARM_HOST", cfg.Host)

	db, err := kv.OpenWithDefaults(AppName)
	if err != nil {
		return nil, fmt.Errorf("failed to open charm kv: %w", err)
	}

	c := &Client{
		kv:     db,
		config: cfg,
		logger: logger.With().Str("component", "charm").Logger(),
	}

	if cfg.AutoSync {
		if err := db.Sync(); err != nil {
			c.logger.Warn().Err(err).Msg("initial sync failed")
		}
	}

	return c, nil
}

// OpenLocal opens a badger database in dir without a charm server.
func OpenLocal(dir string, logger zerolog.Logger) (*Client, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	l, err := openLocalKV(dir)
	if err != nil {
		return nil, err
	}
	return &Client{
		local:  l,
		config: &Config{Host: "localhost"},
		logger: logger.With().Str("component", "charm").Logger(),
	}, nil
}

// Close releases the local database. charm/kv does not expose Close, so the
// remote client's badger files are released on process exit.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local != nil {
		return c.local.close()
	}
	return nil
}

// Config returns the client's config.
func (c *Client) Config() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// IsLocal reports whether the client runs without a charm server.
func (c *Client) IsLocal() bool {
	return c.local != nil
}

// ID returns the charm user ID for this device.
func (c *Client) ID() (string, error) {
	if c.local != nil {
		return "", fmt.Errorf("local client has no charm id")
	}
	cc, err := client.NewClientWithDefaults()
	if err != nil {
		return "", fmt.Errorf("failed to create charm client: %w", err)
	}
	return cc.ID()
}

// Update runs fn as one transaction. Local clients use badger transactions;
// the remote client stages writes and applies them under the write lock.
func (c *Client) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	if c.local != nil {
		return c.local.update(ctx, fn)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx := newStagedTx(c.kv)
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.order) == 0 {
		return nil
	}
	if err := tx.commit(c.logger); err != nil {
		return err
	}

	if c.config.AutoSync {
		if err := c.kv.Sync(); err != nil {
			c.logger.Warn().Err(err).Msg("sync after write failed")
		}
	}
	return nil
}

// View runs fn against a read-only view of the data.
func (c *Client) View(ctx context.Context, fn func(tx store.Tx) error) error {
	if c.local != nil {
		return c.local.view(ctx, fn)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return fn(&readOnlyTx{stagedTx: newStagedTx(c.kv)})
}

// Sync performs a manual sync with the charm server.
func (c *Client) Sync() error {
	if c.local != nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv.Sync()
}

// Keys returns all keys (for status output).
func (c *Client) Keys() ([][]byte, error) {
	if c.local != nil {
		return c.local.keys()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kv.Keys()
}

// Reset wipes all data from the KV store.
func (c *Client) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local != nil {
		return c.local.reset()
	}
	return c.kv.Reset()
}

type readOnlyTx struct {
	*stagedTx
}

func (r *readOnlyTx) Set(key, value []byte) error {
	return fmt.Errorf("write to %s in read-only transaction", key)
}

func (r *readOnlyTx) Delete(key []byte) error {
	return fmt.Errorf("delete of %s in read-only transaction", key)
}
