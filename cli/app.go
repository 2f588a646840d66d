// ABOUTME: Wires config, logging, the storage backend and the core services for commands
// ABOUTME: The backend is charm KV, a local badger directory or a SQLite file
package cli

import (
	"context"
	"fmt"

	"github.com/harperreed/agencyops/billing"
	"github.com/harperreed/agencyops/charm"
	"github.com/harperreed/agencyops/config"
	"github.com/harperreed/agencyops/customers"
	"github.com/harperreed/agencyops/db"
	"github.com/harperreed/agencyops/milestones"
	"github.com/harperreed/agencyops/pipeline"
	"github.com/harperreed/agencyops/store"
	"github.com/harperreed/agencyops/sync"
	"github.com/harperreed/agencyops/viz"
	"github.com/rs/zerolog"
)

// App holds the services every command works against.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Store     *store.Store
	Machine   *pipeline.Machine
	Engine    *milestones.Engine
	Sink      *billing.Sink
	Customers *customers.Emitter

	// Charm is set for the charm and local backends.
	Charm *charm.Client

	closeBackend func() error
}

// OpenApp opens the configured backend and builds the services on top of it.
func OpenApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	opened, err := openBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.Charm = opened.charm
	app.closeBackend = opened.close

	app.Store = store.New(opened.backend,
		store.WithMaxRetries(cfg.Store.MaxRetries),
		store.WithBackoff(cfg.Store.Backoff),
		store.WithLogger(logger),
	)
	app.Customers = customers.NewEmitter(app.Store)
	app.Sink = billing.NewSink(app.Store, logger)
	app.Engine = milestones.NewEngine(app.Store, app.Sink, milestones.WithLogger(logger))

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithSyncTimeout(cfg.Sync.Timeout),
	}
	if cfg.Sync.Enabled {
		opts = append(opts, pipeline.WithContactSyncer(newSyncer(ctx, cfg, logger)))
	}
	app.Machine = pipeline.NewMachine(app.Store, app.Customers, opts...)

	return app, nil
}

type openedBackend struct {
	backend store.Backend
	// charm is set for the charm and local backends
	charm *charm.Client
	close func() error
}

func openBackend(cfg *config.Config, logger zerolog.Logger) (*openedBackend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		rb, err := db.Open(cfg.SQLitePath())
		if err != nil {
			return nil, err
		}
		return &openedBackend{backend: rb, close: rb.Close}, nil
	case config.BackendLocal:
		client, err := charm.OpenLocal(cfg.LocalPath(), logger)
		if err != nil {
			return nil, err
		}
		return &openedBackend{backend: client, charm: client, close: client.Close}, nil
	}

	charmCfg, err := charm.LoadConfig(charm.ConfigPath())
	if err != nil {
		return nil, err
	}
	if cfg.Charm.Host != "" {
		charmCfg.Host = cfg.Charm.Host
	}
	charmCfg.AutoSync = charmCfg.AutoSync && cfg.Charm.AutoSync
	client, err := charm.Open(charmCfg, logger)
	if err != nil {
		return nil, err
	}
	return &openedBackend{backend: client, charm: client, close: client.Close}, nil
}

// newSyncer builds the People API syncer. Without a stored token it still
// serves calls that carry their own access token.
func newSyncer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *sync.PeopleSyncer {
	oauth := sync.NewOAuthConfig(cfg.Sync.ClientID, cfg.Sync.ClientSecret)
	ts, err := sync.StoredTokenSource(ctx, oauth, cfg.TokenPath())
	if err != nil {
		logger.Debug().Err(err).Msg("no stored google token; contact sync needs per-call tokens")
	}
	return sync.NewPeopleSyncer(ts, logger)
}

// VizSources points the dashboard and graph at the app's services.
func (a *App) VizSources() viz.Sources {
	return viz.Sources{
		Opportunities: a.Machine,
		Customers:     a.Customers,
		Packages:      a.Engine,
		Alerts:        a.Sink,
	}
}

// Close waits for background contact syncs and releases the backend.
func (a *App) Close() error {
	a.Machine.Wait()
	if a.closeBackend == nil {
		return nil
	}
	if err := a.closeBackend(); err != nil {
		return fmt.Errorf("failed to close backend: %w", err)
	}
	return nil
}
