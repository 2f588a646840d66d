// ABOUTME: Root agencyops command: global flags, config and logger setup, backend lifecycle
// ABOUTME: Subcommands register themselves onto the root and share the opened App
package cli

import (
	"context"
	"fmt"

	"github.com/harperreed/agencyops/config"
	"github.com/harperreed/agencyops/logging"
	"github.com/urfave/cli/v3"
)

// Flags are the global options. App is opened in the root Before hook.
type Flags struct {
	ConfigPath string
	LogLevel   string
	LogFile    string
	Backend    string
	DataDir    string

	App *App
}

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cli.Command {
	flags := &Flags{}
	var logCloser func()

	root := &cli.Command{
		Name:      "agencyops",
		Usage:     "Run the agency sales pipeline and milestone billing",
		UsageText: "agencyops [global options] command [command options]",
		Version:   version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("AGENCYOPS_CONFIG"),
				Value:       config.DefaultPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error); overrides the config file",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "write logs to this file instead of stderr",
				Sources:     cli.EnvVars("AGENCYOPS_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "backend",
				Usage:       "storage backend (charm, local, sqlite); overrides the config file",
				Destination: &flags.Backend,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "data directory; overrides the config file",
				Destination: &flags.DataDir,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, err := config.Load(flags.ConfigPath)
			if err != nil {
				return ctx, err
			}
			if err := flags.override(cfg); err != nil {
				return ctx, err
			}

			logger, closer, err := logging.New(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return ctx, fmt.Errorf("failed to set up logger: %w", err)
			}
			logCloser = closer

			app, err := OpenApp(ctx, cfg, logger)
			if err != nil {
				return ctx, err
			}
			flags.App = app
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			var err error
			if flags.App != nil {
				err = flags.App.Close()
			}
			if logCloser != nil {
				logCloser()
			}
			return err
		},
	}

	root = NewOpportunityCmd(flags).Register(root)
	root = NewPackageCmd(flags).Register(root)
	root = NewUnitCmd(flags).Register(root)
	root = NewAlertCmd(flags).Register(root)
	root = NewBoardCmd(flags).Register(root)
	root = NewVizCmd(flags).Register(root)
	root = NewWebCmd(flags).Register(root)
	root = NewMCPCmd(flags, version).Register(root)
	root = NewCharmCmd(flags).Register(root)
	root = NewMigrateCmd(flags).Register(root)

	return root
}

// override applies global flags on top of the loaded config.
func (f *Flags) override(cfg *config.Config) error {
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.LogFile = f.LogFile
	}
	if f.Backend != "" {
		cfg.Backend = f.Backend
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	return cfg.Validate()
}
