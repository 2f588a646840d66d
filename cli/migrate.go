// ABOUTME: Copies every record from the configured backend into another one
// ABOUTME: Supports dry runs and backs up an existing SQLite destination first
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/harperreed/agencyops/config"
	"github.com/harperreed/agencyops/store"
	"github.com/urfave/cli/v3"
)

type MigrateCmd struct {
	flags *Flags
}

func NewMigrateCmd(flags *Flags) *MigrateCmd {
	return &MigrateCmd{flags: flags}
}

// Register adds the migrate command to the application
func (cmd *MigrateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "migrate",
		Usage:     "Copy all records from the current backend into another backend",
		UsageText: "agencyops --backend local migrate --to sqlite [--dry-run] [--backup=false]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "to", Usage: "Destination backend: charm, local or sqlite", Required: true},
			&cli.BoolFlag{Name: "dry-run", Usage: "Show what would be copied without writing"},
			&cli.BoolFlag{Name: "backup", Value: true, Usage: "Back up an existing SQLite destination before writing"},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *MigrateCmd) run(ctx context.Context, c *cli.Command) error {
	app := cmd.flags.App
	out := c.Root().Writer

	dstCfg := *app.Config
	dstCfg.Backend = c.String("to")
	if dstCfg.Backend == app.Config.Backend {
		return fmt.Errorf("destination backend is the current backend (%s)", dstCfg.Backend)
	}
	if err := dstCfg.Validate(); err != nil {
		return err
	}

	dryRun := c.Bool("dry-run")
	if dstCfg.Backend == config.BackendSQLite && c.Bool("backup") && !dryRun {
		if err := backupFile(out, dstCfg.SQLitePath()); err != nil {
			return err
		}
	}

	opened, err := openBackend(&dstCfg, app.Logger)
	if err != nil {
		return fmt.Errorf("failed to open %s backend: %w", dstCfg.Backend, err)
	}
	defer func() { _ = opened.close() }()
	dst := store.New(opened.backend, store.WithMaxRetries(dstCfg.Store.MaxRetries), store.WithLogger(app.Logger))

	counts, err := store.Copy(ctx, app.Store, dst, dryRun)
	if err != nil {
		return err
	}

	total := 0
	for _, p := range store.Partitions() {
		if counts[p] == 0 {
			continue
		}
		total += counts[p]
		_, _ = fmt.Fprintf(out, "  %-24s %d\n", p, counts[p])
	}

	if dryRun {
		_, _ = fmt.Fprintf(out, "[DRY RUN] Would copy %d record(s) from %s to %s\n", total, app.Config.Backend, dstCfg.Backend)
		return nil
	}
	app.Logger.Info().Str("from", app.Config.Backend).Str("to", dstCfg.Backend).Int("records", total).Msg("migrated records")
	_, _ = fmt.Fprintf(out, "✓ Copied %d record(s) from %s to %s\n", total, app.Config.Backend, dstCfg.Backend)
	return nil
}

// backupFile copies path aside with a timestamp suffix. A missing file needs no backup.
func backupFile(out io.Writer, path string) error {
	input, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read database: %w", err)
	}

	backupPath := fmt.Sprintf("%s.backup.%s", path, time.Now().Format("20060102-150405"))
	if err := os.WriteFile(backupPath, input, 0644); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	_, _ = fmt.Fprintf(out, "✓ Backup created: %s\n", backupPath)
	return nil
}
