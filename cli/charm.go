// ABOUTME: Charm backend maintenance subcommands
// ABOUTME: Shows sync status, forces a sync, toggles auto-sync and wipes the store
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/harperreed/agencyops/charm"
	"github.com/urfave/cli/v3"
)

type CharmCmd struct {
	flags *Flags

	confirm bool
}

func NewCharmCmd(flags *Flags) *CharmCmd {
	return &CharmCmd{flags: flags}
}

// Register adds the charm command tree to the application
func (cmd *CharmCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "charm",
		Usage: "Inspect and manage the charm backend",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show server, auto-sync and record counts",
				Action: cmd.runStatus,
			},
			{
				Name:   "sync",
				Usage:  "Sync with the charm server now",
				Action: cmd.runSync,
			},
			{
				Name:      "auto",
				Usage:     "Turn auto-sync on or off",
				UsageText: "agencyops charm auto <on|off>",
				Action:    cmd.runAuto,
			},
			{
				Name:  "wipe",
				Usage: "Delete every record in the store",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Usage: "confirm the wipe", Destination: &cmd.confirm},
				},
				Action: cmd.runWipe,
			},
		},
	})

	return app
}

func (cmd *CharmCmd) client() (*charm.Client, error) {
	if cmd.flags.App.Charm == nil {
		return nil, fmt.Errorf("the %s backend does not use charm", cmd.flags.App.Config.Backend)
	}
	return cmd.flags.App.Charm, nil
}

func (cmd *CharmCmd) runStatus(ctx context.Context, c *cli.Command) error {
	client, err := cmd.client()
	if err != nil {
		return err
	}
	return charm.WriteStatus(c.Root().Writer, client)
}

func (cmd *CharmCmd) runSync(ctx context.Context, c *cli.Command) error {
	client, err := cmd.client()
	if err != nil {
		return err
	}
	if client.IsLocal() {
		_, _ = fmt.Fprintln(c.Root().Writer, "Local backend; nothing to sync")
		return nil
	}
	if err := client.Sync(); err != nil {
		return fmt.Errorf("failed to sync: %w", err)
	}
	_, _ = fmt.Fprintln(c.Root().Writer, "✓ Synced with", client.Config().Host)
	return nil
}

func (cmd *CharmCmd) runAuto(ctx context.Context, c *cli.Command) error {
	client, err := cmd.client()
	if err != nil {
		return err
	}

	if client.IsLocal() {
		return fmt.Errorf("auto-sync only applies to the charm backend")
	}

	var on bool
	switch strings.ToLower(c.Args().First()) {
	case "on", "true":
		on = true
	case "off", "false":
	default:
		return fmt.Errorf("usage: agencyops charm auto <on|off>")
	}

	cfg := *client.Config()
	cfg.AutoSync = on
	if err := cfg.Save(charm.ConfigPath()); err != nil {
		return fmt.Errorf("failed to save charm config: %w", err)
	}
	state := "disabled"
	if on {
		state = "enabled"
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "✓ Auto-sync %s\n", state)
	return nil
}

func (cmd *CharmCmd) runWipe(ctx context.Context, c *cli.Command) error {
	client, err := cmd.client()
	if err != nil {
		return err
	}
	if !cmd.confirm {
		return fmt.Errorf("refusing to wipe without --yes")
	}
	if err := client.Reset(); err != nil {
		return fmt.Errorf("failed to wipe store: %w", err)
	}
	_, _ = fmt.Fprintln(c.Root().Writer, "✓ Store wiped")
	return nil
}
