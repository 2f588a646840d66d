// ABOUTME: Billing alert CLI commands
// ABOUTME: Lists raised alerts and records payments against them
package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/harperreed/agencyops/billing"
	"github.com/harperreed/agencyops/models"
	"github.com/urfave/cli/v3"
)

type AlertCmd struct {
	flags *Flags

	client string
	pkg    string
	status string
}

func NewAlertCmd(flags *Flags) *AlertCmd {
	return &AlertCmd{flags: flags}
}

// Register adds the alert command tree to the application
func (cmd *AlertCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "alert",
		Usage: "Review and resolve billing alerts",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List billing alerts, newest first",
				UsageText: "agencyops alert list [--client ID] [--package ID] [--status STATUS]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "client", Usage: "only this client", Destination: &cmd.client},
					&cli.StringFlag{Name: "package", Usage: "only this package", Destination: &cmd.pkg},
					&cli.StringFlag{Name: "status", Usage: "due, pending, waiting or received", Destination: &cmd.status},
				},
				Action: cmd.runList,
			},
			{
				Name:      "received",
				Usage:     "Record payment for an alert",
				UsageText: "agencyops alert received <id>",
				Action:    cmd.runReceived,
			},
			{
				Name:      "undo",
				Usage:     "Revert a recorded payment",
				UsageText: "agencyops alert undo <id>",
				Action:    cmd.runUndo,
			},
			{
				Name:      "status",
				Usage:     "Set an alert's payment status",
				UsageText: "agencyops alert status <id> <due|pending|waiting|received>",
				Action:    cmd.runStatus,
			},
		},
	})

	return app
}

func (cmd *AlertCmd) runList(ctx context.Context, c *cli.Command) error {
	status := models.AlertStatus(cmd.status)
	if status != "" && !status.IsValid() {
		return fmt.Errorf("invalid status: %s", cmd.status)
	}

	alerts, err := cmd.flags.App.Sink.List(ctx, billing.Filter{ClientID: cmd.client, PackageID: cmd.pkg, Status: status})
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "No billing alerts found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "MILESTONE\tCLIENT\tAMOUNT\tSTATUS\tTRIGGERED\tID")
	_, _ = fmt.Fprintln(w, "---------\t------\t------\t------\t---------\t--")
	var outstanding int64
	for _, a := range alerts {
		if a.Status != models.AlertReceived {
			outstanding += a.Amount
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.MilestoneLabel, a.ClientID, formatCents(a.Amount), a.Status,
			a.TriggeredAt.Local().Format(time.DateOnly), a.ID)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nOutstanding: %s across %d alert(s)\n", formatCents(outstanding), len(alerts))
	return nil
}

func (cmd *AlertCmd) runReceived(ctx context.Context, c *cli.Command) error {
	id, err := requireArg(c, "id")
	if err != nil {
		return err
	}
	alert, err := cmd.flags.App.Sink.MarkReceived(ctx, id)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "✓ %s marked received (%s)\n", alert.MilestoneLabel, formatCents(alert.Amount))
	return nil
}

func (cmd *AlertCmd) runUndo(ctx context.Context, c *cli.Command) error {
	id, err := requireArg(c, "id")
	if err != nil {
		return err
	}
	alert, err := cmd.flags.App.Sink.Undo(ctx, id)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "✓ %s is %s again\n", alert.MilestoneLabel, alert.Status)
	return nil
}

func (cmd *AlertCmd) runStatus(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("usage: agencyops alert status <id> <due|pending|waiting|received>")
	}
	status := models.AlertStatus(c.Args().Get(1))
	if !status.IsValid() {
		return fmt.Errorf("invalid status: %s", status)
	}

	alert, err := cmd.flags.App.Sink.UpdateStatus(ctx, c.Args().First(), status)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "✓ %s is now %s\n", alert.MilestoneLabel, alert.Status)
	return nil
}
