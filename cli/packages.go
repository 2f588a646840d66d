// ABOUTME: Package and work unit CLI commands
// ABOUTME: Completing units here runs the same milestone evaluation as the MCP tools
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/harperreed/agencyops/milestones"
	"github.com/harperreed/agencyops/models"
	"github.com/urfave/cli/v3"
)

type PackageCmd struct {
	flags *Flags

	client     string
	name       string
	items      []string
	milestones []string
	lineItem   int
}

func NewPackageCmd(flags *Flags) *PackageCmd {
	return &PackageCmd{flags: flags}
}

// Register adds the pkg command tree to the application
func (cmd *PackageCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:    "pkg",
		Aliases: []string{"package"},
		Usage:   "Manage billable packages",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create a package with line items and payment milestones",
				UsageText: `agencyops pkg add --client ID --item "Blog post:10" --milestone "Deposit:1:250000"`,
				Description: `Line items are LABEL:TARGET. Milestones are LABEL:TRIGGER_AT:AMOUNT_CENTS,
where TRIGGER_AT is the number of completed units across the whole package.`,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "client", Usage: "client ID", Required: true, Destination: &cmd.client},
					&cli.StringFlag{Name: "name", Usage: "package name", Destination: &cmd.name},
					&cli.StringSliceFlag{Name: "item", Usage: "line item LABEL:TARGET (repeatable)", Destination: &cmd.items},
					&cli.StringSliceFlag{Name: "milestone", Usage: "milestone LABEL:TRIGGER_AT:AMOUNT_CENTS (repeatable)", Destination: &cmd.milestones},
				},
				Action: cmd.runAdd,
			},
			{
				Name:      "show",
				Usage:     "Show a package with milestone progress",
				UsageText: "agencyops pkg show <id>",
				Action:    cmd.runShow,
			},
			{
				Name:      "list",
				Usage:     "List packages",
				UsageText: "agencyops pkg list [--client ID]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "client", Usage: "only this client", Destination: &cmd.client},
				},
				Action: cmd.runList,
			},
			{
				Name:      "complete",
				Usage:     "Report one completed unit against a package",
				UsageText: "agencyops pkg complete <id> [--item INDEX]",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "item", Usage: "zero-based line item index", Destination: &cmd.lineItem},
				},
				Action: cmd.runComplete,
			},
		},
	})

	return app
}

func (cmd *PackageCmd) runAdd(ctx context.Context, c *cli.Command) error {
	in := milestones.NewPackage{ClientID: cmd.client, Name: cmd.name}
	for _, raw := range cmd.items {
		li, err := parseLineItem(raw)
		if err != nil {
			return err
		}
		in.LineItems = append(in.LineItems, li)
	}
	for _, raw := range cmd.milestones {
		m, err := parseMilestone(raw)
		if err != nil {
			return err
		}
		in.Milestones = append(in.Milestones, m)
	}

	pkg, err := cmd.flags.App.Engine.CreatePackage(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to create package: %w", err)
	}

	out := c.Root().Writer
	_, _ = fmt.Fprintf(out, "✓ Package created (ID: %s)\n", pkg.ID)
	_, _ = fmt.Fprintf(out, "  Client: %s\n", pkg.ClientID)
	_, _ = fmt.Fprintf(out, "  Units: %d across %d line item(s)\n", pkg.TotalTarget(), len(pkg.LineItems))
	_, _ = fmt.Fprintf(out, "  Milestones: %d\n", len(pkg.Milestones))
	return nil
}

func (cmd *PackageCmd) runShow(ctx context.Context, c *cli.Command) error {
	id, err := requireArg(c, "id")
	if err != nil {
		return err
	}
	pkg, err := cmd.flags.App.Engine.GetPackage(ctx, id)
	if err != nil {
		return err
	}
	writePackage(c.Root().Writer, pkg)
	return nil
}

func (cmd *PackageCmd) runList(ctx context.Context, c *cli.Command) error {
	pkgs, err := cmd.flags.App.Engine.ListPackages(ctx, cmd.client)
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if len(pkgs) == 0 {
		_, _ = fmt.Fprintln(out, "No packages found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tCLIENT\tPROGRESS\tRECEIVED\tID")
	_, _ = fmt.Fprintln(w, "----\t------\t--------\t--------\t--")
	for _, p := range pkgs {
		done := 0
		for _, li := range p.LineItems {
			done += li.CompletedCount
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
			dash(p.Name), p.ClientID, done, p.TotalTarget(), formatCents(p.ReceivedAmount), p.ID)
	}
	_ = w.Flush()
	return nil
}

func (cmd *PackageCmd) runComplete(ctx context.Context, c *cli.Command) error {
	id, err := requireArg(c, "id")
	if err != nil {
		return err
	}
	alerts, err := cmd.flags.App.Engine.ReportUnitCompleted(ctx, id, cmd.lineItem)
	if err != nil {
		return err
	}
	out := c.Root().Writer
	_, _ = fmt.Fprintf(out, "✓ Unit completed on package %s\n", id)
	writeRaisedAlerts(out, alerts)
	return nil
}

type UnitCmd struct {
	flags *Flags

	client   string
	pkg      string
	lineItem int
	title    string
	amount   int64
}

func NewUnitCmd(flags *Flags) *UnitCmd {
	return &UnitCmd{flags: flags}
}

// Register adds the unit command tree to the application
func (cmd *UnitCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "unit",
		Usage: "Manage individual work units",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Track a work unit, linked to a package or standalone",
				UsageText: "agencyops unit add --title TITLE (--package ID [--item INDEX] | --client ID --amount CENTS)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "what the unit delivers", Required: true, Destination: &cmd.title},
					&cli.StringFlag{Name: "package", Usage: "package ID", Destination: &cmd.pkg},
					&cli.IntFlag{Name: "item", Usage: "zero-based line item index", Destination: &cmd.lineItem},
					&cli.StringFlag{Name: "client", Usage: "client ID (taken from the package when linked)", Destination: &cmd.client},
					&cli.Int64Flag{Name: "amount", Usage: "standalone price in cents", Destination: &cmd.amount},
				},
				Action: cmd.runAdd,
			},
			{
				Name:      "complete",
				Usage:     "Mark a work unit done",
				UsageText: "agencyops unit complete <id>",
				Action:    cmd.runComplete,
			},
			{
				Name:      "list",
				Usage:     "List the units of a package, or standalone units",
				UsageText: "agencyops unit list [--package ID]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "package", Usage: "package ID", Destination: &cmd.pkg},
				},
				Action: cmd.runList,
			},
		},
	})

	return app
}

func (cmd *UnitCmd) runAdd(ctx context.Context, c *cli.Command) error {
	unit, err := cmd.flags.App.Engine.AddUnit(ctx, milestones.NewWorkUnit{
		ClientID:      cmd.client,
		PackageID:     cmd.pkg,
		LineItemIndex: cmd.lineItem,
		Title:         cmd.title,
		Amount:        cmd.amount,
	})
	if err != nil {
		return fmt.Errorf("failed to add unit: %w", err)
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "✓ Unit added: %s (ID: %s)\n", unit.Title, unit.ID)
	return nil
}

func (cmd *UnitCmd) runComplete(ctx context.Context, c *cli.Command) error {
	id, err := requireArg(c, "id")
	if err != nil {
		return err
	}
	alerts, err := cmd.flags.App.Engine.CompleteUnit(ctx, id)
	if err != nil {
		return err
	}
	out := c.Root().Writer
	_, _ = fmt.Fprintf(out, "✓ Unit %s completed\n", id)
	writeRaisedAlerts(out, alerts)
	return nil
}

func (cmd *UnitCmd) runList(ctx context.Context, c *cli.Command) error {
	units, err := cmd.flags.App.Engine.ListUnits(ctx, cmd.pkg)
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if len(units) == 0 {
		_, _ = fmt.Fprintln(out, "No units found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TITLE\tSTATUS\tITEM\tID")
	_, _ = fmt.Fprintln(w, "-----\t------\t----\t--")
	for _, u := range units {
		item := "-"
		if !u.IsStandalone() {
			item = strconv.Itoa(u.LineItemIndex)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.Title, u.Status, item, u.ID)
	}
	_ = w.Flush()
	return nil
}

func writePackage(w io.Writer, p *models.Package) {
	_, _ = fmt.Fprintf(w, "%s\n", dash(p.Name))
	_, _ = fmt.Fprintf(w, "  ID: %s\n", p.ID)
	_, _ = fmt.Fprintf(w, "  Client: %s\n", p.ClientID)
	_, _ = fmt.Fprintf(w, "  Received: %s\n", formatCents(p.ReceivedAmount))

	_, _ = fmt.Fprintf(w, "\nLine items:\n")
	for i, li := range p.LineItems {
		_, _ = fmt.Fprintf(w, "  [%d] %s  %d/%d\n", i, li.ServiceLabel, li.CompletedCount, li.TargetQuantity)
	}

	if len(p.Milestones) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "\nMilestones:\n")
	for _, m := range p.Milestones {
		_, _ = fmt.Fprintf(w, "  %-20s at %-4d %-10s %s\n", m.Label, m.TriggerAtQuantity, m.Status, formatCents(m.AmountDue))
	}
}

func writeRaisedAlerts(w io.Writer, alerts []models.BillingAlert) {
	for _, a := range alerts {
		_, _ = fmt.Fprintf(w, "  Billing alert: %s %s (ID: %s)\n", a.MilestoneLabel, formatCents(a.Amount), a.ID)
	}
}

// parseLineItem reads LABEL:TARGET. The label may itself contain colons.
func parseLineItem(raw string) (milestones.NewLineItem, error) {
	i := strings.LastIndex(raw, ":")
	if i < 0 {
		return milestones.NewLineItem{}, fmt.Errorf("invalid line item %q: want LABEL:TARGET", raw)
	}
	target, err := strconv.Atoi(strings.TrimSpace(raw[i+1:]))
	if err != nil {
		return milestones.NewLineItem{}, fmt.Errorf("invalid line item %q: %w", raw, err)
	}
	return milestones.NewLineItem{ServiceLabel: strings.TrimSpace(raw[:i]), TargetQuantity: target}, nil
}

// parseMilestone reads LABEL:TRIGGER_AT:AMOUNT_CENTS.
func parseMilestone(raw string) (milestones.NewMilestone, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 3 {
		return milestones.NewMilestone{}, fmt.Errorf("invalid milestone %q: want LABEL:TRIGGER_AT:AMOUNT_CENTS", raw)
	}
	n := len(parts)
	trigger, err := strconv.Atoi(strings.TrimSpace(parts[n-2]))
	if err != nil {
		return milestones.NewMilestone{}, fmt.Errorf("invalid milestone %q: %w", raw, err)
	}
	amount, err := strconv.ParseInt(strings.TrimSpace(parts[n-1]), 10, 64)
	if err != nil {
		return milestones.NewMilestone{}, fmt.Errorf("invalid milestone %q: %w", raw, err)
	}
	return milestones.NewMilestone{
		Label:             strings.TrimSpace(strings.Join(parts[:n-2], ":")),
		TriggerAtQuantity: trigger,
		AmountDue:         amount,
	}, nil
}
