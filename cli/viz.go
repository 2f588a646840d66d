// ABOUTME: Visualization CLI commands
// ABOUTME: Handles viz dashboard and pipeline graph generation
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-graphviz"
	"github.com/harperreed/agencyops/viz"
	"github.com/urfave/cli/v3"
)

type VizCmd struct {
	flags *Flags
}

func NewVizCmd(flags *Flags) *VizCmd {
	return &VizCmd{flags: flags}
}

// Register adds the viz command to the application
func (cmd *VizCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "viz",
		Usage: "Dashboards and graphs",
		Commands: []*cli.Command{
			{
				Name:      "dashboard",
				Usage:     "Print pool counts, delivery progress and billing totals",
				UsageText: "agencyops viz dashboard",
				Action:    cmd.runDashboard,
			},
			{
				Name:      "graph",
				Usage:     "Render the pipeline flow with GraphViz",
				UsageText: "agencyops viz graph [--format dot|svg|png] [--output FILE]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "dot", Usage: "Output format: dot, svg or png"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file (default: stdout)"},
				},
				Action: cmd.runGraph,
			},
		},
	})

	return app
}

func (cmd *VizCmd) runDashboard(ctx context.Context, c *cli.Command) error {
	stats, err := viz.GenerateDashboardStats(ctx, cmd.flags.App.VizSources(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to generate dashboard stats: %w", err)
	}

	_, _ = fmt.Fprint(c.Root().Writer, viz.RenderDashboard(stats))
	return nil
}

func (cmd *VizCmd) runGraph(ctx context.Context, c *cli.Command) error {
	format, err := viz.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}
	if format != graphviz.XDOT && c.String("output") == "" {
		return fmt.Errorf("%s output needs --output", format)
	}

	stats, err := viz.GenerateDashboardStats(ctx, cmd.flags.App.VizSources(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to generate dashboard stats: %w", err)
	}

	out, err := viz.GeneratePipelineGraph(ctx, stats, format)
	if err != nil {
		return err
	}

	if path := c.String("output"); path != "" {
		if err := os.WriteFile(path, out, 0644); err != nil {
			return fmt.Errorf("failed to write graph: %w", err)
		}
		_, _ = fmt.Fprintf(c.Root().Writer, "✓ Graph written to %s\n", path)
		return nil
	}

	_, _ = fmt.Fprintln(c.Root().Writer, string(out))
	return nil
}
