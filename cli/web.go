// ABOUTME: Read-only web dashboard subcommand
// ABOUTME: Serves the pipeline, billing alerts and flow graph until interrupted
package cli

import (
	"context"
	"fmt"

	"github.com/harperreed/agencyops/web"
	"github.com/urfave/cli/v3"
)

type WebCmd struct {
	flags *Flags
}

func NewWebCmd(flags *Flags) *WebCmd {
	return &WebCmd{flags: flags}
}

// Register adds the web command to the application
func (cmd *WebCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "web",
		Usage:     "Serve a read-only dashboard",
		UsageText: "agencyops web [--port 8080]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8080, Usage: "Port to listen on"},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *WebCmd) run(ctx context.Context, c *cli.Command) error {
	app := cmd.flags.App
	server, err := web.NewServer(app.VizSources(), app.Logger)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("localhost:%d", c.Int("port"))
	_, _ = fmt.Fprintf(c.Root().Writer, "Serving dashboard at http://%s\n", addr)
	return server.Start(ctx, addr)
}
