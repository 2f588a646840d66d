// ABOUTME: Interactive pipeline board subcommand
// ABOUTME: Runs the bubbletea board full-screen; requires a terminal
package cli

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/agencyops/tui"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

type BoardCmd struct {
	flags *Flags
}

func NewBoardCmd(flags *Flags) *BoardCmd {
	return &BoardCmd{flags: flags}
}

// Register adds the board command to the application
func (cmd *BoardCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "board",
		Usage:     "Open the live pipeline board",
		UsageText: "agencyops board",
		Action:    cmd.run,
	})

	return app
}

func (cmd *BoardCmd) run(ctx context.Context, c *cli.Command) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("board needs an interactive terminal; use 'agencyops opp list' instead")
	}

	app := cmd.flags.App
	model := tui.NewModel(app.Store, app.Machine)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run board: %w", err)
	}
	return nil
}
