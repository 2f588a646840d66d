// ABOUTME: Shared argument and output helpers for CLI commands
// ABOUTME: Money is stored in cents and printed as dollars
package cli

import (
	"fmt"

	"github.com/urfave/cli/v3"
)

// requireArg returns the first positional argument or a usage error.
func requireArg(c *cli.Command, name string) (string, error) {
	if c.Args().Len() < 1 || c.Args().First() == "" {
		return "", fmt.Errorf("usage: %s <%s>", c.FullName(), name)
	}
	return c.Args().First(), nil
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100.0)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
