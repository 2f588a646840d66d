// ABOUTME: zerolog logger construction for the CLI, MCP server and board
// ABOUTME: Writes JSON to a file when one is configured, otherwise to stderr
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// New returns a logger at the given level. The returned closer releases the
// log file and is safe to call when logging to stderr.
func New(level, file string) (zerolog.Logger, func(), error) {
	closer := func() {}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), closer, fmt.Errorf("invalid log level: %w", err)
	}

	var writer io.Writer = os.Stderr
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("failed to create logs dir: %w", err)
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("failed to open log file: %w", err)
		}
		closer = func() { _ = f.Close() }
		writer = f
	}

	return zerolog.New(writer).With().Timestamp().Logger().Level(lvl), closer, nil
}
