// ABOUTME: Human-readable sync status for the charm backend
// ABOUTME: Reports server, auto-sync, connection and key counts per record partition

package charm

import (
	"bytes"
	"fmt"
	"io"
	"sort"
)

// WriteStatus prints the connection and data summary for c.
func WriteStatus(w io.Writer, c *Client) error {
	cfg := c.Config()

	fmt.Fprintln(w, "Charm Sync Status")
	fmt.Fprintln(w, "─────────────────")
	if c.IsLocal() {
		fmt.Fprintln(w, "Mode:      local (no server)")
	} else {
		fmt.Fprintf(w, "Server:    %s\n", cfg.Host)
		fmt.Fprintf(w, "Auto-sync: %v\n", cfg.AutoSync)

		id, err := c.ID()
		if err != nil {
			fmt.Fprintln(w, "\nStatus: Not connected")
		} else {
			fmt.Fprintln(w, "\nStatus: Connected to Charm Cloud")
			fmt.Fprintf(w, "ID:        %s\n", id)
		}
	}

	keys, err := c.Keys()
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	fmt.Fprintf(w, "Keys:      %d\n", len(keys))

	counts := countByPartition(keys)
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-24s %d\n", name, counts[name])
	}
	return nil
}

// countByPartition groups keys by everything before their last slash.
func countByPartition(keys [][]byte) map[string]int {
	counts := make(map[string]int)
	for _, k := range keys {
		i := bytes.LastIndexByte(k, '/')
		if i < 0 {
			counts["(unpartitioned)"]++
			continue
		}
		counts[string(k[:i])]++
	}
	return counts
}
