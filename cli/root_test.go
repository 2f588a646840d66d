package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idPattern = regexp.MustCompile(`ID: ([^)\s]+)`)

func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("AGENCYOPS_SYNC_ENABLED", "false")
	t.Setenv("AGENCYOPS_BACKEND", "")
	t.Setenv("AGENCYOPS_DATA_DIR", "")
	t.Setenv("AGENCYOPS_LOG_LEVEL", "")
	return dir
}

func runCLI(t *testing.T, dataDir, backend string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand("test")
	cmd.Writer = &out
	cmd.ErrWriter = io.Discard

	full := append([]string{
		"agencyops",
		"--config", filepath.Join(dataDir, "missing.yaml"),
		"--backend", backend,
		"--data-dir", dataDir,
		"--log-level", "error",
	}, args...)
	err := cmd.Run(context.Background(), full)
	return out.String(), err
}

func extractID(t *testing.T, output string) string {
	t.Helper()
	m := idPattern.FindStringSubmatch(output)
	require.Len(t, m, 2, "no ID in output: %s", output)
	return m[1]
}

func TestPipelineAndBillingFromCLI(t *testing.T) {
	for _, backend := range []string{"local", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			dir := isolateEnv(t)

			out, err := runCLI(t, dir, backend, "opp", "add", "--name", "Ada Lovelace", "--org", "Analytical", "--email", "ada@example.com")
			require.NoError(t, err)
			assert.Contains(t, out, "✓ Opportunity created: Ada Lovelace")
			oppID := extractID(t, out)

			out, err = runCLI(t, dir, backend, "opp", "move", oppID, "--outreach", "interested")
			require.NoError(t, err)
			assert.Contains(t, out, "Active Deal")
			assert.Contains(t, out, "score 20")

			out, err = runCLI(t, dir, backend, "opp", "note", oppID, "sent", "the", "deck")
			require.NoError(t, err)
			assert.Contains(t, out, "✓ Note added to Ada Lovelace")

			out, err = runCLI(t, dir, backend, "opp", "show", oppID)
			require.NoError(t, err)
			assert.Contains(t, out, "sent the deck")

			out, err = runCLI(t, dir, backend, "opp", "list", "--pool", "active_deal")
			require.NoError(t, err)
			assert.Contains(t, out, "Ada Lovelace")
			assert.Contains(t, out, "Total: 1")

			out, err = runCLI(t, dir, backend, "pkg", "add", "--client", "client-1",
				"--item", "Reel:2", "--milestone", "Half:1:5000")
			require.NoError(t, err)
			pkgID := extractID(t, out)

			out, err = runCLI(t, dir, backend, "pkg", "complete", pkgID)
			require.NoError(t, err)
			assert.Contains(t, out, "Billing alert: Half $50.00")
			alertID := extractID(t, out)

			out, err = runCLI(t, dir, backend, "alert", "list", "--status", "due")
			require.NoError(t, err)
			assert.Contains(t, out, "Half")
			assert.Contains(t, out, "Outstanding: $50.00")

			out, err = runCLI(t, dir, backend, "alert", "received", alertID)
			require.NoError(t, err)
			assert.Contains(t, out, "✓ Half marked received")

			out, err = runCLI(t, dir, backend, "pkg", "show", pkgID)
			require.NoError(t, err)
			assert.Contains(t, out, "Received: $50.00")
			assert.Contains(t, out, "[0] Reel  1/2")
		})
	}
}

func TestCLIRejectsBadInput(t *testing.T) {
	dir := isolateEnv(t)

	_, err := runCLI(t, dir, "local", "opp", "add", "--name", "No Contact")
	assert.Error(t, err)

	_, err = runCLI(t, dir, "local", "opp", "list", "--pool", "limbo")
	assert.ErrorContains(t, err, "invalid pool")

	_, err = runCLI(t, dir, "local", "opp", "show")
	assert.ErrorContains(t, err, "usage")

	_, err = runCLI(t, dir, "local", "pkg", "add", "--client", "c", "--item", "Reel")
	assert.ErrorContains(t, err, "LABEL:TARGET")

	_, err = runCLI(t, dir, "local", "alert", "status", "x", "paid")
	assert.ErrorContains(t, err, "invalid status")

	_, err = runCLI(t, dir, "nowhere", "opp", "list")
	assert.ErrorContains(t, err, "nowhere")
}

func TestCharmCommandsNeedCharmBackend(t *testing.T) {
	dir := isolateEnv(t)

	_, err := runCLI(t, dir, "sqlite", "charm", "status")
	assert.ErrorContains(t, err, "does not use charm")

	out, err := runCLI(t, dir, "local", "charm", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "local (no server)")

	_, err = runCLI(t, dir, "local", "charm", "wipe")
	assert.ErrorContains(t, err, "--yes")
}

func TestParseMilestoneAllowsColonsInLabel(t *testing.T) {
	m, err := parseMilestone("Phase: one:3:12500")
	require.NoError(t, err)
	assert.Equal(t, "Phase: one", m.Label)
	assert.Equal(t, 3, m.TriggerAtQuantity)
	assert.Equal(t, int64(12500), m.AmountDue)

	li, err := parseLineItem("Blog post:10")
	require.NoError(t, err)
	assert.Equal(t, "Blog post", li.ServiceLabel)
	assert.Equal(t, 10, li.TargetQuantity)

	_, err = parseMilestone("Half:x:100")
	assert.Error(t, err)
}

func TestVizCommands(t *testing.T) {
	dir := isolateEnv(t)

	_, err := runCLI(t, dir, "local", "opp", "add", "--name", "Graph Gail", "--email", "gail@example.com")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "local", "viz", "dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, "AGENCYOPS DASHBOARD")
	assert.Contains(t, out, "0 customers")

	out, err = runCLI(t, dir, "local", "viz", "graph")
	require.NoError(t, err)
	assert.Contains(t, out, "active_deal")
	assert.Contains(t, out, "interested")

	_, err = runCLI(t, dir, "local", "viz", "graph", "--format", "png")
	assert.ErrorContains(t, err, "--output")

	path := filepath.Join(dir, "pipeline.svg")
	out, err = runCLI(t, dir, "local", "viz", "graph", "--format", "svg", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Graph written to")
	assert.FileExists(t, path)
}

func TestMigrateLocalToSQLite(t *testing.T) {
	dir := isolateEnv(t)

	_, err := runCLI(t, dir, "local", "opp", "add", "--name", "Moving Mo", "--email", "mo@example.com")
	require.NoError(t, err)

	_, err = runCLI(t, dir, "local", "migrate", "--to", "local")
	assert.ErrorContains(t, err, "current backend")

	out, err := runCLI(t, dir, "local", "migrate", "--to", "sqlite", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "[DRY RUN] Would copy 1 record(s)")

	out, err = runCLI(t, dir, "sqlite", "opp", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "Moving Mo")

	out, err = runCLI(t, dir, "local", "migrate", "--to", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Copied 1 record(s) from local to sqlite")

	out, err = runCLI(t, dir, "sqlite", "opp", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Moving Mo")
}
