// ABOUTME: GraphViz rendering of the pipeline flow
// ABOUTME: One node per pool with its current count, one edge per allowed move
package viz

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/pipeline"
)

// ParseFormat maps a CLI format name to a graphviz output format.
func ParseFormat(name string) (graphviz.Format, error) {
	switch strings.ToLower(name) {
	case "", "dot":
		return graphviz.XDOT, nil
	case "svg":
		return graphviz.SVG, nil
	case "png":
		return graphviz.PNG, nil
	}
	return "", fmt.Errorf("unknown graph format %q (valid formats: dot, svg, png)", name)
}

var poolColors = map[models.Pool]string{
	models.PoolProspect:   "lightblue",
	models.PoolActiveDeal: "lightyellow",
	models.PoolNurture:    "lightpink",
	models.PoolDormant:    "lightgray",
	models.PoolSuppressed: "gray",
	models.PoolConverted:  "lightgreen",
}

// GeneratePipelineGraph draws the pools as nodes labelled with the counts in
// stats and every allowed pool move as an edge labelled with its trigger.
func GeneratePipelineGraph(ctx context.Context, stats *DashboardStats, format graphviz.Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create graphviz instance: %w", err)
	}
	defer func() { _ = gv.Close() }()

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("failed to create graph: %w", err)
	}
	defer func() { _ = graph.Close() }()

	graph.SetLabel("Pipeline")
	graph.SetRankDir(cgraph.LRRank)

	nodes := make(map[models.Pool]*cgraph.Node)
	for _, pool := range append(append([]models.Pool{}, models.LivePools...), models.PoolConverted) {
		node, err := graph.CreateNodeByName(string(pool))
		if err != nil {
			return nil, fmt.Errorf("failed to create pool node: %w", err)
		}
		node.SetLabel(poolLabel(pool, stats))
		node.SetShape("box")
		node.SetStyle("filled")
		node.SetFillColor(poolColors[pool])
		nodes[pool] = node
	}

	for _, mv := range pipeline.Moves {
		edge, err := graph.CreateEdgeByName(fmt.Sprintf("%s_%s", mv.From, mv.To), nodes[mv.From], nodes[mv.To])
		if err != nil {
			return nil, fmt.Errorf("failed to create edge: %w", err)
		}
		edge.SetLabel(mv.Trigger)
		if mv.To == models.PoolDormant || mv.To == models.PoolSuppressed {
			edge.SetStyle("dashed")
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, format, &buf); err != nil {
		return nil, fmt.Errorf("failed to render graph: %w", err)
	}

	return buf.Bytes(), nil
}

func poolLabel(pool models.Pool, stats *DashboardStats) string {
	if stats == nil {
		return pool.Label()
	}
	if pool == models.PoolConverted {
		return fmt.Sprintf("%s\n%d customers", pool.Label(), stats.Customers)
	}
	ps := stats.Pools[pool]
	if ps.Value > 0 {
		return fmt.Sprintf("%s\n%d ($%dK)", pool.Label(), ps.Count, ps.Value/100000)
	}
	return fmt.Sprintf("%s\n%d", pool.Label(), ps.Count)
}
