// ABOUTME: GraphViz and dashboard MCP handlers
// ABOUTME: Provides pipeline_graph and dashboard tools for agents
package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-graphviz"
	"github.com/harperreed/agencyops/viz"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type VizHandlers struct {
	src viz.Sources
}

func NewVizHandlers(src viz.Sources) *VizHandlers {
	return &VizHandlers{src: src}
}

type PipelineGraphInput struct{}

type PipelineGraphOutput struct {
	DOTSource string `json:"dot_source"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
}

func (h *VizHandlers) PipelineGraph(ctx context.Context, _ *mcp.CallToolRequest, _ PipelineGraphInput) (*mcp.CallToolResult, PipelineGraphOutput, error) {
	stats, err := viz.GenerateDashboardStats(ctx, h.src, time.Now())
	if err != nil {
		return nil, PipelineGraphOutput{}, err
	}

	out, err := viz.GeneratePipelineGraph(ctx, stats, graphviz.XDOT)
	if err != nil {
		return nil, PipelineGraphOutput{}, fmt.Errorf("failed to generate graph: %w", err)
	}
	dot := string(out)

	// Count nodes and edges for stats
	return nil, PipelineGraphOutput{
		DOTSource: dot,
		NodeCount: strings.Count(dot, "shape=box"),
		EdgeCount: strings.Count(dot, "->"),
	}, nil
}

type DashboardInput struct{}

type DashboardOutput struct {
	Text              string         `json:"text"`
	PoolCounts        map[string]int `json:"pool_counts"`
	Customers         int            `json:"customers"`
	Outstanding       int64          `json:"outstanding"`
	OutstandingAlerts int            `json:"outstanding_alerts"`
	Received          int64          `json:"received"`
	StaleDeals        int            `json:"stale_deals"`
}

func (h *VizHandlers) Dashboard(ctx context.Context, _ *mcp.CallToolRequest, _ DashboardInput) (*mcp.CallToolResult, DashboardOutput, error) {
	stats, err := viz.GenerateDashboardStats(ctx, h.src, time.Now())
	if err != nil {
		return nil, DashboardOutput{}, err
	}

	counts := make(map[string]int, len(stats.Pools))
	for pool, ps := range stats.Pools {
		counts[string(pool)] = ps.Count
	}
	return nil, DashboardOutput{
		Text:              viz.RenderDashboard(stats),
		PoolCounts:        counts,
		Customers:         stats.Customers,
		Outstanding:       stats.Outstanding,
		OutstandingAlerts: stats.OutstandingAlerts,
		Received:          stats.Received,
		StaleDeals:        len(stats.StaleDeals),
	}, nil
}
