// ABOUTME: MCP resource handlers for read-only pipeline and billing views
// ABOUTME: Serves agencyops:// URIs as JSON documents
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harperreed/agencyops/billing"
	"github.com/harperreed/agencyops/milestones"
	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/pipeline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const resourceScheme = "agencyops://"

type ResourceHandlers struct {
	machine *pipeline.Machine
	engine  *milestones.Engine
	sink    *billing.Sink
}

func NewResourceHandlers(machine *pipeline.Machine, engine *milestones.Engine, sink *billing.Sink) *ResourceHandlers {
	return &ResourceHandlers{machine: machine, engine: engine, sink: sink}
}

// PoolSummary is one pool of the pipeline overview.
type PoolSummary struct {
	Pool       string `json:"pool"`
	Count      int    `json:"count"`
	TotalValue int64  `json:"total_value"`
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, resourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", resourceScheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, resourceScheme), "/")
	switch parts[0] {
	case "pipeline":
		return h.readPipeline(ctx, uri)
	case "alerts":
		return h.readOutstandingAlerts(ctx, uri)
	case "packages":
		if len(parts) == 2 && parts[1] != "" {
			return h.readPackage(ctx, uri, parts[1])
		}
	}
	return nil, mcp.ResourceNotFoundError(uri)
}

func (h *ResourceHandlers) readPipeline(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	opps, err := h.machine.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch opportunities: %w", err)
	}

	byPool := make(map[models.Pool]*PoolSummary, len(models.LivePools))
	summary := make([]*PoolSummary, 0, len(models.LivePools))
	for _, p := range models.LivePools {
		s := &PoolSummary{Pool: string(p)}
		byPool[p] = s
		summary = append(summary, s)
	}
	for _, o := range opps {
		s, ok := byPool[o.Pool]
		if !ok {
			continue
		}
		s.Count++
		if o.Value != nil {
			s.TotalValue += *o.Value
		}
	}
	return jsonResource(uri, summary)
}

func (h *ResourceHandlers) readOutstandingAlerts(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	alerts, err := h.sink.List(ctx, billing.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch billing alerts: %w", err)
	}

	outstanding := []AlertOutput{}
	for i := range alerts {
		if alerts[i].Status != models.AlertReceived {
			outstanding = append(outstanding, alertToOutput(&alerts[i]))
		}
	}
	return jsonResource(uri, outstanding)
}

func (h *ResourceHandlers) readPackage(ctx context.Context, uri, id string) (*mcp.ReadResourceResult, error) {
	pkg, err := h.engine.GetPackage(ctx, id)
	if err != nil {
		if milestones.IsNotFound(err) {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		return nil, fmt.Errorf("failed to fetch package: %w", err)
	}
	return jsonResource(uri, packageToOutput(pkg))
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}
