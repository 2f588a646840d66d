// ABOUTME: MCP prompt handlers for reusable pipeline and billing workflows
// ABOUTME: Prompts embed the current record so the model starts from stored facts
package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/agencyops/billing"
	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/pipeline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type PromptHandlers struct {
	machine *pipeline.Machine
	sink    *billing.Sink
}

func NewPromptHandlers(machine *pipeline.Machine, sink *billing.Sink) *PromptHandlers {
	return &PromptHandlers{machine: machine, sink: sink}
}

// Prompts lists the prompt definitions served by GetPrompt.
func (h *PromptHandlers) Prompts() []*mcp.Prompt {
	return []*mcp.Prompt{
		{
			Name:        "opportunity-review",
			Description: "Review an opportunity's history and suggest the next pipeline move",
			Arguments: []*mcp.PromptArgument{
				{Name: "opportunity_id", Description: "Opportunity to review", Required: true},
			},
		},
		{
			Name:        "collections-followup",
			Description: "Draft follow-ups for billing alerts that have not been paid",
			Arguments: []*mcp.PromptArgument{
				{Name: "client_id", Description: "Limit to one client"},
			},
		},
	}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := request.Params.Arguments
	switch request.Params.Name {
	case "opportunity-review":
		return h.opportunityReview(ctx, args)
	case "collections-followup":
		return h.collectionsFollowup(ctx, args)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", request.Params.Name)
	}
}

func (h *PromptHandlers) opportunityReview(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	id := args["opportunity_id"]
	if id == "" {
		return nil, fmt.Errorf("opportunity_id is required")
	}
	opp, err := h.machine.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch opportunity: %w", err)
	}

	var b strings.Builder
	b.WriteString("Review this sales opportunity and recommend the next move.\n\n")
	fmt.Fprintf(&b, "Name: %s\n", opp.DisplayName)
	if opp.Organization != "" {
		fmt.Fprintf(&b, "Organization: %s\n", opp.Organization)
	}
	fmt.Fprintf(&b, "Pool: %s\n", opp.Pool.Label())
	if opp.Stage != "" {
		fmt.Fprintf(&b, "Stage: %s\n", opp.Stage.Label())
	}
	if opp.Outreach != "" {
		fmt.Fprintf(&b, "Outreach: %s\n", opp.Outreach.Label())
	}
	fmt.Fprintf(&b, "Score: %d\n", opp.Score)
	if opp.NurtureReason != "" {
		fmt.Fprintf(&b, "Nurture reason: %s\n", opp.NurtureReason)
	}

	b.WriteString("\nActivity (newest first):\n")
	for _, a := range models.NewestFirst(opp.Activities) {
		fmt.Fprintf(&b, "- %s: %s\n", a.Timestamp.Format(time.DateOnly), a.Description)
	}
	b.WriteString("\nUse transition_opportunity to apply the move you recommend.")

	return textPrompt("Opportunity review", b.String()), nil
}

func (h *PromptHandlers) collectionsFollowup(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	alerts, err := h.sink.List(ctx, billing.Filter{ClientID: args["client_id"]})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch billing alerts: %w", err)
	}

	var b strings.Builder
	b.WriteString("Draft a short, friendly payment follow-up for each unpaid billing alert below.\n\n")
	open := 0
	for _, a := range alerts {
		if a.Status == models.AlertReceived {
			continue
		}
		open++
		fmt.Fprintf(&b, "- %s for client %s: $%.2f, %s since %s\n",
			a.MilestoneLabel, a.ClientID, float64(a.Amount)/100.0, a.Status, a.TriggeredAt.Format(time.DateOnly))
	}
	if open == 0 {
		b.WriteString("There are no unpaid alerts. Say so and stop.\n")
	}

	return textPrompt("Collections follow-up", b.String()), nil
}

func textPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: text}},
		},
	}
}
