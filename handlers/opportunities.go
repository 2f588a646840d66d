// ABOUTME: Opportunity MCP tool handlers
// ABOUTME: Implements create_opportunity, transition_opportunity, get_opportunity and list_opportunities
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/pipeline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type OpportunityHandlers struct {
	machine *pipeline.Machine
}

func NewOpportunityHandlers(machine *pipeline.Machine) *OpportunityHandlers {
	return &OpportunityHandlers{machine: machine}
}

type ContactMethodInput struct {
	Type  string `json:"type" jsonschema:"Channel: email, phone, linkedin, whatsapp or other"`
	Value string `json:"value" jsonschema:"Address, number or profile URL"`
}

type CreateOpportunityInput struct {
	DisplayName    string               `json:"display_name" jsonschema:"Person or lead name (required)"`
	Organization   string               `json:"organization,omitempty" jsonschema:"Company or organization"`
	Role           string               `json:"role,omitempty" jsonschema:"Role at the organization"`
	ContactMethods []ContactMethodInput `json:"contact_methods" jsonschema:"At least one way to reach the lead"`
	Value          *int64               `json:"value,omitempty" jsonschema:"Estimated deal value in cents"`
}

type ActivityOutput struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	Type        string `json:"type"`
	Description string `json:"description"`
	OldValue    string `json:"old_value,omitempty"`
	NewValue    string `json:"new_value,omitempty"`
}

type OpportunityOutput struct {
	ID                string               `json:"id"`
	DisplayName       string               `json:"display_name"`
	Organization      string               `json:"organization,omitempty"`
	Role              string               `json:"role,omitempty"`
	ContactMethods    []ContactMethodInput `json:"contact_methods,omitempty"`
	Pool              string               `json:"pool"`
	Stage             string               `json:"stage,omitempty"`
	Outreach          string               `json:"outreach,omitempty"`
	Score             int                  `json:"score"`
	Value             *int64               `json:"value,omitempty"`
	Tags              []string             `json:"tags,omitempty"`
	NurtureReason     string               `json:"nurture_reason,omitempty"`
	ExternalContactID string               `json:"external_contact_id,omitempty"`
	CustomerID        string               `json:"customer_id,omitempty"`
	Activities        []ActivityOutput     `json:"activities,omitempty"`
	CreatedAt         string               `json:"created_at"`
	UpdatedAt         string               `json:"updated_at"`
}

func (h *OpportunityHandlers) CreateOpportunity(ctx context.Context, _ *mcp.CallToolRequest, input CreateOpportunityInput) (*mcp.CallToolResult, OpportunityOutput, error) {
	in := pipeline.NewOpportunity{
		DisplayName:  input.DisplayName,
		Organization: input.Organization,
		Role:         input.Role,
		Value:        input.Value,
	}
	for _, cm := range input.ContactMethods {
		in.ContactMethods = append(in.ContactMethods, models.ContactMethod{Type: cm.Type, Value: cm.Value})
	}

	opp, err := h.machine.Create(ctx, in)
	if err != nil {
		return nil, OpportunityOutput{}, fmt.Errorf("failed to create opportunity: %w", err)
	}
	return nil, opportunityToOutput(opp), nil
}

type TransitionOpportunityInput struct {
	ID          string `json:"id" jsonschema:"Opportunity ID (required)"`
	Pool        string `json:"pool,omitempty" jsonschema:"Target pool: prospect, active_deal, nurture, dormant, suppressed"`
	Stage       string `json:"stage,omitempty" jsonschema:"Target ActiveDeal stage, or closed_won / closed_lost"`
	Outreach    string `json:"outreach,omitempty" jsonschema:"Prospect outreach status: message_sent, replied, interested"`
	Note        string `json:"note,omitempty" jsonschema:"Note to log; required when moving to nurture"`
	AccessToken string `json:"access_token,omitempty" jsonschema:"OAuth access token for contact sync"`
}

func (h *OpportunityHandlers) TransitionOpportunity(ctx context.Context, _ *mcp.CallToolRequest, input TransitionOpportunityInput) (*mcp.CallToolResult, OpportunityOutput, error) {
	if input.ID == "" {
		return nil, OpportunityOutput{}, fmt.Errorf("id is required")
	}

	ch, err := ParseChange(input.Pool, input.Stage, input.Outreach, input.Note)
	if err != nil {
		return nil, OpportunityOutput{}, err
	}
	ch.AccessToken = input.AccessToken

	opp, err := h.machine.Transition(ctx, input.ID, ch)
	if err != nil {
		return nil, OpportunityOutput{}, err
	}
	return nil, opportunityToOutput(opp), nil
}

type GetOpportunityInput struct {
	ID string `json:"id" jsonschema:"Opportunity ID (required)"`
}

func (h *OpportunityHandlers) GetOpportunity(ctx context.Context, _ *mcp.CallToolRequest, input GetOpportunityInput) (*mcp.CallToolResult, OpportunityOutput, error) {
	if input.ID == "" {
		return nil, OpportunityOutput{}, fmt.Errorf("id is required")
	}
	opp, err := h.machine.Get(ctx, input.ID)
	if err != nil {
		return nil, OpportunityOutput{}, err
	}
	return nil, opportunityToOutput(opp), nil
}

type ListOpportunitiesInput struct {
	Pool  string `json:"pool,omitempty" jsonschema:"Only list this pool; all live pools when empty"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum results, highest score first (default 50)"`
}

type ListOpportunitiesOutput struct {
	Opportunities []OpportunityOutput `json:"opportunities"`
	Total         int                 `json:"total"`
}

func (h *OpportunityHandlers) ListOpportunities(ctx context.Context, _ *mcp.CallToolRequest, input ListOpportunitiesInput) (*mcp.CallToolResult, ListOpportunitiesOutput, error) {
	var pool models.Pool
	if input.Pool != "" {
		p, ok := models.ParsePool(input.Pool)
		if !ok {
			return nil, ListOpportunitiesOutput{}, fmt.Errorf("invalid pool: %s", input.Pool)
		}
		pool = p
	}

	opps, err := h.machine.List(ctx, pool)
	if err != nil {
		return nil, ListOpportunitiesOutput{}, err
	}
	pipeline.SortByScore(opps)

	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}
	out := ListOpportunitiesOutput{Total: len(opps), Opportunities: []OpportunityOutput{}}
	for i := range opps {
		if i >= limit {
			break
		}
		o := opportunityToOutput(&opps[i])
		o.Activities = nil
		out.Opportunities = append(out.Opportunities, o)
	}
	return nil, out, nil
}

// ParseChange builds a pipeline change from loosely formatted names, accepting
// either stored values or display labels.
func ParseChange(pool, stage, outreach, note string) (pipeline.Change, error) {
	ch := pipeline.Change{Note: note}
	if pool != "" {
		p, ok := models.ParsePool(pool)
		if !ok {
			return ch, fmt.Errorf("invalid pool: %s", pool)
		}
		ch.Pool = p
	}
	if stage != "" {
		s, ok := models.ParseStage(stage)
		if !ok {
			return ch, fmt.Errorf("invalid stage: %s", stage)
		}
		ch.Stage = s
	}
	if outreach != "" {
		o, ok := models.ParseOutreach(outreach)
		if !ok {
			return ch, fmt.Errorf("invalid outreach status: %s", outreach)
		}
		ch.Outreach = o
	}
	return ch, nil
}

func opportunityToOutput(o *models.Opportunity) OpportunityOutput {
	out := OpportunityOutput{
		ID:                o.ID,
		DisplayName:       o.DisplayName,
		Organization:      o.Organization,
		Role:              o.Role,
		Pool:              string(o.Pool),
		Stage:             string(o.Stage),
		Outreach:          string(o.Outreach),
		Score:             o.Score,
		Value:             o.Value,
		Tags:              o.Tags,
		NurtureReason:     o.NurtureReason,
		ExternalContactID: o.ExternalContactID,
		CustomerID:        o.CustomerID,
		CreatedAt:         o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         o.UpdatedAt.Format(time.RFC3339),
	}
	for _, cm := range o.ContactMethods {
		out.ContactMethods = append(out.ContactMethods, ContactMethodInput{Type: cm.Type, Value: cm.Value})
	}
	for _, a := range models.NewestFirst(o.Activities) {
		out.Activities = append(out.Activities, ActivityOutput{
			ID:          a.ID,
			Timestamp:   a.Timestamp.Format(time.RFC3339),
			Type:        string(a.Type),
			Description: a.Description,
			OldValue:    a.OldValue,
			NewValue:    a.NewValue,
		})
	}
	return out
}
