// ABOUTME: Package, work unit and billing alert MCP tool handlers
// ABOUTME: Completion tools return the alerts raised by crossed milestones
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/agencyops/billing"
	"github.com/harperreed/agencyops/milestones"
	"github.com/harperreed/agencyops/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type BillingHandlers struct {
	engine *milestones.Engine
	sink   *billing.Sink
}

func NewBillingHandlers(engine *milestones.Engine, sink *billing.Sink) *BillingHandlers {
	return &BillingHandlers{engine: engine, sink: sink}
}

type CreatePackageInput struct {
	ClientID   string                    `json:"client_id" jsonschema:"Client the package bills (required)"`
	Name       string                    `json:"name,omitempty" jsonschema:"Package name"`
	LineItems  []milestones.NewLineItem  `json:"line_items" jsonschema:"Services with target quantities"`
	Milestones []milestones.NewMilestone `json:"milestones,omitempty" jsonschema:"Payment milestones by completed quantity; amounts in cents"`
}

type MilestoneOutput struct {
	Label             string `json:"label"`
	TriggerAtQuantity int    `json:"trigger_at_quantity"`
	Status            string `json:"status"`
	AmountDue         int64  `json:"amount_due"`
	AlertID           string `json:"alert_id,omitempty"`
}

type LineItemOutput struct {
	ServiceLabel   string `json:"service_label"`
	TargetQuantity int    `json:"target_quantity"`
	CompletedCount int    `json:"completed_count"`
}

type PackageOutput struct {
	ID             string            `json:"id"`
	ClientID       string            `json:"client_id"`
	Name           string            `json:"name,omitempty"`
	LineItems      []LineItemOutput  `json:"line_items"`
	Milestones     []MilestoneOutput `json:"milestones"`
	ReceivedAmount int64             `json:"received_amount"`
	CreatedAt      string            `json:"created_at"`
}

func (h *BillingHandlers) CreatePackage(ctx context.Context, _ *mcp.CallToolRequest, input CreatePackageInput) (*mcp.CallToolResult, PackageOutput, error) {
	pkg, err := h.engine.CreatePackage(ctx, milestones.NewPackage{
		ClientID:   input.ClientID,
		Name:       input.Name,
		LineItems:  input.LineItems,
		Milestones: input.Milestones,
	})
	if err != nil {
		return nil, PackageOutput{}, fmt.Errorf("failed to create package: %w", err)
	}
	return nil, packageToOutput(pkg), nil
}

type ReportUnitCompletedInput struct {
	PackageID     string `json:"package_id" jsonschema:"Package ID (required)"`
	LineItemIndex int    `json:"line_item_index" jsonschema:"Zero-based index of the line item the unit belongs to"`
}

type CompletionOutput struct {
	Alerts []AlertOutput `json:"alerts"`
}

func (h *BillingHandlers) ReportUnitCompleted(ctx context.Context, _ *mcp.CallToolRequest, input ReportUnitCompletedInput) (*mcp.CallToolResult, CompletionOutput, error) {
	if input.PackageID == "" {
		return nil, CompletionOutput{}, fmt.Errorf("package_id is required")
	}
	alerts, err := h.engine.ReportUnitCompleted(ctx, input.PackageID, input.LineItemIndex)
	if err != nil {
		return nil, CompletionOutput{}, err
	}
	return nil, completionToOutput(alerts), nil
}

type CompleteWorkUnitInput struct {
	UnitID string `json:"unit_id" jsonschema:"Work unit ID (required)"`
}

func (h *BillingHandlers) CompleteWorkUnit(ctx context.Context, _ *mcp.CallToolRequest, input CompleteWorkUnitInput) (*mcp.CallToolResult, CompletionOutput, error) {
	if input.UnitID == "" {
		return nil, CompletionOutput{}, fmt.Errorf("unit_id is required")
	}
	alerts, err := h.engine.CompleteUnit(ctx, input.UnitID)
	if err != nil {
		return nil, CompletionOutput{}, err
	}
	return nil, completionToOutput(alerts), nil
}

type ListBillingAlertsInput struct {
	ClientID  string `json:"client_id,omitempty" jsonschema:"Filter by client"`
	PackageID string `json:"package_id,omitempty" jsonschema:"Filter by package"`
	Status    string `json:"status,omitempty" jsonschema:"Filter by status: due, pending, waiting, received"`
}

type AlertOutput struct {
	ID             string `json:"id"`
	ClientID       string `json:"client_id"`
	PackageID      string `json:"package_id,omitempty"`
	UnitID         string `json:"unit_id,omitempty"`
	MilestoneLabel string `json:"milestone_label"`
	Amount         int64  `json:"amount"`
	Status         string `json:"status"`
	TriggeredAt    string `json:"triggered_at"`
	ResolvedAt     string `json:"resolved_at,omitempty"`
}

type ListBillingAlertsOutput struct {
	Alerts []AlertOutput `json:"alerts"`
}

func (h *BillingHandlers) ListBillingAlerts(ctx context.Context, _ *mcp.CallToolRequest, input ListBillingAlertsInput) (*mcp.CallToolResult, ListBillingAlertsOutput, error) {
	status := models.AlertStatus(input.Status)
	if status != "" && !status.IsValid() {
		return nil, ListBillingAlertsOutput{}, fmt.Errorf("invalid status: %s", input.Status)
	}

	alerts, err := h.sink.List(ctx, billing.Filter{ClientID: input.ClientID, PackageID: input.PackageID, Status: status})
	if err != nil {
		return nil, ListBillingAlertsOutput{}, err
	}
	return nil, ListBillingAlertsOutput{Alerts: completionToOutput(alerts).Alerts}, nil
}

type AlertIDInput struct {
	ID string `json:"id" jsonschema:"Billing alert ID (required)"`
}

func (h *BillingHandlers) MarkAlertReceived(ctx context.Context, _ *mcp.CallToolRequest, input AlertIDInput) (*mcp.CallToolResult, AlertOutput, error) {
	if input.ID == "" {
		return nil, AlertOutput{}, fmt.Errorf("id is required")
	}
	alert, err := h.sink.MarkReceived(ctx, input.ID)
	if err != nil {
		return nil, AlertOutput{}, err
	}
	return nil, alertToOutput(alert), nil
}

func (h *BillingHandlers) UndoAlertReceived(ctx context.Context, _ *mcp.CallToolRequest, input AlertIDInput) (*mcp.CallToolResult, AlertOutput, error) {
	if input.ID == "" {
		return nil, AlertOutput{}, fmt.Errorf("id is required")
	}
	alert, err := h.sink.Undo(ctx, input.ID)
	if err != nil {
		return nil, AlertOutput{}, err
	}
	return nil, alertToOutput(alert), nil
}

func packageToOutput(p *models.Package) PackageOutput {
	out := PackageOutput{
		ID:             p.ID,
		ClientID:       p.ClientID,
		Name:           p.Name,
		ReceivedAmount: p.ReceivedAmount,
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
		LineItems:      []LineItemOutput{},
		Milestones:     []MilestoneOutput{},
	}
	for _, li := range p.LineItems {
		out.LineItems = append(out.LineItems, LineItemOutput(li))
	}
	for _, m := range p.Milestones {
		out.Milestones = append(out.Milestones, MilestoneOutput{
			Label:             m.Label,
			TriggerAtQuantity: m.TriggerAtQuantity,
			Status:            string(m.Status),
			AmountDue:         m.AmountDue,
			AlertID:           m.AlertID,
		})
	}
	return out
}

func completionToOutput(alerts []models.BillingAlert) CompletionOutput {
	out := CompletionOutput{Alerts: []AlertOutput{}}
	for i := range alerts {
		out.Alerts = append(out.Alerts, alertToOutput(&alerts[i]))
	}
	return out
}

func alertToOutput(a *models.BillingAlert) AlertOutput {
	out := AlertOutput{
		ID:             a.ID,
		ClientID:       a.ClientID,
		PackageID:      a.PackageID,
		UnitID:         a.UnitID,
		MilestoneLabel: a.MilestoneLabel,
		Amount:         a.Amount,
		Status:         string(a.Status),
		TriggeredAt:    a.TriggeredAt.Format(time.RFC3339),
	}
	if a.ResolvedAt != nil {
		out.ResolvedAt = a.ResolvedAt.Format(time.RFC3339)
	}
	return out
}
