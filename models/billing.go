// ABOUTME: Package, milestone and billing alert models
// ABOUTME: Milestones move upcoming -> due once, driven by completed work units
package models

import "time"

// MilestoneStatus is the billing state of a package milestone.
type MilestoneStatus string

const (
	MilestoneUpcoming MilestoneStatus = "upcoming"
	MilestoneDue      MilestoneStatus = "due"
	MilestoneReceived MilestoneStatus = "received"
)

type LineItem struct {
	ServiceLabel   string `json:"service_label"`
	TargetQuantity int    `json:"target_quantity"`
	// CompletedCount is derived from the done units at the last evaluation;
	// milestone evaluation never reads it.
	CompletedCount int `json:"completed_count"`
}

type Milestone struct {
	Label             string          `json:"label"`
	TriggerAtQuantity int             `json:"trigger_at_quantity"`
	Status            MilestoneStatus `json:"status"`
	AmountDue         int64           `json:"amount_due"` // in cents
	AlertID           string          `json:"alert_id,omitempty"`
	DueAt             *time.Time      `json:"due_at,omitempty"`
}

// Package is a billable bundle of work for a client.
type Package struct {
	ID             string      `json:"id"`
	ClientID       string      `json:"client_id"`
	Name           string      `json:"name,omitempty"`
	LineItems      []LineItem  `json:"line_items"`
	Milestones     []Milestone `json:"milestones"`
	ReceivedAmount int64       `json:"received_amount"` // in cents
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// TotalTarget sums the target quantities of all line items.
func (p *Package) TotalTarget() int {
	total := 0
	for _, li := range p.LineItems {
		total += li.TargetQuantity
	}
	return total
}

// MilestoneByLabel returns the index of the milestone with the label, or -1.
func (p *Package) MilestoneByLabel(label string) int {
	for i := range p.Milestones {
		if p.Milestones[i].Label == label {
			return i
		}
	}
	return -1
}

// AlertStatus is the payment state of a billing alert.
type AlertStatus string

const (
	AlertDue      AlertStatus = "due"
	AlertPending  AlertStatus = "pending"
	AlertWaiting  AlertStatus = "waiting"
	AlertReceived AlertStatus = "received"
)

// IsValid reports whether the status is one of the known alert states.
func (s AlertStatus) IsValid() bool {
	switch s {
	case AlertDue, AlertPending, AlertWaiting, AlertReceived:
		return true
	}
	return false
}

// Label used for alerts raised by standalone work units.
const FullPaymentLabel = "Full payment"

// BillingAlert is a user-facing record of money owed or received.
type BillingAlert struct {
	ID             string      `json:"id"`
	ClientID       string      `json:"client_id"`
	PackageID      string      `json:"package_id,omitempty"`
	UnitID         string      `json:"unit_id,omitempty"`
	MilestoneLabel string      `json:"milestone_label"`
	Amount         int64       `json:"amount"` // in cents
	Status         AlertStatus `json:"status"`
	TriggeredAt    time.Time   `json:"triggered_at"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
}
