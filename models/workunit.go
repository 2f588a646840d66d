// ABOUTME: WorkUnit model for billable units of work
// ABOUTME: Provides status transitions and completion tracking
package models

import (
	"fmt"
	"time"
)

// Work unit statuses.
const (
	UnitStatusTodo       = "todo"
	UnitStatusInProgress = "in_progress"
	UnitStatusDone       = "done"
	UnitStatusCancelled  = "cancelled"
)

// WorkUnit is one deliverable. Units linked to a package count toward its
// milestones; standalone units are billed in full on completion.
type WorkUnit struct {
	ID            string     `json:"id"`
	ClientID      string     `json:"client_id"`
	PackageID     string     `json:"package_id,omitempty"`
	LineItemIndex int        `json:"line_item_index"`
	Title         string     `json:"title"`
	Status        string     `json:"status"`
	Amount        int64      `json:"amount,omitempty"` // standalone price in cents
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsDone reports whether the unit counts as completed.
func (u *WorkUnit) IsDone() bool {
	return u.Status == UnitStatusDone
}

// IsStandalone reports whether the unit is billed without a package.
func (u *WorkUnit) IsStandalone() bool {
	return u.PackageID == ""
}

// TransitionStatus validates and transitions the unit status.
func (u *WorkUnit) TransitionStatus(newStatus string, now time.Time) error {
	validStatuses := map[string]bool{
		UnitStatusTodo:       true,
		UnitStatusInProgress: true,
		UnitStatusDone:       true,
		UnitStatusCancelled:  true,
	}

	if !validStatuses[newStatus] {
		return fmt.Errorf("invalid work unit status: %s", newStatus)
	}

	oldStatus := u.Status
	u.Status = newStatus
	u.UpdatedAt = now

	// Track completion
	if newStatus == UnitStatusDone && oldStatus != UnitStatusDone {
		completedAt := now
		u.CompletedAt = &completedAt
	} else if newStatus != UnitStatusDone {
		u.CompletedAt = nil
	}

	return nil
}
