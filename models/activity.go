// ABOUTME: Activity log entry model embedded in opportunity records
// ABOUTME: Entries are append-only and ordered by creation time
package models

import "time"

// ActivityType tags what an activity entry records.
type ActivityType string

const (
	ActivityOutreach          ActivityType = "outreach"
	ActivityPoolChange        ActivityType = "pool_change"
	ActivityStageChange       ActivityType = "stage_change"
	ActivityNote              ActivityType = "note"
	ActivityContactSynced     ActivityType = "contact_synced"
	ActivityContactSyncFailed ActivityType = "contact_sync_failed"
	ActivityConverted         ActivityType = "converted"
)

type Activity struct {
	ID          string       `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	Type        ActivityType `json:"type"`
	Description string       `json:"description"`
	OldValue    string       `json:"old_value,omitempty"`
	NewValue    string       `json:"new_value,omitempty"`
}

// NewestFirst returns the activities in display order. The log is stored in
// append order, so the newest entry is last; storage order is untouched.
func NewestFirst(activities []Activity) []Activity {
	out := make([]Activity, len(activities))
	for i, a := range activities {
		out[len(activities)-1-i] = a
	}
	return out
}
