// ABOUTME: Activity log helpers for opportunities
// ABOUTME: Entries get time-ordered ULIDs and are only ever appended
package pipeline

import (
	"time"

	"github.com/harperreed/agencyops/models"
	"github.com/oklog/ulid/v2"
)

func newActivity(now time.Time, typ models.ActivityType, description, oldValue, newValue string) models.Activity {
	return models.Activity{
		ID:          ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Timestamp:   now,
		Type:        typ,
		Description: description,
		OldValue:    oldValue,
		NewValue:    newValue,
	}
}

// appendActivity returns a new slice so the caller's record is never aliased.
func appendActivity(log []models.Activity, entry models.Activity) []models.Activity {
	out := make([]models.Activity, len(log), len(log)+1)
	copy(out, log)
	return append(out, entry)
}

// IsAppendOnly reports whether next extends prev without changing any entry.
func IsAppendOnly(prev, next []models.Activity) bool {
	if len(next) < len(prev) {
		return false
	}
	for i := range prev {
		a, b := prev[i], next[i]
		if a.ID != b.ID || a.Type != b.Type || a.Description != b.Description ||
			a.OldValue != b.OldValue || a.NewValue != b.NewValue || !a.Timestamp.Equal(b.Timestamp) {
			return false
		}
	}
	return true
}
