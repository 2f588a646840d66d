// ABOUTME: Error type for the milestone trigger engine
// ABOUTME: Codes distinguish missing records, bad line items and failed batches
package milestones

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeNotFound           ErrorCode = "not_found"
	CodeInvalidLineItem    ErrorCode = "invalid_line_item"
	CodePersistenceFailure ErrorCode = "persistence_failure"
)

// EngineError is returned by Engine operations. A persistence failure means
// no milestone, alert or unit change from the call was stored.
type EngineError struct {
	Code      ErrorCode
	PackageID string
	UnitID    string
	Message   string
	Err       error
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.PackageID != "" {
		msg += fmt.Sprintf(" (package=%s)", e.PackageID)
	}
	if e.UnitID != "" {
		msg += fmt.Sprintf(" (unit=%s)", e.UnitID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether the package or unit did not exist.
func IsNotFound(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Code == CodeNotFound
}

// IsInvalidLineItem reports whether the line item index was out of range.
func IsInvalidLineItem(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Code == CodeInvalidLineItem
}

// IsPersistenceFailure reports whether the batch failed to store.
func IsPersistenceFailure(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Code == CodePersistenceFailure
}
