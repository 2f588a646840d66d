// ABOUTME: Error taxonomy for opportunity transitions
// ABOUTME: TransitionError carries a code plus the opportunity and pool it was raised for
package pipeline

import (
	"errors"
	"fmt"

	"github.com/harperreed/agencyops/models"
)

// ErrorCode categorizes transition failures.
type ErrorCode string

const (
	// CodeInvalidTransition means the requested change is not reachable from
	// the current pool and stage. Nothing was written.
	CodeInvalidTransition ErrorCode = "invalid_transition"

	// CodePersistenceFailure means a store write failed. The transition did
	// not happen; retrying is safe.
	CodePersistenceFailure ErrorCode = "persistence_failure"

	// CodeConversionFailure means the customer emitter failed on Closed Won.
	// The source opportunity is untouched.
	CodeConversionFailure ErrorCode = "conversion_failure"

	CodeNotFound ErrorCode = "not_found"
)

// errConverting aborts a background write to a record a conversion holds.
var errConverting = errors.New("opportunity is converting")

// TransitionError is returned by Machine operations.
type TransitionError struct {
	Code          ErrorCode
	OpportunityID string
	From          models.Pool
	Message       string
	Err           error
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.OpportunityID != "" {
		msg += fmt.Sprintf(" (opportunity=%s", e.OpportunityID)
		if e.From != "" {
			msg += fmt.Sprintf(", pool=%s", e.From)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}

// IsInvalidTransition reports whether err rejected an unreachable change.
func IsInvalidTransition(err error) bool {
	return hasCode(err, CodeInvalidTransition)
}

// IsPersistenceFailure reports whether err is a failed store write.
func IsPersistenceFailure(err error) bool {
	return hasCode(err, CodePersistenceFailure)
}

// IsConversionFailure reports whether err is a failed Closed Won conversion.
func IsConversionFailure(err error) bool {
	return hasCode(err, CodeConversionFailure)
}

// IsNotFound reports whether the opportunity did not exist in any live pool.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

func invalidf(cur *models.Opportunity, format string, args ...any) *TransitionError {
	return &TransitionError{
		Code:          CodeInvalidTransition,
		OpportunityID: cur.ID,
		From:          cur.Pool,
		Message:       fmt.Sprintf(format, args...),
	}
}

func persistenceFailure(id string, from models.Pool, err error) *TransitionError {
	return &TransitionError{
		Code:          CodePersistenceFailure,
		OpportunityID: id,
		From:          from,
		Message:       "store write failed",
		Err:           err,
	}
}
