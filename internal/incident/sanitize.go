package incident

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// SanitizedError hides internal failure detail behind a generated incident
// identifier. The public message never carries the original error text;
// the detail goes to internal diagnostics keyed by the same ID.
type SanitizedError struct {
	IncidentID string
	internal   error
}

func (e *SanitizedError) Error() string {
	return fmt.Sprintf("an internal system error occurred, reference incident %s", e.IncidentID)
}

// Unwrap exposes the internal error for in-process callers only. The
// sanitized message is what crosses the trust boundary.
func (e *SanitizedError) Unwrap() error {
	return e.internal
}

// Sanitize wraps err into a SanitizedError, logging the original detail
// internally. An already-sanitized error passes through unchanged.
func Sanitize(err error, contextLabel string) *SanitizedError {
	if s, ok := err.(*SanitizedError); ok {
		return s
	}
	s := &SanitizedError{
		IncidentID: "inc-" + uuid.NewString(),
		internal:   err,
	}
	fmt.Fprintf(os.Stderr, "incident %s (%s): %v\n", s.IncidentID, contextLabel, err)
	return s
}
