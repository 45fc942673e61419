package provisioning

import (
	"fmt"
	"strings"
)

// ValidationError reports a missing or invalid request field. Never
// retried; maps to a 400-class response.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Message)
}

// PartialProvisioningError reports a provisioning run that failed after one
// or more steps had already committed. Compensation runs before this is
// returned; any compensator failures are attached so the caller can tell a
// clean rollback from one that left orphans behind.
type PartialProvisioningError struct {
	// Step is the name of the step that failed.
	Step string
	// Err is the triggering error.
	Err error
	// Compensated lists the steps that were successfully undone, in the
	// order they were undone.
	Compensated []string
	// CompensationErrs holds failures from compensators, if any.
	CompensationErrs []error
}

func (e *PartialProvisioningError) Error() string {
	msg := fmt.Sprintf("provisioning failed at step %q: %v", e.Step, e.Err)
	if len(e.CompensationErrs) > 0 {
		parts := make([]string, len(e.CompensationErrs))
		for i, err := range e.CompensationErrs {
			parts[i] = err.Error()
		}
		msg += fmt.Sprintf(" (compensation incomplete: %s)", strings.Join(parts, "; "))
	}
	return msg
}

func (e *PartialProvisioningError) Unwrap() error { return e.Err }
