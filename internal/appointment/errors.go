package appointment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Error kinds. Structured errors below unwrap to one of these so callers and
// overlays can match with errors.Is regardless of how deep the error
// travelled.
var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPetNotFound         = errors.New("pet not found")
	ErrClinicianNotFound   = errors.New("clinician not found")
	ErrServiceNotFound     = errors.New("service not found")

	ErrInvalidRole      = errors.New("user is not a clinician")
	ErrServiceInactive  = errors.New("service is not active")
	ErrLeadTimeViolation = errors.New("scheduled time violates the minimum lead time")
	ErrSlotConflict      = errors.New("clinician already has an appointment in that window")
	ErrInvalidTransition = errors.New("operation not allowed in the current appointment state")

	ErrPermissionDenied = errors.New("permission denied")
	ErrTimeout          = errors.New("operation did not complete within its deadline")
	ErrStoreUnavailable = errors.New("appointment store unavailable")
)

// LeadTimeError reports which policy rejected a candidate time and by how
// much it missed.
type LeadTimeError struct {
	Policy    Policy
	Required  time.Duration
	Candidate time.Time
	Now       time.Time
}

func (e *LeadTimeError) Error() string {
	return fmt.Sprintf("%s: %s policy requires at least %s of lead, candidate %s is %s away",
		ErrLeadTimeViolation, e.Policy, e.Required,
		e.Candidate.Format(time.RFC3339), e.Candidate.Sub(e.Now))
}

func (e *LeadTimeError) Unwrap() error { return ErrLeadTimeViolation }

// ConflictError identifies the clinician and window that could not be booked.
type ConflictError struct {
	ClinicianID uuid.UUID
	Start       time.Time
	End         time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: clinician %s window [%s, %s)",
		ErrSlotConflict, e.ClinicianID,
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

func (e *ConflictError) Unwrap() error { return ErrSlotConflict }

// TransitionError reports an operation attempted from a state that does not
// permit it.
type TransitionError struct {
	From Status
	Op   Operation
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s from %s", ErrInvalidTransition, e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// PermissionError carries the principal and operation the authorization
// overlay rejected.
type PermissionError struct {
	UserID uuid.UUID
	Role   Role
	Op     string
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s: %s (%s) may not %s: %s",
		ErrPermissionDenied, e.UserID, e.Role, e.Op, e.Reason)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }
