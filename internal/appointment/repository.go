package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store contains all persistence interactions needed by the service.
// Implementations must provide single-row consistency for Update and enforce
// the clinician window overlap constraint at write time.
type Store interface {
	Insert(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Update persists a, guarded by the status the caller loaded. A guard
	// miss means a concurrent transition won the row; implementations
	// return ErrInvalidTransition so neither caller sees a silent
	// overwrite.
	Update(ctx context.Context, a *Appointment, expect Status) error

	// ListOverlapping returns non-terminal appointments for the clinician
	// whose window intersects [start, end) under the half-open rule,
	// excluding excludeID when set.
	ListOverlapping(ctx context.Context, clinicianID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]Appointment, error)

	ListByDay(ctx context.Context, day time.Time, clinicianID *uuid.UUID) ([]Appointment, error)

	// ListByRange returns appointments starting in [From, To) that match
	// the optional filter fields.
	ListByRange(ctx context.Context, f ListFilter) ([]Appointment, error)

	// FindUpcoming returns Scheduled/Confirmed appointments starting in
	// [from, to), for the reminder worker.
	FindUpcoming(ctx context.Context, from, to time.Time) ([]Appointment, error)

	// Referenced-entity lookups.
	GetPetByID(ctx context.Context, id uuid.UUID) (*Pet, error)
	GetClinicianByID(ctx context.Context, id uuid.UUID) (*Clinician, error)
	GetServiceByID(ctx context.Context, id uuid.UUID) (*ClinicService, error)
}
