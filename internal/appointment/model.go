package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled     Status = "scheduled"
	StatusConfirmed     Status = "confirmed"
	StatusInProgress    Status = "in_progress"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
	StatusCancelledLate Status = "cancelled_late"
)

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusCancelledLate:
		return true
	}
	return false
}

// Role of a clinic user. Owners are pet owners with restricted access;
// the rest are staff.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleVet       Role = "vet"
	RoleAssistant Role = "assistant"
	RoleOwner     Role = "owner"
)

// Clinical reports whether the role may be booked as the clinician of an
// appointment.
func (r Role) Clinical() bool {
	return r == RoleVet || r == RoleAdmin
}

func (r Role) Staff() bool {
	return r == RoleAdmin || r == RoleVet || r == RoleAssistant
}

type Pet struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Name      string
	Species   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Clinician struct {
	ID        uuid.UUID
	Name      string
	Role      Role
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClinicService is a bookable service (consultation, vaccination, ...).
// DurationMinutes defines the window an appointment for it occupies.
type ClinicService struct {
	ID              uuid.UUID
	Name            string
	DurationMinutes int
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Appointment struct {
	ID          uuid.UUID  `json:"id"`
	PetID       uuid.UUID  `json:"pet_id"`
	ClinicianID uuid.UUID  `json:"clinician_id"`
	ServiceID   uuid.UUID  `json:"service_id"`
	ScheduledAt time.Time  `json:"scheduled_at"` // always UTC
	// Denormalized from the service at booking time so the occupied window
	// stays stable even if the service definition changes later.
	DurationMinutes  int        `json:"duration_minutes"`
	Status           Status     `json:"status"`
	Reason           string     `json:"reason,omitempty"`
	LateCancellation bool       `json:"late_cancellation"`
	Notes            string     `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CreatedBy        *uuid.UUID `json:"created_by,omitempty"`
}

// Window returns the half-open interval [ScheduledAt, ScheduledAt+duration)
// the appointment occupies on its clinician's calendar.
func (a *Appointment) Window() (start, end time.Time) {
	start = a.ScheduledAt
	end = start.Add(time.Duration(a.DurationMinutes) * time.Minute)
	return start, end
}

// CreateInput is the caller-supplied part of a new booking.
type CreateInput struct {
	PetID       uuid.UUID
	ClinicianID uuid.UUID
	ServiceID   uuid.UUID
	ScheduledAt time.Time
	Reason      string
	Urgent      bool // priority flow, relaxed lead time
}

// ListFilter narrows ListByRange reads.
type ListFilter struct {
	ClinicianID *uuid.UUID
	PetID       *uuid.UUID
	Status      *Status
	From        time.Time
	To          time.Time
}
