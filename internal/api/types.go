package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateAppointmentRequest struct {
	PetID       string    `json:"pet_id"`
	ClinicianID string    `json:"clinician_id"`
	ServiceID   string    `json:"service_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Reason      string    `json:"reason,omitempty"`
	Urgent      bool      `json:"urgent,omitempty"`
}

type RescheduleRequest struct {
	NewTime time.Time `json:"new_time"`
}

type CompleteRequest struct {
	Notes string `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID               uuid.UUID  `json:"id"`
	PetID            uuid.UUID  `json:"pet_id"`
	ClinicianID      uuid.UUID  `json:"clinician_id"`
	ServiceID        uuid.UUID  `json:"service_id"`
	ScheduledAt      time.Time  `json:"scheduled_at"`
	DurationMinutes  int        `json:"duration_minutes"`
	Status           string     `json:"status"`
	Reason           string     `json:"reason,omitempty"`
	LateCancellation bool       `json:"late_cancellation"`
	Notes            string     `json:"notes,omitempty"`
	CreatedBy        *uuid.UUID `json:"created_by,omitempty"`
}

type AvailabilityResponse struct {
	ClinicianID     uuid.UUID `json:"clinician_id"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Available       bool      `json:"available"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
