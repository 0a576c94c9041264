package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// API is the operation surface shared by the service and every overlay.
// Overlays hold the next implementer of this interface and call through
// explicitly; composing them never changes the contract.
type API interface {
	Create(ctx context.Context, in CreateInput, actorID uuid.UUID) (*Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, newTime time.Time, actorID uuid.UUID) (*Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*Appointment, error)
	Start(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*Appointment, error)
	Complete(ctx context.Context, id uuid.UUID, notes string, actorID uuid.UUID) (*Appointment, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByDay(ctx context.Context, day time.Time, clinicianID *uuid.UUID) ([]Appointment, error)
	ListByRange(ctx context.Context, f ListFilter) ([]Appointment, error)
	CheckAvailability(ctx context.Context, clinicianID uuid.UUID, start time.Time, durationMinutes int, excludeID *uuid.UUID) (bool, error)
}

// EventSink receives lifecycle events. Publishing is fire-and-forget:
// implementations must not let a delivery failure surface back into the
// operation that triggered it.
type EventSink interface {
	Publish(ctx context.Context, event string, a Appointment, meta map[string]any)
}

// Lifecycle event names. Also used as kafka topics by the kafka sink.
const (
	EventCreated     = "appointment.created"
	EventRescheduled = "appointment.rescheduled"
	EventCancelled   = "appointment.cancelled"
	EventConfirmed   = "appointment.confirmed"
	EventStarted     = "appointment.started"
	EventCompleted   = "appointment.completed"
	EventReminder    = "appointment.reminder"
)
