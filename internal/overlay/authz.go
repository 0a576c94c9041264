package overlay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pawbook/appointment-service/internal/appointment"
	"github.com/pawbook/appointment-service/internal/audit"
)

// Principal is the acting caller: identity plus role. The overlay holds no
// other state, so one instance per request is cheap.
type Principal struct {
	UserID uuid.UUID
	Role   appointment.Role
}

// OwnershipResolver maps a principal to the pet ids they own. Satisfied by
// appointment.PgStore.
type OwnershipResolver interface {
	PetIDsOwnedBy(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error)
}

// ReservedLabel replaces identifying fields in privacy projections.
const ReservedLabel = "Reserved"

// Operation names used by the permission table and audit records.
const (
	opCreate     = "create_appointment"
	opReschedule = "reschedule_appointment"
	opCancel     = "cancel_appointment"
	opConfirm    = "confirm_appointment"
	opStart      = "start_appointment"
	opComplete   = "complete_appointment"
	opGet        = "view_appointment"
	opList       = "list_appointments"
)

// permissions maps operations to the roles allowed to perform them.
// Ownership scoping for restricted roles happens after this gate.
var permissions = map[string][]appointment.Role{
	opCreate:     {appointment.RoleAdmin, appointment.RoleVet, appointment.RoleAssistant, appointment.RoleOwner},
	opReschedule: {appointment.RoleAdmin, appointment.RoleVet, appointment.RoleAssistant, appointment.RoleOwner},
	opCancel:     {appointment.RoleAdmin, appointment.RoleVet, appointment.RoleAssistant, appointment.RoleOwner},
	opConfirm:    {appointment.RoleAdmin, appointment.RoleVet, appointment.RoleAssistant},
	opStart:      {appointment.RoleAdmin, appointment.RoleVet, appointment.RoleAssistant},
	opComplete:   {appointment.RoleAdmin, appointment.RoleVet},
	opGet:        {appointment.RoleAdmin, appointment.RoleVet, appointment.RoleAssistant, appointment.RoleOwner},
	opList:       {appointment.RoleAdmin, appointment.RoleVet, appointment.RoleAssistant, appointment.RoleOwner},
}

// AuthOverlay enforces the role gate, ownership scoping for owners, privacy
// projection on reads, and audit emission on writes. Inner errors pass
// through unmasked.
type AuthOverlay struct {
	next      appointment.API
	principal Principal
	resolver  OwnershipResolver
	auditor   audit.Recorder
	logger    zerolog.Logger
}

func NewAuthOverlay(next appointment.API, principal Principal, resolver OwnershipResolver, auditor audit.Recorder, logger zerolog.Logger) *AuthOverlay {
	return &AuthOverlay{
		next:      next,
		principal: principal,
		resolver:  resolver,
		auditor:   auditor,
		logger:    logger.With().Str("component", "auth_overlay").Logger(),
	}
}

var _ appointment.API = (*AuthOverlay)(nil)

func (o *AuthOverlay) Create(ctx context.Context, in appointment.CreateInput, _ uuid.UUID) (*appointment.Appointment, error) {
	if err := o.gate(opCreate); err != nil {
		return nil, err
	}
	if o.principal.Role == appointment.RoleOwner {
		owned, err := o.ownedPets(ctx)
		if err != nil {
			return nil, err
		}
		if !owned[in.PetID] {
			return nil, o.deny(opCreate, "pet does not belong to the caller")
		}
	}

	o.record(ctx, opCreate, map[string]any{
		"pet_id":       in.PetID.String(),
		"clinician_id": in.ClinicianID.String(),
		"service_id":   in.ServiceID.String(),
		"scheduled_at": in.ScheduledAt.UTC().Format(time.RFC3339),
		"urgent":       in.Urgent,
	})

	return o.next.Create(ctx, in, o.principal.UserID)
}

func (o *AuthOverlay) Reschedule(ctx context.Context, id uuid.UUID, newTime time.Time, _ uuid.UUID) (*appointment.Appointment, error) {
	if err := o.gateOwned(ctx, opReschedule, id); err != nil {
		return nil, err
	}

	o.record(ctx, opReschedule, map[string]any{
		"appointment_id": id.String(),
		"new_time":       newTime.UTC().Format(time.RFC3339),
	})

	return o.next.Reschedule(ctx, id, newTime, o.principal.UserID)
}

func (o *AuthOverlay) Cancel(ctx context.Context, id uuid.UUID, _ uuid.UUID) (*appointment.Appointment, error) {
	if err := o.gateOwned(ctx, opCancel, id); err != nil {
		return nil, err
	}

	o.record(ctx, opCancel, map[string]any{
		"appointment_id": id.String(),
	})

	return o.next.Cancel(ctx, id, o.principal.UserID)
}

func (o *AuthOverlay) Confirm(ctx context.Context, id uuid.UUID, _ uuid.UUID) (*appointment.Appointment, error) {
	if err := o.gate(opConfirm); err != nil {
		return nil, err
	}
	o.record(ctx, opConfirm, map[string]any{"appointment_id": id.String()})
	return o.next.Confirm(ctx, id, o.principal.UserID)
}

func (o *AuthOverlay) Start(ctx context.Context, id uuid.UUID, _ uuid.UUID) (*appointment.Appointment, error) {
	if err := o.gate(opStart); err != nil {
		return nil, err
	}
	o.record(ctx, opStart, map[string]any{"appointment_id": id.String()})
	return o.next.Start(ctx, id, o.principal.UserID)
}

func (o *AuthOverlay) Complete(ctx context.Context, id uuid.UUID, notes string, _ uuid.UUID) (*appointment.Appointment, error) {
	if err := o.gate(opComplete); err != nil {
		return nil, err
	}
	o.record(ctx, opComplete, map[string]any{
		"appointment_id": id.String(),
		"notes_attached": notes != "",
	})
	return o.next.Complete(ctx, id, notes, o.principal.UserID)
}

func (o *AuthOverlay) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	if err := o.gate(opGet); err != nil {
		return nil, err
	}

	appt, err := o.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if o.principal.Role == appointment.RoleOwner {
		owned, err := o.ownedPets(ctx)
		if err != nil {
			return nil, err
		}
		if !owned[appt.PetID] {
			p := project(*appt)
			return &p, nil
		}
	}

	return appt, nil
}

func (o *AuthOverlay) ListByDay(ctx context.Context, day time.Time, clinicianID *uuid.UUID) ([]appointment.Appointment, error) {
	if err := o.gate(opList); err != nil {
		return nil, err
	}

	appts, err := o.next.ListByDay(ctx, day, clinicianID)
	if err != nil {
		return nil, err
	}

	return o.projectList(ctx, appts)
}

func (o *AuthOverlay) ListByRange(ctx context.Context, f appointment.ListFilter) ([]appointment.Appointment, error) {
	if err := o.gate(opList); err != nil {
		return nil, err
	}

	appts, err := o.next.ListByRange(ctx, f)
	if err != nil {
		return nil, err
	}

	return o.projectList(ctx, appts)
}

// CheckAvailability is open to every role: it exposes only whether a window
// is free, nothing identifying.
func (o *AuthOverlay) CheckAvailability(ctx context.Context, clinicianID uuid.UUID, start time.Time, durationMinutes int, excludeID *uuid.UUID) (bool, error) {
	return o.next.CheckAvailability(ctx, clinicianID, start, durationMinutes, excludeID)
}

func (o *AuthOverlay) gate(op string) error {
	for _, role := range permissions[op] {
		if role == o.principal.Role {
			return nil
		}
	}
	o.logger.Warn().
		Str("user_id", o.principal.UserID.String()).
		Str("role", string(o.principal.Role)).
		Str("operation", op).
		Msg("permission denied")
	return o.deny(op, "role not allowed")
}

// gateOwned runs the role gate, then restricts owners to appointments for
// their own pets.
func (o *AuthOverlay) gateOwned(ctx context.Context, op string, id uuid.UUID) error {
	if err := o.gate(op); err != nil {
		return err
	}
	if o.principal.Role != appointment.RoleOwner {
		return nil
	}

	appt, err := o.next.GetByID(ctx, id)
	if err != nil {
		return err
	}
	owned, err := o.ownedPets(ctx)
	if err != nil {
		return err
	}
	if !owned[appt.PetID] {
		return o.deny(op, "appointment does not belong to the caller")
	}
	return nil
}

func (o *AuthOverlay) deny(op, reason string) error {
	return &appointment.PermissionError{
		UserID: o.principal.UserID,
		Role:   o.principal.Role,
		Op:     op,
		Reason: reason,
	}
}

func (o *AuthOverlay) ownedPets(ctx context.Context) (map[uuid.UUID]bool, error) {
	ids, err := o.resolver.PetIDsOwnedBy(ctx, o.principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve owned pets: %w", err)
	}
	owned := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		owned[id] = true
	}
	return owned, nil
}

func (o *AuthOverlay) projectList(ctx context.Context, appts []appointment.Appointment) ([]appointment.Appointment, error) {
	if o.principal.Role != appointment.RoleOwner {
		return appts, nil
	}

	owned, err := o.ownedPets(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]appointment.Appointment, len(appts))
	for i, a := range appts {
		if owned[a.PetID] {
			out[i] = a
		} else {
			out[i] = project(a)
		}
	}
	return out, nil
}

// project reduces an appointment to its privacy-safe view: the slot stays
// visible (time, clinician, status) so calendars render; everything
// identifying is cleared.
func project(a appointment.Appointment) appointment.Appointment {
	return appointment.Appointment{
		ID:              a.ID,
		ClinicianID:     a.ClinicianID,
		ScheduledAt:     a.ScheduledAt,
		DurationMinutes: a.DurationMinutes,
		Status:          a.Status,
		Reason:          ReservedLabel,
	}
}

func (o *AuthOverlay) record(ctx context.Context, action string, details map[string]any) {
	o.auditor.Record(ctx, audit.Entry{
		PrincipalID: o.principal.UserID,
		Role:        string(o.principal.Role),
		Action:      action,
		Details:     details,
	})
}
