package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/pawbook/appointment-service/internal/redis"
)

// ServiceOptions carries the booking policy thresholds. They come from
// configuration so policy changes never touch transition logic.
type ServiceOptions struct {
	Leads            Leads
	LateCancelWindow time.Duration
}

func DefaultServiceOptions() ServiceOptions {
	return ServiceOptions{
		Leads:            DefaultLeads(),
		LateCancelWindow: 4 * time.Hour,
	}
}

// Service orchestrates the appointment lifecycle: entity validation, lead
// time and availability checks, state machine transitions, persistence, and
// event fan-out. It is the uncached source of truth the overlays wrap.
type Service struct {
	store   Store
	checker *AvailabilityChecker
	machine Machine
	locker  redisclient.Locker
	sink    EventSink
	logger  zerolog.Logger

	now func() time.Time
}

func NewService(store Store, locker redisclient.Locker, sink EventSink, logger zerolog.Logger, opts ServiceOptions) *Service {
	return &Service{
		store:   store,
		checker: NewAvailabilityChecker(store),
		machine: NewMachine(opts.Leads, opts.LateCancelWindow),
		locker:  locker,
		sink:    sink,
		logger:  logger.With().Str("component", "appointment_service").Logger(),
		now:     time.Now,
	}
}

var _ API = (*Service)(nil)

// Create books a new appointment with status Scheduled.
func (s *Service) Create(ctx context.Context, in CreateInput, actorID uuid.UUID) (*Appointment, error) {
	svc, err := s.validateReferences(ctx, in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	scheduledAt := in.ScheduledAt.UTC()

	policy := PolicyStandard
	if in.Urgent {
		policy = PolicyUrgent
	}
	if ok, _ := s.machine.Leads.ValidateLeadTime(policy, scheduledAt, now); !ok {
		return nil, s.machine.Leads.LeadTimeError(policy, scheduledAt, now)
	}

	appt := &Appointment{
		ID:              uuid.New(),
		PetID:           in.PetID,
		ClinicianID:     in.ClinicianID,
		ServiceID:       in.ServiceID,
		ScheduledAt:     scheduledAt,
		DurationMinutes: svc.DurationMinutes,
		Status:          StatusScheduled,
		Reason:          in.Reason,
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}
	if actorID != uuid.Nil {
		actor := actorID
		appt.CreatedBy = &actor
	}

	// The availability check and the insert run inside a per-clinician lock
	// so concurrent bookings for the same calendar serialize. The store's
	// overlap constraint remains the final arbiter.
	err = s.locker.WithClinicianLock(ctx, in.ClinicianID, func(lockCtx context.Context) error {
		free, err := s.checker.IsFree(lockCtx, in.ClinicianID, scheduledAt, svc.DurationMinutes, nil)
		if err != nil {
			return err
		}
		if !free {
			start, end := appt.Window()
			return &ConflictError{ClinicianID: in.ClinicianID, Start: start, End: end}
		}

		if err := s.store.Insert(lockCtx, appt); err != nil {
			return fmt.Errorf("insert appointment: %w", storeErr(err))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			start, end := appt.Window()
			return nil, &ConflictError{ClinicianID: in.ClinicianID, Start: start, End: end}
		}
		return nil, err
	}

	s.sink.Publish(ctx, EventCreated, *appt, map[string]any{
		"actor_id": actorID.String(),
		"urgent":   in.Urgent,
	})

	return appt, nil
}

// Reschedule moves an appointment to newTime after re-validating lead time
// and availability. The appointment keeps its current state.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newTime time.Time, actorID uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	newTime = newTime.UTC()

	decision, err := s.machine.Decide(appt, OpReschedule, now, newTime)
	if err != nil {
		return nil, err
	}

	oldTime := appt.ScheduledAt

	err = s.locker.WithClinicianLock(ctx, appt.ClinicianID, func(lockCtx context.Context) error {
		excl := appt.ID
		free, err := s.checker.IsFree(lockCtx, appt.ClinicianID, newTime, appt.DurationMinutes, &excl)
		if err != nil {
			return err
		}
		if !free {
			end := newTime.Add(time.Duration(appt.DurationMinutes) * time.Minute)
			return &ConflictError{ClinicianID: appt.ClinicianID, Start: newTime, End: end}
		}

		appt.ScheduledAt = newTime
		appt.UpdatedAt = now.UTC()
		if err := s.store.Update(lockCtx, appt, decision.To); err != nil {
			return fmt.Errorf("persist reschedule: %w", storeErr(err))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			end := newTime.Add(time.Duration(appt.DurationMinutes) * time.Minute)
			return nil, &ConflictError{ClinicianID: appt.ClinicianID, Start: newTime, End: end}
		}
		return nil, err
	}

	s.sink.Publish(ctx, EventRescheduled, *appt, map[string]any{
		"actor_id": actorID.String(),
		"old_time": oldTime.Format(time.RFC3339),
		"new_time": newTime.Format(time.RFC3339),
	})

	return appt, nil
}

// Cancel ends an appointment, branching to CancelledLate when the
// cancellation lands inside the late window.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	decision, err := s.machine.Decide(appt, OpCancel, now, time.Time{})
	if err != nil {
		return nil, err
	}

	from := appt.Status
	appt.Status = decision.To
	appt.LateCancellation = decision.Late
	appt.UpdatedAt = now.UTC()

	if err := s.store.Update(ctx, appt, from); err != nil {
		return nil, fmt.Errorf("persist cancel: %w", storeErr(err))
	}

	s.sink.Publish(ctx, EventCancelled, *appt, map[string]any{
		"actor_id": actorID.String(),
		"late":     decision.Late,
	})

	return appt, nil
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, actorID, OpConfirm, EventConfirmed, "")
}

func (s *Service) Start(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, actorID, OpStart, EventStarted, "")
}

// Complete finishes an in-progress appointment, optionally attaching notes.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, notes string, actorID uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, actorID, OpComplete, EventCompleted, notes)
}

func (s *Service) transition(ctx context.Context, id, actorID uuid.UUID, op Operation, event, notes string) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	decision, err := s.machine.Decide(appt, op, now, time.Time{})
	if err != nil {
		return nil, err
	}

	from := appt.Status
	appt.Status = decision.To
	if notes != "" {
		appt.Notes = notes
	}
	appt.UpdatedAt = now.UTC()

	if err := s.store.Update(ctx, appt, from); err != nil {
		return nil, fmt.Errorf("persist %s: %w", op, storeErr(err))
	}

	s.sink.Publish(ctx, event, *appt, map[string]any{
		"actor_id": actorID.String(),
	})

	return appt, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.load(ctx, id)
}

func (s *Service) ListByDay(ctx context.Context, day time.Time, clinicianID *uuid.UUID) ([]Appointment, error) {
	appts, err := s.store.ListByDay(ctx, day.UTC(), clinicianID)
	if err != nil {
		return nil, fmt.Errorf("list by day: %w", storeErr(err))
	}
	return appts, nil
}

func (s *Service) ListByRange(ctx context.Context, f ListFilter) ([]Appointment, error) {
	appts, err := s.store.ListByRange(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list by range: %w", storeErr(err))
	}
	return appts, nil
}

func (s *Service) CheckAvailability(ctx context.Context, clinicianID uuid.UUID, start time.Time, durationMinutes int, excludeID *uuid.UUID) (bool, error) {
	return s.checker.IsFree(ctx, clinicianID, start.UTC(), durationMinutes, excludeID)
}

// SendReminders publishes a reminder event for every Scheduled or Confirmed
// appointment whose start falls inside the band ending window from now.
// The worker passes its tick interval as the band so consecutive scans
// cover disjoint slices of the horizon and each appointment is reminded
// once. A band that is zero or wider than the window scans the whole
// window instead.
func (s *Service) SendReminders(ctx context.Context, window, band time.Duration) (int, error) {
	now := s.now().UTC()
	to := now.Add(window)
	from := to.Add(-band)
	if band <= 0 || band > window {
		from = now
	}
	upcoming, err := s.store.FindUpcoming(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("find upcoming appointments: %w", storeErr(err))
	}

	for _, appt := range upcoming {
		s.sink.Publish(ctx, EventReminder, appt, map[string]any{
			"starts_in": appt.ScheduledAt.Sub(now).String(),
		})
	}

	if len(upcoming) > 0 {
		s.logger.Info().Int("count", len(upcoming)).Msg("reminders published")
	}

	return len(upcoming), nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", storeErr(err))
	}
	return appt, nil
}

// validateReferences checks pet, clinician and service before any booking
// work happens. The clinician must resolve to a clinical role and the
// service must be active.
func (s *Service) validateReferences(ctx context.Context, in CreateInput) (*ClinicService, error) {
	if _, err := s.store.GetPetByID(ctx, in.PetID); err != nil {
		if errors.Is(err, ErrPetNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load pet: %w", storeErr(err))
	}

	clin, err := s.store.GetClinicianByID(ctx, in.ClinicianID)
	if err != nil {
		if errors.Is(err, ErrClinicianNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load clinician: %w", storeErr(err))
	}
	if !clin.Role.Clinical() {
		return nil, fmt.Errorf("%w: %s has role %s", ErrInvalidRole, clin.ID, clin.Role)
	}

	svc, err := s.store.GetServiceByID(ctx, in.ServiceID)
	if err != nil {
		if errors.Is(err, ErrServiceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load service: %w", storeErr(err))
	}
	if !svc.Active {
		return nil, fmt.Errorf("%w: %s", ErrServiceInactive, svc.ID)
	}

	return svc, nil
}
