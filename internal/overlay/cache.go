package overlay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pawbook/appointment-service/internal/appointment"
)

const cacheKeyPrefix = "appointments:"

// CacheOverlay is a read-through, write-invalidating cache in front of the
// day-listing read path. Only ListByDay is ever served from cache: single-id
// lookups and availability checks must always see authoritative data.
type CacheOverlay struct {
	next    appointment.API
	backend Backend
	ttl     time.Duration
	logger  zerolog.Logger
}

func NewCacheOverlay(next appointment.API, backend Backend, ttl time.Duration, logger zerolog.Logger) *CacheOverlay {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CacheOverlay{
		next:    next,
		backend: backend,
		ttl:     ttl,
		logger:  logger.With().Str("component", "cache_overlay").Logger(),
	}
}

var _ appointment.API = (*CacheOverlay)(nil)

func (c *CacheOverlay) ListByDay(ctx context.Context, day time.Time, clinicianID *uuid.UUID) ([]appointment.Appointment, error) {
	key := cacheKey(day, clinicianID)

	if data, ok := c.backend.Get(ctx, key); ok {
		var appts []appointment.Appointment
		if err := json.Unmarshal(data, &appts); err == nil {
			c.logger.Debug().Str("key", key).Msg("cache hit")
			return appts, nil
		}
		// Corrupt snapshot; drop it and fall through.
		c.backend.Delete(ctx, key)
	}

	appts, err := c.next.ListByDay(ctx, day, clinicianID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(appts); err == nil {
		c.backend.Set(ctx, key, data, c.ttl)
	}

	return appts, nil
}

// Write paths: call through unconditionally, then invalidate every touched
// date before returning so a subsequent day read never sees pre-write data.

func (c *CacheOverlay) Create(ctx context.Context, in appointment.CreateInput, actorID uuid.UUID) (*appointment.Appointment, error) {
	appt, err := c.next.Create(ctx, in, actorID)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, appt.ScheduledAt, appt.ClinicianID)
	return appt, nil
}

func (c *CacheOverlay) Reschedule(ctx context.Context, id uuid.UUID, newTime time.Time, actorID uuid.UUID) (*appointment.Appointment, error) {
	// The old date needs invalidation too, so look at the appointment
	// before it moves. A lookup miss is left for the write path to report.
	var oldTime time.Time
	if prev, err := c.next.GetByID(ctx, id); err == nil {
		oldTime = prev.ScheduledAt
	}

	appt, err := c.next.Reschedule(ctx, id, newTime, actorID)
	if err != nil {
		return nil, err
	}

	if !oldTime.IsZero() {
		c.invalidate(ctx, oldTime, appt.ClinicianID)
	}
	c.invalidate(ctx, appt.ScheduledAt, appt.ClinicianID)
	return appt, nil
}

func (c *CacheOverlay) Cancel(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*appointment.Appointment, error) {
	return c.writeThrough(ctx, func() (*appointment.Appointment, error) {
		return c.next.Cancel(ctx, id, actorID)
	})
}

func (c *CacheOverlay) Confirm(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*appointment.Appointment, error) {
	return c.writeThrough(ctx, func() (*appointment.Appointment, error) {
		return c.next.Confirm(ctx, id, actorID)
	})
}

func (c *CacheOverlay) Start(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*appointment.Appointment, error) {
	return c.writeThrough(ctx, func() (*appointment.Appointment, error) {
		return c.next.Start(ctx, id, actorID)
	})
}

func (c *CacheOverlay) Complete(ctx context.Context, id uuid.UUID, notes string, actorID uuid.UUID) (*appointment.Appointment, error) {
	return c.writeThrough(ctx, func() (*appointment.Appointment, error) {
		return c.next.Complete(ctx, id, notes, actorID)
	})
}

// Uncached pass-throughs.

func (c *CacheOverlay) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return c.next.GetByID(ctx, id)
}

func (c *CacheOverlay) ListByRange(ctx context.Context, f appointment.ListFilter) ([]appointment.Appointment, error) {
	return c.next.ListByRange(ctx, f)
}

func (c *CacheOverlay) CheckAvailability(ctx context.Context, clinicianID uuid.UUID, start time.Time, durationMinutes int, excludeID *uuid.UUID) (bool, error) {
	return c.next.CheckAvailability(ctx, clinicianID, start, durationMinutes, excludeID)
}

func (c *CacheOverlay) writeThrough(ctx context.Context, fn func() (*appointment.Appointment, error)) (*appointment.Appointment, error) {
	appt, err := fn()
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, appt.ScheduledAt, appt.ClinicianID)
	return appt, nil
}

// invalidate drops both the wildcard key and the clinician-specific key for
// the date, synchronously with the write's return.
func (c *CacheOverlay) invalidate(ctx context.Context, at time.Time, clinicianID uuid.UUID) {
	c.backend.Delete(ctx,
		cacheKey(at, nil),
		cacheKey(at, &clinicianID),
	)
}

// cacheKey is appointments:YYYY-MM-DD for the wildcard day listing or
// appointments:YYYY-MM-DD:<clinicianID> for a single calendar. Dates are UTC.
func cacheKey(day time.Time, clinicianID *uuid.UUID) string {
	key := cacheKeyPrefix + day.UTC().Format("2006-01-02")
	if clinicianID != nil {
		key += ":" + clinicianID.String()
	}
	return key
}
