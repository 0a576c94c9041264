package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the pgxpool-backed Store. The appointments table carries an
// exclusion constraint on (clinician_id, window) so overlapping bookings are
// rejected by the database even if two processes race past the checker.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

var _ Store = (*PgStore)(nil)

const appointmentColumns = `
	id, pet_id, clinician_id, service_id, scheduled_at, duration_minutes,
	status, reason, late_cancellation, notes, created_at, updated_at, created_by
`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var reason, notes *string
	var createdBy *uuid.UUID

	err := row.Scan(
		&a.ID,
		&a.PetID,
		&a.ClinicianID,
		&a.ServiceID,
		&a.ScheduledAt,
		&a.DurationMinutes,
		&a.Status,
		&reason,
		&a.LateCancellation,
		&notes,
		&a.CreatedAt,
		&a.UpdatedAt,
		&createdBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if reason != nil {
		a.Reason = *reason
	}
	if notes != nil {
		a.Notes = *notes
	}
	a.CreatedBy = createdBy
	a.ScheduledAt = a.ScheduledAt.UTC()
	return &a, nil
}

func scanPet(row pgx.Row) (*Pet, error) {
	var p Pet
	var species *string

	err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.Name,
		&species,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPetNotFound
		}
		return nil, err
	}

	p.Species = species
	return &p, nil
}

func scanClinician(row pgx.Row) (*Clinician, error) {
	var c Clinician
	var specialty *string

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Role,
		&specialty,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicianNotFound
		}
		return nil, err
	}

	c.Specialty = specialty
	return &c, nil
}

func scanService(row pgx.Row) (*ClinicService, error) {
	var s ClinicService

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.DurationMinutes,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}

	return &s, nil
}

// mapWriteErr translates constraint violations into typed errors. SQLSTATE
// 23P01 is an exclusion violation (the overlap constraint), 23505 a unique
// violation; anything without an SQLSTATE means we never reached the server.
func mapWriteErr(err error, a *Appointment) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23P01" || pgErr.Code == "23505" {
			start, end := a.Window()
			return &ConflictError{ClinicianID: a.ClinicianID, Start: start, End: end}
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// Interface methods

func (r *PgStore) Insert(ctx context.Context, a *Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments
			(id, pet_id, clinician_id, service_id, scheduled_at, duration_minutes,
			 status, reason, late_cancellation, notes, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, NULLIF($10, ''), now(), now(), $11)
	`, a.ID, a.PetID, a.ClinicianID, a.ServiceID, a.ScheduledAt, a.DurationMinutes,
		a.Status, a.Reason, a.LateCancellation, a.Notes, a.CreatedBy)
	if err != nil {
		return mapWriteErr(err, a)
	}
	return nil
}

func (r *PgStore) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgStore) Update(ctx context.Context, a *Appointment, expect Status) error {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_at = $2,
		    status = $3,
		    late_cancellation = $4,
		    notes = NULLIF($5, ''),
		    updated_at = now()
		WHERE id = $1
		  AND status = $6
		RETURNING `+appointmentColumns+`
	`, a.ID, a.ScheduledAt, a.Status, a.LateCancellation, a.Notes, expect)

	updated, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Either the row is gone or a concurrent transition changed the
			// status the caller loaded.
			return &TransitionError{From: expect, Op: "update"}
		}
		return mapWriteErr(err, a)
	}

	*a = *updated
	return nil
}

func (r *PgStore) ListOverlapping(ctx context.Context, clinicianID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinician_id = $1
		  AND status IN ('scheduled', 'confirmed', 'in_progress')
		  AND scheduled_at < $3
		  AND scheduled_at + make_interval(mins => duration_minutes) > $2
		  AND ($4::uuid IS NULL OR id <> $4)
	`, clinicianID, start, end, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgStore) ListByDay(ctx context.Context, day time.Time, clinicianID *uuid.UUID) ([]Appointment, error) {
	day = day.UTC()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE scheduled_at >= $1
		  AND scheduled_at < $2
		  AND ($3::uuid IS NULL OR clinician_id = $3)
		ORDER BY scheduled_at
	`, dayStart, dayEnd, clinicianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgStore) ListByRange(ctx context.Context, f ListFilter) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE scheduled_at >= $1
		  AND scheduled_at < $2
		  AND ($3::uuid IS NULL OR clinician_id = $3)
		  AND ($4::uuid IS NULL OR pet_id = $4)
		  AND ($5::text IS NULL OR status = $5)
		ORDER BY scheduled_at
	`, f.From, f.To, f.ClinicianID, f.PetID, f.Status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgStore) FindUpcoming(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('scheduled', 'confirmed')
		  AND scheduled_at >= $1
		  AND scheduled_at < $2
		ORDER BY scheduled_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgStore) GetPetByID(ctx context.Context, id uuid.UUID) (*Pet, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, species, created_at, updated_at
		FROM pets
		WHERE id = $1
	`, id)
	return scanPet(row)
}

func (r *PgStore) GetClinicianByID(ctx context.Context, id uuid.UUID) (*Clinician, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, role, specialty, created_at, updated_at
		FROM clinicians
		WHERE id = $1
	`, id)
	return scanClinician(row)
}

func (r *PgStore) GetServiceByID(ctx context.Context, id uuid.UUID) (*ClinicService, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, duration_minutes, active, created_at, updated_at
		FROM clinic_services
		WHERE id = $1
	`, id)
	return scanService(row)
}

// PetIDsOwnedBy returns the ids of pets owned by the given user. Used by the
// authorization overlay's ownership scoping.
func (r *PgStore) PetIDsOwnedBy(ctx context.Context, ownerID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM pets WHERE owner_id = $1
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
