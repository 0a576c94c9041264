package overlay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pawbook/appointment-service/internal/appointment"
)

// stubAPI is a scripted appointment.API for overlay tests. It tracks call
// counts and the actor id it last received.
type stubAPI struct {
	mu        sync.Mutex
	appts     map[uuid.UUID]appointment.Appointment
	listCalls int
	lastActor uuid.UUID
	lastOp    string
}

func newStubAPI() *stubAPI {
	return &stubAPI{appts: make(map[uuid.UUID]appointment.Appointment)}
}

func (s *stubAPI) add(a appointment.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appts[a.ID] = a
}

func (s *stubAPI) Create(_ context.Context, in appointment.CreateInput, actorID uuid.UUID) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActor, s.lastOp = actorID, "create"
	a := appointment.Appointment{
		ID:              uuid.New(),
		PetID:           in.PetID,
		ClinicianID:     in.ClinicianID,
		ServiceID:       in.ServiceID,
		ScheduledAt:     in.ScheduledAt.UTC(),
		DurationMinutes: 30,
		Status:          appointment.StatusScheduled,
		Reason:          in.Reason,
	}
	s.appts[a.ID] = a
	return &a, nil
}

func (s *stubAPI) Reschedule(_ context.Context, id uuid.UUID, newTime time.Time, actorID uuid.UUID) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActor, s.lastOp = actorID, "reschedule"
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	a.ScheduledAt = newTime.UTC()
	s.appts[id] = a
	return &a, nil
}

func (s *stubAPI) setStatus(id uuid.UUID, actorID uuid.UUID, op string, to appointment.Status) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActor, s.lastOp = actorID, op
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	a.Status = to
	s.appts[id] = a
	return &a, nil
}

func (s *stubAPI) Cancel(_ context.Context, id uuid.UUID, actorID uuid.UUID) (*appointment.Appointment, error) {
	return s.setStatus(id, actorID, "cancel", appointment.StatusCancelled)
}

func (s *stubAPI) Confirm(_ context.Context, id uuid.UUID, actorID uuid.UUID) (*appointment.Appointment, error) {
	return s.setStatus(id, actorID, "confirm", appointment.StatusConfirmed)
}

func (s *stubAPI) Start(_ context.Context, id uuid.UUID, actorID uuid.UUID) (*appointment.Appointment, error) {
	return s.setStatus(id, actorID, "start", appointment.StatusInProgress)
}

func (s *stubAPI) Complete(_ context.Context, id uuid.UUID, _ string, actorID uuid.UUID) (*appointment.Appointment, error) {
	return s.setStatus(id, actorID, "complete", appointment.StatusCompleted)
}

func (s *stubAPI) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *stubAPI) ListByDay(_ context.Context, day time.Time, clinicianID *uuid.UUID) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	var out []appointment.Appointment
	for _, a := range s.appts {
		if a.ScheduledAt.Before(dayStart) || !a.ScheduledAt.Before(dayEnd) {
			continue
		}
		if clinicianID != nil && a.ClinicianID != *clinicianID {
			continue
		}
		out = append(out, a)
	}
	if out == nil {
		out = []appointment.Appointment{}
	}
	return out, nil
}

func (s *stubAPI) ListByRange(_ context.Context, f appointment.ListFilter) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range s.appts {
		out = append(out, a)
	}
	return out, nil
}

func (s *stubAPI) CheckAvailability(_ context.Context, _ uuid.UUID, _ time.Time, _ int, _ *uuid.UUID) (bool, error) {
	return true, nil
}

var _ appointment.API = (*stubAPI)(nil)

var cacheTestDay = time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

func newCachedStub() (*CacheOverlay, *stubAPI, *MemoryBackend) {
	next := newStubAPI()
	backend := NewMemoryBackend()
	return NewCacheOverlay(next, backend, time.Minute, zerolog.Nop()), next, backend
}

func stubAppt(clinicianID uuid.UUID, at time.Time) appointment.Appointment {
	return appointment.Appointment{
		ID:              uuid.New(),
		PetID:           uuid.New(),
		ClinicianID:     clinicianID,
		ServiceID:       uuid.New(),
		ScheduledAt:     at,
		DurationMinutes: 30,
		Status:          appointment.StatusScheduled,
	}
}

func TestCacheReadThrough(t *testing.T) {
	cache, next, _ := newCachedStub()
	ctx := context.Background()
	clinicianID := uuid.New()
	next.add(stubAppt(clinicianID, cacheTestDay.Add(10*time.Hour)))

	first, err := cache.ListByDay(ctx, cacheTestDay, nil)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	second, err := cache.ListByDay(ctx, cacheTestDay, nil)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}

	if next.listCalls != 1 {
		t.Fatalf("source hit %d times, want 1", next.listCalls)
	}
	if len(first) != 1 || len(second) != 1 || first[0].ID != second[0].ID {
		t.Fatal("cached snapshot differs from source read")
	}
}

func TestCacheKeysPerClinician(t *testing.T) {
	cache, next, _ := newCachedStub()
	ctx := context.Background()
	clinicianID := uuid.New()
	next.add(stubAppt(clinicianID, cacheTestDay.Add(10*time.Hour)))

	if _, err := cache.ListByDay(ctx, cacheTestDay, nil); err != nil {
		t.Fatal(err)
	}
	// Different key, so this populates separately.
	if _, err := cache.ListByDay(ctx, cacheTestDay, &clinicianID); err != nil {
		t.Fatal(err)
	}
	if next.listCalls != 2 {
		t.Fatalf("source hit %d times, want 2", next.listCalls)
	}

	if _, err := cache.ListByDay(ctx, cacheTestDay, &clinicianID); err != nil {
		t.Fatal(err)
	}
	if next.listCalls != 2 {
		t.Fatalf("clinician key not cached, %d source hits", next.listCalls)
	}
}

func TestCacheInvalidationOnCreate(t *testing.T) {
	cache, _, _ := newCachedStub()
	ctx := context.Background()
	clinicianID := uuid.New()

	if _, err := cache.ListByDay(ctx, cacheTestDay, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.ListByDay(ctx, cacheTestDay, &clinicianID); err != nil {
		t.Fatal(err)
	}

	_, err := cache.Create(ctx, appointment.CreateInput{
		PetID:       uuid.New(),
		ClinicianID: clinicianID,
		ServiceID:   uuid.New(),
		ScheduledAt: cacheTestDay.Add(10 * time.Hour),
	}, uuid.Nil)
	if err != nil {
		t.Fatalf("create through cache: %v", err)
	}

	appts, err := cache.ListByDay(ctx, cacheTestDay, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(appts) != 1 {
		t.Fatalf("read after create returned %d, want the fresh appointment", len(appts))
	}

	perClinician, err := cache.ListByDay(ctx, cacheTestDay, &clinicianID)
	if err != nil {
		t.Fatal(err)
	}
	if len(perClinician) != 1 {
		t.Fatal("clinician-scoped key was not invalidated")
	}
}

func TestCacheInvalidationOnTransitions(t *testing.T) {
	cache, next, _ := newCachedStub()
	ctx := context.Background()
	clinicianID := uuid.New()
	a := stubAppt(clinicianID, cacheTestDay.Add(10*time.Hour))
	next.add(a)

	ops := []struct {
		name string
		call func() error
		want appointment.Status
	}{
		{"confirm", func() error { _, err := cache.Confirm(ctx, a.ID, uuid.Nil); return err }, appointment.StatusConfirmed},
		{"start", func() error { _, err := cache.Start(ctx, a.ID, uuid.Nil); return err }, appointment.StatusInProgress},
		{"complete", func() error { _, err := cache.Complete(ctx, a.ID, "", uuid.Nil); return err }, appointment.StatusCompleted},
	}

	for _, op := range ops {
		// Warm, mutate, then verify the next read sees the new status.
		if _, err := cache.ListByDay(ctx, cacheTestDay, nil); err != nil {
			t.Fatal(err)
		}
		if err := op.call(); err != nil {
			t.Fatalf("%s: %v", op.name, err)
		}
		appts, err := cache.ListByDay(ctx, cacheTestDay, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(appts) != 1 || appts[0].Status != op.want {
			t.Fatalf("after %s the day read shows %+v", op.name, appts)
		}
	}
}

func TestCacheInvalidationOnRescheduleCoversBothDates(t *testing.T) {
	cache, next, _ := newCachedStub()
	ctx := context.Background()
	clinicianID := uuid.New()
	a := stubAppt(clinicianID, cacheTestDay.Add(10*time.Hour))
	next.add(a)

	otherDay := cacheTestDay.AddDate(0, 0, 1)

	// Warm both days.
	if _, err := cache.ListByDay(ctx, cacheTestDay, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.ListByDay(ctx, otherDay, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := cache.Reschedule(ctx, a.ID, otherDay.Add(11*time.Hour), uuid.Nil); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	oldDay, err := cache.ListByDay(ctx, cacheTestDay, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(oldDay) != 0 {
		t.Fatal("old day still lists the moved appointment")
	}

	newDay, err := cache.ListByDay(ctx, otherDay, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(newDay) != 1 {
		t.Fatal("new day does not list the moved appointment")
	}
}

func TestCacheDropsCorruptSnapshots(t *testing.T) {
	cache, next, backend := newCachedStub()
	ctx := context.Background()
	next.add(stubAppt(uuid.New(), cacheTestDay.Add(10*time.Hour)))

	backend.Set(ctx, cacheKey(cacheTestDay, nil), []byte("{not json"), time.Minute)

	appts, err := cache.ListByDay(ctx, cacheTestDay, nil)
	if err != nil {
		t.Fatalf("corrupt snapshot must fall through, got %v", err)
	}
	if len(appts) != 1 {
		t.Fatalf("got %d appointments", len(appts))
	}
	if next.listCalls != 1 {
		t.Fatalf("source hit %d times", next.listCalls)
	}
}

func TestCachePassesErrorsThrough(t *testing.T) {
	cache := NewCacheOverlay(newStubAPI(), NewMemoryBackend(), time.Minute, zerolog.Nop())

	_, err := cache.GetByID(context.Background(), uuid.New())
	if !errors.Is(err, appointment.ErrAppointmentNotFound) {
		t.Fatalf("got %v", err)
	}
	_, err = cache.Cancel(context.Background(), uuid.New(), uuid.Nil)
	if !errors.Is(err, appointment.ErrAppointmentNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestCacheKeyFormat(t *testing.T) {
	day := time.Date(2026, 3, 11, 15, 30, 0, 0, time.FixedZone("X", 3*3600))
	if got := cacheKey(day, nil); got != "appointments:2026-03-11" {
		t.Fatalf("wildcard key = %q", got)
	}

	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	want := "appointments:2026-03-11:" + id.String()
	if got := cacheKey(day, &id); got != want {
		t.Fatalf("clinician key = %q, want %q", got, want)
	}
}

func TestMemoryBackendExpiry(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	backend.Set(ctx, "k", []byte("v"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := backend.Get(ctx, "k"); ok {
		t.Fatal("expired entry still served")
	}
}
