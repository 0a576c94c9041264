package appointment

import (
	"errors"
	"testing"
	"time"
)

func testMachine() Machine {
	return NewMachine(DefaultLeads(), 4*time.Hour)
}

func apptIn(status Status, scheduledAt time.Time) *Appointment {
	return &Appointment{
		Status:          status,
		ScheduledAt:     scheduledAt,
		DurationMinutes: 30,
	}
}

func TestDecideTransitionGrid(t *testing.T) {
	m := testMachine()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	far := now.Add(48 * time.Hour) // outside the late window

	tests := []struct {
		from    Status
		op      Operation
		want    Status
		allowed bool
	}{
		{StatusScheduled, OpConfirm, StatusConfirmed, true},
		{StatusScheduled, OpCancel, StatusCancelled, true},
		{StatusScheduled, OpStart, "", false},
		{StatusScheduled, OpComplete, "", false},

		{StatusConfirmed, OpConfirm, "", false},
		{StatusConfirmed, OpStart, StatusInProgress, true},
		{StatusConfirmed, OpCancel, StatusCancelled, true},
		{StatusConfirmed, OpComplete, "", false},

		{StatusInProgress, OpComplete, StatusCompleted, true},
		{StatusInProgress, OpCancel, "", false},
		{StatusInProgress, OpConfirm, "", false},
		{StatusInProgress, OpStart, "", false},

		{StatusCompleted, OpConfirm, "", false},
		{StatusCompleted, OpCancel, "", false},
		{StatusCompleted, OpStart, "", false},
		{StatusCompleted, OpComplete, "", false},
		{StatusCompleted, OpReschedule, "", false},

		{StatusCancelled, OpConfirm, "", false},
		{StatusCancelled, OpCancel, "", false},
		{StatusCancelled, OpReschedule, "", false},

		{StatusCancelledLate, OpCancel, "", false},
		{StatusCancelledLate, OpReschedule, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+" "+string(tt.op), func(t *testing.T) {
			d, err := m.Decide(apptIn(tt.from, far), tt.op, now, far)
			if tt.allowed {
				if err != nil {
					t.Fatalf("expected transition to succeed, got %v", err)
				}
				if d.To != tt.want {
					t.Fatalf("Decide = %s, want %s", d.To, tt.want)
				}
				return
			}

			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			var te *TransitionError
			if !errors.As(err, &te) {
				t.Fatal("expected a *TransitionError")
			}
			if te.From != tt.from || te.Op != tt.op {
				t.Fatalf("error detail mismatch: %+v", te)
			}
		})
	}
}

func TestDecideCancelLateWindow(t *testing.T) {
	m := testMachine()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		scheduledAt time.Time
		want        Status
		late        bool
	}{
		{"well ahead of the window", now.Add(24 * time.Hour), StatusCancelled, false},
		{"exactly on the window boundary", now.Add(4 * time.Hour), StatusCancelled, false},
		{"one second inside", now.Add(4*time.Hour - time.Second), StatusCancelledLate, true},
		{"moments before start", now.Add(5 * time.Minute), StatusCancelledLate, true},
		{"already started", now.Add(-time.Hour), StatusCancelledLate, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := m.Decide(apptIn(StatusScheduled, tt.scheduledAt), OpCancel, now, time.Time{})
			if err != nil {
				t.Fatalf("cancel should be allowed from scheduled: %v", err)
			}
			if d.To != tt.want || d.Late != tt.late {
				t.Fatalf("Decide = {%s late=%v}, want {%s late=%v}", d.To, d.Late, tt.want, tt.late)
			}
		})
	}
}

func TestDecideRescheduleKeepsState(t *testing.T) {
	m := testMachine()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	newTime := now.Add(3 * time.Hour)

	for _, from := range []Status{StatusScheduled, StatusConfirmed} {
		d, err := m.Decide(apptIn(from, now.Add(24*time.Hour)), OpReschedule, now, newTime)
		if err != nil {
			t.Fatalf("reschedule from %s: %v", from, err)
		}
		if d.To != from {
			t.Fatalf("reschedule must keep state %s, got %s", from, d.To)
		}
	}
}

func TestDecideRescheduleLeadTime(t *testing.T) {
	m := testMachine()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// 2h reschedule lead applies even though the 4h standard lead would
	// reject this time.
	if _, err := m.Decide(apptIn(StatusScheduled, now.Add(24*time.Hour)), OpReschedule, now, now.Add(3*time.Hour)); err != nil {
		t.Fatalf("3h ahead should satisfy the reschedule lead: %v", err)
	}

	_, err := m.Decide(apptIn(StatusScheduled, now.Add(24*time.Hour)), OpReschedule, now, now.Add(time.Hour))
	if !errors.Is(err, ErrLeadTimeViolation) {
		t.Fatalf("1h ahead should violate the reschedule lead, got %v", err)
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusCancelled, StatusCancelledLate}
	active := []Status{StatusScheduled, StatusConfirmed, StatusInProgress}

	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range active {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}
