package appointment

import "time"

// Operation is a lifecycle transition request.
type Operation string

const (
	OpConfirm    Operation = "confirm"
	OpStart      Operation = "start"
	OpComplete   Operation = "complete"
	OpCancel     Operation = "cancel"
	OpReschedule Operation = "reschedule"
)

// Machine decides lifecycle transitions. It performs no I/O and never
// mutates the appointment; the service loads state, asks the machine, and
// persists the outcome.
type Machine struct {
	Leads      Leads
	LateWindow time.Duration // cancellations inside this window are late
}

func NewMachine(leads Leads, lateWindow time.Duration) Machine {
	return Machine{Leads: leads, LateWindow: lateWindow}
}

// Decision is the outcome of a legal transition.
type Decision struct {
	To   Status
	Late bool // set for cancellations inside the late window
}

// Decide evaluates op against the appointment's current state at time now.
// newTime is only consulted for OpReschedule. Illegal pairs return a
// TransitionError; a reschedule too close to newTime returns a
// LeadTimeError.
func (m Machine) Decide(a *Appointment, op Operation, now, newTime time.Time) (Decision, error) {
	switch op {
	case OpConfirm:
		if a.Status != StatusScheduled {
			return Decision{}, &TransitionError{From: a.Status, Op: op}
		}
		return Decision{To: StatusConfirmed}, nil

	case OpCancel:
		if a.Status != StatusScheduled && a.Status != StatusConfirmed {
			return Decision{}, &TransitionError{From: a.Status, Op: op}
		}
		if a.ScheduledAt.Sub(now) < m.LateWindow {
			return Decision{To: StatusCancelledLate, Late: true}, nil
		}
		return Decision{To: StatusCancelled}, nil

	case OpReschedule:
		if a.Status != StatusScheduled && a.Status != StatusConfirmed {
			return Decision{}, &TransitionError{From: a.Status, Op: op}
		}
		if ok, _ := m.Leads.ValidateLeadTime(PolicyReschedule, newTime, now); !ok {
			return Decision{}, m.Leads.LeadTimeError(PolicyReschedule, newTime, now)
		}
		// State is unchanged; only the scheduled time moves.
		return Decision{To: a.Status}, nil

	case OpStart:
		if a.Status != StatusConfirmed {
			return Decision{}, &TransitionError{From: a.Status, Op: op}
		}
		return Decision{To: StatusInProgress}, nil

	case OpComplete:
		if a.Status != StatusInProgress {
			return Decision{}, &TransitionError{From: a.Status, Op: op}
		}
		return Decision{To: StatusCompleted}, nil
	}

	return Decision{}, &TransitionError{From: a.Status, Op: op}
}
