package appointment

import (
	"fmt"
	"time"
)

// Policy names a lead-time rule. Callers pick a policy, not a threshold, so
// the thresholds stay configurable in one place.
type Policy string

const (
	PolicyStandard   Policy = "standard"   // new bookings
	PolicyReschedule Policy = "reschedule" // moving an existing booking
	PolicyUrgent     Policy = "urgent"     // priority flows
)

// Leads holds the configured minimum lead per policy.
type Leads struct {
	Standard   time.Duration
	Reschedule time.Duration
	Urgent     time.Duration
}

// DefaultLeads are the clinic defaults: 4h to book, 2h to reschedule, 1h for
// urgent slots.
func DefaultLeads() Leads {
	return Leads{
		Standard:   4 * time.Hour,
		Reschedule: 2 * time.Hour,
		Urgent:     time.Hour,
	}
}

func (l Leads) forPolicy(p Policy) time.Duration {
	switch p {
	case PolicyReschedule:
		return l.Reschedule
	case PolicyUrgent:
		return l.Urgent
	default:
		return l.Standard
	}
}

// ValidateLeadTime reports whether candidate is far enough after now under
// the given policy. Pure function of its inputs; safe from any goroutine.
func (l Leads) ValidateLeadTime(p Policy, candidate, now time.Time) (bool, string) {
	min := l.forPolicy(p)
	if candidate.Sub(now) >= min {
		return true, ""
	}
	return false, fmt.Sprintf("%s bookings require at least %s of lead time", p, min)
}

// LeadTimeError builds the typed error for a failed validation, so every
// caller reports the same context.
func (l Leads) LeadTimeError(p Policy, candidate, now time.Time) error {
	return &LeadTimeError{
		Policy:    p,
		Required:  l.forPolicy(p),
		Candidate: candidate,
		Now:       now,
	}
}
