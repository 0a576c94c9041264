package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AvailabilityChecker decides whether a clinician window is free. It always
// queries the authoritative store, never a cache, so the write path cannot
// book into a stale gap.
type AvailabilityChecker struct {
	store Store
}

func NewAvailabilityChecker(store Store) *AvailabilityChecker {
	return &AvailabilityChecker{store: store}
}

// IsFree reports whether [start, start+duration) is free for the clinician.
// Overlap uses half-open intervals: an existing window [s, e) conflicts iff
// s < candidateEnd && e > candidateStart, so back-to-back appointments never
// collide. excludeID lets a reschedule ignore the appointment being moved.
func (c *AvailabilityChecker) IsFree(ctx context.Context, clinicianID uuid.UUID, start time.Time, durationMinutes int, excludeID *uuid.UUID) (bool, error) {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	overlapping, err := c.store.ListOverlapping(ctx, clinicianID, start, end, excludeID)
	if err != nil {
		return false, fmt.Errorf("list overlapping: %w", storeErr(err))
	}

	return len(overlapping) == 0, nil
}

// storeErr normalizes store failures: deadline expiry becomes ErrTimeout,
// everything else passes through.
func storeErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
