package appointment

import "fmt"

// Aggregate counts appointments per status. It does no I/O. A status outside
// the known set means the snapshot is corrupt and yields ErrInvariantViolation.
func Aggregate(appointments []Appointment) (Counts, error) {
	c := Counts{Total: len(appointments)}

	for _, a := range appointments {
		switch a.Status {
		case StatusScheduled:
			c.ScheduledCount++
		case StatusPending:
			c.PendingCount++
		case StatusCancelled:
			c.CancelledCount++
		default:
			return Counts{}, fmt.Errorf("%w: appointment %s has status %q", ErrInvariantViolation, a.ID, a.Status)
		}
	}

	if sum := c.ScheduledCount + c.PendingCount + c.CancelledCount; sum != c.Total {
		return Counts{}, fmt.Errorf("%w: counted %d of %d appointments", ErrInvariantViolation, sum, c.Total)
	}

	return c, nil
}
