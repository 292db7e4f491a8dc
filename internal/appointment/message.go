package appointment

import (
	"fmt"
	"time"
)

const messageDateLayout = "Jan 2, 2006 15:04"

// StatusMessage renders the SMS text sent after a committed transition.
func StatusMessage(a Appointment, kind TransitionKind, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	greeting := "Hello, this is a message from MediciNet."
	switch kind {
	case KindSchedule:
		return fmt.Sprintf("%s Your appointment has been scheduled for %s with %s.",
			greeting, a.Schedule.In(loc).Format(messageDateLayout), a.PrimaryPhysician)
	default:
		return fmt.Sprintf("%s We regret to inform you that your appointment has been cancelled for the following reason: %s",
			greeting, a.CancellationReason)
	}
}
