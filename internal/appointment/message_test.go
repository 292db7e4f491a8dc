package appointment

import (
	"testing"
	"time"
)

func TestStatusMessage(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	appt := Appointment{
		PrimaryPhysician:   "Dr. Martin",
		Schedule:           time.Date(2025, time.March, 2, 9, 0, 0, 0, time.UTC),
		CancellationReason: "patient unavailable",
	}

	tests := []struct {
		name string
		kind TransitionKind
		loc  *time.Location
		want string
	}{
		{
			name: "schedule in utc",
			kind: KindSchedule,
			want: "Hello, this is a message from MediciNet. Your appointment has been scheduled for Mar 2, 2025 09:00 with Dr. Martin.",
		},
		{
			name: "schedule in clinic timezone",
			kind: KindSchedule,
			loc:  paris,
			want: "Hello, this is a message from MediciNet. Your appointment has been scheduled for Mar 2, 2025 10:00 with Dr. Martin.",
		},
		{
			name: "cancel",
			kind: KindCancel,
			want: "Hello, this is a message from MediciNet. We regret to inform you that your appointment has been cancelled for the following reason: patient unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusMessage(appt, tt.kind, tt.loc); got != tt.want {
				t.Errorf("StatusMessage() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}
