package scheduling

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from AppointmentStatus
		to   AppointmentStatus
		want bool
	}{
		{StatusPendingPayment, StatusScheduled, true},
		{StatusPendingPayment, StatusCancelled, true},
		{StatusPendingPayment, StatusConfirmed, false},
		{StatusScheduled, StatusConfirmed, true},
		{StatusScheduled, StatusInProgress, false},
		{StatusConfirmed, StatusInProgress, true},
		{StatusConfirmed, StatusNoShow, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusScheduled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusNoShow, StatusConfirmed, false},
	}

	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCancelReachableFromEveryNonTerminalState(t *testing.T) {
	for _, from := range []AppointmentStatus{StatusPendingPayment, StatusScheduled, StatusConfirmed, StatusInProgress} {
		if !canTransition(from, StatusCancelled) {
			t.Errorf("cancel should be reachable from %s", from)
		}
	}
}

func TestTerminalStatesAllowNothing(t *testing.T) {
	all := []AppointmentStatus{
		StatusPendingPayment, StatusScheduled, StatusConfirmed,
		StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow,
	}
	for _, from := range all {
		if !from.Terminal() {
			continue
		}
		for _, to := range all {
			if canTransition(from, to) {
				t.Errorf("terminal state %s should not transition to %s", from, to)
			}
		}
	}
}

func TestActiveMatchesCapacityHolders(t *testing.T) {
	holds := map[AppointmentStatus]bool{
		StatusPendingPayment: true,
		StatusScheduled:      true,
		StatusConfirmed:      true,
		StatusInProgress:     true,
		StatusCompleted:      false,
		StatusCancelled:      false,
		StatusNoShow:         false,
	}
	for status, want := range holds {
		if got := status.Active(); got != want {
			t.Errorf("%s.Active() = %v, want %v", status, got, want)
		}
	}
}

func TestReschedulable(t *testing.T) {
	want := map[AppointmentStatus]bool{
		StatusPendingPayment: true,
		StatusScheduled:      true,
		StatusConfirmed:      true,
		StatusInProgress:     false,
		StatusCompleted:      false,
		StatusCancelled:      false,
		StatusNoShow:         false,
	}
	for status, w := range want {
		if got := reschedulable(status); got != w {
			t.Errorf("reschedulable(%s) = %v, want %v", status, got, w)
		}
	}
}
