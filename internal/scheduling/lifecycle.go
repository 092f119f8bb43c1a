package scheduling

// activeStatuses are the appointment statuses that hold calendar capacity:
// no two appointments of one provider in these statuses may overlap.
var activeStatuses = []AppointmentStatus{
	StatusPendingPayment,
	StatusScheduled,
	StatusConfirmed,
	StatusInProgress,
}

func (s AppointmentStatus) Active() bool {
	for _, a := range activeStatuses {
		if s == a {
			return true
		}
	}
	return false
}

func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// transitions is the appointment state machine. cancel is reachable from
// every non-terminal state; no_show only once the patient was expected.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPendingPayment: {StatusScheduled, StatusCancelled},
	StatusScheduled:      {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress:     {StatusCompleted, StatusCancelled, StatusNoShow},
}

func canTransition(from, to AppointmentStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// reschedulable reports whether an appointment's interval may still change.
// An encounter that already started keeps its interval.
func reschedulable(s AppointmentStatus) bool {
	switch s {
	case StatusPendingPayment, StatusScheduled, StatusConfirmed:
		return true
	}
	return false
}
