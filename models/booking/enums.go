package booking

// Status represents the lifecycle state of a booking.
type Status string

const (
	StatusPendingPayment  Status = "PENDING_PAYMENT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusConfirmed       Status = "CONFIRMED"
	StatusDeclined        Status = "DECLINED"
	StatusCancelled       Status = "CANCELLED"
	StatusCheckedIn       Status = "CHECKED_IN"
	StatusCheckedOut      Status = "CHECKED_OUT"
	StatusExpired         Status = "EXPIRED"
	StatusNoShow          Status = "NO_SHOW"
)

// Helper methods for Status
func (s Status) String() string {
	return string(s)
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPendingPayment, StatusPendingApproval, StatusConfirmed, StatusDeclined,
		StatusCancelled, StatusCheckedIn, StatusCheckedOut, StatusExpired, StatusNoShow:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further transition may leave this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusDeclined, StatusExpired, StatusCheckedOut, StatusNoShow:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the state machine permits moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusPendingPayment:
		return next == StatusPendingApproval
	case StatusPendingApproval:
		return next == StatusConfirmed || next == StatusDeclined ||
			next == StatusCancelled || next == StatusExpired
	case StatusConfirmed:
		return next == StatusCheckedIn || next == StatusCancelled || next == StatusNoShow
	case StatusCheckedIn:
		return next == StatusCheckedOut
	default:
		return false
	}
}

// GetAllStatuses returns all valid booking statuses
func GetAllStatuses() []Status {
	return []Status{
		StatusPendingPayment,
		StatusPendingApproval,
		StatusConfirmed,
		StatusDeclined,
		StatusCancelled,
		StatusCheckedIn,
		StatusCheckedOut,
		StatusExpired,
		StatusNoShow,
	}
}
