package deadline

import (
	"fmt"
	"time"

	"github.com/jinzhu/now"

	hotelModel "hotelmate-backend/models/hotel"
	"hotelmate-backend/types"
)

// RiskLevel is the advisory classification of how overdue a deadline is.
// It never changes state by itself; enforcement is the sweep's transitions.
type RiskLevel string

const (
	RiskOK       RiskLevel = "OK"
	RiskDueSoon  RiskLevel = "DUE_SOON"
	RiskGrace    RiskLevel = "GRACE"
	RiskOverdue  RiskLevel = "OVERDUE"
	RiskCritical RiskLevel = "CRITICAL"
)

// DefaultCheckoutTime applies when a hotel has no standard_checkout_time
// configured, in hotel-local time.
const DefaultCheckoutTime = "11:00"

const (
	dueSoonWindow         = 10 * time.Minute
	approvalCriticalAfter = 60 * time.Minute
	overstayCriticalAfter = 120 * time.Minute
)

// ApprovalDeadline returns the instant by which staff must decide on an
// authorized booking.
func ApprovalDeadline(h *hotelModel.Hotel, authorizedAt time.Time) (time.Time, error) {
	if h.ApprovalSLAMinutes <= 0 {
		return time.Time{}, fmt.Errorf("%w: hotel %d has no approval SLA", types.ErrPolicyMisconfigured, h.ID)
	}
	return authorizedAt.Add(time.Duration(h.ApprovalSLAMinutes) * time.Minute), nil
}

// ApprovalRisk classifies how close a PENDING_APPROVAL booking is to its
// approval deadline at the given instant. Boundaries are inclusive: at the
// deadline the booking is OVERDUE, a full hour past it is CRITICAL. A
// CRITICAL booking stays acceptable until a sweep actually expires it.
func ApprovalRisk(h *hotelModel.Hotel, authorizedAt, at time.Time) (RiskLevel, time.Time, error) {
	deadline, err := ApprovalDeadline(h, authorizedAt)
	if err != nil {
		return "", time.Time{}, err
	}
	if !at.Before(deadline) {
		if at.Sub(deadline) >= approvalCriticalAfter {
			return RiskCritical, deadline, nil
		}
		return RiskOverdue, deadline, nil
	}
	if deadline.Sub(at) <= dueSoonWindow {
		return RiskDueSoon, deadline, nil
	}
	return RiskOK, deadline, nil
}

// CheckoutDeadline computes the standard checkout instant and the end of the
// grace window for a stay ending on checkOutDate, in the hotel's local zone.
// Stay dates are stored as UTC instants (midnight for date-only payloads);
// the calendar day is taken in UTC and recombined with the checkout time in
// the hotel's zone, so the deadline never drifts to an adjacent day for
// hotels west of UTC.
func CheckoutDeadline(h *hotelModel.Hotel, checkOutDate time.Time) (standard, graceEnd time.Time, err error) {
	loc, err := time.LoadLocation(h.Timezone)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: hotel %d timezone %q: %v",
			types.ErrPolicyMisconfigured, h.ID, h.Timezone, err)
	}

	checkoutTime := h.StandardCheckoutTime
	if checkoutTime == "" {
		checkoutTime = DefaultCheckoutTime
	}
	tod, err := time.Parse("15:04", checkoutTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: hotel %d checkout time %q: %v",
			types.ErrPolicyMisconfigured, h.ID, checkoutTime, err)
	}

	day := now.New(checkOutDate.UTC()).BeginningOfDay()
	y, m, d := day.Date()
	standard = time.Date(y, m, d, tod.Hour(), tod.Minute(), 0, 0, loc)
	graceEnd = standard.Add(time.Duration(h.CheckoutGraceMinutes) * time.Minute)
	return standard, graceEnd, nil
}

// OverstayRisk classifies a CHECKED_IN booking against its checkout deadline
// at the given instant. Levels: OK before the standard checkout, GRACE inside
// the grace window, OVERDUE past grace, CRITICAL once past grace by more than
// the hotel's critical threshold (120 minutes when unset). Boundaries are
// inclusive, matching the sweep.
func OverstayRisk(h *hotelModel.Hotel, checkOutDate, at time.Time) (RiskLevel, time.Time, error) {
	standard, graceEnd, err := CheckoutDeadline(h, checkOutDate)
	if err != nil {
		return "", time.Time{}, err
	}
	if at.Before(standard) {
		return RiskOK, graceEnd, nil
	}
	if at.Before(graceEnd) {
		return RiskGrace, graceEnd, nil
	}
	critical := overstayCriticalAfter
	if h.OverstayCriticalThresholdMinutes > 0 {
		critical = time.Duration(h.OverstayCriticalThresholdMinutes) * time.Minute
	}
	if at.Sub(graceEnd) > critical {
		return RiskCritical, graceEnd, nil
	}
	return RiskOverdue, graceEnd, nil
}
