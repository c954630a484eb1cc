package constants

// Hotel staff permissions
const (
	// Admin permissions
	PermSuperAdminFull = "hotelmate.super-admin.full-permit"
	PermManagerFull    = "hotelmate.manager.full-permit"
	PermReceptionFull  = "hotelmate.reception.full-permit"
	PermPorterFull     = "hotelmate.porter.full-permit"
	PermGuestFull      = "hotelmate.guest.full-permit"

	// Special permissions
	PermAny = "any"
)

// Permission groups for convenience
var (
	BookingDecisionPermissions = []string{
		PermSuperAdminFull,
		PermManagerFull,
		PermReceptionFull,
	}
)
