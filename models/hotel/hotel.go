package hotel

import (
	"time"
)

// Hotel represents a tenant hotel and its deadline configuration.
// Configuration is read-only to the lifecycle core; its CRUD lives elsewhere.
type Hotel struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Slug string `gorm:"type:varchar(100);not null;unique" json:"slug"`
	Name string `gorm:"type:varchar(255);not null" json:"name"`

	// IANA zone name, e.g. "Europe/Dublin". All checkout deadline arithmetic
	// happens in this zone, never the server's.
	Timezone string `gorm:"type:varchar(64);not null;default:UTC" json:"timezone"`

	// Minutes staff have to accept or decline after payment authorization.
	ApprovalSLAMinutes int `gorm:"not null;default:30" json:"approval_sla_minutes"`

	// "HH:MM" in hotel-local time. Empty means the 11:00 default.
	StandardCheckoutTime string `gorm:"type:varchar(5)" json:"standard_checkout_time"`
	CheckoutGraceMinutes int    `gorm:"not null;default:30" json:"checkout_grace_minutes"`

	// Minutes past the grace deadline before an overstay escalates to
	// CRITICAL. Zero means the 120-minute default.
	OverstayCriticalThresholdMinutes int `gorm:"not null;default:120" json:"overstay_critical_threshold_minutes"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PenaltyType classifies how a cancellation fee is computed.
type PenaltyType string

const (
	PenaltyPercentage    PenaltyType = "PERCENTAGE"
	PenaltyFixed         PenaltyType = "FIXED"
	PenaltyNonRefundable PenaltyType = "NON_REFUNDABLE"
)

func (p PenaltyType) IsValid() bool {
	switch p {
	case PenaltyPercentage, PenaltyFixed, PenaltyNonRefundable:
		return true
	default:
		return false
	}
}

// CancellationPolicy is the per-hotel cancellation fee configuration.
type CancellationPolicy struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	HotelID uint  `gorm:"not null;uniqueIndex" json:"hotel_id"`
	Hotel   Hotel `gorm:"foreignKey:HotelID" json:"hotel"`

	// Cancellations at least this many whole hours before check-in are free.
	FreeUntilHours int         `gorm:"not null;default:24" json:"free_until_hours"`
	PenaltyType    PenaltyType `gorm:"type:varchar(20);not null" json:"penalty_type"`

	// Percentage of the total for PERCENTAGE, minor units for FIXED,
	// ignored for NON_REFUNDABLE.
	PenaltyValue float64 `gorm:"not null;default:0" json:"penalty_value"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName sets the table name for the CancellationPolicy model
func (CancellationPolicy) TableName() string {
	return "cancellation_policies"
}
