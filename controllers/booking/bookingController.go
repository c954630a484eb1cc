package booking

import (
	"errors"
	"time"

	"hotelmate-backend/logger"
	bookingModel "hotelmate-backend/models/booking"
	"hotelmate-backend/services/deadline"
	"hotelmate-backend/types"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// bookingWithRisk decorates a booking with its advisory deadline risk for
// the staff dashboard. Risk is display-only: enforcement is the sweep.
type bookingWithRisk struct {
	bookingModel.Booking
	RiskLevel string     `json:"risk_level,omitempty"`
	Deadline  *time.Time `json:"deadline,omitempty"`
}

func annotateRisk(b bookingModel.Booking, at time.Time) bookingWithRisk {
	out := bookingWithRisk{Booking: b}

	switch b.Status {
	case bookingModel.StatusPendingApproval:
		if b.PaymentAuthorizedAt == nil {
			return out
		}
		risk, dl, err := deadline.ApprovalRisk(&b.Hotel, *b.PaymentAuthorizedAt, at)
		if err != nil {
			logger.Error("Failed to compute approval risk for "+b.BookingRef, err)
			return out
		}
		out.RiskLevel = string(risk)
		out.Deadline = &dl
	case bookingModel.StatusCheckedIn:
		risk, dl, err := deadline.OverstayRisk(&b.Hotel, b.CheckOutDate, at)
		if err != nil {
			logger.Error("Failed to compute overstay risk for "+b.BookingRef, err)
			return out
		}
		out.RiskLevel = string(risk)
		out.Deadline = &dl
	}
	return out
}

// Show returns a booking with its risk level and status history
func (bc *BookingController) Show(c *fiber.Ctx) error {
	var b bookingModel.Booking
	err := bc.DB.Preload("Hotel").Where("booking_ref = ?", c.Params("ref")).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(types.ApiResponse{
				Status:  fiber.StatusNotFound,
				Message: "Booking not found",
				Data:    nil,
			})
		}
		logger.Error("Database error while loading booking", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Database error",
			Data:    nil,
		})
	}

	history, err := bc.Engine.History(c.Context(), b.ID)
	if err != nil {
		logger.Error("Failed to load booking history", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Database error",
			Data:    nil,
		})
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Booking retrieved",
		Data: fiber.Map{
			"booking": annotateRisk(b, time.Now().UTC()),
			"history": history,
		},
	})
}

// PendingApprovals lists PENDING_APPROVAL bookings with their approval risk
func (bc *BookingController) PendingApprovals(c *fiber.Ctx) error {
	query := bc.DB.Preload("Hotel").Where("status = ?", bookingModel.StatusPendingApproval)
	if hotelSlug := c.Query("hotel"); hotelSlug != "" {
		query = query.Joins("JOIN hotels ON hotels.id = bookings.hotel_id").
			Where("hotels.slug = ?", hotelSlug)
	}

	var bookings []bookingModel.Booking
	if err := query.Order("payment_authorized_at asc").Find(&bookings).Error; err != nil {
		logger.Error("Database error while listing pending approvals", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Database error",
			Data:    nil,
		})
	}

	at := time.Now().UTC()
	annotated := make([]bookingWithRisk, 0, len(bookings))
	for _, b := range bookings {
		annotated = append(annotated, annotateRisk(b, at))
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Pending approvals retrieved",
		Data:    annotated,
	})
}

// InHouse lists CHECKED_IN bookings with their overstay risk
func (bc *BookingController) InHouse(c *fiber.Ctx) error {
	query := bc.DB.Preload("Hotel").Where("status = ?", bookingModel.StatusCheckedIn)
	if hotelSlug := c.Query("hotel"); hotelSlug != "" {
		query = query.Joins("JOIN hotels ON hotels.id = bookings.hotel_id").
			Where("hotels.slug = ?", hotelSlug)
	}

	var bookings []bookingModel.Booking
	if err := query.Order("check_out_date asc").Find(&bookings).Error; err != nil {
		logger.Error("Database error while listing in-house bookings", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Database error",
			Data:    nil,
		})
	}

	at := time.Now().UTC()
	annotated := make([]bookingWithRisk, 0, len(bookings))
	for _, b := range bookings {
		annotated = append(annotated, annotateRisk(b, at))
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "In-house bookings retrieved",
		Data:    annotated,
	})
}
