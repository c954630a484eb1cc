package booking

import (
	"errors"
	"fmt"
	"time"

	"hotelmate-backend/logger"
	bookingModel "hotelmate-backend/models/booking"
	hotelModel "hotelmate-backend/models/hotel"
	"hotelmate-backend/middleware"
	"hotelmate-backend/services/lifecycle"
	"hotelmate-backend/types"
	bookingTypes "hotelmate-backend/types/booking"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// BookingController handles booking-related HTTP requests
type BookingController struct {
	DB     *gorm.DB
	Engine *lifecycle.Engine
	Logger *logger.AsyncLogger
}

// NewBookingController creates a new booking controller
func NewBookingController(db *gorm.DB, engine *lifecycle.Engine, asyncLogger *logger.AsyncLogger) *BookingController {
	return &BookingController{
		DB:     db,
		Engine: engine,
		Logger: asyncLogger,
	}
}

// sendResponseWithLog sends the response and records the exchange through the
// async request logger.
func (bc *BookingController) sendResponseWithLog(c *fiber.Ctx, status int, response types.ApiResponse) error {
	result := c.Status(status).JSON(response)
	bc.Logger.Log(logger.CaptureEntry(c))
	return result
}

// Store opens a new booking in PENDING_PAYMENT when a guest starts checkout
func (bc *BookingController) Store(c *fiber.Ctx) error {
	var req bookingTypes.BookingCreateRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", err)
		return bc.sendResponseWithLog(c, fiber.StatusBadRequest, types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid request body",
			Data:    nil,
		})
	}
	if err := req.Validate(); err != nil {
		return bc.sendResponseWithLog(c, fiber.StatusBadRequest, types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: err.Error(),
			Data:    nil,
		})
	}

	actor := middleware.StaffIdentity(c)
	if actor == "" {
		return bc.sendResponseWithLog(c, fiber.StatusUnauthorized, types.ApiResponse{
			Message: "Invalid user claims",
			Status:  fiber.StatusUnauthorized,
			Data:    nil,
		})
	}

	var hotel hotelModel.Hotel
	if err := bc.DB.Where("slug = ?", req.HotelSlug).First(&hotel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bc.sendResponseWithLog(c, fiber.StatusNotFound, types.ApiResponse{
				Status:  fiber.StatusNotFound,
				Message: "Hotel not found",
				Data:    nil,
			})
		}
		logger.Error("Database error while loading hotel", err)
		return bc.sendResponseWithLog(c, fiber.StatusInternalServerError, types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Database error",
			Data:    nil,
		})
	}

	b := bookingModel.Booking{
		HotelID:      hotel.ID,
		BookingRef:   req.BookingRef,
		GuestName:    req.GuestName,
		GuestPhone:   req.GuestPhone,
		GuestEmail:   req.GuestEmail,
		TotalAmount:  req.TotalAmount,
		Currency:     req.Currency,
		CheckInDate:  req.CheckInDate,
		CheckOutDate: req.CheckOutDate,
	}

	created, isNew, err := bc.Engine.Create(c.Context(), &b, actor)
	if err != nil {
		logger.Error("Failed to create booking", err)
		return bc.sendResponseWithLog(c, fiber.StatusInternalServerError, types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Failed to create booking",
			Data:    nil,
		})
	}
	if !isNew {
		logger.Info(fmt.Sprintf("Booking with ref %s already exists", req.BookingRef))
		return bc.sendResponseWithLog(c, fiber.StatusOK, types.ApiResponse{
			Status:  fiber.StatusOK,
			Message: "Booking already exists",
			Data:    created,
		})
	}

	return bc.sendResponseWithLog(c, fiber.StatusCreated, types.ApiResponse{
		Status:  fiber.StatusCreated,
		Message: "Booking created successfully",
		Data:    created,
	})
}

// Accept captures the payment and confirms a pending-approval booking
func (bc *BookingController) Accept(c *fiber.Ctx) error {
	staffID := middleware.StaffIdentity(c)
	if staffID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ApiResponse{
			Message: "Invalid user claims",
			Status:  fiber.StatusUnauthorized,
			Data:    nil,
		})
	}

	b, err := bc.Engine.Accept(c.Context(), c.Params("ref"), staffID, time.Now().UTC())
	if err != nil {
		return bc.respondLifecycleError(c, err, "accept")
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Booking confirmed",
		Data:    b,
	})
}

// Decline voids the authorization on a pending-approval booking
func (bc *BookingController) Decline(c *fiber.Ctx) error {
	staffID := middleware.StaffIdentity(c)
	if staffID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ApiResponse{
			Message: "Invalid user claims",
			Status:  fiber.StatusUnauthorized,
			Data:    nil,
		})
	}

	var req bookingTypes.DeclineRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid request body",
			Data:    nil,
		})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: err.Error(),
			Data:    nil,
		})
	}

	b, err := bc.Engine.Decline(c.Context(), c.Params("ref"), staffID, req.ReasonCode, req.ReasonNote, time.Now().UTC())
	if err != nil {
		return bc.respondLifecycleError(c, err, "decline")
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Booking declined",
		Data:    b,
	})
}

// Cancel applies the cancellation policy and releases or refunds the payment
func (bc *BookingController) Cancel(c *fiber.Ctx) error {
	actor := middleware.StaffIdentity(c)
	if actor == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ApiResponse{
			Message: "Invalid user claims",
			Status:  fiber.StatusUnauthorized,
			Data:    nil,
		})
	}

	var req bookingTypes.CancelRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid request body",
			Data:    nil,
		})
	}

	b, err := bc.Engine.Cancel(c.Context(), c.Params("ref"), actor, req.Reason, time.Now().UTC())
	if err != nil {
		return bc.respondLifecycleError(c, err, "cancel")
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Booking cancelled",
		Data:    b,
	})
}

// CheckIn marks a confirmed booking as arrived
func (bc *BookingController) CheckIn(c *fiber.Ctx) error {
	staffID := middleware.StaffIdentity(c)
	if staffID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ApiResponse{
			Message: "Invalid user claims",
			Status:  fiber.StatusUnauthorized,
			Data:    nil,
		})
	}

	b, err := bc.Engine.CheckIn(c.Context(), c.Params("ref"), staffID, time.Now().UTC())
	if err != nil {
		return bc.respondLifecycleError(c, err, "check_in")
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Guest checked in",
		Data:    b,
	})
}

// CheckOut completes the stay; overstay risk never blocks checkout
func (bc *BookingController) CheckOut(c *fiber.Ctx) error {
	staffID := middleware.StaffIdentity(c)
	if staffID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ApiResponse{
			Message: "Invalid user claims",
			Status:  fiber.StatusUnauthorized,
			Data:    nil,
		})
	}

	b, err := bc.Engine.CheckOut(c.Context(), c.Params("ref"), staffID, time.Now().UTC())
	if err != nil {
		return bc.respondLifecycleError(c, err, "check_out")
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Guest checked out",
		Data:    b,
	})
}

// MarkNoShow closes a confirmed booking whose guest never arrived
func (bc *BookingController) MarkNoShow(c *fiber.Ctx) error {
	staffID := middleware.StaffIdentity(c)
	if staffID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(types.ApiResponse{
			Message: "Invalid user claims",
			Status:  fiber.StatusUnauthorized,
			Data:    nil,
		})
	}

	b, err := bc.Engine.MarkNoShow(c.Context(), c.Params("ref"), staffID, time.Now().UTC())
	if err != nil {
		return bc.respondLifecycleError(c, err, "mark_no_show")
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Booking marked as no-show",
		Data:    b,
	})
}

// respondLifecycleError maps the lifecycle error taxonomy to HTTP responses.
// Invalid transitions are 409 with a clear message (never a generic 500);
// gateway and lock failures are retriable and say so.
func (bc *BookingController) respondLifecycleError(c *fiber.Ctx, err error, operation string) error {
	switch {
	case errors.Is(err, types.ErrBookingNotFound):
		return c.Status(fiber.StatusNotFound).JSON(types.ApiResponse{
			Status:  fiber.StatusNotFound,
			Message: "Booking not found",
			Data:    nil,
		})

	case errors.Is(err, types.ErrInvalidTransition):
		message := "Booking is not in a state that allows this action"
		if operation == "accept" || operation == "decline" {
			message = "Booking is no longer awaiting approval"
		}
		var transitionErr *types.TransitionError
		data := interface{}(nil)
		if errors.As(err, &transitionErr) {
			data = fiber.Map{"booking_ref": transitionErr.BookingRef, "status": transitionErr.From}
		}
		return c.Status(fiber.StatusConflict).JSON(types.ApiResponse{
			Status:  fiber.StatusConflict,
			Message: message,
			Data:    data,
		})

	case errors.Is(err, types.ErrGatewayFailure):
		logger.Error("Payment gateway failure during "+operation, err)
		return c.Status(fiber.StatusBadGateway).JSON(types.ApiResponse{
			Status:  fiber.StatusBadGateway,
			Message: "Payment gateway unavailable, please retry",
			Data:    nil,
		})

	case errors.Is(err, types.ErrLockTimeout):
		return c.Status(fiber.StatusServiceUnavailable).JSON(types.ApiResponse{
			Status:  fiber.StatusServiceUnavailable,
			Message: "Booking is being updated by another request, please retry",
			Data:    nil,
		})

	case errors.Is(err, types.ErrPolicyMisconfigured):
		logger.Error("Hotel policy misconfigured during "+operation, err)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(types.ApiResponse{
			Status:  fiber.StatusUnprocessableEntity,
			Message: "Hotel policy is misconfigured; contact an administrator",
			Data:    nil,
		})

	default:
		logger.Error("Unexpected error during "+operation, err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Internal server error",
			Data:    nil,
		})
	}
}
