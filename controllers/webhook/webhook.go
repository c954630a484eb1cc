package webhook

import (
	"errors"

	"hotelmate-backend/logger"
	bookingModel "hotelmate-backend/models/booking"
	idempotencyModel "hotelmate-backend/models/idempotency"
	idempotencyService "hotelmate-backend/services/idempotency"
	"hotelmate-backend/services/lifecycle"
	"hotelmate-backend/types"
	bookingTypes "hotelmate-backend/types/booking"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// WebhookController receives asynchronous payment-gateway events. Delivery is
// at-least-once, so every event runs through the idempotency ledger before it
// may touch domain state, and every well-formed delivery is acknowledged with
// 200 regardless of processing outcome to stop redelivery storms.
type WebhookController struct {
	DB     *gorm.DB
	Ledger *idempotencyService.Ledger
	Engine *lifecycle.Engine
	Logger *logger.AsyncLogger
}

// NewWebhookController creates a new webhook controller
func NewWebhookController(db *gorm.DB, ledger *idempotencyService.Ledger, engine *lifecycle.Engine, asyncLogger *logger.AsyncLogger) *WebhookController {
	return &WebhookController{
		DB:     db,
		Ledger: ledger,
		Engine: engine,
		Logger: asyncLogger,
	}
}

// sendResponseWithLog sends the response and records the full exchange
// through the async request logger. Gateway traffic is always audited.
func (wc *WebhookController) sendResponseWithLog(c *fiber.Ctx, status int, response types.ApiResponse) error {
	result := c.Status(status).JSON(response)
	wc.Logger.Log(logger.CaptureEntry(c))
	return result
}

// PaymentEvent handles an authorization-succeeded callback from the gateway
func (wc *WebhookController) PaymentEvent(c *fiber.Ctx) error {
	var req bookingTypes.PaymentEventRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse gateway event body", err)
		return wc.sendResponseWithLog(c, fiber.StatusBadRequest, types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: "Invalid event body",
			Data:    nil,
		})
	}
	if err := req.Validate(); err != nil {
		return wc.sendResponseWithLog(c, fiber.StatusBadRequest, types.ApiResponse{
			Status:  fiber.StatusBadRequest,
			Message: err.Error(),
			Data:    nil,
		})
	}

	// Resolve the booking first so the ledger row can reference it. An
	// unknown booking is still recorded and acknowledged: redelivery will
	// not make it exist.
	var bookingID uint
	var b bookingModel.Booking
	err := wc.DB.Select("id").Where("booking_ref = ?", req.BookingRef).First(&b).Error
	if err == nil {
		bookingID = b.ID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("Database error while resolving booking for event "+req.EventID, err)
		return wc.sendResponseWithLog(c, fiber.StatusInternalServerError, types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Database error",
			Data:    nil,
		})
	}

	first, err := wc.Ledger.RecordEventOnce(c.Context(), req.EventID, req.EventType, bookingID)
	if err != nil {
		logger.Error("Failed to record gateway event "+req.EventID, err)
		return wc.sendResponseWithLog(c, fiber.StatusInternalServerError, types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Failed to record event",
			Data:    nil,
		})
	}
	if !first {
		// Normal at-least-once redelivery; acknowledge without processing.
		return wc.sendResponseWithLog(c, fiber.StatusOK, types.ApiResponse{
			Status:  fiber.StatusOK,
			Message: "Event already processed",
			Data:    nil,
		})
	}

	if bookingID == 0 {
		wc.markOutcome(c, req.EventID, idempotencyModel.StatusFailed, "booking not found: "+req.BookingRef)
		return wc.sendResponseWithLog(c, fiber.StatusOK, types.ApiResponse{
			Status:  fiber.StatusOK,
			Message: "Event acknowledged; booking unknown",
			Data:    nil,
		})
	}

	updated, err := wc.Engine.ReceiveAuthorization(c.Context(), req.BookingRef, req.IntentRef, req.AuthorizedAt.UTC())
	if err != nil {
		// Failure is acknowledged anyway and recorded for operator follow-up.
		logger.Error("Failed to apply gateway event "+req.EventID, err)
		wc.markOutcome(c, req.EventID, idempotencyModel.StatusFailed, err.Error())
		return wc.sendResponseWithLog(c, fiber.StatusOK, types.ApiResponse{
			Status:  fiber.StatusOK,
			Message: "Event acknowledged; processing failed",
			Data:    nil,
		})
	}

	wc.markOutcome(c, req.EventID, idempotencyModel.StatusProcessed, "")
	return wc.sendResponseWithLog(c, fiber.StatusOK, types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Event processed",
		Data:    updated,
	})
}

func (wc *WebhookController) markOutcome(c *fiber.Ctx, eventID, status, detail string) {
	if err := wc.Ledger.MarkProcessed(c.Context(), eventID, status, detail); err != nil {
		logger.Error("Failed to mark event "+eventID+" as "+status, err)
	}
}
