package routes

import (
	"time"

	"hotelmate-backend/config"
	"hotelmate-backend/constants"
	bookingController "hotelmate-backend/controllers/booking"
	webhookController "hotelmate-backend/controllers/webhook"
	gatewayClient "hotelmate-backend/httpServices/gateway"
	"hotelmate-backend/logger"
	"hotelmate-backend/middleware"
	idempotencyService "hotelmate-backend/services/idempotency"
	"hotelmate-backend/services/lifecycle"
	"hotelmate-backend/services/notify"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, db *gorm.DB, cfg config.App) *lifecycle.Engine {
	gateway := gatewayClient.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey,
		time.Duration(cfg.GatewayTimeoutSec)*time.Second)

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.AMQPURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Error("Failed to connect AMQP notifier, falling back to log", err)
		} else {
			notifier = amqpNotifier
		}
	}

	engine := lifecycle.NewEngine(db, gateway, notifier,
		time.Duration(cfg.LockWaitMS)*time.Millisecond)
	ledger := idempotencyService.NewLedger(db)

	asyncLogger := logger.NewAsyncLogger(db)
	bookings := bookingController.NewBookingController(db, engine, asyncLogger)
	webhooks := webhookController.NewWebhookController(db, ledger, engine, asyncLogger)

	// Start the async logger processing goroutine
	go asyncLogger.ProcessLog()

	// Index route
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "hotelmate-backend",
			"status":  "ok",
		})
	})

	/*=============================================================================
	| Public Routes
	===============================================================================*/
	api := app.Group("/api")

	// Gateway callbacks are authenticated upstream and deduped by the
	// idempotency ledger; they must never be blocked by staff auth.
	api.Post("/webhooks/payment", webhooks.PaymentEvent)

	/*=============================================================================
	| Booking Routes
	===============================================================================*/
	bookingGroup := api.Group("/booking")

	bookingGroup.Post("/create", middleware.RequirePermissions(
		constants.PermGuestFull,
		constants.PermReceptionFull,
		constants.PermManagerFull,
	), bookings.Store)

	bookingGroup.Get("/pending-approvals", middleware.RequirePermissions(
		constants.BookingDecisionPermissions...,
	), bookings.PendingApprovals)

	bookingGroup.Get("/in-house", middleware.RequirePermissions(
		constants.BookingDecisionPermissions...,
	), bookings.InHouse)

	bookingGroup.Get("/:ref", middleware.RequireAuthentication(), bookings.Show)

	// Staff decisions on the payment lifecycle
	bookingGroup.Post("/:ref/accept", middleware.RequirePermissions(
		constants.BookingDecisionPermissions...,
	), bookings.Accept)

	bookingGroup.Post("/:ref/decline", middleware.RequirePermissions(
		constants.BookingDecisionPermissions...,
	), bookings.Decline)

	bookingGroup.Post("/:ref/cancel", middleware.RequirePermissions(
		constants.PermGuestFull,
		constants.PermReceptionFull,
		constants.PermManagerFull,
	), bookings.Cancel)

	bookingGroup.Post("/:ref/check-in", middleware.RequirePermissions(
		constants.PermReceptionFull,
		constants.PermManagerFull,
	), bookings.CheckIn)

	bookingGroup.Post("/:ref/check-out", middleware.RequirePermissions(
		constants.PermReceptionFull,
		constants.PermManagerFull,
	), bookings.CheckOut)

	bookingGroup.Post("/:ref/no-show", middleware.RequirePermissions(
		constants.BookingDecisionPermissions...,
	), bookings.MarkNoShow)

	return engine
}
