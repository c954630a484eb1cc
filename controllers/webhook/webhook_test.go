package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"hotelmate-backend/logger"
	bookingModel "hotelmate-backend/models/booking"
	hotelModel "hotelmate-backend/models/hotel"
	idempotencyModel "hotelmate-backend/models/idempotency"
	idempotencyService "hotelmate-backend/services/idempotency"
	"hotelmate-backend/services/lifecycle"
	"hotelmate-backend/services/notify"
)

type nullGateway struct{}

func (nullGateway) Capture(context.Context, string) error             { return nil }
func (nullGateway) CancelAuthorization(context.Context, string) error { return nil }
func (nullGateway) Refund(context.Context, string, int64) (string, error) {
	return "re_test", nil
}

func setupWebhookApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set; skipping webhook integration tests")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&hotelModel.Hotel{},
		&hotelModel.CancellationPolicy{},
		&bookingModel.Booking{},
		&bookingModel.BookingStatusEvent{},
		&idempotencyModel.IdempotencyRecord{},
	))
	require.NoError(t, db.Exec(
		"TRUNCATE idempotency_records, booking_status_events, bookings, cancellation_policies, hotels RESTART IDENTITY CASCADE").Error)

	engine := lifecycle.NewEngine(db, nullGateway{}, notify.LogNotifier{}, 3*time.Second)
	controller := NewWebhookController(db, idempotencyService.NewLedger(db), engine, logger.NewAsyncLogger(db))

	app := fiber.New()
	app.Post("/api/webhooks/payment", controller.PaymentEvent)
	return app, db
}

func seedPendingPayment(t *testing.T, db *gorm.DB, ref string) {
	t.Helper()
	h := &hotelModel.Hotel{
		Slug:                 "lakeside-" + ref,
		Name:                 "Lakeside",
		Timezone:             "UTC",
		ApprovalSLAMinutes:   30,
		StandardCheckoutTime: "11:00",
		CheckoutGraceMinutes: 30,
	}
	require.NoError(t, db.Create(h).Error)
	b := &bookingModel.Booking{
		HotelID:      h.ID,
		BookingRef:   ref,
		GuestName:    "Alan Turing",
		TotalAmount:  8000,
		Currency:     "EUR",
		Status:       bookingModel.StatusPendingPayment,
		CheckInDate:  time.Now().UTC().Add(24 * time.Hour),
		CheckOutDate: time.Now().UTC().Add(48 * time.Hour),
		CreatedBy:    "test",
	}
	require.NoError(t, db.Create(b).Error)
}

func postEvent(t *testing.T, app *fiber.App, payload map[string]interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &parsed))
	return resp, parsed
}

func authorizedPayload(eventID, bookingRef string) map[string]interface{} {
	return map[string]interface{}{
		"event_id":      eventID,
		"event_type":    "payment.authorized",
		"booking_ref":   bookingRef,
		"intent_ref":    "pi_" + bookingRef,
		"authorized_at": time.Now().UTC().Format(time.RFC3339),
	}
}

func TestPaymentEvent_FirstDeliveryTransitions(t *testing.T) {
	app, db := setupWebhookApp(t)
	seedPendingPayment(t, db, "WH-1")

	resp, body := postEvent(t, app, authorizedPayload("evt_wh_1", "WH-1"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Event processed", body["message"])

	var b bookingModel.Booking
	require.NoError(t, db.Where("booking_ref = ?", "WH-1").First(&b).Error)
	assert.Equal(t, bookingModel.StatusPendingApproval, b.Status)
	require.NotNil(t, b.PaymentIntentRef)
	assert.Equal(t, "pi_WH-1", *b.PaymentIntentRef)

	var record idempotencyModel.IdempotencyRecord
	require.NoError(t, db.Where("event_id = ?", "evt_wh_1").First(&record).Error)
	assert.Equal(t, idempotencyModel.StatusProcessed, record.Status)
}

func TestPaymentEvent_RedeliveryAcknowledgedWithoutReprocessing(t *testing.T) {
	app, db := setupWebhookApp(t)
	seedPendingPayment(t, db, "WH-2")

	resp, _ := postEvent(t, app, authorizedPayload("evt_wh_2", "WH-2"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postEvent(t, app, authorizedPayload("evt_wh_2", "WH-2"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Event already processed", body["message"])

	var transitions int64
	require.NoError(t, db.Model(&bookingModel.BookingStatusEvent{}).
		Where("operation = ?", "receive_authorization").Count(&transitions).Error)
	assert.Equal(t, int64(1), transitions)

	var records int64
	require.NoError(t, db.Model(&idempotencyModel.IdempotencyRecord{}).
		Where("event_id = ?", "evt_wh_2").Count(&records).Error)
	assert.Equal(t, int64(1), records)
}

func TestPaymentEvent_UnknownBookingStillAcknowledged(t *testing.T) {
	app, db := setupWebhookApp(t)

	resp, body := postEvent(t, app, authorizedPayload("evt_wh_3", "WH-MISSING"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Event acknowledged; booking unknown", body["message"])

	var record idempotencyModel.IdempotencyRecord
	require.NoError(t, db.Where("event_id = ?", "evt_wh_3").First(&record).Error)
	assert.Equal(t, idempotencyModel.StatusFailed, record.Status)
	assert.Contains(t, record.ErrorDetail, "booking not found")
}

func TestPaymentEvent_MalformedPayloadRejected(t *testing.T) {
	app, _ := setupWebhookApp(t)

	for name, payload := range map[string]map[string]interface{}{
		"missing event_id":   {"event_type": "payment.authorized", "booking_ref": "X", "intent_ref": "pi_x"},
		"missing intent_ref": {"event_id": "evt_bad", "event_type": "payment.authorized", "booking_ref": "X"},
		"empty body":         {},
	} {
		t.Run(name, func(t *testing.T) {
			resp, _ := postEvent(t, app, payload)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestPaymentEvent_ReplayAgainstDecidedBookingIsHarmless(t *testing.T) {
	app, db := setupWebhookApp(t)
	seedPendingPayment(t, db, "WH-4")

	resp, _ := postEvent(t, app, authorizedPayload("evt_wh_4a", "WH-4"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A second authorization event with a fresh id lands after the booking
	// already moved on. The engine treats it as a replayed outcome.
	resp, body := postEvent(t, app, authorizedPayload("evt_wh_4b", "WH-4"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Event processed", body["message"])

	var b bookingModel.Booking
	require.NoError(t, db.Where("booking_ref = ?", "WH-4").First(&b).Error)
	assert.Equal(t, bookingModel.StatusPendingApproval, b.Status)
	assert.Equal(t, "pi_WH-4", *b.PaymentIntentRef, "original intent ref is kept")
}
