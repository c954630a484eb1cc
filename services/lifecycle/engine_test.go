package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	bookingModel "hotelmate-backend/models/booking"
	hotelModel "hotelmate-backend/models/hotel"
	"hotelmate-backend/services/notify"
	"hotelmate-backend/types"
)

// fakeGateway counts calls and injects failures. Refund refs are synthetic
// but unique per call.
type fakeGateway struct {
	mu          sync.Mutex
	captures    int
	voids       int
	refunds     int
	lastRefund  int64
	failCapture bool
	failVoid    bool
	failRefund  bool
}

func (g *fakeGateway) Capture(_ context.Context, intentRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCapture {
		return fmt.Errorf("simulated capture outage")
	}
	g.captures++
	return nil
}

func (g *fakeGateway) CancelAuthorization(_ context.Context, intentRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failVoid {
		return fmt.Errorf("simulated void outage")
	}
	g.voids++
	return nil
}

func (g *fakeGateway) Refund(_ context.Context, intentRef string, amount int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failRefund {
		return "", fmt.Errorf("simulated refund outage")
	}
	g.refunds++
	g.lastRefund = amount
	return fmt.Sprintf("re_%d", g.refunds), nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.DomainEvent
}

func (n *recordingNotifier) Publish(_ context.Context, event notify.DomainEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Name)
	}
	return out
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set; skipping engine integration tests")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&hotelModel.Hotel{},
		&hotelModel.CancellationPolicy{},
		&bookingModel.Booking{},
		&bookingModel.BookingStatusEvent{},
	))
	require.NoError(t, db.Exec(
		"TRUNCATE booking_status_events, bookings, cancellation_policies, hotels RESTART IDENTITY CASCADE").Error)
	return db
}

func seedHotel(t *testing.T, db *gorm.DB) *hotelModel.Hotel {
	t.Helper()
	h := &hotelModel.Hotel{
		Slug:                 "seaview",
		Name:                 "Seaview Hotel",
		Timezone:             "UTC",
		ApprovalSLAMinutes:   30,
		StandardCheckoutTime: "11:00",
		CheckoutGraceMinutes: 30,
	}
	require.NoError(t, db.Create(h).Error)
	policy := &hotelModel.CancellationPolicy{
		HotelID:        h.ID,
		FreeUntilHours: 24,
		PenaltyType:    hotelModel.PenaltyPercentage,
		PenaltyValue:   25,
	}
	require.NoError(t, db.Create(policy).Error)
	return h
}

func newTestEngine(db *gorm.DB) (*Engine, *fakeGateway, *recordingNotifier) {
	gateway := &fakeGateway{}
	notifier := &recordingNotifier{}
	return NewEngine(db, gateway, notifier, 3*time.Second), gateway, notifier
}

func seedBooking(t *testing.T, engine *Engine, h *hotelModel.Hotel, ref string) *bookingModel.Booking {
	t.Helper()
	b := &bookingModel.Booking{
		HotelID:      h.ID,
		BookingRef:   ref,
		GuestName:    "Ada Lovelace",
		TotalAmount:  10000,
		Currency:     "EUR",
		CheckInDate:  time.Now().UTC().Add(12 * time.Hour),
		CheckOutDate: time.Now().UTC().Add(36 * time.Hour),
	}
	created, isNew, err := engine.Create(context.Background(), b, "test")
	require.NoError(t, err)
	require.True(t, isNew)
	return created
}

func reload(t *testing.T, db *gorm.DB, ref string) *bookingModel.Booking {
	t.Helper()
	var b bookingModel.Booking
	require.NoError(t, db.Preload("Hotel").Where("booking_ref = ?", ref).First(&b).Error)
	return &b
}

func TestEngine_FullLifecycle(t *testing.T) {
	db := setupTestDB(t)
	h := seedHotel(t, db)
	engine, gateway, notifier := newTestEngine(db)
	ctx := context.Background()
	now := time.Now().UTC()

	seedBooking(t, engine, h, "BK-1")

	b, err := engine.ReceiveAuthorization(ctx, "BK-1", "pi_abc", now)
	require.NoError(t, err)
	assert.Equal(t, bookingModel.StatusPendingApproval, b.Status)
	assert.Nil(t, b.PaidAt)
	require.NoError(t, b.CheckInvariants())

	b, err = engine.Accept(ctx, "BK-1", "alice", now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, bookingModel.StatusConfirmed, b.Status)
	assert.NotNil(t, b.PaidAt)
	assert.Equal(t, "alice", *b.DecisionBy)
	assert.Equal(t, 1, gateway.captures)
	require.NoError(t, b.CheckInvariants())

	b, err = engine.CheckIn(ctx, "BK-1", "alice", now.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, bookingModel.StatusCheckedIn, b.Status)
	require.NoError(t, b.CheckInvariants())

	b, err = engine.CheckOut(ctx, "BK-1", "alice", now.Add(36*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, bookingModel.StatusCheckedOut, b.Status)
	assert.Nil(t, b.OverstayFlaggedAt)
	require.NoError(t, b.CheckInvariants())

	assert.Equal(t, []string{
		notify.EventBookingConfirmed,
		notify.EventBookingCheckedIn,
		notify.EventBookingCheckedOut,
	}, notifier.names())

	history, err := engine.History(ctx, b.ID)
	require.NoError(t, err)
	// create, receive_authorization, accept, check_in, check_out
	require.Len(t, history, 5)
	assert.Equal(t, "accept", history[2].Operation)
}

func TestEngine_ReceiveAuthorizationReplay(t *testing.T) {
	db := setupTestDB(t)
	h := seedHotel(t, db)
	engine, _, notifier := newTestEngine(db)
	ctx := context.Background()
	now := time.Now().UTC()

	seedBooking(t, engine, h, "BK-2")

	first, err := engine.ReceiveAuthorization(ctx, "BK-2", "pi_abc", now)
	require.NoError(t, err)

	// Redelivered callback: same outcome, no second transition.
	second, err := engine.ReceiveAuthorization(ctx, "BK-2", "pi_other", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, bookingModel.StatusPendingApproval, second.Status)
	assert.Equal(t, *first.PaymentIntentRef, *second.PaymentIntentRef)

	var count int64
	require.NoError(t, db.Model(&bookingModel.BookingStatusEvent{}).
		Where("operation = ?", "receive_authorization").Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Empty(t, notifier.names())
}

func TestEngine_AcceptCaptureFailureLeavesStateUnchanged(t *testing.T) {
	db := setupTestDB(t)
	h := seedHotel(t, db)
	engine, gateway, _ := newTestEngine(db)
	ctx := context.Background()
	now := time.Now().UTC()

	seedBooking(t, engine, h, "BK-3")
	_, err := engine.ReceiveAuthorization(ctx, "BK-3", "pi_abc", now)
	require.NoError(t, err)

	gateway.failCapture = true
	_, err = engine.Accept(ctx, "BK-3", "alice", now)
	assert.ErrorIs(t, err, types.ErrGatewayFailure)
	assert.NotErrorIs(t, err, types.ErrInvalidTransition)

	b := reload(t, db, "BK-3")
	assert.Equal(t, bookingModel.StatusPendingApproval, b.Status)
	assert.Nil(t, b.PaidAt)

	// Retry succeeds once the gateway recovers.
	gateway.failCapture = false
	b, err = engine.Accept(ctx, "BK-3", "alice", now)
	require.NoError(t, err)
	assert.Equal(t, bookingModel.StatusConfirmed, b.Status)
	assert.Equal(t, 1, gateway.captures)
}

func TestEngine_AcceptAfterExpire(t *testing.T) {
	db := setupTestDB(t)
	h := seedHotel(t, db)
	engine, gateway, notifier := newTestEngine(db)
	ctx := context.Background()
	authorizedAt := time.Now().UTC().Add(-2 * time.Hour)

	seedBooking(t, engine, h, "BK-4")
	_, err := engine.ReceiveAuthorization(ctx, "BK-4", "pi_abc", authorizedAt)
	require.NoError(t, err)

	b, err := engine.Expire(ctx, "BK-4", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, bookingModel.StatusExpired, b.Status)
	assert.Equal(t, 1, gateway.voids)

	_, err = engine.Accept(ctx, "BK-4", "alice", time.Now().UTC())
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	assert.Equal(t, 0, gateway.captures)
	assert.Equal(t, []string{notify.EventBookingExpired}, notifier.names())
}

func TestEngine_ExpireIsNoopAfterDecision(t *testing.T) {
	db := setupTestDB(t)
	h := seedHotel(t, db)
	engine, gateway, _ := newTestEngine(db)
	ctx := context.Background()
	authorizedAt := time.Now().UTC().Add(-2 * time.Hour)

	seedBooking(t, engine, h, "BK-5")
	_, err := engine.ReceiveAuthorization(ctx, "BK-5", "pi_abc", authorizedAt)
	require.NoError(t, err)
	_, err = engine.Accept(ctx, "BK-5", "alice", time.Now().UTC())
	require.NoError(t, err)

	// Sweep losing the race must not error or void anything.
	b, err := engine.Expire(ctx, "BK-5", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, bookingModel.StatusConfirmed, b.Status)
	assert.Equal(t, 0, gateway.voids)
}

func TestEngine_ExpireBeforeDeadlineRejected(t *testing.T) {
	db := setupTestDB(t)
	h := seedHotel(t, db)
	engine, gateway, _ := newTestEngine(db)
	ctx := context.Background()
	now := time.Now().UTC()

	seedBooking(t, engine, h, "BK-6")
	_, err := engine.ReceiveAuthorization(ctx, "BK-6", "pi_abc", now)
	require.NoError(t, err)

	_, err = engine.Expire(ctx, "BK-6", now.Add(5*time.Minute))
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	assert.Equal(t, 0, gateway.voids)
}

func TestEngine_ConcurrentAccept(t *testing.T) {
	db := setupTestDB(t)
	h := seedHotel(t, db)
	engine, gateway, _ := newTestEngine(db)
	ctx := context.Background()
	now := time.Now().UTC()

	seedBooking(t, engine, h, "BK-7")
	_, err := engine.ReceiveAuthorization(ctx, "BK-7", "pi_abc", now)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Accept(ctx, "BK-7", fmt.Sprintf("staff-%d", i), time.Now().UTC())
		}(i)
	}
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, types.ErrInvalidTransition):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one accept commits")
	assert.Equal(t, 1, rejected, "the loser sees an invalid transition")
	assert.Equal(t, 1, gateway.captures, "exactly one capture call")

	b := reload(t, db, "BK-7")
	assert.Equal(t, bookingModel.StatusConfirmed, b.Status)
	require.NoError(t, b.CheckInvariants())
}

func TestEngine_CancelUncapturedHoldVoidsFree(t *testing.T) {
	db := setupTestDB(t)
	h := seedHotel(t, db)
	engine, gateway, _ := newTestEngine(db)
	ctx := context.Background()
	now := time.Now().UTC()

	seedBooking(t, engine, h, "BK-8")
	_, err := engine.ReceiveAuthorization(ctx, "BK-8", "pi_abc", now)
	require.NoError(t, err)

	b, err := engine.Cancel(ctx, "BK-8", "guest", "change of plans", now)
	require.NoError(t, err)
	assert.Equal(t, bookingModel.StatusCancelled, b.Status)
	assert.Equal(t, 1, gateway.voids)
	assert.Equal(t, 0, gateway.refunds)
	require.NotNil(t, b.CancellationFeeAmount)
	assert.Equal(t, int64(0), *b.CancellationFeeAmount, "releasing a hold costs nothing")
	assert.Nil(t, b.RefundRef)
}

func TestEngine_CancelConfirmedRefundsOnce(t *testing.T) {
	db := setupTestDB(t)
	h := seedHotel(t, db)
	engine, gateway, _ := newTestEngine(db)
	ctx := context.Background()
	now := time.Now().UTC()

	seedBooking(t, engine, h, "BK-9")
	_, err := engine.ReceiveAuthorization(ctx, "BK-9", "pi_abc", now)
	require.NoError(t, err)
	_, err = engine.Accept(ctx, "BK-9", "alice", now)
	require.NoError(t, err)

	// 12 hours before check-in, 25% policy: fee 2500, refund 7500.
	b, err := engine.Cancel(ctx, "BK-9", "guest", "family emergency", now)
	require.NoError(t, err)
	assert.Equal(t, bookingModel.StatusCancelled, b.Status)
	assert.Equal(t, 1, gateway.refunds)
	assert.Equal(t, int64(7500), gateway.lastRefund)
	require.NotNil(t, b.CancellationFeeAmount)
	assert.Equal(t, int64(2500), *b.CancellationFeeAmount)
	require.NotNil(t, b.RefundRef)

	// Second cancel on a terminal booking: no new gateway calls.
	_, err = engine.Cancel(ctx, "BK-9", "guest", "retry", now)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	assert.Equal(t, 1, gateway.refunds)
	assert.Equal(t, 1, gateway.captures)
}

func TestEngine_CancelRefundFailureRollsBack(t *testing.T) {
	db := setupTestDB(t)
	h := seedHotel(t, db)
	engine, gateway, _ := newTestEngine(db)
	ctx := context.Background()
	now := time.Now().UTC()

	seedBooking(t, engine, h, "BK-10")
	_, err := engine.ReceiveAuthorization(ctx, "BK-10", "pi_abc", now)
	require.NoError(t, err)
	_, err = engine.Accept(ctx, "BK-10", "alice", now)
	require.NoError(t, err)

	gateway.failRefund = true
	_, err = engine.Cancel(ctx, "BK-10", "guest", "retry me", now)
	assert.ErrorIs(t, err, types.ErrGatewayFailure)

	b := reload(t, db, "BK-10")
	assert.Equal(t, bookingModel.StatusConfirmed, b.Status, "failed refund leaves the booking untouched")
	assert.Nil(t, b.RefundRef)
	assert.Nil(t, b.CancelledAt)
}

func TestEngine_MarkNoShow(t *testing.T) {
	db := setupTestDB(t)
	h := seedHotel(t, db)
	engine, gateway, notifier := newTestEngine(db)
	ctx := context.Background()
	now := time.Now().UTC()

	seedBooking(t, engine, h, "BK-11")
	_, err := engine.ReceiveAuthorization(ctx, "BK-11", "pi_abc", now)
	require.NoError(t, err)
	_, err = engine.Accept(ctx, "BK-11", "alice", now)
	require.NoError(t, err)

	b, err := engine.MarkNoShow(ctx, "BK-11", "alice", now.Add(30*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, bookingModel.StatusNoShow, b.Status)
	assert.Equal(t, 1, gateway.captures)
	assert.Equal(t, 0, gateway.refunds, "no-show makes no gateway call")
	assert.Contains(t, notifier.names(), notify.EventBookingNoShow)

	_, err = engine.CheckIn(ctx, "BK-11", "alice", now.Add(31*time.Hour))
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
}

// Random valid-and-invalid operation sequences must never leave a committed
// state that violates the status/timestamp invariants.
func TestEngine_RandomSequencesPreserveInvariants(t *testing.T) {
	db := setupTestDB(t)
	h := seedHotel(t, db)
	engine, _, _ := newTestEngine(db)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 20; run++ {
		ref := fmt.Sprintf("BK-SEQ-%d", run)
		seedBooking(t, engine, h, ref)
		authorizedAt := time.Now().UTC().Add(-2 * time.Hour)

		for step := 0; step < 8; step++ {
			at := time.Now().UTC()
			var err error
			switch rng.Intn(8) {
			case 0:
				_, err = engine.ReceiveAuthorization(ctx, ref, "pi_seq", authorizedAt)
			case 1:
				_, err = engine.Accept(ctx, ref, "staff", at)
			case 2:
				_, err = engine.Decline(ctx, ref, "staff", "NO_ROOMS", "", at)
			case 3:
				_, err = engine.Cancel(ctx, ref, "guest", "seq", at)
			case 4:
				_, err = engine.CheckIn(ctx, ref, "staff", at)
			case 5:
				_, err = engine.CheckOut(ctx, ref, "staff", at)
			case 6:
				_, err = engine.Expire(ctx, ref, at)
			case 7:
				_, err = engine.MarkNoShow(ctx, ref, "staff", at)
			}
			if err != nil {
				require.ErrorIs(t, err, types.ErrInvalidTransition,
					"only invalid transitions may be rejected in this sequence")
			}

			b := reload(t, db, ref)
			require.NoError(t, b.CheckInvariants(), "run %d step %d status %s", run, step, b.Status)
		}
	}
}
