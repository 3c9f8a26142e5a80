package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"choraid-server/models"
)

type fakeIntents struct {
	NewFunc func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	calls   int
}

func (f *fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.calls++
	return f.NewFunc(params)
}

func succeedingIntents() *fakeIntents {
	return &fakeIntents{NewFunc: func(p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		return &stripe.PaymentIntent{
			ID:           "pi_" + p.Metadata["booking_id"],
			ClientSecret: "pi_secret",
			Amount:       *p.Amount,
			Currency:     stripe.Currency(*p.Currency),
		}, nil
	}}
}

func TestCreateIntent(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, _ := f.worker(t, "Will Worker")
	booking := f.hired(t, client, worker, 10000)

	intents := succeedingIntents()
	var seen *stripe.PaymentIntentParams
	next := intents.NewFunc
	intents.NewFunc = func(p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		seen = p
		return next(p)
	}
	payments := NewPaymentService(f.db, f.notifier, f.events, intents, "")

	if _, err := payments.CreateIntent(context.Background(), worker, booking.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("worker paying: got %v, want ErrForbidden", err)
	}

	res, err := payments.CreateIntent(context.Background(), client, booking.ID)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if res.Amount != 10000 || res.Currency != "usd" || res.ClientSecret != "pi_secret" {
		t.Fatalf("result = %+v", res)
	}
	if seen == nil || *seen.Amount != 10000 || seen.Metadata["booking_id"] != strconv.FormatUint(uint64(booking.ID), 10) {
		t.Fatalf("params = %+v", seen)
	}
	if seen.IdempotencyKey == nil || *seen.IdempotencyKey == "" {
		t.Fatal("expected an idempotency key")
	}

	var b models.Booking
	f.reload(t, &b, booking.ID)
	if b.PaymentStatus != models.PaymentProcessing || b.PaymentIntentID == nil || *b.PaymentIntentID != res.PaymentIntentID {
		t.Fatalf("booking payment = %s %v", b.PaymentStatus, b.PaymentIntentID)
	}
}

func TestCreateIntentErrors(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, _ := f.worker(t, "Will Worker")
	booking := f.hired(t, client, worker, 10000)

	disabled := NewPaymentService(f.db, f.notifier, f.events, nil, "")
	if disabled.Enabled() {
		t.Fatal("service without intents should be disabled")
	}
	if _, err := disabled.CreateIntent(context.Background(), client, booking.ID); !errors.Is(err, ErrDisabled) {
		t.Fatalf("got %v, want ErrDisabled", err)
	}

	failing := NewPaymentService(f.db, f.notifier, f.events, &fakeIntents{NewFunc: func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
		return nil, fmt.Errorf("card network down")
	}}, "")
	if _, err := failing.CreateIntent(context.Background(), client, booking.ID); !errors.Is(err, ErrUpstream) {
		t.Fatalf("got %v, want ErrUpstream", err)
	}
	var b models.Booking
	f.reload(t, &b, booking.ID)
	if b.PaymentStatus != models.PaymentUnpaid {
		t.Fatalf("payment status = %s, want unpaid", b.PaymentStatus)
	}

	if _, err := f.bookings.Cancel(context.Background(), client, booking.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	ok := NewPaymentService(f.db, f.notifier, f.events, succeedingIntents(), "")
	if _, err := ok.CreateIntent(context.Background(), client, booking.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("paying cancelled booking: got %v, want ErrInvalidState", err)
	}
}

func TestApplyPaymentEventIsIdempotent(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, w := f.worker(t, "Will Worker")
	booking := f.hired(t, client, worker, 10000)
	payments := NewPaymentService(f.db, f.notifier, f.events, succeedingIntents(), "")

	pi := &stripe.PaymentIntent{
		ID:       "pi_1",
		Amount:   10000,
		Metadata: map[string]string{"booking_id": strconv.FormatUint(uint64(booking.ID), 10)},
	}
	for i := 0; i < 2; i++ {
		if err := payments.ApplyPaymentEvent(context.Background(), "evt_1", stripeEventSucceeded, pi); err != nil {
			t.Fatalf("apply #%d: %v", i+1, err)
		}
	}

	var b models.Booking
	f.reload(t, &b, booking.ID)
	if b.PaymentStatus != models.PaymentPaid || b.Status != models.BookingStatusConfirmed || b.PaidAt == nil {
		t.Fatalf("booking = %s/%s paidAt=%v", b.Status, b.PaymentStatus, b.PaidAt)
	}

	var activities int64
	f.db.Model(&models.WorkerActivity{}).Where("worker_id = ? AND type = ?", w.ID, models.ActivityPaymentReceived).Count(&activities)
	if activities != 1 {
		t.Fatalf("payment activities = %d, want 1", activities)
	}
	if f.pusher.count(worker.ID, models.NotificationPaymentReceived) != 1 {
		t.Fatal("worker should be notified exactly once")
	}

	// a late failure event must not undo the payment
	if err := payments.ApplyPaymentEvent(context.Background(), "evt_2", stripeEventFailed, pi); err != nil {
		t.Fatalf("apply failure: %v", err)
	}
	f.reload(t, &b, booking.ID)
	if b.PaymentStatus != models.PaymentPaid {
		t.Fatalf("payment status = %s, want paid", b.PaymentStatus)
	}
}

func TestPaymentSucceedsAfterBookingCancelled(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, w := f.worker(t, "Will Worker")
	booking := f.hired(t, client, worker, 10000)
	payments := NewPaymentService(f.db, f.notifier, f.events, succeedingIntents(), "")

	if _, err := f.bookings.Cancel(context.Background(), client, booking.ID, "changed my mind"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	pi := &stripe.PaymentIntent{
		ID:       "pi_late",
		Amount:   10000,
		Metadata: map[string]string{"booking_id": strconv.FormatUint(uint64(booking.ID), 10)},
	}
	if err := payments.ApplyPaymentEvent(context.Background(), "evt_late", stripeEventSucceeded, pi); err != nil {
		t.Fatalf("apply: %v", err)
	}

	var b models.Booking
	f.reload(t, &b, booking.ID)
	if b.Status != models.BookingStatusCancelled || b.PaymentStatus != models.PaymentPaid {
		t.Fatalf("booking = %s/%s", b.Status, b.PaymentStatus)
	}
	var activities int64
	f.db.Model(&models.WorkerActivity{}).Where("worker_id = ? AND type = ?", w.ID, models.ActivityPaymentReceived).Count(&activities)
	if activities != 0 {
		t.Fatalf("payment activities = %d, want 0", activities)
	}
	if f.pusher.count(worker.ID, models.NotificationPaymentReceived) != 0 {
		t.Fatal("worker was told about a payment for a cancelled booking")
	}
	if f.pusher.count(client.ID, models.NotificationPaymentReceived) != 1 {
		t.Fatal("client was not told the payment needs a refund")
	}
}

func TestApplyPaymentFailure(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, _ := f.worker(t, "Will Worker")
	booking := f.hired(t, client, worker, 10000)
	payments := NewPaymentService(f.db, f.notifier, f.events, succeedingIntents(), "")

	if _, err := payments.CreateIntent(context.Background(), client, booking.ID); err != nil {
		t.Fatalf("create intent: %v", err)
	}
	var b models.Booking
	f.reload(t, &b, booking.ID)

	// no metadata: the booking is found through the stored intent id
	pi := &stripe.PaymentIntent{ID: *b.PaymentIntentID}
	if err := payments.ApplyPaymentEvent(context.Background(), "evt_fail", stripeEventFailed, pi); err != nil {
		t.Fatalf("apply: %v", err)
	}
	f.reload(t, &b, booking.ID)
	if b.PaymentStatus != models.PaymentFailed || b.Status != models.BookingStatusPending {
		t.Fatalf("booking = %s/%s", b.Status, b.PaymentStatus)
	}
	if f.pusher.count(client.ID, models.NotificationPaymentFailed) != 1 {
		t.Fatal("client was not told the payment failed")
	}

	unknown := &stripe.PaymentIntent{ID: "pi_unknown"}
	if err := payments.ApplyPaymentEvent(context.Background(), "evt_x", stripeEventSucceeded, unknown); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown intent: got %v, want ErrNotFound", err)
	}
}

func TestHandleWebhook(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, _ := f.worker(t, "Will Worker")
	booking := f.hired(t, client, worker, 10000)

	const secret = "whsec_test"
	payments := NewPaymentService(f.db, f.notifier, f.events, succeedingIntents(), secret)

	if err := NewPaymentService(f.db, f.notifier, f.events, nil, "").HandleWebhook(context.Background(), []byte("{}"), "sig"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("no secret: got %v, want ErrDisabled", err)
	}
	if err := payments.HandleWebhook(context.Background(), []byte(`{"id":"evt_1"}`), "t=1,v1=bad"); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad signature: got %v, want ErrValidation", err)
	}

	payload := []byte(fmt.Sprintf(`{
		"id": "evt_webhook",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_hook", "object": "payment_intent", "amount": 10000, "metadata": {"booking_id": "%d"}}}
	}`, booking.ID))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	if err := payments.HandleWebhook(context.Background(), signed.Payload, signed.Header); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	var b models.Booking
	f.reload(t, &b, booking.ID)
	if b.PaymentStatus != models.PaymentPaid {
		t.Fatalf("payment status = %s, want paid", b.PaymentStatus)
	}
	if !f.events.has(EventPaymentSucceeded) {
		t.Fatal("missing payment.succeeded event")
	}
}
