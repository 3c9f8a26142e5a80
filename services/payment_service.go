package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"choraid-server/models"
)

const (
	stripeEventSucceeded = "payment_intent.succeeded"
	stripeEventFailed    = "payment_intent.payment_failed"
)

// PaymentIntentCreator creates Stripe payment intents
type PaymentIntentCreator interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// NewStripeIntents returns a payment intent client for key, or nil when key is empty
func NewStripeIntents(key string) PaymentIntentCreator {
	if key == "" {
		return nil
	}
	return &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: key}
}

// PaymentIntentRequest is the body for starting a booking payment
type PaymentIntentRequest struct {
	BookingID uint `json:"bookingId" binding:"required"`
}

// PaymentIntentResult is handed to the client app to confirm the payment
type PaymentIntentResult struct {
	BookingID       uint   `json:"bookingId"`
	PaymentIntentID string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

// PaymentService creates Stripe payment intents for bookings and applies webhook results
type PaymentService struct {
	db            *gorm.DB
	notifier      *NotificationService
	events        EventPublisher
	intents       PaymentIntentCreator
	webhookSecret string
}

func NewPaymentService(db *gorm.DB, notifier *NotificationService, events EventPublisher, intents PaymentIntentCreator, webhookSecret string) *PaymentService {
	return &PaymentService{db: db, notifier: notifier, events: events, intents: intents, webhookSecret: webhookSecret}
}

// Enabled reports whether a Stripe key is configured
func (s *PaymentService) Enabled() bool {
	return s.intents != nil
}

// CreateIntent creates a Stripe payment intent for the full booking amount
func (s *PaymentService) CreateIntent(ctx context.Context, actor *models.Profile, bookingID uint) (*PaymentIntentResult, error) {
	if s.intents == nil {
		return nil, fmt.Errorf("payments are not configured: %w", ErrDisabled)
	}

	var booking models.Booking
	if err := s.db.WithContext(ctx).First(&booking, bookingID).Error; err != nil {
		return nil, wrapNotFound(err, "booking", bookingID)
	}
	if booking.ClientID != actor.ID {
		return nil, fmt.Errorf("only the client can pay booking %d: %w", bookingID, ErrForbidden)
	}
	if err := payable(&booking); err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(booking.Amount),
		Currency: stripe.String(booking.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(fmt.Sprintf("Choraid booking #%d", booking.ID)),
	}
	params.Context = ctx
	params.AddMetadata("booking_id", strconv.FormatUint(uint64(booking.ID), 10))
	params.AddMetadata("job_id", strconv.FormatUint(uint64(booking.JobID), 10))
	// same booking and amount yields the same intent when the request is retried
	params.SetIdempotencyKey(uuid.NewSHA1(uuid.NameSpaceOID,
		[]byte(fmt.Sprintf("choraid-booking-%d-%d", booking.ID, booking.Amount))).String())

	pi, err := s.intents.New(params)
	if err != nil {
		log.Printf("❌ Stripe payment intent failed for booking %d: %v", booking.ID, err)
		return nil, fmt.Errorf("create payment intent: %v: %w", err, ErrUpstream)
	}

	res := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND status <> ? AND payment_status <> ?", booking.ID, models.BookingStatusCancelled, models.PaymentPaid).
		Updates(map[string]interface{}{
			"payment_intent_id": pi.ID,
			"payment_status":    models.PaymentProcessing,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("store payment intent: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("booking %d changed while creating the payment: %w", booking.ID, ErrInvalidState)
	}

	log.Printf("💳 Payment intent %s created for booking %d", pi.ID, booking.ID)
	return &PaymentIntentResult{
		BookingID:       booking.ID,
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		Amount:          booking.Amount,
		Currency:        booking.Currency,
	}, nil
}

func payable(b *models.Booking) error {
	if b.Status == models.BookingStatusCancelled {
		return fmt.Errorf("booking %d is cancelled: %w", b.ID, ErrInvalidState)
	}
	if b.PaymentStatus == models.PaymentPaid || b.PaymentStatus == models.PaymentRefunded {
		return fmt.Errorf("booking %d is already %s: %w", b.ID, b.PaymentStatus, ErrInvalidState)
	}
	return nil
}

// HandleWebhook verifies a Stripe webhook payload and applies it
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.webhookSecret == "" {
		return fmt.Errorf("webhook secret not configured: %w", ErrDisabled)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("invalid webhook: %v: %w", err, ErrValidation)
	}

	switch string(event.Type) {
	case stripeEventSucceeded, stripeEventFailed:
	default:
		log.Printf("🔍 Ignoring Stripe event %s (%s)", event.ID, event.Type)
		return nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("decode payment intent: %v: %w", err, ErrValidation)
	}
	return s.ApplyPaymentEvent(ctx, event.ID, string(event.Type), &pi)
}

// ApplyPaymentEvent records the outcome of a payment intent on its booking.
// Each event id is applied once; redeliveries are ignored.
func (s *PaymentService) ApplyPaymentEvent(ctx context.Context, eventID, eventType string, pi *stripe.PaymentIntent) error {
	bookingID, err := s.bookingForIntent(ctx, pi)
	if err != nil {
		return err
	}

	var booking models.Booking
	var staged []*models.Notification
	applied := false

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seen int64
		if err := tx.Model(&models.PaymentEvent{}).Where("id = ?", eventID).Count(&seen).Error; err != nil {
			return err
		}
		if seen > 0 {
			return nil
		}
		if err := tx.Create(&models.PaymentEvent{
			ID:          eventID,
			Type:        eventType,
			BookingID:   bookingID,
			ProcessedAt: time.Now(),
		}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil
			}
			return err
		}

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Worker").Preload("Job").
			First(&booking, bookingID).Error; err != nil {
			return wrapNotFound(err, "booking", bookingID)
		}
		if pi.Amount != 0 && pi.Amount != booking.Amount {
			log.Printf("⚠️ Payment intent %s amount %d differs from booking %d amount %d", pi.ID, pi.Amount, booking.ID, booking.Amount)
		}

		title := fmt.Sprintf("booking #%d", booking.ID)
		if booking.Job != nil {
			title = fmt.Sprintf("\"%s\"", booking.Job.Title)
		}

		switch eventType {
		case stripeEventSucceeded:
			if booking.PaymentStatus == models.PaymentPaid {
				return nil
			}
			updates := map[string]interface{}{
				"payment_status":    models.PaymentPaid,
				"paid_at":           time.Now(),
				"payment_intent_id": pi.ID,
			}
			// payment never moves a booking backwards
			if booking.Status == models.BookingStatusPending {
				updates["status"] = models.BookingStatusConfirmed
			}
			if err := tx.Model(&booking).Updates(updates).Error; err != nil {
				return err
			}
			if booking.Status == models.BookingStatusCancelled {
				// a cancelled booking pays no one; the client is told a refund is due
				log.Printf("⚠️ Payment intent %s succeeded for cancelled booking %d, needs a refund", pi.ID, booking.ID)
				n, err := s.notifier.Stage(tx, booking.ClientID, models.NotificationPaymentReceived,
					"Payment received for a cancelled booking", fmt.Sprintf("Your payment of %s for %s arrived after the booking was cancelled. It will be refunded.", formatAmount(booking.Amount, booking.Currency), title),
					map[string]any{"bookingId": booking.ID, "jobId": booking.JobID, "needsRefund": true})
				if err != nil {
					return err
				}
				staged = append(staged, n)
				break
			}
			if err := recordActivity(tx, booking.WorkerID, models.ActivityPaymentReceived, &booking.JobID, &booking.ID,
				fmt.Sprintf("Client paid %s", formatAmount(booking.Amount, booking.Currency)),
				map[string]any{"paymentIntentId": pi.ID, "payout": booking.WorkerPayout}); err != nil {
				return err
			}
			if booking.Worker != nil {
				n, err := s.notifier.Stage(tx, booking.Worker.ProfileID, models.NotificationPaymentReceived,
					"Payment received", fmt.Sprintf("The client paid for %s. Your payout is %s.", title, formatAmount(booking.WorkerPayout, booking.Currency)),
					map[string]any{"bookingId": booking.ID, "jobId": booking.JobID})
				if err != nil {
					return err
				}
				staged = append(staged, n)
			}

		case stripeEventFailed:
			if booking.PaymentStatus == models.PaymentPaid {
				return nil
			}
			if err := tx.Model(&booking).Update("payment_status", models.PaymentFailed).Error; err != nil {
				return err
			}
			n, err := s.notifier.Stage(tx, booking.ClientID, models.NotificationPaymentFailed,
				"Payment failed", fmt.Sprintf("Your payment for %s did not go through.", title),
				map[string]any{"bookingId": booking.ID, "jobId": booking.JobID})
			if err != nil {
				return err
			}
			staged = append(staged, n)
		}
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		log.Printf("🔍 Stripe event %s already applied", eventID)
		return nil
	}

	s.notifier.Deliver(staged...)
	data := map[string]any{
		"bookingId":       booking.ID,
		"paymentIntentId": pi.ID,
		"amount":          booking.Amount,
		"currency":        booking.Currency,
	}
	if eventType == stripeEventSucceeded {
		publish(ctx, s.events, EventPaymentSucceeded, data)
		log.Printf("💳 Booking %d paid", booking.ID)
	} else {
		publish(ctx, s.events, EventPaymentFailed, data)
		log.Printf("💳 Payment failed for booking %d", booking.ID)
	}
	return nil
}

// bookingForIntent resolves the booking from intent metadata, falling back to the stored intent id
func (s *PaymentService) bookingForIntent(ctx context.Context, pi *stripe.PaymentIntent) (uint, error) {
	if raw, ok := pi.Metadata["booking_id"]; ok {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return 0, fmt.Errorf("bad booking_id metadata %q: %w", raw, ErrValidation)
		}
		return uint(id), nil
	}

	var booking models.Booking
	if err := s.db.WithContext(ctx).Where("payment_intent_id = ?", pi.ID).First(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("no booking for payment intent %s: %w", pi.ID, ErrNotFound)
		}
		return 0, err
	}
	return booking.ID, nil
}
