package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"choraid-server/models"
)

// BookingService drives a booking from hire to completion
type BookingService struct {
	db       *gorm.DB
	notifier *NotificationService
	events   EventPublisher
	opts     MarketplaceOptions
}

func NewBookingService(db *gorm.DB, notifier *NotificationService, events EventPublisher, opts MarketplaceOptions) *BookingService {
	return &BookingService{db: db, notifier: notifier, events: events, opts: opts}
}

// HireRequest is the body for hiring a matched worker directly
type HireRequest struct {
	WorkerID uint  `json:"workerId" binding:"required"`
	Amount   int64 `json:"amount" binding:"required,gt=0"`
}

// CancelRequest carries an optional cancellation reason
type CancelRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// createBookingTx creates a pending booking for worker on job and assigns
// the job. It must run inside a transaction that holds the job lock.
func createBookingTx(tx *gorm.DB, notifier *NotificationService, opts MarketplaceOptions, job *models.Job, worker *models.Worker, amount int64, applicationID *uint) (*models.Booking, []*models.Notification, error) {
	if amount <= 0 {
		return nil, nil, fmt.Errorf("booking amount must be positive: %w", ErrValidation)
	}

	var active int64
	if err := tx.Model(&models.Booking{}).
		Where("job_id = ? AND status NOT IN ?", job.ID, []models.BookingStatus{models.BookingStatusCompleted, models.BookingStatusCancelled}).
		Count(&active).Error; err != nil {
		return nil, nil, err
	}
	if active > 0 {
		return nil, nil, fmt.Errorf("job %d already has an active booking: %w", job.ID, ErrConflict)
	}

	commission, payout := CalculateCommission(amount, opts.CommissionRate)
	booking := &models.Booking{
		JobID:          job.ID,
		WorkerID:       worker.ID,
		ClientID:       job.ClientID,
		ApplicationID:  applicationID,
		Amount:         amount,
		CommissionRate: opts.CommissionRate,
		Commission:     commission,
		WorkerPayout:   payout,
		Currency:       job.Currency,
		Status:         models.BookingStatusPending,
		PaymentStatus:  models.PaymentUnpaid,
	}
	if err := tx.Create(booking).Error; err != nil {
		return nil, nil, fmt.Errorf("create booking: %w", err)
	}

	if err := tx.Model(job).Updates(map[string]interface{}{
		"status":             models.JobStatusAssigned,
		"assigned_worker_id": worker.ID,
	}).Error; err != nil {
		return nil, nil, fmt.Errorf("assign job: %w", err)
	}

	if err := recordActivity(tx, worker.ID, models.ActivityBookingCreated, &job.ID, &booking.ID,
		fmt.Sprintf("Booked for \"%s\"", job.Title),
		map[string]any{"amount": amount, "commission": commission, "payout": payout}); err != nil {
		return nil, nil, err
	}

	n, err := notifier.Stage(tx, worker.ProfileID, models.NotificationBookingCreated,
		"New booking", fmt.Sprintf("You were booked for \"%s\" at %s.", job.Title, formatAmount(amount, booking.Currency)),
		map[string]any{"jobId": job.ID, "bookingId": booking.ID})
	if err != nil {
		return nil, nil, err
	}
	return booking, []*models.Notification{n}, nil
}

func publishBookingCreated(ctx context.Context, pub EventPublisher, b *models.Booking) {
	publish(ctx, pub, EventBookingCreated, map[string]any{
		"bookingId":  b.ID,
		"jobId":      b.JobID,
		"workerId":   b.WorkerID,
		"clientId":   b.ClientID,
		"amount":     b.Amount,
		"commission": b.Commission,
		"currency":   b.Currency,
	})
}

// Hire books a worker for an open job without an application. A pending
// application of the same worker is accepted and linked to the booking.
func (s *BookingService) Hire(ctx context.Context, actor *models.Profile, jobID uint, in HireRequest) (*models.Booking, error) {
	var booking *models.Booking
	var staged []*models.Notification

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, jobID).Error; err != nil {
			return wrapNotFound(err, "job", jobID)
		}
		if job.ClientID != actor.ID && !actor.IsAdmin() {
			return fmt.Errorf("job %d belongs to another client: %w", jobID, ErrForbidden)
		}
		if job.Status != models.JobStatusOpen {
			return fmt.Errorf("job %d is %s: %w", jobID, job.Status, ErrInvalidState)
		}
		if in.Amount < job.BudgetMin || in.Amount > job.BudgetMax {
			return fmt.Errorf("amount %d outside budget %d..%d: %w", in.Amount, job.BudgetMin, job.BudgetMax, ErrValidation)
		}

		var worker models.Worker
		if err := tx.First(&worker, in.WorkerID).Error; err != nil {
			return wrapNotFound(err, "worker", in.WorkerID)
		}
		if worker.ProfileID == job.ClientID {
			return fmt.Errorf("cannot hire yourself: %w", ErrForbidden)
		}
		if !worker.IsAvailable {
			return fmt.Errorf("worker %d is not available: %w", worker.ID, ErrInvalidState)
		}

		var applicationID *uint
		var own models.Application
		err := tx.Where("job_id = ? AND worker_id = ? AND status = ?", job.ID, worker.ID, models.ApplicationPending).
			First(&own).Error
		switch {
		case err == nil:
			if err := tx.Model(&own).Update("status", models.ApplicationAccepted).Error; err != nil {
				return err
			}
			applicationID = uintPtr(own.ID)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		rejected, err := rejectPendingApplications(tx, job.ID, 0)
		if err != nil {
			return err
		}
		for _, other := range rejected {
			if other.Worker == nil {
				continue
			}
			n, err := s.notifier.Stage(tx, other.Worker.ProfileID, models.NotificationApplicationRejected,
				"Position filled", fmt.Sprintf("\"%s\" was assigned to another worker.", job.Title),
				map[string]any{"jobId": job.ID, "applicationId": other.ID})
			if err != nil {
				return err
			}
			staged = append(staged, n)
		}

		var notes []*models.Notification
		booking, notes, err = createBookingTx(tx, s.notifier, s.opts, &job, &worker, in.Amount, applicationID)
		if err != nil {
			return err
		}
		staged = append(staged, notes...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Deliver(staged...)
	publishBookingCreated(ctx, s.events, booking)
	log.Printf("✅ Worker %d hired for job %d (booking %d)", booking.WorkerID, booking.JobID, booking.ID)
	return booking, nil
}

// List returns the caller's bookings; admins see all of them
func (s *BookingService) List(ctx context.Context, actor *models.Profile, status models.BookingStatus, page, limit int) ([]models.Booking, int64, error) {
	_, limit, offset := pageParams(page, limit, 100)

	q := s.db.WithContext(ctx).Model(&models.Booking{})
	switch {
	case actor.IsAdmin():
	case actor.IsWorker():
		worker, err := workerByProfile(s.db.WithContext(ctx), actor.ID)
		if err != nil {
			return nil, 0, err
		}
		q = q.Where("worker_id = ?", worker.ID)
	default:
		q = q.Where("client_id = ?", actor.ID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var bookings []models.Booking
	if err := q.Preload("Job").
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&bookings).Error; err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// Get returns a booking to one of its participants
func (s *BookingService) Get(ctx context.Context, actor *models.Profile, id uint) (*models.Booking, error) {
	var booking models.Booking
	if err := s.db.WithContext(ctx).
		Preload("Job").
		Preload("Worker").
		Preload("Worker.Profile").
		First(&booking, id).Error; err != nil {
		return nil, wrapNotFound(err, "booking", id)
	}
	if !s.isParticipant(actor, &booking) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrForbidden)
	}
	return &booking, nil
}

func (s *BookingService) isParticipant(actor *models.Profile, b *models.Booking) bool {
	if actor.IsAdmin() || b.ClientID == actor.ID {
		return true
	}
	return b.Worker != nil && b.Worker.ProfileID == actor.ID
}

// lockBooking locks the booking and its job, in job-then-booking order
func (s *BookingService) lockBooking(tx *gorm.DB, id uint) (*models.Booking, *models.Job, error) {
	var jobID uint
	if err := tx.Model(&models.Booking{}).Where("id = ?", id).Pluck("job_id", &jobID).Error; err != nil {
		return nil, nil, err
	}
	if jobID == 0 {
		return nil, nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}

	var job models.Job
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, jobID).Error; err != nil {
		return nil, nil, wrapNotFound(err, "job", jobID)
	}
	var booking models.Booking
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Worker").First(&booking, id).Error; err != nil {
		return nil, nil, wrapNotFound(err, "booking", id)
	}
	return &booking, &job, nil
}

// Start moves a pending or confirmed booking to in_progress. Only the assigned worker may start.
func (s *BookingService) Start(ctx context.Context, actor *models.Profile, id uint) (*models.Booking, error) {
	var booking *models.Booking
	var staged []*models.Notification

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, job, err := s.lockBooking(tx, id)
		if err != nil {
			return err
		}
		booking = b
		if b.Worker == nil || b.Worker.ProfileID != actor.ID {
			return fmt.Errorf("only the assigned worker can start booking %d: %w", id, ErrForbidden)
		}
		if b.Status != models.BookingStatusPending && b.Status != models.BookingStatusConfirmed {
			return fmt.Errorf("booking %d is %s: %w", id, b.Status, ErrInvalidState)
		}

		now := time.Now()
		if err := tx.Model(b).Updates(map[string]interface{}{
			"status":     models.BookingStatusInProgress,
			"started_at": now,
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(job).Update("status", models.JobStatusInProgress).Error; err != nil {
			return err
		}
		if err := recordActivity(tx, b.WorkerID, models.ActivityBookingStarted, &job.ID, &b.ID,
			fmt.Sprintf("Started \"%s\"", job.Title), nil); err != nil {
			return err
		}

		n, err := s.notifier.Stage(tx, b.ClientID, models.NotificationBookingStarted,
			"Work started", fmt.Sprintf("Work on \"%s\" has started.", job.Title),
			map[string]any{"jobId": job.ID, "bookingId": b.ID})
		if err != nil {
			return err
		}
		staged = append(staged, n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Deliver(staged...)
	log.Printf("✅ Booking %d started", booking.ID)
	return booking, nil
}

// Complete marks the booking and its job completed and credits the worker.
// Either participant may complete.
func (s *BookingService) Complete(ctx context.Context, actor *models.Profile, id uint) (*models.Booking, error) {
	var booking *models.Booking
	var staged []*models.Notification

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, job, err := s.lockBooking(tx, id)
		if err != nil {
			return err
		}
		booking = b
		if !s.isParticipant(actor, b) {
			return fmt.Errorf("booking %d: %w", id, ErrForbidden)
		}
		if !b.IsActive() {
			return fmt.Errorf("booking %d is %s: %w", id, b.Status, ErrInvalidState)
		}

		now := time.Now()
		if err := tx.Model(b).Updates(map[string]interface{}{
			"status":       models.BookingStatusCompleted,
			"completed_at": now,
		}).Error; err != nil {
			return fmt.Errorf("complete booking: %w", err)
		}
		if err := tx.Model(job).Updates(map[string]interface{}{
			"status":       models.JobStatusCompleted,
			"completed_at": now,
		}).Error; err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
		if err := tx.Model(&models.Worker{}).Where("id = ?", b.WorkerID).Updates(map[string]interface{}{
			"completed_jobs": gorm.Expr("completed_jobs + ?", 1),
			"total_earnings": gorm.Expr("total_earnings + ?", b.WorkerPayout),
		}).Error; err != nil {
			return fmt.Errorf("credit worker: %w", err)
		}
		if err := recordActivity(tx, b.WorkerID, models.ActivityBookingCompleted, &job.ID, &b.ID,
			fmt.Sprintf("Completed \"%s\"", job.Title),
			map[string]any{"amount": b.Amount, "payout": b.WorkerPayout}); err != nil {
			return err
		}

		// tell whoever did not trigger the completion
		recipient := b.ClientID
		body := fmt.Sprintf("\"%s\" was marked completed by the worker.", job.Title)
		if actor.ID == b.ClientID && b.Worker != nil {
			recipient = b.Worker.ProfileID
			body = fmt.Sprintf("\"%s\" was marked completed by the client.", job.Title)
		}
		n, err := s.notifier.Stage(tx, recipient, models.NotificationBookingCompleted,
			"Booking completed", body, map[string]any{"jobId": job.ID, "bookingId": b.ID})
		if err != nil {
			return err
		}
		staged = append(staged, n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Deliver(staged...)
	publish(ctx, s.events, EventBookingCompleted, map[string]any{
		"bookingId": booking.ID,
		"jobId":     booking.JobID,
		"workerId":  booking.WorkerID,
		"payout":    booking.WorkerPayout,
	})
	log.Printf("✅ Booking %d completed", booking.ID)
	return booking, nil
}

// Cancel cancels a pending or confirmed booking and reopens its job
func (s *BookingService) Cancel(ctx context.Context, actor *models.Profile, id uint, reason string) (*models.Booking, error) {
	var booking *models.Booking
	var staged []*models.Notification
	reason = strings.TrimSpace(reason)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, job, err := s.lockBooking(tx, id)
		if err != nil {
			return err
		}
		booking = b
		if !s.isParticipant(actor, b) {
			return fmt.Errorf("booking %d: %w", id, ErrForbidden)
		}
		if b.Status != models.BookingStatusPending && b.Status != models.BookingStatusConfirmed {
			return fmt.Errorf("booking %d is %s: %w", id, b.Status, ErrInvalidState)
		}

		now := time.Now()
		if err := tx.Model(b).Updates(map[string]interface{}{
			"status":        models.BookingStatusCancelled,
			"cancelled_at":  now,
			"cancel_reason": reason,
		}).Error; err != nil {
			return fmt.Errorf("cancel booking: %w", err)
		}
		if err := tx.Model(job).Updates(map[string]interface{}{
			"status":             models.JobStatusOpen,
			"assigned_worker_id": nil,
		}).Error; err != nil {
			return fmt.Errorf("reopen job: %w", err)
		}
		if b.ApplicationID != nil {
			if err := tx.Model(&models.Application{}).Where("id = ?", *b.ApplicationID).
				Update("status", models.ApplicationWithdrawn).Error; err != nil {
				return err
			}
		}
		if err := recordActivity(tx, b.WorkerID, models.ActivityBookingCancelled, &job.ID, &b.ID,
			fmt.Sprintf("Booking for \"%s\" cancelled", job.Title), map[string]any{"reason": reason}); err != nil {
			return err
		}

		recipient := b.ClientID
		if actor.ID == b.ClientID && b.Worker != nil {
			recipient = b.Worker.ProfileID
		}
		n, err := s.notifier.Stage(tx, recipient, models.NotificationBookingCancelled,
			"Booking cancelled", fmt.Sprintf("The booking for \"%s\" was cancelled.", job.Title),
			map[string]any{"jobId": job.ID, "bookingId": b.ID, "reason": reason})
		if err != nil {
			return err
		}
		staged = append(staged, n)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Deliver(staged...)
	publish(ctx, s.events, EventBookingCancelled, map[string]any{
		"bookingId": booking.ID,
		"jobId":     booking.JobID,
		"reason":    reason,
	})
	log.Printf("✅ Booking %d cancelled", booking.ID)
	return booking, nil
}
