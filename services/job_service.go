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

// JobService manages the job lifecycle on the client side
type JobService struct {
	db       *gorm.DB
	notifier *NotificationService
	events   EventPublisher
	opts     MarketplaceOptions
}

func NewJobService(db *gorm.DB, notifier *NotificationService, events EventPublisher, opts MarketplaceOptions) *JobService {
	return &JobService{db: db, notifier: notifier, events: events, opts: opts}
}

// Create posts a new open job for a client
func (s *JobService) Create(ctx context.Context, actor *models.Profile, in models.JobCreate) (*models.Job, error) {
	if actor == nil || !(actor.IsClient() || actor.IsAdmin()) {
		return nil, ErrNotClient
	}
	if in.BudgetMin <= 0 || in.BudgetMax < in.BudgetMin {
		return nil, fmt.Errorf("budget range %d..%d: %w", in.BudgetMin, in.BudgetMax, ErrValidation)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("title is required: %w", ErrValidation)
	}

	var category models.Category
	if err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", in.CategoryID, true).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("category %d does not exist: %w", in.CategoryID, ErrValidation)
		}
		return nil, err
	}

	job := &models.Job{
		ClientID:    actor.ID,
		CategoryID:  category.ID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		BudgetMin:   in.BudgetMin,
		BudgetMax:   in.BudgetMax,
		Currency:    s.opts.currency(),
		Address:     in.Address,
		City:        strings.TrimSpace(in.City),
		Lat:         in.Lat,
		Lng:         in.Lng,
		Status:      models.JobStatusOpen,
		ScheduledAt: in.ScheduledAt,
	}
	if s.opts.JobTTL > 0 {
		job.ExpiresAt = timePtr(time.Now().Add(s.opts.JobTTL))
	}

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	job.Category = category

	log.Printf("✅ Job %d created by client %d", job.ID, actor.ID)
	publish(ctx, s.events, EventJobCreated, map[string]any{
		"jobId":      job.ID,
		"clientId":   job.ClientID,
		"title":      job.Title,
		"city":       job.City,
		"categoryId": job.CategoryID,
		"budgetMin":  job.BudgetMin,
		"budgetMax":  job.BudgetMax,
	})
	return job, nil
}

// Get loads a job with its category, client and application count
func (s *JobService) Get(ctx context.Context, id uint) (*models.Job, int64, error) {
	var job models.Job
	if err := s.db.WithContext(ctx).
		Preload("Category").
		Preload("Client").
		Preload("AssignedWorker").
		First(&job, id).Error; err != nil {
		return nil, 0, wrapNotFound(err, "job", id)
	}

	var applications int64
	if err := s.db.WithContext(ctx).Model(&models.Application{}).
		Where("job_id = ?", id).Count(&applications).Error; err != nil {
		return nil, 0, err
	}
	return &job, applications, nil
}

// List returns jobs matching filter, newest first
func (s *JobService) List(ctx context.Context, filter models.JobFilter) ([]models.Job, int64, error) {
	_, limit, offset := pageParams(filter.Page, filter.Limit, 100)

	q := s.db.WithContext(ctx).Model(&models.Job{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.CategoryID != 0 {
		q = q.Where("category_id = ?", filter.CategoryID)
	}
	if filter.City != "" {
		q = q.Where("LOWER(city) = ?", strings.ToLower(filter.City))
	}
	// budget filters match jobs whose range overlaps the requested one
	if filter.MinBudget > 0 {
		q = q.Where("budget_max >= ?", filter.MinBudget)
	}
	if filter.MaxBudget > 0 {
		q = q.Where("budget_min <= ?", filter.MaxBudget)
	}
	if filter.ClientID != 0 {
		q = q.Where("client_id = ?", filter.ClientID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []models.Job
	if err := q.Preload("Category").
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// Cancel cancels an open or assigned job owned by the caller
func (s *JobService) Cancel(ctx context.Context, actor *models.Profile, id uint) (*models.Job, error) {
	var job models.Job
	var staged []*models.Notification

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, id).Error; err != nil {
			return wrapNotFound(err, "job", id)
		}
		if job.ClientID != actor.ID && !actor.IsAdmin() {
			return fmt.Errorf("job %d belongs to another client: %w", id, ErrForbidden)
		}
		if job.IsTerminal() {
			return fmt.Errorf("job %d is already %s: %w", id, job.Status, ErrInvalidState)
		}
		if job.Status == models.JobStatusInProgress {
			return fmt.Errorf("work on job %d has started: %w", id, ErrInvalidState)
		}

		now := time.Now()
		if job.Status == models.JobStatusAssigned {
			n, err := s.cancelActiveBooking(tx, &job, "job cancelled by client", now)
			if err != nil {
				return err
			}
			staged = append(staged, n...)
		}

		rejected, err := rejectPendingApplications(tx, job.ID, 0)
		if err != nil {
			return err
		}
		for _, app := range rejected {
			if app.Worker == nil {
				continue
			}
			n, err := s.notifier.Stage(tx, app.Worker.ProfileID, models.NotificationJobCancelled,
				"Job cancelled", fmt.Sprintf("The job \"%s\" you applied to was cancelled.", job.Title),
				map[string]any{"jobId": job.ID, "applicationId": app.ID})
			if err != nil {
				return err
			}
			staged = append(staged, n)
		}

		if err := tx.Model(&job).Updates(map[string]interface{}{
			"status":             models.JobStatusCancelled,
			"cancelled_at":       now,
			"assigned_worker_id": nil,
		}).Error; err != nil {
			return fmt.Errorf("cancel job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Deliver(staged...)
	publish(ctx, s.events, EventJobCancelled, map[string]any{"jobId": job.ID, "clientId": job.ClientID})
	log.Printf("✅ Job %d cancelled by profile %d", job.ID, actor.ID)
	return &job, nil
}

// cancelActiveBooking cancels the pending or confirmed booking of an assigned job
func (s *JobService) cancelActiveBooking(tx *gorm.DB, job *models.Job, reason string, now time.Time) ([]*models.Notification, error) {
	var booking models.Booking
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Worker").
		Where("job_id = ? AND status IN ?", job.ID, []models.BookingStatus{
			models.BookingStatusPending, models.BookingStatusConfirmed, models.BookingStatusInProgress,
		}).
		First(&booking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingStatusInProgress {
		return nil, fmt.Errorf("booking %d is in progress: %w", booking.ID, ErrInvalidState)
	}

	if err := tx.Model(&booking).Updates(map[string]interface{}{
		"status":        models.BookingStatusCancelled,
		"cancelled_at":  now,
		"cancel_reason": reason,
	}).Error; err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}
	if err := recordActivity(tx, booking.WorkerID, models.ActivityBookingCancelled, &job.ID, &booking.ID,
		reason, map[string]any{"amount": booking.Amount}); err != nil {
		return nil, err
	}

	if booking.Worker == nil {
		return nil, nil
	}
	n, err := s.notifier.Stage(tx, booking.Worker.ProfileID, models.NotificationBookingCancelled,
		"Booking cancelled", fmt.Sprintf("The client cancelled \"%s\".", job.Title),
		map[string]any{"jobId": job.ID, "bookingId": booking.ID})
	if err != nil {
		return nil, err
	}
	return []*models.Notification{n}, nil
}

// ExpireStale cancels open jobs whose expiry has passed and returns how many were expired
func (s *JobService) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.JobStatusOpen, now).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("find expired jobs: %w", err)
	}

	expired := 0
	for _, id := range ids {
		ok, err := s.expireOne(ctx, id, now)
		if err != nil {
			log.Printf("❌ Failed to expire job %d: %v", id, err)
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

func (s *JobService) expireOne(ctx context.Context, id uint, now time.Time) (bool, error) {
	var job models.Job
	var staged []*models.Notification
	expired := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, id).Error; err != nil {
			return err
		}
		// another request may have assigned it since the scan
		if job.Status != models.JobStatusOpen {
			return nil
		}

		rejected, err := rejectPendingApplications(tx, job.ID, 0)
		if err != nil {
			return err
		}
		if err := tx.Model(&job).Updates(map[string]interface{}{
			"status":       models.JobStatusCancelled,
			"cancelled_at": now,
		}).Error; err != nil {
			return err
		}

		n, err := s.notifier.Stage(tx, job.ClientID, models.NotificationJobExpired,
			"Job expired", fmt.Sprintf("\"%s\" expired without a hire and was closed.", job.Title),
			map[string]any{"jobId": job.ID, "rejectedApplications": len(rejected)})
		if err != nil {
			return err
		}
		staged = append(staged, n)
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}

	s.notifier.Deliver(staged...)
	if expired {
		log.Printf("⏰ Job %d expired", id)
	}
	return expired, nil
}
