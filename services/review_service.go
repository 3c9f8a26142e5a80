package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"gorm.io/gorm"

	"choraid-server/models"
)

// ReviewService records client reviews and keeps worker ratings current
type ReviewService struct {
	db       *gorm.DB
	notifier *NotificationService
	events   EventPublisher
}

func NewReviewService(db *gorm.DB, notifier *NotificationService, events EventPublisher) *ReviewService {
	return &ReviewService{db: db, notifier: notifier, events: events}
}

// Create stores the client's review of a completed booking and recomputes
// the worker's average rating in the same transaction.
func (s *ReviewService) Create(ctx context.Context, actor *models.Profile, in models.ReviewCreate) (*models.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, fmt.Errorf("rating must be between 1 and 5: %w", ErrValidation)
	}

	var review models.Review
	var staged []*models.Notification

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var booking models.Booking
		if err := tx.Preload("Job").Preload("Worker").First(&booking, in.BookingID).Error; err != nil {
			return wrapNotFound(err, "booking", in.BookingID)
		}
		if booking.ClientID != actor.ID {
			return fmt.Errorf("only the client can review booking %d: %w", booking.ID, ErrForbidden)
		}
		if booking.Status != models.BookingStatusCompleted {
			return fmt.Errorf("booking %d is %s: %w", booking.ID, booking.Status, ErrInvalidState)
		}

		var existing int64
		if err := tx.Model(&models.Review{}).Where("booking_id = ?", booking.ID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("booking %d already reviewed: %w", booking.ID, ErrConflict)
		}

		review = models.Review{
			BookingID: booking.ID,
			JobID:     booking.JobID,
			WorkerID:  booking.WorkerID,
			ClientID:  actor.ID,
			Rating:    in.Rating,
			Comment:   strings.TrimSpace(in.Comment),
		}
		if err := tx.Create(&review).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("booking %d already reviewed: %w", booking.ID, ErrConflict)
			}
			return fmt.Errorf("create review: %w", err)
		}

		if err := refreshWorkerRating(tx, booking.WorkerID); err != nil {
			return err
		}
		if err := recordActivity(tx, booking.WorkerID, models.ActivityReviewReceived, &booking.JobID, &booking.ID,
			fmt.Sprintf("Received a %d-star review", in.Rating), map[string]any{"reviewId": review.ID, "rating": in.Rating}); err != nil {
			return err
		}

		if booking.Worker != nil {
			title := "New review"
			if booking.Job != nil {
				title = fmt.Sprintf("New review for \"%s\"", booking.Job.Title)
			}
			n, err := s.notifier.Stage(tx, booking.Worker.ProfileID, models.NotificationReviewReceived,
				title, fmt.Sprintf("%s rated you %d/5.", actor.FullName, in.Rating),
				map[string]any{"bookingId": booking.ID, "reviewId": review.ID, "rating": in.Rating})
			if err != nil {
				return err
			}
			staged = append(staged, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Deliver(staged...)
	publish(ctx, s.events, EventReviewCreated, map[string]any{
		"reviewId":  review.ID,
		"bookingId": review.BookingID,
		"workerId":  review.WorkerID,
		"rating":    review.Rating,
	})
	log.Printf("✅ Review %d created for worker %d", review.ID, review.WorkerID)
	return &review, nil
}

// refreshWorkerRating recomputes a worker's average rating and review count
func refreshWorkerRating(tx *gorm.DB, workerID uint) error {
	var stats struct {
		Average float64
		Total   int64
	}
	if err := tx.Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS total").
		Where("worker_id = ?", workerID).
		Scan(&stats).Error; err != nil {
		return fmt.Errorf("aggregate reviews: %w", err)
	}

	if err := tx.Model(&models.Worker{}).
		Where("id = ?", workerID).
		Updates(map[string]interface{}{
			"rating":        math.Round(stats.Average*100) / 100,
			"total_reviews": stats.Total,
		}).Error; err != nil {
		return fmt.Errorf("update worker rating: %w", err)
	}
	return nil
}

// ListForWorker returns a page of a worker's reviews with the rating summary
func (s *ReviewService) ListForWorker(ctx context.Context, workerID uint, page, limit int) ([]models.Review, *models.ReviewSummary, error) {
	var worker models.Worker
	if err := s.db.WithContext(ctx).First(&worker, workerID).Error; err != nil {
		return nil, nil, wrapNotFound(err, "worker", workerID)
	}

	_, limit, offset := pageParams(page, limit, 50)
	var reviews []models.Review
	if err := s.db.WithContext(ctx).
		Preload("Client").
		Where("worker_id = ?", workerID).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&reviews).Error; err != nil {
		return nil, nil, err
	}

	summary, err := s.Summary(ctx, workerID)
	if err != nil {
		return nil, nil, err
	}
	return reviews, summary, nil
}

// Summary aggregates a worker's ratings into average, total and per-star counts
func (s *ReviewService) Summary(ctx context.Context, workerID uint) (*models.ReviewSummary, error) {
	var rows []struct {
		Rating int
		Count  int
	}
	if err := s.db.WithContext(ctx).Model(&models.Review{}).
		Select("rating, COUNT(*) AS count").
		Where("worker_id = ?", workerID).
		Group("rating").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	summary := &models.ReviewSummary{
		WorkerID:     workerID,
		Distribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
	}
	var sum int
	for _, r := range rows {
		summary.Distribution[r.Rating] = r.Count
		summary.Total += int64(r.Count)
		sum += r.Rating * r.Count
	}
	if summary.Total > 0 {
		summary.Average = math.Round(float64(sum)/float64(summary.Total)*100) / 100
	}
	return summary, nil
}
