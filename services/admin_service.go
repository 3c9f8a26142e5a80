package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"choraid-server/models"
)

// VerifyRequest is an admin's decision on a worker's verification
type VerifyRequest struct {
	Approve *bool  `json:"approve" binding:"required"`
	Note    string `json:"note" binding:"max=1000"`
}

type ActiveRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

// PlatformStats summarizes marketplace activity for admins
type PlatformStats struct {
	ProfilesByRole   map[string]int64 `json:"profilesByRole"`
	JobsByStatus     map[string]int64 `json:"jobsByStatus"`
	BookingsByStatus map[string]int64 `json:"bookingsByStatus"`
	WorkersByStatus  map[string]int64 `json:"workersByVerification"`
	GrossVolume      int64            `json:"grossVolume"`
	CommissionEarned int64            `json:"commissionEarned"`
	PaidBookings     int64            `json:"paidBookings"`
	AverageRating    float64          `json:"averageRating"`
	GeneratedAt      time.Time        `json:"generatedAt"`
}

// AdminService backs the admin endpoints
type AdminService struct {
	db       *gorm.DB
	notifier *NotificationService
}

func NewAdminService(db *gorm.DB, notifier *NotificationService) *AdminService {
	return &AdminService{db: db, notifier: notifier}
}

// ListWorkers returns workers, optionally filtered by verification status
func (s *AdminService) ListWorkers(ctx context.Context, status models.VerificationStatus, page, limit int) ([]models.Worker, int64, error) {
	_, limit, offset := pageParams(page, limit, 100)

	q := s.db.WithContext(ctx).Model(&models.Worker{})
	if status != "" {
		q = q.Where("verification_status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var workers []models.Worker
	if err := q.Preload("Profile").Preload("Category").
		Order("updated_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&workers).Error; err != nil {
		return nil, 0, err
	}
	return workers, total, nil
}

// VerifyWorker approves or rejects a worker's verification
func (s *AdminService) VerifyWorker(ctx context.Context, admin *models.Profile, workerID uint, approve bool, note string) (*models.Worker, error) {
	if admin == nil || !admin.IsAdmin() {
		return nil, ErrForbidden
	}
	note = strings.TrimSpace(note)
	if !approve && note == "" {
		return nil, fmt.Errorf("a note is required when rejecting: %w", ErrValidation)
	}

	var worker models.Worker
	var staged []*models.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&worker, workerID).Error; err != nil {
			return wrapNotFound(err, "worker", workerID)
		}

		status := models.VerificationRejected
		updates := map[string]interface{}{
			"verification_note": note,
		}
		if approve {
			status = models.VerificationVerified
			updates["is_verified"] = true
			updates["verified_at"] = time.Now()
		} else {
			updates["is_verified"] = false
			updates["verified_at"] = nil
		}
		updates["verification_status"] = status
		if err := tx.Model(&worker).Updates(updates).Error; err != nil {
			return err
		}

		if err := recordActivity(tx, worker.ID, models.ActivityProfileVerified, nil, nil,
			fmt.Sprintf("Verification %s", status), map[string]any{"approved": approve, "adminId": admin.ID, "note": note}); err != nil {
			return err
		}

		title, body := "Profile verified", "Your worker profile has been verified."
		if !approve {
			title, body = "Verification rejected", "Your verification was rejected: "+note
		}
		n, err := s.notifier.Stage(tx, worker.ProfileID, models.NotificationVerification, title, body,
			map[string]any{"workerId": worker.ID, "status": status})
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
	log.Printf("✅ Worker %d verification set to %s by admin %d", worker.ID, worker.VerificationStatus, admin.ID)
	return &worker, nil
}

// SetProfileActive activates or deactivates a profile. Deactivation revokes its refresh tokens.
func (s *AdminService) SetProfileActive(ctx context.Context, admin *models.Profile, profileID uint, active bool) (*models.Profile, error) {
	if admin == nil || !admin.IsAdmin() {
		return nil, ErrForbidden
	}
	if admin.ID == profileID && !active {
		return nil, fmt.Errorf("admins cannot deactivate themselves: %w", ErrValidation)
	}

	var profile models.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&profile, profileID).Error; err != nil {
			return wrapNotFound(err, "profile", profileID)
		}
		if err := tx.Model(&profile).Update("is_active", active).Error; err != nil {
			return err
		}
		if !active {
			if err := tx.Model(&models.RefreshToken{}).
				Where("profile_id = ? AND is_revoked = ?", profileID, false).
				Update("is_revoked", true).Error; err != nil {
				return err
			}
			// a deactivated worker should not be offered new jobs
			if err := tx.Model(&models.Worker{}).Where("profile_id = ?", profileID).
				Update("is_available", false).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Profile %d active=%v (admin %d)", profile.ID, active, admin.ID)
	return &profile, nil
}

type groupCount struct {
	Name  string
	Total int64
}

func (s *AdminService) countBy(ctx context.Context, model any, column string) (map[string]int64, error) {
	var rows []groupCount
	if err := s.db.WithContext(ctx).Model(model).
		Select(column + " AS name, COUNT(*) AS total").
		Group(column).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Name] = r.Total
	}
	return out, nil
}

// Stats aggregates platform counters and paid booking volume
func (s *AdminService) Stats(ctx context.Context) (*PlatformStats, error) {
	stats := &PlatformStats{GeneratedAt: time.Now().UTC()}
	var err error

	if stats.ProfilesByRole, err = s.countBy(ctx, &models.Profile{}, "role"); err != nil {
		return nil, err
	}
	if stats.JobsByStatus, err = s.countBy(ctx, &models.Job{}, "status"); err != nil {
		return nil, err
	}
	if stats.BookingsByStatus, err = s.countBy(ctx, &models.Booking{}, "status"); err != nil {
		return nil, err
	}
	if stats.WorkersByStatus, err = s.countBy(ctx, &models.Worker{}, "verification_status"); err != nil {
		return nil, err
	}

	var volume struct {
		Gross      int64
		Commission int64
		Paid       int64
	}
	if err := s.db.WithContext(ctx).Model(&models.Booking{}).
		Select("COALESCE(SUM(amount), 0) AS gross, COALESCE(SUM(commission), 0) AS commission, COUNT(*) AS paid").
		Where("payment_status = ?", models.PaymentPaid).
		Scan(&volume).Error; err != nil {
		return nil, err
	}
	stats.GrossVolume = volume.Gross
	stats.CommissionEarned = volume.Commission
	stats.PaidBookings = volume.Paid

	var avg struct{ Average float64 }
	if err := s.db.WithContext(ctx).Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS average").
		Scan(&avg).Error; err != nil {
		return nil, err
	}
	stats.AverageRating = avg.Average
	return stats, nil
}
