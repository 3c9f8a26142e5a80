package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"choraid-server/models"
)

// MarketplaceOptions holds the business settings shared by the marketplace services
type MarketplaceOptions struct {
	CommissionRate float64
	Currency       string
	JobTTL         time.Duration
}

func (o MarketplaceOptions) currency() string {
	if o.Currency == "" {
		return "usd"
	}
	return strings.ToLower(o.Currency)
}

// CalculateCommission splits amount into the platform commission and the worker payout
func CalculateCommission(amount int64, rate float64) (commission, payout int64) {
	if amount <= 0 || rate <= 0 {
		return 0, amount
	}
	commission = int64(math.Round(float64(amount) * rate))
	if commission > amount {
		commission = amount
	}
	return commission, amount - commission
}

// recordActivity appends an audit row for a worker inside tx
func recordActivity(tx *gorm.DB, workerID uint, kind models.ActivityType, jobID, bookingID *uint, description string, meta map[string]any) error {
	var raw datatypes.JSON
	if meta != nil {
		b, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		raw = datatypes.JSON(b)
	}
	activity := models.WorkerActivity{
		WorkerID:    workerID,
		Type:        kind,
		JobID:       jobID,
		BookingID:   bookingID,
		Description: description,
		Metadata:    raw,
	}
	if err := tx.Create(&activity).Error; err != nil {
		return fmt.Errorf("record %s activity: %w", kind, err)
	}
	return nil
}

// workerByProfile loads the worker profile owned by profileID
func workerByProfile(tx *gorm.DB, profileID uint) (*models.Worker, error) {
	var worker models.Worker
	if err := tx.Where("profile_id = ?", profileID).First(&worker).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("worker profile: %w", ErrNotWorker)
		}
		return nil, err
	}
	return &worker, nil
}

// requireWorker checks the caller is a worker with a worker profile
func requireWorker(tx *gorm.DB, actor *models.Profile) (*models.Worker, error) {
	if actor == nil || !actor.IsWorker() {
		return nil, ErrNotWorker
	}
	return workerByProfile(tx, actor.ID)
}

// wrapNotFound turns gorm.ErrRecordNotFound into ErrNotFound
func wrapNotFound(err error, what string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return err
}

func uintPtr(v uint) *uint {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// pageParams clamps pagination input
func pageParams(page, limit, maxLimit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxLimit {
		limit = 20
		if limit > maxLimit {
			limit = maxLimit
		}
	}
	return page, limit, (page - 1) * limit
}

// formatAmount renders cents as a decimal amount for notification text
func formatAmount(amount int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(amount)/100, strings.ToUpper(currency))
}
