package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"choraid-server/models"
)

// PeriodStats are a worker's counters over one window
type PeriodStats struct {
	ApplicationsSent int64 `json:"applicationsSent"`
	JobsCompleted    int64 `json:"jobsCompleted"`
	Earnings         int64 `json:"earnings"`
}

// WorkerPerformanceSummary is computed from applications, bookings and reviews
type WorkerPerformanceSummary struct {
	WorkerID     uint   `json:"workerId"`
	WorkerName   string `json:"workerName"`
	CategoryName string `json:"categoryName"`

	Today     PeriodStats `json:"today"`
	ThisMonth PeriodStats `json:"thisMonth"`
	Lifetime  PeriodStats `json:"lifetime"`

	AcceptanceRate float64 `json:"acceptanceRate"`
	CompletionRate float64 `json:"completionRate"`
	AverageRating  float64 `json:"averageRating"`
	TotalReviews   int     `json:"totalReviews"`
	EarningsRank   int     `json:"earningsRank"`
	RatingRank     int     `json:"ratingRank"`
	StreakDays     int     `json:"streakDays"`
}

// LeaderboardEntry is one row of a category leaderboard
type LeaderboardEntry struct {
	Rank          int     `json:"rank"`
	WorkerID      uint    `json:"workerId"`
	FullName      string  `json:"fullName"`
	Rating        float64 `json:"rating"`
	CompletedJobs int     `json:"completedJobs"`
	TotalEarnings int64   `json:"totalEarnings"`
	IsVerified    bool    `json:"isVerified"`
}

// WorkerAnalyticsService derives performance numbers for workers
type WorkerAnalyticsService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewWorkerAnalyticsService(db *gorm.DB) *WorkerAnalyticsService {
	return &WorkerAnalyticsService{db: db, now: time.Now}
}

// Summary returns the caller's performance summary
func (s *WorkerAnalyticsService) Summary(ctx context.Context, actor *models.Profile) (*WorkerPerformanceSummary, error) {
	worker, err := requireWorker(s.db.WithContext(ctx), actor)
	if err != nil {
		return nil, err
	}
	return s.summaryFor(ctx, worker.ID)
}

func (s *WorkerAnalyticsService) summaryFor(ctx context.Context, workerID uint) (*WorkerPerformanceSummary, error) {
	db := s.db.WithContext(ctx)

	var worker models.Worker
	if err := db.Preload("Profile").Preload("Category").First(&worker, workerID).Error; err != nil {
		return nil, wrapNotFound(err, "worker", workerID)
	}

	summary := &WorkerPerformanceSummary{
		WorkerID:      worker.ID,
		WorkerName:    worker.Profile.FullName,
		CategoryName:  worker.Category.Name,
		AverageRating: worker.Rating,
		TotalReviews:  worker.TotalReviews,
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var err error
	if summary.Today, err = s.period(db, worker.ID, today); err != nil {
		return nil, err
	}
	if summary.ThisMonth, err = s.period(db, worker.ID, monthStart); err != nil {
		return nil, err
	}
	if summary.Lifetime, err = s.period(db, worker.ID, time.Time{}); err != nil {
		return nil, err
	}

	var accepted, decided int64
	if err := db.Model(&models.Application{}).
		Where("worker_id = ? AND status IN ?", worker.ID, []models.ApplicationStatus{models.ApplicationAccepted, models.ApplicationRejected}).
		Count(&decided).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Application{}).
		Where("worker_id = ? AND status = ?", worker.ID, models.ApplicationAccepted).
		Count(&accepted).Error; err != nil {
		return nil, err
	}
	summary.AcceptanceRate = percent(accepted, decided)

	var completed, closed int64
	if err := db.Model(&models.Booking{}).
		Where("worker_id = ? AND status IN ?", worker.ID, []models.BookingStatus{models.BookingStatusCompleted, models.BookingStatusCancelled}).
		Count(&closed).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Booking{}).
		Where("worker_id = ? AND status = ?", worker.ID, models.BookingStatusCompleted).
		Count(&completed).Error; err != nil {
		return nil, err
	}
	summary.CompletionRate = percent(completed, closed)

	if summary.EarningsRank, err = s.rank(db, &worker, "total_earnings", worker.TotalEarnings); err != nil {
		return nil, err
	}
	if summary.RatingRank, err = s.rank(db, &worker, "rating", worker.Rating); err != nil {
		return nil, err
	}
	if summary.StreakDays, err = s.streak(db, worker.ID, today); err != nil {
		return nil, err
	}
	return summary, nil
}

// period counts activity since from; the zero time means lifetime
func (s *WorkerAnalyticsService) period(db *gorm.DB, workerID uint, from time.Time) (PeriodStats, error) {
	var out PeriodStats

	apps := db.Model(&models.Application{}).Where("worker_id = ?", workerID)
	if !from.IsZero() {
		apps = apps.Where("created_at >= ?", from)
	}
	if err := apps.Count(&out.ApplicationsSent).Error; err != nil {
		return out, fmt.Errorf("count applications: %w", err)
	}

	var done struct {
		Jobs     int64
		Earnings int64
	}
	q := db.Model(&models.Booking{}).
		Select("COUNT(*) AS jobs, COALESCE(SUM(worker_payout), 0) AS earnings").
		Where("worker_id = ? AND status = ?", workerID, models.BookingStatusCompleted)
	if !from.IsZero() {
		q = q.Where("completed_at >= ?", from)
	}
	if err := q.Scan(&done).Error; err != nil {
		return out, fmt.Errorf("sum bookings: %w", err)
	}
	out.JobsCompleted = done.Jobs
	out.Earnings = done.Earnings
	return out, nil
}

// rank is 1 + the number of workers in the same category strictly ahead on column
func (s *WorkerAnalyticsService) rank(db *gorm.DB, worker *models.Worker, column string, value any) (int, error) {
	var ahead int64
	if err := db.Model(&models.Worker{}).
		Where("category_id = ? AND "+column+" > ?", worker.CategoryID, value).
		Count(&ahead).Error; err != nil {
		return 0, err
	}
	return int(ahead) + 1, nil
}

// streak counts consecutive days, ending today or yesterday, with a completed booking
func (s *WorkerAnalyticsService) streak(db *gorm.DB, workerID uint, today time.Time) (int, error) {
	var stamps []time.Time
	if err := db.Model(&models.Booking{}).
		Where("worker_id = ? AND status = ? AND completed_at >= ?", workerID, models.BookingStatusCompleted, today.AddDate(0, 0, -90)).
		Order("completed_at DESC").
		Pluck("completed_at", &stamps).Error; err != nil {
		return 0, err
	}

	days := make(map[time.Time]bool, len(stamps))
	for _, t := range stamps {
		t = t.In(today.Location())
		days[time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, today.Location())] = true
	}

	day := today
	if !days[day] {
		day = day.AddDate(0, 0, -1)
	}
	streak := 0
	for days[day] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak, nil
}

// Leaderboard returns the top earners of a category
func (s *WorkerAnalyticsService) Leaderboard(ctx context.Context, categoryID uint, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	query := s.db.WithContext(ctx).Preload("Profile")
	if categoryID != 0 {
		query = query.Where("category_id = ?", categoryID)
	}
	var workers []models.Worker
	if err := query.
		Order("total_earnings DESC, rating DESC, id ASC").
		Limit(limit).
		Find(&workers).Error; err != nil {
		return nil, err
	}

	board := make([]LeaderboardEntry, 0, len(workers))
	for i, w := range workers {
		board = append(board, LeaderboardEntry{
			Rank:          i + 1,
			WorkerID:      w.ID,
			FullName:      w.Profile.FullName,
			Rating:        w.Rating,
			CompletedJobs: w.CompletedJobs,
			TotalEarnings: w.TotalEarnings,
			IsVerified:    w.IsVerified,
		})
	}
	return board, nil
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*1000) / 10
}
