package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"choraid-server/models"
	"choraid-server/utils"
)

// WorkerFilter narrows worker searches
type WorkerFilter struct {
	CategoryID   uint
	Skill        string
	MinRating    float64
	VerifiedOnly bool
	Available    *bool
	City         string
	Lat          *float64
	Lng          *float64
	RadiusKm     float64
	Page         int
	Limit        int
}

// WorkerListItem is a worker with its distance from the searched point
type WorkerListItem struct {
	models.Worker
	DistanceKm *float64 `json:"distanceKm,omitempty"`
}

// VerificationFiles are the images submitted for identity verification
type VerificationFiles struct {
	IDDocument   *multipart.FileHeader
	ProfilePhoto *multipart.FileHeader
}

// maxWorkerScan bounds how many rows a search filters in memory
const maxWorkerScan = 500

// WorkerService manages worker profiles, search and verification uploads
type WorkerService struct {
	db       *gorm.DB
	uploader MediaUploader
}

func NewWorkerService(db *gorm.DB, uploader MediaUploader) *WorkerService {
	return &WorkerService{db: db, uploader: uploader}
}

// UpsertMine creates or updates the caller's worker profile
func (s *WorkerService) UpsertMine(ctx context.Context, actor *models.Profile, req models.WorkerProfileRequest) (*models.Worker, bool, error) {
	if actor == nil || !actor.IsWorker() {
		return nil, false, ErrNotWorker
	}
	if (req.Lat == nil) != (req.Lng == nil) {
		return nil, false, fmt.Errorf("lat and lng must be given together: %w", ErrValidation)
	}

	var category models.Category
	if err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", req.CategoryID, true).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("category %d does not exist: %w", req.CategoryID, ErrValidation)
		}
		return nil, false, err
	}

	skills := make([]string, 0, len(req.Skills))
	for _, sk := range req.Skills {
		if sk = strings.TrimSpace(sk); sk != "" {
			skills = append(skills, sk)
		}
	}

	var worker models.Worker
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("profile_id = ?", actor.ID).First(&worker).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			worker = models.Worker{
				ProfileID:          actor.ID,
				CategoryID:         category.ID,
				Bio:                strings.TrimSpace(req.Bio),
				Skills:             skills,
				HourlyRate:         req.HourlyRate,
				City:               strings.TrimSpace(req.City),
				Address:            strings.TrimSpace(req.Address),
				Lat:                req.Lat,
				Lng:                req.Lng,
				IsAvailable:        true,
				VerificationStatus: models.VerificationUnverified,
			}
			if req.Lat != nil {
				worker.LastLocationUpdate = timePtr(time.Now())
			}
			created = true
			return tx.Create(&worker).Error
		case err != nil:
			return err
		}

		updates := map[string]interface{}{
			"category_id": category.ID,
			"bio":         strings.TrimSpace(req.Bio),
			"skills":      datatypes.JSONSlice[string](skills),
			"hourly_rate": req.HourlyRate,
			"city":        strings.TrimSpace(req.City),
			"address":     strings.TrimSpace(req.Address),
		}
		if req.Lat != nil {
			updates["lat"] = *req.Lat
			updates["lng"] = *req.Lng
			updates["last_location_update"] = time.Now()
		}
		return tx.Model(&worker).Updates(updates).Error
	})
	if err != nil {
		return nil, false, fmt.Errorf("save worker profile: %w", err)
	}

	worker.Category = category
	if created {
		log.Printf("✅ Worker profile %d created for profile %d", worker.ID, actor.ID)
	}
	return &worker, created, nil
}

// Get loads a worker with profile and category
func (s *WorkerService) Get(ctx context.Context, id uint) (*models.Worker, error) {
	var worker models.Worker
	if err := s.db.WithContext(ctx).Preload("Profile").Preload("Category").First(&worker, id).Error; err != nil {
		return nil, wrapNotFound(err, "worker", id)
	}
	return &worker, nil
}

// GetMine returns the caller's worker profile
func (s *WorkerService) GetMine(ctx context.Context, actor *models.Profile) (*models.Worker, error) {
	worker, err := requireWorker(s.db.WithContext(ctx), actor)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, worker.ID)
}

// List searches workers. Results are sorted by rating, then by distance when a point is given.
func (s *WorkerService) List(ctx context.Context, f WorkerFilter) ([]WorkerListItem, int64, error) {
	_, limit, offset := pageParams(f.Page, f.Limit, 100)

	q := s.db.WithContext(ctx).Model(&models.Worker{}).Preload("Profile").Preload("Category")
	if f.CategoryID != 0 {
		q = q.Where("category_id = ?", f.CategoryID)
	}
	if f.MinRating > 0 {
		q = q.Where("rating >= ?", f.MinRating)
	}
	if f.VerifiedOnly {
		q = q.Where("is_verified = ?", true)
	}
	if f.Available != nil {
		q = q.Where("is_available = ?", *f.Available)
	}
	if f.City != "" {
		q = q.Where("LOWER(city) = ?", strings.ToLower(f.City))
	}

	center := utils.NewLocation(f.Lat, f.Lng)
	radius := f.RadiusKm
	if center != nil {
		if !utils.IsLocationValid(center.Latitude, center.Longitude) {
			return nil, 0, fmt.Errorf("invalid coordinates: %w", ErrValidation)
		}
		if radius == 0 {
			radius = utils.GetDefaultSearchRadius()
		}
		if !utils.ValidateSearchRadius(radius) {
			return nil, 0, fmt.Errorf("radius must be in (0, %.0f] km: %w", utils.GetMaxSearchRadius(), ErrValidation)
		}
		minLat, maxLat, minLng, maxLng := utils.BoundingBox(*center, radius)
		q = q.Where("lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?", minLat, maxLat, minLng, maxLng)
	}

	var workers []models.Worker
	if err := q.Order("rating DESC, id ASC").Limit(maxWorkerScan).Find(&workers).Error; err != nil {
		return nil, 0, err
	}

	items := make([]WorkerListItem, 0, len(workers))
	for _, w := range workers {
		if f.Skill != "" && !w.HasSkill(f.Skill) {
			continue
		}
		item := WorkerListItem{Worker: w}
		if center != nil {
			d, ok := utils.DistanceKm(center, utils.NewLocation(w.Lat, w.Lng))
			if !ok || d > radius {
				continue
			}
			item.DistanceKm = &d
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Rating != items[j].Rating {
			return items[i].Rating > items[j].Rating
		}
		if items[i].DistanceKm != nil && items[j].DistanceKm != nil {
			return *items[i].DistanceKm < *items[j].DistanceKm
		}
		return false
	})

	total := int64(len(items))
	if offset >= len(items) {
		return []WorkerListItem{}, total, nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end], total, nil
}

// SetAvailability toggles whether the caller accepts new work
func (s *WorkerService) SetAvailability(ctx context.Context, actor *models.Profile, available bool) (*models.Worker, error) {
	worker, err := requireWorker(s.db.WithContext(ctx), actor)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(worker).Update("is_available", available).Error; err != nil {
		return nil, err
	}
	log.Printf("✅ Worker %d availability set to %v", worker.ID, available)
	return worker, nil
}

// UpdateLocation stores the caller's current coordinates
func (s *WorkerService) UpdateLocation(ctx context.Context, actor *models.Profile, lat, lng float64) (*models.Worker, error) {
	if !utils.IsLocationValid(lat, lng) {
		return nil, fmt.Errorf("invalid coordinates: %w", ErrValidation)
	}
	worker, err := requireWorker(s.db.WithContext(ctx), actor)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(worker).Updates(map[string]interface{}{
		"lat":                  lat,
		"lng":                  lng,
		"last_location_update": time.Now(),
	}).Error; err != nil {
		return nil, err
	}
	return worker, nil
}

// SubmitVerification uploads identity images and marks the worker pending review
func (s *WorkerService) SubmitVerification(ctx context.Context, actor *models.Profile, files VerificationFiles) (*models.Worker, error) {
	if s.uploader == nil {
		return nil, fmt.Errorf("media uploads are not configured: %w", ErrDisabled)
	}
	worker, err := requireWorker(s.db.WithContext(ctx), actor)
	if err != nil {
		return nil, err
	}
	if worker.VerificationStatus == models.VerificationVerified {
		return nil, fmt.Errorf("worker %d is already verified: %w", worker.ID, ErrConflict)
	}
	if err := ValidateImageFile(files.IDDocument); err != nil {
		return nil, err
	}
	if files.ProfilePhoto != nil {
		if err := ValidateImageFile(files.ProfilePhoto); err != nil {
			return nil, err
		}
	}

	folder := fmt.Sprintf("workers/%d", worker.ID)
	idURL, err := s.upload(ctx, files.IDDocument, folder+"/id_documents")
	if err != nil {
		return nil, err
	}
	var photoURL string
	if files.ProfilePhoto != nil {
		if photoURL, err = s.upload(ctx, files.ProfilePhoto, folder+"/profile_photos"); err != nil {
			return nil, err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"verification_status": models.VerificationPending,
			"id_document_url":     idURL,
			"verification_note":   "",
		}
		if photoURL != "" {
			updates["profile_photo_url"] = photoURL
		}
		if err := tx.Model(worker).Updates(updates).Error; err != nil {
			return err
		}
		return recordActivity(tx, worker.ID, models.ActivityVerificationSubmitted, nil, nil,
			"Verification documents submitted", map[string]any{"profilePhoto": photoURL != ""})
	})
	if err != nil {
		return nil, fmt.Errorf("save verification: %w", err)
	}

	log.Printf("✅ Worker %d submitted verification documents", worker.ID)
	return worker, nil
}

func (s *WorkerService) upload(ctx context.Context, h *multipart.FileHeader, folder string) (string, error) {
	file, err := h.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", h.Filename, err)
	}
	defer file.Close()

	return s.uploader.UploadImage(ctx, file, folder, publicIDFor(h.Filename))
}

// publicIDFor reduces an uploaded file name to a safe public id
func publicIDFor(name string) string {
	base := name
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		base = "upload"
	}
	return base
}

// Activity returns the caller's activity trail, newest first
func (s *WorkerService) Activity(ctx context.Context, actor *models.Profile, kind models.ActivityType, page, limit int) ([]models.WorkerActivity, int64, error) {
	worker, err := requireWorker(s.db.WithContext(ctx), actor)
	if err != nil {
		return nil, 0, err
	}
	_, limit, offset := pageParams(page, limit, 100)

	q := s.db.WithContext(ctx).Model(&models.WorkerActivity{}).Where("worker_id = ?", worker.ID)
	if kind != "" {
		q = q.Where("type = ?", kind)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var activities []models.WorkerActivity
	if err := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&activities).Error; err != nil {
		return nil, 0, err
	}
	return activities, total, nil
}
