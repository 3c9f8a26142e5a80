package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"choraid-server/config"
	"choraid-server/database"
	"choraid-server/models"
)

type pushedNotification struct {
	ProfileID uint
	Type      models.NotificationType
}

type recordingPusher struct {
	mu     sync.Mutex
	pushed []pushedNotification
}

func (p *recordingPusher) PushNotification(profileID uint, n *models.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, pushedNotification{ProfileID: profileID, Type: n.Type})
}

func (p *recordingPusher) count(profileID uint, kind models.NotificationType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, x := range p.pushed {
		if x.ProfileID == profileID && x.Type == kind {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range p.keys {
		if k == key {
			return true
		}
	}
	return false
}

type fixture struct {
	db       *gorm.DB
	pusher   *recordingPusher
	events   *recordingPublisher
	notifier *NotificationService
	opts     MarketplaceOptions
	category models.Category

	jobs         *JobService
	applications *ApplicationService
	bookings     *BookingService
	reviews      *ReviewService

	seq int
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", URL: ":memory:", LogLevel: "silent"})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{
		db:     db,
		pusher: &recordingPusher{},
		events: &recordingPublisher{},
		opts:   MarketplaceOptions{CommissionRate: 0.10, Currency: "usd"},
	}
	f.notifier = NewNotificationService(db, f.pusher)
	f.jobs = NewJobService(db, f.notifier, f.events, f.opts)
	f.applications = NewApplicationService(db, f.notifier, f.events, f.opts)
	f.bookings = NewBookingService(db, f.notifier, f.events, f.opts)
	f.reviews = NewReviewService(db, f.notifier, f.events)

	f.category = models.Category{Name: "Plumbing", Slug: "plumbing", IsActive: true}
	if err := db.Create(&f.category).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}
	return f
}

func (f *fixture) profile(t *testing.T, name string, role models.Role) *models.Profile {
	t.Helper()
	f.seq++
	p := &models.Profile{
		FullName: name,
		Email:    fmt.Sprintf("user%d@example.com", f.seq),
		Role:     role,
		IsActive: true,
	}
	if err := f.db.Create(p).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return p
}

func (f *fixture) worker(t *testing.T, name string) (*models.Profile, *models.Worker) {
	t.Helper()
	p := f.profile(t, name, models.RoleWorker)
	w := &models.Worker{
		ProfileID:          p.ID,
		CategoryID:         f.category.ID,
		Skills:             []string{"pipes", "leaks"},
		HourlyRate:         3000,
		IsAvailable:        true,
		VerificationStatus: models.VerificationUnverified,
	}
	if err := f.db.Create(w).Error; err != nil {
		t.Fatalf("create worker: %v", err)
	}
	return p, w
}

func (f *fixture) openJob(t *testing.T, client *models.Profile) *models.Job {
	t.Helper()
	job, err := f.jobs.Create(context.Background(), client, models.JobCreate{
		Title:      "Fix kitchen sink",
		CategoryID: f.category.ID,
		BudgetMin:  5000,
		BudgetMax:  15000,
		City:       "Lisbon",
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func (f *fixture) apply(t *testing.T, worker *models.Profile, job *models.Job, amount int64) *models.Application {
	t.Helper()
	app, err := f.applications.Apply(context.Background(), worker, models.ApplicationCreate{JobID: job.ID, ProposedAmount: amount})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	return app
}

// hired returns a pending booking for a fresh job between client and worker
func (f *fixture) hired(t *testing.T, client, worker *models.Profile, amount int64) *models.Booking {
	t.Helper()
	job := f.openJob(t, client)
	app := f.apply(t, worker, job, amount)
	booking, err := f.applications.Accept(context.Background(), client, app.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return booking
}

func (f *fixture) reload(t *testing.T, dest any, id uint) {
	t.Helper()
	if err := f.db.First(dest, id).Error; err != nil {
		t.Fatalf("reload %T %d: %v", dest, id, err)
	}
}

func fastJWT(db *gorm.DB) *JWTService {
	js := NewJWTService(db, config.JWTConfig{Secret: "test-secret", ExpiryHours: 1, RefreshDays: 1})
	js.cost = bcrypt.MinCost
	return js
}
