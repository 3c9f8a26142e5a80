package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"choraid-server/models"
)

// ApplicationService handles worker applications to open jobs
type ApplicationService struct {
	db       *gorm.DB
	notifier *NotificationService
	events   EventPublisher
	opts     MarketplaceOptions
}

func NewApplicationService(db *gorm.DB, notifier *NotificationService, events EventPublisher, opts MarketplaceOptions) *ApplicationService {
	return &ApplicationService{db: db, notifier: notifier, events: events, opts: opts}
}

// Apply submits the caller's application to an open job.
// Only workers may apply, and only once per job.
func (s *ApplicationService) Apply(ctx context.Context, actor *models.Profile, in models.ApplicationCreate) (*models.Application, error) {
	if in.ProposedAmount <= 0 {
		return nil, fmt.Errorf("proposed amount must be positive: %w", ErrValidation)
	}

	var app models.Application
	var job models.Job
	var staged []*models.Notification

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		worker, err := requireWorker(tx, actor)
		if err != nil {
			return err
		}

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, in.JobID).Error; err != nil {
			return wrapNotFound(err, "job", in.JobID)
		}
		if job.Status != models.JobStatusOpen {
			return fmt.Errorf("job %d is %s: %w", job.ID, job.Status, ErrInvalidState)
		}
		if job.ClientID == actor.ID {
			return fmt.Errorf("cannot apply to your own job: %w", ErrForbidden)
		}

		var existing int64
		if err := tx.Model(&models.Application{}).
			Where("job_id = ? AND worker_id = ?", job.ID, worker.ID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("already applied to job %d: %w", job.ID, ErrConflict)
		}

		app = models.Application{
			JobID:          job.ID,
			WorkerID:       worker.ID,
			ProposedAmount: in.ProposedAmount,
			Message:        strings.TrimSpace(in.Message),
			Status:         models.ApplicationPending,
		}
		if err := tx.Create(&app).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("already applied to job %d: %w", job.ID, ErrConflict)
			}
			return fmt.Errorf("create application: %w", err)
		}

		if err := recordActivity(tx, worker.ID, models.ActivityApplicationSubmitted, &job.ID, nil,
			fmt.Sprintf("Applied to \"%s\"", job.Title),
			map[string]any{"applicationId": app.ID, "proposedAmount": app.ProposedAmount}); err != nil {
			return err
		}

		n, err := s.notifier.Stage(tx, job.ClientID, models.NotificationApplicationReceived,
			"New application",
			fmt.Sprintf("%s applied to \"%s\" for %s.", actor.FullName, job.Title, formatAmount(app.ProposedAmount, job.Currency)),
			map[string]any{"jobId": job.ID, "applicationId": app.ID, "workerId": worker.ID})
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
	publish(ctx, s.events, EventApplicationCreated, map[string]any{
		"applicationId":  app.ID,
		"jobId":          app.JobID,
		"workerId":       app.WorkerID,
		"proposedAmount": app.ProposedAmount,
	})
	log.Printf("✅ Worker %d applied to job %d", app.WorkerID, app.JobID)
	return &app, nil
}

// ListForJob returns the applications of a job to its owner
func (s *ApplicationService) ListForJob(ctx context.Context, actor *models.Profile, jobID uint) ([]models.Application, error) {
	var job models.Job
	if err := s.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		return nil, wrapNotFound(err, "job", jobID)
	}
	if job.ClientID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("job %d belongs to another client: %w", jobID, ErrForbidden)
	}

	var apps []models.Application
	if err := s.db.WithContext(ctx).
		Preload("Worker").
		Preload("Worker.Profile").
		Where("job_id = ?", jobID).
		Order("created_at ASC, id ASC").
		Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

// ListMine returns the caller's own applications, optionally filtered by status
func (s *ApplicationService) ListMine(ctx context.Context, actor *models.Profile, status models.ApplicationStatus) ([]models.Application, error) {
	worker, err := requireWorker(s.db.WithContext(ctx), actor)
	if err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Preload("Job").Where("worker_id = ?", worker.ID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var apps []models.Application
	if err := q.Order("created_at DESC, id DESC").Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

// Withdraw lets a worker pull back a pending application
func (s *ApplicationService) Withdraw(ctx context.Context, actor *models.Profile, id uint) (*models.Application, error) {
	var app models.Application
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		worker, err := requireWorker(tx, actor)
		if err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&app, id).Error; err != nil {
			return wrapNotFound(err, "application", id)
		}
		if app.WorkerID != worker.ID {
			return fmt.Errorf("application %d belongs to another worker: %w", id, ErrForbidden)
		}
		if app.Status != models.ApplicationPending {
			return fmt.Errorf("application %d is %s: %w", id, app.Status, ErrInvalidState)
		}
		if err := tx.Model(&app).Update("status", models.ApplicationWithdrawn).Error; err != nil {
			return err
		}
		return recordActivity(tx, worker.ID, models.ActivityApplicationWithdrawn, &app.JobID, nil,
			"Application withdrawn", map[string]any{"applicationId": app.ID})
	})
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// Reject lets the job owner decline a pending application
func (s *ApplicationService) Reject(ctx context.Context, actor *models.Profile, id uint) (*models.Application, error) {
	var app models.Application
	var staged []*models.Notification

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := s.lockApplicationAndJob(tx, actor, id, &app)
		if err != nil {
			return err
		}
		if app.Status != models.ApplicationPending {
			return fmt.Errorf("application %d is %s: %w", id, app.Status, ErrInvalidState)
		}
		if err := tx.Model(&app).Update("status", models.ApplicationRejected).Error; err != nil {
			return err
		}
		if err := recordActivity(tx, app.WorkerID, models.ActivityApplicationRejected, &job.ID, nil,
			fmt.Sprintf("Application to \"%s\" rejected", job.Title), map[string]any{"applicationId": app.ID}); err != nil {
			return err
		}
		n, err := s.notifier.Stage(tx, app.Worker.ProfileID, models.NotificationApplicationRejected,
			"Application declined", fmt.Sprintf("Your application to \"%s\" was declined.", job.Title),
			map[string]any{"jobId": job.ID, "applicationId": app.ID})
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
	return &app, nil
}

// Accept hires the applicant: the application is accepted, every other
// pending application on the job is rejected, a booking is created at the
// proposed amount and the job becomes assigned, all in one transaction.
func (s *ApplicationService) Accept(ctx context.Context, actor *models.Profile, id uint) (*models.Booking, error) {
	var app models.Application
	var booking *models.Booking
	var staged []*models.Notification

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := s.lockApplicationAndJob(tx, actor, id, &app)
		if err != nil {
			return err
		}
		if job.Status != models.JobStatusOpen {
			return fmt.Errorf("job %d is %s: %w", job.ID, job.Status, ErrInvalidState)
		}
		if app.Status != models.ApplicationPending {
			return fmt.Errorf("application %d is %s: %w", id, app.Status, ErrInvalidState)
		}

		if err := tx.Model(&app).Update("status", models.ApplicationAccepted).Error; err != nil {
			return err
		}
		if err := recordActivity(tx, app.WorkerID, models.ActivityApplicationAccepted, &job.ID, nil,
			fmt.Sprintf("Application to \"%s\" accepted", job.Title), map[string]any{"applicationId": app.ID}); err != nil {
			return err
		}

		rejected, err := rejectPendingApplications(tx, job.ID, app.ID)
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
		booking, notes, err = createBookingTx(tx, s.notifier, s.opts, job, app.Worker, app.ProposedAmount, &app.ID)
		if err != nil {
			return err
		}
		staged = append(staged, notes...)

		n, err := s.notifier.Stage(tx, app.Worker.ProfileID, models.NotificationApplicationAccepted,
			"You're hired", fmt.Sprintf("Your application to \"%s\" was accepted.", job.Title),
			map[string]any{"jobId": job.ID, "applicationId": app.ID, "bookingId": booking.ID})
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
	publishBookingCreated(ctx, s.events, booking)
	log.Printf("✅ Application %d accepted, booking %d created", app.ID, booking.ID)
	return booking, nil
}

// lockApplicationAndJob loads the application, then locks the job before the
// application so the lock order matches Apply. The actor must own the job.
func (s *ApplicationService) lockApplicationAndJob(tx *gorm.DB, actor *models.Profile, id uint, app *models.Application) (*models.Job, error) {
	var jobID uint
	if err := tx.Model(&models.Application{}).Where("id = ?", id).Pluck("job_id", &jobID).Error; err != nil {
		return nil, err
	}
	if jobID == 0 {
		return nil, fmt.Errorf("application %d: %w", id, ErrNotFound)
	}

	var job models.Job
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, jobID).Error; err != nil {
		return nil, wrapNotFound(err, "job", jobID)
	}
	if job.ClientID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("job %d belongs to another client: %w", job.ID, ErrForbidden)
	}
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Worker").First(app, id).Error; err != nil {
		return nil, wrapNotFound(err, "application", id)
	}
	if app.Worker == nil {
		return nil, fmt.Errorf("application %d has no worker: %w", id, ErrNotFound)
	}
	return &job, nil
}

// rejectPendingApplications rejects every pending application of a job except
// exceptID and returns the rejected rows with their workers loaded.
func rejectPendingApplications(tx *gorm.DB, jobID, exceptID uint) ([]models.Application, error) {
	q := tx.Preload("Worker").Where("job_id = ? AND status = ?", jobID, models.ApplicationPending)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	var apps []models.Application
	if err := q.Find(&apps).Error; err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(apps))
	for _, a := range apps {
		ids = append(ids, a.ID)
	}
	if err := tx.Model(&models.Application{}).Where("id IN ?", ids).
		Update("status", models.ApplicationRejected).Error; err != nil {
		return nil, fmt.Errorf("reject applications: %w", err)
	}

	for i := range apps {
		apps[i].Status = models.ApplicationRejected
		if err := recordActivity(tx, apps[i].WorkerID, models.ActivityApplicationRejected, &jobID, nil,
			"Application closed", map[string]any{"applicationId": apps[i].ID}); err != nil {
			return nil, err
		}
	}
	return apps, nil
}
