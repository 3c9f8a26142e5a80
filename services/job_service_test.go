package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"choraid-server/models"
)

func TestCreateJob(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, _ := f.worker(t, "Will Worker")

	tests := []struct {
		name  string
		actor *models.Profile
		in    models.JobCreate
		want  error
	}{
		{"worker cannot post", worker, models.JobCreate{Title: "Paint", CategoryID: f.category.ID, BudgetMin: 100, BudgetMax: 200}, ErrNotClient},
		{"inverted budget", client, models.JobCreate{Title: "Paint", CategoryID: f.category.ID, BudgetMin: 300, BudgetMax: 200}, ErrValidation},
		{"unknown category", client, models.JobCreate{Title: "Paint", CategoryID: 999, BudgetMin: 100, BudgetMax: 200}, ErrValidation},
		{"blank title", client, models.JobCreate{Title: "   ", CategoryID: f.category.ID, BudgetMin: 100, BudgetMax: 200}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.jobs.Create(context.Background(), tt.actor, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	job := f.openJob(t, client)
	if job.Status != models.JobStatusOpen || job.Currency != "usd" || job.ClientID != client.ID {
		t.Fatalf("unexpected job %+v", job)
	}
	if !f.events.has(EventJobCreated) {
		t.Fatal("missing job.created event")
	}
}

func TestListJobsFilters(t *testing.T) {
	f := newFixture(t)
	alice := f.profile(t, "Alice", models.RoleClient)
	bob := f.profile(t, "Bob", models.RoleClient)
	f.openJob(t, alice)
	f.openJob(t, alice)
	cancelled := f.openJob(t, bob)
	if _, err := f.jobs.Cancel(context.Background(), bob, cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	jobs, total, err := f.jobs.List(context.Background(), models.JobFilter{Status: models.JobStatusOpen})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(jobs) != 2 {
		t.Fatalf("open jobs = %d", total)
	}

	_, total, _ = f.jobs.List(context.Background(), models.JobFilter{ClientID: bob.ID})
	if total != 1 {
		t.Fatalf("bob's jobs = %d", total)
	}
	_, total, _ = f.jobs.List(context.Background(), models.JobFilter{MinBudget: 20000})
	if total != 0 {
		t.Fatalf("jobs over budget = %d", total)
	}
	_, total, _ = f.jobs.List(context.Background(), models.JobFilter{City: "LISBON"})
	if total != 3 {
		t.Fatalf("jobs in lisbon = %d", total)
	}
}

func TestGetJobCountsApplications(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, _ := f.worker(t, "Will Worker")
	job := f.openJob(t, client)
	f.apply(t, worker, job, 7000)

	got, count, err := f.jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if count != 1 || got.Category.Name != "Plumbing" {
		t.Fatalf("count=%d category=%q", count, got.Category.Name)
	}
	if _, _, err := f.jobs.Get(context.Background(), 4242); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing job: got %v, want ErrNotFound", err)
	}
}

func TestCancelAssignedJobCancelsBooking(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, _ := f.worker(t, "Will Worker")
	booking := f.hired(t, client, worker, 10000)

	if _, err := f.jobs.Cancel(context.Background(), worker, booking.JobID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("cancel by worker: got %v, want ErrForbidden", err)
	}
	if _, err := f.jobs.Cancel(context.Background(), client, booking.JobID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	var job models.Job
	f.reload(t, &job, booking.JobID)
	if job.Status != models.JobStatusCancelled || job.CancelledAt == nil {
		t.Fatalf("job = %s", job.Status)
	}
	var b models.Booking
	f.reload(t, &b, booking.ID)
	if b.Status != models.BookingStatusCancelled {
		t.Fatalf("booking = %s", b.Status)
	}
	if f.pusher.count(worker.ID, models.NotificationBookingCancelled) != 1 {
		t.Fatal("worker was not notified")
	}
	if _, err := f.jobs.Cancel(context.Background(), client, booking.JobID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second cancel: got %v, want ErrInvalidState", err)
	}
}

func TestCancelStartedJob(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, _ := f.worker(t, "Will Worker")
	booking := f.hired(t, client, worker, 10000)
	if _, err := f.bookings.Start(context.Background(), worker, booking.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := f.jobs.Cancel(context.Background(), client, booking.JobID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancel in progress: got %v, want ErrInvalidState", err)
	}
	var job models.Job
	f.reload(t, &job, booking.JobID)
	if job.Status != models.JobStatusInProgress || job.IsTerminal() {
		t.Fatalf("job = %s", job.Status)
	}
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t)
	f.jobs = NewJobService(f.db, f.notifier, f.events, MarketplaceOptions{Currency: "usd", JobTTL: time.Hour})
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, _ := f.worker(t, "Will Worker")

	stale := f.openJob(t, client)
	app := f.apply(t, worker, stale, 8000)
	assigned := f.openJob(t, client)
	f.apply(t, worker, assigned, 8000)
	var assignedApp models.Application
	f.db.Where("job_id = ?", assigned.ID).First(&assignedApp)
	if _, err := f.applications.Accept(context.Background(), client, assignedApp.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if n, err := f.jobs.ExpireStale(context.Background(), time.Now()); err != nil || n != 0 {
		t.Fatalf("nothing should expire yet: n=%d err=%v", n, err)
	}

	n, err := f.jobs.ExpireStale(context.Background(), time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d jobs, want 1", n)
	}

	var job models.Job
	f.reload(t, &job, stale.ID)
	if job.Status != models.JobStatusCancelled {
		t.Fatalf("stale job = %s", job.Status)
	}
	var stillAssigned models.Job
	f.reload(t, &stillAssigned, assigned.ID)
	if stillAssigned.Status != models.JobStatusAssigned {
		t.Fatalf("assigned job = %s", stillAssigned.Status)
	}
	var a models.Application
	f.reload(t, &a, app.ID)
	if a.Status != models.ApplicationRejected {
		t.Fatalf("application = %s", a.Status)
	}
	if f.pusher.count(client.ID, models.NotificationJobExpired) != 1 {
		t.Fatal("client was not told the job expired")
	}
}
