package services

import (
	"context"
	"errors"
	"testing"

	"choraid-server/models"
)

func TestCompleteBookingCompletesJob(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, w := f.worker(t, "Will Worker")
	booking := f.hired(t, client, worker, 10000)

	if _, err := f.bookings.Start(context.Background(), worker, booking.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	var job models.Job
	f.reload(t, &job, booking.JobID)
	if job.Status != models.JobStatusInProgress {
		t.Fatalf("job status after start = %s", job.Status)
	}

	done, err := f.bookings.Complete(context.Background(), client, booking.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	var b models.Booking
	f.reload(t, &b, done.ID)
	if b.Status != models.BookingStatusCompleted || b.CompletedAt == nil {
		t.Fatalf("booking = %s completedAt=%v", b.Status, b.CompletedAt)
	}
	f.reload(t, &job, booking.JobID)
	if job.Status != models.JobStatusCompleted || job.CompletedAt == nil {
		t.Fatalf("job = %s completedAt=%v", job.Status, job.CompletedAt)
	}

	var credited models.Worker
	f.reload(t, &credited, w.ID)
	if credited.CompletedJobs != 1 || credited.TotalEarnings != 9000 {
		t.Fatalf("worker credited %d jobs / %d", credited.CompletedJobs, credited.TotalEarnings)
	}
	if f.pusher.count(worker.ID, models.NotificationBookingCompleted) != 1 {
		t.Fatal("worker was not notified of completion")
	}
	if !f.events.has(EventBookingCompleted) {
		t.Fatal("missing booking.completed event")
	}

	if _, err := f.bookings.Complete(context.Background(), client, booking.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second complete: got %v, want ErrInvalidState", err)
	}
}

func TestStartOnlyByAssignedWorker(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, _ := f.worker(t, "Will Worker")
	other, _ := f.worker(t, "Otto")
	booking := f.hired(t, client, worker, 10000)

	if _, err := f.bookings.Start(context.Background(), client, booking.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("client start: got %v, want ErrForbidden", err)
	}
	if _, err := f.bookings.Start(context.Background(), other, booking.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("other worker start: got %v, want ErrForbidden", err)
	}
}

func TestCompleteByStrangerForbidden(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	stranger := f.profile(t, "Sam Stranger", models.RoleClient)
	worker, _ := f.worker(t, "Will Worker")
	booking := f.hired(t, client, worker, 10000)

	if _, err := f.bookings.Complete(context.Background(), stranger, booking.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
	var job models.Job
	f.reload(t, &job, booking.JobID)
	if job.Status != models.JobStatusAssigned {
		t.Fatalf("job status = %s, want assigned", job.Status)
	}
}

func TestCancelBookingReopensJob(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, _ := f.worker(t, "Will Worker")
	booking := f.hired(t, client, worker, 10000)

	cancelled, err := f.bookings.Cancel(context.Background(), client, booking.ID, "  changed plans ")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.ID != booking.ID {
		t.Fatalf("cancelled booking %d, want %d", cancelled.ID, booking.ID)
	}

	var b models.Booking
	f.reload(t, &b, booking.ID)
	if b.Status != models.BookingStatusCancelled || b.CancelReason != "changed plans" {
		t.Fatalf("booking = %s %q", b.Status, b.CancelReason)
	}
	var job models.Job
	f.reload(t, &job, booking.JobID)
	if job.Status != models.JobStatusOpen || job.AssignedWorkerID != nil {
		t.Fatalf("job = %s assigned=%v", job.Status, job.AssignedWorkerID)
	}
	var app models.Application
	f.reload(t, &app, *booking.ApplicationID)
	if app.Status != models.ApplicationWithdrawn {
		t.Fatalf("application = %s, want withdrawn", app.Status)
	}
	if f.pusher.count(worker.ID, models.NotificationBookingCancelled) != 1 {
		t.Fatal("worker was not notified")
	}
}

func TestCancelInProgressBookingFails(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, _ := f.worker(t, "Will Worker")
	booking := f.hired(t, client, worker, 10000)

	if _, err := f.bookings.Start(context.Background(), worker, booking.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.bookings.Cancel(context.Background(), client, booking.ID, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
}

func TestHireDirectly(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	alice, aliceWorker := f.worker(t, "Alice")
	bob, _ := f.worker(t, "Bob")
	job := f.openJob(t, client)
	own := f.apply(t, alice, job, 9000)
	other := f.apply(t, bob, job, 8000)

	if _, err := f.bookings.Hire(context.Background(), client, job.ID, HireRequest{WorkerID: aliceWorker.ID, Amount: 99999}); !errors.Is(err, ErrValidation) {
		t.Fatalf("amount outside budget: got %v, want ErrValidation", err)
	}

	booking, err := f.bookings.Hire(context.Background(), client, job.ID, HireRequest{WorkerID: aliceWorker.ID, Amount: 12000})
	if err != nil {
		t.Fatalf("hire: %v", err)
	}
	if booking.ApplicationID == nil || *booking.ApplicationID != own.ID {
		t.Fatalf("booking application = %v, want %d", booking.ApplicationID, own.ID)
	}

	var a, b models.Application
	f.reload(t, &a, own.ID)
	f.reload(t, &b, other.ID)
	if a.Status != models.ApplicationAccepted || b.Status != models.ApplicationRejected {
		t.Fatalf("statuses = %s/%s", a.Status, b.Status)
	}

	if _, err := f.bookings.Hire(context.Background(), client, job.ID, HireRequest{WorkerID: aliceWorker.ID, Amount: 12000}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("hire on assigned job: got %v, want ErrInvalidState", err)
	}
}

func TestHireUnavailableWorker(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	_, w := f.worker(t, "Will Worker")
	job := f.openJob(t, client)
	f.db.Model(w).Update("is_available", false)

	if _, err := f.bookings.Hire(context.Background(), client, job.ID, HireRequest{WorkerID: w.ID, Amount: 8000}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
}

func TestBookingVisibility(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	stranger := f.profile(t, "Sam Stranger", models.RoleClient)
	admin := f.profile(t, "Ada Admin", models.RoleAdmin)
	worker, _ := f.worker(t, "Will Worker")
	booking := f.hired(t, client, worker, 10000)

	for _, p := range []*models.Profile{client, worker, admin} {
		if _, err := f.bookings.Get(context.Background(), p, booking.ID); err != nil {
			t.Fatalf("get as %s: %v", p.FullName, err)
		}
	}
	if _, err := f.bookings.Get(context.Background(), stranger, booking.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("get as stranger: got %v, want ErrForbidden", err)
	}

	list, total, err := f.bookings.List(context.Background(), worker, "", 1, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("worker sees %d bookings", total)
	}
	_, total, err = f.bookings.List(context.Background(), stranger, "", 1, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 0 {
		t.Fatalf("stranger sees %d bookings", total)
	}
}

func TestCalculateCommission(t *testing.T) {
	tests := []struct {
		amount           int64
		rate             float64
		commission, paid int64
	}{
		{10000, 0.10, 1000, 9000},
		{999, 0.15, 150, 849},
		{5000, 0, 0, 5000},
		{0, 0.10, 0, 0},
		{100, 2, 100, 0},
	}
	for _, tt := range tests {
		c, p := CalculateCommission(tt.amount, tt.rate)
		if c != tt.commission || p != tt.paid {
			t.Errorf("CalculateCommission(%d, %v) = %d, %d; want %d, %d", tt.amount, tt.rate, c, p, tt.commission, tt.paid)
		}
		if c+p != tt.amount {
			t.Errorf("commission and payout do not add up for %d", tt.amount)
		}
	}
}
