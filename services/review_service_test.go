package services

import (
	"context"
	"errors"
	"testing"

	"choraid-server/models"
)

func completedBooking(t *testing.T, f *fixture, client, worker *models.Profile) *models.Booking {
	t.Helper()
	booking := f.hired(t, client, worker, 10000)
	if _, err := f.bookings.Complete(context.Background(), client, booking.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	return booking
}

func TestReviewUpdatesWorkerRating(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, w := f.worker(t, "Will Worker")

	first := completedBooking(t, f, client, worker)
	second := completedBooking(t, f, client, worker)

	if _, err := f.reviews.Create(context.Background(), client, models.ReviewCreate{BookingID: first.ID, Rating: 5, Comment: " great "}); err != nil {
		t.Fatalf("review 1: %v", err)
	}
	review, err := f.reviews.Create(context.Background(), client, models.ReviewCreate{BookingID: second.ID, Rating: 4})
	if err != nil {
		t.Fatalf("review 2: %v", err)
	}
	if review.WorkerID != w.ID || review.JobID != second.JobID {
		t.Fatalf("review links worker %d job %d", review.WorkerID, review.JobID)
	}

	var rated models.Worker
	f.reload(t, &rated, w.ID)
	if rated.Rating != 4.5 || rated.TotalReviews != 2 {
		t.Fatalf("rating = %v over %d reviews", rated.Rating, rated.TotalReviews)
	}
	if f.pusher.count(worker.ID, models.NotificationReviewReceived) != 2 {
		t.Fatal("worker was not notified of reviews")
	}

	summary, err := f.reviews.Summary(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Average != 4.5 || summary.Total != 2 || summary.Distribution[5] != 1 || summary.Distribution[4] != 1 || summary.Distribution[1] != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	reviews, _, err := f.reviews.ListForWorker(context.Background(), w.ID, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reviews) != 2 || reviews[0].Client == nil {
		t.Fatalf("reviews = %+v", reviews)
	}
}

func TestReviewRules(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, _ := f.worker(t, "Will Worker")

	pending := f.hired(t, client, worker, 10000)
	if _, err := f.reviews.Create(context.Background(), client, models.ReviewCreate{BookingID: pending.ID, Rating: 5}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("review of open booking: got %v, want ErrInvalidState", err)
	}

	done := completedBooking(t, f, client, worker)
	if _, err := f.reviews.Create(context.Background(), worker, models.ReviewCreate{BookingID: done.ID, Rating: 5}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("review by worker: got %v, want ErrForbidden", err)
	}
	if _, err := f.reviews.Create(context.Background(), client, models.ReviewCreate{BookingID: done.ID, Rating: 6}); !errors.Is(err, ErrValidation) {
		t.Fatalf("rating 6: got %v, want ErrValidation", err)
	}
	if _, err := f.reviews.Create(context.Background(), client, models.ReviewCreate{BookingID: done.ID, Rating: 3}); err != nil {
		t.Fatalf("review: %v", err)
	}
	if _, err := f.reviews.Create(context.Background(), client, models.ReviewCreate{BookingID: done.ID, Rating: 3}); !errors.Is(err, ErrConflict) {
		t.Fatalf("second review: got %v, want ErrConflict", err)
	}
}
