package services

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stripe/stripe-go/v76"

	"choraid-server/models"
)

func TestVerifyWorker(t *testing.T) {
	f := newFixture(t)
	admin := f.profile(t, "Ada Admin", models.RoleAdmin)
	client := f.profile(t, "Carla Client", models.RoleClient)
	worker, w := f.worker(t, "Will Worker")
	svc := NewAdminService(f.db, f.notifier)
	ctx := context.Background()

	if _, err := svc.VerifyWorker(ctx, client, w.ID, true, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("client verifying: got %v, want ErrForbidden", err)
	}
	if _, err := svc.VerifyWorker(ctx, admin, w.ID, false, "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("reject without note: got %v, want ErrValidation", err)
	}
	if _, err := svc.VerifyWorker(ctx, admin, 9999, true, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown worker: got %v, want ErrNotFound", err)
	}

	if _, err := svc.VerifyWorker(ctx, admin, w.ID, false, "blurry photo"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	var got models.Worker
	f.reload(t, &got, w.ID)
	if got.VerificationStatus != models.VerificationRejected || got.IsVerified || got.VerificationNote != "blurry photo" {
		t.Fatalf("after reject: %s verified=%v note=%q", got.VerificationStatus, got.IsVerified, got.VerificationNote)
	}

	if _, err := svc.VerifyWorker(ctx, admin, w.ID, true, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	f.reload(t, &got, w.ID)
	if got.VerificationStatus != models.VerificationVerified || !got.IsVerified || got.VerifiedAt == nil {
		t.Fatalf("after approve: %s verified=%v", got.VerificationStatus, got.IsVerified)
	}
	if f.pusher.count(worker.ID, models.NotificationVerification) != 2 {
		t.Fatal("worker should be notified of both decisions")
	}

	pending, total, err := svc.ListWorkers(ctx, models.VerificationVerified, 1, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || pending[0].ID != w.ID {
		t.Fatalf("verified workers = %d", total)
	}
}

func TestSetProfileActive(t *testing.T) {
	f := newFixture(t)
	admin := f.profile(t, "Ada Admin", models.RoleAdmin)
	worker, w := f.worker(t, "Will Worker")
	svc := NewAdminService(f.db, f.notifier)
	js := fastJWT(f.db)
	ctx := context.Background()

	pair, err := js.GenerateTokenPair(ctx, worker, ClientMeta{})
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}

	if _, err := svc.SetProfileActive(ctx, admin, admin.ID, false); !errors.Is(err, ErrValidation) {
		t.Fatalf("self deactivation: got %v, want ErrValidation", err)
	}
	if _, err := svc.SetProfileActive(ctx, worker, admin.ID, false); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin: got %v, want ErrForbidden", err)
	}

	if _, err := svc.SetProfileActive(ctx, admin, worker.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	var p models.Profile
	f.reload(t, &p, worker.ID)
	if p.IsActive {
		t.Fatal("profile still active")
	}
	var got models.Worker
	f.reload(t, &got, w.ID)
	if got.IsAvailable {
		t.Fatal("deactivated worker still available")
	}
	if _, err := js.RefreshAccessToken(ctx, pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh after deactivation: got %v, want ErrUnauthorized", err)
	}

	if _, err := svc.SetProfileActive(ctx, admin, worker.ID, true); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	f.reload(t, &p, worker.ID)
	if !p.IsActive {
		t.Fatal("profile not reactivated")
	}
}

func TestPlatformStats(t *testing.T) {
	f := newFixture(t)
	client := f.profile(t, "Carla Client", models.RoleClient)
	f.profile(t, "Ada Admin", models.RoleAdmin)
	worker, _ := f.worker(t, "Will Worker")

	paid := f.hired(t, client, worker, 10000)
	payments := NewPaymentService(f.db, f.notifier, f.events, succeedingIntents(), "")
	pi := &stripe.PaymentIntent{ID: "pi_stats", Metadata: map[string]string{"booking_id": strconv.FormatUint(uint64(paid.ID), 10)}}
	if err := payments.ApplyPaymentEvent(context.Background(), "evt_stats", stripeEventSucceeded, pi); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, err := f.bookings.Complete(context.Background(), client, paid.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.reviews.Create(context.Background(), client, models.ReviewCreate{BookingID: paid.ID, Rating: 4}); err != nil {
		t.Fatalf("review: %v", err)
	}
	f.openJob(t, client)

	stats, err := NewAdminService(f.db, f.notifier).Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ProfilesByRole["client"] != 1 || stats.ProfilesByRole["worker"] != 1 || stats.ProfilesByRole["admin"] != 1 {
		t.Fatalf("profiles = %v", stats.ProfilesByRole)
	}
	if stats.JobsByStatus["completed"] != 1 || stats.JobsByStatus["open"] != 1 {
		t.Fatalf("jobs = %v", stats.JobsByStatus)
	}
	if stats.BookingsByStatus["completed"] != 1 {
		t.Fatalf("bookings = %v", stats.BookingsByStatus)
	}
	if stats.WorkersByStatus["unverified"] != 1 {
		t.Fatalf("workers = %v", stats.WorkersByStatus)
	}
	if stats.GrossVolume != 10000 || stats.CommissionEarned != 1000 || stats.PaidBookings != 1 {
		t.Fatalf("volume = %d commission = %d paid = %d", stats.GrossVolume, stats.CommissionEarned, stats.PaidBookings)
	}
	if stats.AverageRating != 4 {
		t.Fatalf("average rating = %v", stats.AverageRating)
	}
}
