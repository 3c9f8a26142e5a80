package services

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"choraid-server/models"
)

func TestStagedNotificationsAreDroppedOnRollback(t *testing.T) {
	f := newFixture(t)
	p := f.profile(t, "Carla", models.RoleClient)
	boom := errors.New("boom")

	err := f.db.Transaction(func(tx *gorm.DB) error {
		if _, err := f.notifier.Stage(tx, p.ID, models.NotificationJobExpired, "t", "b", nil); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("transaction err = %v", err)
	}

	count, err := f.notifier.UnreadCount(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("rolled back notification was stored")
	}
	if len(f.pusher.pushed) != 0 {
		t.Fatal("nothing should be pushed before Deliver")
	}
}

func TestNotificationReadFlow(t *testing.T) {
	f := newFixture(t)
	p := f.profile(t, "Carla", models.RoleClient)
	other := f.profile(t, "Oscar", models.RoleClient)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n, err := f.notifier.Stage(f.db, p.ID, models.NotificationBookingCreated, "New booking", "body", map[string]any{"i": i})
		if err != nil {
			t.Fatalf("stage: %v", err)
		}
		f.notifier.Deliver(n)
	}
	if f.pusher.count(p.ID, models.NotificationBookingCreated) != 3 {
		t.Fatal("notifications were not pushed")
	}

	list, err := f.notifier.List(ctx, p.ID, false, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("listed %d", len(list))
	}

	if err := f.notifier.MarkRead(ctx, other.ID, list[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("marking someone else's: got %v, want ErrNotFound", err)
	}
	if err := f.notifier.MarkRead(ctx, p.ID, list[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	unread, _ := f.notifier.List(ctx, p.ID, true, 10)
	if len(unread) != 2 {
		t.Fatalf("unread = %d, want 2", len(unread))
	}

	n, err := f.notifier.MarkAllRead(ctx, p.ID)
	if err != nil || n != 2 {
		t.Fatalf("mark all: n=%d err=%v", n, err)
	}
	count, _ := f.notifier.UnreadCount(ctx, p.ID)
	if count != 0 {
		t.Fatalf("unread count = %d", count)
	}
}
