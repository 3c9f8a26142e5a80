package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"choraid-server/models"
)

// Pusher delivers a stored notification to a connected profile
type Pusher interface {
	PushNotification(profileID uint, n *models.Notification)
}

// NotificationService stores notifications and pushes them once committed
type NotificationService struct {
	db     *gorm.DB
	pusher Pusher
}

func NewNotificationService(db *gorm.DB, pusher Pusher) *NotificationService {
	return &NotificationService{db: db, pusher: pusher}
}

// Stage inserts a notification using tx. Call Deliver after the transaction commits.
func (s *NotificationService) Stage(tx *gorm.DB, profileID uint, kind models.NotificationType, title, body string, data map[string]any) (*models.Notification, error) {
	var raw datatypes.JSON
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal notification data: %w", err)
		}
		raw = datatypes.JSON(b)
	}

	n := &models.Notification{
		ProfileID: profileID,
		Type:      kind,
		Title:     title,
		Body:      body,
		Data:      raw,
	}
	if err := tx.Create(n).Error; err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return n, nil
}

// Deliver pushes committed notifications to connected clients
func (s *NotificationService) Deliver(notifications ...*models.Notification) {
	if s.pusher == nil {
		return
	}
	for _, n := range notifications {
		if n == nil {
			continue
		}
		s.pusher.PushNotification(n.ProfileID, n)
	}
}

// List returns the newest notifications of a profile, at most 50
func (s *NotificationService) List(ctx context.Context, profileID uint, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Where("profile_id = ?", profileID)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}

	var notifications []models.Notification
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, profileID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("profile_id = ? AND read = ?", profileID, false).
		Count(&count).Error
	return count, err
}

// MarkRead marks one notification owned by profileID as read
func (s *NotificationService) MarkRead(ctx context.Context, profileID, id uint) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND profile_id = ?", id, profileID).
		Updates(map[string]interface{}{"read": true, "read_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, profileID uint) (int64, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("profile_id = ? AND read = ?", profileID, false).
		Updates(map[string]interface{}{"read": true, "read_at": now})
	if res.Error != nil {
		log.Printf("❌ Failed to mark notifications read for profile %d: %v", profileID, res.Error)
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
