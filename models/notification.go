package models

import (
	"time"

	"gorm.io/datatypes"
)

type NotificationType string

const (
	NotificationApplicationReceived NotificationType = "application_received"
	NotificationApplicationAccepted NotificationType = "application_accepted"
	NotificationApplicationRejected NotificationType = "application_rejected"
	NotificationBookingCreated      NotificationType = "booking_created"
	NotificationBookingStarted      NotificationType = "booking_started"
	NotificationBookingCompleted    NotificationType = "booking_completed"
	NotificationBookingCancelled    NotificationType = "booking_cancelled"
	NotificationJobCancelled        NotificationType = "job_cancelled"
	NotificationJobExpired          NotificationType = "job_expired"
	NotificationPaymentReceived     NotificationType = "payment_received"
	NotificationPaymentFailed       NotificationType = "payment_failed"
	NotificationReviewReceived      NotificationType = "review_received"
	NotificationVerification        NotificationType = "verification"
)

type Notification struct {
	ID        uint             `json:"id" gorm:"primaryKey"`
	ProfileID uint             `json:"profileId" gorm:"not null;index"`
	Type      NotificationType `json:"type" gorm:"type:varchar(40);not null"`
	Title     string           `json:"title" gorm:"not null"`
	Body      string           `json:"body" gorm:"type:text;not null"`
	Data      datatypes.JSON   `json:"data"`
	Read      bool             `json:"read" gorm:"default:false;index"`
	ReadAt    *time.Time       `json:"readAt"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func (Notification) TableName() string {
	return "notifications"
}
