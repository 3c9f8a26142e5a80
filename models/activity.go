package models

import (
	"time"

	"gorm.io/datatypes"
)

type ActivityType string

const (
	ActivityApplicationSubmitted  ActivityType = "application_submitted"
	ActivityApplicationWithdrawn  ActivityType = "application_withdrawn"
	ActivityApplicationAccepted   ActivityType = "application_accepted"
	ActivityApplicationRejected   ActivityType = "application_rejected"
	ActivityBookingCreated        ActivityType = "booking_created"
	ActivityBookingStarted        ActivityType = "booking_started"
	ActivityBookingCompleted      ActivityType = "booking_completed"
	ActivityBookingCancelled      ActivityType = "booking_cancelled"
	ActivityPaymentReceived       ActivityType = "payment_received"
	ActivityReviewReceived        ActivityType = "review_received"
	ActivityProfileVerified       ActivityType = "profile_verified"
	ActivityVerificationSubmitted ActivityType = "verification_submitted"
)

// WorkerActivity is the audit trail of events concerning a worker
type WorkerActivity struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	WorkerID    uint           `json:"workerId" gorm:"not null;index"`
	Type        ActivityType   `json:"type" gorm:"type:varchar(40);not null;index"`
	JobID       *uint          `json:"jobId"`
	BookingID   *uint          `json:"bookingId"`
	Description string         `json:"description" gorm:"type:text"`
	Metadata    datatypes.JSON `json:"metadata"`
	CreatedAt   time.Time      `json:"createdAt" gorm:"index"`
}

func (WorkerActivity) TableName() string {
	return "worker_activities"
}
