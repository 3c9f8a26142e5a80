package models

import (
	"time"
)

type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusInProgress BookingStatus = "in_progress"
	BookingStatusCompleted  BookingStatus = "completed"
	BookingStatusCancelled  BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnpaid     PaymentStatus = "unpaid"
	PaymentProcessing PaymentStatus = "processing"
	PaymentPaid       PaymentStatus = "paid"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// Booking pairs a job with the worker hired for it
type Booking struct {
	ID              uint          `json:"id" gorm:"primaryKey"`
	JobID           uint          `json:"jobId" gorm:"not null;index"`
	Job             *Job          `json:"job,omitempty" gorm:"foreignKey:JobID"`
	WorkerID        uint          `json:"workerId" gorm:"not null;index"`
	Worker          *Worker       `json:"worker,omitempty" gorm:"foreignKey:WorkerID"`
	ClientID        uint          `json:"clientId" gorm:"not null;index"`
	ApplicationID   *uint         `json:"applicationId"`
	Amount          int64         `json:"amount" gorm:"not null;check:amount > 0"`
	CommissionRate  float64       `json:"commissionRate" gorm:"not null"`
	Commission      int64         `json:"commission" gorm:"not null"`
	WorkerPayout    int64         `json:"workerPayout" gorm:"not null"`
	Currency        string        `json:"currency" gorm:"type:varchar(3);not null"`
	Status          BookingStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index;check:status IN ('pending','confirmed','in_progress','completed','cancelled')"`
	PaymentStatus   PaymentStatus `json:"paymentStatus" gorm:"type:varchar(20);not null;default:'unpaid';check:payment_status IN ('unpaid','processing','paid','failed','refunded')"`
	PaymentIntentID *string       `json:"paymentIntentId,omitempty" gorm:"size:255;index"`
	PaidAt          *time.Time    `json:"paidAt"`
	StartedAt       *time.Time    `json:"startedAt"`
	CompletedAt     *time.Time    `json:"completedAt"`
	CancelledAt     *time.Time    `json:"cancelledAt"`
	CancelReason    string        `json:"cancelReason,omitempty" gorm:"type:text"`
	CreatedAt       time.Time     `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt       time.Time     `json:"updatedAt" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Booking model
func (Booking) TableName() string {
	return "bookings"
}

// IsActive reports whether the booking still holds its job
func (b *Booking) IsActive() bool {
	return b.Status != BookingStatusCompleted && b.Status != BookingStatusCancelled
}
