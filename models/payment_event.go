package models

import "time"

// PaymentEvent records a processed payment provider event so redeliveries are ignored
type PaymentEvent struct {
	ID          string    `json:"id" gorm:"primaryKey;size:255"`
	Type        string    `json:"type" gorm:"size:100;not null"`
	BookingID   uint      `json:"bookingId" gorm:"index"`
	ProcessedAt time.Time `json:"processedAt" gorm:"not null"`
}

func (PaymentEvent) TableName() string {
	return "payment_events"
}
