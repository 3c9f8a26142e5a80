package models

import (
	"time"
)

// Review is a client's rating of a worker after a completed booking
type Review struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	BookingID uint      `json:"bookingId" gorm:"not null;uniqueIndex"`
	JobID     uint      `json:"jobId" gorm:"not null"`
	WorkerID  uint      `json:"workerId" gorm:"not null;index"`
	ClientID  uint      `json:"clientId" gorm:"not null;index"`
	Client    *Profile  `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	Rating    int       `json:"rating" gorm:"type:int;not null;check:rating >= 1 AND rating <= 5"`
	Comment   string    `json:"comment" gorm:"type:text"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Review) TableName() string {
	return "reviews"
}

// ReviewCreate represents the request structure for reviewing a booking
type ReviewCreate struct {
	BookingID uint   `json:"bookingId" binding:"required"`
	Rating    int    `json:"rating" binding:"required,min=1,max=5"`
	Comment   string `json:"comment" binding:"max=2000"`
}

// ReviewSummary represents a summary of reviews for a worker
type ReviewSummary struct {
	WorkerID     uint        `json:"workerId"`
	Average      float64     `json:"average"`
	Total        int64       `json:"total"`
	Distribution map[int]int `json:"distribution"`
}
