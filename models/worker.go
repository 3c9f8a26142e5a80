package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationPending    VerificationStatus = "pending"
	VerificationVerified   VerificationStatus = "verified"
	VerificationRejected   VerificationStatus = "rejected"
)

// Worker is the professional profile attached to a worker Profile
type Worker struct {
	ID                 uint                        `json:"id" gorm:"primaryKey"`
	ProfileID          uint                        `json:"profileId" gorm:"uniqueIndex;not null"`
	Profile            Profile                     `json:"profile,omitempty" gorm:"foreignKey:ProfileID"`
	CategoryID         uint                        `json:"categoryId" gorm:"not null;index"`
	Category           Category                    `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Bio                string                      `json:"bio" gorm:"type:text"`
	Skills             datatypes.JSONSlice[string] `json:"skills"`
	HourlyRate         int64                       `json:"hourlyRate" gorm:"default:0"`
	City               string                      `json:"city" gorm:"type:varchar(100)"`
	Address            string                      `json:"address" gorm:"type:text"`
	Lat                *float64                    `json:"lat"`
	Lng                *float64                    `json:"lng"`
	LastLocationUpdate *time.Time                  `json:"lastLocationUpdate"`

	IsAvailable   bool    `json:"isAvailable" gorm:"default:true"`
	Rating        float64 `json:"rating" gorm:"default:0"`
	TotalReviews  int     `json:"totalReviews" gorm:"default:0"`
	CompletedJobs int     `json:"completedJobs" gorm:"default:0"`
	TotalEarnings int64   `json:"totalEarnings" gorm:"default:0"`

	VerificationStatus VerificationStatus `json:"verificationStatus" gorm:"type:varchar(20);not null;default:'unverified';check:verification_status IN ('unverified','pending','verified','rejected')"`
	IsVerified         bool               `json:"isVerified" gorm:"default:false"`
	VerificationNote   string             `json:"verificationNote,omitempty" gorm:"type:text"`
	IDDocumentURL      *string            `json:"-" gorm:"type:varchar(500)"`
	ProfilePhotoURL    *string            `json:"profilePhotoUrl" gorm:"type:varchar(500)"`
	VerifiedAt         *time.Time         `json:"verifiedAt"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Worker) TableName() string {
	return "workers"
}

// HasSkill reports whether the worker lists skill, ignoring case
func (w *Worker) HasSkill(skill string) bool {
	for _, s := range w.Skills {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(skill)) {
			return true
		}
	}
	return false
}

// WorkerProfileRequest is the body for creating or updating the caller's worker profile
type WorkerProfileRequest struct {
	CategoryID uint     `json:"categoryId" binding:"required"`
	Bio        string   `json:"bio" binding:"max=2000"`
	Skills     []string `json:"skills" binding:"max=30,dive,min=1,max=50"`
	HourlyRate int64    `json:"hourlyRate" binding:"gte=0"`
	City       string   `json:"city" binding:"max=100"`
	Address    string   `json:"address" binding:"max=500"`
	Lat        *float64 `json:"lat" binding:"omitempty,latitude"`
	Lng        *float64 `json:"lng" binding:"omitempty,longitude"`
}

// LocationUpdateRequest represents a worker's location update
type LocationUpdateRequest struct {
	Lat float64 `json:"lat" binding:"required,latitude"`
	Lng float64 `json:"lng" binding:"required,longitude"`
}

type AvailabilityRequest struct {
	IsAvailable *bool `json:"isAvailable" binding:"required"`
}
