package models

import (
	"time"
)

type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationAccepted  ApplicationStatus = "accepted"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationWithdrawn ApplicationStatus = "withdrawn"
)

// Application is a worker's bid on an open job
type Application struct {
	ID             uint              `json:"id" gorm:"primaryKey"`
	JobID          uint              `json:"jobId" gorm:"not null;uniqueIndex:idx_applications_job_worker"`
	Job            *Job              `json:"job,omitempty" gorm:"foreignKey:JobID"`
	WorkerID       uint              `json:"workerId" gorm:"not null;uniqueIndex:idx_applications_job_worker;index"`
	Worker         *Worker           `json:"worker,omitempty" gorm:"foreignKey:WorkerID"`
	ProposedAmount int64             `json:"proposedAmount" gorm:"not null;check:proposed_amount > 0"`
	Message        string            `json:"message" gorm:"type:text"`
	Status         ApplicationStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';check:status IN ('pending','accepted','rejected','withdrawn')"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

func (Application) TableName() string {
	return "applications"
}

// ApplicationCreate is the body for applying to a job
type ApplicationCreate struct {
	JobID          uint   `json:"jobId" binding:"required"`
	ProposedAmount int64  `json:"proposedAmount" binding:"required,gt=0"`
	Message        string `json:"message" binding:"max=2000"`
}
