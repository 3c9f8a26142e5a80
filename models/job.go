package models

import (
	"time"
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusOpen       JobStatus = "open"
	JobStatusAssigned   JobStatus = "assigned"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Job is a task posted by a client
type Job struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	ClientID         uint       `json:"clientId" gorm:"not null;index"`
	Client           Profile    `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	CategoryID       uint       `json:"categoryId" gorm:"not null;index"`
	Category         Category   `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Title            string     `json:"title" gorm:"type:varchar(200);not null"`
	Description      string     `json:"description" gorm:"type:text"`
	BudgetMin        int64      `json:"budgetMin" gorm:"not null;check:budget_min > 0"`
	BudgetMax        int64      `json:"budgetMax" gorm:"not null;check:budget_max >= budget_min"`
	Currency         string     `json:"currency" gorm:"type:varchar(3);not null"`
	Address          string     `json:"address" gorm:"type:text"`
	City             string     `json:"city" gorm:"type:varchar(100);index"`
	Lat              *float64   `json:"lat"`
	Lng              *float64   `json:"lng"`
	Status           JobStatus  `json:"status" gorm:"type:varchar(20);not null;default:'open';index;check:status IN ('open','assigned','in_progress','completed','cancelled')"`
	AssignedWorkerID *uint      `json:"assignedWorkerId"`
	AssignedWorker   *Worker    `json:"assignedWorker,omitempty" gorm:"foreignKey:AssignedWorkerID"`
	ScheduledAt      *time.Time `json:"scheduledAt"`
	ExpiresAt        *time.Time `json:"expiresAt" gorm:"index"`
	CompletedAt      *time.Time `json:"completedAt"`
	CancelledAt      *time.Time `json:"cancelledAt"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func (Job) TableName() string {
	return "jobs"
}

// IsTerminal reports whether the job can no longer change status
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusCancelled
}

// JobCreate is the body for posting a job
type JobCreate struct {
	Title       string     `json:"title" binding:"required,min=3,max=200"`
	Description string     `json:"description" binding:"max=5000"`
	CategoryID  uint       `json:"categoryId" binding:"required"`
	BudgetMin   int64      `json:"budgetMin" binding:"required,gt=0"`
	BudgetMax   int64      `json:"budgetMax" binding:"required,gtefield=BudgetMin"`
	Address     string     `json:"address" binding:"max=500"`
	City        string     `json:"city" binding:"max=100"`
	Lat         *float64   `json:"lat" binding:"omitempty,latitude"`
	Lng         *float64   `json:"lng" binding:"omitempty,longitude"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

// JobFilter narrows job listings
type JobFilter struct {
	Status     JobStatus
	CategoryID uint
	City       string
	MinBudget  int64
	MaxBudget  int64
	ClientID   uint
	Page       int
	Limit      int
}
