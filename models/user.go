package models

import (
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleClient Role = "client"
	RoleWorker Role = "worker"
	RoleAdmin  Role = "admin"
)

// Profile is the identity of a marketplace user
type Profile struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	FullName       string    `json:"fullName" gorm:"size:255;not null"`
	Email          string    `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Phone          string    `json:"phone" gorm:"size:32"`
	PasswordHash   string    `json:"-" gorm:"size:255"`
	AuthProviderID *string   `json:"-" gorm:"size:64;uniqueIndex"`
	Role           Role      `json:"role" gorm:"type:varchar(20);not null;default:'client';check:role IN ('client','worker','admin')"`
	AvatarURL      *string   `json:"avatarUrl" gorm:"size:500"`
	IsActive       bool      `json:"isActive" gorm:"default:true"`
	CreatedAt      time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Profile model
func (Profile) TableName() string {
	return "profiles"
}

// BeforeCreate is a GORM hook that runs before creating a profile
func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.Role == "" {
		p.Role = RoleClient
	}
	return nil
}

// IsValidRole checks if the profile role is valid
func (p *Profile) IsValidRole() bool {
	switch p.Role {
	case RoleClient, RoleWorker, RoleAdmin:
		return true
	default:
		return false
	}
}

func (p *Profile) IsWorker() bool {
	return p.Role == RoleWorker
}

func (p *Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func (p *Profile) IsClient() bool {
	return p.Role == RoleClient
}
