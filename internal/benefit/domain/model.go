package domain

import "time"

// Benefit is a partner perk offered to clients.
type Benefit struct {
	ID          int64     `json:"id,string" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"type:text;not null"`
	Partner     string    `json:"partner" gorm:"type:text;not null"`
	Description *string   `json:"description,omitempty" gorm:"type:text"`
	IsActive    bool      `json:"is_active" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null"`
}

func (Benefit) TableName() string { return "benefits" }

// Code is a redemption code issued to one user for one benefit.
type Code struct {
	ID        int64      `json:"id,string" gorm:"primaryKey"`
	BenefitID int64      `json:"benefit_id,string" gorm:"not null"`
	UserID    string     `json:"user_id" gorm:"type:text;not null"`
	Code      string     `json:"code" gorm:"type:text;not null"`
	IsUsed    bool       `json:"is_used" gorm:"not null"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" gorm:"not null"`
}

func (Code) TableName() string { return "benefit_codes" }

const CodePrefix = "LP-"
