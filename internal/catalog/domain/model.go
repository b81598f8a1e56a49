package domain

import (
	"time"

	"gorm.io/datatypes"
)

const (
	CategoryCompanyFormation = "company_formation"
	CategoryLegal            = "legal"
	CategoryBranding         = "branding"
	CategoryDigital          = "digital"
	CategoryLaunchPackage    = "launch_package"
)

// Offering is a purchasable service. UnitPrice is in minor units of Currency.
type Offering struct {
	ID          int64          `json:"id,string" gorm:"primaryKey"`
	Code        string         `json:"code" gorm:"type:text;not null;uniqueIndex:ux_offerings_code"`
	Name        string         `json:"name" gorm:"type:text;not null"`
	Category    string         `json:"category" gorm:"type:text;not null"`
	Description *string        `json:"description,omitempty" gorm:"type:text"`
	UnitPrice   int64          `json:"unit_price" gorm:"not null"`
	Currency    string         `json:"currency" gorm:"type:text;not null"`
	Features    datatypes.JSON `json:"features" gorm:"type:jsonb"`
	IsActive    bool           `json:"is_active" gorm:"not null;default:true"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"not null"`
}

func (Offering) TableName() string { return "offerings" }
