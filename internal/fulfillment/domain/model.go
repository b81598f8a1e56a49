package domain

import "time"

type Kind string

const (
	KindCompanyIncorporation Kind = "company_incorporation"
	KindTaxRegistration      Kind = "tax_registration"
	KindBankAccount          Kind = "bank_account"
	KindBrandIdentity        Kind = "brand_identity"
	KindWebsite              Kind = "website"
	KindDigitalSignature     Kind = "digital_signature"
)

// Kinds lists every deliverable in board order.
var Kinds = []Kind{
	KindCompanyIncorporation,
	KindTaxRegistration,
	KindBankAccount,
	KindBrandIdentity,
	KindWebsite,
	KindDigitalSignature,
}

func ParseKind(raw string) (Kind, bool) {
	for _, kind := range Kinds {
		if string(kind) == raw {
			return kind, true
		}
	}
	return "", false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusPending, StatusInProgress, StatusCompleted:
		return Status(raw), true
	}
	return "", false
}

// Progress is the fulfillment record of one paid and completed launch request.
type Progress struct {
	ID              int64     `json:"id,string" gorm:"primaryKey"`
	LaunchRequestID int64     `json:"launch_request_id,string" gorm:"not null;uniqueIndex"`
	UserID          string    `json:"user_id" gorm:"type:text;not null"`
	StartedAt       time.Time `json:"started_at" gorm:"not null"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"not null"`

	Deliverables []Deliverable `json:"deliverables" gorm:"-"`
}

func (Progress) TableName() string { return "launch_progress" }

// AllComplete is derived on read and never stored.
func (p *Progress) AllComplete() bool {
	if p == nil || len(p.Deliverables) != len(Kinds) {
		return false
	}
	for _, d := range p.Deliverables {
		if d.Status != StatusCompleted {
			return false
		}
	}
	return true
}

type Deliverable struct {
	ID               int64     `json:"-" gorm:"primaryKey"`
	LaunchProgressID int64     `json:"-" gorm:"not null"`
	Kind             Kind      `json:"kind" gorm:"type:text;not null"`
	Position         int       `json:"position" gorm:"not null"`
	Status           Status    `json:"status" gorm:"type:text;not null"`
	Progress         int       `json:"progress" gorm:"not null"`
	DeliveryURL      *string   `json:"delivery_url,omitempty" gorm:"type:text"`
	CurrentStepLabel *string   `json:"current_step_label,omitempty" gorm:"type:text"`
	NextStepLabel    *string   `json:"next_step_label,omitempty" gorm:"type:text"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"not null"`
}

func (Deliverable) TableName() string { return "launch_deliverables" }
