package domain

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentPending     PaymentStatus = "pending"
	PaymentCompleted   PaymentStatus = "completed"
	PaymentFailed      PaymentStatus = "failed"
	PaymentNotRequired PaymentStatus = "not_required"
)

// Settled reports whether the payment axis allows fulfillment to begin.
func (s PaymentStatus) Settled() bool {
	return s == PaymentCompleted || s == PaymentNotRequired
}

type AdminStatus string

const (
	AdminNew        AdminStatus = "new"
	AdminReviewing  AdminStatus = "reviewing"
	AdminInProgress AdminStatus = "in_progress"
	AdminCompleted  AdminStatus = "completed"
)

// AdminStatuses is the kanban column order.
var AdminStatuses = []AdminStatus{AdminNew, AdminReviewing, AdminInProgress, AdminCompleted}

func ParseAdminStatus(raw string) (AdminStatus, bool) {
	for _, status := range AdminStatuses {
		if string(status) == raw {
			return status, true
		}
	}
	return "", false
}

// LaunchRequest is the onboarding record. Form progress, payment and admin
// workflow are independent axes and are written by separate statements.
type LaunchRequest struct {
	ID              int64      `json:"id,string" gorm:"primaryKey"`
	UserID          string     `json:"user_id" gorm:"type:text;not null"`
	CurrentStep     int        `json:"current_step" gorm:"not null"`
	IsStarted       bool       `json:"is_started" gorm:"not null"`
	IsFormComplete  bool       `json:"is_form_complete" gorm:"not null"`
	FormCompletedAt *time.Time `json:"form_completed_at,omitempty"`

	FullName    *string `json:"full_name,omitempty"`
	NationalID  *string `json:"national_id,omitempty"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Nationality *string `json:"nationality,omitempty"`

	Shareholders datatypes.JSON `json:"shareholders,omitempty"`

	CompanyName      *string `json:"company_name,omitempty"`
	CompanyType      *string `json:"company_type,omitempty"`
	BusinessActivity *string `json:"business_activity,omitempty"`
	City             *string `json:"city,omitempty"`
	CapitalAmount    *int64  `json:"capital_amount,omitempty"`

	BrandName   *string        `json:"brand_name,omitempty"`
	BrandColors datatypes.JSON `json:"brand_colors,omitempty"`
	LogoURL     *string        `json:"logo_url,omitempty"`
	BrandStyle  *string        `json:"brand_style,omitempty"`

	WebsiteDescription  *string        `json:"website_description,omitempty"`
	WebsiteDomain       *string        `json:"website_domain,omitempty"`
	WebsitePages        datatypes.JSON `json:"website_pages,omitempty"`
	WebsiteContactEmail *string        `json:"website_contact_email,omitempty"`

	BillingName    *string `json:"billing_name,omitempty"`
	BillingTaxID   *string `json:"billing_tax_id,omitempty"`
	BillingEmail   *string `json:"billing_email,omitempty"`
	BillingAddress *string `json:"billing_address,omitempty"`

	PackageOfferingID     *int64        `json:"package_offering_id,omitempty,string"`
	PaymentStatus         PaymentStatus `json:"payment_status" gorm:"type:text;not null"`
	ProviderTransactionID *string       `json:"provider_transaction_id,omitempty"`
	PaidAmount            *int64        `json:"paid_amount,omitempty"`
	PaidCurrency          *string       `json:"paid_currency,omitempty"`
	PaidAt                *time.Time    `json:"paid_at,omitempty"`
	PaymentFailureReason  *string       `json:"payment_failure_reason,omitempty"`

	AdminStatus          AdminStatus `json:"admin_status" gorm:"type:text;not null"`
	FulfillmentStartedAt *time.Time  `json:"fulfillment_started_at,omitempty"`
	CreatedAt            time.Time   `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time   `json:"updated_at" gorm:"not null"`
}

func (LaunchRequest) TableName() string { return "launch_requests" }

// ReadyForFulfillment is the gate that opens the fulfillment tracker.
func (r *LaunchRequest) ReadyForFulfillment() bool {
	return r != nil && r.IsFormComplete && r.PaymentStatus.Settled()
}

// MissingSteps lists the steps whose required fields are not populated.
func (r *LaunchRequest) MissingSteps() []int {
	var missing []int
	for step := 1; step <= StepCount; step++ {
		if len(r.MissingFields(step)) > 0 {
			missing = append(missing, step)
		}
	}
	return missing
}

// Card is one entry on the admin board.
type Card struct {
	ID             int64         `json:"id,string"`
	UserID         string        `json:"user_id"`
	CompanyName    string        `json:"company_name"`
	FullName       string        `json:"full_name"`
	CurrentStep    int           `json:"current_step"`
	IsFormComplete bool          `json:"is_form_complete"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	AdminStatus    AdminStatus   `json:"admin_status"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type Column struct {
	Status   AdminStatus `json:"status"`
	Requests []Card      `json:"requests"`
}
