package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"net/mail"
	"net/url"
	"strings"
)

const (
	StepPersonal = iota + 1
	StepShareholders
	StepCompany
	StepBranding
	StepWebsite
	StepBilling
)

// StepCount is the number of form steps.
const StepCount = StepBilling

const (
	CompanyTypeSAS     = "sas"
	CompanyTypeCiaLtda = "cia_ltda"
	CompanyTypeSA      = "sa"
)

type PersonalStep struct {
	FullName    string `json:"full_name"`
	NationalID  string `json:"national_id"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Nationality string `json:"nationality"`
}

type Shareholder struct {
	Name       string  `json:"name"`
	NationalID string  `json:"national_id"`
	Percentage float64 `json:"percentage"`
}

type ShareholdersStep struct {
	Shareholders []Shareholder `json:"shareholders"`
}

type CompanyStep struct {
	CompanyName      string `json:"company_name"`
	CompanyType      string `json:"company_type"`
	BusinessActivity string `json:"business_activity"`
	City             string `json:"city"`
	CapitalAmount    int64  `json:"capital_amount"`
}

type BrandingStep struct {
	BrandName   string   `json:"brand_name"`
	BrandColors []string `json:"brand_colors"`
	LogoURL     string   `json:"logo_url"`
	BrandStyle  string   `json:"brand_style"`
}

type WebsiteStep struct {
	Description  string   `json:"description"`
	Domain       string   `json:"domain"`
	Pages        []string `json:"pages"`
	ContactEmail string   `json:"contact_email"`
}

type BillingStep struct {
	Name    string `json:"name"`
	TaxID   string `json:"tax_id"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

// DecodeStep parses a step payload, checks its shape and returns the column
// values the step owns. Missing required fields are allowed here; they only
// block advancing past the step.
func DecodeStep(step int, raw []byte) (map[string]any, error) {
	switch step {
	case StepPersonal:
		var in PersonalStep
		if err := strictDecode(raw, &in); err != nil {
			return nil, err
		}
		if err := checkEmail(in.Email); err != nil {
			return nil, err
		}
		return map[string]any{
			"full_name":   text(in.FullName),
			"national_id": text(in.NationalID),
			"email":       text(strings.ToLower(in.Email)),
			"phone":       text(in.Phone),
			"nationality": text(in.Nationality),
		}, nil

	case StepShareholders:
		var in ShareholdersStep
		if err := strictDecode(raw, &in); err != nil {
			return nil, err
		}
		for i := range in.Shareholders {
			in.Shareholders[i].Name = strings.TrimSpace(in.Shareholders[i].Name)
			in.Shareholders[i].NationalID = strings.TrimSpace(in.Shareholders[i].NationalID)
			if p := in.Shareholders[i].Percentage; p < 0 || p > 100 {
				return nil, ErrInvalidShareholders
			}
		}
		if len(in.Shareholders) == 0 {
			return map[string]any{"shareholders": nil}, nil
		}
		encoded, err := json.Marshal(in.Shareholders)
		if err != nil {
			return nil, err
		}
		return map[string]any{"shareholders": string(encoded)}, nil

	case StepCompany:
		var in CompanyStep
		if err := strictDecode(raw, &in); err != nil {
			return nil, err
		}
		companyType := strings.ToLower(strings.TrimSpace(in.CompanyType))
		if companyType != "" && !validCompanyType(companyType) {
			return nil, ErrInvalidCompanyType
		}
		if in.CapitalAmount < 0 {
			return nil, ErrInvalidCapital
		}
		var capital any
		if in.CapitalAmount > 0 {
			capital = in.CapitalAmount
		}
		return map[string]any{
			"company_name":      text(in.CompanyName),
			"company_type":      text(companyType),
			"business_activity": text(in.BusinessActivity),
			"city":              text(in.City),
			"capital_amount":    capital,
		}, nil

	case StepBranding:
		var in BrandingStep
		if err := strictDecode(raw, &in); err != nil {
			return nil, err
		}
		if err := checkURL(in.LogoURL); err != nil {
			return nil, err
		}
		colors, err := stringList(in.BrandColors)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"brand_name":   text(in.BrandName),
			"brand_colors": colors,
			"logo_url":     text(in.LogoURL),
			"brand_style":  text(in.BrandStyle),
		}, nil

	case StepWebsite:
		var in WebsiteStep
		if err := strictDecode(raw, &in); err != nil {
			return nil, err
		}
		if err := checkEmail(in.ContactEmail); err != nil {
			return nil, err
		}
		pages, err := stringList(in.Pages)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"website_description":   text(in.Description),
			"website_domain":        text(strings.ToLower(in.Domain)),
			"website_pages":         pages,
			"website_contact_email": text(strings.ToLower(in.ContactEmail)),
		}, nil

	case StepBilling:
		var in BillingStep
		if err := strictDecode(raw, &in); err != nil {
			return nil, err
		}
		if err := checkEmail(in.Email); err != nil {
			return nil, err
		}
		return map[string]any{
			"billing_name":    text(in.Name),
			"billing_tax_id":  text(in.TaxID),
			"billing_email":   text(strings.ToLower(in.Email)),
			"billing_address": text(in.Address),
		}, nil
	}
	return nil, ErrInvalidStep
}

// MissingFields returns the required fields of step that are not populated.
func (r *LaunchRequest) MissingFields(step int) []string {
	var missing []string
	need := func(name string, ok bool) {
		if !ok {
			missing = append(missing, name)
		}
	}

	switch step {
	case StepPersonal:
		need("full_name", present(r.FullName))
		need("national_id", present(r.NationalID))
		need("email", present(r.Email))
		need("phone", present(r.Phone))
	case StepShareholders:
		holders := r.ShareholderList()
		need("shareholders", len(holders) > 0)
		if len(holders) > 0 {
			var total float64
			named := true
			for _, h := range holders {
				total += h.Percentage
				if h.Name == "" {
					named = false
				}
			}
			need("shareholders.name", named)
			need("shareholders.percentage", math.Abs(total-100) < 0.01)
		}
	case StepCompany:
		need("company_name", present(r.CompanyName))
		need("company_type", present(r.CompanyType))
		need("business_activity", present(r.BusinessActivity))
		need("city", present(r.City))
		need("capital_amount", r.CapitalAmount != nil && *r.CapitalAmount > 0)
	case StepBranding:
		need("brand_name", present(r.BrandName))
	case StepWebsite:
		need("website_description", present(r.WebsiteDescription))
	case StepBilling:
		need("billing_name", present(r.BillingName))
		need("billing_tax_id", present(r.BillingTaxID))
		need("billing_email", present(r.BillingEmail))
	}
	return missing
}

func (r *LaunchRequest) ShareholderList() []Shareholder {
	if len(r.Shareholders) == 0 {
		return nil
	}
	var out []Shareholder
	if err := json.Unmarshal(r.Shareholders, &out); err != nil {
		return nil
	}
	return out
}

func strictDecode(raw []byte, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ErrInvalidStepPayload
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return ErrInvalidStepPayload
	}
	return nil
}

func validCompanyType(value string) bool {
	switch value {
	case CompanyTypeSAS, CompanyTypeCiaLtda, CompanyTypeSA:
		return true
	}
	return false
}

func checkEmail(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return ErrInvalidEmail
	}
	return nil
}

func checkURL(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, err := url.Parse(value)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

func stringList(values []string) (any, error) {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	if len(cleaned) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(cleaned)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

func text(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return value
}

func present(value *string) bool {
	return value != nil && strings.TrimSpace(*value) != ""
}
