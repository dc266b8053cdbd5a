package domain

import "time"

type SampleType string

const (
	SampleWater SampleType = "water"
	SampleSoil  SampleType = "soil"
	SamplePlant SampleType = "plant"
	SampleOther SampleType = "other"
)

func (s SampleType) Valid() bool {
	switch s {
	case SampleWater, SampleSoil, SamplePlant, SampleOther:
		return true
	}
	return false
}

// SampleTypeQuestions holds the per-sample-type questionnaire answers. The
// boolean ones drive flat pricing surcharges.
type SampleTypeQuestions struct {
	WaterFiltered          bool   `json:"water_filtered"`
	WaterPreservativeAdded bool   `json:"water_preservative_added"`
	WaterPreservativeInfo  string `json:"water_preservative_info,omitempty"`
	WaterReportedInMgL     bool   `json:"water_reported_in_mg_l"`
	SoilImported           bool   `json:"soil_imported"`
	Grind                  bool   `json:"grind"`
	PlantReportingBasis    string `json:"plant_reporting_basis,omitempty"`
}

// TestDetails is one priced line of an order. All money is in minor units.
// Invariants: SubTotal = Cost * Quantity, Total = SubTotal + SetupCost.
type TestDetails struct {
	Code          string `json:"code"`
	Analysis      string `json:"analysis"`
	CostMinor     int64  `json:"cost_minor"`
	SetupMinor    int64  `json:"setup_minor"`
	SubTotalMinor int64  `json:"sub_total_minor"`
	TotalMinor    int64  `json:"total_minor"`
}

const (
	ClientTypeUC         = "uc"
	ClientTypeCreditCard = "creditcard"
	ClientTypeOther      = "other"
)

type Payment struct {
	ClientType string `json:"client_type"`
	Account    string `json:"account,omitempty"`
}

// IsInternalClient selects the internal (UC) cost column for every line item.
func (p Payment) IsInternalClient() bool { return p.ClientType == ClientTypeUC }

type ClientInfo struct {
	ClientID    string `json:"client_id,omitempty"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Employer    string `json:"employer,omitempty"`
	Department  string `json:"department,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	PiName      string `json:"pi_name,omitempty"`
	PiEmail     string `json:"pi_email,omitempty"`
}

// OrderDetails is the strongly typed replacement for the legacy free-form
// details blob. It is persisted as JSON but validated at the boundary;
// a blob that does not decode into this shape is a validation failure,
// never an empty default.
type OrderDetails struct {
	Quantity            int                 `json:"quantity"`
	SampleType          SampleType          `json:"sample_type"`
	SampleTypeQuestions SampleTypeQuestions `json:"sample_type_questions"`
	SelectedTests       []TestDetails       `json:"selected_tests"`
	TotalMinor          int64               `json:"total_minor"`
	AdjustmentMinor     int64               `json:"adjustment_minor"`
	AdjustmentComments  string              `json:"adjustment_comments,omitempty"`
	LabComments         string              `json:"lab_comments,omitempty"`
	Payment             Payment             `json:"payment"`
	ClientInfo          ClientInfo          `json:"client_info"`
	AdditionalEmails    []string            `json:"additional_emails,omitempty"`
	AdditionalInfo      string              `json:"additional_info,omitempty"`
	Commodity           string              `json:"commodity,omitempty"`
	DateSampled         time.Time           `json:"date_sampled"`
	SampleDisposition   string              `json:"sample_disposition,omitempty"`
}

// GrandTotalMinor is always derived, never stored on its own.
func (d *OrderDetails) GrandTotalMinor() int64 {
	return d.TotalMinor + d.AdjustmentMinor
}

// SelectedCodes returns the catalog codes of the selected tests in order.
func (d *OrderDetails) SelectedCodes() []string {
	codes := make([]string, 0, len(d.SelectedTests))
	for _, t := range d.SelectedTests {
		codes = append(codes, t.Code)
	}
	return codes
}

const MaxQuantity = 100

// Validate reports every malformed field at once.
func (d *OrderDetails) Validate() error {
	verr := &ValidationError{}
	if d.Quantity < 1 || d.Quantity > MaxQuantity {
		verr.add("quantity", "must be between 1 and 100")
	}
	if !d.SampleType.Valid() {
		verr.add("sample_type", "must be one of water, soil, plant, other")
	}
	if len(d.SelectedTests) == 0 {
		verr.add("selected_tests", "at least one test is required")
	} else {
		for _, t := range d.SelectedTests {
			if t.Code == "" {
				verr.add("selected_tests", "test code is required")
				break
			}
		}
	}
	switch d.Payment.ClientType {
	case ClientTypeUC, ClientTypeCreditCard, ClientTypeOther:
	default:
		verr.add("payment.client_type", "must be one of uc, creditcard, other")
	}
	if d.Payment.ClientType == ClientTypeUC && d.Payment.Account == "" {
		verr.add("payment.account", "account is required for uc clients")
	}
	if d.ClientInfo.Email == "" {
		verr.add("client_info.email", "email is required")
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}
