// Package report defines the structured credit-report data model and the
// lenient parser that coerces raw model output into it.
package report

// Score values outside this range are treated as extraction noise and dropped.
const (
	ScoreMin = 300
	ScoreMax = 850
)

// Bureau identifiers as they appear in model output.
const (
	BureauExperian   = "experian"
	BureauEquifax    = "equifax"
	BureauTransUnion = "transunion"
)

// PersonalInfo is the identity block of a credit report.
type PersonalInfo struct {
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	SSN         string  `json:"ssn,omitempty"`
	DateOfBirth string  `json:"date_of_birth,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// ScoreEntry is one bureau's credit score.
type ScoreEntry struct {
	Value      int     `json:"value"`
	Date       string  `json:"date,omitempty"` // YYYY-MM-DD
	Confidence float64 `json:"confidence"`
}

// Account is one tradeline on the report.
type Account struct {
	CreditorName   string   `json:"creditor_name"`
	AccountNumber  string   `json:"account_number"`
	AccountType    string   `json:"account_type,omitempty"`
	Balance        float64  `json:"balance"`
	CreditLimit    float64  `json:"credit_limit"`
	Status         string   `json:"status,omitempty"`
	PaymentHistory []string `json:"payment_history,omitempty"`
}

// NegativeItem is a derogatory entry (late payment, collection, charge-off).
type NegativeItem struct {
	Type         string  `json:"type"`
	CreditorName string  `json:"creditor_name"`
	Amount       float64 `json:"amount"`
	Date         string  `json:"date,omitempty"`
	Status       string  `json:"status,omitempty"`
	ImpactScore  float64 `json:"impact_score"`
}

// Inquiry is a hard or soft credit pull.
type Inquiry struct {
	CreditorName string `json:"creditor_name"`
	Date         string `json:"date,omitempty"`
	Type         string `json:"type,omitempty"`
}

// PublicRecord is a bankruptcy, lien, or judgment entry.
type PublicRecord struct {
	Type   string  `json:"type"`
	Date   string  `json:"date,omitempty"`
	Amount float64 `json:"amount,omitempty"`
	Status string  `json:"status,omitempty"`
}

// Report is the structured extraction produced by a single model invocation.
// It may be partially populated; absent domains are empty, never nil-checked
// away by callers.
type Report struct {
	PersonalInfo  PersonalInfo          `json:"personal_info"`
	Scores        map[string]ScoreEntry `json:"credit_scores,omitempty"`
	Accounts      []Account             `json:"accounts,omitempty"`
	NegativeItems []NegativeItem        `json:"negative_items,omitempty"`
	Inquiries     []Inquiry             `json:"inquiries,omitempty"`
	PublicRecords []PublicRecord        `json:"public_records,omitempty"`
}

// QualityMetrics summarizes consensus output quality.
type QualityMetrics struct {
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Consistency  float64 `json:"consistency"`
}

// ConsensusReport is the single reconciled report with per-field confidence.
type ConsensusReport struct {
	Report
	FieldConfidence map[string]float64 `json:"field_confidence"`
	Quality         QualityMetrics     `json:"quality_metrics"`
}

// IsEmpty reports whether no domain of the report contains data.
func (r *Report) IsEmpty() bool {
	return r.PersonalInfo.Name == "" &&
		r.PersonalInfo.Address == "" &&
		len(r.Scores) == 0 &&
		len(r.Accounts) == 0 &&
		len(r.NegativeItems) == 0 &&
		len(r.Inquiries) == 0 &&
		len(r.PublicRecords) == 0
}

// Completeness returns the fraction of the six report domains that are
// populated, in [0,1].
func (r *Report) Completeness() float64 {
	populated := 0
	if r.PersonalInfo.Name != "" {
		populated++
	}
	if len(r.Scores) > 0 {
		populated++
	}
	if len(r.Accounts) > 0 {
		populated++
	}
	if len(r.NegativeItems) > 0 {
		populated++
	}
	if len(r.Inquiries) > 0 {
		populated++
	}
	if len(r.PublicRecords) > 0 {
		populated++
	}
	return float64(populated) / 6.0
}
