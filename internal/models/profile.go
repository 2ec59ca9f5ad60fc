package models

// CompanyProfile field names. The required set drives the completion ratio;
// optional fields unlock by tier.
const (
	FieldCompanyName  = "company_name"
	FieldIndustry     = "industry"
	FieldFoundingYear = "founding_year"
	FieldMainProducts = "main_products"
	FieldTargetGoal   = "target_goal"

	FieldRegistrationNumber = "registration_number"
	FieldAnnualRevenue      = "annual_revenue"
	FieldEmployeeCount      = "employee_count"
	FieldTechnology         = "technology"
	FieldSupportHistory     = "support_history"
	FieldAdditionalInfo     = "additional_info"
)

// RequiredProfileFields is ordered; the collector asks in this order.
var RequiredProfileFields = []string{
	FieldCompanyName,
	FieldIndustry,
	FieldFoundingYear,
	FieldMainProducts,
	FieldTargetGoal,
}

// OptionalProfileFields maps tier name to the extra fields that tier collects.
var OptionalProfileFields = map[string][]string{
	TierBasic:    {},
	TierStandard: {FieldRegistrationNumber, FieldAnnualRevenue, FieldEmployeeCount},
	TierPremium: {
		FieldRegistrationNumber, FieldAnnualRevenue, FieldEmployeeCount,
		FieldTechnology, FieldSupportHistory, FieldAdditionalInfo,
	},
}

// FieldValue is one populated profile field plus the transcript turn that
// produced it.
type FieldValue struct {
	Value  string `json:"value"`
	TurnID string `json:"turnId,omitempty"`
}

// CompanyProfile is the partial applicant record collected conversationally.
// Fields are either absent or populated; populated required fields are never
// overwritten within a session.
type CompanyProfile struct {
	Fields map[string]FieldValue `json:"fields"`
}

func NewCompanyProfile() *CompanyProfile {
	return &CompanyProfile{Fields: map[string]FieldValue{}}
}

// Has reports whether the field is populated with a non-empty value.
func (p *CompanyProfile) Has(field string) bool {
	if p == nil || p.Fields == nil {
		return false
	}
	fv, ok := p.Fields[field]
	return ok && fv.Value != ""
}

// Get returns the field value, empty if absent.
func (p *CompanyProfile) Get(field string) string {
	if p == nil || p.Fields == nil {
		return ""
	}
	return p.Fields[field].Value
}

// Set writes a field unconditionally. Callers enforcing the merge-only-absent
// rule must check Has first.
func (p *CompanyProfile) Set(field, value, turnID string) {
	if p.Fields == nil {
		p.Fields = map[string]FieldValue{}
	}
	p.Fields[field] = FieldValue{Value: value, TurnID: turnID}
}

// CompletionRatio is required fields present over required fields defined,
// recomputed from the profile itself after every extraction.
func (p *CompanyProfile) CompletionRatio() float64 {
	present := 0
	for _, field := range RequiredProfileFields {
		if p.Has(field) {
			present++
		}
	}
	return float64(present) / float64(len(RequiredProfileFields))
}

// MissingRequired returns required fields not yet populated, in ask order.
func (p *CompanyProfile) MissingRequired() []string {
	var missing []string
	for _, field := range RequiredProfileFields {
		if !p.Has(field) {
			missing = append(missing, field)
		}
	}
	return missing
}

// Clone deep-copies the profile. Composition passes snapshot the profile so
// later edits cannot change what a draft was generated from.
func (p *CompanyProfile) Clone() *CompanyProfile {
	clone := NewCompanyProfile()
	if p == nil {
		return clone
	}
	for field, fv := range p.Fields {
		clone.Fields[field] = fv
	}
	return clone
}
