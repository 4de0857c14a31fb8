package entity

// Severity grades a validation issue or anomaly.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// SuggestionType classifies a validation suggestion.
type SuggestionType string

const (
	SuggestionCategory           SuggestionType = "category"
	SuggestionSupplierCorrection SuggestionType = "supplier-correction"
	SuggestionTaxDeduction       SuggestionType = "tax-deduction"
	SuggestionPaymentReminder    SuggestionType = "payment-reminder"
)

// ValidationIssue is a blocking problem with the extracted data. Expected and Actual are set
// for arithmetic mismatches.
type ValidationIssue struct {
	Field    string   `json:"field"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Expected *float64 `json:"expected,omitempty"`
	Actual   *float64 `json:"actual,omitempty"`
}

// ValidationWarning is a non-blocking problem, optionally with a suggested replacement value.
type ValidationWarning struct {
	Field          string `json:"field"`
	Code           string `json:"code"`
	Message        string `json:"message"`
	SuggestedValue any    `json:"suggested_value,omitempty"`
}

// ValidationSuggestion is a typed recommendation for the reviewer.
type ValidationSuggestion struct {
	Type       SuggestionType `json:"type"`
	Field      string         `json:"field,omitempty"`
	Message    string         `json:"message"`
	Value      any            `json:"value,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
}

// ValidationResult is the verdict for one extraction. IsValid is false iff Errors is non-empty.
type ValidationResult struct {
	IsValid     bool                   `json:"is_valid"`
	Errors      []ValidationIssue      `json:"errors"`
	Warnings    []ValidationWarning    `json:"warnings"`
	Suggestions []ValidationSuggestion `json:"suggestions"`
}

// HasError reports whether an error with code is present.
func (r ValidationResult) HasError(code string) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// HasWarning reports whether a warning with code is present.
func (r ValidationResult) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}
