package validation

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// Warning codes. Error codes live in common.
const (
	WarnMissingInvoiceNumber = "missing-invoice-number"
	WarnMissingDate          = "missing-date"
	WarnInvalidDate          = "invalid-date"
	WarnInvalidCurrency      = "invalid-currency"
	WarnDueBeforeInvoice     = "due-before-invoice"
	WarnItemsMismatch        = "items-subtotal-mismatch"
	WarnTaxRateMismatch      = "tax-rate-mismatch"
	WarnNegativeTotal        = "negative-total"
)

// Config holds the engine thresholds.
type Config struct {
	Tolerance           float64 // money comparison slack
	ReviewFloor         float64 // below this a model category is ignored
	GoodConfidence      float64 // below this a category review is suggested
	HighConfidence      float64
	PaymentReminderDays int
	TaxRateTolerance    float64 // percentage points
	DefaultCurrency     string
}

func DefaultConfig() Config {
	return Config{
		Tolerance:           0.01,
		ReviewFloor:         0.3,
		GoodConfidence:      0.6,
		HighConfidence:      0.8,
		PaymentReminderDays: 7,
		TaxRateTolerance:    0.5,
		DefaultCurrency:     "AUD",
	}
}

// Engine checks extracted invoice data for completeness and arithmetic consistency.
type Engine struct {
	cfg Config
	now func() time.Time
}

func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.ReviewFloor <= 0 {
		cfg.ReviewFloor = def.ReviewFloor
	}
	if cfg.GoodConfidence <= 0 {
		cfg.GoodConfidence = def.GoodConfidence
	}
	if cfg.HighConfidence <= 0 {
		cfg.HighConfidence = def.HighConfidence
	}
	if cfg.PaymentReminderDays <= 0 {
		cfg.PaymentReminderDays = def.PaymentReminderDays
	}
	if cfg.TaxRateTolerance <= 0 {
		cfg.TaxRateTolerance = def.TaxRateTolerance
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = def.DefaultCurrency
	}
	return &Engine{cfg: cfg, now: time.Now}
}

// WithClock overrides the engine's notion of today. Used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Validate never fails; every problem is reported in the result.
func (e *Engine) Validate(d entity.ExtractedInvoiceData) entity.ValidationResult {
	r := entity.ValidationResult{
		Errors:      []entity.ValidationIssue{},
		Warnings:    []entity.ValidationWarning{},
		Suggestions: []entity.ValidationSuggestion{},
	}

	e.checkRequired(d, &r)
	e.checkArithmetic(d, &r)
	e.checkInvoiceNumber(d, &r)
	e.checkDates(d, &r)
	e.checkCurrency(d, &r)
	e.checkItems(d, &r)
	e.checkTaxRate(d, &r)

	e.suggestCategory(d, &r)
	e.suggestSupplier(d, &r)
	e.suggestTaxDeduction(d, &r)

	r.IsValid = len(r.Errors) == 0
	return r
}

func (e *Engine) checkRequired(d entity.ExtractedInvoiceData, r *entity.ValidationResult) {
	if d.TotalAmount == nil {
		r.Errors = append(r.Errors, entity.ValidationIssue{
			Field:    "total_amount",
			Code:     common.CodeMissingTotal,
			Message:  "Total amount is required",
			Severity: entity.SeverityHigh,
		})
	} else if *d.TotalAmount < 0 {
		r.Warnings = append(r.Warnings, entity.ValidationWarning{
			Field:   "total_amount",
			Code:    WarnNegativeTotal,
			Message: "Total amount is negative; this may be a credit note",
		})
	}
	if strings.TrimSpace(d.Supplier()) == "" {
		r.Errors = append(r.Errors, entity.ValidationIssue{
			Field:    "supplier_name",
			Code:     common.CodeMissingSupplier,
			Message:  "Supplier name is required",
			Severity: entity.SeverityHigh,
		})
	}
}

func (e *Engine) checkArithmetic(d entity.ExtractedInvoiceData, r *entity.ValidationResult) {
	if d.Subtotal == nil || d.TaxAmount == nil || d.TotalAmount == nil {
		return
	}
	expected := round2(*d.Subtotal + *d.TaxAmount)
	actual := *d.TotalAmount
	if math.Abs(expected-actual) > e.cfg.Tolerance+1e-9 {
		r.Errors = append(r.Errors, entity.ValidationIssue{
			Field:    "total_amount",
			Code:     common.CodeCalculationError,
			Message:  fmt.Sprintf("Subtotal plus tax is %.2f but total is %.2f", expected, actual),
			Severity: entity.SeverityMedium,
			Expected: entity.FloatPtr(expected),
			Actual:   entity.FloatPtr(actual),
		})
	}
}

func (e *Engine) checkInvoiceNumber(d entity.ExtractedInvoiceData, r *entity.ValidationResult) {
	if d.InvoiceNumber == nil || strings.TrimSpace(*d.InvoiceNumber) == "" {
		r.Warnings = append(r.Warnings, entity.ValidationWarning{
			Field:   "invoice_number",
			Code:    WarnMissingInvoiceNumber,
			Message: "Invoice number was not found",
		})
	}
}

func (e *Engine) checkDates(d entity.ExtractedInvoiceData, r *entity.ValidationResult) {
	issued, hasIssued := d.ParsedInvoiceDate()
	switch {
	case d.InvoiceDate == nil || strings.TrimSpace(*d.InvoiceDate) == "":
		r.Warnings = append(r.Warnings, entity.ValidationWarning{
			Field:   "invoice_date",
			Code:    WarnMissingDate,
			Message: "Invoice date was not found",
		})
	case !hasIssued:
		r.Warnings = append(r.Warnings, entity.ValidationWarning{
			Field:   "invoice_date",
			Code:    WarnInvalidDate,
			Message: "Invoice date is not in YYYY-MM-DD format",
		})
	}

	due, hasDue := d.ParsedDueDate()
	if !hasDue {
		return
	}
	if hasIssued && due.Before(issued) {
		r.Warnings = append(r.Warnings, entity.ValidationWarning{
			Field:          "due_date",
			Code:           WarnDueBeforeInvoice,
			Message:        "Due date is before the invoice date",
			SuggestedValue: issued.Format(entity.DateLayout),
		})
	}

	today := truncateDay(e.now())
	days := int(due.Sub(today).Hours() / 24)
	if days <= e.cfg.PaymentReminderDays {
		msg := fmt.Sprintf("Payment is due in %d days", days)
		switch {
		case days < 0:
			msg = fmt.Sprintf("Payment was due %d days ago", -days)
		case days == 0:
			msg = "Payment is due today"
		}
		r.Suggestions = append(r.Suggestions, entity.ValidationSuggestion{
			Type:    entity.SuggestionPaymentReminder,
			Field:   "due_date",
			Message: msg,
			Value:   due.Format(entity.DateLayout),
		})
	}
}

func (e *Engine) checkCurrency(d entity.ExtractedInvoiceData, r *entity.ValidationResult) {
	if d.Currency == nil {
		return
	}
	if !common.IsCurrencyCode(*d.Currency) {
		r.Warnings = append(r.Warnings, entity.ValidationWarning{
			Field:          "currency",
			Code:           WarnInvalidCurrency,
			Message:        fmt.Sprintf("%q is not a recognised currency code", *d.Currency),
			SuggestedValue: e.cfg.DefaultCurrency,
		})
	}
}

func (e *Engine) checkItems(d entity.ExtractedInvoiceData, r *entity.ValidationResult) {
	if d.Subtotal == nil || len(d.Items) == 0 {
		return
	}
	var sum float64
	for _, it := range d.Items {
		switch {
		case it.Total != nil:
			sum += *it.Total
		case it.Quantity != nil && it.UnitPrice != nil:
			sum += *it.Quantity * *it.UnitPrice
		default:
			// an item without an amount makes the sum meaningless
			return
		}
	}
	sum = round2(sum)
	if math.Abs(sum-*d.Subtotal) > e.cfg.Tolerance+1e-9 {
		r.Warnings = append(r.Warnings, entity.ValidationWarning{
			Field:          "subtotal",
			Code:           WarnItemsMismatch,
			Message:        fmt.Sprintf("Line items add up to %.2f but subtotal is %.2f", sum, *d.Subtotal),
			SuggestedValue: sum,
		})
	}
}

func (e *Engine) checkTaxRate(d entity.ExtractedInvoiceData, r *entity.ValidationResult) {
	if d.TaxRate == nil || d.TaxAmount == nil || d.Subtotal == nil || *d.Subtotal == 0 {
		return
	}
	implied := *d.TaxAmount / *d.Subtotal * 100
	if math.Abs(implied-*d.TaxRate) > e.cfg.TaxRateTolerance {
		r.Warnings = append(r.Warnings, entity.ValidationWarning{
			Field:          "tax_rate",
			Code:           WarnTaxRateMismatch,
			Message:        fmt.Sprintf("Tax rate %.2f%% does not match tax amount (%.2f%%)", *d.TaxRate, implied),
			SuggestedValue: round2(implied),
		})
	}
}

func (e *Engine) suggestCategory(d entity.ExtractedInvoiceData, r *entity.ValidationResult) {
	if d.CategoryConfidence == nil {
		return
	}
	c := *d.CategoryConfidence
	if c > e.cfg.ReviewFloor && c < e.cfg.GoodConfidence {
		s := entity.ValidationSuggestion{
			Type:       entity.SuggestionCategory,
			Field:      "suggested_category",
			Message:    "Category confidence is low; please review the category",
			Confidence: entity.FloatPtr(c),
		}
		if d.SuggestedCategory != nil {
			s.Value = *d.SuggestedCategory
		}
		r.Suggestions = append(r.Suggestions, s)
	}
}

func (e *Engine) suggestSupplier(d entity.ExtractedInvoiceData, r *entity.ValidationResult) {
	raw := d.Supplier()
	if strings.TrimSpace(raw) == "" {
		return
	}
	cleaned := CleanSupplierName(raw)
	if cleaned != raw {
		r.Suggestions = append(r.Suggestions, entity.ValidationSuggestion{
			Type:    entity.SuggestionSupplierCorrection,
			Field:   "supplier_name",
			Message: fmt.Sprintf("Supplier name could be %q", cleaned),
			Value:   cleaned,
		})
	}
}

func (e *Engine) suggestTaxDeduction(d entity.ExtractedInvoiceData, r *entity.ValidationResult) {
	if d.SuggestedCategory == nil || d.TaxAmount == nil || *d.TaxAmount <= 0 {
		return
	}
	cat, ok := constants.Canonicalize(*d.SuggestedCategory)
	if !ok || !cat.Deductible() {
		return
	}
	r.Suggestions = append(r.Suggestions, entity.ValidationSuggestion{
		Type:    entity.SuggestionTaxDeduction,
		Field:   "tax_amount",
		Message: fmt.Sprintf("%s expenses are usually deductible; tax of %.2f may be claimable", cat.Label(), *d.TaxAmount),
		Value:   *d.TaxAmount,
	})
}

// CleanSupplierName collapses whitespace and title-cases names written all in one case.
func CleanSupplierName(s string) string {
	words := strings.Fields(s)
	joined := strings.Join(words, " ")
	if joined != strings.ToUpper(joined) && joined != strings.ToLower(joined) {
		return joined
	}
	for i, w := range words {
		if isAcronym(w) {
			continue
		}
		rs := []rune(strings.ToLower(w))
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}

// isAcronym keeps short all-caps tokens like "AGL" or "NBN".
func isAcronym(w string) bool {
	return len(w) <= 3 && w == strings.ToUpper(w)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
