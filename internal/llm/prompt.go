package llm

import (
	"strconv"
	"strings"
)

// BuildSystemPrompt composes the fixed extraction contract given to the model.
func BuildSystemPrompt(req ExtractRequest) string {
	defCur := strings.TrimSpace(req.DefaultCurrency)
	if defCur == "" {
		defCur = "AUD"
	}

	var catLine string
	if len(req.AllowedCategories) > 0 {
		catLine = "'suggested_category' MUST be exactly one of: " + strings.Join(req.AllowedCategories, ", ") + ". If uncertain, choose 'OTHER'."
	} else {
		catLine = "'suggested_category' is a short spending category; if uncertain, use 'OTHER'."
	}

	parts := []string{
		"You are an invoice data extractor. Read the attached invoice image(s) and return ONLY a JSON object matching the provided JSON Schema.",
		"Extract: invoice_number, supplier_name, supplier_address, supplier_tax_id (ABN, VAT or GST number), a short 'description' of what was purchased, subtotal, tax_amount, tax_rate (percent), total_amount, currency, invoice_date, due_date and line 'items'.",
		"Monetary values MUST be bare numbers without currency symbols or thousands separators (e.g. 1234.50).",
		"Currency must be a 3-letter ISO 4217 code; default to " + defCur + " if not printed.",
		"Dates MUST use the format YYYY-MM-DD. Read day-first dates (DD/MM/YYYY) unless the document clearly uses another convention.",
		"Each item has description, quantity, unit_price, total and tax_rate.",
		catLine,
		"'category_confidence' is your certainty in the category from 0.0 to 1.0, and 'category_reasoning' is one short sentence explaining it.",
		"Use null for any value that is missing or unreadable. Never guess totals.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages file hints for the attached images.
func BuildUserPrompt(req ExtractRequest) string {
	var b strings.Builder
	if name := strings.TrimSpace(req.FileName); name != "" {
		b.WriteString("Filename: ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	if req.PageCount > 1 {
		b.WriteString("The document has ")
		b.WriteString(strconv.Itoa(req.PageCount))
		b.WriteString(" pages; the attached image shows them stacked top to bottom, separated by grey bands.\n")
	}
	b.WriteString("Extract the invoice data from the attached image and return ONLY JSON.")
	return b.String()
}
