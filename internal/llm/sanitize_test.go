package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

func TestNormalizeAndSanitizeJSON(t *testing.T) {
	raw := "```json\n" + `{
		"vendor_name": "  Telstra   Mobile ",
		"invoice_number": 10042,
		"total": "$1,234.50",
		"gst": "112.23",
		"subtotal": "1,122.27",
		"date": "15/03/2024",
		"due_date": "2024-04-15",
		"currency": "aud",
		"category": "telecom",
		"confidence": 85,
		"line_items": [{"description": " Plan ", "unit_price": "$99.00", "quantity": 2}, "junk"],
		"notes": "please pay"
	}` + "\n```"

	out, dropped, err := NormalizeAndSanitizeJSON([]byte(raw), nil)
	require.NoError(t, err)
	assert.Contains(t, dropped, "notes(unknown)")
	assert.Contains(t, dropped, "vendor_name->supplier_name")

	var d entity.ExtractedInvoiceData
	require.NoError(t, json.Unmarshal(out, &d))
	require.NotNil(t, d.SupplierName)
	assert.Equal(t, "Telstra Mobile", *d.SupplierName)
	assert.Equal(t, "10042", *d.InvoiceNumber)
	assert.InDelta(t, 1234.50, *d.TotalAmount, 1e-9)
	assert.InDelta(t, 112.23, *d.TaxAmount, 1e-9)
	assert.InDelta(t, 1122.27, *d.Subtotal, 1e-9)
	assert.Equal(t, "2024-03-15", *d.InvoiceDate)
	assert.Equal(t, "2024-04-15", *d.DueDate)
	assert.Equal(t, "AUD", *d.Currency)
	assert.Equal(t, string(constants.Communications), *d.SuggestedCategory)
	assert.InDelta(t, 0.85, *d.CategoryConfidence, 1e-9)
	require.Len(t, d.Items, 1)
	assert.Equal(t, "Plan", d.Items[0].Description)
	assert.InDelta(t, 99.0, *d.Items[0].UnitPrice, 1e-9)

	require.NoError(t, ValidateJSONAgainstSchema(BuildInvoiceJSONSchema(constants.AsStringSlice()), out))
}

func TestNormalizeAndSanitizeJSON_Unparseable(t *testing.T) {
	out, dropped, err := NormalizeAndSanitizeJSON([]byte(`{
		"total_amount": "about twelve",
		"invoice_date": "sometime",
		"currency": "dollars",
		"suggested_category": "groceries",
		"supplier_name": "   "
	}`), nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"total_amount(unparseable)",
		"invoice_date(unparseable)",
		"currency(invalid)",
		"suggested_category(unknown)",
	}, dropped)

	var d entity.ExtractedInvoiceData
	require.NoError(t, json.Unmarshal(out, &d))
	assert.Nil(t, d.TotalAmount)
	assert.Nil(t, d.InvoiceDate)
	assert.Nil(t, d.Currency)
	assert.Nil(t, d.SuggestedCategory)
	assert.Nil(t, d.SupplierName)
}

func TestNormalizeAndSanitizeJSON_NotObject(t *testing.T) {
	_, _, err := NormalizeAndSanitizeJSON([]byte(`not json`), nil)
	assert.Error(t, err)
	_, _, err = NormalizeAndSanitizeJSON([]byte(`null`), nil)
	assert.Error(t, err)
}

func TestCoerceNumber(t *testing.T) {
	tests := []struct {
		in   any
		want *float64
		ok   bool
	}{
		{"1,234.56", entity.FloatPtr(1234.56), true},
		{"AUD 45.00", entity.FloatPtr(45), true},
		{"(10.00)", entity.FloatPtr(-10), true},
		{12.5, entity.FloatPtr(12.5), true},
		{"", nil, true},
		{nil, nil, true},
		{"n/a", nil, false},
		{true, nil, false},
	}
	for _, tt := range tests {
		got, ok := coerceNumber(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		if tt.want == nil {
			assert.Nil(t, got, "%v", tt.in)
		} else if assert.NotNil(t, got, "%v", tt.in) {
			assert.InDelta(t, *tt.want, *got, 1e-9)
		}
	}
}

func TestNormalizeDate(t *testing.T) {
	for in, want := range map[string]string{
		"2024-03-05":    "2024-03-05",
		"05/03/2024":    "2024-03-05",
		"5/3/2024":      "2024-03-05",
		"5 Mar 2024":    "2024-03-05",
		"5 March 2024":  "2024-03-05",
		"March 5, 2024": "2024-03-05",
		"2024/03/05":    "2024-03-05",
	} {
		got, ok := normalizeDate(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
}
