package llm

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// Every field is nullable; the schema type-checks what the model returns.
func BuildInvoiceJSONSchema(allowedCategories []string) map[string]any {
	item := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description": nullable("string"),
			"quantity":    nullable("number"),
			"unit_price":  nullable("number"),
			"total":       nullable("number"),
			"tax_rate":    nullable("number"),
		},
	}

	props := map[string]any{
		"invoice_number":   nullable("string"),
		"supplier_name":    nullable("string"),
		"supplier_address": nullable("string"),
		"supplier_tax_id":  nullable("string"),
		"subtotal":         nullable("number"),
		"tax_amount":       nullable("number"),
		"tax_rate":         nullable("number"),
		"total_amount":     nullable("number"),
		"currency":         map[string]any{"type": []string{"string", "null"}, "pattern": `^[A-Z]{3}$`},
		"invoice_date":     dateProp(),
		"due_date":         dateProp(),
		"description":      nullable("string"),
		"items":            map[string]any{"type": []string{"array", "null"}, "items": item},
	}
	props["suggested_category"] = nullable("string")
	props["category_confidence"] = map[string]any{"type": []string{"number", "null"}, "minimum": 0.0, "maximum": 1.0}
	props["category_reasoning"] = nullable("string")

	// Constrain category if a taxonomy is provided.
	if len(allowedCategories) > 0 {
		enum := make([]any, 0, len(allowedCategories)+1)
		for _, c := range allowedCategories {
			enum = append(enum, c)
		}
		enum = append(enum, nil)
		props["suggested_category"] = map[string]any{"enum": enum}
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

func nullable(t string) map[string]any {
	return map[string]any{"type": []string{t, "null"}}
}

func dateProp() map[string]any {
	return map[string]any{
		"type":    []string{"string", "null"},
		"pattern": `^\d{4}-\d{2}-\d{2}$`,
	}
}
