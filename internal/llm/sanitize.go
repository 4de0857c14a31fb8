package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

var (
	moneyFields = []string{"subtotal", "tax_amount", "total_amount"}
	itemMoney   = []string{"quantity", "unit_price", "total", "tax_rate"}
	dateFields  = []string{"invoice_date", "due_date"}
	textFields  = []string{
		"invoice_number", "supplier_name", "supplier_address", "supplier_tax_id",
		"description", "category_reasoning",
	}

	allowedKeys = map[string]struct{}{
		"invoice_number": {}, "supplier_name": {}, "supplier_address": {}, "supplier_tax_id": {},
		"subtotal": {}, "tax_amount": {}, "tax_rate": {}, "total_amount": {}, "currency": {},
		"invoice_date": {}, "due_date": {}, "description": {}, "items": {},
		"suggested_category": {}, "category_confidence": {}, "category_reasoning": {},
	}

	// reNumberNoise strips currency symbols, codes and grouping from money strings.
	reNumberNoise = regexp.MustCompile(`[^0-9.\-]`)

	dateLayouts = []string{
		entity.DateLayout,
		"2006/01/02",
		"02/01/2006",
		"2/1/2006",
		"02-01-2006",
		"02.01.2006",
		"2 Jan 2006",
		"02 Jan 2006",
		"2 January 2006",
		"January 2, 2006",
		"Jan 2, 2006",
		time.RFC3339,
	}
)

// NormalizeAndSanitizeJSON
// - Strips markdown code fences
// - Renames known synonyms (vendor_name -> supplier_name, gst -> tax_amount, ...)
// - Coerces money strings like "$1,234.50" to numbers, drops unparseable money
// - Normalizes dates to YYYY-MM-DD and categories to the enum
// - Removes unknown keys (strict additionalProperties = false friendliness)
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(cleanJSONBlock(string(raw))), &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}
	if m == nil {
		return nil, nil, fmt.Errorf("sanitize: response is not a JSON object")
	}

	dropped := make([]string, 0, 8)
	renamed := func(from, to string) {
		if v, ok := m[from]; ok {
			// don't overwrite existing value if already present
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			dropped = append(dropped, from+"->"+to)
		}
	}

	// 1) rename synonyms to the schema
	renamed("vendor_name", "supplier_name")
	renamed("supplier", "supplier_name")
	renamed("abn", "supplier_tax_id")
	renamed("total", "total_amount")
	renamed("tax", "tax_amount")
	renamed("gst", "tax_amount")
	renamed("date", "invoice_date")
	renamed("line_items", "items")
	renamed("category", "suggested_category")
	renamed("confidence", "category_confidence")

	// 2) money and rates
	for _, k := range append(moneyFields, "tax_rate") {
		if v, ok := m[k]; ok {
			n, ok := coerceNumber(v)
			if !ok && v != nil {
				dropped = append(dropped, k+"(unparseable)")
			}
			m[k] = n
		}
	}

	// 3) dates
	for _, k := range dateFields {
		if v, ok := m[k]; ok {
			d, ok := normalizeDate(v)
			if !ok && v != nil {
				dropped = append(dropped, k+"(unparseable)")
			}
			m[k] = d
		}
	}

	// 4) currency
	if v, ok := m["currency"].(string); ok {
		cur := strings.ToUpper(strings.TrimSpace(v))
		if len(cur) == 3 {
			m["currency"] = cur
		} else {
			m["currency"] = nil
			dropped = append(dropped, "currency(invalid)")
		}
	} else if _, present := m["currency"]; present && m["currency"] != nil {
		m["currency"] = nil
		dropped = append(dropped, "currency(type)")
	}

	// 5) category + confidence
	if v, ok := m["suggested_category"].(string); ok {
		if cat, ok := constants.Canonicalize(v); ok {
			m["suggested_category"] = string(cat)
		} else {
			m["suggested_category"] = nil
			dropped = append(dropped, "suggested_category(unknown)")
		}
	} else if m["suggested_category"] != nil {
		m["suggested_category"] = nil
		dropped = append(dropped, "suggested_category(type)")
	}
	if v, ok := m["category_confidence"]; ok {
		if f, ok := coerceNumber(v); ok && f != nil {
			c := *f
			if c > 1 && c <= 100 {
				c = c / 100 // percent
			}
			c = min(max(c, 0), 1)
			m["category_confidence"] = c
		} else {
			m["category_confidence"] = nil
		}
	}

	// 6) line items
	if v, ok := m["items"]; ok && v != nil {
		list, ok := v.([]any)
		if !ok {
			m["items"] = nil
			dropped = append(dropped, "items(type)")
		} else {
			clean := make([]any, 0, len(list))
			for _, it := range list {
				obj, ok := it.(map[string]any)
				if !ok {
					dropped = append(dropped, "items[](type)")
					continue
				}
				out := map[string]any{}
				if d, ok := obj["description"].(string); ok && strings.TrimSpace(d) != "" {
					out["description"] = strings.TrimSpace(d)
				}
				for _, k := range itemMoney {
					if n, ok := coerceNumber(obj[k]); ok && n != nil {
						out[k] = *n
					}
				}
				clean = append(clean, out)
			}
			m["items"] = clean
		}
	}

	// 7) remove unknown keys (everything not in the schema set)
	for k := range maps.Clone(m) {
		if _, ok := allowedKeys[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	// 8) trim obvious strings
	for _, k := range textFields {
		switch v := m[k].(type) {
		case string:
			s := strings.Join(strings.Fields(v), " ")
			if s == "" || strings.EqualFold(s, "null") {
				m[k] = nil
			} else {
				m[k] = s
			}
		case float64:
			// invoice numbers sometimes come back numeric
			m[k] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "dropped", dropped)
	}
	return out, dropped, nil
}

// coerceNumber accepts JSON numbers and money-like strings. ok is false for values that
// could not be read; the returned pointer is nil for null and empty input.
func coerceNumber(v any) (*float64, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case float64:
		return &t, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.EqualFold(s, "null") || s == "-" {
			return nil, true
		}
		negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
		s = reNumberNoise.ReplaceAllString(s, "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		if negative && f > 0 {
			f = -f
		}
		return &f, true
	}
	return nil, false
}

func normalizeDate(v any) (any, bool) {
	s, ok := v.(string)
	if !ok {
		return nil, v == nil
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(entity.DateLayout), true
		}
	}
	return nil, false
}

// cleanJSONBlock removes markdown code block wrappers from JSON.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
