package constants

import (
	"strings"
)

type Category string

const (
	AdvertisingMarketing  Category = "ADVERTISING_MARKETING"
	BankFees              Category = "BANK_FEES"
	Communications        Category = "COMMUNICATIONS"
	Equipment             Category = "EQUIPMENT"
	Insurance             Category = "INSURANCE"
	MealsEntertainment    Category = "MEALS_ENTERTAINMENT"
	OfficeSupplies        Category = "OFFICE_SUPPLIES"
	ProfessionalServices  Category = "PROFESSIONAL_SERVICES"
	Rent                  Category = "RENT"
	SoftwareSubscriptions Category = "SOFTWARE_SUBSCRIPTIONS"
	Travel                Category = "TRAVEL"
	Utilities             Category = "UTILITIES"
	Other                 Category = "OTHER"
)

var allCategories = []Category{
	AdvertisingMarketing,
	BankFees,
	Communications,
	Equipment,
	Insurance,
	MealsEntertainment,
	OfficeSupplies,
	ProfessionalServices,
	Rent,
	SoftwareSubscriptions,
	Travel,
	Utilities,
	Other,
}

// categoryLabels are the human-readable names used in reasoning strings and reports.
var categoryLabels = map[Category]string{
	AdvertisingMarketing:  "Advertising & Marketing",
	BankFees:              "Bank Fees",
	Communications:        "Communications",
	Equipment:             "Equipment",
	Insurance:             "Insurance",
	MealsEntertainment:    "Meals & Entertainment",
	OfficeSupplies:        "Office Supplies",
	ProfessionalServices:  "Professional Services",
	Rent:                  "Rent",
	SoftwareSubscriptions: "Software & Subscriptions",
	Travel:                "Travel",
	Utilities:             "Utilities",
	Other:                 "Other",
}

// deductibleCategories are business expense categories that usually qualify for a tax claim.
var deductibleCategories = map[Category]struct{}{
	AdvertisingMarketing:  {},
	BankFees:              {},
	Communications:        {},
	Equipment:             {},
	Insurance:             {},
	OfficeSupplies:        {},
	ProfessionalServices:  {},
	Rent:                  {},
	SoftwareSubscriptions: {},
	Travel:                {},
	Utilities:             {},
}

// AllCategories returns a copy of the category enumeration in display order.
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Label returns the display name of c, or the raw value when unknown.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

func (c Category) Deductible() bool {
	_, ok := deductibleCategories[c]
	return ok
}

func Canonicalize(input string) (Category, bool) {
	if strings.TrimSpace(input) == "" {
		return Other, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.NewReplacer("&", "", "-", " ", "_", " ").Replace(normalized)
	normalized = strings.Join(strings.Fields(normalized), " ")

	// synonyms map
	synonyms := map[string]Category{
		"advertising":   AdvertisingMarketing,
		"marketing":     AdvertisingMarketing,
		"telecom":       Communications,
		"phone":         Communications,
		"internet":      Communications,
		"meals":         MealsEntertainment,
		"entertainment": MealsEntertainment,
		"software":      SoftwareSubscriptions,
		"subscription":  SoftwareSubscriptions,
		"saas":          SoftwareSubscriptions,
		"office":        OfficeSupplies,
		"stationery":    OfficeSupplies,
		"consulting":    ProfessionalServices,
		"legal":         ProfessionalServices,
		"accounting":    ProfessionalServices,
		"lease":         Rent,
		"hardware":      Equipment,
		"electricity":   Utilities,
		"fuel":          Travel,
	}

	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	// check if it matches any category value or label
	for _, cat := range allCategories {
		value := strings.ReplaceAll(strings.ToLower(string(cat)), "_", " ")
		label := strings.Join(strings.Fields(strings.ReplaceAll(strings.ToLower(cat.Label()), "&", "")), " ")
		if normalized == value || normalized == label {
			return cat, true
		}
	}

	return Other, false
}
