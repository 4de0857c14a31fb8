package entity

import "github.com/joseph-ayodele/invoice-pipeline/constants"

// SuggestionSource records which evidence produced a category suggestion.
type SuggestionSource string

const (
	SourceKeyword SuggestionSource = "keyword"
	SourceModel   SuggestionSource = "model"
	SourceBlended SuggestionSource = "blended"
	SourceDefault SuggestionSource = "default"
)

// CategoryAlternative is a ranked runner-up category.
type CategoryAlternative struct {
	Category   constants.Category `json:"category"`
	Confidence float64            `json:"confidence"`
}

// CategorySuggestion is the suggester's pick for an invoice.
type CategorySuggestion struct {
	SuggestedCategory     constants.Category    `json:"suggested_category"`
	Confidence            float64               `json:"confidence"`
	Reasoning             string                `json:"reasoning"`
	Source                SuggestionSource      `json:"source"`
	AlternativeCategories []CategoryAlternative `json:"alternative_categories"`
}
