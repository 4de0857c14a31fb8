package category

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

const (
	HighConfidence    = 0.8
	MinConfidence     = 0.3 // model suggestions below this are ignored
	DefaultConfidence = 0.3
	keywordBase       = 0.5
	keywordStep       = 0.1
	keywordCap        = 0.9
	agreementBonus    = 0.1
	agreementCap      = 0.95
	maxAlternatives   = 3
)

const (
	supplierTemplate = "Based on supplier %q, this looks like %s"
	keywordTemplate  = "The invoice mentions %s terms, so it is most likely %s"
	modelTemplate    = "The invoice content suggests %s"
	defaultTemplate  = "No clear category signals were found; defaulting to %s"
)

// Input is everything the suggester looks at.
type Input struct {
	SupplierName    string
	Description     string
	ModelCategory   string
	ModelConfidence *float64
	ModelReasoning  string
}

// Suggester blends keyword evidence with the model's own category guess.
type Suggester struct {
	log *slog.Logger
}

func NewSuggester(logger *slog.Logger) *Suggester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Suggester{log: logger}
}

// InputFrom builds an Input from the extracted fields.
func InputFrom(d entity.ExtractedInvoiceData) Input {
	in := Input{SupplierName: d.Supplier(), ModelConfidence: d.CategoryConfidence}
	if d.Description != nil {
		in.Description = *d.Description
	}
	if d.SuggestedCategory != nil {
		in.ModelCategory = *d.SuggestedCategory
	}
	if d.CategoryReasoning != nil {
		in.ModelReasoning = *d.CategoryReasoning
	}
	return in
}

type score struct {
	cat      constants.Category
	total    int
	supplier int
}

func (s score) confidence() float64 {
	return math.Min(keywordCap, keywordBase+keywordStep*float64(s.total))
}

// Suggest never fails; with no evidence it returns OTHER at the default confidence.
func (s *Suggester) Suggest(in Input) entity.CategorySuggestion {
	scores := scoreKeywords(in.SupplierName, in.Description)

	modelCat, modelOK := constants.Canonicalize(in.ModelCategory)
	var modelConf float64
	if in.ModelConfidence != nil {
		modelConf = clamp01(*in.ModelConfidence)
	}
	usableModel := modelOK && modelConf >= MinConfidence

	var out entity.CategorySuggestion
	switch {
	case usableModel && modelConf > HighConfidence:
		out = entity.CategorySuggestion{
			SuggestedCategory: modelCat,
			Confidence:        modelConf,
			Reasoning:         modelReasoning(in, modelCat),
			Source:            entity.SourceModel,
		}
	case len(scores) > 0:
		top := scores[0]
		kwConf := top.confidence()
		out = entity.CategorySuggestion{
			SuggestedCategory: top.cat,
			Confidence:        kwConf,
			Reasoning:         keywordReasoning(in, top),
			Source:            entity.SourceKeyword,
		}
		if usableModel {
			switch {
			case modelCat == top.cat:
				out.Confidence = math.Min(agreementCap, math.Max(kwConf, modelConf)+agreementBonus)
				out.Source = entity.SourceBlended
			case modelConf > kwConf:
				out = entity.CategorySuggestion{
					SuggestedCategory: modelCat,
					Confidence:        modelConf,
					Reasoning:         modelReasoning(in, modelCat),
					Source:            entity.SourceModel,
				}
			}
		}
	case usableModel:
		out = entity.CategorySuggestion{
			SuggestedCategory: modelCat,
			Confidence:        modelConf,
			Reasoning:         modelReasoning(in, modelCat),
			Source:            entity.SourceModel,
		}
	default:
		out = entity.CategorySuggestion{
			SuggestedCategory: constants.Other,
			Confidence:        DefaultConfidence,
			Reasoning:         fmt.Sprintf(defaultTemplate, constants.Other.Label()),
			Source:            entity.SourceDefault,
		}
	}

	out.AlternativeCategories = alternatives(out.SuggestedCategory, scores, usableModel, modelCat, modelConf)
	out.Confidence = round2(out.Confidence)

	s.log.Debug("category.suggest",
		"supplier", in.SupplierName,
		"category", out.SuggestedCategory,
		"confidence", out.Confidence,
		"source", out.Source,
		"alternatives", len(out.AlternativeCategories),
	)
	return out
}

// scoreKeywords returns the categories with at least one hit, best first.
func scoreKeywords(supplier, description string) []score {
	sup := strings.ToLower(supplier)
	desc := strings.ToLower(description)

	var out []score
	for _, cat := range constants.AllCategories() {
		sc := score{cat: cat}
		for _, kw := range keywordSets[cat] {
			sc.supplier += strings.Count(sup, kw)
			sc.total += strings.Count(desc, kw)
		}
		sc.total += sc.supplier
		if sc.total > 0 {
			out = append(out, sc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].total != out[j].total {
			return out[i].total > out[j].total
		}
		return out[i].supplier > out[j].supplier
	})
	return out
}

func alternatives(chosen constants.Category, scores []score, usableModel bool, modelCat constants.Category, modelConf float64) []entity.CategoryAlternative {
	best := map[constants.Category]float64{}
	for _, sc := range scores {
		best[sc.cat] = math.Max(best[sc.cat], sc.confidence())
	}
	if usableModel {
		best[modelCat] = math.Max(best[modelCat], modelConf)
	}
	delete(best, chosen)

	out := make([]entity.CategoryAlternative, 0, len(best))
	for cat, conf := range best {
		out = append(out, entity.CategoryAlternative{Category: cat, Confidence: round2(conf)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Category < out[j].Category
	})
	if len(out) > maxAlternatives {
		out = out[:maxAlternatives]
	}
	return out
}

func keywordReasoning(in Input, top score) string {
	if top.supplier > 0 && strings.TrimSpace(in.SupplierName) != "" {
		return fmt.Sprintf(supplierTemplate, strings.TrimSpace(in.SupplierName), top.cat.Label())
	}
	return fmt.Sprintf(keywordTemplate, strings.ToLower(top.cat.Label()), top.cat.Label())
}

func modelReasoning(in Input, cat constants.Category) string {
	if r := strings.TrimSpace(in.ModelReasoning); r != "" {
		return r
	}
	return fmt.Sprintf(modelTemplate, cat.Label())
}

func clamp01(f float64) float64 { return math.Max(0, math.Min(1, f)) }

func round2(f float64) float64 { return math.Round(f*100) / 100 }
