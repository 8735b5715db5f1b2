package parser

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/maltedev/grocery-price-scraper/internal/models"
)

// Word boundaries are spelled out with \p{L} because RE2's \b is ASCII-only
// and does not see "ı" or "ü" as word characters.
const (
	numberExpr   = `(\d+(?:[.,]\d+)?)`
	trailingExpr = `(?:[^\p{L}]|$)`
	leadingExpr  = `(?:^|[^\p{L}\d])`
)

var languageRules = map[string]models.QuantityRules{
	"tr": {
		CountSuffixes: []string{"li", "lı", "lu", "lü"},
		Units: map[string]models.Unit{
			"kg":    models.UnitKilogram,
			"g":     models.UnitGram,
			"gr":    models.UnitGram,
			"l":     models.UnitLiter,
			"lt":    models.UnitLiter,
			"litre": models.UnitLiter,
			"ml":    models.UnitMilliliter,
			"adet":  models.UnitCount,
			"paket": models.UnitPack,
		},
	},
	"nl": {
		CountSuffixes: []string{"-pack"},
		Units: map[string]models.Unit{
			"kg":     models.UnitKilogram,
			"kilo":   models.UnitKilogram,
			"g":      models.UnitGram,
			"gram":   models.UnitGram,
			"l":      models.UnitLiter,
			"lt":     models.UnitLiter,
			"liter":  models.UnitLiter,
			"ml":     models.UnitMilliliter,
			"stuks":  models.UnitCount,
			"stuk":   models.UnitCount,
			"st":     models.UnitCount,
			"pak":    models.UnitPack,
			"pakken": models.UnitPack,
		},
	},
	"en": {
		CountSuffixes: []string{"-count", "ct", "-pack"},
		Units: map[string]models.Unit{
			"kg":     models.UnitKilogram,
			"g":      models.UnitGram,
			"l":      models.UnitLiter,
			"liter":  models.UnitLiter,
			"litre":  models.UnitLiter,
			"ml":     models.UnitMilliliter,
			"pcs":    models.UnitCount,
			"piece":  models.UnitCount,
			"pieces": models.UnitCount,
			"pack":   models.UnitPack,
			"pk":     models.UnitPack,
		},
	},
}

// RulesForLanguage returns a copy of the built-in vocabulary for a language
// code. Unknown languages get the English vocabulary.
func RulesForLanguage(language string) models.QuantityRules {
	rules, ok := languageRules[strings.ToLower(language)]
	if !ok {
		rules = languageRules["en"]
	}

	units := make(map[string]models.Unit, len(rules.Units))
	for token, unit := range rules.Units {
		units[token] = unit
	}
	return models.QuantityRules{
		CountSuffixes: append([]string(nil), rules.CountSuffixes...),
		Units:         units,
	}
}

// RulesFor returns the profile's own quantity rules, falling back to the
// built-in vocabulary of its language.
func RulesFor(profile *models.SiteProfile) models.QuantityRules {
	if profile == nil || profile.QuantityRules.IsEmpty() {
		lang := ""
		if profile != nil {
			lang = profile.Language
		}
		return RulesForLanguage(lang)
	}
	return profile.QuantityRules
}

// QuantityParser turns free text into a canonical quantity. It is immutable
// after construction.
type QuantityParser struct {
	countPattern    *regexp.Regexp
	unitPattern     *regexp.Regexp
	bareUnitPattern *regexp.Regexp
	units           map[string]models.Unit
}

func NewQuantityParser(rules models.QuantityRules) *QuantityParser {
	p := &QuantityParser{units: make(map[string]models.Unit, len(rules.Units))}

	tokens := make([]string, 0, len(rules.Units))
	for token, unit := range rules.Units {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		p.units[token] = unit
		tokens = append(tokens, token)
	}

	if suffixes := alternation(rules.CountSuffixes); suffixes != "" {
		p.countPattern = regexp.MustCompile(`(?i)(\d+)\s?['’]?(?:` + suffixes + `)` + trailingExpr)
	}
	if units := alternation(tokens); units != "" {
		p.unitPattern = regexp.MustCompile(`(?i)` + numberExpr + `\s*(` + units + `)` + trailingExpr)
		p.bareUnitPattern = regexp.MustCompile(`(?i)` + leadingExpr + `(` + units + `)` + trailingExpr)
	}

	return p
}

// Parse applies, in order: count-word, number followed by unit, bare unit
// (amount 1). Anything else is Unknown.
func (p *QuantityParser) Parse(text string) models.Quantity {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.UnknownQuantity()
	}

	if p.countPattern != nil {
		if matches := p.countPattern.FindStringSubmatch(text); len(matches) >= 2 {
			if amount := parseFloat(matches[1]); amount > 0 {
				return models.ParsedQuantity(amount, models.UnitCount)
			}
		}
	}

	if p.unitPattern != nil {
		if matches := p.unitPattern.FindStringSubmatch(text); len(matches) >= 3 {
			if unit, ok := p.units[strings.ToLower(matches[2])]; ok {
				if amount := parseFloat(matches[1]); amount > 0 {
					return models.ParsedQuantity(amount, unit)
				}
			}
		}
	}

	if p.bareUnitPattern != nil {
		if matches := p.bareUnitPattern.FindStringSubmatch(text); len(matches) >= 2 {
			if unit, ok := p.units[strings.ToLower(matches[1])]; ok {
				return models.ParsedQuantity(1, unit)
			}
		}
	}

	return models.UnknownQuantity()
}

// Normalize parses text with the profile's quantity vocabulary.
func Normalize(text string, profile *models.SiteProfile) models.Quantity {
	return NewQuantityParser(RulesFor(profile)).Parse(text)
}

// alternation joins tokens longest first so that "ml" wins over "l" and
// "lt" over "l" under leftmost-first matching.
func alternation(tokens []string) string {
	sorted := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t != "" {
			sorted = append(sorted, t)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len([]rune(sorted[i])) > len([]rune(sorted[j]))
	})

	quoted := make([]string, len(sorted))
	for i, t := range sorted {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return strings.Join(quoted, "|")
}

func parseFloat(s string) float64 {
	s = strings.ReplaceAll(s, ",", ".")
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
