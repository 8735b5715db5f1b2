package models

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type QuantitySource string

const (
	QuantityStructuredField QuantitySource = "structured_field"
	QuantityParsedFromName  QuantitySource = "parsed_from_name"
)

type Field string

const (
	FieldName     Field = "name"
	FieldPrice    Field = "price"
	FieldQuantity Field = "quantity"
)

// NoisePattern disqualifies an extracted name that contains Text.
type NoisePattern struct {
	Text       string `yaml:"text" json:"text"`
	IgnoreCase bool   `yaml:"ignore_case" json:"ignore_case"`
}

// UnmarshalYAML accepts either a bare string (case-sensitive) or a mapping.
func (n *NoisePattern) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		n.Text = value.Value
		n.IgnoreCase = false
		return nil
	}

	type plain NoisePattern
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*n = NoisePattern(p)
	return nil
}

// Matches reports whether name contains the pattern.
func (n NoisePattern) Matches(name string) bool {
	if n.Text == "" {
		return false
	}
	if n.IgnoreCase {
		return strings.Contains(strings.ToLower(name), strings.ToLower(n.Text))
	}
	return strings.Contains(name, n.Text)
}

// QuantityRules is the language-specific vocabulary used to normalize
// quantities. CountSuffixes follow a number directly ("15li", "10'lu");
// Units maps a token as it appears on the site to its canonical unit.
type QuantityRules struct {
	CountSuffixes []string        `yaml:"count_suffixes" json:"count_suffixes,omitempty"`
	Units         map[string]Unit `yaml:"units" json:"units,omitempty"`
}

func (r QuantityRules) IsEmpty() bool {
	return len(r.CountSuffixes) == 0 && len(r.Units) == 0
}

// SiteProfile describes how to search one retailer and where each field
// lives on its result page. Profiles are read-only once loaded.
type SiteProfile struct {
	ID                  string         `yaml:"site_id" json:"site_id"`
	Name                string         `yaml:"name" json:"name"`
	SearchURL           string         `yaml:"search_url" json:"search_url"`
	SearchInputSelector string         `yaml:"search_input_selector" json:"search_input_selector,omitempty"`
	ResultsSelector     string         `yaml:"results_selector" json:"results_selector,omitempty"`
	NameSelectors       []string       `yaml:"name_selectors" json:"name_selectors"`
	PriceSelectors      []string       `yaml:"price_selectors" json:"price_selectors"`
	QuantitySelectors   []string       `yaml:"quantity_selectors" json:"quantity_selectors,omitempty"`
	QuantitySource      QuantitySource `yaml:"quantity_source" json:"quantity_source"`
	Language            string         `yaml:"language" json:"language"`
	NoisePatterns       []NoisePattern `yaml:"noise_patterns" json:"noise_patterns,omitempty"`
	QuantityRules       QuantityRules  `yaml:"quantity_rules" json:"quantity_rules"`
}

// Selectors returns the ordered selector chain for a field.
func (p *SiteProfile) Selectors(field Field) []string {
	switch field {
	case FieldName:
		return p.NameSelectors
	case FieldPrice:
		return p.PriceSelectors
	case FieldQuantity:
		return p.QuantitySelectors
	default:
		return nil
	}
}

// UsesQueryURL reports whether the query is substituted into SearchURL
// rather than typed into the site's search box.
func (p *SiteProfile) UsesQueryURL() bool {
	return strings.Contains(p.SearchURL, "{query}")
}

func (p *SiteProfile) Validate() []string {
	var errors []string

	if p.ID == "" {
		errors = append(errors, "site_id is required")
	}

	if p.SearchURL == "" {
		errors = append(errors, "search_url is required")
	} else if !p.UsesQueryURL() && p.SearchInputSelector == "" {
		errors = append(errors, "search_input_selector is required when search_url has no {query} placeholder")
	}

	if len(p.NameSelectors) == 0 {
		errors = append(errors, "name_selectors must not be empty")
	}

	if len(p.PriceSelectors) == 0 {
		errors = append(errors, "price_selectors must not be empty")
	}

	switch p.QuantitySource {
	case QuantityParsedFromName:
	case QuantityStructuredField:
		if len(p.QuantitySelectors) == 0 {
			errors = append(errors, "quantity_selectors must not be empty for structured_field")
		}
	default:
		errors = append(errors, fmt.Sprintf("unknown quantity_source %q", p.QuantitySource))
	}

	return errors
}
