package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNoisePattern_UnmarshalYAML(t *testing.T) {
	src := `
- Sponsored
- text: advertentie
  ignore_case: true
`
	var patterns []NoisePattern
	require.NoError(t, yaml.Unmarshal([]byte(src), &patterns))
	require.Len(t, patterns, 2)

	assert.Equal(t, NoisePattern{Text: "Sponsored"}, patterns[0])
	assert.Equal(t, NoisePattern{Text: "advertentie", IgnoreCase: true}, patterns[1])
}

func TestNoisePattern_Matches(t *testing.T) {
	tests := []struct {
		name    string
		pattern NoisePattern
		input   string
		want    bool
	}{
		{"case sensitive hit", NoisePattern{Text: "Sponsored"}, "Sponsored: Milk", true},
		{"case sensitive miss", NoisePattern{Text: "Sponsored"}, "sponsored milk", false},
		{"ignore case", NoisePattern{Text: "sponsored", IgnoreCase: true}, "SPONSORED milk", true},
		{"empty never matches", NoisePattern{}, "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pattern.Matches(tt.input))
		})
	}
}

func TestSiteProfile_Validate(t *testing.T) {
	valid := func() *SiteProfile {
		return &SiteProfile{
			ID:             "ah",
			SearchURL:      "https://www.ah.nl/zoeken?query={query}",
			NameSelectors:  []string{".name"},
			PriceSelectors: []string{".price"},
			QuantitySource: QuantityParsedFromName,
		}
	}

	tests := []struct {
		name    string
		mutate  func(p *SiteProfile)
		wantErr string
	}{
		{"valid", func(p *SiteProfile) {}, ""},
		{"missing id", func(p *SiteProfile) { p.ID = "" }, "site_id is required"},
		{"box search without input selector", func(p *SiteProfile) { p.SearchURL = "https://example.com" }, "search_input_selector is required"},
		{"no price selectors", func(p *SiteProfile) { p.PriceSelectors = nil }, "price_selectors must not be empty"},
		{"structured without selectors", func(p *SiteProfile) { p.QuantitySource = QuantityStructuredField }, "quantity_selectors must not be empty"},
		{"unknown source", func(p *SiteProfile) { p.QuantitySource = "guess" }, `unknown quantity_source "guess"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			errs := p.Validate()
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.NotEmpty(t, errs)
			assert.Contains(t, errs[0], tt.wantErr)
		})
	}
}

func TestTarget_Validate(t *testing.T) {
	assert.Empty(t, Target{Site: "ah", Query: "melk"}.Validate())
	assert.Equal(t, []string{"site is required", "query is required"}, Target{Site: " ", Query: ""}.Validate())
}
