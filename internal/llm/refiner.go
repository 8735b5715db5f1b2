package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/maltedev/grocery-price-scraper/internal/models"
)

var languageNames = map[string]string{
	"tr": "Turkish",
	"nl": "Dutch",
	"en": "English",
	"de": "German",
	"fr": "French",
}

// Refiner asks the model for an alternative search term in the site's
// language.
type Refiner struct {
	gen Generator
}

func NewRefiner(gen Generator) *Refiner {
	return &Refiner{gen: gen}
}

func (r *Refiner) SuggestAlternative(ctx context.Context, query string, profile *models.SiteProfile) (string, error) {
	reply, err := r.gen.Generate(ctx, buildRefinePrompt(query, profile), &genai.GenerateContentConfig{
		CandidateCount:  1,
		MaxOutputTokens: 32,
	})
	if err != nil {
		return "", fmt.Errorf("refine %q: %w", query, err)
	}
	return firstTerm(reply), nil
}

func buildRefinePrompt(query string, profile *models.SiteProfile) string {
	site := profile.Name
	if site == "" {
		site = profile.ID
	}

	return strings.TrimSpace(`
A search for "` + query + `" on the supermarket website ` + site + ` returned no usable product.
Suggest a single better search term (1-3 words only, no explanation).
The term must be in ` + languageName(profile.Language) + `, the language of the website.
`)
}

func languageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	if code == "" {
		return "English"
	}
	return code
}

// firstTerm keeps the first non-blank line of a reply, minus decoration.
func firstTerm(reply string) string {
	for _, line := range strings.Split(reply, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "\"'`*.")
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
