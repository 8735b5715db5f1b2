package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Categories is the closed set a product name is classified into.
var Categories = []string{
	"milk",
	"bread",
	"egg",
	"flour",
	"minced_meat",
	"oil",
	"pepper",
	"cheese",
	"fruit",
	"vegetable",
	"unknown",
}

var categorySchema = &genai.Schema{
	Type: genai.TypeString,
	Enum: Categories,
}

// Classifier maps a product name to one of Categories.
type Classifier struct {
	gen Generator
}

func NewClassifier(gen Generator) *Classifier {
	return &Classifier{gen: gen}
}

// Classify returns "unknown" for replies outside Categories.
func (c *Classifier) Classify(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown", nil
	}

	reply, err := c.gen.Generate(ctx, buildCategoryPrompt(name), &genai.GenerateContentConfig{
		CandidateCount:   1,
		ResponseMIMEType: "text/x.enum",
		ResponseSchema:   categorySchema,
	})
	if err != nil {
		return "", fmt.Errorf("classify %q: %w", name, err)
	}
	return normalizeCategory(reply), nil
}

func buildCategoryPrompt(name string) string {
	return strings.TrimSpace(`
Given the following product name, classify it into one of the following categories:
[` + strings.Join(Categories, ", ") + `]

Product Name: "` + name + `"

Respond with only the category name.
`)
}

func normalizeCategory(reply string) string {
	category := strings.ToLower(strings.Trim(strings.TrimSpace(reply), "\"'`*."))
	category = strings.ReplaceAll(category, " ", "_")
	for _, c := range Categories {
		if c == category {
			return c
		}
	}
	return "unknown"
}
