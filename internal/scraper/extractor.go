package scraper

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/grocery-price-scraper/internal/models"
	"github.com/maltedev/grocery-price-scraper/internal/parser"
)

// Extractor reads fields from a page view through a profile's ordered
// selector chains. It holds no per-run state.
type Extractor struct {
	selectorTimeout time.Duration
	logger          *slog.Logger
}

func NewExtractor(selectorTimeout time.Duration, logger *slog.Logger) *Extractor {
	if selectorTimeout <= 0 {
		selectorTimeout = DefaultSelectorTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		selectorTimeout: selectorTimeout,
		logger:          logger.With("component", "extractor"),
	}
}

// Extract returns the trimmed text of the first selector in the field's
// chain that yields non-whitespace text. A selector that errors or times
// out is skipped.
func (e *Extractor) Extract(ctx context.Context, page PageView, field models.Field, profile *models.SiteProfile) (string, bool) {
	for i, selector := range profile.Selectors(field) {
		text, err := e.lookup(ctx, page, selector)
		if err != nil {
			e.logger.Debug("selector lookup failed",
				"site", profile.ID,
				"field", field,
				"selector", selector,
				"error", err)
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		e.logger.Debug("selector matched",
			"site", profile.ID,
			"field", field,
			"position", i,
			"selector", selector)
		return text, true
	}

	return "", false
}

func (e *Extractor) lookup(ctx context.Context, page PageView, selector string) (string, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, e.selectorTimeout)
	defer cancel()

	return page.FirstText(lookupCtx, selector)
}

// ExtractQuantity resolves the product quantity. Structured-field profiles
// take the field's literal text when present; otherwise the name is
// normalized. The raw structured text is returned for the attempt record.
func (e *Extractor) ExtractQuantity(ctx context.Context, page PageView, name string, profile *models.SiteProfile) (models.Quantity, *string) {
	if profile.QuantitySource == models.QuantityStructuredField {
		if raw, ok := e.Extract(ctx, page, models.FieldQuantity, profile); ok {
			return models.LiteralQuantity(raw), &raw
		}
	}

	if name == "" {
		return models.UnknownQuantity(), nil
	}
	return parser.Normalize(name, profile), nil
}
