package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/grocery-price-scraper/internal/models"
)

// Orchestrator runs the search, extract, validate and refine loop for one
// query at a time. It keeps no state between runs, so one instance may serve
// concurrent runs.
type Orchestrator struct {
	searcher   Searcher
	refiner    Refiner
	classifier Classifier
	extractor  *Extractor
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

// NewOrchestrator wires the collaborators. refiner and classifier may be nil:
// without a refiner the first failed attempt exhausts the run, without a
// classifier every category is "unknown".
func NewOrchestrator(searcher Searcher, refiner Refiner, classifier Classifier, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()

	return &Orchestrator{
		searcher:   searcher,
		refiner:    refiner,
		classifier: classifier,
		extractor:  NewExtractor(opts.SelectorTimeout, logger),
		opts:       opts,
		logger:     logger.With("component", "orchestrator"),
		now:        time.Now,
	}
}

func (o *Orchestrator) MaxAttempts() int {
	return o.opts.MaxAttempts
}

// Run searches profile for query until a valid product is found or the
// attempt budget is spent. Exhaustion is an outcome, not an error; the
// returned error is non-nil only for navigation failures and cancellation.
// Cancellation is observed between attempts.
func (o *Orchestrator) Run(ctx context.Context, profile *models.SiteProfile, query string) (models.Outcome, error) {
	if profile == nil {
		return models.Outcome{}, ErrUnknownSite
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return models.Outcome{}, ErrEmptyQuery
	}

	attempts := make([]models.ExtractionAttempt, 0, o.opts.MaxAttempts)
	current := query

	for number := 1; number <= o.opts.MaxAttempts; number++ {
		if err := ctx.Err(); err != nil {
			return models.Outcome{}, fmt.Errorf("run cancelled before attempt %d: %w", number, err)
		}

		o.logger.Info("searching",
			"site", profile.ID,
			"query", current,
			"attempt", number,
			"max_attempts", o.opts.MaxAttempts)

		attempt, result, err := o.attempt(ctx, profile, current, number)
		if err != nil {
			return models.Outcome{}, err
		}

		if result != nil {
			result.Category = o.classify(ctx, result.Name)
			result.SearchDate = o.now()

			o.logger.Info("product found",
				"site", profile.ID,
				"query", current,
				"attempt", number,
				"name", result.Name,
				"price", result.Price,
				"quantity", result.Quantity.String())
			return models.Found(*result), nil
		}

		if number == o.opts.MaxAttempts {
			attempts = append(attempts, attempt)
			break
		}

		suggestion := o.refine(ctx, profile, current)
		if suggestion == "" {
			attempts = append(attempts, attempt)
			break
		}

		attempt.Outcome = models.AttemptRefined
		attempts = append(attempts, attempt)

		o.logger.Info("query refined",
			"site", profile.ID,
			"from", current,
			"to", suggestion)
		current = suggestion
	}

	o.logger.Warn("search exhausted",
		"site", profile.ID,
		"query", query,
		"last_query", current,
		"attempts", len(attempts))
	return models.Exhausted(current, attempts), nil
}

// attempt executes one search and extraction. The page is closed before it
// returns. A nil result means validation failed.
func (o *Orchestrator) attempt(ctx context.Context, profile *models.SiteProfile, query string, number int) (models.ExtractionAttempt, *models.ProductResult, error) {
	record := models.ExtractionAttempt{
		Query:         query,
		AttemptNumber: number,
		Outcome:       models.AttemptNoMatch,
	}

	page, err := o.searcher.Search(ctx, profile, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !IsFatal(err) {
			return record, nil, fmt.Errorf("search cancelled: %w", ctxErr)
		}
		return record, nil, fmt.Errorf("search %q on %s: %w", query, profile.ID, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			o.logger.Debug("failed to close page", "site", profile.ID, "error", err)
		}
	}()

	name, hasName := o.extractor.Extract(ctx, page, models.FieldName, profile)
	price, hasPrice := o.extractor.Extract(ctx, page, models.FieldPrice, profile)
	quantity, rawQuantity := o.extractor.ExtractQuantity(ctx, page, name, profile)

	if hasName {
		record.RawName = &name
	}
	if hasPrice {
		record.RawPrice = &price
	}
	record.RawQuantity = rawQuantity

	if reason := rejectReason(name, price, profile); reason != "" {
		o.logger.Info("extraction rejected",
			"site", profile.ID,
			"query", query,
			"attempt", number,
			"reason", reason)
		return record, nil, nil
	}

	record.Outcome = models.AttemptSuccess
	return record, &models.ProductResult{
		Name:     name,
		Price:    price,
		Quantity: quantity,
	}, nil
}

// refine asks the refiner for a new query. Errors, timeouts and blank
// suggestions all come back as "".
func (o *Orchestrator) refine(ctx context.Context, profile *models.SiteProfile, query string) string {
	if o.refiner == nil {
		return ""
	}

	refineCtx, cancel := context.WithTimeout(ctx, o.opts.RefineTimeout)
	defer cancel()

	suggestion, err := o.refiner.SuggestAlternative(refineCtx, query, profile)
	if err != nil {
		o.logger.Warn("query refinement failed",
			"site", profile.ID,
			"query", query,
			"error", err)
		return ""
	}
	return strings.TrimSpace(suggestion)
}

func (o *Orchestrator) classify(ctx context.Context, name string) string {
	if o.classifier == nil {
		return UnknownCategory
	}

	classifyCtx, cancel := context.WithTimeout(ctx, o.opts.ClassifyTimeout)
	defer cancel()

	category, err := o.classifier.Classify(classifyCtx, name)
	if err != nil {
		o.logger.Warn("classification failed", "name", name, "error", err)
		return UnknownCategory
	}

	category = strings.TrimSpace(category)
	if category == "" {
		return UnknownCategory
	}
	return category
}
