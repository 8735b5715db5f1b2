package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/grocery-price-scraper/internal/models"
)

var (
	ErrUnknownSite = errors.New("unknown site")
	ErrEmptyQuery  = errors.New("empty search query")
)

// NavigationError reports that a search page could not be loaded. It is
// fatal for the run and never retried here.
type NavigationError struct {
	Site string
	URL  string
	Err  error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s (%s) failed: %v", e.URL, e.Site, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must abort a batch.
func IsFatal(err error) bool {
	var navErr *NavigationError
	return errors.As(err, &navErr)
}

// PageView is a read-only view of a rendered result page. FirstText returns
// the raw text of the first element matching selector, or "" when none does.
type PageView interface {
	FirstText(ctx context.Context, selector string) (string, error)
	Close() error
}

// Searcher executes a search on a site and hands back the result page.
// Implementations return *NavigationError when the page cannot be loaded.
type Searcher interface {
	Search(ctx context.Context, profile *models.SiteProfile, query string) (PageView, error)
}

// Refiner suggests an alternative query after a failed attempt.
type Refiner interface {
	SuggestAlternative(ctx context.Context, query string, profile *models.SiteProfile) (string, error)
}

// Classifier assigns a product category to a product name.
type Classifier interface {
	Classify(ctx context.Context, name string) (string, error)
}

// ProfileSource resolves site ids to profiles.
type ProfileSource interface {
	Get(siteID string) (*models.SiteProfile, error)
}

const (
	DefaultMaxAttempts     = 3
	DefaultSelectorTimeout = 5 * time.Second
	DefaultRefineTimeout   = 20 * time.Second
	DefaultClassifyTimeout = 10 * time.Second
	UnknownCategory        = "unknown"
)

type Options struct {
	MaxAttempts     int
	SelectorTimeout time.Duration
	RefineTimeout   time.Duration
	ClassifyTimeout time.Duration
	ConcurrentLimit int
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:     DefaultMaxAttempts,
		SelectorTimeout: DefaultSelectorTimeout,
		RefineTimeout:   DefaultRefineTimeout,
		ClassifyTimeout: DefaultClassifyTimeout,
		ConcurrentLimit: 1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxAttempts < 1 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.SelectorTimeout <= 0 {
		o.SelectorTimeout = d.SelectorTimeout
	}
	if o.RefineTimeout <= 0 {
		o.RefineTimeout = d.RefineTimeout
	}
	if o.ClassifyTimeout <= 0 {
		o.ClassifyTimeout = d.ClassifyTimeout
	}
	if o.ConcurrentLimit < 1 {
		o.ConcurrentLimit = d.ConcurrentLimit
	}
	return o
}
