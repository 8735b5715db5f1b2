package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/grocery-price-scraper/internal/models"
	"github.com/maltedev/grocery-price-scraper/internal/ratelimit"
	"github.com/maltedev/grocery-price-scraper/internal/scraper"
)

// Engine is a search collaborator that owns browser resources.
type Engine interface {
	scraper.Searcher
	Close() error
}

// Open starts the engine named in opts.
func Open(opts *Options, limits *ratelimit.PerSite, logger *slog.Logger) (Engine, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	switch strings.ToLower(opts.Engine) {
	case "", EnginePlaywright:
		b, err := New(opts, logger)
		if err != nil {
			return nil, err
		}
		return NewSearcher(b, limits), nil
	case EngineRod:
		return NewRodSearcher(opts, limits, logger)
	default:
		return nil, fmt.Errorf("unknown browser engine %q", opts.Engine)
	}
}

// SearchURL returns the URL to open for a query. Profiles with a {query}
// placeholder get the escaped query substituted; others open their landing
// page and type the query.
func SearchURL(profile *models.SiteProfile, query string) string {
	if profile.UsesQueryURL() {
		return strings.ReplaceAll(profile.SearchURL, "{query}", url.QueryEscape(query))
	}
	return profile.SearchURL
}

// Searcher runs searches in playwright pages.
type Searcher struct {
	browser *Browser
	limits  *ratelimit.PerSite
	logger  *slog.Logger
}

func NewSearcher(b *Browser, limits *ratelimit.PerSite) *Searcher {
	return &Searcher{
		browser: b,
		limits:  limits,
		logger:  b.logger.With("component", "searcher"),
	}
}

func (s *Searcher) Search(ctx context.Context, profile *models.SiteProfile, query string) (scraper.PageView, error) {
	target := SearchURL(profile, query)

	if err := waitTurn(ctx, s.limits, profile.ID); err != nil {
		return nil, err
	}

	page, err := s.browser.NewPage()
	if err != nil {
		return nil, &scraper.NavigationError{Site: profile.ID, URL: target, Err: err}
	}

	if err := s.load(ctx, page, profile, query, target); err != nil {
		page.Close()
		recordOutcome(s.limits, profile.ID, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &scraper.NavigationError{Site: profile.ID, URL: target, Err: err}
	}
	recordOutcome(s.limits, profile.ID, nil)

	s.logger.Debug("search page ready", "site", profile.ID, "query", query, "url", target)
	return &playwrightPage{page: page}, nil
}

func (s *Searcher) load(ctx context.Context, page playwright.Page, profile *models.SiteProfile, query, target string) error {
	if err := s.browser.NavigateWithRetry(ctx, page, target); err != nil {
		return err
	}

	if !profile.UsesQueryURL() {
		box := page.Locator(profile.SearchInputSelector).First()
		if err := box.Fill(query, playwright.LocatorFillOptions{
			Timeout: playwright.Float(timeoutMillis(ctx, s.browser.opts.Timeout)),
		}); err != nil {
			return fmt.Errorf("failed to fill search box: %w", err)
		}
		if err := box.Press("Enter"); err != nil {
			return fmt.Errorf("failed to submit search: %w", err)
		}
	}

	if profile.ResultsSelector != "" {
		// An empty result list is a query problem, not a navigation one.
		err := page.Locator(profile.ResultsSelector).First().WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateAttached,
			Timeout: playwright.Float(timeoutMillis(ctx, s.browser.opts.Timeout)),
		})
		if err != nil && !errors.Is(err, playwright.ErrTimeout) {
			return fmt.Errorf("failed waiting for results: %w", err)
		}
		return nil
	}

	if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: playwright.Float(timeoutMillis(ctx, s.browser.opts.Timeout)),
	}); err != nil {
		return fmt.Errorf("failed waiting for page load: %w", err)
	}
	return nil
}

func (s *Searcher) Close() error {
	return s.browser.Close()
}

type playwrightPage struct {
	page playwright.Page
}

// FirstText waits for the first match until ctx expires. playwright does
// not take a context, so the deadline becomes its timeout.
func (p *playwrightPage) FirstText(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	text, err := p.page.Locator(selector).First().TextContent(playwright.LocatorTextContentOptions{
		Timeout: playwright.Float(timeoutMillis(ctx, scraper.DefaultSelectorTimeout)),
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

func waitTurn(ctx context.Context, limits *ratelimit.PerSite, siteID string) error {
	if limits == nil {
		return nil
	}
	return limits.Wait(ctx, siteID)
}

func recordOutcome(limits *ratelimit.PerSite, siteID string, err error) {
	if limits == nil {
		return
	}
	feedback, ok := limits.For(siteID).(ratelimit.Feedback)
	if !ok {
		return
	}
	if err != nil {
		feedback.RecordError()
		return
	}
	feedback.RecordSuccess()
}

var _ scraper.Searcher = (*Searcher)(nil)

