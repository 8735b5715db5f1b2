package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/maltedev/grocery-price-scraper/internal/browser"
	"github.com/maltedev/grocery-price-scraper/internal/llm"
	"github.com/maltedev/grocery-price-scraper/internal/models"
	"github.com/maltedev/grocery-price-scraper/internal/parser"
	"github.com/maltedev/grocery-price-scraper/internal/ratelimit"
	"github.com/maltedev/grocery-price-scraper/internal/scraper"
	"github.com/maltedev/grocery-price-scraper/internal/sites"
)

func (a *app) loadSites() (*sites.Registry, error) {
	reg, err := sites.Load(a.cfg.Scraper.ProfilesFile)
	if err != nil {
		return nil, fmt.Errorf("load site profiles: %w", err)
	}
	return reg, nil
}

func (a *app) scraperOptions() scraper.Options {
	return scraper.Options{
		MaxAttempts:     a.cfg.Scraper.MaxAttempts,
		SelectorTimeout: a.cfg.Scraper.SelectorTimeout,
		RefineTimeout:   a.cfg.Scraper.RefineTimeout,
		ClassifyTimeout: a.cfg.Scraper.ClassifyTimeout,
		ConcurrentLimit: a.cfg.Scraper.ConcurrentLimit,
	}
}

func (a *app) browserOptions() *browser.Options {
	opts := browser.DefaultOptions()
	opts.Engine = a.cfg.Browser.Engine
	opts.Headless = a.cfg.Browser.Headless
	opts.Timeout = a.cfg.Browser.Timeout
	opts.NavRetries = a.cfg.Browser.NavRetries
	opts.ViewportWidth = a.cfg.Browser.ViewportWidth
	opts.ViewportHeight = a.cfg.Browser.ViewportHeight
	opts.AcceptLanguage = a.cfg.Browser.AcceptLanguage
	opts.TimezoneID = a.cfg.Browser.TimezoneID
	opts.Locale = a.cfg.Browser.Locale
	opts.ProxyServer = a.cfg.Browser.ProxyServer
	return opts
}

// openEngine starts the configured browser behind a per-site adaptive
// limiter, optionally capped at SCRAPER_SITE_PER_MINUTE searches.
func (a *app) openEngine() (browser.Engine, error) {
	minDelay, maxDelay := a.cfg.Scraper.RateLimitMin, a.cfg.Scraper.RateLimitMax
	perMinute := a.cfg.Scraper.SitePerMinute
	limits := ratelimit.NewPerSite(func() ratelimit.RateLimiter {
		adaptive := ratelimit.NewAdaptiveLimiter(minDelay, maxDelay)
		if perMinute <= 0 {
			return adaptive
		}
		return ratelimit.Chain{adaptive, ratelimit.NewTokenBucket(perMinute, time.Minute/time.Duration(perMinute))}
	})
	return browser.Open(a.browserOptions(), limits, a.logger)
}

// language returns the refiner and classifier, or nils when no Gemini key is
// configured.
func (a *app) language(ctx context.Context) (scraper.Refiner, scraper.Classifier, error) {
	if strings.TrimSpace(a.cfg.Gemini.APIKey) == "" {
		a.logger.Info("GEMINI_API_KEY not set; query refinement and classification disabled")
		return nil, nil, nil
	}

	gen, err := llm.NewGemini(ctx, llm.Config{
		APIKey:     a.cfg.Gemini.APIKey,
		Model:      a.cfg.Gemini.Model,
		BaseURL:    a.cfg.Gemini.BaseURL,
		MaxRetries: a.cfg.Gemini.MaxRetries,
	}, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return llm.NewRefiner(gen), llm.NewClassifier(gen), nil
}

func (a *app) newOrchestrator(ctx context.Context, searcher scraper.Searcher) (*scraper.Orchestrator, error) {
	refiner, classifier, err := a.language(ctx)
	if err != nil {
		return nil, err
	}
	return scraper.NewOrchestrator(searcher, refiner, classifier, a.scraperOptions(), a.logger), nil
}

// snapshotSearcher answers every search with the same saved HTML page.
type snapshotSearcher struct {
	html string
}

func newSnapshotSearcher(path string) (*snapshotSearcher, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read html snapshot: %w", err)
	}
	return &snapshotSearcher{html: string(b)}, nil
}

func (s *snapshotSearcher) Search(_ context.Context, profile *models.SiteProfile, _ string) (scraper.PageView, error) {
	doc, err := parser.NewDocument(s.html)
	if err != nil {
		return nil, &scraper.NavigationError{Site: profile.ID, URL: "snapshot", Err: err}
	}
	return doc, nil
}
