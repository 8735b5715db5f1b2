package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/maltedev/grocery-price-scraper/internal/models"
	"github.com/maltedev/grocery-price-scraper/internal/ratelimit"
	"github.com/maltedev/grocery-price-scraper/internal/scraper"
)

// RodSearcher runs searches over the Chrome DevTools Protocol through rod.
type RodSearcher struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	opts     *Options
	limits   *ratelimit.PerSite
	logger   *slog.Logger
}

func NewRodSearcher(opts *Options, limits *ratelimit.PerSite, logger *slog.Logger) (*RodSearcher, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := launcher.New().Headless(opts.Headless).NoSandbox(true)
	if opts.ProxyServer != "" {
		l = l.Proxy(opts.ProxyServer)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &RodSearcher{
		browser:  browser,
		launcher: l,
		opts:     opts,
		limits:   limits,
		logger:   logger.With("component", "browser", "engine", EngineRod),
	}, nil
}

func (s *RodSearcher) Search(ctx context.Context, profile *models.SiteProfile, query string) (scraper.PageView, error) {
	target := SearchURL(profile, query)

	if err := waitTurn(ctx, s.limits, profile.ID); err != nil {
		return nil, err
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{})
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
	return &rodPage{page: page}, nil
}

func (s *RodSearcher) load(ctx context.Context, page *rod.Page, profile *models.SiteProfile, query, target string) error {
	timeout := pageLoadTimeout(s.opts)

	var lastErr error
	for i := 0; i <= s.opts.NavRetries; i++ {
		if i > 0 {
			s.logger.Info("retrying navigation", "attempt", i+1, "url", target)
			if err := sleep(ctx, time.Duration(i)*time.Second); err != nil {
				return err
			}
		}

		p := page.Context(ctx).Timeout(timeout)
		if lastErr = p.Navigate(target); lastErr == nil {
			lastErr = p.WaitLoad()
		}
		if lastErr == nil {
			break
		}
		s.logger.Error("navigation failed", "error", lastErr, "attempt", i+1, "url", target)
	}
	if lastErr != nil {
		return fmt.Errorf("failed after %d attempts: %w", s.opts.NavRetries+1, lastErr)
	}

	if !profile.UsesQueryURL() {
		box, err := page.Context(ctx).Timeout(timeout).Element(profile.SearchInputSelector)
		if err != nil {
			return fmt.Errorf("failed to find search box: %w", err)
		}
		if err := box.Input(query); err != nil {
			return fmt.Errorf("failed to fill search box: %w", err)
		}
		if err := box.Type(input.Enter); err != nil {
			return fmt.Errorf("failed to submit search: %w", err)
		}
	}

	if profile.ResultsSelector != "" {
		_, err := page.Context(ctx).Timeout(timeout).Element(profile.ResultsSelector)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("failed waiting for results: %w", err)
		}
		return nil
	}

	return page.Context(ctx).Timeout(timeout).WaitLoad()
}

func (s *RodSearcher) Close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Kill()
	}
	return err
}

type rodPage struct {
	page *rod.Page
}

// FirstText polls for the selector until ctx expires.
func (p *rodPage) FirstText(ctx context.Context, selector string) (string, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (p *rodPage) Close() error {
	return p.page.Close()
}

func pageLoadTimeout(opts *Options) time.Duration {
	if opts.Timeout <= 0 {
		return DefaultOptions().Timeout
	}
	return opts.Timeout
}

var _ Engine = (*RodSearcher)(nil)
