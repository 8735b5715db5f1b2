package scraper

import (
	"context"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/maltedev/grocery-price-scraper/internal/models"
)

// fakePage answers selectors from a map. Selectors listed in errs fail and
// selectors listed in blocking wait for the lookup context to expire.
type fakePage struct {
	texts    map[string]string
	errs     map[string]error
	blocking map[string]bool

	mu      sync.Mutex
	lookups []string
	closed  bool
}

func newFakePage(texts map[string]string) *fakePage {
	return &fakePage{
		texts:    texts,
		errs:     map[string]error{},
		blocking: map[string]bool{},
	}
}

func (p *fakePage) FirstText(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	p.lookups = append(p.lookups, selector)
	p.mu.Unlock()

	if p.blocking[selector] {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err, ok := p.errs[selector]; ok {
		return "", err
	}
	return p.texts[selector], nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// fakeSearcher serves a page per query; unknown queries get an empty page.
type fakeSearcher struct {
	pages map[string]*fakePage
	err   error

	mu      sync.Mutex
	queries []string
	served  []*fakePage
}

func (s *fakeSearcher) Search(_ context.Context, _ *models.SiteProfile, query string) (PageView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}

	page, ok := s.pages[query]
	if !ok {
		page = newFakePage(nil)
	}
	s.served = append(s.served, page)
	return page, nil
}

func (s *fakeSearcher) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

type MockRefiner struct {
	mock.Mock
}

func (m *MockRefiner) SuggestAlternative(ctx context.Context, query string, profile *models.SiteProfile) (string, error) {
	args := m.Called(ctx, query, profile)
	return args.String(0), args.Error(1)
}

type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

// refinerFunc adapts a function to Refiner.
type refinerFunc func(ctx context.Context, query string, profile *models.SiteProfile) (string, error)

func (f refinerFunc) SuggestAlternative(ctx context.Context, query string, profile *models.SiteProfile) (string, error) {
	return f(ctx, query, profile)
}

type staticProfiles map[string]*models.SiteProfile

func (s staticProfiles) Get(siteID string) (*models.SiteProfile, error) {
	if p, ok := s[siteID]; ok {
		return p, nil
	}
	return nil, ErrUnknownSite
}

var errLookup = errors.New("lookup failed")

func testProfile() *models.SiteProfile {
	return &models.SiteProfile{
		ID:             "testmart",
		SearchURL:      "https://testmart.example/search?q={query}",
		NameSelectors:  []string{".title-a", ".title-b"},
		PriceSelectors: []string{".price"},
		QuantitySource: models.QuantityParsedFromName,
		Language:       "en",
		NoisePatterns: []models.NoisePattern{
			{Text: "Delivery slot", IgnoreCase: false},
		},
	}
}
