package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/grocery-price-scraper/internal/database"
	"github.com/maltedev/grocery-price-scraper/internal/jobs"
	"github.com/maltedev/grocery-price-scraper/internal/models"
	"github.com/maltedev/grocery-price-scraper/internal/scraper"
)

type fakeSites map[string]*models.SiteProfile

func (f fakeSites) Get(id string) (*models.SiteProfile, error) {
	if p, ok := f[strings.ToLower(id)]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", scraper.ErrUnknownSite, id)
}

func (f fakeSites) List() []*models.SiteProfile {
	return []*models.SiteProfile{f["ah"]}
}

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, profile *models.SiteProfile, query string) (models.Outcome, error) {
	args := m.Called(ctx, profile, query)
	return args.Get(0).(models.Outcome), args.Error(1)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, target models.Target, outcome models.Outcome, jobID *uuid.UUID) (*database.PriceResult, error) {
	args := m.Called(ctx, target, outcome, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.PriceResult), args.Error(1)
}

type MockJobs struct {
	mock.Mock
}

func (m *MockJobs) CreateJob(ctx context.Context, targets []models.Target) (*jobs.Job, error) {
	args := m.Called(ctx, targets)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Job), args.Error(1)
}

func (m *MockJobs) GetJob(ctx context.Context, jobID string) (*jobs.Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Job), args.Error(1)
}

func (m *MockJobs) ListJobs(ctx context.Context) ([]*jobs.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*jobs.Job), args.Error(1)
}

func (m *MockJobs) GetStats(ctx context.Context) (*jobs.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Stats), args.Error(1)
}

type priceListerFunc func(ctx context.Context, site string, limit int) ([]*database.PriceResult, error)

func (f priceListerFunc) ListLatest(ctx context.Context, site string, limit int) ([]*database.PriceResult, error) {
	return f(ctx, site, limit)
}

type outboxCounts map[string]int64

func (o outboxCounts) CountByStatus(context.Context) (map[string]int64, error) {
	return o, nil
}

func ahProfile() *models.SiteProfile {
	return &models.SiteProfile{ID: "ah", Name: "Albert Heijn", Language: "nl", QuantitySource: models.QuantityStructuredField}
}

func newServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	if deps.Sites == nil {
		deps.Sites = fakeSites{"ah": ahProfile()}
	}
	if deps.Runner == nil {
		deps.Runner = new(MockRunner)
	}
	srv := httptest.NewServer(NewRouter(NewHandlers(deps, slog.Default()), RouterOptions{}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	if m, ok := decoded.(map[string]any); ok {
		return resp, m
	}
	return resp, map[string]any{"items": decoded}
}

func TestHealth(t *testing.T) {
	t.Run("without outbox", func(t *testing.T) {
		srv := newServer(t, Deps{})
		resp, body := do(t, srv, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("dead letters degrade health", func(t *testing.T) {
		srv := newServer(t, Deps{Outbox: outboxCounts{"pending": 3, "failed": 2, "dead_letter": 101}})
		resp, body := do(t, srv, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "error", body["status"])
		outbox := body["outbox"].(map[string]any)
		assert.Equal(t, 5.0, outbox["pending"])
	})
}

func TestListSites(t *testing.T) {
	srv := newServer(t, Deps{})
	resp, body := do(t, srv, http.MethodGet, "/api/v1/sites", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	items := body["items"].([]any)
	require.Len(t, items, 1)
	site := items[0].(map[string]any)
	assert.Equal(t, "ah", site["site_id"])
	assert.Equal(t, "structured_field", site["quantity_source"])
}

func TestSearch(t *testing.T) {
	found := models.Found(models.ProductResult{
		Name:       "AH Verse halfvolle melk",
		Price:      "1.19",
		Quantity:   models.LiteralQuantity("1 l"),
		Category:   "Dairy",
		SearchDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})

	t.Run("found and recorded", func(t *testing.T) {
		runner := new(MockRunner)
		recorder := new(MockRecorder)
		runner.On("Run", mock.Anything, mock.MatchedBy(func(p *models.SiteProfile) bool { return p.ID == "ah" }), "melk").
			Return(found, nil)
		rowID := uuid.New()
		recorder.On("Record", mock.Anything, models.Target{Site: "ah", Query: "melk"}, found, (*uuid.UUID)(nil)).
			Return(&database.PriceResult{ID: rowID}, nil)

		srv := newServer(t, Deps{Runner: runner, Recorder: recorder})
		resp, body := do(t, srv, http.MethodPost, "/api/v1/search", `{"site":"AH","query":" melk "}`)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, rowID.String(), body["result_id"])
		outcome := body["outcome"].(map[string]any)
		assert.Equal(t, "found", outcome["status"])
		runner.AssertExpectations(t)
		recorder.AssertExpectations(t)
	})

	t.Run("exhausted is still 200", func(t *testing.T) {
		runner := new(MockRunner)
		runner.On("Run", mock.Anything, mock.Anything, "zzz").
			Return(models.Exhausted("zzz 2", []models.ExtractionAttempt{{Query: "zzz"}, {Query: "zzz 2"}}), nil)

		srv := newServer(t, Deps{Runner: runner})
		resp, body := do(t, srv, http.MethodPost, "/api/v1/search", `{"site":"ah","query":"zzz"}`)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		outcome := body["outcome"].(map[string]any)
		assert.Equal(t, "exhausted", outcome["status"])
		assert.Len(t, outcome["attempts"], 2)
		assert.Nil(t, body["result_id"])
	})

	tests := []struct {
		name       string
		body       string
		runErr     error
		wantStatus int
	}{
		{name: "bad json", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "missing query", body: `{"site":"ah"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown site", body: `{"site":"lidl","query":"melk"}`, wantStatus: http.StatusNotFound},
		{
			name:       "navigation failure",
			body:       `{"site":"ah","query":"melk"}`,
			runErr:     &scraper.NavigationError{Site: "ah", URL: "https://www.ah.nl", Err: errors.New("timeout")},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "deadline",
			body:       `{"site":"ah","query":"melk"}`,
			runErr:     fmt.Errorf("run cancelled before attempt 2: %w", context.DeadlineExceeded),
			wantStatus: http.StatusGatewayTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := new(MockRunner)
			runner.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(models.Outcome{}, tt.runErr)

			srv := newServer(t, Deps{Runner: runner})
			resp, body := do(t, srv, http.MethodPost, "/api/v1/search", tt.body)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestJobs(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		svc := new(MockJobs)
		jobID := uuid.New()
		svc.On("CreateJob", mock.Anything, []models.Target{{Site: "ah", Query: "melk"}}).
			Return(&jobs.Job{ID: jobID, Status: jobs.StatusPending, TargetsTotal: 1}, nil)

		srv := newServer(t, Deps{Jobs: svc})
		resp, body := do(t, srv, http.MethodPost, "/api/v1/jobs", `{"targets":[{"site":"ah","query":"melk"}]}`)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, jobID.String(), body["job_id"])
		assert.Equal(t, "pending", body["status"])
	})

	t.Run("create invalid", func(t *testing.T) {
		svc := new(MockJobs)
		svc.On("CreateJob", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: at least one target is required", jobs.ErrInvalidJob))

		srv := newServer(t, Deps{Jobs: svc})
		resp, _ := do(t, srv, http.MethodPost, "/api/v1/jobs", `{"targets":[]}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("get missing", func(t *testing.T) {
		svc := new(MockJobs)
		svc.On("GetJob", mock.Anything, "nope").Return(nil, jobs.ErrJobNotFound)

		srv := newServer(t, Deps{Jobs: svc})
		resp, _ := do(t, srv, http.MethodGet, "/api/v1/jobs/nope", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("list empty is an array", func(t *testing.T) {
		svc := new(MockJobs)
		svc.On("ListJobs", mock.Anything).Return(nil, nil)

		srv := newServer(t, Deps{Jobs: svc})
		resp, body := do(t, srv, http.MethodGet, "/api/v1/jobs", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []any{}, body["items"])
	})

	t.Run("unavailable without a database", func(t *testing.T) {
		srv := newServer(t, Deps{})
		resp, _ := do(t, srv, http.MethodGet, "/api/v1/stats", "")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestListPrices(t *testing.T) {
	var gotSite string
	var gotLimit int
	lister := priceListerFunc(func(_ context.Context, site string, limit int) ([]*database.PriceResult, error) {
		gotSite, gotLimit = site, limit
		return []*database.PriceResult{{SiteID: "ah", Query: "melk", Status: models.StatusFound}}, nil
	})

	srv := newServer(t, Deps{Prices: lister})

	resp, body := do(t, srv, http.MethodGet, "/api/v1/prices?site=AH&limit=5", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ah", gotSite)
	assert.Equal(t, 5, gotLimit)
	assert.Len(t, body["items"], 1)

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/prices?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
