package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/grocery-price-scraper/internal/models"
)

var fixedDate = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestOrchestrator(searcher Searcher, refiner Refiner, classifier Classifier) *Orchestrator {
	o := NewOrchestrator(searcher, refiner, classifier, Options{
		MaxAttempts:     3,
		SelectorTimeout: 20 * time.Millisecond,
		RefineTimeout:   time.Second,
		ClassifyTimeout: time.Second,
	}, nil)
	o.now = func() time.Time { return fixedDate }
	return o
}

func TestOrchestrator_FoundOnSecondSelector(t *testing.T) {
	searcher := &fakeSearcher{pages: map[string]*fakePage{
		"milk": newFakePage(map[string]string{
			".title-a": "",
			".title-b": "Farm Milk 1L",
			".price":   "1.99",
		}),
	}}
	classifier := new(MockClassifier)
	classifier.On("Classify", mock.Anything, "Farm Milk 1L").Return("milk", nil)
	refiner := new(MockRefiner)

	outcome, err := newTestOrchestrator(searcher, refiner, classifier).Run(context.Background(), testProfile(), "milk")
	require.NoError(t, err)

	require.True(t, outcome.IsFound())
	assert.Equal(t, models.ProductResult{
		Name:       "Farm Milk 1L",
		Price:      "1.99",
		Quantity:   models.ParsedQuantity(1, models.UnitLiter),
		Category:   "milk",
		SearchDate: fixedDate,
	}, *outcome.Result)
	assert.Empty(t, outcome.Attempts)
	assert.Equal(t, []string{"milk"}, searcher.Queries())
	assert.True(t, searcher.served[0].closed)

	refiner.AssertNotCalled(t, "SuggestAlternative", mock.Anything, mock.Anything, mock.Anything)
	classifier.AssertExpectations(t)
}

func TestOrchestrator_ExhaustsAfterMaxAttempts(t *testing.T) {
	searcher := &fakeSearcher{}
	calls := 0
	refiner := refinerFunc(func(_ context.Context, query string, _ *models.SiteProfile) (string, error) {
		calls++
		return fmt.Sprintf("%s alt%d", query, calls), nil
	})

	outcome, err := newTestOrchestrator(searcher, refiner, nil).Run(context.Background(), testProfile(), "milk")
	require.NoError(t, err)

	assert.Equal(t, models.StatusExhausted, outcome.Status)
	assert.Nil(t, outcome.Result)
	require.Len(t, outcome.Attempts, 3)
	assert.Len(t, searcher.Queries(), 3)
	assert.Equal(t, 2, calls)

	for i, attempt := range outcome.Attempts {
		assert.Equal(t, i+1, attempt.AttemptNumber)
		assert.Equal(t, searcher.Queries()[i], attempt.Query)
		assert.Nil(t, attempt.RawName)
		assert.Nil(t, attempt.RawPrice)
	}
	assert.Equal(t, models.AttemptRefined, outcome.Attempts[0].Outcome)
	assert.Equal(t, models.AttemptRefined, outcome.Attempts[1].Outcome)
	assert.Equal(t, models.AttemptNoMatch, outcome.Attempts[2].Outcome)
	assert.Equal(t, outcome.Attempts[2].Query, outcome.LastQuery)

	for _, page := range searcher.served {
		assert.True(t, page.closed)
	}
}

func TestOrchestrator_RetriesWithRefinedQuery(t *testing.T) {
	searcher := &fakeSearcher{pages: map[string]*fakePage{
		"süt": newFakePage(map[string]string{
			".title-a": "Delivery slot unavailable",
			".price":   "0.00",
		}),
		"sek süt": newFakePage(map[string]string{
			".title-a": "Sek Süt 200 Ml",
			".price":   "12,50 TL",
		}),
	}}
	refiner := new(MockRefiner)
	refiner.On("SuggestAlternative", mock.Anything, "süt", mock.Anything).Return("  sek süt\n", nil)

	profile := testProfile()
	profile.Language = "tr"

	outcome, err := newTestOrchestrator(searcher, refiner, nil).Run(context.Background(), profile, "süt")
	require.NoError(t, err)

	require.True(t, outcome.IsFound())
	assert.Equal(t, "Sek Süt 200 Ml", outcome.Result.Name)
	assert.Equal(t, "12,50 TL", outcome.Result.Price)
	assert.Equal(t, models.ParsedQuantity(200, models.UnitMilliliter), outcome.Result.Quantity)
	assert.Equal(t, UnknownCategory, outcome.Result.Category)
	assert.Equal(t, []string{"süt", "sek süt"}, searcher.Queries())
	refiner.AssertExpectations(t)
}

func TestOrchestrator_EmptySuggestionExhausts(t *testing.T) {
	tests := []struct {
		name    string
		refiner Refiner
	}{
		{
			name: "blank suggestion",
			refiner: refinerFunc(func(context.Context, string, *models.SiteProfile) (string, error) {
				return "  \n", nil
			}),
		},
		{
			name: "refiner error",
			refiner: refinerFunc(func(context.Context, string, *models.SiteProfile) (string, error) {
				return "", errors.New("quota exceeded")
			}),
		},
		{
			name: "refiner timeout",
			refiner: refinerFunc(func(ctx context.Context, _ string, _ *models.SiteProfile) (string, error) {
				<-ctx.Done()
				return "late suggestion", ctx.Err()
			}),
		},
		{
			name:    "no refiner",
			refiner: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &fakeSearcher{}
			o := newTestOrchestrator(searcher, tt.refiner, nil)
			o.opts.RefineTimeout = 20 * time.Millisecond

			outcome, err := o.Run(context.Background(), testProfile(), "milk")
			require.NoError(t, err)

			assert.Equal(t, models.StatusExhausted, outcome.Status)
			require.Len(t, outcome.Attempts, 1)
			assert.Equal(t, models.AttemptNoMatch, outcome.Attempts[0].Outcome)
			assert.Equal(t, "milk", outcome.LastQuery)
			assert.Len(t, searcher.Queries(), 1)
		})
	}
}

func TestOrchestrator_NavigationErrorIsFatal(t *testing.T) {
	navErr := &NavigationError{Site: "testmart", URL: "https://testmart.example", Err: errors.New("dns failure")}
	searcher := &fakeSearcher{err: navErr}
	refiner := new(MockRefiner)

	_, err := newTestOrchestrator(searcher, refiner, nil).Run(context.Background(), testProfile(), "milk")
	require.Error(t, err)

	var got *NavigationError
	assert.True(t, errors.As(err, &got))
	assert.True(t, IsFatal(err))
	assert.Len(t, searcher.Queries(), 1)
	refiner.AssertNotCalled(t, "SuggestAlternative", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_CancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	searcher := &fakeSearcher{}
	refiner := refinerFunc(func(context.Context, string, *models.SiteProfile) (string, error) {
		cancel()
		return "another query", nil
	})

	_, err := newTestOrchestrator(searcher, refiner, nil).Run(ctx, testProfile(), "milk")
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, searcher.Queries(), 1)
}

func TestOrchestrator_ClassifierFailureDefaultsToUnknown(t *testing.T) {
	searcher := &fakeSearcher{pages: map[string]*fakePage{
		"bread": newFakePage(map[string]string{".title-a": "Whole Bread", ".price": "2.49"}),
	}}
	classifier := new(MockClassifier)
	classifier.On("Classify", mock.Anything, "Whole Bread").Return("", errors.New("model unavailable"))

	outcome, err := newTestOrchestrator(searcher, nil, classifier).Run(context.Background(), testProfile(), "bread")
	require.NoError(t, err)
	require.True(t, outcome.IsFound())
	assert.Equal(t, UnknownCategory, outcome.Result.Category)
	assert.True(t, outcome.Result.Quantity.IsUnknown())
}

func TestOrchestrator_RejectsBadInput(t *testing.T) {
	o := newTestOrchestrator(&fakeSearcher{}, nil, nil)

	_, err := o.Run(context.Background(), nil, "milk")
	assert.ErrorIs(t, err, ErrUnknownSite)

	_, err = o.Run(context.Background(), testProfile(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestOrchestrator_RecordsRawFields(t *testing.T) {
	searcher := &fakeSearcher{pages: map[string]*fakePage{
		"eggs": newFakePage(map[string]string{".title-a": "Free Range Eggs"}),
	}}

	outcome, err := newTestOrchestrator(searcher, nil, nil).Run(context.Background(), testProfile(), "eggs")
	require.NoError(t, err)
	require.Len(t, outcome.Attempts, 1)

	attempt := outcome.Attempts[0]
	require.NotNil(t, attempt.RawName)
	assert.Equal(t, "Free Range Eggs", *attempt.RawName)
	assert.Nil(t, attempt.RawPrice)
}

func TestOrchestrator_DefaultBudget(t *testing.T) {
	o := NewOrchestrator(&fakeSearcher{}, nil, nil, Options{}, nil)
	assert.Equal(t, DefaultMaxAttempts, o.MaxAttempts())
}
