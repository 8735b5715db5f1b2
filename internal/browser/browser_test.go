package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/grocery-price-scraper/internal/models"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless)
	assert.Equal(t, EnginePlaywright, opts.Engine)
	assert.Equal(t, 60*time.Second, opts.Timeout)
	assert.Equal(t, 2, opts.NavRetries)
	assert.Equal(t, 1920, opts.ViewportWidth)
	assert.Equal(t, 1080, opts.ViewportHeight)
}

func TestSearchURL(t *testing.T) {
	tests := []struct {
		name     string
		profile  *models.SiteProfile
		query    string
		expected string
	}{
		{
			name:     "placeholder is substituted and escaped",
			profile:  &models.SiteProfile{SearchURL: "https://www.ah.nl/zoeken?query={query}"},
			query:    "arla volle melk",
			expected: "https://www.ah.nl/zoeken?query=arla+volle+melk",
		},
		{
			name:     "non-ascii query",
			profile:  &models.SiteProfile{SearchURL: "https://www.carrefoursa.com/search/?text={query}"},
			query:    "süt",
			expected: "https://www.carrefoursa.com/search/?text=s%C3%BCt",
		},
		{
			name:     "landing page is opened as is",
			profile:  &models.SiteProfile{SearchURL: "https://www.carrefoursa.com", SearchInputSelector: "input[type='search']"},
			query:    "süt",
			expected: "https://www.carrefoursa.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SearchURL(tt.profile, tt.query))
		})
	}
}

func TestTimeoutMillis(t *testing.T) {
	assert.Equal(t, float64(5000), timeoutMillis(context.Background(), 5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	got := timeoutMillis(ctx, 5*time.Second)
	assert.LessOrEqual(t, got, float64(200))
	assert.Greater(t, got, float64(0))

	expired, cancelExpired := context.WithTimeout(context.Background(), -time.Second)
	defer cancelExpired()
	assert.Equal(t, float64(1), timeoutMillis(expired, 5*time.Second))
}

func TestOpen_UnknownEngine(t *testing.T) {
	opts := DefaultOptions()
	opts.Engine = "netscape"

	_, err := Open(opts, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown browser engine")
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Minute), context.Canceled)
}
