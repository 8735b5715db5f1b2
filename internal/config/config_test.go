package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Scraper.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Scraper.SelectorTimeout)
	assert.Equal(t, 60*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, "playwright", cfg.Browser.Engine)
	assert.Equal(t, "stream:price_updates", cfg.Redis.Stream)
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SCRAPER_MAX_ATTEMPTS", "5")
	t.Setenv("SCRAPER_SELECTOR_TIMEOUT", "2s")
	t.Setenv("BROWSER_ENGINE", "rod")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("DB_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Scraper.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Scraper.SelectorTimeout)
	assert.Equal(t, "rod", cfg.Browser.Engine)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "zero attempts", mutate: func(c *Config) { c.Scraper.MaxAttempts = 0 }, wantErr: "SCRAPER_MAX_ATTEMPTS"},
		{name: "zero workers", mutate: func(c *Config) { c.Scraper.ConcurrentLimit = 0 }, wantErr: "SCRAPER_CONCURRENT_LIMIT"},
		{name: "rate window inverted", mutate: func(c *Config) { c.Scraper.RateLimitMin = time.Minute }, wantErr: "SCRAPER_RATE_LIMIT_MIN"},
		{name: "negative site cap", mutate: func(c *Config) { c.Scraper.SitePerMinute = -1 }, wantErr: "SCRAPER_SITE_PER_MINUTE"},
		{name: "unknown engine", mutate: func(c *Config) { c.Browser.Engine = "selenium" }, wantErr: "BROWSER_ENGINE"},
		{name: "unknown log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseURL(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5433, DBName: "prices", SSLMode: "require"}
	assert.Equal(t, "postgres://u:p@db:5433/prices?sslmode=require", d.DatabaseURL())
}
