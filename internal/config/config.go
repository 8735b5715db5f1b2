package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Gemini   GeminiConfig
	Jobs     JobsConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type ScraperConfig struct {
	MaxAttempts     int
	SelectorTimeout time.Duration
	RefineTimeout   time.Duration
	ClassifyTimeout time.Duration
	ConcurrentLimit int
	RateLimitMin    time.Duration
	RateLimitMax    time.Duration
	SitePerMinute   int
	ProfilesFile    string
}

type BrowserConfig struct {
	Engine         string
	Headless       bool
	Timeout        time.Duration
	NavRetries     int
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

type RedisConfig struct {
	URL    string
	Stream string
}

type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
}

type JobsConfig struct {
	PollInterval  time.Duration
	RelayInterval time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 5*time.Minute),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Scraper: ScraperConfig{
			MaxAttempts:     getIntOrDefault("SCRAPER_MAX_ATTEMPTS", 3),
			SelectorTimeout: getDurationOrDefault("SCRAPER_SELECTOR_TIMEOUT", 5*time.Second),
			RefineTimeout:   getDurationOrDefault("SCRAPER_REFINE_TIMEOUT", 20*time.Second),
			ClassifyTimeout: getDurationOrDefault("SCRAPER_CLASSIFY_TIMEOUT", 10*time.Second),
			ConcurrentLimit: getIntOrDefault("SCRAPER_CONCURRENT_LIMIT", 2),
			RateLimitMin:    getDurationOrDefault("SCRAPER_RATE_LIMIT_MIN", 3*time.Second),
			RateLimitMax:    getDurationOrDefault("SCRAPER_RATE_LIMIT_MAX", 6*time.Second),
			SitePerMinute:   getIntOrDefault("SCRAPER_SITE_PER_MINUTE", 0),
			ProfilesFile:    getEnvOrDefault("SCRAPER_PROFILES_FILE", ""),
		},
		Browser: BrowserConfig{
			Engine:         getEnvOrDefault("BROWSER_ENGINE", "playwright"),
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 60*time.Second),
			NavRetries:     getIntOrDefault("BROWSER_NAV_RETRIES", 2),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9,tr;q=0.8,nl;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Amsterdam"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "grocery_prices"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: getIntOrDefault("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			URL:    getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
			Stream: getEnvOrDefault("REDIS_STREAM", "stream:price_updates"),
		},
		Gemini: GeminiConfig{
			APIKey:     getEnvOrDefault("GEMINI_API_KEY", ""),
			Model:      getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
			BaseURL:    getEnvOrDefault("GEMINI_BASE_URL", ""),
			MaxRetries: getIntOrDefault("GEMINI_MAX_RETRIES", 2),
		},
		Jobs: JobsConfig{
			PollInterval:  getDurationOrDefault("JOBS_POLL_INTERVAL", 10*time.Second),
			RelayInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MaxAttempts < 1 {
		return fmt.Errorf("SCRAPER_MAX_ATTEMPTS must be at least 1")
	}

	if c.Scraper.ConcurrentLimit < 1 {
		return fmt.Errorf("SCRAPER_CONCURRENT_LIMIT must be at least 1")
	}

	if c.Scraper.SelectorTimeout <= 0 {
		return fmt.Errorf("SCRAPER_SELECTOR_TIMEOUT must be positive")
	}

	if c.Scraper.RateLimitMin > c.Scraper.RateLimitMax {
		return fmt.Errorf("SCRAPER_RATE_LIMIT_MIN cannot be greater than SCRAPER_RATE_LIMIT_MAX")
	}

	if c.Scraper.SitePerMinute < 0 {
		return fmt.Errorf("SCRAPER_SITE_PER_MINUTE cannot be negative")
	}

	switch c.Browser.Engine {
	case "playwright", "rod":
	default:
		return fmt.Errorf("BROWSER_ENGINE must be playwright or rod, got %q", c.Browser.Engine)
	}

	if c.Browser.NavRetries < 0 {
		return fmt.Errorf("BROWSER_NAV_RETRIES cannot be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format)
	}

	return nil
}

// DatabaseURL builds a postgres connection string.
func (d DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
