package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maltedev/grocery-price-scraper/internal/config"
	"github.com/maltedev/grocery-price-scraper/pkg/logger"
)

var version = "dev"

// app carries what every subcommand needs after flag parsing.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

var (
	logLevel     string
	logFormat    string
	profilesFile string
	engine       string
	headful      bool
	maxAttempts  int
)

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "pricewatch",
		Short:   "Track grocery prices across supermarket sites",
		Version: version,
		Long: `pricewatch searches supermarket sites for products, extracts the top
result's name, price and quantity, and retries with refined queries when
the first result is missing or is page noise.`,
		Example: `  # One search, printed as JSON
  pricewatch search --site carrefour --query "Süt"

  # Replay a saved result page without a browser
  pricewatch search --site ah --query melk --html testdata/ah-melk.html

  # A CSV of targets to a CSV of prices, resumable
  pricewatch batch -i targets.csv -o prices.csv --state .pricewatch.json

  # HTTP API with background jobs
  pricewatch serve`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (json, text); overrides LOG_FORMAT")
	rootCmd.PersistentFlags().StringVar(&profilesFile, "profiles", "", "Site profiles YAML file; overrides SCRAPER_PROFILES_FILE")
	rootCmd.PersistentFlags().StringVar(&engine, "engine", "", "Browser engine (playwright, rod); overrides BROWSER_ENGINE")
	rootCmd.PersistentFlags().BoolVar(&headful, "showui", false, "Show the browser window")
	rootCmd.PersistentFlags().IntVar(&maxAttempts, "max-attempts", 0, "Attempts per search; overrides SCRAPER_MAX_ATTEMPTS")

	rootCmd.AddCommand(
		newSearchCmd(a),
		newBatchCmd(a),
		newServeCmd(a),
		newSitesCmd(a),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = logFormat
	}
	if flags.Changed("profiles") {
		cfg.Scraper.ProfilesFile = profilesFile
	}
	if flags.Changed("engine") {
		cfg.Browser.Engine = engine
	}
	if flags.Changed("showui") {
		cfg.Browser.Headless = !headful
	}
	if flags.Changed("max-attempts") {
		cfg.Scraper.MaxAttempts = maxAttempts
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	a.cfg = cfg
	a.logger = logger.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(a.logger)
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
