package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.0-flash"

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string

	// MaxRetries is the number of extra tries after a transient failure.
	MaxRetries int
}

// Generator produces a text reply for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error)
}

// TransientError marks a failure worth retrying (rate limits, 5xx, timeouts).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Gemini is a Generator backed by the Gemini API.
type Gemini struct {
	client     *genai.Client
	model      string
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

func NewGemini(ctx context.Context, cfg Config, logger *slog.Logger) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Gemini{
		client:     client,
		model:      model,
		maxRetries: maxRetries,
		backoff:    500 * time.Millisecond,
		logger:     logger.With("component", "gemini"),
	}, nil
}

func (g *Gemini) Model() string {
	return g.model
}

func (g *Gemini) Generate(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	return withRetry(ctx, g.maxRetries, g.backoff, func(ctx context.Context) (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
		if err != nil {
			g.logger.Debug("generate failed", "model", g.model, "error", err)
			return "", classifyErr(err)
		}
		return resp.Text(), nil
	})
}

// withRetry calls fn until it succeeds, fails permanently or runs out of
// retries. Sleeps double from backoff.
func withRetry(ctx context.Context, maxRetries int, backoff time.Duration, fn func(context.Context) (string, error)) (string, error) {
	for attempt := 0; ; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}

		var te *TransientError
		if !errors.As(err, &te) || attempt >= maxRetries {
			return "", err
		}

		timer := time.NewTimer(backoff << attempt)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TransientError{Err: err}
	}
	return err
}
