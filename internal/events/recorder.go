package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/grocery-price-scraper/internal/database"
	"github.com/maltedev/grocery-price-scraper/internal/models"
)

type EventType string

const (
	EventTypePriceRecorded   EventType = "PRICE_RECORDED"
	EventTypeSearchExhausted EventType = "SEARCH_EXHAUSTED"

	aggregateType = "price_result"
)

// PriceRecordedPayload is published when a run finds a valid product.
type PriceRecordedPayload struct {
	EventID        string     `json:"event_id"`
	EventType      string     `json:"event_type"`
	Timestamp      time.Time  `json:"timestamp"`
	ResultID       string     `json:"result_id"`
	SiteID         string     `json:"site_id"`
	Query          string     `json:"query"`
	ProductName    string     `json:"product_name"`
	Price          string     `json:"price"`
	Quantity       string     `json:"quantity"`
	QuantityAmount *float64   `json:"quantity_amount,omitempty"`
	QuantityUnit   string     `json:"quantity_unit,omitempty"`
	Category       string     `json:"category"`
	SearchDate     string     `json:"search_date"`
	JobID          *uuid.UUID `json:"job_id,omitempty"`
}

// SearchExhaustedPayload is published when a run spends its attempt budget.
type SearchExhaustedPayload struct {
	EventID   string                     `json:"event_id"`
	EventType string                     `json:"event_type"`
	Timestamp time.Time                  `json:"timestamp"`
	ResultID  string                     `json:"result_id"`
	SiteID    string                     `json:"site_id"`
	Query     string                     `json:"query"`
	LastQuery string                     `json:"last_query"`
	Attempts  []models.ExtractionAttempt `json:"attempts"`
	JobID     *uuid.UUID                 `json:"job_id,omitempty"`
}

type Transactor interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type resultWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, row *database.PriceResult) error
}

type outboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Recorder stores an outcome and its domain event in one transaction, so the
// event reaches the stream if and only if the row exists.
type Recorder struct {
	db      Transactor
	results resultWriter
	outbox  outboxWriter
	stream  string
	logger  *slog.Logger
	now     func() time.Time
}

func NewRecorder(db *database.DB, stream string, logger *slog.Logger) *Recorder {
	return newRecorder(db, database.NewResultRepository(db), database.NewOutboxRepository(db), stream, logger)
}

func newRecorder(db Transactor, results resultWriter, outbox outboxWriter, stream string, logger *slog.Logger) *Recorder {
	if stream == "" {
		stream = database.DefaultPriceStream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		db:      db,
		results: results,
		outbox:  outbox,
		stream:  stream,
		logger:  logger.With("component", "event_recorder"),
		now:     time.Now,
	}
}

// Record persists outcome for target. jobID links the row to a batch job and
// may be nil.
func (r *Recorder) Record(ctx context.Context, target models.Target, outcome models.Outcome, jobID *uuid.UUID) (*database.PriceResult, error) {
	now := r.now()
	row := database.NewPriceResult(target, outcome, jobID, now)

	eventType, payload, err := r.buildPayload(row, now)
	if err != nil {
		return nil, err
	}

	outboxEvent := &database.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   row.ID.String(),
		EventType:     string(eventType),
		Payload:       payload,
		TargetStream:  r.stream,
	}

	err = r.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := r.results.InsertWithTx(ctx, tx, row); err != nil {
			return err
		}
		return r.outbox.InsertWithTx(ctx, tx, outboxEvent)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record outcome: %w", err)
	}

	r.logger.Info("outcome recorded",
		"type", eventType,
		"site", row.SiteID,
		"query", row.Query,
		"result_id", row.ID,
		"outbox_id", outboxEvent.ID)

	return row, nil
}

func (r *Recorder) buildPayload(row *database.PriceResult, now time.Time) (EventType, json.RawMessage, error) {
	var (
		eventType EventType
		payload   any
	)

	if row.Status == models.StatusFound {
		eventType = EventTypePriceRecorded
		payload = PriceRecordedPayload{
			EventID:        uuid.NewString(),
			EventType:      string(eventType),
			Timestamp:      now,
			ResultID:       row.ID.String(),
			SiteID:         row.SiteID,
			Query:          row.Query,
			ProductName:    deref(row.ProductName),
			Price:          deref(row.Price),
			Quantity:       deref(row.Quantity),
			QuantityAmount: row.QuantityAmount,
			QuantityUnit:   deref(row.QuantityUnit),
			Category:       deref(row.Category),
			SearchDate:     row.SearchedAt.Format("2006-01-02"),
			JobID:          row.JobID,
		}
	} else {
		eventType = EventTypeSearchExhausted
		attempts := row.Attempts
		if attempts == nil {
			attempts = []models.ExtractionAttempt{}
		}
		payload = SearchExhaustedPayload{
			EventID:   uuid.NewString(),
			EventType: string(eventType),
			Timestamp: now,
			ResultID:  row.ID.String(),
			SiteID:    row.SiteID,
			Query:     row.Query,
			LastQuery: row.LastQuery,
			Attempts:  attempts,
			JobID:     row.JobID,
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return eventType, data, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
