package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/grocery-price-scraper/internal/models"
)

// PriceResult is one stored orchestration outcome. Product columns are nil
// for exhausted runs.
type PriceResult struct {
	ID             uuid.UUID                  `json:"id"`
	SiteID         string                     `json:"site_id"`
	Query          string                     `json:"query"`
	Status         models.OutcomeStatus       `json:"status"`
	LastQuery      string                     `json:"last_query,omitempty"`
	ProductName    *string                    `json:"product_name,omitempty"`
	Price          *string                    `json:"price,omitempty"`
	Quantity       *string                    `json:"quantity,omitempty"`
	QuantityAmount *float64                   `json:"quantity_amount,omitempty"`
	QuantityUnit   *string                    `json:"quantity_unit,omitempty"`
	Category       *string                    `json:"category,omitempty"`
	Attempts       []models.ExtractionAttempt `json:"attempts,omitempty"`
	JobID          *uuid.UUID                 `json:"job_id,omitempty"`
	SearchedAt     time.Time                  `json:"searched_at"`
	CreatedAt      time.Time                  `json:"created_at"`
}

// NewPriceResult flattens an outcome into a row. jobID may be nil.
func NewPriceResult(target models.Target, outcome models.Outcome, jobID *uuid.UUID, now time.Time) *PriceResult {
	row := &PriceResult{
		ID:         uuid.New(),
		SiteID:     target.Site,
		Query:      target.Query,
		Status:     outcome.Status,
		LastQuery:  outcome.LastQuery,
		Attempts:   outcome.Attempts,
		JobID:      jobID,
		SearchedAt: now,
	}

	if outcome.IsFound() {
		r := outcome.Result
		quantity := r.Quantity.String()
		row.ProductName = &r.Name
		row.Price = &r.Price
		row.Quantity = &quantity
		row.Category = &r.Category
		row.SearchedAt = r.SearchDate
		row.LastQuery = ""
		if r.Quantity.IsParsed() {
			amount := r.Quantity.Amount
			unit := string(r.Quantity.Unit)
			row.QuantityAmount = &amount
			row.QuantityUnit = &unit
		}
	}
	return row
}

type ResultRepository struct {
	db *DB
}

func NewResultRepository(db *DB) *ResultRepository {
	return &ResultRepository{db: db}
}

func (r *ResultRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, row *PriceResult) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	attempts := row.Attempts
	if attempts == nil {
		attempts = []models.ExtractionAttempt{}
	}
	attemptsJSON, err := json.Marshal(attempts)
	if err != nil {
		return fmt.Errorf("failed to marshal attempts: %w", err)
	}
	row.CreatedAt = time.Now()

	query := `
		INSERT INTO price_results (
			id, site_id, query, status, last_query,
			product_name, price, quantity, quantity_amount, quantity_unit,
			category, attempts, job_id, searched_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)`

	_, err = tx.Exec(ctx, query,
		row.ID, row.SiteID, row.Query, string(row.Status), row.LastQuery,
		row.ProductName, row.Price, row.Quantity, row.QuantityAmount, row.QuantityUnit,
		row.Category, attemptsJSON, row.JobID, row.SearchedAt, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert price result: %w", err)
	}
	return nil
}

// ListLatest returns the newest results, optionally limited to one site.
func (r *ResultRepository) ListLatest(ctx context.Context, siteID string, limit int) ([]*PriceResult, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT id, site_id, query, status, last_query,
		       product_name, price, quantity, quantity_amount, quantity_unit,
		       category, attempts, job_id, searched_at, created_at
		FROM price_results
		WHERE ($1 = '' OR site_id = $1)
		ORDER BY searched_at DESC
		LIMIT $2`

	rows, err := r.db.pool.Query(ctx, query, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list price results: %w", err)
	}
	defer rows.Close()

	var results []*PriceResult
	for rows.Next() {
		row := &PriceResult{}
		var status string
		var attemptsJSON []byte
		err := rows.Scan(
			&row.ID, &row.SiteID, &row.Query, &status, &row.LastQuery,
			&row.ProductName, &row.Price, &row.Quantity, &row.QuantityAmount, &row.QuantityUnit,
			&row.Category, &attemptsJSON, &row.JobID, &row.SearchedAt, &row.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price result: %w", err)
		}
		row.Status = models.OutcomeStatus(status)
		if len(attemptsJSON) > 0 {
			if err := json.Unmarshal(attemptsJSON, &row.Attempts); err != nil {
				return nil, fmt.Errorf("failed to decode attempts: %w", err)
			}
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}
