package parser

import (
	"github.com/maltedev/grocery-price-scraper/internal/models"
)

// Parser normalizes free-text quantities for one site.
type Parser interface {
	Parse(text string) models.Quantity
}

var _ Parser = (*QuantityParser)(nil)
