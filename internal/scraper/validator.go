package scraper

import (
	"strings"

	"github.com/maltedev/grocery-price-scraper/internal/models"
)

// Validate reports whether an extracted name and price make a usable result.
func Validate(name, price string, profile *models.SiteProfile) bool {
	return rejectReason(name, price, profile) == ""
}

func rejectReason(name, price string, profile *models.SiteProfile) string {
	if strings.TrimSpace(name) == "" {
		return "missing name"
	}
	if strings.TrimSpace(price) == "" {
		return "missing price"
	}
	if profile == nil {
		return ""
	}
	for _, pattern := range profile.NoisePatterns {
		if pattern.Matches(name) {
			return "noise: " + pattern.Text
		}
	}
	return ""
}
