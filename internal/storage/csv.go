package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/maltedev/grocery-price-scraper/internal/models"
)

// OutcomeHeader is the column layout of exported price sheets.
var OutcomeHeader = []string{"Supermarket", "Product Searched", "Category", "Product Name", "Price", "Quantity", "Date"}

var (
	siteColumns  = []string{"supermarket", "site", "site_id"}
	queryColumns = []string{"product searched", "query", "product"}
)

// ReadTargetsCSV reads search targets from a CSV with a header row. The site
// column may be named Supermarket or site, the query column Product Searched
// or query. Rows with an empty site or query are skipped.
func ReadTargetsCSV(r io.Reader) ([]models.Target, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	siteIdx := columnIndex(header, siteColumns)
	if siteIdx < 0 {
		return nil, fmt.Errorf("missing required column %q", "Supermarket")
	}
	queryIdx := columnIndex(header, queryColumns)
	if queryIdx < 0 {
		return nil, fmt.Errorf("missing required column %q", "Product Searched")
	}

	var targets []models.Target
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if siteIdx >= len(rec) || queryIdx >= len(rec) {
			continue
		}

		target := models.Target{
			Site:  strings.TrimSpace(rec[siteIdx]),
			Query: strings.TrimSpace(rec[queryIdx]),
		}
		if len(target.Validate()) > 0 {
			continue
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func ReadTargetsFile(path string) ([]models.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets file: %w", err)
	}
	defer f.Close()

	return ReadTargetsCSV(f)
}

func columnIndex(header []string, names []string) int {
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\uFEFF")))
		for _, name := range names {
			if col == name {
				return i
			}
		}
	}
	return -1
}

// OutcomeRow renders one outcome in OutcomeHeader order. Runs without a
// product leave the product columns empty.
func OutcomeRow(o models.TargetOutcome) []string {
	row := []string{o.Target.Site, o.Target.Query, "", "", "", "", ""}
	if o.Err == nil && o.Outcome.IsFound() {
		r := o.Outcome.Result
		row[2] = r.Category
		row[3] = r.Name
		row[4] = r.Price
		row[5] = r.Quantity.String()
		row[6] = r.DateString()
	}
	return row
}

func WriteOutcomesCSV(w io.Writer, outcomes []models.TargetOutcome) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(OutcomeHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, o := range outcomes {
		if err := cw.Write(OutcomeRow(o)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteOutcomesFile writes the sheet to a temp file first and renames it
// into place.
func WriteOutcomesFile(path string, outcomes []models.TargetOutcome) error {
	var buf bytes.Buffer
	if err := WriteOutcomesCSV(&buf, outcomes); err != nil {
		return err
	}
	return writeAtomic(path, buf.Bytes())
}

func writeAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmpFile, path)
}
