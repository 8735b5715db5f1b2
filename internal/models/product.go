package models

import (
	"strconv"
	"strings"
	"time"
)

type UnitKind string

const (
	KindMass   UnitKind = "mass"
	KindVolume UnitKind = "volume"
	KindCount  UnitKind = "count"
)

type Unit string

const (
	UnitKilogram   Unit = "kg"
	UnitGram       Unit = "g"
	UnitLiter      Unit = "l"
	UnitMilliliter Unit = "ml"
	UnitCount      Unit = "count"
	UnitPack       Unit = "pack"
)

// Kind reports the physical dimension a unit measures.
func (u Unit) Kind() UnitKind {
	switch u {
	case UnitKilogram, UnitGram:
		return KindMass
	case UnitLiter, UnitMilliliter:
		return KindVolume
	default:
		return KindCount
	}
}

// Quantity is either unknown, a parsed (amount, unit) pair, or the literal
// text of a structured quantity field kept verbatim.
type Quantity struct {
	Amount float64 `json:"amount,omitempty"`
	Unit   Unit    `json:"unit,omitempty"`
	Text   string  `json:"text,omitempty"`
}

func UnknownQuantity() Quantity {
	return Quantity{}
}

func ParsedQuantity(amount float64, unit Unit) Quantity {
	return Quantity{Amount: amount, Unit: unit}
}

func LiteralQuantity(text string) Quantity {
	return Quantity{Text: text}
}

func (q Quantity) IsUnknown() bool {
	return q.Unit == "" && q.Text == ""
}

func (q Quantity) IsParsed() bool {
	return q.Unit != ""
}

func (q Quantity) String() string {
	switch {
	case q.IsParsed():
		return strconv.FormatFloat(q.Amount, 'f', -1, 64) + " " + string(q.Unit)
	case q.Text != "":
		return q.Text
	default:
		return "Unknown"
	}
}

// ProductResult is the validated top product for one search.
type ProductResult struct {
	Name       string    `json:"name"`
	Price      string    `json:"price"`
	Quantity   Quantity  `json:"quantity"`
	Category   string    `json:"category"`
	SearchDate time.Time `json:"search_date"`
}

// DateString formats the search date the way exports expect it.
func (r ProductResult) DateString() string {
	return r.SearchDate.Format("2006-01-02")
}

// Target is one requested search.
type Target struct {
	Site  string `json:"site"`
	Query string `json:"query"`
}

func (t Target) Validate() []string {
	var errors []string

	if strings.TrimSpace(t.Site) == "" {
		errors = append(errors, "site is required")
	}

	if strings.TrimSpace(t.Query) == "" {
		errors = append(errors, "query is required")
	}

	return errors
}
