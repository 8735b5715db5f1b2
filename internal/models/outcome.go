package models

type AttemptOutcome string

const (
	AttemptSuccess AttemptOutcome = "success"
	AttemptNoMatch AttemptOutcome = "no_match"
	AttemptRefined AttemptOutcome = "refined"
)

// ExtractionAttempt records one search-and-extract cycle. Raw fields are nil
// when the corresponding selector chain found nothing.
type ExtractionAttempt struct {
	Query         string         `json:"query"`
	AttemptNumber int            `json:"attempt_number"`
	RawName       *string        `json:"raw_name,omitempty"`
	RawPrice      *string        `json:"raw_price,omitempty"`
	RawQuantity   *string        `json:"raw_quantity,omitempty"`
	Outcome       AttemptOutcome `json:"outcome"`
}

type OutcomeStatus string

const (
	StatusFound     OutcomeStatus = "found"
	StatusExhausted OutcomeStatus = "exhausted"
)

// Outcome is the terminal value of one orchestration run: either a found
// product or an exhausted run carrying its attempt history.
type Outcome struct {
	Status    OutcomeStatus       `json:"status"`
	Result    *ProductResult      `json:"result,omitempty"`
	LastQuery string              `json:"last_query,omitempty"`
	Attempts  []ExtractionAttempt `json:"attempts,omitempty"`
}

func Found(result ProductResult) Outcome {
	return Outcome{Status: StatusFound, Result: &result}
}

func Exhausted(lastQuery string, attempts []ExtractionAttempt) Outcome {
	history := make([]ExtractionAttempt, len(attempts))
	copy(history, attempts)
	return Outcome{Status: StatusExhausted, LastQuery: lastQuery, Attempts: history}
}

func (o Outcome) IsFound() bool {
	return o.Status == StatusFound && o.Result != nil
}

// TargetOutcome pairs a requested search with its outcome. Err is set only
// when the run failed fatally and produced no outcome.
type TargetOutcome struct {
	Target  Target  `json:"target"`
	Outcome Outcome `json:"outcome"`
	Err     error   `json:"-"`
}
