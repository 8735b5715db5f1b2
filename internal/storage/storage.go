package storage

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/grocery-price-scraper/internal/models"
)

type TargetStatus string

const (
	StatusPending   TargetStatus = "pending"
	StatusFound     TargetStatus = "found"
	StatusExhausted TargetStatus = "exhausted"
	StatusFailed    TargetStatus = "failed"
)

// TargetState is the last known outcome of one site/query pair across batch
// runs.
type TargetState struct {
	Target    models.Target         `json:"target"`
	Status    TargetStatus          `json:"status"`
	Result    *models.ProductResult `json:"result,omitempty"`
	LastQuery string                `json:"last_query,omitempty"`
	Attempts  int                   `json:"attempts"`
	AddedAt   time.Time             `json:"added_at"`
	UpdatedAt time.Time             `json:"updated_at"`
	Error     string                `json:"error,omitempty"`
}

// StateStore persists TargetState to a JSON file so an interrupted batch can
// pick up where it stopped.
type StateStore struct {
	mu       sync.RWMutex
	states   map[string]*TargetState
	filename string
	now      func() time.Time
}

func NewStateStore(filename string) (*StateStore, error) {
	s := &StateStore{
		states:   make(map[string]*TargetState),
		filename: filename,
		now:      time.Now,
	}

	if err := s.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return s, nil
}

func stateKey(t models.Target) string {
	return strings.ToLower(strings.TrimSpace(t.Site)) + "|" + strings.TrimSpace(t.Query)
}

// AddBatch registers targets as pending. Targets already tracked keep their
// state.
func (s *StateStore) AddBatch(targets []models.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, t := range targets {
		key := stateKey(t)
		if _, ok := s.states[key]; ok {
			continue
		}
		s.states[key] = &TargetState{
			Target:    t,
			Status:    StatusPending,
			AddedAt:   now,
			UpdatedAt: now,
		}
	}

	return s.save()
}

func (s *StateStore) Get(t models.Target) (*TargetState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[stateKey(t)]
	return state, ok
}

// Remaining returns the targets that still need a run, in the given order.
// Found targets are skipped.
func (s *StateStore) Remaining(targets []models.Target) []models.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Target
	for _, t := range targets {
		if state, ok := s.states[stateKey(t)]; ok && state.Status == StatusFound {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Record stores the outcome of a single run.
func (s *StateStore) Record(o models.TargetOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := stateKey(o.Target)
	state, ok := s.states[key]
	if !ok {
		state = &TargetState{Target: o.Target, AddedAt: s.now()}
		s.states[key] = state
	}

	state.UpdatedAt = s.now()
	state.Error = ""
	state.Result = nil
	state.Attempts = len(o.Outcome.Attempts)
	state.LastQuery = o.Outcome.LastQuery

	switch {
	case o.Err != nil:
		state.Status = StatusFailed
		state.Error = o.Err.Error()
	case o.Outcome.IsFound():
		state.Status = StatusFound
		state.Result = o.Outcome.Result
	default:
		state.Status = StatusExhausted
	}

	return s.save()
}

// Outcomes rebuilds outcomes for the given targets from stored state, so a
// resumed batch can still export a complete sheet.
func (s *StateStore) Outcomes(targets []models.Target) []models.TargetOutcome {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.TargetOutcome, 0, len(targets))
	for _, t := range targets {
		o := models.TargetOutcome{Target: t}
		if state, ok := s.states[stateKey(t)]; ok {
			switch state.Status {
			case StatusFound:
				if state.Result != nil {
					o.Outcome = models.Found(*state.Result)
				}
			case StatusFailed:
				o.Err = errors.New(state.Error)
			default:
				o.Outcome = models.Exhausted(state.LastQuery, nil)
			}
		} else {
			o.Outcome = models.Exhausted(t.Query, nil)
		}
		out = append(out, o)
	}
	return out
}

func (s *StateStore) GetStats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int)
	for _, state := range s.states {
		stats[string(state.Status)]++
	}
	stats["total"] = len(s.states)
	return stats
}

func (s *StateStore) save() error {
	data, err := json.MarshalIndent(s.states, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.filename, data)
}

func (s *StateStore) Load() error {
	data, err := os.ReadFile(s.filename)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &s.states)
}
