package fl

import (
	"fmt"
	"sync"
)

// History is the append-only log of round outcomes for one run. It is safe
// for concurrent readers while the coordinator appends.
type History struct {
	mu       sync.RWMutex
	runID    string
	baseline *CentralizedMetrics
	records  []RoundRecord
}

// Snapshot is an immutable copy of a History.
type Snapshot struct {
	RunID    string              `json:"run_id"`
	Baseline *CentralizedMetrics `json:"baseline,omitempty"`
	Rounds   []RoundRecord       `json:"rounds"`
}

func NewHistory(runID string) *History {
	return &History{runID: runID}
}

func (h *History) RunID() string {
	return h.runID
}

// SetBaseline stores the centralized evaluation of the initial parameters.
func (h *History) SetBaseline(m CentralizedMetrics) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.baseline = &m
}

// Append adds a copy of rec. Round numbers must be strictly increasing.
func (h *History) Append(rec RoundRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.records); n > 0 && rec.Round <= h.records[n-1].Round {
		return fmt.Errorf("round %d recorded after round %d", rec.Round, h.records[n-1].Round)
	}
	if rec.Round < 1 {
		return fmt.Errorf("invalid round number %d", rec.Round)
	}
	h.records = append(h.records, rec.Clone())

	return nil
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.records)
}

func (h *History) Last() (RoundRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.records) == 0 {
		return RoundRecord{}, false
	}

	return h.records[len(h.records)-1].Clone(), true
}

func (h *History) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Snapshot{
		RunID:  h.runID,
		Rounds: make([]RoundRecord, len(h.records)),
	}
	for i, rec := range h.records {
		s.Rounds[i] = rec.Clone()
	}
	if h.baseline != nil {
		b := *h.baseline
		s.Baseline = &b
	}

	return s
}

// Succeeded returns the records of rounds that produced a new model.
func (s Snapshot) Succeeded() []RoundRecord {
	var out []RoundRecord
	for _, r := range s.Rounds {
		if r.Succeeded() {
			out = append(out, r)
		}
	}

	return out
}

// Series returns one centralized metric per successful round, keyed by
// name: loss, accuracy or f1_score.
func (s Snapshot) Series(name string) (rounds []int, values []float64) {
	for _, r := range s.Rounds {
		if r.Centralized == nil {
			continue
		}
		var v float64
		switch name {
		case "loss":
			v = r.Centralized.Loss
		case "accuracy":
			v = r.Centralized.Accuracy
		case "f1_score":
			v = r.Centralized.F1
		default:
			continue
		}
		rounds = append(rounds, r.Round)
		values = append(values, v)
	}

	return rounds, values
}
