package fl

import (
	"fmt"
	"maps"
	"time"
)

type Status uint8

const (
	Success Status = iota
	Failed
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "success":
		*s = Success
	case "failed":
		*s = Failed
	case "timed_out":
		*s = TimedOut
	default:
		return fmt.Errorf("unknown client result status %q", string(b))
	}

	return nil
}

// ClientResult is the outcome of a single fit or evaluate call against one
// client. Parameters is only set for fit calls and Loss only for evaluate
// calls.
type ClientResult struct {
	ClientID   string             `json:"client_id"`
	Status     Status             `json:"status"`
	Parameters ParameterSet       `json:"-"`
	NumSamples int                `json:"num_samples"`
	Loss       float64            `json:"loss,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Err        string             `json:"error,omitempty"`
	Duration   time.Duration      `json:"duration"`
}

// RoundConfig is the configuration sent to every participant of a round.
type RoundConfig struct {
	Round       int `json:"round"`
	BatchSize   int `json:"batch_size"`
	LocalEpochs int `json:"local_epochs"`
	EvalSteps   int `json:"eval_steps"`
}

// Participation counts how many clients took part in a phase and how they
// fared.
type Participation struct {
	Sampled   int `json:"sampled"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timed_out"`
	Excluded  int `json:"excluded"`
	Samples   int `json:"samples"`
}

func Summarize(results []ClientResult) Participation {
	p := Participation{Sampled: len(results)}
	for _, r := range results {
		switch r.Status {
		case Success:
			if r.NumSamples <= 0 {
				p.Excluded++

				continue
			}
			p.Succeeded++
			p.Samples += r.NumSamples
		case TimedOut:
			p.TimedOut++
		default:
			p.Failed++
		}
	}

	return p
}

// DistributedMetrics are the sample-weighted averages of what clients
// reported about their own local evaluation.
type DistributedMetrics struct {
	Loss       float64            `json:"loss"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	NumSamples int                `json:"num_samples"`
}

// CentralizedMetrics are computed by the coordinator on its holdout set.
type CentralizedMetrics struct {
	Loss            float64         `json:"loss"`
	Accuracy        float64         `json:"accuracy"`
	F1              float64         `json:"f1_score"`
	ConfusionMatrix ConfusionMatrix `json:"confusion_matrix"`
	NumSamples      int             `json:"num_samples"`
}

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

type RoundRecord struct {
	Round           int                 `json:"round"`
	Outcome         Outcome             `json:"outcome"`
	Reason          string              `json:"reason,omitempty"`
	Config          RoundConfig         `json:"config"`
	Fit             Participation       `json:"fit"`
	Evaluate        Participation       `json:"evaluate"`
	EvaluateSkipped string              `json:"evaluate_skipped,omitempty"`
	Distributed     *DistributedMetrics `json:"distributed,omitempty"`
	Centralized     *CentralizedMetrics `json:"centralized,omitempty"`
	ModelVersion    int                 `json:"model_version"`
	StartedAt       time.Time           `json:"started_at"`
	Duration        time.Duration       `json:"duration"`
}

func (r RoundRecord) Succeeded() bool {
	return r.Outcome == OutcomeSucceeded
}

// Clone returns a copy of r that shares no memory with it.
func (r RoundRecord) Clone() RoundRecord {
	if r.Distributed != nil {
		d := *r.Distributed
		d.Metrics = maps.Clone(d.Metrics)
		r.Distributed = &d
	}
	if r.Centralized != nil {
		c := *r.Centralized
		r.Centralized = &c
	}

	return r
}
