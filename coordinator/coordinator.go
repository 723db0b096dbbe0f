package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/absmach/flcoord/pkg/clients"
	"github.com/absmach/flcoord/pkg/fl"
)

var (
	ErrNotRunning     = errors.New("no run in progress")
	ErrAlreadyStarted = errors.New("run already started")
)

// Service drives one federated training run and exposes its progress.
type Service interface {
	// Run executes every round and blocks until the run reaches a terminal
	// state. It returns the final history.
	Run(ctx context.Context) (fl.Snapshot, error)

	// Cancel stops the run after the round in flight settles.
	Cancel(ctx context.Context) error

	Status(ctx context.Context) (RunStatus, error)
	History(ctx context.Context) (fl.Snapshot, error)
	ListClients(ctx context.Context, offset, limit uint64) (clients.Page, error)
	GlobalModel(ctx context.Context) (ModelSnapshot, error)
}

// ClientPool is the view of the client manager the coordinator needs.
type ClientPool interface {
	Available(ctx context.Context, criterion clients.Criterion) ([]clients.Descriptor, error)
	Sample(ctx context.Context, minCount int, fraction float64, criterion clients.Criterion) ([]clients.Descriptor, error)
	Proxy(id string) (*clients.Proxy, error)
	List(ctx context.Context, offset, limit uint64) (clients.Page, error)
}

// Evaluator scores the global parameters on data held by the coordinator.
type Evaluator interface {
	Evaluate(ctx context.Context, params fl.ParameterSet) (fl.CentralizedMetrics, error)
}

type Config struct {
	NumRounds int
	// MaxConsecutiveFailures aborts the run once that many rounds in a
	// row have failed. Zero never aborts.
	MaxConsecutiveFailures int
	// RetryInterval is the pause after a failed round before the next
	// attempt.
	RetryInterval   time.Duration
	MaxConcurrency  int
	EvaluateInitial bool
}

func (c Config) Validate() error {
	var errs []error
	if c.NumRounds < 1 {
		errs = append(errs, errors.New("num_rounds must be at least 1"))
	}
	if c.MaxConsecutiveFailures < 0 {
		errs = append(errs, errors.New("max_consecutive_failures must not be negative"))
	}
	if c.RetryInterval < 0 {
		errs = append(errs, errors.New("retry_interval must not be negative"))
	}

	return errors.Join(errs...)
}

type RunStatus struct {
	RunID               string    `json:"run_id"`
	State               State     `json:"state"`
	Round               int       `json:"round"`
	NumRounds           int       `json:"num_rounds"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	ModelVersion        int       `json:"model_version"`
	StartedAt           time.Time `json:"started_at,omitempty"`
	FinishedAt          time.Time `json:"finished_at,omitempty"`
	Error               string    `json:"error,omitempty"`
}

type ModelSnapshot struct {
	Version    int             `json:"version"`
	Signature  [][]int         `json:"signature"`
	NumValues  int             `json:"num_values"`
	Parameters fl.ParameterSet `json:"-"`
}
