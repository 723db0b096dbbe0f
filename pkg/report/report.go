// Package report delivers round records and run histories to external
// sinks.
package report

import (
	"context"
	"errors"

	"github.com/absmach/flcoord/pkg/fl"
)

// Reporter receives every round record as it is appended and the complete
// history once the run reaches a terminal state.
type Reporter interface {
	RoundCompleted(ctx context.Context, runID string, rec fl.RoundRecord) error
	RunCompleted(ctx context.Context, snap fl.Snapshot) error
}

type multi []Reporter

// Multi fans out to every reporter and joins their errors.
func Multi(reporters ...Reporter) Reporter {
	return multi(reporters)
}

func (m multi) RoundCompleted(ctx context.Context, runID string, rec fl.RoundRecord) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RoundCompleted(ctx, runID, rec))
	}

	return errors.Join(errs...)
}

func (m multi) RunCompleted(ctx context.Context, snap fl.Snapshot) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RunCompleted(ctx, snap))
	}

	return errors.Join(errs...)
}
