package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/flcoord/pkg/clients"
	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/report"
	"github.com/google/uuid"
)

type service struct {
	cfg         Config
	strategy    fl.Strategy
	pool        ClientPool
	evaluator   Evaluator
	reporter    report.Reporter
	checkpoints *fl.Checkpoints
	criterion   clients.Criterion
	logger      *slog.Logger
	history     *fl.History
	signature   fl.ParameterSet

	mu          sync.RWMutex
	state       State
	global      fl.ParameterSet
	version     int
	round       int
	consecutive int
	startedAt   time.Time
	finishedAt  time.Time
	runErr      error
	cancel      context.CancelFunc
}

type Option func(*service)

func WithEvaluator(e Evaluator) Option {
	return func(svc *service) {
		svc.evaluator = e
	}
}

func WithReporters(reporters ...Reporter) Option {
	return func(svc *service) {
		svc.reporter = report.Multi(reporters...)
	}
}

func WithCheckpoints(cp *fl.Checkpoints) Option {
	return func(svc *service) {
		svc.checkpoints = cp
	}
}

// WithCriterion restricts sampling to clients matching c.
func WithCriterion(c clients.Criterion) Option {
	return func(svc *service) {
		svc.criterion = c
	}
}

func WithRunID(id string) Option {
	return func(svc *service) {
		svc.history = fl.NewHistory(id)
	}
}

type Reporter = report.Reporter

func NewService(cfg Config, strategy fl.Strategy, pool ClientPool, initial fl.ParameterSet, logger *slog.Logger, opts ...Option) (Service, error) {
	if err := errors.Join(cfg.Validate(), strategy.Validate()); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("invalid initial parameters: %w", err)
	}

	svc := &service{
		cfg:       cfg,
		strategy:  strategy,
		pool:      pool,
		reporter:  report.Multi(),
		logger:    logger,
		history:   fl.NewHistory(uuid.NewString()),
		signature: initial.Clone(),
		global:    initial.Clone(),
	}
	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

func (svc *service) Run(ctx context.Context) (fl.Snapshot, error) {
	svc.mu.Lock()
	if svc.state != Idle {
		svc.mu.Unlock()

		return fl.Snapshot{}, errors.Join(pkgerrors.ErrConflict, ErrAlreadyStarted)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	svc.state = Running
	svc.startedAt = time.Now()
	svc.cancel = cancel
	svc.mu.Unlock()

	svc.logger.InfoContext(ctx, "run started",
		slog.String("run_id", svc.history.RunID()),
		slog.Int("num_rounds", svc.cfg.NumRounds),
	)

	err := svc.run(ctx)

	svc.mu.Lock()
	svc.finishedAt = time.Now()
	svc.runErr = err
	switch {
	case err == nil:
		svc.state = Completed
	case errors.Is(err, fl.ErrRunAborted):
		svc.state = Aborted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		svc.state = Cancelled
	default:
		svc.state = Failed
	}
	state := svc.state
	svc.mu.Unlock()

	snap := svc.history.Snapshot()
	if rerr := svc.reporter.RunCompleted(context.WithoutCancel(ctx), snap); rerr != nil {
		svc.logger.Warn("failed to report run history", slog.Any("error", rerr))
	}

	args := []any{
		slog.String("run_id", snap.RunID),
		slog.String("state", state.String()),
		slog.Int("rounds", len(snap.Rounds)),
	}
	if err != nil {
		args = append(args, slog.Any("error", err))
		svc.logger.Warn("run finished", args...)
	} else {
		svc.logger.Info("run finished", args...)
	}

	return snap, err
}

func (svc *service) run(ctx context.Context) error {
	if svc.evaluator != nil && svc.cfg.EvaluateInitial {
		m, err := svc.evaluator.Evaluate(ctx, svc.currentModel())
		switch err {
		case nil:
			svc.history.SetBaseline(m)
			svc.logger.Info("initial evaluation",
				slog.Float64("loss", m.Loss),
				slog.Float64("accuracy", m.Accuracy),
				slog.Float64("f1_score", m.F1),
			)
		default:
			svc.logger.Warn("initial evaluation failed", slog.Any("error", err))
		}
	}

	for round := 1; round <= svc.cfg.NumRounds; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		svc.mu.Lock()
		svc.round = round
		svc.mu.Unlock()

		rec, err := svc.runRound(ctx, round)
		svc.record(ctx, rec, err)

		if errors.Is(err, fl.ErrShapeMismatch) {
			return err
		}

		svc.mu.Lock()
		if rec.Succeeded() {
			svc.consecutive = 0
		} else {
			svc.consecutive++
		}
		consecutive := svc.consecutive
		svc.mu.Unlock()

		if rec.Succeeded() {
			continue
		}
		if limit := svc.cfg.MaxConsecutiveFailures; limit > 0 && consecutive >= limit {
			return fmt.Errorf("%w: %d in a row, last: %w", fl.ErrRunAborted, consecutive, err)
		}
		if round < svc.cfg.NumRounds && svc.cfg.RetryInterval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(svc.cfg.RetryInterval):
			}
		}
	}

	return nil
}

// record appends the round to the history and hands it to the reporters
// and the checkpoint store.
func (svc *service) record(ctx context.Context, rec fl.RoundRecord, roundErr error) {
	ctx = context.WithoutCancel(ctx)

	if err := svc.history.Append(rec); err != nil {
		svc.logger.Error("failed to append round record", slog.Any("error", err))
	}

	args := []any{
		slog.String("run_id", svc.history.RunID()),
		slog.Int("round", rec.Round),
		slog.String("outcome", string(rec.Outcome)),
		slog.String("duration", rec.Duration.String()),
		slog.Group("fit",
			slog.Int("sampled", rec.Fit.Sampled),
			slog.Int("succeeded", rec.Fit.Succeeded),
			slog.Int("failed", rec.Fit.Failed+rec.Fit.Excluded),
			slog.Int("timed_out", rec.Fit.TimedOut),
		),
		slog.Group("evaluate",
			slog.Int("sampled", rec.Evaluate.Sampled),
			slog.Int("succeeded", rec.Evaluate.Succeeded),
			slog.Int("failed", rec.Evaluate.Failed+rec.Evaluate.Excluded),
			slog.Int("timed_out", rec.Evaluate.TimedOut),
		),
	}
	if rec.EvaluateSkipped != "" {
		args = append(args, slog.String("evaluate_skipped", rec.EvaluateSkipped))
	}
	if roundErr != nil {
		args = append(args, slog.Any("error", roundErr))
		svc.logger.WarnContext(ctx, "round failed", args...)
	} else {
		svc.logger.InfoContext(ctx, "round completed", args...)
	}

	if err := svc.reporter.RoundCompleted(ctx, svc.history.RunID(), rec); err != nil {
		svc.logger.Warn("failed to report round", slog.Int("round", rec.Round), slog.Any("error", err))
	}

	if svc.checkpoints == nil {
		return
	}
	if err := svc.checkpoints.SaveRecord(rec); err != nil {
		svc.logger.Warn("failed to save round record", slog.Int("round", rec.Round), slog.Any("error", err))
	}
	if rec.Succeeded() {
		if err := svc.checkpoints.SaveModel(rec.ModelVersion, svc.currentModel()); err != nil {
			svc.logger.Warn("failed to save model checkpoint", slog.Int("version", rec.ModelVersion), slog.Any("error", err))
		}
	}
}

func (svc *service) Cancel(ctx context.Context) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.state != Running || svc.cancel == nil {
		return errors.Join(pkgerrors.ErrConflict, ErrNotRunning)
	}
	svc.cancel()

	return nil
}

func (svc *service) Status(ctx context.Context) (RunStatus, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	st := RunStatus{
		RunID:               svc.history.RunID(),
		State:               svc.state,
		Round:               svc.round,
		NumRounds:           svc.cfg.NumRounds,
		ConsecutiveFailures: svc.consecutive,
		ModelVersion:        svc.version,
		StartedAt:           svc.startedAt,
		FinishedAt:          svc.finishedAt,
	}
	if svc.runErr != nil {
		st.Error = svc.runErr.Error()
	}

	return st, nil
}

func (svc *service) History(ctx context.Context) (fl.Snapshot, error) {
	return svc.history.Snapshot(), nil
}

func (svc *service) ListClients(ctx context.Context, offset, limit uint64) (clients.Page, error) {
	return svc.pool.List(ctx, offset, limit)
}

func (svc *service) GlobalModel(ctx context.Context) (ModelSnapshot, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	return ModelSnapshot{
		Version:    svc.version,
		Signature:  svc.global.Signature(),
		NumValues:  svc.global.NumValues(),
		Parameters: svc.global.Clone(),
	}, nil
}

// currentModel returns the global parameters. Callers must not modify the
// result.
func (svc *service) currentModel() fl.ParameterSet {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	return svc.global
}

func (svc *service) commit(params fl.ParameterSet) int {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.global = params
	svc.version++

	return svc.version
}
