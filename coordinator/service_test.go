package coordinator_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/clients"
	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeClient struct {
	fit  func(ctx context.Context, ins clients.FitIns) (clients.FitRes, error)
	eval func(ctx context.Context, ins clients.EvaluateIns) (clients.EvaluateRes, error)
}

func (f fakeClient) Fit(ctx context.Context, ins clients.FitIns) (clients.FitRes, error) {
	return f.fit(ctx, ins)
}

func (f fakeClient) Evaluate(ctx context.Context, ins clients.EvaluateIns) (clients.EvaluateRes, error) {
	if f.eval == nil {
		return clients.EvaluateRes{}, errors.New("evaluate not supported")
	}

	return f.eval(ctx, ins)
}

// constant returns a client that always answers fit with value and n
// samples, and evaluate with loss and n samples.
func constant(value float64, n int, loss float64) fakeClient {
	return fakeClient{
		fit: func(_ context.Context, ins clients.FitIns) (clients.FitRes, error) {
			out := ins.Parameters.Clone()
			for i := range out {
				for j := range out[i].Data {
					out[i].Data[j] = value
				}
			}

			return clients.FitRes{Parameters: out, NumSamples: n}, nil
		},
		eval: func(context.Context, clients.EvaluateIns) (clients.EvaluateRes, error) {
			return clients.EvaluateRes{Loss: loss, NumSamples: n, Metrics: map[string]float64{"accuracy": 0.5}}, nil
		},
	}
}

func hanging() fakeClient {
	block := func(ctx context.Context) error {
		<-ctx.Done()

		return ctx.Err()
	}

	return fakeClient{
		fit: func(ctx context.Context, _ clients.FitIns) (clients.FitRes, error) {
			return clients.FitRes{}, block(ctx)
		},
		eval: func(ctx context.Context, _ clients.EvaluateIns) (clients.EvaluateRes, error) {
			return clients.EvaluateRes{}, block(ctx)
		},
	}
}

func newPool(t *testing.T, timeout time.Duration, cs ...clients.Client) *clients.Manager {
	t.Helper()

	m := clients.NewManager(clients.WithSeed(1), clients.WithCallTimeout(timeout))
	for i, c := range cs {
		_, err := m.Register(context.Background(), clients.Descriptor{ID: fmt.Sprintf("client-%d", i+1)}, c)
		require.NoError(t, err)
	}

	return m
}

func scalar(v float64) fl.ParameterSet {
	return fl.ParameterSet{{Shape: []int{1}, Data: []float64{v}}}
}

func fullParticipation() fl.Strategy {
	s := fl.DefaultStrategy()
	s.FractionFit = 1
	s.FractionEvaluate = 0
	s.MinEvaluateClients = 0

	return s
}

type recorder struct {
	mu     sync.Mutex
	rounds []fl.RoundRecord
	final  *fl.Snapshot
}

func (r *recorder) RoundCompleted(_ context.Context, _ string, rec fl.RoundRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds = append(r.rounds, rec)

	return nil
}

func (r *recorder) RunCompleted(_ context.Context, snap fl.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.final = &snap

	return nil
}

type fixedEvaluator struct {
	calls int
}

func (e *fixedEvaluator) Evaluate(_ context.Context, params fl.ParameterSet) (fl.CentralizedMetrics, error) {
	e.calls++

	return fl.CentralizedMetrics{Loss: params[0].Data[0], Accuracy: 0.5, NumSamples: 50}, nil
}

func TestRunWeightedAverage(t *testing.T) {
	pool := newPool(t, time.Second, constant(1, 10, 0), constant(2, 20, 0), constant(3, 30, 0))
	rec := &recorder{}

	svc, err := coordinator.NewService(coordinator.Config{NumRounds: 1}, fullParticipation(), pool, scalar(0), logger,
		coordinator.WithReporters(rec), coordinator.WithRunID("scenario"))
	require.NoError(t, err)

	snap, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Rounds, 1)
	assert.Equal(t, "scenario", snap.RunID)

	round := snap.Rounds[0]
	assert.Equal(t, 1, round.Round)
	assert.True(t, round.Succeeded())
	assert.Equal(t, 3, round.Fit.Succeeded)
	assert.Equal(t, 60, round.Fit.Samples)
	assert.Equal(t, 100, round.Config.LocalEpochs)
	assert.NotEmpty(t, round.EvaluateSkipped)

	model, err := svc.GlobalModel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, model.Version)
	assert.InDelta(t, 14.0/6.0, model.Parameters[0].Data[0], 1e-12)

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, coordinator.Completed, status.State)

	require.Len(t, rec.rounds, 1)
	require.NotNil(t, rec.final)
	assert.Len(t, rec.final.Rounds, 1)
}

func TestRunRoundOutcomes(t *testing.T) {
	cases := []struct {
		desc        string
		clients     []clients.Client
		cfg         coordinator.Config
		strategy    func() fl.Strategy
		timeout     time.Duration
		rounds      int
		succeeded   int
		version     int
		final       float64
		timedOut    int
		state       coordinator.State
		err         error
		reason      error
		evalSkipped bool
	}{
		{
			desc:     "quorum not met fails every round",
			clients:  []clients.Client{constant(1, 10, 0), constant(2, 10, 0)},
			cfg:      coordinator.Config{NumRounds: 3},
			strategy: fullParticipation,
			rounds:   3,
			version:  0,
			final:    0,
			state:    coordinator.Completed,
			reason:   fl.ErrInsufficientClients,
		},
		{
			desc:     "all clients time out",
			clients:  []clients.Client{hanging(), hanging(), hanging()},
			cfg:      coordinator.Config{NumRounds: 2},
			strategy: fullParticipation,
			timeout:  20 * time.Millisecond,
			rounds:   2,
			version:  0,
			final:    0,
			timedOut: 3,
			state:    coordinator.Completed,
			reason:   fl.ErrNoSuccessfulClients,
		},
		{
			desc:      "one client times out and the others are averaged",
			clients:   []clients.Client{constant(1, 10, 0), constant(3, 30, 0), hanging()},
			cfg:       coordinator.Config{NumRounds: 1},
			strategy:  fullParticipation,
			timeout:   50 * time.Millisecond,
			rounds:    1,
			succeeded: 1,
			version:   1,
			final:     (10.0 + 90.0) / 40.0,
			timedOut:  1,
			state:     coordinator.Completed,
		},
		{
			desc:     "consecutive failures abort the run",
			clients:  []clients.Client{constant(1, 10, 0)},
			cfg:      coordinator.Config{NumRounds: 5, MaxConsecutiveFailures: 2},
			strategy: fullParticipation,
			rounds:   2,
			state:    coordinator.Aborted,
			err:      fl.ErrRunAborted,
			reason:   fl.ErrInsufficientClients,
		},
		{
			desc:    "evaluate quorum miss keeps the round",
			clients: []clients.Client{constant(4, 10, 0.5), constant(4, 10, 0.5), constant(4, 10, 0.5)},
			cfg:     coordinator.Config{NumRounds: 2},
			strategy: func() fl.Strategy {
				s := fullParticipation()
				s.FractionEvaluate = 0.5
				s.MinEvaluateClients = 5

				return s
			},
			rounds:      2,
			succeeded:   2,
			version:     2,
			final:       4,
			state:       coordinator.Completed,
			evalSkipped: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			timeout := tc.timeout
			if timeout == 0 {
				timeout = time.Second
			}
			pool := newPool(t, timeout, tc.clients...)

			svc, err := coordinator.NewService(tc.cfg, tc.strategy(), pool, scalar(0), logger)
			require.NoError(t, err)

			snap, err := svc.Run(context.Background())
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}

			require.Len(t, snap.Rounds, tc.rounds)
			for i, r := range snap.Rounds {
				assert.Equal(t, i+1, r.Round)
				if tc.reason != nil {
					assert.False(t, r.Succeeded())
					assert.Contains(t, r.Reason, tc.reason.Error())
				}
				assert.Equal(t, tc.timedOut, r.Fit.TimedOut)
				if tc.evalSkipped {
					assert.NotEmpty(t, r.EvaluateSkipped)
					assert.Nil(t, r.Distributed)
				}
			}
			assert.Len(t, snap.Succeeded(), tc.succeeded)

			model, err := svc.GlobalModel(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.version, model.Version)
			assert.InDelta(t, tc.final, model.Parameters[0].Data[0], 1e-12)

			status, err := svc.Status(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.state, status.State)
		})
	}
}

func TestRunClientCallsHaveDeadline(t *testing.T) {
	var (
		mu        sync.Mutex
		deadlines []time.Time
	)
	recording := func(value float64, n int) fakeClient {
		c := constant(value, n, 0)
		fit := c.fit
		c.fit = func(ctx context.Context, ins clients.FitIns) (clients.FitRes, error) {
			d, ok := ctx.Deadline()
			if !ok {
				return clients.FitRes{}, errors.New("call without deadline")
			}
			mu.Lock()
			deadlines = append(deadlines, d)
			mu.Unlock()

			return fit(ctx, ins)
		}

		return c
	}

	pool := clients.NewManager(clients.WithSeed(1))
	for i, c := range []clients.Client{recording(1, 10), recording(2, 20), recording(3, 30)} {
		_, err := pool.Register(context.Background(), clients.Descriptor{ID: fmt.Sprintf("client-%d", i+1)}, c)
		require.NoError(t, err)
	}

	svc, err := coordinator.NewService(coordinator.Config{NumRounds: 1}, fullParticipation(), pool, scalar(0), logger)
	require.NoError(t, err)

	start := time.Now()
	snap, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Rounds, 1)
	assert.Equal(t, 3, snap.Rounds[0].Fit.Succeeded)

	require.Len(t, deadlines, 3)
	for _, d := range deadlines {
		assert.WithinDuration(t, start.Add(clients.DefaultCallTimeout), d, 5*time.Second)
	}
}

func TestRunDistributedEvaluation(t *testing.T) {
	pool := newPool(t, time.Second, constant(1, 10, 1), constant(1, 30, 3), constant(1, 20, 2))
	s := fullParticipation()
	s.FractionEvaluate = 1
	s.MinEvaluateClients = 2
	ev := &fixedEvaluator{}

	svc, err := coordinator.NewService(coordinator.Config{NumRounds: 4, EvaluateInitial: true}, s, pool, scalar(0), logger,
		coordinator.WithEvaluator(ev))
	require.NoError(t, err)

	snap, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, snap.Baseline)
	assert.Equal(t, 0.0, snap.Baseline.Loss)
	assert.Equal(t, 5, ev.calls)

	require.Len(t, snap.Rounds, 4)
	for _, r := range snap.Rounds {
		require.NotNil(t, r.Distributed)
		assert.InDelta(t, 140.0/60.0, r.Distributed.Loss, 1e-12)
		assert.Equal(t, 3, r.Evaluate.Succeeded)
		require.NotNil(t, r.Centralized)
		assert.Equal(t, 1.0, r.Centralized.Loss)
	}
	assert.Equal(t, 10, snap.Rounds[3].Config.EvalSteps)

	_, loss := snap.Series("loss")
	assert.Equal(t, []float64{1, 1, 1, 1}, loss)
}

type driftingAggregator struct {
	fl.Aggregator
}

func (driftingAggregator) AggregateFit(fl.ParameterSet, []fl.ClientResult) (fl.ParameterSet, error) {
	return fl.ParameterSet{fl.Zeros(2)}, nil
}

func TestRunShapeMismatchFails(t *testing.T) {
	pool := newPool(t, time.Second, constant(1, 10, 0), constant(2, 10, 0), constant(3, 10, 0))
	s := fullParticipation()
	s.Aggregator = driftingAggregator{Aggregator: fl.NewFedAvg()}

	svc, err := coordinator.NewService(coordinator.Config{NumRounds: 3}, s, pool, scalar(7), logger)
	require.NoError(t, err)

	snap, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, fl.ErrShapeMismatch)
	require.Len(t, snap.Rounds, 1)

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, coordinator.Failed, status.State)
	assert.NotEmpty(t, status.Error)

	model, err := svc.GlobalModel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7.0, model.Parameters[0].Data[0])
}

func TestCancelLetsRoundSettle(t *testing.T) {
	started := make(chan struct{}, 3)
	release := make(chan struct{})
	gated := fakeClient{
		fit: func(_ context.Context, ins clients.FitIns) (clients.FitRes, error) {
			started <- struct{}{}
			<-release

			return clients.FitRes{Parameters: ins.Parameters, NumSamples: 1}, nil
		},
	}
	pool := newPool(t, 5*time.Second, gated, gated, gated)

	svc, err := coordinator.NewService(coordinator.Config{NumRounds: 10}, fullParticipation(), pool, scalar(1), logger)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Cancel(context.Background()), coordinator.ErrNotRunning)

	type result struct {
		snap fl.Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		snap, err := svc.Run(context.Background())
		done <- result{snap: snap, err: err}
	}()

	for range 3 {
		<-started
	}
	require.NoError(t, svc.Cancel(context.Background()))
	close(release)

	res := <-done
	assert.ErrorIs(t, res.err, context.Canceled)
	require.Len(t, res.snap.Rounds, 1)
	assert.True(t, res.snap.Rounds[0].Succeeded())

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, coordinator.Cancelled, status.State)
	assert.Equal(t, 1, status.ModelVersion)

	_, err = svc.Run(context.Background())
	assert.ErrorIs(t, err, coordinator.ErrAlreadyStarted)
	assert.ErrorIs(t, err, pkgerrors.ErrConflict)
}

func TestNewServiceValidation(t *testing.T) {
	pool := newPool(t, time.Second)

	cases := []struct {
		desc     string
		cfg      coordinator.Config
		strategy fl.Strategy
		initial  fl.ParameterSet
	}{
		{desc: "zero rounds", cfg: coordinator.Config{}, strategy: fl.DefaultStrategy(), initial: scalar(0)},
		{desc: "invalid strategy", cfg: coordinator.Config{NumRounds: 1}, strategy: fl.Strategy{}, initial: scalar(0)},
		{desc: "empty parameters", cfg: coordinator.Config{NumRounds: 1}, strategy: fl.DefaultStrategy(), initial: nil},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := coordinator.NewService(tc.cfg, tc.strategy, pool, tc.initial, logger)
			assert.Error(t, err)
		})
	}
}

func TestListClients(t *testing.T) {
	pool := newPool(t, time.Second, constant(1, 1, 0), constant(1, 1, 0))

	svc, err := coordinator.NewService(coordinator.Config{NumRounds: 1}, fl.DefaultStrategy(), pool, scalar(0), logger)
	require.NoError(t, err)

	page, err := svc.ListClients(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), page.Total)
	assert.Len(t, page.Clients, 2)
}
