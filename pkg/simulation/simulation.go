// Package simulation runs a complete federated training run in one process
// with in-memory clients over a shared dataset.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/clients"
	"github.com/absmach/flcoord/pkg/dataset"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/model"
)

type Config struct {
	// DataPath is a CSV file with a header row. Empty selects a synthetic
	// dataset of SyntheticRows rows.
	DataPath      string
	Target        string
	SyntheticRows int
	Features      int

	NumClients   int
	Hidden       int
	Seed         uint64
	TestFraction float64
	HoldoutRows  int
	CallTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Target:        "target",
		SyntheticRows: 1000,
		Features:      13,
		NumClients:    3,
		Hidden:        11,
		Seed:          42,
		TestFraction:  0.2,
		HoldoutRows:   50,
		CallTimeout:   time.Minute,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.NumClients < 1 {
		errs = append(errs, errors.New("num_clients must be at least 1"))
	}
	if c.Hidden < 1 {
		errs = append(errs, errors.New("hidden must be at least 1"))
	}
	if c.TestFraction < 0 || c.TestFraction >= 1 {
		errs = append(errs, fmt.Errorf("test_fraction %v out of [0, 1)", c.TestFraction))
	}
	if c.HoldoutRows < 1 {
		errs = append(errs, errors.New("holdout_rows must be at least 1"))
	}
	if c.DataPath == "" && (c.SyntheticRows < 1 || c.Features < 1) {
		errs = append(errs, errors.New("synthetic data needs rows and features"))
	}

	return errors.Join(errs...)
}

// Setup is everything a simulated run needs before it starts.
type Setup struct {
	Manager   *clients.Manager
	Initial   fl.ParameterSet
	Evaluator coordinator.Evaluator
}

// Prepare loads and scales the data, registers one in-memory client per
// shard of the training split and keeps the first HoldoutRows training
// rows for centralized evaluation.
func Prepare(ctx context.Context, cfg Config) (Setup, error) {
	if err := cfg.Validate(); err != nil {
		return Setup{}, err
	}

	data, err := load(cfg)
	if err != nil {
		return Setup{}, err
	}

	train := trainingSplit(data, cfg)
	if train.Len() < cfg.NumClients {
		return Setup{}, fmt.Errorf("%d training rows cannot be split across %d clients", train.Len(), cfg.NumClients)
	}
	holdout := train.Head(cfg.HoldoutRows)

	mgr := clients.NewManager(clients.WithSeed(cfg.Seed), clients.WithCallTimeout(cfg.CallTimeout))
	names := namegenerator.NewGenerator()
	for i, shard := range train.Partition(cfg.NumClients) {
		local, eval := shard.Split(cfg.TestFraction, cfg.Seed+uint64(i)+1)
		m := model.NewDense(data.NumFeatures(), cfg.Hidden, model.WithSeed(cfg.Seed+uint64(i)+1))
		c := clients.NewLocal(m, local, eval)
		if _, err := mgr.Register(ctx, clients.Descriptor{
			ID:         fmt.Sprintf("client-%02d", i),
			Name:       names.Generate(),
			NumSamples: c.NumSamples(),
		}, c); err != nil {
			return Setup{}, err
		}
	}

	return Setup{
		Manager:   mgr,
		Initial:   model.NewDense(data.NumFeatures(), cfg.Hidden, model.WithSeed(cfg.Seed)).Parameters(),
		Evaluator: coordinator.NewEvaluator(model.NewDense(data.NumFeatures(), cfg.Hidden), holdout),
	}, nil
}

// Holdout loads the dataset and returns the rows used for centralized
// evaluation: the first HoldoutRows rows of the standardized training split.
func Holdout(cfg Config) (dataset.Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return dataset.Dataset{}, err
	}

	data, err := load(cfg)
	if err != nil {
		return dataset.Dataset{}, err
	}

	return trainingSplit(data, cfg).Head(cfg.HoldoutRows), nil
}

func trainingSplit(data dataset.Dataset, cfg Config) dataset.Dataset {
	train, _ := data.Split(cfg.TestFraction, cfg.Seed)

	return dataset.FitStandardizer(train).Apply(train)
}

func load(cfg Config) (dataset.Dataset, error) {
	if cfg.DataPath == "" {
		return dataset.Synthetic(cfg.SyntheticRows, cfg.Features, cfg.Seed), nil
	}

	return dataset.LoadCSV(cfg.DataPath, cfg.Target)
}

// Run prepares a simulation and drives it to completion.
func Run(ctx context.Context, cfg Config, runCfg coordinator.Config, strategy fl.Strategy, logger *slog.Logger, opts ...coordinator.Option) (fl.Snapshot, error) {
	setup, err := Prepare(ctx, cfg)
	if err != nil {
		return fl.Snapshot{}, err
	}

	opts = append([]coordinator.Option{coordinator.WithEvaluator(setup.Evaluator)}, opts...)
	svc, err := coordinator.NewService(runCfg, strategy, setup.Manager, setup.Initial, logger, opts...)
	if err != nil {
		return fl.Snapshot{}, err
	}

	return svc.Run(ctx)
}
