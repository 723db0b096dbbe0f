package flcoord

import (
	"fmt"
	"os"
	"time"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/pelletier/go-toml"
)

// Config is the optional TOML run file shared by the coordinator and the
// simulate command. Values left out keep their defaults.
type Config struct {
	Run      RunConfig      `toml:"run"`
	Strategy StrategyConfig `toml:"strategy"`
	Policy   fl.StepPolicy  `toml:"policy"`
}

type RunConfig struct {
	NumRounds              int    `toml:"num_rounds"`
	MaxConsecutiveFailures int    `toml:"max_consecutive_failures"`
	RetryInterval          string `toml:"retry_interval"`
	MaxConcurrency         int    `toml:"max_concurrency"`
	EvaluateInitial        bool   `toml:"evaluate_initial"`
}

type StrategyConfig struct {
	FractionFit         float64 `toml:"fraction_fit"`
	FractionEvaluate    float64 `toml:"fraction_evaluate"`
	MinFitClients       int     `toml:"min_fit_clients"`
	MinEvaluateClients  int     `toml:"min_evaluate_clients"`
	MinAvailableClients int     `toml:"min_available_clients"`
	// Aggregator is fedavg or fedmedian.
	Aggregator string `toml:"aggregator"`
}

func DefaultConfig() Config {
	s := fl.DefaultStrategy()

	return Config{
		Run: RunConfig{
			NumRounds:              5,
			MaxConsecutiveFailures: 3,
			RetryInterval:          "5s",
			EvaluateInitial:        true,
		},
		Strategy: StrategyConfig{
			FractionFit:         s.FractionFit,
			FractionEvaluate:    s.FractionEvaluate,
			MinFitClients:       s.MinFitClients,
			MinEvaluateClients:  s.MinEvaluateClients,
			MinAvailableClients: s.MinAvailableClients,
			Aggregator:          "fedavg",
		},
		Policy: fl.DefaultPolicy(),
	}
}

// LoadConfig reads path over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return Config{}, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := tree.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return cfg, nil
}

func (c Config) Coordinator() (coordinator.Config, error) {
	var retry time.Duration
	if c.Run.RetryInterval != "" {
		var err error
		if retry, err = time.ParseDuration(c.Run.RetryInterval); err != nil {
			return coordinator.Config{}, fmt.Errorf("invalid retry_interval: %w", err)
		}
	}

	cfg := coordinator.Config{
		NumRounds:              c.Run.NumRounds,
		MaxConsecutiveFailures: c.Run.MaxConsecutiveFailures,
		RetryInterval:          retry,
		MaxConcurrency:         c.Run.MaxConcurrency,
		EvaluateInitial:        c.Run.EvaluateInitial,
	}

	return cfg, cfg.Validate()
}

func (c Config) FLStrategy() (fl.Strategy, error) {
	var agg fl.Aggregator
	switch c.Strategy.Aggregator {
	case "", "fedavg":
		agg = fl.NewFedAvg()
	case "fedmedian":
		agg = fl.NewFedMedian()
	default:
		return fl.Strategy{}, fmt.Errorf("unknown aggregator %q", c.Strategy.Aggregator)
	}

	s := fl.Strategy{
		FractionFit:         c.Strategy.FractionFit,
		FractionEvaluate:    c.Strategy.FractionEvaluate,
		MinFitClients:       c.Strategy.MinFitClients,
		MinEvaluateClients:  c.Strategy.MinEvaluateClients,
		MinAvailableClients: c.Strategy.MinAvailableClients,
		Policy:              c.Policy,
		Aggregator:          agg,
	}

	return s, s.Validate()
}
