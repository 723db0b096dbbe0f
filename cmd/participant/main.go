package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/flcoord/participant"
	"github.com/absmach/flcoord/pkg/clients"
	"github.com/absmach/flcoord/pkg/dataset"
	"github.com/absmach/flcoord/pkg/model"
	"github.com/absmach/flcoord/pkg/mqtt"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const (
	svcName              = "participant"
	envPrefixParticipant = "FL_PARTICIPANT_"
	envPrefixMQTT        = "FL_PARTICIPANT_MQTT_"
	pathEnv              = ".env"
)

type envConfig struct {
	LogLevel     string  `env:"FL_PARTICIPANT_LOG_LEVEL"     envDefault:"info"`
	DataPath     string  `env:"FL_PARTICIPANT_DATA_PATH"`
	Target       string  `env:"FL_PARTICIPANT_TARGET"        envDefault:"target"`
	Partition    int     `env:"FL_PARTICIPANT_PARTITION"     envDefault:"0"`
	Partitions   int     `env:"FL_PARTICIPANT_PARTITIONS"    envDefault:"1"`
	TestFraction float64 `env:"FL_PARTICIPANT_TEST_FRACTION" envDefault:"0.2"`
	Hidden       int     `env:"FL_PARTICIPANT_HIDDEN"        envDefault:"11"`
	Seed         uint64  `env:"FL_PARTICIPANT_SEED"          envDefault:"42"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Printf("Invalid log level: %s. Defaulting to info.\n", cfg.LogLevel)
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	pcfg := participant.Config{}
	if err := env.ParseWithOptions(&pcfg, env.Options{Prefix: envPrefixParticipant}); err != nil {
		return errors.Join(errors.New("failed to load participant configuration"), err)
	}
	if pcfg.ID == "" {
		pcfg.ID = uuid.NewString()
	}
	if err := pcfg.Validate(); err != nil {
		return err
	}

	train, eval, err := loadPartition(cfg)
	if err != nil {
		return errors.Join(errors.New("failed to load training data"), err)
	}
	local := clients.NewLocal(model.NewDense(train.NumFeatures(), cfg.Hidden, model.WithSeed(cfg.Seed)), train, eval)

	mqttCfg := mqtt.Config{}
	if err := env.ParseWithOptions(&mqttCfg, env.Options{Prefix: envPrefixMQTT}); err != nil {
		return errors.Join(errors.New("failed to load mqtt configuration"), err)
	}
	pubsub, err := mqtt.NewPubSub(mqttCfg, svcName+"-"+pcfg.ID, participant.Will(pcfg), logger)
	if err != nil {
		return errors.Join(errors.New("failed to initialize mqtt client"), err)
	}
	defer pubsub.Disconnect(context.Background())

	svc, err := participant.NewService(pcfg, pubsub, local, local.NumSamples(), logger)
	if err != nil {
		return errors.Join(errors.New("failed to initialize service"), err)
	}

	if err := svc.Run(ctx); err != nil {
		return errors.Join(errors.New("failed to run service"), err)
	}

	return nil
}

// loadPartition returns this participant's shard of the dataset, scaled
// with statistics of the shard itself and split into train and eval rows.
func loadPartition(cfg envConfig) (train, eval dataset.Dataset, err error) {
	if cfg.Partitions < 1 || cfg.Partition < 0 || cfg.Partition >= cfg.Partitions {
		return dataset.Dataset{}, dataset.Dataset{}, fmt.Errorf("partition %d out of %d", cfg.Partition, cfg.Partitions)
	}

	var data dataset.Dataset
	switch cfg.DataPath {
	case "":
		data = dataset.Synthetic(1000, 13, cfg.Seed)
	default:
		if data, err = dataset.LoadCSV(cfg.DataPath, cfg.Target); err != nil {
			return dataset.Dataset{}, dataset.Dataset{}, err
		}
	}

	shard := data.Partition(cfg.Partitions)[cfg.Partition]
	shard = dataset.FitStandardizer(shard).Apply(shard)
	train, eval = shard.Split(cfg.TestFraction, cfg.Seed+uint64(cfg.Partition))

	return train, eval, nil
}
