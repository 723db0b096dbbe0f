package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/absmach/flcoord"
	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/coordinator/api"
	"github.com/absmach/flcoord/coordinator/middleware"
	"github.com/absmach/flcoord/pkg/clients"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/model"
	"github.com/absmach/flcoord/pkg/mqtt"
	"github.com/absmach/flcoord/pkg/report"
	"github.com/absmach/flcoord/pkg/simulation"
	"github.com/absmach/flcoord/pkg/storage"
	"github.com/absmach/supermq/pkg/jaeger"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName           = "coordinator"
	defHTTPPort       = "7070"
	envPrefixHTTP     = "FL_COORDINATOR_HTTP_"
	envPrefixMQTT     = "FL_COORDINATOR_MQTT_"
	envPrefixRegistry = "FL_COORDINATOR_REGISTRY_"
	pathEnv           = ".env"
)

type envConfig struct {
	LogLevel        string        `env:"FL_COORDINATOR_LOG_LEVEL"        envDefault:"info"`
	InstanceID      string        `env:"FL_COORDINATOR_INSTANCE_ID"`
	DomainID        string        `env:"FL_COORDINATOR_DOMAIN_ID"        envDefault:"flcoord"`
	ChannelID       string        `env:"FL_COORDINATOR_CHANNEL_ID"       envDefault:"training"`
	ConfigPath      string        `env:"FL_COORDINATOR_CONFIG"`
	Features        int           `env:"FL_COORDINATOR_FEATURES"         envDefault:"13"`
	Hidden          int           `env:"FL_COORDINATOR_HIDDEN"           envDefault:"11"`
	Seed            uint64        `env:"FL_COORDINATOR_SEED"             envDefault:"42"`
	HoldoutPath     string        `env:"FL_COORDINATOR_HOLDOUT_PATH"`
	HoldoutTarget   string        `env:"FL_COORDINATOR_HOLDOUT_TARGET"   envDefault:"target"`
	HoldoutRows     int           `env:"FL_COORDINATOR_HOLDOUT_ROWS"     envDefault:"50"`
	TestFraction    float64       `env:"FL_COORDINATOR_TEST_FRACTION"    envDefault:"0.2"`
	CallTimeout     time.Duration `env:"FL_COORDINATOR_CALL_TIMEOUT"     envDefault:"10m"`
	LivenessTimeout time.Duration `env:"FL_COORDINATOR_LIVENESS_TIMEOUT" envDefault:"1m"`
	StartTimeout    time.Duration `env:"FL_COORDINATOR_START_TIMEOUT"    envDefault:"2m"`
	CheckpointDir   string        `env:"FL_COORDINATOR_CHECKPOINT_DIR"`
	ReportDir       string        `env:"FL_COORDINATOR_REPORT_DIR"`
	OTELURL         url.URL       `env:"FL_COORDINATOR_OTEL_URL"`
	TraceRatio      float64       `env:"FL_COORDINATOR_TRACE_RATIO"      envDefault:"0"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	runFile := flcoord.DefaultConfig()
	if cfg.ConfigPath != "" {
		var err error
		if runFile, err = flcoord.LoadConfig(cfg.ConfigPath); err != nil {
			logger.Error("failed to load run configuration", slog.Any("error", err))

			return
		}
	}
	runCfg, err := runFile.Coordinator()
	if err != nil {
		logger.Error("invalid run configuration", slog.Any("error", err))

		return
	}
	strategy, err := runFile.FLStrategy()
	if err != nil {
		logger.Error("invalid strategy configuration", slog.Any("error", err))

		return
	}

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	mqttCfg := mqtt.Config{}
	if err := env.ParseWithOptions(&mqttCfg, env.Options{Prefix: envPrefixMQTT}); err != nil {
		logger.Error("failed to load mqtt configuration", slog.Any("error", err))

		return
	}
	pubsub, err := mqtt.NewPubSub(mqttCfg, svcName+"-"+cfg.InstanceID, nil, logger)
	if err != nil {
		logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

		return
	}
	defer func() {
		if err := pubsub.Disconnect(context.Background()); err != nil {
			logger.Warn("failed to disconnect from mqtt broker", slog.Any("error", err))
		}
	}()

	registryCfg := storage.Config{}
	if err := env.ParseWithOptions(&registryCfg, env.Options{Prefix: envPrefixRegistry}); err != nil {
		logger.Error("failed to load registry configuration", slog.Any("error", err))

		return
	}
	registry, closer, err := storage.Open[clients.Descriptor](registryCfg, "clients")
	if err != nil {
		logger.Error("failed to open client registry", slog.Any("error", err))

		return
	}
	if closer != nil {
		defer closer.Close()
	}

	mgr := clients.NewManager(
		clients.WithStorage(registry),
		clients.WithSeed(cfg.Seed),
		clients.WithCallTimeout(cfg.CallTimeout),
		clients.WithLivenessTimeout(cfg.LivenessTimeout),
	)
	topics := clients.NewTopics(cfg.DomainID, cfg.ChannelID)
	transport := clients.NewTransport(pubsub, topics, logger)
	if err := transport.Start(ctx, mgr); err != nil {
		logger.Error("failed to start client transport", slog.Any("error", err))

		return
	}

	initial := model.NewDense(cfg.Features, cfg.Hidden, model.WithSeed(cfg.Seed))
	runID := uuid.NewString()
	opts := []coordinator.Option{
		coordinator.WithRunID(runID),
		coordinator.WithReporters(reporters(cfg, topics, pubsub, logger)...),
	}
	if cfg.HoldoutPath != "" {
		holdoutCfg := simulation.DefaultConfig()
		holdoutCfg.DataPath = cfg.HoldoutPath
		holdoutCfg.Target = cfg.HoldoutTarget
		holdoutCfg.Seed = cfg.Seed
		holdoutCfg.TestFraction = cfg.TestFraction
		holdoutCfg.HoldoutRows = cfg.HoldoutRows
		holdout, err := simulation.Holdout(holdoutCfg)
		if err != nil {
			logger.Error("failed to load holdout data", slog.Any("error", err))

			return
		}
		opts = append(opts, coordinator.WithEvaluator(coordinator.NewEvaluator(model.NewDense(cfg.Features, cfg.Hidden), holdout)))
	}
	if cfg.CheckpointDir != "" {
		cp, err := fl.NewCheckpoints(cfg.CheckpointDir, runID)
		if err != nil {
			logger.Error("failed to create checkpoint store", slog.Any("error", err))

			return
		}
		opts = append(opts, coordinator.WithCheckpoints(cp))
	}

	svc, err := coordinator.NewService(runCfg, strategy, mgr, initial.Parameters(), logger, opts...)
	if err != nil {
		logger.Error("failed to create coordinator", slog.Any("error", err))

		return
	}
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	g.Go(func() error {
		waitForClients(ctx, mgr, strategy.MinAvailableClients, cfg.StartTimeout, logger)
		// The API keeps serving the finished run until shutdown.
		if _, err := svc.Run(ctx); err != nil {
			logger.Warn("training run ended early", slog.Any("error", err))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}

func reporters(cfg envConfig, topics clients.Topics, pubsub mqtt.PubSub, logger *slog.Logger) []coordinator.Reporter {
	out := []coordinator.Reporter{
		report.Log(logger),
		report.Instrument(report.MakeInstruments(svcName)),
		report.Publisher(pubsub, topics.Rounds()),
	}
	if cfg.ReportDir != "" {
		out = append(out, report.JSONFile(cfg.ReportDir), report.CSVFile(cfg.ReportDir))
	}

	return out
}

// waitForClients returns once n clients are available or timeout elapses.
// Rounds started without a quorum fail and are retried by the run loop.
func waitForClients(ctx context.Context, mgr *clients.Manager, n int, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		avail, err := mgr.Available(ctx, nil)
		if err == nil && len(avail) >= n {
			logger.Info("client quorum reached", slog.Int("available", len(avail)))

			return
		}
		select {
		case <-ctx.Done():
			logger.Warn("starting run without client quorum", slog.Int("available", len(avail)), slog.Int("required", n))

			return
		case <-ticker.C:
		}
	}
}
