package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/flcoord"
	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/pkg/report"
	"github.com/absmach/flcoord/pkg/simulation"
	"github.com/spf13/cobra"
)

func NewSimulateCmd() *cobra.Command {
	sim := simulation.DefaultConfig()
	var (
		configPath string
		outDir     string
		rounds     int
		csv        bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a local simulation",
		Long: `Run a complete federated training run in this process with in-memory
clients, then print the round history.

Examples:
  # Three clients on a synthetic dataset
  flcoord-cli simulate --rounds 5

  # Five clients on a CSV file, run settings from a TOML file
  flcoord-cli simulate --data heart.csv --target target --clients 5 --config run.toml`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cfg := flcoord.DefaultConfig()
			if configPath != "" {
				var err error
				if cfg, err = flcoord.LoadConfig(configPath); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}
			if cmd.Flags().Changed("rounds") {
				cfg.Run.NumRounds = rounds
			}
			runCfg, err := cfg.Coordinator()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			strategy, err := cfg.FLStrategy()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelInfo
			}
			logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			reporters := []coordinator.Reporter{report.Log(logger)}
			if outDir != "" {
				reporters = append(reporters, report.JSONFile(outDir), report.CSVFile(outDir))
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			snap, err := simulation.Run(ctx, sim, runCfg, strategy, logger, coordinator.WithReporters(reporters...))
			if csv {
				if werr := report.WriteCSV(cmd.OutOrStdout(), snap); werr != nil {
					logErrorCmd(*cmd, werr)
				}
			} else {
				logJSONCmd(*cmd, snap)
			}
			if err != nil {
				logErrorCmd(*cmd, err)
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "TOML run configuration")
	flags.StringVar(&sim.DataPath, "data", "", "CSV dataset; empty uses synthetic data")
	flags.StringVar(&sim.Target, "target", sim.Target, "Label column of the CSV dataset")
	flags.IntVar(&sim.SyntheticRows, "rows", sim.SyntheticRows, "Rows of synthetic data")
	flags.IntVar(&sim.Features, "features", sim.Features, "Features of synthetic data")
	flags.IntVar(&sim.NumClients, "clients", sim.NumClients, "Number of simulated clients")
	flags.IntVar(&sim.Hidden, "hidden", sim.Hidden, "Hidden layer width")
	flags.Uint64Var(&sim.Seed, "seed", sim.Seed, "Seed for splits, sampling and initial weights")
	flags.IntVar(&rounds, "rounds", 0, "Number of rounds, overrides the configuration")
	flags.StringVar(&outDir, "out", "", "Directory for JSON and CSV history files")
	flags.BoolVar(&csv, "csv", false, "Print history as CSV")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log every round")

	return cmd
}
