package cli

import (
	"strconv"

	"github.com/absmach/flcoord/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	defOffset uint64 = 0
	defLimit  uint64 = 10
)

var flsdk sdk.SDK

func SetSDK(s sdk.SDK) {
	flsdk = s
}

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [status|cancel|history|model]",
		Short: "Training run",
		Long:  `Inspect or cancel the coordinator's training run.`,
	}

	var csv, withParams bool

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show run status",
		Run: func(cmd *cobra.Command, _ []string) {
			s, err := flsdk.Status()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, s)
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the run after the current round",
		Run: func(cmd *cobra.Command, _ []string) {
			if err := flsdk.Cancel(); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd)
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show round history",
		Run: func(cmd *cobra.Command, _ []string) {
			if csv {
				data, err := flsdk.HistoryCSV()
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				_, _ = cmd.OutOrStdout().Write(data)

				return
			}

			snap, err := flsdk.History()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, snap)
		},
	}
	historyCmd.Flags().BoolVar(&csv, "csv", false, "Print history as CSV")

	modelCmd := &cobra.Command{
		Use:   "model",
		Short: "Show the global model",
		Run: func(cmd *cobra.Command, _ []string) {
			m, err := flsdk.Model(withParams)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, m)
		},
	}
	modelCmd.Flags().BoolVar(&withParams, "parameters", false, "Include encoded parameters")

	cmd.AddCommand(statusCmd, cancelCmd, historyCmd, modelCmd)

	return cmd
}

func NewClientsCmd() *cobra.Command {
	var offset, limit uint64

	cmd := &cobra.Command{
		Use:   "clients [offset] [limit]",
		Short: "List clients",
		Long:  `List clients registered with the coordinator.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) > 2 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			offset, limit = defOffset, defLimit
			var err error
			if len(args) > 0 {
				if offset, err = strconv.ParseUint(args[0], 10, 64); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}
			if len(args) > 1 {
				if limit, err = strconv.ParseUint(args[1], 10, 64); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}

			page, err := flsdk.ListClients(offset, limit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	return cmd
}
