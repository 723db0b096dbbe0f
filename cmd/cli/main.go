package main

import (
	"log"

	"github.com/absmach/flcoord/cli"
	"github.com/absmach/flcoord/pkg/sdk"
	"github.com/spf13/cobra"
)

const defCoordinatorURL = "http://localhost:7070"

func main() {
	var (
		coordinatorURL string
		tlsVerify      bool
	)

	rootCmd := &cobra.Command{
		Use:   "flcoord-cli",
		Short: "Federated learning coordinator CLI",
		Long:  `flcoord-cli inspects a running coordinator and runs local simulations.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			s := sdk.NewSDK(sdk.Config{
				CoordinatorURL:  coordinatorURL,
				TLSVerification: tlsVerify,
			})
			cli.SetSDK(s)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&coordinatorURL, "coordinator-url", "u", defCoordinatorURL, "Coordinator API URL")
	rootCmd.PersistentFlags().BoolVar(&tlsVerify, "tls-verify", false, "Verify the coordinator's TLS certificate")

	rootCmd.AddCommand(
		cli.NewRunCmd(),
		cli.NewClientsCmd(),
		cli.NewSimulateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
