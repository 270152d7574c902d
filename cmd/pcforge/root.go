package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	a := &app{out: os.Stdout}
	apiURL := os.Getenv(apiEnv)
	if apiURL == "" {
		apiURL = defaultAPI
	}

	root := &cobra.Command{
		Use:           "pcforge",
		Short:         "Browse parts, manage your cart and check out from the terminal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			return a.open()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.apiURL, "api", apiURL, "storefront base URL (env "+apiEnv+")")
	root.PersistentFlags().StringVar(&a.home, "home", "", "state directory (default $"+homeEnv+" or ~/.pcforge)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 15*time.Second, "request timeout")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newProductsCmd(a),
		newCartCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newCheckoutCmd(a),
		newPayCmd(a),
		newOrdersCmd(a),
		newBuildCmd(a),
	)
	return root
}
