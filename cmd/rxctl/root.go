package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rxctl",
		Short:         "Offline tooling for the RxCompass diagnosis service",
		Long:          "rxctl runs the prediction pipeline on local CSV files and prepares\nthe classifier and label codec artifacts the server loads.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	root.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	root.AddCommand(newPredictCmd())
	root.AddCommand(newCodecCmd())
	root.AddCommand(newModelCmd())
	root.Version = version
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
