package main

import (
	"fmt"
	"os"

	"github.com/mohammad-safakhou/pdfbot/config"
	"github.com/spf13/cobra"
)

func main() {
	var envFile string
	var root = &cobra.Command{
		Use:           "pdfbot",
		Short:         "Answer questions about uploaded PDFs over HTTP and Chatwoot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration")

	root.AddCommand(serveCMD(), askCMD(), uploadCMD())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
