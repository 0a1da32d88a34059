package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fancify",
	Short: "Fancify - rewrite a sentence at a chosen level of ornateness",
	Long: `Fancify serves the rewrite widget: a ten-star fanciness rating, an input
box and a Transform button backed by the Gemini completion API.

Run without a subcommand to start the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
