/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "apiserver",
	Short: "Backends for the heart risk and expense tracking apps",
	Long: `apiserver runs one of two JSON APIs over a shared stack:

	apiserver server heart   heart-disease risk predictions
	apiserver server spend   expense tracking with AI categorization
	apiserver migrate up     create the Postgres document tables
	apiserver events tail    log domain events from the message queue
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
