/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/healthspend/apiserver/config"
	"github.com/healthspend/apiserver/internal/logging"
	"github.com/healthspend/apiserver/internal/server"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts one of the API servers",
	Long: `Starts one of the API servers. Usage:

	apiserver server heart
	apiserver server spend
`,
}

var serverHeartCmd = &cobra.Command{
	Use:   config.ServiceHeart,
	Short: "Starts the heart risk prediction API",
	Run:   runServer(config.ServiceHeart),
}

var serverSpendCmd = &cobra.Command{
	Use:   config.ServiceSpend,
	Short: "Starts the expense tracking API",
	Run:   runServer(config.ServiceSpend),
}

func runServer(service string) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		logging.Setup(service)
		cfg := config.LoadConfig(service)
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.ServerPort = port
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := server.New(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
			os.Exit(1)
		}
		if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.AddCommand(serverHeartCmd, serverSpendCmd)

	serverCmd.PersistentFlags().Int("port", 0, "listen port, overrides SERVER_PORT")
}

// commandContext returns cmd's context, or Background when cobra has none.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
