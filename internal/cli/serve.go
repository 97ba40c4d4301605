package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Haserjian/csp-tool-safety-profile/internal/gateway"
)

var serveConfig string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", "cspgate.yaml", "Gateway config file")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway with live config reload",
	Long: "Loads the gateway configuration, starts the enforcement pipeline,\n" +
		"and watches the config file for changes. Edits to grants, trust\n" +
		"levels, or tool registrations apply without a restart.\n\n" +
		"Runs until interrupted.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := gateway.LoadConfig(serveConfig)
	if err != nil {
		return err
	}
	gw, err := gateway.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	reloader, err := gateway.NewReloader(gw, serveConfig, log)
	if err != nil {
		return fmt.Errorf("failed to watch config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("gateway running", zap.String("config", serveConfig))
	return reloader.Run(ctx)
}
