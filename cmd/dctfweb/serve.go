package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugorneri/RPA-DCTFWEB/internal/app"
	"github.com/hugorneri/RPA-DCTFWEB/internal/common"
	"github.com/hugorneri/RPA-DCTFWEB/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control page to run and watch the workbook from a browser",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&flags.Port, "port", "p", 0, "Server port (overrides config)")
	serveCmd.Flags().StringVar(&flags.Host, "host", "", "Server host (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	common.PrintBanner(config, logger)

	application, err := app.New(config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	srv := server.New(application)

	serverErr := make(chan error, 1)
	common.SafeGo(logger, "http-server", func() {
		serverErr <- srv.Start()
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
	return nil
}
