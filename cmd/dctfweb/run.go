package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hugorneri/RPA-DCTFWEB/internal/app"
	"github.com/hugorneri/RPA-DCTFWEB/internal/common"
	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
	"github.com/hugorneri/RPA-DCTFWEB/internal/orchestrator"
	"github.com/hugorneri/RPA-DCTFWEB/internal/report"
	"github.com/hugorneri/RPA-DCTFWEB/internal/services/runs"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process the workbook from the terminal",
	Long: `Opens a browser on the portal login page and waits for ENTER once the manual login is done.
Entities already Completed are skipped. The first Ctrl+C stops after the current entity,
the second aborts immediately.`,
	RunE: runRun,
}

type runResult struct {
	outcome models.RunOutcome
	err     error
}

func runRun(cmd *cobra.Command, args []string) error {
	common.PrintBanner(config, logger)

	application, err := app.New(config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	unsubscribe, err := application.EventService.Subscribe(interfaces.EventRunProgress, func(ctx context.Context, event interfaces.Event) error {
		p, ok := event.Payload.(runs.ProgressEvent)
		if !ok {
			return nil
		}
		fmt.Printf("[%d/%d] %s\n", p.Current, p.Total, p.Message)
		if p.Message == orchestrator.LoginPrompt {
			fmt.Println("Log in on the browser window, then press ENTER to continue.")
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	if _, err := application.RunService.Start(cmd.Context()); err != nil {
		return err
	}

	lines := make(chan struct{})
	common.SafeGo(logger, "stdin", func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- struct{}{}
		}
	})

	done := make(chan runResult, 1)
	common.SafeGo(logger, "run-wait", func() {
		outcome, err := application.RunService.Wait(context.Background())
		done <- runResult{outcome: outcome, err: err}
	})

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	interrupts := 0
	for {
		select {
		case <-lines:
			if err := application.RunService.ConfirmLogin(); err != nil && !errors.Is(err, runs.ErrNotAwaitingLogin) {
				logger.Warn().Err(err).Msg("Login confirmation ignored")
			}

		case <-sigChan:
			interrupts++
			if interrupts == 1 {
				logger.Warn().Msg("Stop requested - finishing the current entity (Ctrl+C again to abort)")
				_ = application.RunService.Stop()
			} else {
				logger.Warn().Msg("Aborting run")
				_ = application.RunService.Cancel()
			}

		case res := <-done:
			return finishRun(application, res)
		}
	}
}

func finishRun(application *app.App, res runResult) error {
	batch, err := application.RunService.Entities(context.Background())
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to reload ledger for summary")
	} else {
		report.WriteCounts(os.Stdout, models.CountStatuses(batch))
	}

	logger.Info().Str("outcome", string(res.outcome)).Msg("Run finished")
	if res.outcome == models.RunCancelled {
		return nil
	}
	return res.err
}
