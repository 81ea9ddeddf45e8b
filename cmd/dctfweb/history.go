package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
	"github.com/hugorneri/RPA-DCTFWEB/internal/report"
	"github.com/hugorneri/RPA-DCTFWEB/internal/storage"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past runs, or the entity attempts of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		manager, err := storage.NewStorageManager(logger, config)
		if err != nil {
			return err
		}
		defer manager.Close()

		history := manager.RunStorage()
		if len(args) == 1 {
			run, err := history.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			attempts, err := history.ListAttempts(ctx, run.ID)
			if err != nil {
				return err
			}
			report.WriteRuns(os.Stdout, []*models.RunRecord{run})
			report.WriteAttempts(os.Stdout, attempts)
			return nil
		}

		recent, err := history.ListRuns(ctx, historyLimit)
		if err != nil {
			return err
		}
		report.WriteRuns(os.Stdout, recent)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list (0 = all)")
}
