package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
	"github.com/hugorneri/RPA-DCTFWEB/internal/report"
	"github.com/hugorneri/RPA-DCTFWEB/internal/storage"
)

var reportOutput string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write a PDF summary of the workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		batch, err := storage.NewRowStore(logger, config).LoadBatch(ctx)
		if err != nil {
			return err
		}

		summary := report.Summary{
			Period:      config.Run.Period,
			Workbook:    config.Storage.Workbook,
			GeneratedAt: time.Now(),
			Batch:       batch,
		}

		// history is optional here: another process may hold the store
		if manager, err := storage.NewStorageManager(logger, config); err != nil {
			logger.Warn().Err(err).Msg("Run history unavailable, report will omit the last run")
		} else {
			defer manager.Close()
			if recent, err := manager.RunStorage().ListRuns(ctx, 1); err == nil && len(recent) > 0 {
				summary.LastRun = recent[0]
			}
		}

		path := reportOutput
		if path == "" {
			path = filepath.Join(config.DownloadPath(), defaultReportName(config.Run.Period))
		}
		if err := report.NewWriter(logger).WriteFile(path, summary); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", path)
		report.WriteCounts(cmd.OutOrStdout(), models.CountStatuses(batch))
		return nil
	},
}

func defaultReportName(period string) string {
	return fmt.Sprintf("Relatorio DCTFWEB %s.pdf", period)
}

func init() {
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "PDF path (default: <download_dir>/Relatorio DCTFWEB <period>.pdf)")
}
