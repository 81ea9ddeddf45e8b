package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hugorneri/RPA-DCTFWEB/internal/report"
	"github.com/hugorneri/RPA-DCTFWEB/internal/storage"
)

var statusPendingOnly bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the STATUS column of the workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		batch, err := storage.NewRowStore(logger, config).LoadBatch(cmd.Context())
		if err != nil {
			return err
		}
		if !statusPendingOnly {
			report.WriteLedger(os.Stdout, batch)
		}
		report.WritePending(os.Stdout, batch)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusPendingOnly, "pending", false, "Only list entities a rerun would process")
}
