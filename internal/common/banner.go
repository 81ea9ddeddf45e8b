package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the resolved run parameters
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("DCTFWeb", GetVersion())

	logger.Info().
		Str("period", config.Run.Period).
		Str("start_date", config.Run.StartDate).
		Str("end_date", config.Run.EndDate).
		Str("workbook", config.Storage.Workbook).
		Str("download_dir", config.DownloadPath()).
		Msg("Run parameters")
}
