package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/hugorneri/RPA-DCTFWEB/internal/common"
)

var (
	// Command-line flags
	configFiles []string // later files override earlier ones
	flags       common.FlagOverrides
	headless    bool

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "dctfweb",
	Short:         "Downloads DCTFWeb tax guides for every entity of a workbook",
	Long:          `Drives the e-CAC portal through a browser session, downloads the DCTFWeb guide of each entity listed in the workbook and records the outcome in its STATUS column.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		if cmd.Flags().Changed("headless") {
			flags.Headless = &headless
		}
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&flags.Period, "period", "", "Reporting period label, e.g. \"06 2025\" (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&flags.Workbook, "workbook", "w", "", "Entity workbook (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", false, "Run Chrome headless, --headless=false forces a visible window (overrides config)")

	rootCmd.AddCommand(runCmd, serveCmd, statusCmd, reportCmd, historyCmd, versionCmd)
}

// loadConfig resolves configuration with priority: defaults -> files -> env -> flags
func loadConfig() error {
	if len(configFiles) == 0 {
		if _, err := os.Stat("dctfweb.toml"); err == nil {
			configFiles = append(configFiles, "dctfweb.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return err
	}
	common.ApplyFlagOverrides(config, flags)

	if err := config.Validate(); err != nil {
		return err
	}

	logger = common.SetupLogger(config)
	common.InstallCrashHandler(common.LogsDir())

	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Msg("Configuration loaded")

	return nil
}

func main() {
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error().Err(err).Msg("Command failed")
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
