package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Run       RunConfig       `toml:"run"`
	Portal    PortalConfig    `toml:"portal"`
	Browser   BrowserConfig   `toml:"browser"`
	Storage   StorageConfig   `toml:"storage"`
	Artifacts ArtifactsConfig `toml:"artifacts"`
	Server    ServerConfig    `toml:"server"`
	Logging   LoggingConfig   `toml:"logging"`
}

// RunConfig holds the per-period parameters and retry budgets
type RunConfig struct {
	Period          string `toml:"period" validate:"required"`                 // Reporting period label used in artifact names, e.g. "06 2025"
	StartDate       string `toml:"start_date" validate:"required,len=8,numeric"` // Search filter start date (DDMMYYYY)
	EndDate         string `toml:"end_date" validate:"required,len=8,numeric"`   // Search filter end date (DDMMYYYY)
	EntityAttempts  int    `toml:"entity_attempts" validate:"min=1"`            // Attempts per entity before DownloadError
	SessionAttempts int    `toml:"session_attempts" validate:"min=1"`           // Browser session attempts for the whole batch
	SessionBackoff  string `toml:"session_backoff"`                             // Fixed wait between session attempts (default: "5s")
	RetryPause      string `toml:"retry_pause"`                                 // Wait between attempts of one entity (default: "3s")
}

// PortalConfig describes the remote portal and its interaction timeouts
type PortalConfig struct {
	LoginURL          string         `toml:"login_url" validate:"required,url"`
	ElementTimeout    string         `toml:"element_timeout"`     // Main element wait (default: "30s")
	ResultsTimeout    string         `toml:"results_timeout"`     // Search results wait, shorter than element_timeout (default: "15s")
	LoginCheckTimeout string         `toml:"login_check_timeout"` // Home link wait after login confirmation (default: "10s")
	StepInterval      string         `toml:"step_interval"`       // Minimum spacing between UI interactions (default: "1s")
	DownloadSettle    string         `toml:"download_settle"`     // Max wait for a download to finish before capture (default: "5s")
	Locators          PortalLocators `toml:"locators"`
}

// PortalLocators are the element locators of every workflow checkpoint
type PortalLocators struct {
	Home              interfaces.Locator `toml:"home"`
	DeclarationsMenu  interfaces.Locator `toml:"declarations_menu"`
	TransmitAction    interfaces.Locator `toml:"transmit_action"`
	AppFrame          interfaces.Locator `toml:"app_frame"`
	GrantorConsent    interfaces.Locator `toml:"grantor_consent"`
	StartDate         interfaces.Locator `toml:"start_date"`
	EndDate           interfaces.Locator `toml:"end_date"`
	GrantorDropdown   interfaces.Locator `toml:"grantor_dropdown"`
	GrantorSelectNone interfaces.Locator `toml:"grantor_select_none"`
	GrantorSearch     interfaces.Locator `toml:"grantor_search"`
	GrantorOption     interfaces.Locator `toml:"grantor_option"`
	SearchButton      interfaces.Locator `toml:"search_button"`
	FirstResult       interfaces.Locator `toml:"first_result"`
	IssueDocument     interfaces.Locator `toml:"issue_document"`
	Confirm           interfaces.Locator `toml:"confirm"`
}

// BrowserConfig controls the Chrome instance
type BrowserConfig struct {
	Headless     bool   `toml:"headless"` // Keep false: login is manual
	NoSandbox    bool   `toml:"no_sandbox"`
	UserDataDir  string `toml:"user_data_dir"` // Empty = temporary profile
	DownloadDir  string `toml:"download_dir"`  // Empty = "<base_dir>/Competencias executadas/<period>"
	BaseDir      string `toml:"base_dir"`
	WindowWidth  int    `toml:"window_width" validate:"min=0"`
	WindowHeight int    `toml:"window_height" validate:"min=0"`
	StartTimeout string `toml:"start_timeout"` // Browser startup probe timeout (default: "30s")
}

type StorageConfig struct {
	Workbook string       `toml:"workbook" validate:"required"` // Spreadsheet with ID/CODE/STATUS columns
	Sheet    string       `toml:"sheet"`                        // Empty = first sheet
	Badger   BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Run history directory
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete history on startup
}

type ArtifactsConfig struct {
	ValidatePDF bool `toml:"validate_pdf"` // Validate captured guides with pdfcpu
}

type ServerConfig struct {
	Port             int    `toml:"port" validate:"min=0,max=65535"`
	Host             string `toml:"host"`
	ProgressThrottle string `toml:"progress_throttle"` // Minimum spacing of progress messages per websocket broadcast (default: "250ms", "0" disables)
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// NewDefaultConfig creates a configuration with default values matching the e-CAC DCTFWeb portal
func NewDefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			Period:          "06 2025",
			StartDate:       "01062025",
			EndDate:         "30062025",
			EntityAttempts:  3,
			SessionAttempts: 3,
			SessionBackoff:  "5s",
			RetryPause:      "3s",
		},
		Portal: PortalConfig{
			LoginURL:          "https://cav.receita.fazenda.gov.br/autenticacao/login",
			ElementTimeout:    "30s",
			ResultsTimeout:    "15s",
			LoginCheckTimeout: "10s",
			StepInterval:      "1s",
			DownloadSettle:    "5s",
			Locators:          DefaultPortalLocators(),
		},
		Browser: BrowserConfig{
			Headless:     false,
			NoSandbox:    true,
			BaseDir:      ".",
			WindowWidth:  1920,
			WindowHeight: 1080,
			StartTimeout: "30s",
		},
		Storage: StorageConfig{
			Workbook: "database.xlsx",
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Artifacts: ArtifactsConfig{
			ValidatePDF: true,
		},
		Server: ServerConfig{
			Port:             8085,
			Host:             "localhost",
			ProgressThrottle: "250ms",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
	}
}

// DefaultPortalLocators returns the XPath locators of the e-CAC "Assinar e transmitir DCTF" flow
func DefaultPortalLocators() PortalLocators {
	const grantorPanel = `//*[@id="ctl00_cphConteudo_UpdatePanelListaOutorgantes"]/div/div[2]/div/div/div`
	return PortalLocators{
		Home:              interfaces.XPath(`//*[@id="linkHome"]`),
		DeclarationsMenu:  interfaces.XPath(`//li[@id="btn214"]`),
		TransmitAction:    interfaces.XPath(`//*[@id="containerServicos214"]/div[2]/ul/li[1]/a`),
		AppFrame:          interfaces.XPath(`//*[@id="frmApp"]`),
		GrantorConsent:    interfaces.XPath(`//*[@id="ctl00_cphConteudo_chkListarOutorgantes"]`),
		StartDate:         interfaces.XPath(`//*[@id="txtDataInicio"]`),
		EndDate:           interfaces.XPath(`//*[@id="txtDataFinal"]`),
		GrantorDropdown:   interfaces.XPath(grantorPanel + `/button`),
		GrantorSelectNone: interfaces.XPath(grantorPanel + `/div/div[2]/div/button[2]`),
		GrantorSearch:     interfaces.XPath(grantorPanel + `/div/div[1]/input`),
		GrantorOption:     interfaces.XPath(grantorPanel + `/div/ul`),
		SearchButton:      interfaces.XPath(`//*[@id="ctl00_cphConteudo_btnFiltar"]`),
		FirstResult:       interfaces.XPath(`//*[@id="ctl00_cphConteudo_tabelaListagemDctf_GridViewDctfs_ctl02_lbkVisualizarDctf"]`),
		IssueDocument:     interfaces.XPath(`//*[@id="LinkEmitirDARFIntegral"]`),
		Confirm:           interfaces.XPath(`//button[text()='OK']`),
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies DCTFWEB_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("DCTFWEB_PERIOD"); v != "" {
		config.Run.Period = v
	}
	if v := os.Getenv("DCTFWEB_START_DATE"); v != "" {
		config.Run.StartDate = v
	}
	if v := os.Getenv("DCTFWEB_END_DATE"); v != "" {
		config.Run.EndDate = v
	}
	if v := os.Getenv("DCTFWEB_ENTITY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Run.EntityAttempts = n
		}
	}
	if v := os.Getenv("DCTFWEB_SESSION_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Run.SessionAttempts = n
		}
	}
	if v := os.Getenv("DCTFWEB_ELEMENT_TIMEOUT"); v != "" {
		config.Portal.ElementTimeout = v
	}
	if v := os.Getenv("DCTFWEB_WORKBOOK"); v != "" {
		config.Storage.Workbook = v
	}
	if v := os.Getenv("DCTFWEB_BADGER_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("DCTFWEB_DOWNLOAD_DIR"); v != "" {
		config.Browser.DownloadDir = v
	}
	if v := os.Getenv("DCTFWEB_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Browser.Headless = b
		}
	}
	if v := os.Getenv("DCTFWEB_SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			config.Server.Port = p
		}
	}
	if v := os.Getenv("DCTFWEB_SERVER_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("DCTFWEB_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("DCTFWEB_LOG_OUTPUT"); v != "" {
		config.Logging.Output = splitString(v, ",")
	}
}

// FlagOverrides carries command-line values; zero values leave the config untouched
type FlagOverrides struct {
	Period   string
	Workbook string
	Headless *bool // nil when the flag was not given
	Port     int
	Host     string
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, flags FlagOverrides) {
	// Command-line flags have highest priority
	if flags.Period != "" {
		config.Run.Period = flags.Period
	}
	if flags.Workbook != "" {
		config.Storage.Workbook = flags.Workbook
	}
	if flags.Headless != nil {
		config.Browser.Headless = *flags.Headless
	}
	if flags.Port > 0 {
		config.Server.Port = flags.Port
	}
	if flags.Host != "" {
		config.Server.Host = flags.Host
	}
}

// Validate checks struct constraints and cross-field rules
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Portal.ResultsTimeoutDuration() >= c.Portal.ElementTimeoutDuration() {
		return fmt.Errorf("invalid configuration: results_timeout (%s) must be shorter than element_timeout (%s)",
			c.Portal.ResultsTimeoutDuration(), c.Portal.ElementTimeoutDuration())
	}
	return nil
}

// DownloadPath resolves the per-period download directory
func (c *Config) DownloadPath() string {
	if c.Browser.DownloadDir != "" {
		return c.Browser.DownloadDir
	}
	return filepath.Join(c.Browser.BaseDir, "Competencias executadas", c.Run.Period)
}

func (r RunConfig) SessionBackoffDuration() time.Duration {
	return parseDuration(r.SessionBackoff, 5*time.Second)
}

func (r RunConfig) RetryPauseDuration() time.Duration {
	return parseDuration(r.RetryPause, 3*time.Second)
}

func (p PortalConfig) ElementTimeoutDuration() time.Duration {
	return parseDuration(p.ElementTimeout, 30*time.Second)
}

func (p PortalConfig) ResultsTimeoutDuration() time.Duration {
	return parseDuration(p.ResultsTimeout, 15*time.Second)
}

func (p PortalConfig) LoginCheckTimeoutDuration() time.Duration {
	return parseDuration(p.LoginCheckTimeout, 10*time.Second)
}

func (p PortalConfig) StepIntervalDuration() time.Duration {
	return parseDuration(p.StepInterval, time.Second)
}

func (p PortalConfig) DownloadSettleDuration() time.Duration {
	return parseDuration(p.DownloadSettle, 5*time.Second)
}

func (s ServerConfig) ProgressThrottleDuration() time.Duration {
	return parseDuration(s.ProgressThrottle, 250*time.Millisecond)
}

func (b BrowserConfig) StartTimeoutDuration() time.Duration {
	return parseDuration(b.StartTimeout, 30*time.Second)
}

// parseDuration parses a duration string, falling back on empty or malformed input
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// splitString splits a comma separated list and drops blanks
func splitString(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
