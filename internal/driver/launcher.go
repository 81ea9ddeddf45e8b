// -----------------------------------------------------------------------
// ChromeDP Launcher - acquires exclusive browser sessions for the portal
// -----------------------------------------------------------------------

package driver

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
)

// LauncherConfig holds configuration for browser sessions
type LauncherConfig struct {
	LoginURL       string        `json:"login_url"`
	DownloadDir    string        `json:"download_dir"`
	Headless       bool          `json:"headless"`
	NoSandbox      bool          `json:"no_sandbox"`
	UserDataDir    string        `json:"user_data_dir"`
	WindowWidth    int           `json:"window_width"`
	WindowHeight   int           `json:"window_height"`
	StartupTimeout time.Duration `json:"startup_timeout"`
}

// Launcher starts one Chrome instance per Acquire call
type Launcher struct {
	config LauncherConfig
	logger arbor.ILogger
}

var _ interfaces.Driver = (*Launcher)(nil)

// NewLauncher creates a new ChromeDP launcher
func NewLauncher(config LauncherConfig, logger arbor.ILogger) *Launcher {
	if config.StartupTimeout <= 0 {
		config.StartupTimeout = 30 * time.Second
	}
	return &Launcher{
		config: config,
		logger: logger,
	}
}

// allocatorOptions builds the Chrome flags for a visible, download-enabled session
func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.config.Headless),
		chromedp.Flag("no-sandbox", l.config.NoSandbox),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("start-maximized", true),
	)

	if l.config.WindowWidth > 0 && l.config.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(l.config.WindowWidth, l.config.WindowHeight))
	}

	if l.config.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(l.config.UserDataDir))
		l.logger.Debug().Str("path", l.config.UserDataDir).Msg("Using user data directory")
	}

	return opts
}

// Acquire launches Chrome, verifies it is responsive, routes downloads to the download
// directory and opens the login page. The caller owns the session and must Close it.
func (l *Launcher) Acquire(ctx context.Context) (interfaces.Session, error) {
	startTime := time.Now()

	if err := os.MkdirAll(l.config.DownloadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx,
		chromedp.WithLogf(func(s string, i ...interface{}) {
			l.logger.Debug().Msgf("chromedp: "+s, i...)
		}),
	)

	release := func() {
		browserCancel()
		allocatorCancel()
	}

	// Startup probe: the first Run launches the browser
	testCtx, testCancel := context.WithTimeout(browserCtx, l.config.StartupTimeout)
	defer testCancel()

	var title string
	if err := chromedp.Run(testCtx,
		chromedp.Navigate("about:blank"),
		chromedp.Title(&title),
	); err != nil {
		release()
		return nil, fmt.Errorf("browser instance failed startup test: %w", err)
	}

	if err := chromedp.Run(browserCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(l.config.DownloadDir).
			WithEventsEnabled(true),
	); err != nil {
		release()
		return nil, fmt.Errorf("failed to set download directory: %w", err)
	}

	session := newSession(browserCtx, release, l.config.DownloadDir, l.logger)

	if l.config.LoginURL != "" {
		if err := session.NavigateTo(ctx, l.config.LoginURL); err != nil {
			session.Close()
			return nil, fmt.Errorf("failed to open login page: %w", err)
		}
	}

	l.logger.Info().
		Str("download_dir", l.config.DownloadDir).
		Bool("headless", l.config.Headless).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser session acquired")

	return session, nil
}
