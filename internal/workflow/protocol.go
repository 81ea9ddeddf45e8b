// -----------------------------------------------------------------------
// Protocol - the e-CAC DCTFWeb interaction for one entity
// -----------------------------------------------------------------------

package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/hugorneri/RPA-DCTFWEB/internal/capture"
	"github.com/hugorneri/RPA-DCTFWEB/internal/common"
	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
)

// ArtifactCapturer claims the file produced by the portal download.
// Only files absent from the baseline taken before the download was requested are eligible.
type ArtifactCapturer interface {
	Snapshot(watchDir string) capture.Baseline
	WaitForDownload(ctx context.Context, watchDir string, baseline capture.Baseline) bool
	Capture(watchDir, canonicalName string, baseline capture.Baseline) (string, bool)
}

// ProtocolConfig holds the portal locators, search parameters and timeouts
type ProtocolConfig struct {
	Locators          common.PortalLocators
	Period            string
	StartDate         string
	EndDate           string
	ElementTimeout    time.Duration
	ResultsTimeout    time.Duration
	LoginCheckTimeout time.Duration
	StepInterval      time.Duration
}

// NewProtocolConfig extracts the protocol settings from the application config
func NewProtocolConfig(config *common.Config) ProtocolConfig {
	return ProtocolConfig{
		Locators:          config.Portal.Locators,
		Period:            config.Run.Period,
		StartDate:         config.Run.StartDate,
		EndDate:           config.Run.EndDate,
		ElementTimeout:    config.Portal.ElementTimeoutDuration(),
		ResultsTimeout:    config.Portal.ResultsTimeoutDuration(),
		LoginCheckTimeout: config.Portal.LoginCheckTimeoutDuration(),
		StepInterval:      config.Portal.StepIntervalDuration(),
	}
}

// Protocol walks Home → DeclarationsMenu → TransmitAction → GrantorConsent → SearchFilter
// → ResultsOrEmpty → IssueDocument → ArtifactCapture → Confirm for one entity
type Protocol struct {
	config   ProtocolConfig
	capturer ArtifactCapturer
	limiter  *rate.Limiter
	logger   arbor.ILogger
}

// NewProtocol creates a new protocol
func NewProtocol(config ProtocolConfig, capturer ArtifactCapturer, logger arbor.ILogger) *Protocol {
	limit := rate.Inf
	if config.StepInterval > 0 {
		limit = rate.Every(config.StepInterval)
	}
	return &Protocol{
		config:   config,
		capturer: capturer,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
	}
}

// Attempt runs the state machine once
func (p *Protocol) Attempt(ctx context.Context, s interfaces.Session, entity models.Entity) Outcome {
	loc := p.config.Locators

	if err := s.ExitToTopContext(ctx); err != nil {
		return Classify(ctx, CheckpointHome, err)
	}

	navigation := []struct {
		checkpoint Checkpoint
		locator    interfaces.Locator
	}{
		{CheckpointHome, loc.Home},
		{CheckpointDeclarationsMenu, loc.DeclarationsMenu},
		{CheckpointTransmitAction, loc.TransmitAction},
	}
	for _, step := range navigation {
		if err := p.click(ctx, s, step.locator, p.config.ElementTimeout); err != nil {
			return Classify(ctx, step.checkpoint, err)
		}
	}

	if err := p.enterFrame(ctx, s); err != nil {
		return Classify(ctx, CheckpointGrantorConsent, err)
	}
	if outcome, ok := p.grantorConsent(ctx, s); !ok {
		return outcome
	}

	if err := p.fillSearchFilter(ctx, s, entity); err != nil {
		return Classify(ctx, CheckpointSearchFilter, err)
	}

	first, err := p.find(ctx, s, loc.FirstResult, p.config.ResultsTimeout)
	if err != nil {
		if errors.Is(err, interfaces.ErrElementTimeout) && ctx.Err() == nil {
			return NotFound()
		}
		return Classify(ctx, CheckpointResultsOrEmpty, err)
	}
	if err := p.clickElement(ctx, s, first); err != nil {
		return Classify(ctx, CheckpointResultsOrEmpty, err)
	}

	dir := s.DownloadDirectory()
	issue, err := p.find(ctx, s, loc.IssueDocument, p.config.ElementTimeout)
	if err != nil {
		return Classify(ctx, CheckpointIssueDocument, err)
	}
	baseline := p.capturer.Snapshot(dir)
	if err := s.Click(ctx, issue); err != nil {
		return Classify(ctx, CheckpointIssueDocument, err)
	}

	if !p.capturer.WaitForDownload(ctx, dir, baseline) {
		p.logger.Debug().Str("dir", dir).Msg("Download still in progress after settle window")
	}
	if ctx.Err() != nil {
		return Classify(ctx, CheckpointArtifactCapture, ctx.Err())
	}
	path, captured := p.capturer.Capture(dir, entity.ArtifactName(p.config.Period), baseline)

	if err := p.click(ctx, s, loc.Confirm, p.config.ElementTimeout); err != nil {
		return Classify(ctx, CheckpointConfirm, err)
	}
	if err := s.ExitToTopContext(ctx); err != nil {
		return Classify(ctx, CheckpointDone, err)
	}

	p.logger.Debug().
		Str("entity_id", string(entity.ID)).
		Str("artifact", path).
		Bool("captured", captured).
		Msg("Guide issued")

	return Success(path, captured)
}

// VerifyLogin waits for the portal home link after the operator confirms login.
// Absence is reported but does not stop the run.
func (p *Protocol) VerifyLogin(ctx context.Context, s interfaces.Session) bool {
	if _, err := s.WaitForElement(ctx, p.config.Locators.Home, p.config.LoginCheckTimeout); err != nil {
		p.logger.Warn().Err(err).Msg("Portal home not visible after login confirmation, continuing")
		return false
	}
	p.logger.Info().Msg("Login verified")
	return true
}

// grantorConsent ticks the grantor listing checkbox when the portal offers it.
// The checkbox posts back and reloads the app frame, so the frame is re-entered.
func (p *Protocol) grantorConsent(ctx context.Context, s interfaces.Session) (Outcome, bool) {
	consent, err := p.find(ctx, s, p.config.Locators.GrantorConsent, p.config.ResultsTimeout)
	if err != nil {
		if errors.Is(err, interfaces.ErrElementTimeout) && ctx.Err() == nil {
			p.logger.Debug().Msg("Grantor consent not offered, skipping")
			return Outcome{}, true
		}
		return Classify(ctx, CheckpointGrantorConsent, err), false
	}
	if err := p.clickElement(ctx, s, consent); err != nil {
		return Classify(ctx, CheckpointGrantorConsent, err), false
	}
	if err := s.ExitToTopContext(ctx); err != nil {
		return Classify(ctx, CheckpointGrantorConsent, err), false
	}
	if err := p.enterFrame(ctx, s); err != nil {
		return Classify(ctx, CheckpointGrantorConsent, err), false
	}
	return Outcome{}, true
}

func (p *Protocol) fillSearchFilter(ctx context.Context, s interfaces.Session, entity models.Entity) error {
	loc := p.config.Locators
	timeout := p.config.ElementTimeout

	if err := p.typeInto(ctx, s, loc.StartDate, p.config.StartDate); err != nil {
		return err
	}
	if err := p.typeInto(ctx, s, loc.EndDate, p.config.EndDate); err != nil {
		return err
	}
	if err := p.click(ctx, s, loc.GrantorDropdown, timeout); err != nil {
		return err
	}
	if err := p.click(ctx, s, loc.GrantorSelectNone, timeout); err != nil {
		return err
	}
	if err := p.typeInto(ctx, s, loc.GrantorSearch, string(entity.ID)); err != nil {
		return err
	}
	if err := p.click(ctx, s, loc.GrantorOption, timeout); err != nil {
		return err
	}
	return p.click(ctx, s, loc.SearchButton, timeout)
}

func (p *Protocol) enterFrame(ctx context.Context, s interfaces.Session) error {
	frame, err := p.find(ctx, s, p.config.Locators.AppFrame, p.config.ElementTimeout)
	if err != nil {
		return err
	}
	return s.EnterNestedContext(ctx, frame)
}

func (p *Protocol) find(ctx context.Context, s interfaces.Session, locator interfaces.Locator, timeout time.Duration) (interfaces.Element, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.WaitForElement(ctx, locator, timeout)
}

func (p *Protocol) click(ctx context.Context, s interfaces.Session, locator interfaces.Locator, timeout time.Duration) error {
	el, err := p.find(ctx, s, locator, timeout)
	if err != nil {
		return err
	}
	return s.Click(ctx, el)
}

func (p *Protocol) clickElement(ctx context.Context, s interfaces.Session, el interfaces.Element) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.Click(ctx, el)
}

func (p *Protocol) typeInto(ctx context.Context, s interfaces.Session, locator interfaces.Locator, text string) error {
	el, err := p.find(ctx, s, locator, p.config.ElementTimeout)
	if err != nil {
		return err
	}
	return s.TypeText(ctx, el, text)
}
