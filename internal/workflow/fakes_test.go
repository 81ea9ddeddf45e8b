package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hugorneri/RPA-DCTFWEB/internal/capture"
	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
)

type fakeElement struct {
	locator interfaces.Locator
}

func (e fakeElement) Description() string { return e.locator.String() }

// fakeSession resolves every locator unless it is listed as missing or failing
type fakeSession struct {
	missing  map[string]bool
	failing  map[string]error
	clickErr map[string]error

	clicks []string
	typed  map[string]string
	frames int
	exits  int
	dir    string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		missing:  map[string]bool{},
		failing:  map[string]error{},
		clickErr: map[string]error{},
		typed:    map[string]string{},
		dir:      "/downloads",
	}
}

func (s *fakeSession) NavigateTo(ctx context.Context, url string) error { return nil }

func (s *fakeSession) WaitForElement(ctx context.Context, locator interfaces.Locator, timeout time.Duration) (interfaces.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := s.failing[locator.Value]; ok {
		return nil, err
	}
	if s.missing[locator.Value] {
		return nil, fmt.Errorf("%s: %w", locator, interfaces.ErrElementTimeout)
	}
	return fakeElement{locator: locator}, nil
}

func (s *fakeSession) Click(ctx context.Context, el interfaces.Element) error {
	value := el.(fakeElement).locator.Value
	if err, ok := s.clickErr[value]; ok {
		return err
	}
	s.clicks = append(s.clicks, value)
	return nil
}

func (s *fakeSession) TypeText(ctx context.Context, el interfaces.Element, text string) error {
	s.typed[el.(fakeElement).locator.Value] = text
	return nil
}

func (s *fakeSession) EnterNestedContext(ctx context.Context, frame interfaces.Element) error {
	s.frames++
	return nil
}

func (s *fakeSession) ExitToTopContext(ctx context.Context) error {
	s.exits++
	return nil
}

func (s *fakeSession) DownloadDirectory() string { return s.dir }

func (s *fakeSession) Close() error { return nil }

type fakeCapturer struct {
	captured bool
	names    []string

	// session, when set, lets the capturer record the clicks made before the snapshot
	session         *fakeSession
	snapshots       int
	clicksAtSnap    []string
	waitBaselines   []capture.Baseline
	captureBaseline []capture.Baseline
}

func (c *fakeCapturer) Snapshot(watchDir string) capture.Baseline {
	c.snapshots++
	if c.session != nil {
		c.clicksAtSnap = append([]string(nil), c.session.clicks...)
	}
	return capture.Baseline{}
}

func (c *fakeCapturer) WaitForDownload(ctx context.Context, watchDir string, baseline capture.Baseline) bool {
	c.waitBaselines = append(c.waitBaselines, baseline)
	return true
}

func (c *fakeCapturer) Capture(watchDir, canonicalName string, baseline capture.Baseline) (string, bool) {
	c.captureBaseline = append(c.captureBaseline, baseline)
	c.names = append(c.names, canonicalName)
	if !c.captured {
		return "", false
	}
	return filepath.Join(watchDir, canonicalName), true
}
