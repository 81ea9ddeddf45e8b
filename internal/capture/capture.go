// -----------------------------------------------------------------------
// Artifact Capture - claims the newest download and renames it canonically
// -----------------------------------------------------------------------

package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/djherbis/times"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
)

// canonicalMarker identifies files already claimed by a previous capture
const canonicalMarker = " DARFWEB "

// partialSuffixes mark downloads the browser is still writing
var partialSuffixes = []string{".crdownload", ".tmp", ".part", ".partial"}

// Config controls capture behaviour
type Config struct {
	// Settle is the maximum wait for in-progress downloads before claiming
	Settle time.Duration
	// PollInterval is how often the directory is rescanned while settling
	PollInterval time.Duration
	// ValidatePDF runs pdfcpu validation on the captured file
	ValidatePDF bool
}

// Capturer renames freshly downloaded artifacts
type Capturer struct {
	config Config
	logger arbor.ILogger
}

// NewCapturer creates a new capturer
func NewCapturer(config Config, logger arbor.ILogger) *Capturer {
	if config.PollInterval <= 0 {
		config.PollInterval = 250 * time.Millisecond
	}
	return &Capturer{
		config: config,
		logger: logger,
	}
}

// IsCanonicalName reports whether name already follows "<code> DARFWEB <period>.pdf"
func IsCanonicalName(name string) bool {
	return strings.Contains(name, canonicalMarker) && strings.EqualFold(filepath.Ext(name), ".pdf")
}

func isPartial(name string) bool {
	return partialStem(name) != ""
}

// Baseline is the set of files present in the download directory before a download was requested.
// Files in the baseline are never claimed.
type Baseline struct {
	names map[string]bool
}

// Contains reports whether name was already present when the baseline was taken
func (b Baseline) Contains(name string) bool {
	return b.names[name]
}

// Len returns the number of files in the baseline
func (b Baseline) Len() int {
	return len(b.names)
}

// Snapshot records the files currently in watchDir. A partial download in the directory also
// excludes its final name, so a late download of an earlier entity cannot be claimed.
func (c *Capturer) Snapshot(watchDir string) Baseline {
	b := Baseline{names: make(map[string]bool)}
	entries, err := os.ReadDir(watchDir)
	if err != nil {
		c.logger.Debug().Err(err).Str("dir", watchDir).Msg("Download directory not readable, empty baseline")
		return b
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		b.names[name] = true
		if stem := partialStem(name); stem != "" {
			b.names[stem] = true
		}
	}
	return b
}

// partialStem returns the final name of a partial download, or "" when name is not partial
func partialStem(name string) string {
	lower := strings.ToLower(name)
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return name[:len(name)-len(suffix)]
		}
	}
	return ""
}

// candidate is an eligible file with its creation time
type candidate struct {
	path    string
	created time.Time
}

// scan lists eligible files outside the baseline in enumeration order and counts in-progress downloads
func scan(watchDir string, baseline Baseline) ([]candidate, int, error) {
	entries, err := os.ReadDir(watchDir)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read watch directory %s: %w", watchDir, err)
	}

	var candidates []candidate
	partial := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if baseline.Contains(name) {
			continue
		}
		if isPartial(name) {
			partial++
			continue
		}
		if IsCanonicalName(name) {
			continue
		}
		path := filepath.Join(watchDir, name)
		ts, err := times.Stat(path)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: path, created: createdAt(ts)})
	}
	return candidates, partial, nil
}

// createdAt prefers the birth time, then the inode change time, then the modification time
func createdAt(ts times.Timespec) time.Time {
	if ts.HasBirthTime() {
		return ts.BirthTime()
	}
	if ts.HasChangeTime() {
		return ts.ChangeTime()
	}
	return ts.ModTime()
}

// WaitForDownload blocks until no partial downloads remain and at least one file outside the
// baseline exists, or until the settle time elapses. It returns true when the directory settled.
func (c *Capturer) WaitForDownload(ctx context.Context, watchDir string, baseline Baseline) bool {
	deadline := time.Now().Add(c.config.Settle)
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		candidates, partial, err := scan(watchDir, baseline)
		if err == nil && partial == 0 && len(candidates) > 0 {
			return true
		}
		if !time.Now().Before(deadline) {
			c.logger.Debug().
				Str("dir", watchDir).
				Int("partial", partial).
				Int("candidates", len(candidates)).
				Msg("Download did not settle before deadline")
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// Capture claims the newest non-canonical file of watchDir that is not in the baseline and renames it to canonicalName.
// A pre-existing file with the target name is deleted first. Returns the final path and
// false when nothing eligible was found or the rename failed.
// Ties in creation time resolve to directory enumeration order and must not be relied upon.
func (c *Capturer) Capture(watchDir, canonicalName string, baseline Baseline) (string, bool) {
	candidates, _, err := scan(watchDir, baseline)
	if err != nil {
		c.logger.Warn().Err(err).Str("dir", watchDir).Msg("Artifact capture failed to scan directory")
		return "", false
	}
	if len(candidates) == 0 {
		c.logger.Warn().
			Str("dir", watchDir).
			Str("target", canonicalName).
			Int("preexisting", baseline.Len()).
			Msg("No new downloaded file found to capture")
		return "", false
	}

	newest := candidates[0]
	for _, cand := range candidates[1:] {
		if cand.created.After(newest.created) {
			newest = cand
		}
	}

	target := filepath.Join(watchDir, canonicalName)
	if _, err := os.Stat(target); err == nil {
		if err := os.Remove(target); err != nil {
			c.logger.Warn().Err(err).Str("target", target).Msg("Failed to remove existing artifact")
			return "", false
		}
		c.logger.Debug().Str("target", target).Msg("Replaced existing artifact")
	}

	if err := os.Rename(newest.path, target); err != nil {
		c.logger.Warn().Err(err).Str("source", newest.path).Str("target", target).Msg("Failed to rename artifact")
		return "", false
	}

	c.logger.Info().
		Str("source", filepath.Base(newest.path)).
		Str("target", canonicalName).
		Msg("Artifact captured")

	if c.config.ValidatePDF {
		if err := ValidatePDF(target); err != nil {
			c.logger.Warn().Err(err).Str("artifact", target).Msg("Captured artifact is not a valid PDF")
		}
	}

	return target, true
}

// ValidatePDF checks the file structure with pdfcpu
func ValidatePDF(path string) error {
	conf := model.NewDefaultConfiguration()
	if err := api.ValidateFile(path, conf); err != nil {
		return fmt.Errorf("pdf validation failed for %s: %w", filepath.Base(path), err)
	}
	return nil
}
