// Package config reads the downloader configuration from a JSON5 file with
// an optional <name>.local.<ext> override, merged over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"

	"github.com/cantalupo555/statsheet-downloader/internal/browser"
	"github.com/cantalupo555/statsheet-downloader/internal/catalog"
	"github.com/cantalupo555/statsheet-downloader/internal/download"
	"github.com/cantalupo555/statsheet-downloader/internal/navigation"
	"github.com/cantalupo555/statsheet-downloader/internal/processor"
	"github.com/cantalupo555/statsheet-downloader/internal/selection"
)

// DefaultFile is read when no config path is given.
const DefaultFile = "statsheet.json5"

// Duration is a time.Duration written as a Go duration string ("20s").
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"'`)
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: duration %s: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Browser struct {
	ExecPath     string `json:"execPath"`
	ProfilePath  string `json:"profilePath"`
	Headless     bool   `json:"headless"`
	WindowWidth  int    `json:"windowWidth"`
	WindowHeight int    `json:"windowHeight"`
}

// Page holds the locators of the statistics site.
type Page struct {
	TableID        string   `json:"tableId"`
	TabXPath       string   `json:"tabXPath"`
	PopupXPath     string   `json:"popupXPath"`
	OverlayClasses []string `json:"overlayClasses"`
	RejectMarkers  []string `json:"rejectMarkers"`
	TabAttempts    int      `json:"tabAttempts"`
}

// Markers are the row-label conventions used to pick a table row.
type Markers struct {
	Section     string `json:"section"`
	Stale       string `json:"stale"`
	Placeholder string `json:"placeholder"`
}

type Timeouts struct {
	Load        Duration `json:"load"`
	Popup       Duration `json:"popup"`
	Tab         Duration `json:"tab"`
	TabRetry    Duration `json:"tabRetry"`
	Table       Duration `json:"table"`
	Settle      Duration `json:"settle"`
	SettlePoll  Duration `json:"settlePoll"`
	RecordDelay Duration `json:"recordDelay"`
	Session     Duration `json:"session"`
}

// Config is the complete run configuration.
type Config struct {
	Input       string `json:"input"`
	Sheet       string `json:"sheet"`
	DownloadDir string `json:"downloadDir"`
	// Summary is the mapping file name inside DownloadDir, or an absolute
	// path. A .csv extension selects CSV output.
	Summary string `json:"summary"`
	// Catalog is an optional sqlite database recording every run.
	Catalog string `json:"catalog"`
	LogDir  string `json:"logDir"`
	Verbose bool   `json:"verbose"`

	Browser  Browser  `json:"browser"`
	Page     Page     `json:"page"`
	Markers  Markers  `json:"markers"`
	Timeouts Timeouts `json:"timeouts"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	b := browser.DefaultConfig()
	return Config{
		Input:       "input.xlsx",
		DownloadDir: "downloads",
		Summary:     catalog.DefaultSummaryName,
		Browser: Browser{
			ProfilePath:  browser.DefaultProfilePath(),
			WindowWidth:  b.WindowWidth,
			WindowHeight: b.WindowHeight,
		},
		Page: Page{
			TableID:        selection.DefaultTableID,
			TabXPath:       navigation.DefaultTabXPath,
			PopupXPath:     navigation.DefaultPopupXPath,
			OverlayClasses: navigation.DefaultOverlayClasses,
			RejectMarkers:  []string{download.DefaultRejectMarker},
			TabAttempts:    navigation.DefaultTabAttempts,
		},
		Markers: Markers{
			Section:     selection.DefaultSectionMarker,
			Stale:       selection.DefaultStaleMarker,
			Placeholder: selection.DefaultPlaceholder,
		},
		Timeouts: Timeouts{
			Load:        Duration(navigation.DefaultLoadTimeout),
			Popup:       Duration(navigation.DefaultPopupWait),
			Tab:         Duration(navigation.DefaultTabTimeout),
			TabRetry:    Duration(navigation.DefaultRetryDelay),
			Table:       Duration(selection.DefaultTableTimeout),
			Settle:      Duration(download.DefaultSettleTimeout),
			SettlePoll:  Duration(download.DefaultPollInterval),
			RecordDelay: Duration(processor.DefaultDelay),
			Session:     Duration(b.Timeout),
		},
	}
}

// Load merges, in increasing priority, Default(), path and
// <name>.local.<ext> next to path. Missing files are skipped.
func Load(path string) (Config, error) {
	cfg := Default()
	for _, p := range []string{path, localPath(path)} {
		file, err := readFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, err
		}
		if err := mergo.Merge(&cfg, file, mergo.WithOverride); err != nil {
			return Config{}, fmt.Errorf("config: merge %s: %w", p, err)
		}
		slog.Debug("config file applied", "path", p)
	}
	return cfg, nil
}

func readFile(path string) (Config, error) {
	var out Config
	data, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return out, nil
	}
	if err := json5.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return out, nil
}

// localPath returns <dir>/<name>.local.<ext> for <dir>/<name>.<ext>.
func localPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

// ExpandPaths resolves a leading ~/ in every path setting.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.Input, &c.DownloadDir, &c.Summary, &c.Catalog, &c.LogDir, &c.Browser.ExecPath, &c.Browser.ProfilePath} {
		if !strings.HasPrefix(*p, "~/") {
			continue
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("config: expand %s: %w", *p, err)
		}
		*p = filepath.Join(home, (*p)[2:])
	}
	return nil
}

// SummaryPath returns where the mapping summary is written.
func (c Config) SummaryPath() string {
	if filepath.IsAbs(c.Summary) {
		return c.Summary
	}
	return filepath.Join(c.DownloadDir, c.Summary)
}

// BrowserConfig returns the session settings.
func (c Config) BrowserConfig(log *slog.Logger) browser.Config {
	return browser.Config{
		ExecPath:     c.Browser.ExecPath,
		ProfilePath:  c.Browser.ProfilePath,
		DownloadDir:  c.DownloadDir,
		Headless:     c.Browser.Headless,
		WindowWidth:  c.Browser.WindowWidth,
		WindowHeight: c.Browser.WindowHeight,
		Timeout:      c.Timeouts.Session.Std(),
		Logger:       log,
	}
}

// ProcessorConfig returns the pipeline settings.
func (c Config) ProcessorConfig(log *slog.Logger) processor.Config {
	t := c.Timeouts
	return processor.Config{
		Popup: navigation.PopupConfig{
			DismissXPath:   c.Page.PopupXPath,
			Wait:           t.Popup.Std(),
			OverlayClasses: c.Page.OverlayClasses,
		},
		Tab: navigation.TabConfig{
			TabXPath:    c.Page.TabXPath,
			Timeout:     t.Tab.Std(),
			Attempts:    c.Page.TabAttempts,
			RetryDelay:  t.TabRetry.Std(),
			LoadTimeout: t.Load.Std(),
		},
		Locator: selection.LocatorConfig{
			TableID: c.Page.TableID,
			Timeout: t.Table.Std(),
		},
		Rules: selection.Rules{
			SectionMarker: c.Markers.Section,
			StaleMarker:   c.Markers.Stale,
			Placeholder:   c.Markers.Placeholder,
		},
		Trigger: download.TriggerConfig{
			TableID:       c.Page.TableID,
			RejectMarkers: c.Page.RejectMarkers,
			LoadTimeout:   t.Load.Std(),
			TableTimeout:  t.Table.Std(),
		},
		Finalizer: download.FinalizerConfig{
			Dir:      c.DownloadDir,
			Timeout:  t.Settle.Std(),
			Interval: t.SettlePoll.Std(),
			Ignore:   []string{filepath.Base(c.Summary)},
		},
		LoadTimeout: t.Load.Std(),
		Delay:       t.RecordDelay.Std(),
		Logger:      log,
	}
}
