package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cantalupo555/statsheet-downloader/internal/browser"
	"github.com/cantalupo555/statsheet-downloader/internal/poll"
)

const (
	// DefaultTabXPath is the "statistics" tab in the page navigation bar.
	DefaultTabXPath    = "/html/body/div[2]/div[2]/div[2]/div/nav/div/a[2]"
	DefaultTabTimeout  = 20 * time.Second
	DefaultTabAttempts = 3
	DefaultRetryDelay  = 2 * time.Second
	DefaultLoadTimeout = 30 * time.Second
)

// ErrTabActivation is returned when the statistics tab could not be
// activated within the configured attempts.
var ErrTabActivation = errors.New("statistics tab could not be activated")

// Dismisser closes overlays that may cover the page.
type Dismisser interface {
	Dismiss(ctx context.Context) bool
}

// TabConfig configures tab activation.
type TabConfig struct {
	TabXPath string
	Timeout  time.Duration
	Attempts int
	// RetryDelay separates attempts; zero means no pause.
	RetryDelay  time.Duration
	LoadTimeout time.Duration
	Logger      *slog.Logger
}

func (c *TabConfig) defaults() {
	if c.TabXPath == "" {
		c.TabXPath = DefaultTabXPath
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTabTimeout
	}
	if c.Attempts <= 0 {
		c.Attempts = DefaultTabAttempts
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = DefaultLoadTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Tab makes the statistics view of a page active.
type Tab struct {
	s     browser.Session
	popup Dismisser
	cfg   TabConfig
}

// NewTab returns a Tab acting on s, using popup between retries.
func NewTab(s browser.Session, popup Dismisser, cfg TabConfig) *Tab {
	cfg.defaults()
	return &Tab{s: s, popup: popup, cfg: cfg}
}

// Activate clicks the statistics tab. Every retry reloads the page and
// dismisses overlays first.
func (t *Tab) Activate(ctx context.Context) error {
	log := t.cfg.Logger
	err := poll.Retry(ctx, t.cfg.Attempts, t.cfg.RetryDelay, func(attempt int) error {
		if attempt > 0 {
			log.Warn("retrying statistics tab", "attempt", attempt+1, "of", t.cfg.Attempts)
			if err := Refresh(ctx, t.s, t.popup, t.cfg.LoadTimeout, log); err != nil {
				return err
			}
		}
		if err := t.s.WaitClickable(ctx, t.cfg.TabXPath, t.cfg.Timeout); err != nil {
			return fmt.Errorf("wait for tab: %w", err)
		}
		if err := t.s.Click(ctx, t.cfg.TabXPath); err != nil {
			return fmt.Errorf("click tab: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error("statistics tab not activated", "attempts", t.cfg.Attempts, "error", err)
		return fmt.Errorf("%w after %d attempts: %w", ErrTabActivation, t.cfg.Attempts, err)
	}
	log.Info("statistics tab clicked")
	return nil
}

// Refresh reloads the page, waits for it to load and dismisses overlays.
// A slow load is logged, not returned: the next wait on the page bounds it.
func Refresh(ctx context.Context, s browser.Session, popup Dismisser, loadTimeout time.Duration, log *slog.Logger) error {
	if err := s.Reload(ctx); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := s.WaitLoaded(ctx, loadTimeout); err != nil {
		log.Debug("page load not confirmed after reload", "error", err)
	}
	if popup != nil {
		popup.Dismiss(ctx)
	}
	return nil
}
