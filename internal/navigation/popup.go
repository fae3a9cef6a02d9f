package navigation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cantalupo555/statsheet-downloader/internal/browser"
)

const (
	// DefaultPopupXPath is the dismiss button of the site's announcement modal.
	DefaultPopupXPath = "/html/body/div[4]/div/div/div[2]/div/p/button[1]"
	// DefaultPopupWait bounds the wait for the dismiss button.
	DefaultPopupWait = 3 * time.Second
)

// DefaultOverlayClasses are removed from the DOM when the dismiss button
// cannot be clicked.
var DefaultOverlayClasses = []string{"modal", "modal-backdrop"}

// PopupConfig configures the overlay handler.
type PopupConfig struct {
	DismissXPath   string
	Wait           time.Duration
	OverlayClasses []string
	Logger         *slog.Logger
}

func (c *PopupConfig) defaults() {
	if c.DismissXPath == "" {
		c.DismissXPath = DefaultPopupXPath
	}
	if c.Wait <= 0 {
		c.Wait = DefaultPopupWait
	}
	if len(c.OverlayClasses) == 0 {
		c.OverlayClasses = DefaultOverlayClasses
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Popup dismisses blocking overlays on a best-effort basis.
type Popup struct {
	s   browser.Session
	cfg PopupConfig
}

// NewPopup returns a Popup acting on s.
func NewPopup(s browser.Session, cfg PopupConfig) *Popup {
	cfg.defaults()
	return &Popup{s: s, cfg: cfg}
}

// Dismiss closes the overlay if one shows up. A page without an overlay is
// a success. It returns false only when both the click and the forced
// removal fail; callers treat the result as advisory.
func (p *Popup) Dismiss(ctx context.Context) bool {
	clickErr := p.clickDismiss(ctx)
	if clickErr == nil {
		return true
	}

	if err := p.forceRemove(ctx); err != nil {
		p.cfg.Logger.Warn("popup could not be closed", "click_error", clickErr, "remove_error", err)
		return false
	}
	p.cfg.Logger.Info("popup removed by script", "click_error", clickErr)
	return true
}

func (p *Popup) clickDismiss(ctx context.Context) error {
	if err := p.s.WaitClickable(ctx, p.cfg.DismissXPath, p.cfg.Wait); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil
		}
		return err
	}
	if err := p.s.Click(ctx, p.cfg.DismissXPath); err != nil {
		return err
	}
	p.cfg.Logger.Info("popup dismissed")
	return nil
}

func (p *Popup) forceRemove(ctx context.Context) error {
	classes, err := json.Marshal(p.cfg.OverlayClasses)
	if err != nil {
		return err
	}
	script := fmt.Sprintf(`
		(function(classes) {
			for (const cls of classes) {
				for (const el of Array.from(document.getElementsByClassName(cls))) {
					el.remove();
				}
			}
			return true;
		})(%s)
	`, classes)
	return p.s.Evaluate(ctx, script, nil)
}
