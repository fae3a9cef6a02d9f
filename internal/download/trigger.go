// Package download clicks the spreadsheet link of a table row and turns the
// file the browser saves into a named, catalogued artifact.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cantalupo555/statsheet-downloader/internal/browser"
	"github.com/cantalupo555/statsheet-downloader/internal/navigation"
	"github.com/cantalupo555/statsheet-downloader/internal/selection"
)

// DefaultRejectMarker identifies word-processor export links, which share
// rows with the spreadsheet links.
const DefaultRejectMarker = "word.svg"

var (
	// ErrControlNotFound is returned when no acceptable download control
	// exists for a row, even after one refresh cycle.
	ErrControlNotFound = errors.New("download control not found")
	// ErrClick is returned when the download control could not be clicked.
	ErrClick = errors.New("download control could not be clicked")
)

// Activator makes the statistics view active again after a reload.
type Activator interface {
	Activate(ctx context.Context) error
}

// Control is a clickable element that starts a download.
type Control struct {
	XPath    string
	Tag      string
	Href     string
	Strategy string
}

// Resolution is the outcome of Resolve. Recovered is set when the control
// was only found after the refresh cycle.
type Resolution struct {
	Control   Control
	Recovered bool
}

// TriggerConfig configures download-control resolution.
type TriggerConfig struct {
	TableID       string
	Strategies    []Strategy
	RejectMarkers []string
	LoadTimeout   time.Duration
	TableTimeout  time.Duration
	Logger        *slog.Logger
}

func (c *TriggerConfig) defaults() {
	if c.TableID == "" {
		c.TableID = selection.DefaultTableID
	}
	if len(c.Strategies) == 0 {
		c.Strategies = DefaultStrategies()
	}
	if c.RejectMarkers == nil {
		c.RejectMarkers = []string{DefaultRejectMarker}
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = navigation.DefaultLoadTimeout
	}
	if c.TableTimeout <= 0 {
		c.TableTimeout = selection.DefaultTableTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Trigger finds and clicks the download control of a table row.
type Trigger struct {
	s     browser.Session
	popup navigation.Dismisser
	tab   Activator
	cfg   TriggerConfig
}

// NewTrigger returns a Trigger acting on s. popup and tab drive the
// refresh cycle.
func NewTrigger(s browser.Session, popup navigation.Dismisser, tab Activator, cfg TriggerConfig) *Trigger {
	cfg.defaults()
	return &Trigger{s: s, popup: popup, tab: tab, cfg: cfg}
}

// Resolve returns the download control for the zero-based row. When no
// strategy yields an accepted control, the page is reloaded, the tab is
// reactivated and every strategy runs once more.
func (t *Trigger) Resolve(ctx context.Context, row int) (Resolution, error) {
	log := t.cfg.Logger.With("row", row)

	if c, ok := t.search(ctx, row); ok {
		log.Info("download control resolved", "strategy", c.Strategy)
		return Resolution{Control: c}, nil
	}

	log.Info("no download control on first pass, refreshing page")
	if err := navigation.Refresh(ctx, t.s, t.popup, t.cfg.LoadTimeout, log); err != nil {
		return Resolution{}, fmt.Errorf("%w: refresh: %w", ErrControlNotFound, err)
	}
	if err := t.tab.Activate(ctx); err != nil {
		return Resolution{}, fmt.Errorf("%w: %w", ErrControlNotFound, err)
	}
	if err := t.s.WaitPresent(ctx, selection.TableXPath(t.cfg.TableID), t.cfg.TableTimeout); err != nil {
		log.Warn("table not present after refresh", "error", err)
	}

	if c, ok := t.search(ctx, row); ok {
		log.Info("download control resolved after recovery", "strategy", c.Strategy)
		return Resolution{Control: c, Recovered: true}, nil
	}

	t.dumpRow(ctx, row)
	return Resolution{}, ErrControlNotFound
}

// Click dispatches a click on the control from script. The href is logged
// for diagnosis only: the download may depend on session state, so the
// click is what starts it.
func (t *Trigger) Click(ctx context.Context, c Control) error {
	t.cfg.Logger.Info("download link", "href", c.Href, "tag", c.Tag)
	if err := navigation.ScrollIntoView(ctx, t.s, c.XPath); err != nil {
		t.cfg.Logger.Debug("download control not scrolled into view", "error", err)
	}
	if err := t.s.Click(ctx, c.XPath); err != nil {
		return fmt.Errorf("%w: %w", ErrClick, err)
	}
	t.cfg.Logger.Info("download button clicked")
	return nil
}

// search evaluates the strategies in order; the first one yielding an
// accepted candidate wins.
func (t *Trigger) search(ctx context.Context, row int) (Control, bool) {
	log := t.cfg.Logger
	for _, st := range t.cfg.Strategies {
		xpath := st.XPath(t.cfg.TableID, row)
		els, err := t.s.Elements(ctx, xpath)
		if err != nil {
			log.Debug("strategy failed", "strategy", st.Name, "xpath", xpath, "error", err)
			continue
		}
		if len(els) == 0 {
			log.Debug("strategy matched nothing", "strategy", st.Name, "xpath", xpath)
			continue
		}
		log.Debug("strategy matched", "strategy", st.Name, "xpath", xpath, "count", len(els))

		for i, el := range els {
			if t.rejected(el) {
				log.Info("word-processor link skipped", "strategy", st.Name)
				continue
			}
			c, err := t.control(ctx, st.Name, browser.Nth(xpath, i), el)
			if err != nil {
				log.Debug("candidate unusable", "strategy", st.Name, "error", err)
				continue
			}
			return c, true
		}
	}
	return Control{}, false
}

func (t *Trigger) rejected(el browser.Element) bool {
	for _, marker := range t.cfg.RejectMarkers {
		if marker != "" && strings.Contains(el.OuterHTML, marker) {
			return true
		}
	}
	return false
}

// control turns a matched element into a clickable control; an image is
// replaced by its parent element.
func (t *Trigger) control(ctx context.Context, strategy, xpath string, el browser.Element) (Control, error) {
	if !strings.EqualFold(el.Tag, "img") {
		return Control{XPath: xpath, Tag: el.Tag, Href: el.Href, Strategy: strategy}, nil
	}
	parent := browser.Parent(xpath)
	els, err := t.s.Elements(ctx, parent)
	if err != nil {
		return Control{}, err
	}
	if len(els) == 0 {
		return Control{}, fmt.Errorf("image at %s has no parent element", xpath)
	}
	return Control{XPath: parent, Tag: els[0].Tag, Href: els[0].Href, Strategy: strategy}, nil
}

func (t *Trigger) dumpRow(ctx context.Context, row int) {
	els, err := t.s.Elements(ctx, rowXPath(t.cfg.TableID, row))
	if err != nil || len(els) == 0 {
		t.cfg.Logger.Error("table row not found", "row", row, "error", err)
		return
	}
	t.cfg.Logger.Info("table row content", "row", row, "html", els[0].OuterHTML)
}
