package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/cantalupo555/statsheet-downloader/internal/browser"
)

const (
	// DefaultTableID is the id of the statistics table on a page.
	DefaultTableID      = "istatistikselTable"
	DefaultTableTimeout = 20 * time.Second
)

// ErrTableNotFound is returned when the statistics table never appears.
var ErrTableNotFound = errors.New("statistics table not found")

// LocatorConfig configures the table locator.
type LocatorConfig struct {
	TableID string
	Timeout time.Duration
	Logger  *slog.Logger
}

func (c *LocatorConfig) defaults() {
	if c.TableID == "" {
		c.TableID = DefaultTableID
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTableTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Locator captures the statistics table of the current page.
type Locator struct {
	s   browser.Session
	cfg LocatorConfig
}

// NewLocator returns a Locator acting on s.
func NewLocator(s browser.Session, cfg LocatorConfig) *Locator {
	cfg.defaults()
	return &Locator{s: s, cfg: cfg}
}

// TableXPath selects the statistics table element.
func (l *Locator) TableXPath() string {
	return TableXPath(l.cfg.TableID)
}

// TableXPath selects the table with the given id.
func TableXPath(tableID string) string {
	return fmt.Sprintf("//*[@id='%s']", tableID)
}

// Snapshot waits for the table and returns its row labels.
func (l *Locator) Snapshot(ctx context.Context) (Snapshot, error) {
	log := l.cfg.Logger
	xpath := l.TableXPath()

	if err := l.s.WaitPresent(ctx, xpath, l.cfg.Timeout); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTableNotFound, err)
	}
	els, err := l.s.Elements(ctx, xpath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTableNotFound, err)
	}
	if len(els) == 0 {
		return nil, ErrTableNotFound
	}

	html := els[0].OuterHTML
	log.Info("table captured", "html_length", len(html))

	snap, err := ParseTable(html)
	if err != nil {
		return nil, err
	}
	log.Info("table parsed", "rows", len(snap))
	for i, label := range snap {
		log.Debug("table row", "index", i, "label", label)
	}
	return snap, nil
}

// ParseTable extracts the first-cell text of every body row of the first
// table in html. Header rows inside <thead> are not part of the snapshot,
// so index i always addresses tbody/tr[i+1].
func ParseTable(html string) (Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse table: %w", err)
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("parse table: %w", ErrTableNotFound)
	}

	snap := Snapshot{}
	table.ChildrenFiltered("tbody").ChildrenFiltered("tr").Each(func(_ int, tr *goquery.Selection) {
		cell := tr.ChildrenFiltered("td, th").First()
		snap = append(snap, Normalize(cell.Text()))
	})
	return snap, nil
}
