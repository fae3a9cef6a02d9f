// Package processor drives one browser session through the retrieval
// pipeline for each input record.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cantalupo555/statsheet-downloader/internal/batch"
	"github.com/cantalupo555/statsheet-downloader/internal/browser"
	"github.com/cantalupo555/statsheet-downloader/internal/catalog"
	"github.com/cantalupo555/statsheet-downloader/internal/download"
	"github.com/cantalupo555/statsheet-downloader/internal/navigation"
	"github.com/cantalupo555/statsheet-downloader/internal/selection"
)

// DefaultDelay separates consecutive records.
const DefaultDelay = 2 * time.Second

var (
	// ErrNavigation is returned when the record's page could not be opened.
	ErrNavigation = errors.New("page could not be opened")
	// ErrUnexpected wraps a panic raised while processing a record.
	ErrUnexpected = errors.New("unexpected failure")
)

// StageError is a record failure together with the stage that failed.
type StageError struct {
	// Stage is the state the pipeline was trying to reach.
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Outcome is the result of processing one record.
type Outcome struct {
	Record batch.Record
	// State is Finalized or Failed.
	State State
	// Reached is the last state completed before the outcome was decided.
	Reached   State
	Err       error
	Recovered bool
	Entry     catalog.Entry
	// Size is the byte size of the renamed file.
	Size int64
}

// OK reports whether the record produced a renamed file.
func (o Outcome) OK() bool { return o.State == Finalized }

// Config assembles the pipeline components. Component loggers default to
// Logger.
type Config struct {
	Popup     navigation.PopupConfig
	Tab       navigation.TabConfig
	Locator   selection.LocatorConfig
	Rules     selection.Rules
	Trigger   download.TriggerConfig
	Finalizer download.FinalizerConfig

	LoadTimeout time.Duration
	// Delay separates consecutive records in Run; zero means no pause.
	Delay  time.Duration
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = navigation.DefaultLoadTimeout
	}
	if c.Rules == (selection.Rules{}) {
		c.Rules = selection.DefaultRules()
	}
	if c.Popup.Logger == nil {
		c.Popup.Logger = c.Logger
	}
	if c.Tab.Logger == nil {
		c.Tab.Logger = c.Logger
	}
	if c.Locator.Logger == nil {
		c.Locator.Logger = c.Logger
	}
	if c.Trigger.Logger == nil {
		c.Trigger.Logger = c.Logger
	}
	if c.Finalizer.Logger == nil {
		c.Finalizer.Logger = c.Logger
	}
	if c.Trigger.TableID == "" {
		c.Trigger.TableID = c.Locator.TableID
	}
	if c.Trigger.LoadTimeout <= 0 {
		c.Trigger.LoadTimeout = c.LoadTimeout
	}
	if c.Tab.LoadTimeout <= 0 {
		c.Tab.LoadTimeout = c.LoadTimeout
	}
}

// Processor runs records against a single session, one at a time.
type Processor struct {
	s         browser.Session
	sink      catalog.Sink
	popup     *navigation.Popup
	tab       *navigation.Tab
	locator   *selection.Locator
	rules     selection.Rules
	trigger   *download.Trigger
	finalizer *download.Finalizer
	cfg       Config
	now       func() time.Time
}

// New wires the pipeline on s. Successful downloads are appended to sink.
func New(s browser.Session, sink catalog.Sink, cfg Config) *Processor {
	cfg.defaults()
	popup := navigation.NewPopup(s, cfg.Popup)
	tab := navigation.NewTab(s, popup, cfg.Tab)
	return &Processor{
		s:         s,
		sink:      sink,
		popup:     popup,
		tab:       tab,
		locator:   selection.NewLocator(s, cfg.Locator),
		rules:     cfg.Rules,
		trigger:   download.NewTrigger(s, popup, tab, cfg.Trigger),
		finalizer: download.NewFinalizer(cfg.Finalizer),
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run processes records in order and returns one Outcome per record
// attempted. A failed record never stops the batch; Run returns early only
// when ctx is done or the browser has gone away.
func (p *Processor) Run(ctx context.Context, records []batch.Record) []Outcome {
	log := p.cfg.Logger
	outcomes := make([]Outcome, 0, len(records))

	for i, rec := range records {
		if browser.IsContextCanceled(ctx) {
			log.Warn("run interrupted", "processed", i, "total", len(records), "error", ctx.Err())
			break
		}
		if i > 0 && p.cfg.Delay > 0 {
			if !sleep(ctx, p.cfg.Delay) {
				continue
			}
		}

		log.Info("processing record", "index", i+1, "total", len(records), "keyword", rec.Keyword, "link", rec.Link)
		out := p.safeProcess(ctx, rec)
		outcomes = append(outcomes, out)

		if out.OK() {
			continue
		}
		log.Error("record failed", "keyword", rec.Keyword, "reached", out.Reached, "error", out.Err)
		if browser.IsBrowserClosed(out.Err) {
			log.Error("browser session lost, stopping", "processed", i+1, "total", len(records))
			break
		}
	}

	log.Info("all downloads completed", "records", len(records), "attempted", len(outcomes))
	return outcomes
}

func (p *Processor) safeProcess(ctx context.Context, rec batch.Record) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{
				Record:  rec,
				State:   Failed,
				Reached: out.Reached,
				Err:     &StageError{Stage: out.Reached + 1, Err: fmt.Errorf("%w: %v", ErrUnexpected, r)},
			}
		}
	}()
	return p.Process(ctx, rec)
}

// Process runs one record through the pipeline and reports how far it got.
func (p *Processor) Process(ctx context.Context, rec batch.Record) Outcome {
	out := Outcome{Record: rec, Reached: Start}
	log := p.cfg.Logger.With("keyword", rec.Keyword)

	fail := func(stage State, err error) Outcome {
		out.State = Failed
		out.Err = &StageError{Stage: stage, Err: err}
		return out
	}

	if err := p.s.Navigate(ctx, rec.Link); err != nil {
		return fail(Navigated, fmt.Errorf("%w: %s: %w", ErrNavigation, rec.Link, err))
	}
	if err := p.s.WaitLoaded(ctx, p.cfg.LoadTimeout); err != nil {
		log.Warn("page load not confirmed", "error", err)
	}
	out.Reached = Navigated

	p.popup.Dismiss(ctx)
	out.Reached = PopupHandled

	if err := p.tab.Activate(ctx); err != nil {
		return fail(TabActive, err)
	}
	out.Reached = TabActive

	snap, err := p.locator.Snapshot(ctx)
	if err != nil {
		return fail(Snapshotted, err)
	}
	out.Reached = Snapshotted

	row, ok := p.rules.Match(snap, rec.Keyword)
	if !ok {
		log.Error("no matching row", "rows", len(snap))
		return fail(Matched, fmt.Errorf("%w: %q", selection.ErrRowNotFound, rec.Keyword))
	}
	log.Info("row matched", "row", row, "label", snap[row])
	out.Reached = Matched

	res, err := p.trigger.Resolve(ctx, row)
	if err != nil {
		return fail(ControlResolved, err)
	}
	out.Recovered = res.Recovered
	out.Reached = ControlResolved

	clickedAt := p.now()
	if err := p.trigger.Click(ctx, res.Control); err != nil {
		return fail(Clicked, err)
	}
	out.Reached = Clicked

	entry, err := p.finalizer.Finalize(ctx, clickedAt, rec, p.sink)
	if err != nil {
		return fail(Finalized, err)
	}
	out.Entry = entry
	if info, err := os.Stat(filepath.Join(p.cfg.Finalizer.Dir, entry.HashedName)); err == nil {
		out.Size = info.Size()
	}
	out.Reached = Finalized
	out.State = Finalized
	return out
}

// sleep pauses for d and reports whether ctx is still alive.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
