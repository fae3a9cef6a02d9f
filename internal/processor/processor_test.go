package processor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cantalupo555/statsheet-downloader/internal/batch"
	"github.com/cantalupo555/statsheet-downloader/internal/browser"
	"github.com/cantalupo555/statsheet-downloader/internal/browser/browsertest"
	"github.com/cantalupo555/statsheet-downloader/internal/catalog"
	"github.com/cantalupo555/statsheet-downloader/internal/download"
	"github.com/cantalupo555/statsheet-downloader/internal/navigation"
	"github.com/cantalupo555/statsheet-downloader/internal/selection"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const page = `<table id="istatistikselTable"><tbody>
<tr><td>-</td><td></td><td></td></tr>
<tr><td>Statistical Tables - Population (not maintained)</td><td></td><td></td></tr>
<tr><td>Bulletins - Population</td><td></td><td></td></tr>
<tr><td>Statistical Tables - Population</td><td></td><td></td></tr>
</tbody></table>`

const matchedRow = 3

var record = batch.Record{
	Link:    "https://example.org/population",
	Keyword: "Statistical Tables - Population",
	Note:    "yearly",
	Row:     2,
}

// anchorXPath is where the download anchor of a row is found by the
// second strategy.
func anchorXPath(row int) string {
	return download.DefaultStrategies()[1].XPath(selection.DefaultTableID, row)
}

// newPage returns a session showing the statistics page, with the
// download anchor of matchedRow present unless withControl is false.
func newPage(withControl bool) *browsertest.Fake {
	f := browsertest.New()
	f.SetClickable(navigation.DefaultTabXPath, true)
	f.SetNodes(selection.TableXPath(selection.DefaultTableID), browser.Element{Tag: "table", OuterHTML: page})
	if withControl {
		f.SetNodes(anchorXPath(matchedRow), browser.Element{Tag: "a", OuterHTML: `<a href="/dl">`, Href: "/dl"})
	}
	return f
}

// downloadsTo makes every click on the download anchor write a file.
func downloadsTo(dir string) func(*browsertest.Fake, string) error {
	return func(_ *browsertest.Fake, xpath string) error {
		if xpath == navigation.DefaultTabXPath {
			return nil
		}
		return os.WriteFile(filepath.Join(dir, "istatistik.xls"), []byte("sheet"), 0o644)
	}
}

func newProcessor(f *browsertest.Fake, dir string, sink catalog.Sink, log *slog.Logger) *Processor {
	return New(f, sink, Config{
		Finalizer: download.FinalizerConfig{
			Dir:      dir,
			Timeout:  200 * time.Millisecond,
			Interval: 10 * time.Millisecond,
		},
		Logger: log,
	})
}

func TestProcessSuccess(t *testing.T) {
	dir := t.TempDir()
	f := newPage(true)
	f.OnClick = downloadsTo(dir)
	var ledger catalog.Ledger

	out := newProcessor(f, dir, &ledger, quiet).Process(context.Background(), record)
	require.NoError(t, out.Err)
	require.Equal(t, Finalized, out.State)
	require.Equal(t, Finalized, out.Reached)
	require.False(t, out.Recovered)
	require.Equal(t, int64(len("sheet")), out.Size)

	require.Equal(t, record.Link, f.URL)
	require.Equal(t, []string{navigation.DefaultTabXPath, browser.Nth(anchorXPath(matchedRow), 0)}, f.Clicks)

	entries := ledger.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, record.Keyword, entries[0].OriginalName)
	require.Equal(t, record.Note, entries[0].Note)
	require.Regexp(t, `^[0-9a-f]{12}\.xls$`, entries[0].HashedName)
	require.FileExists(t, filepath.Join(dir, entries[0].HashedName))
}

func TestProcessRowNotFound(t *testing.T) {
	dir := t.TempDir()
	f := newPage(true)
	var ledger catalog.Ledger

	rec := record
	rec.Keyword = "Foreign Trade"
	out := newProcessor(f, dir, &ledger, quiet).Process(context.Background(), rec)

	require.Equal(t, Failed, out.State)
	require.Equal(t, Snapshotted, out.Reached)
	require.ErrorIs(t, out.Err, selection.ErrRowNotFound)

	var stage *StageError
	require.ErrorAs(t, out.Err, &stage)
	require.Equal(t, Matched, stage.Stage)
	require.Equal(t, []string{navigation.DefaultTabXPath}, f.Clicks)
	require.Zero(t, ledger.Len())
}

func TestProcessRecoversAfterRefresh(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))

	dir := t.TempDir()
	f := newPage(false)
	f.OnReload = func(f *browsertest.Fake) {
		f.SetNodes(anchorXPath(matchedRow), browser.Element{Tag: "a", OuterHTML: `<a href="/dl">`, Href: "/dl"})
	}
	f.OnClick = downloadsTo(dir)
	var ledger catalog.Ledger

	out := newProcessor(f, dir, &ledger, log).Process(context.Background(), record)
	require.NoError(t, out.Err)
	require.True(t, out.OK())
	require.True(t, out.Recovered)
	require.Equal(t, 1, f.Reloads)
	require.Equal(t, 1, ledger.Len())
	require.Contains(t, logs.String(), "download control resolved after recovery")
}

func TestProcessNoFile(t *testing.T) {
	dir := t.TempDir()
	f := newPage(true)
	var ledger catalog.Ledger

	out := newProcessor(f, dir, &ledger, quiet).Process(context.Background(), record)
	require.Equal(t, Failed, out.State)
	require.Equal(t, Clicked, out.Reached)
	require.ErrorIs(t, out.Err, download.ErrNoFile)
	require.Zero(t, ledger.Len())

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestProcessNavigationFailure(t *testing.T) {
	f := newPage(true)
	f.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	var ledger catalog.Ledger

	out := newProcessor(f, t.TempDir(), &ledger, quiet).Process(context.Background(), record)
	require.Equal(t, Failed, out.State)
	require.Equal(t, Start, out.Reached)
	require.ErrorIs(t, out.Err, ErrNavigation)
}

func TestProcessTabFailure(t *testing.T) {
	f := newPage(true)
	f.SetClickable(navigation.DefaultTabXPath, false)
	var ledger catalog.Ledger

	out := newProcessor(f, t.TempDir(), &ledger, quiet).Process(context.Background(), record)
	require.Equal(t, PopupHandled, out.Reached)
	require.ErrorIs(t, out.Err, navigation.ErrTabActivation)
	require.Equal(t, navigation.DefaultTabAttempts-1, f.Reloads)
}

func TestRunContinuesAfterFailures(t *testing.T) {
	dir := t.TempDir()
	f := newPage(true)
	f.OnClick = func(f *browsertest.Fake, xpath string) error {
		if xpath == navigation.DefaultTabXPath {
			return nil
		}
		if f.URL == "https://example.org/panic" {
			panic("boom")
		}
		// Keep files apart in time so each rename gets its own source.
		time.Sleep(10 * time.Millisecond)
		return os.WriteFile(filepath.Join(dir, filepath.Base(f.URL)+".xlsx"), []byte("x"), 0o644)
	}
	var ledger catalog.Ledger

	missing := record
	missing.Keyword = "Foreign Trade"
	panicking := record
	panicking.Link = "https://example.org/panic"
	second := record
	second.Link = "https://example.org/second"
	second.Keyword = "Population"

	outcomes := newProcessor(f, dir, &ledger, quiet).Run(context.Background(), []batch.Record{record, missing, panicking, second})
	require.Len(t, outcomes, 4)
	require.True(t, outcomes[0].OK())
	require.ErrorIs(t, outcomes[1].Err, selection.ErrRowNotFound)
	require.ErrorIs(t, outcomes[2].Err, ErrUnexpected)
	require.True(t, outcomes[3].OK())
	require.Equal(t, 2, ledger.Len())
}

func TestRunStopsWhenBrowserCloses(t *testing.T) {
	f := newPage(true)
	f.NavigateErr = errors.New("websocket: close 1006 (abnormal closure)")
	var ledger catalog.Ledger

	outcomes := newProcessor(f, t.TempDir(), &ledger, quiet).Run(context.Background(), []batch.Record{record, record, record})
	require.Len(t, outcomes, 1)
	require.ErrorIs(t, outcomes[0].Err, ErrNavigation)
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ledger catalog.Ledger
	outcomes := newProcessor(newPage(true), t.TempDir(), &ledger, quiet).Run(ctx, []batch.Record{record})
	require.Empty(t, outcomes)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "start", Start.String())
	require.Equal(t, "control-resolved", ControlResolved.String())
	require.Equal(t, "failed", Failed.String())
	require.Equal(t, "unknown", State(42).String())
	require.True(t, Finalized.Terminal())
	require.False(t, Clicked.Terminal())
}
