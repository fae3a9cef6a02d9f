package download

import (
	"bytes"
	"context"
	"encoding/hex"
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
	"github.com/cantalupo555/statsheet-downloader/internal/selection"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubDismisser struct{ calls int }

func (d *stubDismisser) Dismiss(context.Context) bool {
	d.calls++
	return true
}

type stubActivator struct {
	calls int
	err   error
}

func (a *stubActivator) Activate(context.Context) error {
	a.calls++
	return a.err
}

func strategyXPath(t *testing.T, name string, row int) string {
	t.Helper()
	for _, st := range DefaultStrategies() {
		if st.Name == name {
			return st.XPath(selection.DefaultTableID, row)
		}
	}
	t.Fatalf("no strategy %q", name)
	return ""
}

func newTrigger(f *browsertest.Fake, log *slog.Logger) (*Trigger, *stubActivator) {
	tab := &stubActivator{}
	return NewTrigger(f, &stubDismisser{}, tab, TriggerConfig{Logger: log}), tab
}

func TestDefaultStrategiesUseOneBasedRows(t *testing.T) {
	require.Equal(t,
		"//*[@id='istatistikselTable']/tbody/tr[4]/td[3]/a/img",
		strategyXPath(t, "cell-image", 3))
	require.Equal(t,
		"//*[@id='istatistikselTable']/tbody/tr[1]",
		rowXPath(selection.DefaultTableID, 0))

	var names []string
	for _, st := range DefaultStrategies() {
		names = append(names, st.Name)
	}
	require.Equal(t, []string{"cell-image", "cell-anchor", "row-spreadsheet-icon", "row-any-image"}, names)
}

func TestResolveImageUsesParent(t *testing.T) {
	f := browsertest.New()
	img := strategyXPath(t, "cell-image", 3)
	parent := browser.Parent(browser.Nth(img, 0))
	f.SetNodes(img, browser.Element{Tag: "img", OuterHTML: `<img src="/img/excel.svg">`})
	f.SetNodes(parent, browser.Element{Tag: "a", OuterHTML: `<a href="/dl/3">`, Href: "/dl/3"})

	trig, tab := newTrigger(f, quiet)
	res, err := trig.Resolve(context.Background(), 3)
	require.NoError(t, err)
	require.False(t, res.Recovered)
	require.Equal(t, Control{XPath: parent, Tag: "a", Href: "/dl/3", Strategy: "cell-image"}, res.Control)
	require.Zero(t, f.Reloads)
	require.Zero(t, tab.calls)
}

func TestResolveSkipsWordLinks(t *testing.T) {
	f := browsertest.New()
	f.SetNodes(strategyXPath(t, "cell-image", 0), browser.Element{Tag: "img", OuterHTML: `<img src="/img/word.svg">`})
	icon := strategyXPath(t, "row-spreadsheet-icon", 0)
	f.SetNodes(icon, browser.Element{Tag: "a", OuterHTML: `<a href="/x"><img src="/img/excel.svg"></a>`, Href: "/x"})

	trig, _ := newTrigger(f, quiet)
	res, err := trig.Resolve(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, "row-spreadsheet-icon", res.Control.Strategy)
	require.Equal(t, browser.Nth(icon, 0), res.Control.XPath)
}

func TestResolveAfterRefresh(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))

	f := browsertest.New()
	anchor := strategyXPath(t, "cell-anchor", 1)
	f.OnReload = func(f *browsertest.Fake) {
		f.SetNodes(anchor, browser.Element{Tag: "a", OuterHTML: `<a href="/dl">`, Href: "/dl"})
	}

	trig, tab := newTrigger(f, log)
	res, err := trig.Resolve(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, res.Recovered)
	require.Equal(t, "cell-anchor", res.Control.Strategy)
	require.Equal(t, 1, f.Reloads)
	require.Equal(t, 1, tab.calls)
	require.Contains(t, logs.String(), "download control resolved after recovery")
}

func TestResolveNotFound(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))

	f := browsertest.New()
	f.SetNodes(rowXPath(selection.DefaultTableID, 2), browser.Element{Tag: "tr", OuterHTML: "<tr><td>Statistical Tables</td></tr>"})

	trig, _ := newTrigger(f, log)
	_, err := trig.Resolve(context.Background(), 2)
	require.ErrorIs(t, err, ErrControlNotFound)
	require.Equal(t, 1, f.Reloads)
	require.Contains(t, logs.String(), "table row content")
}

func TestResolveTabFailureAfterRefresh(t *testing.T) {
	f := browsertest.New()
	tab := &stubActivator{err: errors.New("tab gone")}
	trig := NewTrigger(f, &stubDismisser{}, tab, TriggerConfig{Logger: quiet})

	_, err := trig.Resolve(context.Background(), 0)
	require.ErrorIs(t, err, ErrControlNotFound)
	require.ErrorContains(t, err, "tab gone")
}

func TestClick(t *testing.T) {
	f := browsertest.New()
	trig, _ := newTrigger(f, quiet)

	require.NoError(t, trig.Click(context.Background(), Control{XPath: "//a"}))
	require.Equal(t, []string{"//a"}, f.Clicks)

	f.ClickErr["//b"] = errors.New("detached")
	err := trig.Click(context.Background(), Control{XPath: "//b"})
	require.ErrorIs(t, err, ErrClick)
}

func TestIdentifier(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

	id := Identifier("Nüfus", at)
	require.Len(t, id, IdentifierLength)
	_, err := hex.DecodeString(id)
	require.NoError(t, err)

	require.Equal(t, id, Identifier("Nüfus", at.Add(400*time.Millisecond)), "same second")
	require.NotEqual(t, id, Identifier("Nüfus", at.Add(time.Second)))
	require.NotEqual(t, id, Identifier("Nufus", at))
}

func newFinalizer(dir string, now time.Time) *Finalizer {
	return NewFinalizer(FinalizerConfig{
		Dir:      dir,
		Timeout:  100 * time.Millisecond,
		Interval: 10 * time.Millisecond,
		Ignore:   []string{catalog.DefaultSummaryName},
		Now:      func() time.Time { return now },
		Logger:   quiet,
	})
}

func TestFinalize(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	since := time.Now().Add(-time.Second)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tablo.xlsx"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, catalog.DefaultSummaryName), nil, 0o644))

	rec := batch.Record{Link: "https://example.org/a", Keyword: "Nüfus", Note: "n"}
	var ledger catalog.Ledger

	entry, err := newFinalizer(dir, now).Finalize(context.Background(), since, rec, &ledger)
	require.NoError(t, err)

	want := Identifier("Nüfus", now) + ".xlsx"
	require.Equal(t, catalog.Entry{
		OriginalName: "Nüfus",
		HashedName:   want,
		DownloadedAt: now,
		Link:         rec.Link,
		Note:         "n",
	}, entry)
	require.FileExists(t, filepath.Join(dir, want))
	require.NoFileExists(t, filepath.Join(dir, "tablo.xlsx"))
	require.Equal(t, []catalog.Entry{entry}, ledger.Entries())
}

func TestFinalizeNoFile(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string)
	}{
		{"empty directory", func(*testing.T, string) {}},
		{"only partial download", func(t *testing.T, dir string) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "tablo.xlsx.crdownload"), nil, 0o644))
		}},
		{"file older than click", func(t *testing.T, dir string) {
			path := filepath.Join(dir, "old.xlsx")
			require.NoError(t, os.WriteFile(path, nil, 0o644))
			old := time.Now().Add(-time.Hour)
			require.NoError(t, os.Chtimes(path, old, old))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, dir)

			var ledger catalog.Ledger
			_, err := newFinalizer(dir, time.Now()).Finalize(context.Background(), time.Now(), batch.Record{Keyword: "k"}, &ledger)
			require.ErrorIs(t, err, ErrNoFile)
			require.Zero(t, ledger.Len())
		})
	}
}

func TestFinalizeRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	existing := filepath.Join(dir, Identifier("k", now)+".xlsx")
	require.NoError(t, os.WriteFile(existing, []byte("first"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(existing, old, old))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.xlsx"), []byte("second"), 0o644))

	var ledger catalog.Ledger
	_, err := newFinalizer(dir, now).Finalize(context.Background(), time.Now().Add(-time.Second), batch.Record{Keyword: "k"}, &ledger)
	require.ErrorIs(t, err, ErrRename)
	require.FileExists(t, filepath.Join(dir, "new.xlsx"))
	require.Zero(t, ledger.Len())
}

func TestLatest(t *testing.T) {
	_, ok := Latest(nil)
	require.False(t, ok)

	base := time.Now()
	got, ok := Latest([]Artifact{
		{Path: "a", ModTime: base},
		{Path: "b", ModTime: base.Add(time.Second)},
		{Path: "c", ModTime: base.Add(-time.Second)},
	})
	require.True(t, ok)
	require.Equal(t, "b", got.Path)
}
