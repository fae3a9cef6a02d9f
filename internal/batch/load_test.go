package batch

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.csv")
	content := "\ufeffLink,Keyword,Note\n" +
		"https://example.org/a,Statistical Tables - Population,first\n" +
		"https://example.org/b,,missing keyword\n" +
		",,\n" +
		"https://example.org/c,Foreign Trade,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := Load(path, Options{Logger: quiet})
	require.NoError(t, err)

	want := []Record{
		{Link: "https://example.org/a", Keyword: "Statistical Tables - Population", Note: "first", Row: 2},
		{Link: "https://example.org/c", Keyword: "Foreign Trade", Row: 5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Kelime", "URL", "Not"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Nüfus", "https://example.org/n", "tr"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"Dış Ticaret", "https://example.org/d"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	got, err := Load(path, Options{Logger: quiet})
	require.NoError(t, err)

	want := []Record{
		{Link: "https://example.org/n", Keyword: "Nüfus", Note: "tr", Row: 2},
		{Link: "https://example.org/d", Keyword: "Dış Ticaret", Row: 3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.xlsx"), Options{Logger: quiet})
		require.ErrorIs(t, err, ErrInputNotFound)
	})

	t.Run("missing keyword column", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "input.csv")
		require.NoError(t, os.WriteFile(path, []byte("link,note\nhttps://example.org,x\n"), 0o644))

		_, err := Load(path, Options{Logger: quiet})
		require.ErrorIs(t, err, ErrMissingColumn)
	})
}
