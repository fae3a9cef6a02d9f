package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cantalupo555/statsheet-downloader/internal/catalog"
	"github.com/cantalupo555/statsheet-downloader/internal/config"
)

func TestFlagsOverrideOnlyWhenSet(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--input", "batch.csv", "--headless", "--delay", "0s"}))

	var f flags
	f.input, _ = cmd.Flags().GetString("input")
	f.headless, _ = cmd.Flags().GetBool("headless")
	f.delay, _ = cmd.Flags().GetDuration("delay")

	cfg := config.Default()
	cfg.DownloadDir = "from-file"
	f.apply(cmd, &cfg)

	require.Equal(t, "batch.csv", cfg.Input)
	require.True(t, cfg.Browser.Headless)
	require.Equal(t, time.Duration(0), cfg.Timeouts.RecordDelay.Std())
	require.Equal(t, "from-file", cfg.DownloadDir)
}

func TestHistoryCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	entries := []catalog.Entry{{
		OriginalName: "Statistical Tables - Population",
		HashedName:   "0123456789ab.xlsx",
		DownloadedAt: time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC),
		Link:         "https://example.org/data/1",
	}}
	require.NoError(t, saveCatalog(context.Background(), path, "run-1", entries))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"history", path})
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "run-1")

	out.Reset()
	cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"history", path, "run-1"})
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "0123456789ab.xlsx")
}
