// Package report provides the end-of-run report.
package report

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/cantalupo555/statsheet-downloader/internal/download"
	"github.com/cantalupo555/statsheet-downloader/internal/navigation"
	"github.com/cantalupo555/statsheet-downloader/internal/processor"
	"github.com/cantalupo555/statsheet-downloader/internal/selection"
)

// maxListedFailures bounds the failure rows printed by Render.
const maxListedFailures = 10

// Failure describes one record that did not produce a file.
type Failure struct {
	Keyword string
	Link    string
	Kind    string
	Message string
}

// Stats holds all statistics collected during execution.
type Stats struct {
	StartTime time.Time
	EndTime   time.Time
	// Total is the number of records loaded.
	Total     int
	Succeeded int
	Failed    int
	Recovered int
	// Bytes is the total size of the renamed files.
	Bytes       int64
	SummaryPath string
	Failures    []Failure
	ByKind      map[string]int
}

// New creates a new Stats for total records with StartTime set to now.
func New(total int) *Stats {
	return &Stats{
		StartTime: time.Now(),
		Total:     total,
		ByKind:    map[string]int{},
	}
}

// Add records the outcome of one record.
func (s *Stats) Add(o processor.Outcome) {
	if o.Recovered {
		s.Recovered++
	}
	if o.OK() {
		s.Succeeded++
		s.Bytes += o.Size
		return
	}
	s.Failed++
	kind := Kind(o.Err)
	s.ByKind[kind]++
	msg := ""
	if o.Err != nil {
		msg = o.Err.Error()
	}
	s.Failures = append(s.Failures, Failure{
		Keyword: o.Record.Keyword,
		Link:    o.Record.Link,
		Kind:    kind,
		Message: msg,
	})
}

// Skipped returns the number of records never attempted.
func (s *Stats) Skipped() int {
	return s.Total - s.Succeeded - s.Failed
}

// Finish marks the end time of the execution.
func (s *Stats) Finish() {
	s.EndTime = time.Now()
}

// Duration returns the total execution duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

var kinds = []struct {
	err  error
	name string
}{
	{processor.ErrNavigation, "navigation"},
	{navigation.ErrTabActivation, "tab"},
	{selection.ErrTableNotFound, "table"},
	{selection.ErrRowNotFound, "row-not-found"},
	{download.ErrControlNotFound, "control-not-found"},
	{download.ErrClick, "click"},
	{download.ErrNoFile, "no-file"},
	{download.ErrRename, "rename"},
	{processor.ErrUnexpected, "unexpected"},
}

// Kind names the failure class of err.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "other"
}

// Render writes the report as tables to w.
func (s *Stats) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("FINAL REPORT")
	t.Style().Title.Align = text.AlignCenter
	t.AppendRows([]table.Row{
		{"Duration", formatDuration(s.Duration())},
		{"Records", s.Total},
		{"Downloaded", s.Succeeded},
		{"Failed", s.Failed},
	})
	if skipped := s.Skipped(); skipped > 0 {
		t.AppendRow(table.Row{"Not attempted", skipped})
	}
	if s.Recovered > 0 {
		t.AppendRow(table.Row{"Recovered after refresh", s.Recovered})
	}
	if s.Bytes > 0 {
		t.AppendRow(table.Row{"Total size", formatBytes(s.Bytes)})
	}
	if s.SummaryPath != "" {
		t.AppendRow(table.Row{"Summary", s.SummaryPath})
	}
	if len(s.ByKind) > 0 {
		t.AppendSeparator()
		names := make([]string, 0, len(s.ByKind))
		for k := range s.ByKind {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			t.AppendRow(table.Row{"Failed: " + k, s.ByKind[k]})
		}
	}
	t.Render()

	if len(s.Failures) == 0 {
		return
	}

	f := table.NewWriter()
	f.SetOutputMirror(w)
	f.SetStyle(table.StyleRounded)
	f.AppendHeader(table.Row{"Keyword", "Kind", "Error"})
	f.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: 80},
	})
	for i, fl := range s.Failures {
		if i >= maxListedFailures {
			f.AppendRow(table.Row{fmt.Sprintf("... and %d more", len(s.Failures)-maxListedFailures), "", ""})
			break
		}
		f.AppendRow(table.Row{fl.Keyword, fl.Kind, fl.Message})
	}
	f.Render()
}

// Summary returns a brief one-line summary of the stats.
func (s *Stats) Summary() string {
	return fmt.Sprintf(
		"%d records, %d downloaded, %d failed, %d recovered, %s in %s",
		s.Total,
		s.Succeeded,
		s.Failed,
		s.Recovered,
		formatBytes(s.Bytes),
		formatDuration(s.Duration()),
	)
}

// formatBytes formats bytes into human-readable format.
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
