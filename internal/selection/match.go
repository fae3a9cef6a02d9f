// Package selection reads the statistics table of a page and picks the row
// whose label matches a keyword.
package selection

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultSectionMarker must appear in every downloadable row label.
	DefaultSectionMarker = "Statistical Tables"
	// DefaultStaleMarker flags statistics that are no longer maintained.
	DefaultStaleMarker = "not maintained"
	// DefaultPlaceholder is the label of decorative spacer rows.
	DefaultPlaceholder = "-"
)

// ErrRowNotFound is returned when no row of the table qualifies for a
// keyword.
var ErrRowNotFound = errors.New("no qualifying row matches the keyword")

// Snapshot is the ordered list of first-column labels of the statistics
// table, captured from one render of the page. Index i is the i-th body
// row. A Snapshot is never modified; take a new one after a reload.
type Snapshot []string

// Rules decide which row labels are genuine statistical-table rows.
type Rules struct {
	SectionMarker string
	StaleMarker   string
	Placeholder   string
}

// DefaultRules returns the row rules used by the site.
func DefaultRules() Rules {
	return Rules{
		SectionMarker: DefaultSectionMarker,
		StaleMarker:   DefaultStaleMarker,
		Placeholder:   DefaultPlaceholder,
	}
}

// Qualifies reports whether label is a live statistical-table row for
// keyword.
func (r Rules) Qualifies(label, keyword string) bool {
	label = Normalize(label)
	if r.Placeholder != "" && label == r.Placeholder {
		return false
	}
	if r.StaleMarker != "" && strings.Contains(label, Normalize(r.StaleMarker)) {
		return false
	}
	return strings.Contains(label, Normalize(r.SectionMarker)) &&
		strings.Contains(label, Normalize(keyword))
}

// Match scans snap top-down and returns the index of the first qualifying
// row. There is no scoring: the first qualifying row wins.
func (r Rules) Match(snap Snapshot, keyword string) (int, bool) {
	for i, label := range snap {
		if r.Qualifies(label, keyword) {
			return i, true
		}
	}
	return -1, false
}

// Normalize collapses runs of whitespace and puts text in Unicode NFC, so
// that labels rendered with decomposed Turkish letters still compare equal
// to keywords typed in composed form.
func Normalize(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}
