// Package catalog records where every renamed download came from and
// persists that record at the end of a batch.
package catalog

import (
	"sync"
	"time"
)

// TimeLayout is the timestamp format used in summaries.
const TimeLayout = "2006-01-02 15:04:05"

// Entry links an original keyword to the file name it was saved under.
type Entry struct {
	OriginalName string
	HashedName   string
	DownloadedAt time.Time
	Link         string
	Note         string
}

// Sink receives one Entry per successfully renamed file.
type Sink interface {
	Append(e Entry)
}

// Ledger is an append-only, in-memory Sink.
type Ledger struct {
	mu      sync.Mutex
	entries []Entry
}

// Append adds e to the ledger.
func (l *Ledger) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the recorded entries in append order.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Len returns the number of recorded entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
