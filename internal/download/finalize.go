package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cantalupo555/statsheet-downloader/internal/batch"
	"github.com/cantalupo555/statsheet-downloader/internal/catalog"
	"github.com/cantalupo555/statsheet-downloader/internal/poll"
)

const (
	DefaultSettleTimeout = 30 * time.Second
	DefaultPollInterval  = 500 * time.Millisecond
)

var (
	// ErrNoFile is returned when no new file appeared in the download
	// directory after the click.
	ErrNoFile = errors.New("no downloaded file found")
	// ErrRename is returned when the downloaded file could not be renamed.
	ErrRename = errors.New("downloaded file could not be renamed")
)

// partialSuffixes mark downloads still being written by the browser.
var partialSuffixes = []string{".crdownload", ".part", ".partial", ".tmp", ".download"}

// Artifact is a completed file in the download directory.
type Artifact struct {
	Path    string
	Ext     string
	ModTime time.Time
}

// FinalizerConfig configures post-download handling.
type FinalizerConfig struct {
	Dir string
	// Timeout bounds the wait for the browser to finish writing the file.
	Timeout  time.Duration
	Interval time.Duration
	// Ignore lists file names in Dir that are never downloads.
	Ignore []string
	Now    func() time.Time
	Logger *slog.Logger
}

func (c *FinalizerConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultSettleTimeout
	}
	if c.Interval <= 0 {
		c.Interval = DefaultPollInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Finalizer attributes the newest file in the download directory to the
// record being processed, renames it and records the mapping.
//
// Attribution by recency is only correct while at most one download is in
// flight: records must be processed strictly one after another.
type Finalizer struct {
	cfg FinalizerConfig
}

// NewFinalizer returns a Finalizer for cfg.Dir.
func NewFinalizer(cfg FinalizerConfig) *Finalizer {
	cfg.defaults()
	return &Finalizer{cfg: cfg}
}

// Finalize waits for the download started at since, renames it to
// <Identifier><ext> and appends an Entry to sink.
func (f *Finalizer) Finalize(ctx context.Context, since time.Time, rec batch.Record, sink catalog.Sink) (catalog.Entry, error) {
	log := f.cfg.Logger
	since = since.Truncate(time.Second)

	err := poll.Until(ctx, f.cfg.Timeout, f.cfg.Interval, func(context.Context) (bool, error) {
		files, partial, err := f.scan()
		if err != nil {
			return false, err
		}
		latest, ok := Latest(files)
		return partial == 0 && ok && !latest.ModTime.Before(since), nil
	})
	if err != nil && !errors.Is(err, poll.ErrTimeout) {
		return catalog.Entry{}, fmt.Errorf("%w: %w", ErrNoFile, err)
	}
	if err != nil {
		log.Warn("download did not settle in time", "timeout", f.cfg.Timeout)
	}

	files, partial, err := f.scan()
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("%w: %w", ErrNoFile, err)
	}
	art, ok := Latest(files)
	if !ok {
		return catalog.Entry{}, fmt.Errorf("%w: download directory is empty", ErrNoFile)
	}
	if art.ModTime.Before(since) {
		return catalog.Entry{}, fmt.Errorf("%w: newest file %s predates the click (%d partial)",
			ErrNoFile, filepath.Base(art.Path), partial)
	}

	now := f.cfg.Now()
	name := Identifier(rec.Keyword, now) + art.Ext
	target := filepath.Join(f.cfg.Dir, name)

	if _, err := os.Lstat(target); err == nil {
		return catalog.Entry{}, fmt.Errorf("%w: %s already exists", ErrRename, name)
	}
	if err := os.Rename(art.Path, target); err != nil {
		return catalog.Entry{}, fmt.Errorf("%w: %w", ErrRename, err)
	}

	entry := catalog.Entry{
		OriginalName: rec.Keyword,
		HashedName:   name,
		DownloadedAt: now,
		Link:         rec.Link,
		Note:         rec.Note,
	}
	sink.Append(entry)
	log.Info("file downloaded and renamed", "from", filepath.Base(art.Path), "to", name)
	return entry, nil
}

// scan lists completed files in the download directory and counts the
// partial ones.
func (f *Finalizer) scan() ([]Artifact, int, error) {
	entries, err := os.ReadDir(f.cfg.Dir)
	if err != nil {
		return nil, 0, err
	}

	var files []Artifact
	partial := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || f.ignored(name) {
			continue
		}
		if isPartial(name) {
			partial++
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Renamed or removed between listing and stat.
			continue
		}
		files = append(files, Artifact{
			Path:    filepath.Join(f.cfg.Dir, name),
			Ext:     filepath.Ext(name),
			ModTime: info.ModTime(),
		})
	}
	return files, partial, nil
}

func (f *Finalizer) ignored(name string) bool {
	for _, ig := range f.cfg.Ignore {
		if name == ig {
			return true
		}
	}
	return false
}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// Latest returns the most recently written artifact.
func Latest(files []Artifact) (Artifact, bool) {
	if len(files) == 0 {
		return Artifact{}, false
	}
	latest := files[0]
	for _, a := range files[1:] {
		if a.ModTime.After(latest.ModTime) {
			latest = a
		}
	}
	return latest, true
}
