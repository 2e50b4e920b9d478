package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/filament/config"
)

// csvLog is an append-only CSV file. The header goes out with the first
// batch of rows.
type csvLog struct {
	name   string
	file   *os.File
	headed bool
}

func openLog(dir, name string) (*csvLog, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	return &csvLog{name: name, file: f}, nil
}

// append marshals rows, a slice of csv-tagged structs.
func (l *csvLog) append(rows any) error {
	var err error
	if l.headed {
		err = gocsv.MarshalWithoutHeaders(rows, l.file)
	} else {
		err = gocsv.Marshal(rows, l.file)
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", l.name, err)
	}
	l.headed = true
	return nil
}

// SnapshotEntry is one snapshots.csv line.
type SnapshotEntry struct {
	Tick      int32  `csv:"tick"`
	File      string `csv:"file"`
	Reason    string `csv:"reason"` // "periodic" or a bookmark type
	Particles int    `csv:"particles"`
	Rings     int    `csv:"rings"`
	Bytes     int64  `csv:"bytes"`
}

// OutputManager writes a run's CSV logs, config copy and snapshot files
// below one directory:
//
//	telemetry.csv  window statistics
//	perf.csv       step timings
//	bookmarks.csv  detected events
//	snapshots.csv  index of files under snapshots/
type OutputManager struct {
	dir       string
	telemetry *csvLog
	perf      *csvLog
	bookmarks *csvLog
	snapshots *csvLog
}

// NewOutputManager creates dir and its log files. It returns nil when dir is
// empty, and a nil manager ignores every write.
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Join(dir, "snapshots"), 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	for _, l := range []struct {
		dst  **csvLog
		name string
	}{
		{&om.telemetry, "telemetry.csv"},
		{&om.perf, "perf.csv"},
		{&om.bookmarks, "bookmarks.csv"},
		{&om.snapshots, "snapshots.csv"},
	} {
		log, err := openLog(dir, l.name)
		if err != nil {
			om.Close()
			return nil, err
		}
		*l.dst = log
	}
	return om, nil
}

// WriteConfig saves the resolved configuration as config.yaml.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteTelemetry appends a window to telemetry.csv.
func (om *OutputManager) WriteTelemetry(stats WindowStats) error {
	if om == nil {
		return nil
	}
	return om.telemetry.append([]WindowStats{stats})
}

// WritePerf appends the perf window ending at windowEnd to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int32) error {
	if om == nil {
		return nil
	}
	return om.perf.append([]PerfRow{stats.Row(windowEnd)})
}

// WriteBookmark appends b to bookmarks.csv.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	if om == nil {
		return nil
	}
	return om.bookmarks.append([]Bookmark{b})
}

// RecordSnapshot appends e to snapshots.csv, filling in the file size and
// storing the path relative to the output directory.
func (om *OutputManager) RecordSnapshot(path string, e SnapshotEntry) error {
	if om == nil {
		return nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("recording snapshot: %w", err)
	}
	e.Bytes = fi.Size()
	if rel, err := filepath.Rel(om.dir, path); err == nil {
		e.File = rel
	} else {
		e.File = path
	}
	return om.snapshots.append([]SnapshotEntry{e})
}

// BookmarkSnapshotPath returns the snapshot path for b, or "" when output
// is disabled.
func (om *OutputManager) BookmarkSnapshotPath(b Bookmark) string {
	if om == nil {
		return ""
	}
	return filepath.Join(om.dir, "snapshots", fmt.Sprintf("bookmark_%06d_%s.vfil", b.Tick, b.Type))
}

// SnapshotPath returns the periodic snapshot path for tick, or "" when
// output is disabled.
func (om *OutputManager) SnapshotPath(tick int32) string {
	if om == nil {
		return ""
	}
	return filepath.Join(om.dir, "snapshots", fmt.Sprintf("frame_%06d.vfil", tick))
}

// Dir returns the output directory.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close closes every log file.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var errs []error
	for _, l := range []*csvLog{om.telemetry, om.perf, om.bookmarks, om.snapshots} {
		if l != nil {
			errs = append(errs, l.file.Close())
		}
	}
	return errors.Join(errs...)
}
