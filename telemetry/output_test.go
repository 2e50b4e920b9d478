package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/filament/config"
)

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v; want nil, nil", om, err)
	}

	// nil manager is a no-op
	if err := om.WriteTelemetry(WindowStats{}); err != nil {
		t.Error(err)
	}
	if om.SnapshotPath(3) != "" || om.Dir() != "" {
		t.Error("nil manager should report no paths")
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
}

func TestOutputManagerWritesCSV(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	for tick := int32(10); tick <= 30; tick += 10 {
		if err := om.WriteTelemetry(WindowStats{WindowEndTick: tick, Particles: int(tick)}); err != nil {
			t.Fatal(err)
		}
		if err := om.WritePerf(PerfStats{}, tick); err != nil {
			t.Fatal(err)
		}
	}
	cfg, err := config.Defaults()
	if err != nil {
		t.Fatal(err)
	}
	if err := om.WriteConfig(cfg); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "window_end"); n != 1 {
		t.Errorf("header written %d times, want 1", n)
	}

	var rows []WindowStats
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[2].Particles != 30 {
		t.Errorf("unexpected rows: %+v", rows)
	}

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Error(err)
	}
	if got := om.SnapshotPath(42); got != filepath.Join(dir, "snapshots", "frame_000042.vfil") {
		t.Errorf("SnapshotPath = %q", got)
	}
}

func TestOutputManagerBookmarks(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	bms := []Bookmark{
		{Type: BookmarkRemeshBurst, Tick: 40, Description: "burst"},
		{Type: BookmarkTracerWashout, Tick: 80, Description: "washout"},
	}
	for _, b := range bms {
		if err := om.WriteBookmark(b); err != nil {
			t.Fatal(err)
		}
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	var rows []Bookmark
	data, err := os.ReadFile(filepath.Join(dir, "bookmarks.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1].Type != BookmarkTracerWashout || rows[1].Tick != 80 {
		t.Errorf("unexpected rows: %+v", rows)
	}

	want := filepath.Join(dir, "snapshots", "bookmark_000040_remesh_burst.vfil")
	if got := om.BookmarkSnapshotPath(bms[0]); got != want {
		t.Errorf("BookmarkSnapshotPath = %q, want %q", got, want)
	}
}

func TestOutputManagerSnapshotIndex(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	path := om.SnapshotPath(8)
	if err := os.WriteFile(path, make([]byte, 42), 0644); err != nil {
		t.Fatal(err)
	}
	if err := om.RecordSnapshot(path, SnapshotEntry{Tick: 8, Reason: "periodic", Particles: 64, Rings: 2}); err != nil {
		t.Fatal(err)
	}
	if err := om.RecordSnapshot(filepath.Join(dir, "missing.vfil"), SnapshotEntry{}); err == nil {
		t.Error("expected an error for a missing snapshot file")
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	var rows []SnapshotEntry
	data, err := os.ReadFile(filepath.Join(dir, "snapshots.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		t.Fatal(err)
	}
	want := SnapshotEntry{Tick: 8, File: filepath.Join("snapshots", "frame_000008.vfil"), Reason: "periodic", Particles: 64, Rings: 2, Bytes: 42}
	if len(rows) != 1 || rows[0] != want {
		t.Errorf("rows = %+v, want [%+v]", rows, want)
	}
}
