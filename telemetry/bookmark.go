package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkRemeshBurst     BookmarkType = "remesh_burst"
	BookmarkRingStretch     BookmarkType = "ring_stretch"
	BookmarkDarbouxFailures BookmarkType = "darboux_failures"
	BookmarkTracerWashout   BookmarkType = "tracer_washout"
	BookmarkSteadyTransport BookmarkType = "steady_transport"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Tick        int32        `csv:"tick"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in the simulation.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	recentTracerPeak   int // peak tracer count in recent history
	steadyWindowsCount int // consecutive windows with a steady ring radius
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for steady transport detection
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if bd.historyFull || bd.historyIdx > 0 {
		// Remesh burst: insertions > 2x rolling average
		if b := bd.checkRemeshBurst(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Ring stretch: longest edge > 3x rolling mean edge
		if b := bd.checkRingStretch(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Darboux failures after a clean history
		if b := bd.checkDarbouxFailures(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Tracer washout: dropped >30% from recent peak
		if b := bd.checkTracerWashout(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Steady transport: ring radius flat over 5+ windows
		if b := bd.checkSteadyTransport(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	// Update history
	bd.addToHistory(stats)

	if stats.Tracers > bd.recentTracerPeak {
		bd.recentTracerPeak = stats.Tracers
	}

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

func (bd *BookmarkDetector) checkRemeshBurst(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total int
	for _, h := range history {
		total += h.RemeshInserted
	}
	avg := float64(total) / float64(len(history))

	if stats.RemeshInserted >= 8 && float64(stats.RemeshInserted) > 2*avg {
		return &Bookmark{
			Type:        BookmarkRemeshBurst,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Remesh inserted %d particles, average %.1f", stats.RemeshInserted, avg),
		}
	}

	return nil
}

func (bd *BookmarkDetector) checkRingStretch(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.EdgeLenMean
	}
	avg := total / float64(len(history))

	if avg == 0 {
		return nil
	}

	if stats.EdgeLenMax > avg*3.0 {
		return &Bookmark{
			Type:        BookmarkRingStretch,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Longest edge %.3f is %.1fx mean edge (%.3f)", stats.EdgeLenMax, stats.EdgeLenMax/avg, avg),
		}
	}

	return nil
}

func (bd *BookmarkDetector) checkDarbouxFailures(stats WindowStats) *Bookmark {
	if stats.DarbouxSkipped == 0 {
		return nil
	}
	for _, h := range bd.getHistory() {
		if h.DarbouxSkipped > 0 {
			return nil
		}
	}
	return &Bookmark{
		Type:        BookmarkDarbouxFailures,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("Darboux update skipped %d rings, applied %d", stats.DarbouxSkipped, stats.DarbouxApplied),
	}
}

func (bd *BookmarkDetector) checkTracerWashout(stats WindowStats) *Bookmark {
	if bd.recentTracerPeak == 0 {
		return nil
	}

	dropPercent := 1.0 - float64(stats.Tracers)/float64(bd.recentTracerPeak)
	if dropPercent > 0.30 && stats.Tracers < bd.recentTracerPeak-10 {
		// Reset peak after washout
		oldPeak := bd.recentTracerPeak
		bd.recentTracerPeak = stats.Tracers

		return &Bookmark{
			Type:        BookmarkTracerWashout,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Tracers dropped %.0f%% from peak %d to %d", dropPercent*100, oldPeak, stats.Tracers),
		}
	}

	return nil
}

func (bd *BookmarkDetector) checkSteadyTransport(stats WindowStats) *Bookmark {
	if stats.Rings == 0 {
		bd.steadyWindowsCount = 0
		return nil
	}

	history := bd.getHistory()
	if len(history) < 4 {
		return nil
	}

	recent := history[len(history)-4:]
	var sum float64
	for _, h := range recent {
		sum += h.RingRadiusMean
	}
	mean := sum / 4

	var variance float64
	for _, h := range recent {
		d := h.RingRadiusMean - mean
		variance += d * d
	}
	variance /= 4

	if mean > 0 && variance/(mean*mean) < 0.0004 { // CV < 2%
		bd.steadyWindowsCount++
	} else {
		bd.steadyWindowsCount = 0
	}

	if bd.steadyWindowsCount == 5 { // trigger exactly once at 5 windows
		return &Bookmark{
			Type:        BookmarkSteadyTransport,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("%d rings held mean radius %.3f over 5+ windows", stats.Rings, mean),
		}
	}

	return nil
}
