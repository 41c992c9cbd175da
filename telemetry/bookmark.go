package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkHuntBreakthrough    BookmarkType = "hunt_breakthrough"
	BookmarkEvasionBreakthrough BookmarkType = "evasion_breakthrough"
	BookmarkHuntCollapse        BookmarkType = "hunt_collapse"
	BookmarkBalanced            BookmarkType = "balanced"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `json:"type"`
	Episode     int          `json:"episode"`
	Description string       `json:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"episode", b.Episode,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments across episode windows.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	recentPeakRate  float64 // highest capture rate since the last collapse
	balancedWindows int     // consecutive windows with a near-even outcome split
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest window and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if bd.historyFull || bd.historyIdx > 0 {
		if b := bd.checkHuntBreakthrough(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkEvasionBreakthrough(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkHuntCollapse(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}
	if b := bd.checkBalanced(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(stats)
	if stats.CaptureRate > bd.recentPeakRate {
		bd.recentPeakRate = stats.CaptureRate
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

// checkHuntBreakthrough fires when the capture rate doubles its rolling average.
func (bd *BookmarkDetector) checkHuntBreakthrough(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.CaptureRate
	}
	avg := total / float64(len(history))
	if avg == 0 {
		return nil
	}

	if stats.CaptureRate > avg*2.0 && stats.CaptureRate >= 0.5 {
		return &Bookmark{
			Type:        BookmarkHuntBreakthrough,
			Episode:     stats.LastEpisode,
			Description: fmt.Sprintf("Capture rate %.2f is %.1fx average (%.2f)", stats.CaptureRate, stats.CaptureRate/avg, avg),
		}
	}
	return nil
}

// checkEvasionBreakthrough fires when mean prey survival jumps 1.5x its rolling average.
func (bd *BookmarkDetector) checkEvasionBreakthrough(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.SurvivalMean
	}
	avg := total / float64(len(history))
	if avg == 0 {
		return nil
	}

	if stats.SurvivalMean > avg*1.5 {
		return &Bookmark{
			Type:        BookmarkEvasionBreakthrough,
			Episode:     stats.LastEpisode,
			Description: fmt.Sprintf("Prey survival %.0f steps is %.1fx average (%.0f)", stats.SurvivalMean, stats.SurvivalMean/avg, avg),
		}
	}
	return nil
}

// checkHuntCollapse fires when the capture rate falls below half its recent peak.
func (bd *BookmarkDetector) checkHuntCollapse(stats WindowStats) *Bookmark {
	if bd.recentPeakRate < 0.5 {
		return nil
	}
	if stats.CaptureRate < bd.recentPeakRate*0.5 {
		oldPeak := bd.recentPeakRate
		bd.recentPeakRate = stats.CaptureRate
		return &Bookmark{
			Type:        BookmarkHuntCollapse,
			Episode:     stats.LastEpisode,
			Description: fmt.Sprintf("Capture rate collapsed from %.2f to %.2f", oldPeak, stats.CaptureRate),
		}
	}
	return nil
}

// checkBalanced fires once after five consecutive windows where neither
// faction wins clearly.
func (bd *BookmarkDetector) checkBalanced(stats WindowStats) *Bookmark {
	if stats.Episodes > 0 && stats.CaptureRate >= 0.4 && stats.CaptureRate <= 0.6 {
		bd.balancedWindows++
	} else {
		bd.balancedWindows = 0
	}

	if bd.balancedWindows == 5 {
		return &Bookmark{
			Type:        BookmarkBalanced,
			Episode:     stats.LastEpisode,
			Description: fmt.Sprintf("Balanced outcomes over 5 windows (capture rate %.2f)", stats.CaptureRate),
		}
	}
	return nil
}
