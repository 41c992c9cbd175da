package telemetry

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pthm-cable/pursuit/episode"
)

// SurvivalLog appends one line per finished episode holding the number of
// steps the prey survived. The file is never truncated.
type SurvivalLog struct {
	f      *os.File
	logger *slog.Logger
	err    error
}

// OpenSurvivalLog opens path for appending, creating it if needed.
// Returns nil if path is empty (log disabled).
func OpenSurvivalLog(path string, logger *slog.Logger) (*SurvivalLog, error) {
	if path == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening survival log: %w", err)
	}
	return &SurvivalLog{f: f, logger: logger}, nil
}

// OnCapture implements episode.Listener.
func (l *SurvivalLog) OnCapture(episode.CaptureEvent) {}

// OnEpisodeEnd implements episode.Listener.
func (l *SurvivalLog) OnEpisodeEnd(s episode.Summary) {
	if l == nil || l.err != nil {
		return
	}
	if _, err := fmt.Fprintf(l.f, "%d\n", s.Steps); err != nil {
		l.err = fmt.Errorf("writing survival log: %w", err)
		l.logger.Warn("survival_log_failed", "error", err)
	}
}

// Close closes the file and reports the first write error, if any.
func (l *SurvivalLog) Close() error {
	if l == nil {
		return nil
	}
	if err := l.f.Close(); err != nil && l.err == nil {
		l.err = err
	}
	return l.err
}
