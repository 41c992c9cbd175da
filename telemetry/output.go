package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/pursuit/config"
)

// OutputManager handles structured experiment output with CSV logging.
type OutputManager struct {
	dir         string
	episodeFile *os.File
	windowFile  *os.File
	perfFile    *os.File

	// Track if headers have been written
	episodeHeaderWritten bool
	windowHeaderWritten  bool
	perfHeaderWritten    bool
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	f, err := os.Create(filepath.Join(dir, "episodes.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating episodes.csv: %w", err)
	}
	om.episodeFile = f

	f, err = os.Create(filepath.Join(dir, "windows.csv"))
	if err != nil {
		om.episodeFile.Close()
		return nil, fmt.Errorf("creating windows.csv: %w", err)
	}
	om.windowFile = f

	f, err = os.Create(filepath.Join(dir, "perf.csv"))
	if err != nil {
		om.episodeFile.Close()
		om.windowFile.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perfFile = f

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// appendCSV writes records to f, including the header on the first write.
func appendCSV[T any](f *os.File, headerWritten *bool, records []T) error {
	if !*headerWritten {
		if err := gocsv.Marshal(records, f); err != nil {
			return err
		}
		*headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, f)
}

// WriteEpisodes appends episode records to episodes.csv.
func (om *OutputManager) WriteEpisodes(records []EpisodeRecord) error {
	if om == nil || len(records) == 0 {
		return nil
	}
	if err := appendCSV(om.episodeFile, &om.episodeHeaderWritten, records); err != nil {
		return fmt.Errorf("writing episodes: %w", err)
	}
	return nil
}

// WriteWindow appends a window summary to windows.csv.
func (om *OutputManager) WriteWindow(stats WindowStats) error {
	if om == nil {
		return nil
	}
	if err := appendCSV(om.windowFile, &om.windowHeaderWritten, []WindowStats{stats}); err != nil {
		return fmt.Errorf("writing window: %w", err)
	}
	return nil
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int64) error {
	if om == nil {
		return nil
	}
	if err := appendCSV(om.perfFile, &om.perfHeaderWritten, []PerfStatsCSV{stats.ToCSV(windowEnd)}); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// WriteLifetimes saves per-agent lifetime stats to agents.csv.
func (om *OutputManager) WriteLifetimes(stats []LifetimeStats) error {
	if om == nil {
		return nil
	}
	f, err := os.Create(filepath.Join(om.dir, "agents.csv"))
	if err != nil {
		return fmt.Errorf("creating agents.csv: %w", err)
	}
	defer f.Close()
	if err := gocsv.Marshal(stats, f); err != nil {
		return fmt.Errorf("writing agents: %w", err)
	}
	return nil
}

// WriteSnapshot saves a world snapshot as JSON in the output directory.
func (om *OutputManager) WriteSnapshot(snap *Snapshot) (string, error) {
	if om == nil || snap == nil {
		return "", nil
	}
	return SaveSnapshot(snap, om.dir)
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, f := range []*os.File{om.episodeFile, om.windowFile, om.perfFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
