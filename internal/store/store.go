package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"dissonance/internal/logging"
	"dissonance/internal/model"
)

const (
	summaryFile = "latest.json"
	diffFile    = "diff.json"
)

// Store persists probe results as pretty-printed JSON under a single
// directory: one file per probe, plus latest.json (the combined summary of
// the most recent run) and diff.json (the most recent non-empty delta set).
//
// Writes are atomic with respect to the final filename: content goes to a
// sibling temporary file first and is renamed into place, so an external
// reader never observes a partially written file. No two probes share a
// filename, so concurrent completions need no locking.
type Store struct {
	dir string
}

// New returns a store rooted at dir. The directory is created lazily on
// first write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// WriteResult persists the latest result for one probe, overwriting the
// prior run's file.
func (s *Store) WriteResult(res model.ProbeResult) error {
	return s.writeJSON(res.ProbeID+".json", res)
}

// WriteSummary persists the combined result list of a completed run.
func (s *Store) WriteSummary(results []model.ProbeResult) error {
	return s.writeJSON(summaryFile, results)
}

// WriteDiff persists a non-empty delta set. Callers skip the write when the
// diff is empty, so diff.json going stale means "nothing changed lately".
func (s *Store) WriteDiff(deltas []model.ProbeDelta) error {
	return s.writeJSON(diffFile, deltas)
}

// ReadSummary loads the previous run's combined results. Any failure —
// missing file, malformed JSON — is treated as "no previous state" and
// returns an empty set: a first run with no history is not an error.
func (s *Store) ReadSummary() []model.ProbeResult {
	data, err := os.ReadFile(filepath.Join(s.dir, summaryFile))
	if err != nil {
		return nil
	}

	var results []model.ProbeResult
	if err := json.Unmarshal(data, &results); err != nil {
		logging.New("store").Warn("discarding malformed summary", "error", err)
		return nil
	}
	return results
}

// ReadDiff loads the most recent persisted delta set, empty on any failure.
func (s *Store) ReadDiff() []model.ProbeDelta {
	data, err := os.ReadFile(filepath.Join(s.dir, diffFile))
	if err != nil {
		return nil
	}

	var deltas []model.ProbeDelta
	if err := json.Unmarshal(data, &deltas); err != nil {
		return nil
	}
	return deltas
}

// writeJSON performs the mandatory crash-safe sequence: create directory,
// serialize, write a sibling temp file, remove any existing final file,
// rename the temp into place.
func (s *Store) writeJSON(name string, v any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	final := filepath.Join(s.dir, name)
	// Remove-then-rename keeps the final path either absent or complete;
	// readers never see truncated content.
	_ = os.Remove(final)
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
