package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/codepatrol/internal/models"
)

const (
	runsDir         = "runs"
	reportExt       = ".json"
	timestampLayout = "2006-01-02T15-04-05"
)

// LocalStorage keeps reports under <baseDir>/runs. Reports may hold secret
// snippets, so files are owner-only.
type LocalStorage struct {
	baseDir string
}

var _ Storage = (*LocalStorage)(nil)

// NewLocal creates a local archive rooted at baseDir.
func NewLocal(baseDir string) *LocalStorage {
	return &LocalStorage{baseDir: baseDir}
}

// GetStoragePath returns the archive root.
func (s *LocalStorage) GetStoragePath() string {
	return s.baseDir
}

// SaveReport writes the report atomically. A crash mid-write never leaves
// a truncated report behind.
func (s *LocalStorage) SaveReport(report *models.PatrolReport) error {
	dir := filepath.Join(s.baseDir, runsDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	path := filepath.Join(dir, fileName(report.StartedAt, report.RunID))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}
	return nil
}

// GetLatestRun returns the most recent report.
func (s *LocalStorage) GetLatestRun() (*models.PatrolReport, error) {
	entries, err := s.ListRuns()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoRuns
	}
	return loadReport(entries[len(entries)-1].Path)
}

// GetLastNRuns returns up to n reports, oldest first. Unreadable files
// are skipped.
func (s *LocalStorage) GetLastNRuns(n int) ([]*models.PatrolReport, error) {
	entries, err := s.ListRuns()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoRuns
	}

	if start := len(entries) - n; start > 0 {
		entries = entries[start:]
	}

	reports := make([]*models.PatrolReport, 0, len(entries))
	for _, e := range entries {
		report, err := loadReport(e.Path)
		if err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// ListRuns returns archived runs sorted by start time.
func (s *LocalStorage) ListRuns() ([]RunEntry, error) {
	dir := filepath.Join(s.baseDir, runsDir)
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunEntry{}, nil
		}
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	entries := []RunEntry{}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		startedAt, runID, ok := parseFileName(f.Name())
		if !ok {
			continue
		}
		entries = append(entries, RunEntry{
			StartedAt: startedAt,
			RunID:     runID,
			Path:      filepath.Join(dir, f.Name()),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].StartedAt.Equal(entries[j].StartedAt) {
			return entries[i].StartedAt.Before(entries[j].StartedAt)
		}
		return entries[i].RunID < entries[j].RunID
	})
	return entries, nil
}

// Prune deletes all but the newest keep reports. keep <= 0 keeps everything.
func (s *LocalStorage) Prune(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	entries, err := s.ListRuns()
	if err != nil {
		return 0, err
	}

	removed := 0
	for i := 0; i < len(entries)-keep; i++ {
		if err := os.Remove(entries[i].Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to prune %s: %w", entries[i].Path, err)
		}
		removed++
	}
	return removed, nil
}

func loadReport(path string) (*models.PatrolReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("report not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var report models.PatrolReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report %s: %w", filepath.Base(path), err)
	}
	return &report, nil
}

// fileName is <UTC start>_<run id>.json. Two runs started in the same
// second differ by run id.
func fileName(startedAt time.Time, runID string) string {
	return startedAt.UTC().Format(timestampLayout) + "_" + sanitizeRunID(runID) + reportExt
}

func parseFileName(name string) (time.Time, string, bool) {
	if !strings.HasSuffix(name, reportExt) {
		return time.Time{}, "", false
	}
	stamp, runID, found := strings.Cut(strings.TrimSuffix(name, reportExt), "_")
	if !found || runID == "" {
		return time.Time{}, "", false
	}
	t, err := time.Parse(timestampLayout, stamp)
	if err != nil {
		return time.Time{}, "", false
	}
	return t, runID, true
}

func sanitizeRunID(id string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return -1
		}
	}, id)
	if clean == "" {
		return "unnamed"
	}
	return clean
}
