// Package storage archives patrol reports as JSON files, one per run.
package storage

import (
	"errors"
	"time"

	"github.com/ppiankov/codepatrol/internal/models"
)

// ErrNoRuns is returned when the archive holds no reports.
var ErrNoRuns = errors.New("no stored runs")

// RunEntry locates one archived report.
type RunEntry struct {
	StartedAt time.Time
	RunID     string
	Path      string
}

// Storage is the report archive.
type Storage interface {
	SaveReport(report *models.PatrolReport) error
	GetLatestRun() (*models.PatrolReport, error)
	// GetLastNRuns returns up to n reports, oldest first.
	GetLastNRuns(n int) ([]*models.PatrolReport, error)
	ListRuns() ([]RunEntry, error)
	// Prune deletes all but the newest keep reports.
	Prune(keep int) (int, error)
}
