package tui

import (
	"sort"
	"strings"

	"github.com/ppiankov/codepatrol/internal/models"
)

// filterState holds current active filters.
type filterState struct {
	Kind       models.FindingKind
	Status     string
	SearchText string
}

// sortField enumerates columns that can be sorted.
type sortField int

const (
	sortByKind sortField = iota
	sortBySeverity
	sortByLocation
	sortByStatus
)

// sortFieldCount is the total number of sortable columns.
const sortFieldCount = 4

var kindPriority = map[models.FindingKind]int{
	models.KindSecret: 0, models.KindDependency: 1, models.KindStatic: 2,
}

var severityPriority = map[string]int{
	models.SeverityCritical: 0, models.SeverityHigh: 1, models.SeverityModerate: 2, models.SeverityLow: 3,
}

// applyFilters returns rows matching all active filters.
func applyFilters(rows []findingRow, f filterState) []findingRow {
	result := make([]findingRow, 0, len(rows))
	searchLower := strings.ToLower(f.SearchText)

	for _, row := range rows {
		if f.Kind != "" && row.Kind != f.Kind {
			continue
		}
		if f.Status != "" && row.Status != f.Status {
			continue
		}
		if searchLower != "" && !matchesSearch(row, searchLower) {
			continue
		}
		result = append(result, row)
	}
	return result
}

func matchesSearch(row findingRow, searchLower string) bool {
	return strings.Contains(strings.ToLower(string(row.Kind)), searchLower) ||
		strings.Contains(strings.ToLower(row.Label), searchLower) ||
		strings.Contains(strings.ToLower(row.Location), searchLower) ||
		strings.Contains(strings.ToLower(row.Description), searchLower)
}

// rank orders labels inside the severity column. Advisories sort by
// severity; every secret outranks them; checker codes come last.
func rank(row findingRow) int {
	switch row.Kind {
	case models.KindSecret:
		return -1
	case models.KindDependency:
		if p, ok := severityPriority[row.Label]; ok {
			return p
		}
		return len(severityPriority)
	default:
		return len(severityPriority) + 1
	}
}

// sortRows sorts a slice of rows in place by the given field.
func sortRows(rows []findingRow, field sortField) {
	sort.SliceStable(rows, func(i, j int) bool {
		switch field {
		case sortByKind:
			return kindPriority[rows[i].Kind] < kindPriority[rows[j].Kind]
		case sortBySeverity:
			return rank(rows[i]) < rank(rows[j])
		case sortByLocation:
			return rows[i].Location < rows[j].Location
		case sortByStatus:
			return rows[i].Status < rows[j].Status
		default:
			return false
		}
	})
}

// uniqueKinds returns deduplicated finding kinds in display order.
func uniqueKinds(rows []findingRow) []models.FindingKind {
	seen := make(map[models.FindingKind]bool)
	var kinds []models.FindingKind
	for _, row := range rows {
		if !seen[row.Kind] {
			seen[row.Kind] = true
			kinds = append(kinds, row.Kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool {
		return kindPriority[kinds[i]] < kindPriority[kinds[j]]
	})
	return kinds
}

// sortFieldName returns a human-readable name for the sort field.
func sortFieldName(f sortField) string {
	switch f {
	case sortByKind:
		return "kind"
	case sortBySeverity:
		return "severity"
	case sortByLocation:
		return "location"
	case sortByStatus:
		return "status"
	default:
		return "unknown"
	}
}
