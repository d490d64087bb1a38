package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/reporter"
)

var (
	exportFormat string
	exportOutput string
	exportLastN  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export findings from stored runs",
	Long: `Export flattens the findings of stored patrol runs for other tools.

Supported formats:
  csv    Tabular format for spreadsheets
  json   Structured JSON for programmatic consumption
  sarif  SARIF 2.1.0 for code scanning dashboards

Secret snippets are never exported; only the pattern kind and location.

Example:
  codepatrol export --format csv -o findings.csv
  codepatrol export --format sarif -o results.sarif --last 1
  codepatrol export --format json --last 30 -o findings.json`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv",
		"output format: csv, json, or sarif")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"write output to file (default: stdout)")
	exportCmd.Flags().IntVarP(&exportLastN, "last", "n", 1,
		"number of recent runs to include")
}

// FindingRecord is a single row in the export.
type FindingRecord struct {
	RunID       string `json:"run_id"`
	RunStarted  string `json:"run_started"`
	Kind        string `json:"kind"`
	Severity    string `json:"severity"`
	File        string `json:"file"`
	Line        int    `json:"line,omitempty"`
	Rule        string `json:"rule"`
	Description string `json:"description"`
	Status      string `json:"status"` // "open" or "fixed"
	RiskLevel   string `json:"risk_level"`
}

// FindingExport is the full export payload.
type FindingExport struct {
	ExportedAt   string          `json:"exported_at"`
	RunCount     int             `json:"run_count"`
	FindingCount int             `json:"finding_count"`
	Records      []FindingRecord `json:"records"`
}

func runExport(cmd *cobra.Command, args []string) error {
	if err := validateFormat(exportFormat, "csv", "json", "sarif"); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	reports, err := store.GetLastNRuns(exportLastN)
	if err != nil || len(reports) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No stored runs found. Run 'codepatrol run' first.")
		return nil
	}
	logger.Debug().Int("runs", len(reports)).Msg("exporting")

	w, closeFn, err := openOutput(exportOutput)
	if err != nil {
		return err
	}
	defer closeFn()

	export := buildFindingExport(reports, time.Now())
	switch exportFormat {
	case "csv":
		return writeCSV(w, export)
	case "json":
		return writeJSON(w, export)
	default:
		return writeSARIF(w, export)
	}
}

// recordOf maps a finding onto an export row.
func recordOf(f models.Finding) FindingRecord {
	rec := FindingRecord{Kind: string(f.Kind()), Description: reporter.SafeDescription(f)}
	switch v := f.(type) {
	case models.DependencyAdvisory:
		rec.Severity = v.Severity
		rec.File = "package.json"
		rec.Rule = "dependency/" + v.PackageName
		rec.Description = v.PackageName + ": " + v.Title
	case models.SecretLeak:
		rec.Severity = "critical"
		rec.File, rec.Line = v.File, v.Line
		rec.Rule = "secret/" + string(v.PatternKind)
	case models.StaticCheckFinding:
		rec.Severity = "error"
		rec.File, rec.Line = v.File, v.Line
		rec.Rule = "static/" + v.Code
		rec.Description = v.Message
	}
	return rec
}

func buildFindingExport(reports []*models.PatrolReport, now time.Time) *FindingExport {
	records := []FindingRecord{}

	for _, report := range reports {
		remaining := map[string]bool{}
		if report.AfterFindings != nil {
			for _, f := range report.AfterFindings.Findings() {
				remaining[findingKey(f)] = true
			}
		}

		for _, f := range report.BeforeFindings.Findings() {
			rec := recordOf(f)
			rec.RunID = report.RunID
			rec.RunStarted = report.StartedAt.UTC().Format(time.RFC3339)
			rec.RiskLevel = string(report.RiskLevel)
			rec.Status = "open"
			if report.AfterFindings != nil && !remaining[findingKey(f)] {
				rec.Status = "fixed"
			}
			records = append(records, rec)
		}
	}

	kindOrder := map[string]int{"secret": 0, "dependency": 1, "static": 2}
	sort.SliceStable(records, func(i, j int) bool {
		ki, kj := kindOrder[records[i].Kind], kindOrder[records[j].Kind]
		if ki != kj {
			return ki < kj
		}
		if records[i].File != records[j].File {
			return records[i].File < records[j].File
		}
		return records[i].Line < records[j].Line
	})

	return &FindingExport{
		ExportedAt:   now.UTC().Format(time.RFC3339),
		RunCount:     len(reports),
		FindingCount: len(records),
		Records:      records,
	}
}

func writeCSV(w io.Writer, export *FindingExport) error {
	writer := csv.NewWriter(w)

	header := []string{
		"run_id", "run_started", "kind", "severity", "file", "line",
		"rule", "description", "status", "risk_level",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range export.Records {
		line := ""
		if r.Line > 0 {
			line = strconv.Itoa(r.Line)
		}
		row := []string{
			r.RunID, r.RunStarted, r.Kind, r.Severity, r.File, line,
			r.Rule, r.Description, r.Status, r.RiskLevel,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// SARIF 2.1.0 output. Minimal structures, only what a valid log needs.

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string             `json:"id"`
	ShortDescription sarifMessage       `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig `json:"defaultConfiguration"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysical `json:"physicalLocation"`
}

type sarifPhysical struct {
	ArtifactLocation sarifArtifact `json:"artifactLocation"`
	Region           *sarifRegion  `json:"region,omitempty"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

func writeSARIF(w io.Writer, export *FindingExport) error {
	rulesMap := map[string]sarifRule{}
	results := []sarifResult{}

	for _, rec := range export.Records {
		if rec.Status == "fixed" {
			continue
		}
		level := sarifLevel(rec.Severity)
		if _, exists := rulesMap[rec.Rule]; !exists {
			rulesMap[rec.Rule] = sarifRule{
				ID:               rec.Rule,
				ShortDescription: sarifMessage{Text: rec.Kind + " " + rec.Rule},
				DefaultConfig:    sarifDefaultConfig{Level: level},
			}
		}

		physical := sarifPhysical{ArtifactLocation: sarifArtifact{URI: rec.File}}
		if rec.Line > 0 {
			physical.Region = &sarifRegion{StartLine: rec.Line}
		}
		results = append(results, sarifResult{
			RuleID:    rec.Rule,
			Level:     level,
			Message:   sarifMessage{Text: rec.Description},
			Locations: []sarifLocation{{PhysicalLocation: physical}},
		})
	}

	rules := make([]sarifRule, 0, len(rulesMap))
	for _, r := range rulesMap {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	return writeJSON(w, sarifLog{
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json",
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool: sarifTool{
				Driver: sarifDriver{
					Name:    "codepatrol",
					Version: version,
					Rules:   rules,
				},
			},
			Results: results,
		}},
	})
}

func sarifLevel(severity string) string {
	switch severity {
	case models.SeverityCritical, models.SeverityHigh, "error":
		return "error"
	case models.SeverityModerate:
		return "warning"
	default:
		return "note"
	}
}
