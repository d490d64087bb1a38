package reporter

import (
	"encoding/json"
	"io"

	"github.com/ppiankov/codepatrol/internal/models"
)

// JSONReporter generates machine-readable JSON reports
type JSONReporter struct {
	writer io.Writer
	pretty bool
}

// NewJSONReporter creates a new JSON reporter
func NewJSONReporter(writer io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		pretty: pretty,
	}
}

// Generate writes the full report as JSON
func (r *JSONReporter) Generate(report *models.PatrolReport) error {
	return r.write(report)
}

// GenerateSnapshot writes a bare scan snapshot, used by the scan command
func (r *JSONReporter) GenerateSnapshot(snap models.ScanSnapshot, level models.RiskLevel, recommendations []string) error {
	out := struct {
		RiskLevel       models.RiskLevel    `json:"risk_level"`
		Recommendations []string            `json:"recommendations"`
		Findings        models.ScanSnapshot `json:"findings"`
	}{
		RiskLevel:       level,
		Recommendations: recommendations,
		Findings:        snap,
	}
	return r.write(out)
}

func (r *JSONReporter) write(v any) error {
	var data []byte
	var err error

	if r.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	if _, err = r.writer.Write(data); err != nil {
		return err
	}

	// Add trailing newline for terminal output
	_, err = r.writer.Write([]byte("\n"))
	return err
}
