package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/codepatrol/internal/models"
)

// ErrNoStructuredResult is returned when a response holds no result object.
var ErrNoStructuredResult = errors.New("agent response contains no structured result")

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// envelope is the machine-readable wrapper some agent CLIs print around
// the free-text answer.
type envelope struct {
	Type         string  `json:"type"`
	IsError      bool    `json:"is_error"`
	Result       *string `json:"result"`
	NumTurns     int     `json:"num_turns"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

type rawResult struct {
	Remediations []struct {
		Category     string   `json:"category"`
		FilesChanged []string `json:"filesChanged"`
		Description  string   `json:"description"`
	} `json:"remediations"`
	Skipped []struct {
		Category    string `json:"category"`
		Description string `json:"description"`
	} `json:"skipped"`
}

// ParseResponse extracts the remediation result from agent output. The
// output may be a bare answer or a JSON envelope whose "result" field holds
// the answer; the answer is free text with one embedded JSON object.
func ParseResponse(output []byte) (Outcome, error) {
	text := output
	var costUnits float64
	var turns int

	var env envelope
	if err := json.Unmarshal(bytes.TrimSpace(output), &env); err == nil && env.Result != nil {
		if env.IsError {
			return Outcome{}, fmt.Errorf("agent reported an error: %s", truncate(*env.Result, 200))
		}
		text = []byte(*env.Result)
		costUnits = env.TotalCostUSD
		turns = env.NumTurns
	}

	raw, err := extractResult(text)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Remediations: make([]models.RemediationAction, 0, len(raw.Remediations)),
		Skipped:      make([]models.SkippedItem, 0, len(raw.Skipped)),
		CostUnits:    costUnits,
	}
	for _, r := range raw.Remediations {
		files := r.FilesChanged
		if files == nil {
			files = []string{}
		}
		out.Remediations = append(out.Remediations, models.RemediationAction{
			Category:     models.NormalizeCategory(r.Category),
			FilesChanged: files,
			Description:  strings.TrimSpace(r.Description),
		})
	}
	for _, s := range raw.Skipped {
		out.Skipped = append(out.Skipped, models.SkippedItem{
			Category:    models.NormalizeCategory(s.Category),
			Description: strings.TrimSpace(s.Description),
		})
	}

	out.ActionCount = turns
	if out.ActionCount == 0 {
		out.ActionCount = len(out.Remediations)
	}
	return out, nil
}

// extractResult finds the first JSON object carrying a "remediations" key,
// trying fenced code blocks before scanning the raw text.
func extractResult(text []byte) (rawResult, error) {
	for _, m := range fencedBlock.FindAllSubmatch(text, -1) {
		if r, ok := decodeResult(m[1]); ok {
			return r, nil
		}
	}

	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(text[i:]))
		var obj json.RawMessage
		if err := dec.Decode(&obj); err != nil {
			continue
		}
		if r, ok := decodeResult(obj); ok {
			return r, nil
		}
	}

	return rawResult{}, ErrNoStructuredResult
}

func decodeResult(data []byte) (rawResult, bool) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return rawResult{}, false
	}
	if _, ok := keys["remediations"]; !ok {
		return rawResult{}, false
	}
	var r rawResult
	if err := json.Unmarshal(data, &r); err != nil {
		return rawResult{}, false
	}
	return r, true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
