package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/policy"
	"github.com/ppiankov/codepatrol/internal/reporter"
	"github.com/ppiankov/codepatrol/internal/storage"
)

// openOutput returns stdout or a created file, plus its closer.
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// generateOutput writes the report in the specified format(s).
func generateOutput(report *models.PatrolReport, format, outputPath string) error {
	w, closeFn, err := openOutput(outputPath)
	if err != nil {
		return err
	}
	defer closeFn()

	switch format {
	case "text":
		return reporter.NewTextReporter(w).Generate(report)
	case "json":
		return reporter.NewJSONReporter(w, true).Generate(report)
	case "markdown", "md":
		_, err := io.WriteString(w, reporter.Markdown(report))
		return err
	case "both":
		if err := reporter.NewTextReporter(w).Generate(report); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "\n=== JSON Output ===\n\n"); err != nil {
			return err
		}
		return reporter.NewJSONReporter(w, true).Generate(report)
	default:
		return &ValidationError{Message: fmt.Sprintf("unsupported format: %s (use text, json, markdown, or both)", format)}
	}
}

// validateFormat rejects a format flag before any work is done.
func validateFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return &ValidationError{Message: fmt.Sprintf("invalid format: %s (must be one of %v)", format, allowed)}
}

// openStore returns the report archive under the configured storage dir.
func openStore() (*storage.LocalStorage, error) {
	storagePath, err := cfg.GetStoragePath()
	if err != nil {
		return nil, err
	}
	return storage.NewLocal(storagePath), nil
}

// enforcePolicy evaluates the nearest policy file, if any, against report.
func enforcePolicy(report *models.PatrolReport, dir string) error {
	policyPath := policy.FindPolicyFile(dir)
	if policyPath == "" {
		return nil
	}
	logger.Debug().Str("path", policyPath).Msg("found policy file")

	pol, err := policy.LoadFromFile(policyPath)
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("failed to load policy: %v", err)}
	}
	if pol == nil {
		return nil
	}

	result := pol.Evaluate(report)
	if result.Pass {
		logger.Debug().Msg("policy check passed")
		return nil
	}
	for _, v := range result.Violations {
		fmt.Fprintf(os.Stderr, "Policy violation [%s]: %s\n", v.Rule, v.Message)
	}
	return &ThresholdExceededError{Violations: len(result.Violations)}
}
