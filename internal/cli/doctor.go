package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/codepatrol/internal/agent"
	"github.com/ppiankov/codepatrol/internal/config"
	"github.com/ppiankov/codepatrol/internal/discovery"
	"github.com/ppiankov/codepatrol/internal/knowledge"
	"github.com/ppiankov/codepatrol/internal/policy"
	"github.com/ppiankov/codepatrol/internal/runner"
	"github.com/ppiankov/codepatrol/internal/vcs"
)

var doctorFormat string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check environment readiness and diagnose common problems",
	Long: `Doctor validates your codepatrol setup end-to-end:

  1. Config file - found and readable?
  2. Git        - is the working tree a repository?
  3. Tools      - audit, type checker, grep and agent installed?
  4. Agent      - allow-list free of shell tools?
  5. Storage    - directory writable?
  6. Knowledge  - database openable?
  7. Webhook    - configured and well-formed?
  8. Review     - API key present when enabled?
  9. Policy     - policy file parses?

Fix the issues it reports, then run 'codepatrol run' with confidence.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorFormat, "format", "text",
		"output format: text or json")
}

type doctorCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "warn", "fail"
	Detail string `json:"detail,omitempty"`
}

type doctorResult struct {
	Checks  []doctorCheck `json:"checks"`
	Summary string        `json:"summary"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	if err := validateFormat(doctorFormat, "text", "json"); err != nil {
		return err
	}

	var checks []doctorCheck
	checks = append(checks, checkConfig())
	checks = append(checks, checkGit(cmd.Context(), cfg))
	checks = append(checks, checkTools(cfg)...)
	checks = append(checks, checkAgent(cfg))
	checks = append(checks, checkStorage(cfg))
	checks = append(checks, checkKnowledge(cfg))
	checks = append(checks, checkWebhook(cfg))
	checks = append(checks, checkReview(cfg))
	checks = append(checks, checkPolicy(cfg))

	result := summarizeChecks(checks)
	if doctorFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	return writeDoctorText(cmd.OutOrStdout(), result)
}

func summarizeChecks(checks []doctorCheck) doctorResult {
	fails, warns := 0, 0
	for _, c := range checks {
		switch c.Status {
		case "fail":
			fails++
		case "warn":
			warns++
		}
	}

	summary := "all checks passed"
	if fails > 0 {
		summary = fmt.Sprintf("%d issue(s) found", fails)
	} else if warns > 0 {
		summary = fmt.Sprintf("ok with %d warning(s)", warns)
	}
	return doctorResult{Checks: checks, Summary: summary}
}

func writeDoctorText(w io.Writer, result doctorResult) error {
	icons := map[string]string{
		"ok":   "✓",
		"warn": "△",
		"fail": "✗",
	}

	for _, c := range result.Checks {
		icon := icons[c.Status]
		if c.Detail != "" {
			fmt.Fprintf(w, "  %s %-20s %s\n", icon, c.Name, c.Detail)
		} else {
			fmt.Fprintf(w, "  %s %s\n", icon, c.Name)
		}
	}

	fmt.Fprintf(w, "\n%s\n", result.Summary)
	return nil
}

func checkConfig() doctorCheck {
	path := configFile
	if path == "" {
		for _, candidate := range []string{"codepatrol.yaml", config.ConfigPath()} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path == "" {
		return doctorCheck{
			Name:   "config",
			Status: "warn",
			Detail: "no config file found (using defaults). Run: codepatrol init",
		}
	}
	if _, err := os.Stat(path); err != nil {
		return doctorCheck{Name: "config", Status: "fail", Detail: fmt.Sprintf("%s: %v", path, err)}
	}
	return doctorCheck{Name: "config", Status: "ok", Detail: path}
}

func checkGit(ctx context.Context, c *config.Config) doctorCheck {
	dir, err := c.GetWorkdir()
	if err != nil {
		return doctorCheck{Name: "git", Status: "fail", Detail: err.Error()}
	}
	git := vcs.NewGit(runner.New(runner.OSExec), dir, c.Git.Timeout)
	if !git.IsRepository(ctx) {
		return doctorCheck{
			Name:   "git",
			Status: "fail",
			Detail: fmt.Sprintf("%s is not a git repository; the safety net needs one", dir),
		}
	}
	return doctorCheck{Name: "git", Status: "ok", Detail: dir}
}

func checkTools(c *config.Config) []doctorCheck {
	plan, err := discoverPlan()
	if err != nil {
		return []doctorCheck{{Name: "tools", Status: "fail", Detail: err.Error()}}
	}

	var checks []doctorCheck
	for _, td := range plan.Tools {
		// git is covered by checkGit
		if td.Tool == discovery.ToolGit && td.Available {
			continue
		}
		ch := doctorCheck{Name: td.Tool}

		switch {
		case td.Runnable:
			ch.Status = "ok"
			ch.Detail = td.BinaryPath
		case td.Available:
			var wanted []string
			for _, f := range td.Files {
				wanted = append(wanted, f.Path)
			}
			ch.Status = "warn"
			ch.Detail = fmt.Sprintf("installed but no %s in working tree", joinMax(wanted, 2))
		default:
			ch.Status = "fail"
			ch.Detail = fmt.Sprintf("%s not found in PATH (%s)", td.Binary, td.Purpose)
		}
		checks = append(checks, ch)
	}
	return checks
}

func checkAgent(c *config.Config) doctorCheck {
	if err := agent.ValidateAllowedTools(c.Agent.AllowedTools); err != nil {
		return doctorCheck{Name: "agent allow-list", Status: "fail", Detail: err.Error()}
	}
	return doctorCheck{Name: "agent allow-list", Status: "ok", Detail: joinMax(c.Agent.AllowedTools, 6)}
}

func checkStorage(c *config.Config) doctorCheck {
	storagePath, err := c.GetStoragePath()
	if err != nil {
		return doctorCheck{Name: "storage", Status: "fail", Detail: err.Error()}
	}

	info, err := os.Stat(storagePath)
	if err != nil {
		return doctorCheck{
			Name:   "storage",
			Status: "ok",
			Detail: fmt.Sprintf("%s (will be created on first run)", storagePath),
		}
	}
	if !info.IsDir() {
		return doctorCheck{
			Name:   "storage",
			Status: "fail",
			Detail: fmt.Sprintf("%s exists but is not a directory", storagePath),
		}
	}

	tmpFile := filepath.Join(storagePath, ".doctor-check")
	if err := os.WriteFile(tmpFile, []byte("ok"), 0o600); err != nil {
		return doctorCheck{
			Name:   "storage",
			Status: "fail",
			Detail: fmt.Sprintf("%s not writable: %v", storagePath, err),
		}
	}
	_ = os.Remove(tmpFile)

	return doctorCheck{Name: "storage", Status: "ok", Detail: storagePath}
}

func checkKnowledge(c *config.Config) doctorCheck {
	path, err := c.KnowledgePath()
	if err != nil {
		return doctorCheck{Name: "knowledge", Status: "fail", Detail: err.Error()}
	}
	store, err := knowledge.Open(path, logger)
	if err != nil {
		return doctorCheck{Name: "knowledge", Status: "warn", Detail: fmt.Sprintf("cannot open %s: %v", path, err)}
	}
	_ = store.Close()
	return doctorCheck{Name: "knowledge", Status: "ok", Detail: path}
}

func checkWebhook(c *config.Config) doctorCheck {
	if c.Notify.WebhookURL == "" {
		return doctorCheck{
			Name:   "webhook",
			Status: "warn",
			Detail: "not configured; reports are archived locally only. Set notify.webhook_url",
		}
	}
	u, err := url.Parse(c.Notify.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return doctorCheck{Name: "webhook", Status: "fail", Detail: "notify.webhook_url must be an http(s) URL"}
	}
	return doctorCheck{Name: "webhook", Status: "ok", Detail: u.Scheme + "://" + u.Host}
}

func checkReview(c *config.Config) doctorCheck {
	if !c.Review.Enabled {
		return doctorCheck{Name: "review", Status: "ok", Detail: "disabled"}
	}
	if c.Review.APIKey == "" {
		return doctorCheck{
			Name:   "review",
			Status: "warn",
			Detail: "enabled but review.api_key is empty; reviews will be skipped",
		}
	}
	return doctorCheck{Name: "review", Status: "ok", Detail: c.Review.Model}
}

func checkPolicy(c *config.Config) doctorCheck {
	dir, err := c.GetWorkdir()
	if err != nil {
		return doctorCheck{Name: "policy", Status: "fail", Detail: err.Error()}
	}
	path := policy.FindPolicyFile(dir)
	if path == "" {
		return doctorCheck{Name: "policy", Status: "ok", Detail: "none (exit code never reflects findings)"}
	}
	if _, err := policy.LoadFromFile(path); err != nil {
		return doctorCheck{Name: "policy", Status: "fail", Detail: err.Error()}
	}
	return doctorCheck{Name: "policy", Status: "ok", Detail: path}
}

// joinMax joins up to n strings with ", ".
func joinMax(s []string, n int) string {
	if len(s) <= n {
		result := ""
		for i, v := range s {
			if i > 0 {
				result += ", "
			}
			result += v
		}
		return result
	}
	result := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			result += ", "
		}
		result += s[i]
	}
	return fmt.Sprintf("%s +%d more", result, len(s)-n)
}
