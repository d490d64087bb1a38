package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/codepatrol/internal/config"
)

// --- joinMax tests ---

func TestJoinMaxUnderLimit(t *testing.T) {
	got := joinMax([]string{"a", "b"}, 3)
	if got != "a, b" {
		t.Errorf("joinMax(2 items, 3) = %q, want %q", got, "a, b")
	}
}

func TestJoinMaxExactLimit(t *testing.T) {
	got := joinMax([]string{"a", "b", "c"}, 3)
	if got != "a, b, c" {
		t.Errorf("joinMax(3 items, 3) = %q, want %q", got, "a, b, c")
	}
}

func TestJoinMaxOverLimit(t *testing.T) {
	got := joinMax([]string{"a", "b", "c", "d", "e"}, 2)
	want := "a, b +3 more"
	if got != want {
		t.Errorf("joinMax(5 items, 2) = %q, want %q", got, want)
	}
}

func TestJoinMaxEmpty(t *testing.T) {
	got := joinMax([]string{}, 3)
	if got != "" {
		t.Errorf("joinMax(empty, 3) = %q, want %q", got, "")
	}
}

func TestJoinMaxSingle(t *testing.T) {
	got := joinMax([]string{"only"}, 3)
	if got != "only" {
		t.Errorf("joinMax(1 item, 3) = %q, want %q", got, "only")
	}
}

// --- writeDoctorText tests ---

func TestWriteDoctorTextOK(t *testing.T) {
	result := doctorResult{
		Checks: []doctorCheck{
			{Name: "config", Status: "ok", Detail: "/home/.codepatrol.yaml"},
			{Name: "storage", Status: "ok"},
		},
		Summary: "all checks passed",
	}

	var buf bytes.Buffer
	_ = writeDoctorText(&buf, result)
	output := buf.String()

	if !strings.Contains(output, "✓") {
		t.Error("missing ok icon ✓")
	}
	if !strings.Contains(output, "config") {
		t.Error("missing check name")
	}
	if !strings.Contains(output, "all checks passed") {
		t.Error("missing summary")
	}
}

func TestWriteDoctorTextMixed(t *testing.T) {
	result := summarizeChecks([]doctorCheck{
		{Name: "config", Status: "ok", Detail: "found"},
		{Name: "webhook", Status: "warn", Detail: "not configured"},
		{Name: "npm", Status: "fail", Detail: "npm not found in PATH"},
	})

	var buf bytes.Buffer
	_ = writeDoctorText(&buf, result)
	output := buf.String()

	for _, icon := range []string{"✓", "△", "✗"} {
		if !strings.Contains(output, icon) {
			t.Errorf("missing icon %s", icon)
		}
	}
	if !strings.Contains(output, "1 issue(s) found") {
		t.Errorf("summary = %q, want issue count", result.Summary)
	}
}

func TestSummarizeChecksWarningsOnly(t *testing.T) {
	result := summarizeChecks([]doctorCheck{
		{Name: "config", Status: "ok"},
		{Name: "webhook", Status: "warn"},
		{Name: "review", Status: "warn"},
	})
	if result.Summary != "ok with 2 warning(s)" {
		t.Errorf("summary = %q", result.Summary)
	}
}

// --- checkConfig tests ---

func TestCheckConfigExists(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "codepatrol.yaml")
	if err := os.WriteFile(cfgPath, []byte("workdir: .\n"), 0644); err != nil {
		t.Fatal(err)
	}

	old := configFile
	configFile = cfgPath
	t.Cleanup(func() { configFile = old })

	check := checkConfig()
	if check.Status != "ok" {
		t.Errorf("checkConfig() status = %q, want ok", check.Status)
	}
	if check.Detail != cfgPath {
		t.Errorf("checkConfig() detail = %q, want %q", check.Detail, cfgPath)
	}
}

func TestCheckConfigExplicitMissing(t *testing.T) {
	old := configFile
	configFile = "/nonexistent/path/codepatrol.yaml"
	t.Cleanup(func() { configFile = old })

	check := checkConfig()
	if check.Status != "fail" {
		t.Errorf("checkConfig() status = %q, want fail", check.Status)
	}
}

// --- checkGit tests ---

func TestCheckGitNotRepository(t *testing.T) {
	c := testConfig(t)

	check := checkGit(context.Background(), c)
	if check.Status != "fail" {
		t.Errorf("checkGit() status = %q, want fail outside a repository", check.Status)
	}
}

// --- checkAgent tests ---

func TestCheckAgentDefaults(t *testing.T) {
	check := checkAgent(config.DefaultConfig())
	if check.Status != "ok" {
		t.Errorf("checkAgent() status = %q, want ok (%s)", check.Status, check.Detail)
	}
}

func TestCheckAgentRejectsShell(t *testing.T) {
	c := config.DefaultConfig()
	c.Agent.AllowedTools = []string{"Read", "Bash"}

	check := checkAgent(c)
	if check.Status != "fail" {
		t.Errorf("checkAgent() status = %q, want fail for shell tool", check.Status)
	}
}

// --- checkStorage tests ---

func TestCheckStorageWritable(t *testing.T) {
	check := checkStorage(&config.Config{StorageDir: t.TempDir()})
	if check.Status != "ok" {
		t.Errorf("checkStorage() status = %q, want ok", check.Status)
	}
}

func TestCheckStorageNotExist(t *testing.T) {
	check := checkStorage(&config.Config{StorageDir: filepath.Join(t.TempDir(), "nonexistent")})
	if check.Status != "ok" {
		t.Errorf("checkStorage() status = %q, want ok (will be created)", check.Status)
	}
	if !strings.Contains(check.Detail, "will be created") {
		t.Errorf("checkStorage() detail = %q, want 'will be created' message", check.Detail)
	}
}

func TestCheckStorageIsFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "notadir")
	if err := os.WriteFile(tmpFile, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	check := checkStorage(&config.Config{StorageDir: tmpFile})
	if check.Status != "fail" {
		t.Errorf("checkStorage() status = %q, want fail (path is a file)", check.Status)
	}
}

// --- checkKnowledge tests ---

func TestCheckKnowledgeOpens(t *testing.T) {
	c := testConfig(t)

	check := checkKnowledge(c)
	if check.Status != "ok" {
		t.Errorf("checkKnowledge() status = %q, want ok (%s)", check.Status, check.Detail)
	}
}

// --- checkWebhook tests ---

func TestCheckWebhook(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"", "warn"},
		{"https://chat.example.com/hooks/abc", "ok"},
		{"ftp://chat.example.com/hooks", "fail"},
		{"not a url", "fail"},
	}
	for _, tt := range tests {
		c := config.DefaultConfig()
		c.Notify.WebhookURL = tt.url
		if got := checkWebhook(c).Status; got != tt.want {
			t.Errorf("checkWebhook(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestCheckWebhookHidesPath(t *testing.T) {
	c := config.DefaultConfig()
	c.Notify.WebhookURL = "https://chat.example.com/hooks/secret-token"

	check := checkWebhook(c)
	if strings.Contains(check.Detail, "secret-token") {
		t.Errorf("checkWebhook() detail leaks the webhook path: %q", check.Detail)
	}
}

// --- checkReview tests ---

func TestCheckReview(t *testing.T) {
	c := config.DefaultConfig()
	c.Review.Enabled = false
	if got := checkReview(c); got.Status != "ok" || got.Detail != "disabled" {
		t.Errorf("disabled review = %+v", got)
	}

	c.Review.Enabled = true
	c.Review.APIKey = ""
	if got := checkReview(c); got.Status != "warn" {
		t.Errorf("review without key status = %q, want warn", got.Status)
	}

	c.Review.APIKey = "sk-test"
	if got := checkReview(c); got.Status != "ok" {
		t.Errorf("review with key status = %q, want ok", got.Status)
	}
}

// --- checkPolicy tests ---

func TestCheckPolicyNone(t *testing.T) {
	c := testConfig(t)
	if got := checkPolicy(c); got.Status != "ok" {
		t.Errorf("checkPolicy() status = %q, want ok", got.Status)
	}
}

func TestCheckPolicyInvalid(t *testing.T) {
	c := testConfig(t)
	path := filepath.Join(c.Workdir, ".codepatrol-policy.yaml")
	if err := os.WriteFile(path, []byte("max_findings: [unterminated\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if got := checkPolicy(c); got.Status != "fail" {
		t.Errorf("checkPolicy() status = %q, want fail for malformed YAML", got.Status)
	}
}
