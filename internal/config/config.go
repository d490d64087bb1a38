package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ppiankov/codepatrol/internal/agent"
	"github.com/ppiankov/codepatrol/internal/scanner"
	"github.com/ppiankov/codepatrol/internal/verify"
)

// Config holds all configuration for codepatrol
type Config struct {
	// Working tree to patrol
	Workdir string `mapstructure:"workdir"`

	// Where reports, the run lock and the knowledge DB live
	StorageDir string `mapstructure:"storage_dir"`

	// Number of last runs to analyze in history
	LastRuns int `mapstructure:"last_runs"`

	// Archived reports to keep; 0 keeps all
	KeepRuns int `mapstructure:"keep_runs"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Probes    ProbesConfig    `mapstructure:"probes"`
	Verify    VerifyConfig    `mapstructure:"verify"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Review    ReviewConfig    `mapstructure:"review"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Git       GitConfig       `mapstructure:"git"`
	Serve     ServeConfig     `mapstructure:"serve"`
}

// ProbeConfig is one scan probe's command line and time limit
type ProbeConfig struct {
	Command []string      `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SecretsConfig adds the file filters of the secret-leak probe
type SecretsConfig struct {
	Command     []string      `mapstructure:"command"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Include     []string      `mapstructure:"include"`
	ExcludeDirs []string      `mapstructure:"exclude_dirs"`
}

// ProbesConfig groups the three scan probes
type ProbesConfig struct {
	Audit   ProbeConfig   `mapstructure:"audit"`
	Secrets SecretsConfig `mapstructure:"secrets"`
	Static  ProbeConfig   `mapstructure:"static"`
}

// VerifyConfig holds the build and test gates
type VerifyConfig struct {
	BuildCommand []string      `mapstructure:"build_command"`
	TestCommand  []string      `mapstructure:"test_command"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// AgentConfig configures the remediation agent subprocess
type AgentConfig struct {
	Command      []string      `mapstructure:"command"`
	AllowedTools []string      `mapstructure:"allowed_tools"`
	MaxTurns     int           `mapstructure:"max_turns"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ReviewConfig configures the advisory quality review
type ReviewConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// NotifyConfig configures the chat webhook
type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Channel    string        `mapstructure:"channel"`
	Retries    int           `mapstructure:"retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// KnowledgeConfig locates the knowledge store
type KnowledgeConfig struct {
	// Empty means <storage_dir>/knowledge.db
	DBPath string `mapstructure:"db_path"`
}

// MetricsConfig controls the prometheus textfile export
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// GitConfig bounds each git invocation
type GitConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// ServeConfig configures the read-only HTTP status endpoint
type ServeConfig struct {
	Addr string `mapstructure:"addr"`
	// Requests per client IP per minute
	RateLimit int `mapstructure:"rate_limit"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Workdir:    ".",
		StorageDir: ".codepatrol",
		LastRuns:   7,
		KeepRuns:   90,
		LogLevel:   "info",
		LogFormat:  "auto",
		Probes: ProbesConfig{
			Audit: ProbeConfig{
				Command: scanner.DefaultAuditCommand,
				Timeout: scanner.DefaultAuditTimeout,
			},
			Secrets: SecretsConfig{
				Command:     scanner.DefaultSecretsCommand,
				Timeout:     scanner.DefaultSecretsTimeout,
				Include:     scanner.DefaultSecretsInclude,
				ExcludeDirs: scanner.DefaultSecretsExcludes,
			},
			Static: ProbeConfig{
				Command: scanner.DefaultStaticCommand,
				Timeout: scanner.DefaultStaticTimeout,
			},
		},
		Verify: VerifyConfig{
			BuildCommand: verify.DefaultBuildCommand,
			TestCommand:  verify.DefaultTestCommand,
			Timeout:      verify.DefaultTimeout,
		},
		Agent: AgentConfig{
			Command:      agent.DefaultCommand,
			AllowedTools: agent.DefaultAllowedTools,
			MaxTurns:     agent.DefaultMaxTurns,
			Timeout:      agent.DefaultTimeout,
		},
		Review: ReviewConfig{
			Model: "gpt-4o-mini",
		},
		Notify: NotifyConfig{
			Retries: 3,
			Timeout: 10 * time.Second,
		},
		Git: GitConfig{
			Timeout: 30 * time.Second,
		},
		Serve: ServeConfig{
			Addr:      "127.0.0.1:9420",
			RateLimit: 60,
		},
	}
}

// Load loads configuration with the following precedence (lowest to highest):
// 1. Default values
// 2. Config file (./codepatrol.yaml, ~/.codepatrol.yaml, $XDG_CONFIG_HOME/codepatrol/)
// 3. Environment variables (CODEPATROL_*, nested keys joined with _)
// 4. CLI flags (handled by caller)
func Load() (*Config, error) {
	return LoadFromFile("")
}

// LoadFromFile loads configuration from a specific file path
// If path is empty, it searches for config in standard locations
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if configPath != "" {
		// Use explicit config file path
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("codepatrol")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			v.AddConfigPath(filepath.Join(xdgConfig, "codepatrol"))
		}
	}

	// CODEPATROL_NOTIFY_WEBHOOK_URL -> notify.webhook_url
	v.SetEnvPrefix("CODEPATROL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so env overrides work without a file
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("workdir", d.Workdir)
	v.SetDefault("storage_dir", d.StorageDir)
	v.SetDefault("last_runs", d.LastRuns)
	v.SetDefault("keep_runs", d.KeepRuns)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)

	v.SetDefault("probes.audit.command", d.Probes.Audit.Command)
	v.SetDefault("probes.audit.timeout", d.Probes.Audit.Timeout)
	v.SetDefault("probes.secrets.command", d.Probes.Secrets.Command)
	v.SetDefault("probes.secrets.timeout", d.Probes.Secrets.Timeout)
	v.SetDefault("probes.secrets.include", d.Probes.Secrets.Include)
	v.SetDefault("probes.secrets.exclude_dirs", d.Probes.Secrets.ExcludeDirs)
	v.SetDefault("probes.static.command", d.Probes.Static.Command)
	v.SetDefault("probes.static.timeout", d.Probes.Static.Timeout)

	v.SetDefault("verify.build_command", d.Verify.BuildCommand)
	v.SetDefault("verify.test_command", d.Verify.TestCommand)
	v.SetDefault("verify.timeout", d.Verify.Timeout)

	v.SetDefault("agent.command", d.Agent.Command)
	v.SetDefault("agent.allowed_tools", d.Agent.AllowedTools)
	v.SetDefault("agent.max_turns", d.Agent.MaxTurns)
	v.SetDefault("agent.timeout", d.Agent.Timeout)

	v.SetDefault("review.enabled", d.Review.Enabled)
	v.SetDefault("review.model", d.Review.Model)
	v.SetDefault("review.api_key", "")
	v.SetDefault("review.base_url", "")

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.channel", "")
	v.SetDefault("notify.retries", d.Notify.Retries)
	v.SetDefault("notify.timeout", d.Notify.Timeout)

	v.SetDefault("knowledge.db_path", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("git.timeout", d.Git.Timeout)
	v.SetDefault("serve.addr", d.Serve.Addr)
	v.SetDefault("serve.rate_limit", d.Serve.RateLimit)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Workdir == "" {
		return fmt.Errorf("workdir cannot be empty")
	}
	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir cannot be empty")
	}
	if c.LastRuns <= 0 {
		return fmt.Errorf("last_runs must be positive")
	}
	if c.KeepRuns < 0 {
		return fmt.Errorf("keep_runs cannot be negative")
	}

	validFormats := map[string]bool{"auto": true, "console": true, "json": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("invalid log_format: %s (must be auto, console, or json)", c.LogFormat)
	}
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be trace, debug, info, warn, or error)", c.LogLevel)
	}

	timeouts := []struct {
		key string
		d   time.Duration
	}{
		{"probes.audit.timeout", c.Probes.Audit.Timeout},
		{"probes.secrets.timeout", c.Probes.Secrets.Timeout},
		{"probes.static.timeout", c.Probes.Static.Timeout},
		{"verify.timeout", c.Verify.Timeout},
		{"agent.timeout", c.Agent.Timeout},
		{"git.timeout", c.Git.Timeout},
	}
	for _, t := range timeouts {
		if t.d <= 0 {
			return fmt.Errorf("%s must be positive", t.key)
		}
	}

	commands := []struct {
		key  string
		argv []string
	}{
		{"probes.audit.command", c.Probes.Audit.Command},
		{"probes.secrets.command", c.Probes.Secrets.Command},
		{"probes.static.command", c.Probes.Static.Command},
		{"verify.build_command", c.Verify.BuildCommand},
		{"verify.test_command", c.Verify.TestCommand},
		{"agent.command", c.Agent.Command},
	}
	for _, cmd := range commands {
		if len(cmd.argv) == 0 || cmd.argv[0] == "" {
			return fmt.Errorf("%s cannot be empty", cmd.key)
		}
	}

	if c.Agent.MaxTurns <= 0 {
		return fmt.Errorf("agent.max_turns must be positive")
	}
	if c.Review.Enabled && c.Review.Model == "" {
		return fmt.Errorf("review.model is required when review is enabled")
	}
	if c.Serve.RateLimit <= 0 {
		return fmt.Errorf("serve.rate_limit must be positive")
	}

	return nil
}

// GetStoragePath returns the absolute path to the storage directory.
// Relative paths resolve against the working tree.
func (c *Config) GetStoragePath() (string, error) {
	dir := c.StorageDir
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, dir[2:]), nil
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(c.Workdir, dir)
	}

	absPath, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return absPath, nil
}

// GetWorkdir returns the absolute working tree path
func (c *Config) GetWorkdir() (string, error) {
	abs, err := filepath.Abs(c.Workdir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return abs, nil
}

// KnowledgePath returns the knowledge DB path, defaulting under storage
func (c *Config) KnowledgePath() (string, error) {
	if c.Knowledge.DBPath != "" {
		return c.Knowledge.DBPath, nil
	}
	storage, err := c.GetStoragePath()
	if err != nil {
		return "", err
	}
	return filepath.Join(storage, "knowledge.db"), nil
}

// GenerateSampleConfig generates a sample configuration file content
func GenerateSampleConfig() string {
	return `# codepatrol configuration
# Save this file as ./codepatrol.yaml or ~/.codepatrol.yaml
# Every key can be overridden with CODEPATROL_<KEY>, e.g. CODEPATROL_NOTIFY_WEBHOOK_URL

# Working tree to patrol (must be a git repository)
workdir: .

# Reports, run lock and knowledge DB (relative to workdir)
storage_dir: .codepatrol

# Number of runs analyzed by history
last_runs: 7

# Archived reports to keep (0 keeps all)
keep_runs: 90

# Logging: trace, debug, info, warn, error / auto, console, json
log_level: info
log_format: auto

probes:
  audit:
    command: [npm, audit, --json]
    timeout: 60s
  secrets:
    command: [grep]
    timeout: 30s
    include: ["*.ts", "*.tsx", "*.js", "*.jsx", "*.mjs", "*.cjs", "*.json", "*.env"]
    exclude_dirs: [node_modules, dist, build, coverage, .git, fixtures, __fixtures__, testdata]
  static:
    command: [npx, tsc, --noEmit]
    timeout: 120s

verify:
  build_command: [npm, run, build]
  test_command: [npm, test]
  timeout: 5m

agent:
  command: [claude]
  # Shell-capable tools are rejected
  allowed_tools: [Read, Edit, Grep, Glob]
  max_turns: 30
  timeout: 30m

# Advisory review of kept diffs through an OpenAI-compatible API
review:
  enabled: false
  model: gpt-4o-mini
  # api_key: sk-...
  # base_url: https://api.openai.com/v1

notify:
  # webhook_url: https://chat.example.com/hooks/patrol
  # channel: "#code-health"
  retries: 3
  timeout: 10s

knowledge:
  # db_path: /var/lib/codepatrol/knowledge.db

metrics:
  # textfile: /var/lib/node_exporter/textfile/codepatrol.prom

git:
  timeout: 30s

# codepatrol serve: health, /metrics and the latest report over HTTP
serve:
  addr: 127.0.0.1:9420
  rate_limit: 60
`
}

// ConfigPath returns the user-level config file location
func ConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "codepatrol", "codepatrol.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".codepatrol.yaml")
	}
	return "codepatrol.yaml"
}

// WriteSampleConfig writes the sample config to path. It refuses to
// overwrite an existing file unless force is set. The file may later
// hold API keys, so it is created 0600.
func WriteSampleConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateSampleConfig()), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
