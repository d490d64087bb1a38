package scanner

import (
	"bufio"
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/runner"
)

// secretPattern pairs a pattern kind with the expression used both for the
// text search and for re-classifying each matched line.
type secretPattern struct {
	kind models.SecretPattern
	expr string
}

// secretPatterns is ordered most specific first; classification takes the
// first pattern that matches a line. Expressions use the syntax shared by
// POSIX extended regexps and RE2.
var secretPatterns = []secretPattern{
	{models.PatternPrivateKey, `-----BEGIN ([A-Z]+ )?PRIVATE KEY-----`},
	{models.PatternAWSKey, `AKIA[0-9A-Z]{16}`},
	{models.PatternBearerToken, `bearer[[:space:]]+[A-Za-z0-9_.=-]{20,}`},
	{models.PatternAPIKey, `api[_-]?key["']?[[:space:]]*[:=][[:space:]]*["'][A-Za-z0-9_-]{16,}["']`},
	{models.PatternPassword, `passw(or)?d["']?[[:space:]]*[:=][[:space:]]*["'][^"']{4,}["']`},
	{models.PatternSecretToken, `(secret|token)["']?[[:space:]]*[:=][[:space:]]*["'][A-Za-z0-9_-]{16,}["']`},
}

var compiledSecretPatterns = compileSecretPatterns()

func compileSecretPatterns() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(secretPatterns))
	for i, p := range secretPatterns {
		out[i] = regexp.MustCompile(`(?i)` + p.expr)
	}
	return out
}

// Default search scope for the secret probe.
var (
	DefaultSecretsCommand  = []string{"grep"}
	DefaultSecretsInclude  = []string{"*.ts", "*.tsx", "*.js", "*.jsx", "*.mjs", "*.cjs", "*.json", "*.env"}
	DefaultSecretsExcludes = []string{"node_modules", "dist", "build", "coverage", ".git", "fixtures", "__fixtures__", "testdata"}
)

// SecretsOptions configures the secret-leak probe.
type SecretsOptions struct {
	Command     []string
	Dir         string
	Include     []string
	ExcludeDirs []string
	Timeout     time.Duration
}

// SecretsProbe runs a multi-pattern text search across source files.
type SecretsProbe struct {
	commandProbe
}

// NewSecretsProbe creates the probe. The search expression list is passed as
// separate -e arguments, never interpolated into a shell string.
func NewSecretsProbe(r *runner.Runner, opts SecretsOptions) *SecretsProbe {
	command := opts.Command
	if len(command) == 0 {
		command = DefaultSecretsCommand
	}
	include := opts.Include
	if len(include) == 0 {
		include = DefaultSecretsInclude
	}
	excludes := opts.ExcludeDirs
	if len(excludes) == 0 {
		excludes = DefaultSecretsExcludes
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultSecretsTimeout
	}

	args := append([]string(nil), command[1:]...)
	args = append(args, "-rnIE", "-i")
	for _, glob := range include {
		args = append(args, "--include="+glob)
	}
	for _, dir := range excludes {
		args = append(args, "--exclude-dir="+dir)
	}
	for _, p := range secretPatterns {
		args = append(args, "-e", p.expr)
	}
	args = append(args, ".")

	return &SecretsProbe{commandProbe{
		runner: r,
		cmd: runner.Command{
			Name:    command[0],
			Args:    args,
			Dir:     opts.Dir,
			Timeout: timeout,
		},
	}}
}

// Name implements Probe.
func (p *SecretsProbe) Name() ProbeName { return ProbeSecrets }

// Run implements Probe. The search tool exits 1 when nothing matched, which
// is a clean result; higher exit codes are tool errors.
func (p *SecretsProbe) Run(ctx context.Context) ProbeResult {
	start := time.Now()

	res, err := p.exec(ctx)
	if err != nil {
		return failed(ProbeSecrets, time.Since(start), err)
	}
	if res.ExitCode > 1 {
		return failed(ProbeSecrets, time.Since(start), res.Err)
	}

	return ProbeResult{
		Probe:      ProbeSecrets,
		Advisories: []models.DependencyAdvisory{},
		Secrets:    ParseSecretMatches(res.Stdout),
		Static:     []models.StaticCheckFinding{},
		Duration:   time.Since(start),
	}
}

// ParseSecretMatches turns path:line:text output into findings. Lines that
// do not have that shape, or that no pattern re-classifies, are dropped.
func ParseSecretMatches(data []byte) []models.SecretLeak {
	leaks := []models.SecretLeak{}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		parts := strings.SplitN(sc.Text(), ":", 3)
		if len(parts) != 3 {
			continue
		}
		line, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		kind, ok := ClassifySecret(parts[2])
		if !ok {
			continue
		}
		leaks = append(leaks, models.SecretLeak{
			File:        strings.TrimPrefix(parts[0], "./"),
			Line:        line,
			PatternKind: kind,
			Snippet:     models.TruncateSnippet(strings.TrimSpace(parts[2])),
		})
	}

	return leaks
}

// ClassifySecret returns the first pattern kind that matches text.
func ClassifySecret(text string) (models.SecretPattern, bool) {
	for i, re := range compiledSecretPatterns {
		if re.MatchString(text) {
			return secretPatterns[i].kind, true
		}
	}
	return "", false
}
