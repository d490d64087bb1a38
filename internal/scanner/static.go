package scanner

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/runner"
)

// DefaultStaticCommand runs the type checker without emitting files.
var DefaultStaticCommand = []string{"npx", "tsc", "--noEmit"}

// diagnosticLine matches "file(line,col): error CODE: message".
var diagnosticLine = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\): error ([A-Za-z]*\d+|[A-Za-z][\w-]*): (.*)$`)

// StaticProbe runs the static type/lint checker in check-only mode.
type StaticProbe struct {
	commandProbe
}

// NewStaticProbe creates the probe for the given command.
func NewStaticProbe(r *runner.Runner, cmd runner.Command) *StaticProbe {
	if cmd.Timeout <= 0 {
		cmd.Timeout = DefaultStaticTimeout
	}
	return &StaticProbe{commandProbe{runner: r, cmd: cmd}}
}

// Name implements Probe.
func (p *StaticProbe) Name() ProbeName { return ProbeStatic }

// Run implements Probe. The checker exits non-zero when it reports
// diagnostics; the diagnostics are the result. A non-zero exit without any
// diagnostic means the checker itself broke and is a probe failure.
func (p *StaticProbe) Run(ctx context.Context) ProbeResult {
	start := time.Now()

	res, err := p.exec(ctx)
	if err != nil {
		return failed(ProbeStatic, time.Since(start), err)
	}

	findings := ParseDiagnostics([]byte(res.Output()))
	if res.ExitCode != 0 && len(findings) == 0 {
		return failed(ProbeStatic, time.Since(start),
			fmt.Errorf("%s exited %d without diagnostics: %s", p.cmd.Name, res.ExitCode, firstLine(res.Output())))
	}

	return ProbeResult{
		Probe:      ProbeStatic,
		Advisories: []models.DependencyAdvisory{},
		Secrets:    []models.SecretLeak{},
		Static:     findings,
		Duration:   time.Since(start),
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return models.TruncateSnippet(s)
}

// ParseDiagnostics keeps only lines in diagnostic form and ignores the rest.
func ParseDiagnostics(data []byte) []models.StaticCheckFinding {
	findings := []models.StaticCheckFinding{}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		m := diagnosticLine.FindStringSubmatch(strings.TrimRight(sc.Text(), "\r"))
		if m == nil {
			continue
		}
		line, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		findings = append(findings, models.StaticCheckFinding{
			File:    strings.TrimSpace(m[1]),
			Line:    line,
			Code:    m[4],
			Message: strings.TrimSpace(m[5]),
		})
	}

	return findings
}
