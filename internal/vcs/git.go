// Package vcs wraps the git operations the patrol pipeline needs.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/runner"
)

// DefaultTimeout bounds a single git invocation.
const DefaultTimeout = 30 * time.Second

// ErrSnapshotNotFound is returned when no stash entry carries the label.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// StashEntry is one line of `git stash list`.
type StashEntry struct {
	Index   int
	Ref     string
	Message string
}

var stashLine = regexp.MustCompile(`^(stash@\{(\d+)\}): .*?: (.*)$`)

// Git runs git in one working tree.
type Git struct {
	runner  *runner.Runner
	dir     string
	timeout time.Duration
}

// NewGit creates a client for the working tree at dir.
func NewGit(r *runner.Runner, dir string, timeout time.Duration) *Git {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Git{runner: r, dir: dir, timeout: timeout}
}

// Dir returns the working tree path.
func (g *Git) Dir() string { return g.dir }

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	res := g.runner.Run(ctx, runner.Command{Name: "git", Args: args, Dir: g.dir, Timeout: g.timeout})
	if res.TimedOut {
		return "", fmt.Errorf("git %s: timeout after %v", args[0], g.timeout)
	}
	if res.Err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], res.Err, strings.TrimSpace(string(res.Stderr)))
	}
	return strings.TrimRight(string(res.Stdout), "\n"), nil
}

// IsRepository reports whether dir is inside a git work tree.
func (g *Git) IsRepository(ctx context.Context) bool {
	_, err := g.run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// GitDir returns the absolute git directory of the working tree. Linked
// worktrees get their own directory.
func (g *Git) GitDir(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "--absolute-git-dir")
}

// HasUncommitted reports whether the tree has modified, staged or untracked files.
func (g *Git) HasUncommitted(ctx context.Context) (bool, error) {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// SnapshotUncommitted moves all uncommitted changes, untracked files
// included, into a stash entry labelled with label. It returns false
// without touching anything when the tree is already clean.
func (g *Git) SnapshotUncommitted(ctx context.Context, label string) (bool, error) {
	dirty, err := g.HasUncommitted(ctx)
	if err != nil {
		return false, fmt.Errorf("checking working tree: %w", err)
	}
	if !dirty {
		return false, nil
	}

	if _, err := g.run(ctx, "stash", "push", "-u", "-m", label); err != nil {
		return false, fmt.Errorf("stashing changes: %w", err)
	}

	// Report true only when the entry actually exists.
	if _, err := g.findStash(ctx, label); err != nil {
		return false, fmt.Errorf("verifying stash: %w", err)
	}
	return true, nil
}

// RestoreSnapshot re-applies and drops the stash entry labelled label.
// The entry is looked up by message, never assumed to be stash@{0}.
func (g *Git) RestoreSnapshot(ctx context.Context, label string) error {
	entry, err := g.findStash(ctx, label)
	if err != nil {
		return err
	}
	if _, err := g.run(ctx, "stash", "pop", "--index", entry.Ref); err != nil {
		// --index fails when the staged state cannot be rebuilt; the
		// content is still recoverable without it.
		if _, retryErr := g.run(ctx, "stash", "pop", entry.Ref); retryErr != nil {
			return fmt.Errorf("restoring stash %s: %w", entry.Ref, retryErr)
		}
	}
	return nil
}

// ResetToCommitted discards every uncommitted change, untracked files included.
func (g *Git) ResetToCommitted(ctx context.Context) error {
	if _, err := g.run(ctx, "reset", "--hard", "HEAD"); err != nil {
		return fmt.Errorf("resetting to HEAD: %w", err)
	}
	if _, err := g.run(ctx, "clean", "-fd"); err != nil {
		return fmt.Errorf("cleaning untracked files: %w", err)
	}
	return nil
}

// StashList returns the current stash entries.
func (g *Git) StashList(ctx context.Context) ([]StashEntry, error) {
	out, err := g.run(ctx, "stash", "list")
	if err != nil {
		return nil, fmt.Errorf("listing stashes: %w", err)
	}
	return parseStashList(out), nil
}

func parseStashList(out string) []StashEntry {
	var entries []StashEntry
	for _, line := range strings.Split(out, "\n") {
		m := stashLine.FindStringSubmatch(line)
		if len(m) != 4 {
			continue
		}
		idx, _ := strconv.Atoi(m[2])
		entries = append(entries, StashEntry{Index: idx, Ref: m[1], Message: m[3]})
	}
	return entries
}

func (g *Git) findStash(ctx context.Context, label string) (StashEntry, error) {
	entries, err := g.StashList(ctx)
	if err != nil {
		return StashEntry{}, err
	}
	for _, e := range entries {
		if e.Message == label {
			return e, nil
		}
	}
	return StashEntry{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, label)
}

// Diff returns the unified diff of the working tree against HEAD.
func (g *Git) Diff(ctx context.Context) (string, error) {
	return g.run(ctx, "diff", "HEAD")
}

// DiffStat returns per-file line counts of the working tree against HEAD.
// Untracked files count every line as an addition.
func (g *Git) DiffStat(ctx context.Context) ([]models.FileDiff, error) {
	text, err := g.Diff(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := ParseDiffStat(text)
	if err != nil {
		return nil, err
	}

	untracked, err := g.run(ctx, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("listing untracked files: %w", err)
	}
	for _, file := range strings.Split(untracked, "\n") {
		file = strings.TrimSpace(file)
		if file == "" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(g.dir, file))
		if err != nil {
			continue
		}
		stats = append(stats, models.FileDiff{File: file, Additions: countLines(data)})
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].File < stats[j].File })
	return stats, nil
}

// ParseDiffStat counts added and removed lines per file in a unified diff.
// The result is never nil.
func ParseDiffStat(text string) ([]models.FileDiff, error) {
	out := []models.FileDiff{}
	if strings.TrimSpace(text) == "" {
		return out, nil
	}

	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(text)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	for _, fd := range fileDiffs {
		name := fd.NewName
		if name == "" || name == "/dev/null" {
			name = fd.OrigName
		}
		stat := models.FileDiff{File: stripPrefix(name)}
		// Hunk bodies hold no file headers, so "+++" and "---" are content.
		for _, hunk := range fd.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				switch {
				case strings.HasPrefix(line, "+"):
					stat.Additions++
				case strings.HasPrefix(line, "-"):
					stat.Deletions++
				}
			}
		}
		out = append(out, stat)
	}

	return out, nil
}

func stripPrefix(name string) string {
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte("\n"))
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}
