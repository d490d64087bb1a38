package discovery

import (
	"os"
	"path/filepath"
	"sort"
)

// LookPathFunc matches the signature of exec.LookPath.
type LookPathFunc func(file string) (string, error)

// GetenvFunc matches the signature of os.Getenv.
type GetenvFunc func(key string) string

// Discoverer probes the local environment for the tools a patrol run
// shells out to. Injectable deps make it fully testable.
type Discoverer struct {
	lookPath LookPathFunc
	getenv   GetenvFunc
}

// New creates a Discoverer with the given dependency functions.
func New(lookPath LookPathFunc, getenv GetenvFunc) *Discoverer {
	return &Discoverer{
		lookPath: lookPath,
		getenv:   getenv,
	}
}

// Options selects the working tree and overrides default binaries by tool name.
type Options struct {
	Workdir  string
	Binaries map[string]string
}

// ToolDiscovery describes what was found for a single tool.
type ToolDiscovery struct {
	Tool       string         `json:"tool"`
	Purpose    string         `json:"purpose"`
	Binary     string         `json:"binary"`
	BinaryPath string         `json:"binary_path"`
	Available  bool           `json:"available"`
	EnvVars    []EnvVarStatus `json:"env_vars,omitempty"`
	Files      []FileStatus   `json:"files,omitempty"`
	HasTarget  bool           `json:"has_target"`
	Runnable   bool           `json:"runnable"`
}

// EnvVarStatus tracks whether an environment variable is set.
type EnvVarStatus struct {
	Name string `json:"name"`
	Set  bool   `json:"set"`
}

// FileStatus tracks whether a project file exists in the working tree.
type FileStatus struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

// DiscoveryPlan is the complete result of a discovery scan.
type DiscoveryPlan struct {
	Workdir       string          `json:"workdir"`
	Tools         []ToolDiscovery `json:"tools"`
	TotalFound    int             `json:"total_found"`
	TotalRunnable int             `json:"total_runnable"`
}

// Discover checks which tools are installed, which env vars are set, and
// which project files exist. No network calls.
func (d *Discoverer) Discover(opts Options) *DiscoveryPlan {
	plan := &DiscoveryPlan{Workdir: opts.Workdir}

	for name, info := range Registry {
		binary := info.Binary
		if override := opts.Binaries[name]; override != "" {
			binary = override
		}
		td := ToolDiscovery{
			Tool:    name,
			Purpose: info.Purpose,
			Binary:  binary,
		}

		// Check if binary exists in PATH
		if path, err := d.lookPath(binary); err == nil {
			td.Available = true
			td.BinaryPath = path
		}

		for _, envVar := range info.EnvVars {
			td.EnvVars = append(td.EnvVars, EnvVarStatus{
				Name: envVar,
				Set:  d.getenv(envVar) != "",
			})
		}

		// Check project files; tools without any have a target everywhere
		anyFileExists := len(info.ProjectFiles) == 0
		for _, rel := range info.ProjectFiles {
			exists := pathExists(filepath.Join(opts.Workdir, rel))
			td.Files = append(td.Files, FileStatus{Path: rel, Exists: exists})
			if exists {
				anyFileExists = true
			}
		}

		td.HasTarget = anyFileExists
		td.Runnable = td.Available && td.HasTarget

		plan.Tools = append(plan.Tools, td)

		if td.Available {
			plan.TotalFound++
		}
		if td.Runnable {
			plan.TotalRunnable++
		}
	}

	sort.Slice(plan.Tools, func(i, j int) bool {
		return plan.Tools[i].Tool < plan.Tools[j].Tool
	})

	return plan
}

// Ready reports whether every tool is runnable.
func (p *DiscoveryPlan) Ready() bool {
	return p.TotalRunnable == len(p.Tools)
}

// RunnableTools returns only the tools that can be executed.
func (p *DiscoveryPlan) RunnableTools() []ToolDiscovery {
	var runnable []ToolDiscovery
	for _, t := range p.Tools {
		if t.Runnable {
			runnable = append(runnable, t)
		}
	}
	return runnable
}

// Blocked returns the tools that keep a full run from working.
func (p *DiscoveryPlan) Blocked() []ToolDiscovery {
	var blocked []ToolDiscovery
	for _, t := range p.Tools {
		if !t.Runnable {
			blocked = append(blocked, t)
		}
	}
	return blocked
}

// pathExists checks if a file or directory exists.
func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
