package discovery

// Tool names used by the pipeline.
const (
	ToolGit   = "git"
	ToolNpm   = "npm"
	ToolNpx   = "npx"
	ToolGrep  = "grep"
	ToolAgent = "agent"
)

// ToolInfo describes an external tool the patrol pipeline shells out to.
type ToolInfo struct {
	Binary       string   // default executable name (looked up in PATH)
	Purpose      string   // which stage needs it
	EnvVars      []string // env vars that configure the tool; informational
	ProjectFiles []string // files in the working tree the tool needs; any one suffices
}

// Registry is the single source of truth for the tools a patrol run needs.
// Every entry is required for a full run.
var Registry = map[string]ToolInfo{
	ToolGit: {
		Binary:       "git",
		Purpose:      "safety net, rollback and diff capture",
		ProjectFiles: []string{".git"},
	},
	ToolNpm: {
		Binary:       "npm",
		Purpose:      "dependency audit, build and test verification",
		ProjectFiles: []string{"package.json"},
	},
	ToolNpx: {
		Binary:       "npx",
		Purpose:      "static type check",
		ProjectFiles: []string{"tsconfig.json", "jsconfig.json"},
	},
	ToolGrep: {
		Binary:  "grep",
		Purpose: "secret-leak scan",
	},
	ToolAgent: {
		Binary:  "claude",
		Purpose: "automated remediation",
		EnvVars: []string{"ANTHROPIC_API_KEY"},
	},
}
