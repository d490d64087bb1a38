package cli

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/codepatrol/internal/config"
	"github.com/ppiankov/codepatrol/internal/discovery"
)

var discoverFormat string

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Detect the tools and project files a patrol run needs",
	Long: `Discover checks which external tools are installed (in PATH) and which
project files exist in the working tree, and reports what can run.

This is a read-only operation: no tools are executed and no network calls
are made. Configured command overrides are honored.`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().StringVar(&discoverFormat, "format", "text",
		"output format: text or json")
}

// discoveryOptions maps configured commands onto the registry tools.
func discoveryOptions(c *config.Config, dir string) discovery.Options {
	first := func(argv []string) string {
		if len(argv) == 0 {
			return ""
		}
		return argv[0]
	}
	return discovery.Options{
		Workdir: dir,
		Binaries: map[string]string{
			discovery.ToolNpm:   first(c.Probes.Audit.Command),
			discovery.ToolNpx:   first(c.Probes.Static.Command),
			discovery.ToolGrep:  first(c.Probes.Secrets.Command),
			discovery.ToolAgent: first(c.Agent.Command),
		},
	}
}

func discoverPlan() (*discovery.DiscoveryPlan, error) {
	dir, err := cfg.GetWorkdir()
	if err != nil {
		return nil, err
	}
	return discovery.New(exec.LookPath, os.Getenv).Discover(discoveryOptions(cfg, dir)), nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if err := validateFormat(discoverFormat, "text", "json"); err != nil {
		return err
	}
	plan, err := discoverPlan()
	if err != nil {
		return err
	}

	if discoverFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), plan)
	}
	printDiscoveryText(cmd.OutOrStdout(), plan)
	return nil
}

func printDiscoveryText(w io.Writer, plan *discovery.DiscoveryPlan) {
	fmt.Fprintf(w, "Working tree: %s\n", plan.Workdir)
	fmt.Fprintf(w, "Discovered %d/%d tool(s), %d runnable\n\n", plan.TotalFound, len(plan.Tools), plan.TotalRunnable)

	for _, td := range plan.Tools {
		status := "✗ not found"
		if td.Available && td.Runnable {
			status = "✓ ready"
		} else if td.Available {
			status = "○ installed (no project files)"
		}

		fmt.Fprintf(w, "  %-8s %-10s %s\n", td.Tool, td.Binary, status)
		fmt.Fprintf(w, "           used for: %s\n", td.Purpose)

		if td.Available {
			fmt.Fprintf(w, "           path: %s\n", td.BinaryPath)
		}

		if len(td.EnvVars) > 0 {
			var setVars, unsetVars []string
			for _, ev := range td.EnvVars {
				if ev.Set {
					setVars = append(setVars, ev.Name)
				} else {
					unsetVars = append(unsetVars, ev.Name)
				}
			}
			if len(setVars) > 0 {
				fmt.Fprintf(w, "           env:  %s\n", strings.Join(setVars, ", "))
			}
			if len(unsetVars) > 0 {
				fmt.Fprintf(w, "           unset: %s\n", strings.Join(unsetVars, ", "))
			}
		}

		if !td.HasTarget {
			var wanted []string
			for _, f := range td.Files {
				wanted = append(wanted, f.Path)
			}
			fmt.Fprintf(w, "           needs one of: %s\n", strings.Join(wanted, ", "))
		}

		fmt.Fprintln(w)
	}

	if !plan.Ready() {
		fmt.Fprintln(w, "Not every tool is ready; 'codepatrol run' will report empty results for the missing ones.")
	}
}
