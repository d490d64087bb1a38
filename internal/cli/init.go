package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/codepatrol/internal/config"
)

var (
	initPath  string
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Init writes a commented sample configuration. Edit the probe, verify and
agent commands to match the project, then run 'codepatrol doctor'.

Example:
  codepatrol init
  codepatrol init --path ./codepatrol.yaml --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initPath, "path", "",
		"where to write the config (default: user config location)")
	initCmd.Flags().BoolVar(&initForce, "force", false,
		"overwrite an existing file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := initPath
	if path == "" {
		path = config.ConfigPath()
	}
	if err := config.WriteSampleConfig(path, initForce); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
