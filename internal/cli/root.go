package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/codepatrol/internal/config"
	"github.com/ppiankov/codepatrol/internal/logging"
)

const (
	ExitOK           = 0 // Success
	ExitPolicyFail   = 1 // Policy violated
	ExitInvalidInput = 2 // Invalid flags, config or report file
	ExitRuntimeError = 3 // I/O, permissions, or runtime error
)

var (
	// Global config instance
	cfg *config.Config

	// Logger configured from cfg in PersistentPreRunE
	logger = logging.Nop()

	version = "dev"

	// Global flags
	configFile string
	workdir    string
	verbose    bool
	debug      bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "codepatrol",
	Short: "codepatrol - automated code-health patrol with guarded remediation",
	Long: `codepatrol scans a working tree for vulnerable dependencies, leaked
secrets and type-check errors, asks a coding agent to fix what it found,
and keeps the edits only when the build and tests still pass.

Pre-existing uncommitted work is stashed before the agent runs and restored
afterwards, whatever the outcome.

Quick start:
  codepatrol init
  codepatrol doctor
  codepatrol scan
  codepatrol run

Other commands:
  codepatrol status --interactive
  codepatrol history --last 7
  codepatrol diff
  codepatrol export --format sarif
  codepatrol serve --interval 24h`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return &ValidationError{Message: fmt.Sprintf("failed to load config: %v", err)}
		}

		if workdir != "" {
			cfg.Workdir = workdir
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		if debug {
			cfg.LogLevel = "trace"
		}

		if err := cfg.Validate(); err != nil {
			return &ValidationError{Message: err.Error()}
		}

		logger = logging.Init(logging.Config{
			Format: cfg.LogFormat,
			Level:  cfg.LogLevel,
		})
		return nil
	},
}

// SetVersion records the build version shown by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command and exits with the mapped exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var pe *ThresholdExceededError
		if !errors.As(err, &pe) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(HandleError(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default: ./codepatrol.yaml or ~/.codepatrol.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workdir, "workdir", "C", "",
		"working tree to patrol (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output (debug logs)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"trace logs")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "codepatrol %s\n", version)
	},
}

// HandleError determines the appropriate exit code for an error
func HandleError(err error) int {
	if err == nil {
		return ExitOK
	}

	var ve *ValidationError
	var te *ThresholdExceededError
	switch {
	case errors.As(err, &ve):
		return ExitInvalidInput
	case errors.As(err, &te):
		return ExitPolicyFail
	default:
		return ExitRuntimeError
	}
}

// ValidationError represents invalid user input
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ThresholdExceededError represents a policy failure
type ThresholdExceededError struct {
	Violations int
}

func (e *ThresholdExceededError) Error() string {
	return fmt.Sprintf("policy failed with %d violation(s)", e.Violations)
}
