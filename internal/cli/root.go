package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/ppiankov/supaspectre/internal/config"
	"github.com/ppiankov/supaspectre/internal/logging"
	"github.com/ppiankov/supaspectre/internal/models"
)

const (
	ExitOK           = 0 // Success
	ExitPolicyFail   = 1 // Risk reached fail_threshold or a policy rule failed
	ExitInvalidInput = 2 // Bad flags, missing consent, unknown report
	ExitRuntimeError = 3 // I/O, network, or runtime error
)

var (
	// Global config instance
	cfg *config.Config

	// Global logger, built from config in PersistentPreRunE
	logger    = logr.Discard()
	flushLogs = func() error { return nil }

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	version = "dev"
)

// SetVersion sets the version printed by `version` and embedded in exports
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "supaspectre",
	Short: "SupaSpectre - Supabase credential exposure and RLS risk reports",
	Long: `SupaSpectre finds Supabase credentials exposed by a web application and
reports which tables those credentials can read.

It provides:
- Detection of Supabase keys and generic secrets in static assets
- Row-level security probing of every table the REST surface exposes
- Risk-scored reports with prioritized recommendations and trends
- A local bridge for the browser extension
- CI/CD integration with exit codes

Quick start:
  supaspectre consent --accept
  supaspectre report --project <ref> --key <anon key>
  supaspectre reports list

Other commands:
  supaspectre serve
  supaspectre scan ./dist --source-url https://app.example.com/
  supaspectre view <report id>`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return &ValidationError{Message: fmt.Sprintf("failed to load config: %v", err)}
		}

		if verbose {
			cfg.Verbose = true
		}
		if debug {
			cfg.Debug = true
		}

		logger, flushLogs = logging.New("supaspectre", logging.WithFormat(cfg.LogFormat, cmd.ErrOrStderr(),
			logging.WithLevel(logging.VerbosityLevel(cfg.Verbose, cfg.Debug)),
			logging.WithRedactor(redactor),
		))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		_ = flushLogs()
		return nil
	},
}

// redactor scrubs credentials passed on the command line from log output
var redactor = logging.NewRedactor()

// Execute runs the root command and returns the process exit code
func Execute() int {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return HandleError(err)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default: ./supaspectre.yaml or ~/supaspectre.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"debug mode (very verbose)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(consentCmd)
	rootCmd.AddCommand(initConfigCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "SupaSpectre %s\n", version)
		fmt.Fprintln(cmd.OutOrStdout(), "Supabase credential exposure and RLS risk reports")
	},
}

// initConfigCmd prints a sample config file
var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Print a sample supaspectre.yaml",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), config.GenerateSampleConfig())
	},
}

// HandleError determines the appropriate exit code for an error
func HandleError(err error) int {
	if err == nil {
		return ExitOK
	}

	var validation *ValidationError
	var threshold *ThresholdExceededError
	var policy *PolicyViolationError
	switch {
	case errors.As(err, &validation):
		return ExitInvalidInput
	case errors.As(err, &threshold), errors.As(err, &policy):
		return ExitPolicyFail
	default:
		return ExitRuntimeError
	}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ThresholdExceededError represents a fail_threshold breach
type ThresholdExceededError struct {
	Risk      models.RiskLevel
	Threshold string
}

func (e *ThresholdExceededError) Error() string {
	return fmt.Sprintf("report risk %s reaches fail threshold %s", e.Risk, e.Threshold)
}

// PolicyViolationError represents failed policy rules
type PolicyViolationError struct {
	Violations int
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy check failed with %d violation(s)", e.Violations)
}
