package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iksnae/session-bridge/internal"
	"github.com/iksnae/session-bridge/internal/pipeline"
	"github.com/iksnae/session-bridge/internal/provider"
)

var (
	dryRun     bool
	force      bool
	jsonOutput bool
	verbose    bool
	trace      bool
	enrich     bool
	sourceFlag string

	version string = "dev"
	commit  string = "unknown"
	date    string = "unknown"

	cfg      *internal.Config
	registry *provider.Registry
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "session-bridge",
	Short: "Move coding-agent sessions between tools",
	Long: `Convert a coding-agent session from one tool's on-disk format to
another's, so the conversation can be resumed where it left off.

Supported providers: Claude Code, Codex, Gemini CLI, Vibe, Cursor Agent,
Factory.

Quick Start:
  session-bridge list                      # List sessions across all providers
  session-bridge resume codex <id>         # Convert a session for Codex
  session-bridge resume cc <id> --dry-run  # Preview without writing
  session-bridge info <id>                 # Inspect a session

Session discovery scans every installed provider. When the same id exists
under more than one provider, pass --source <alias> (or a direct file
path) to disambiguate.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loaded, err := internal.LoadConfig()
		if err != nil {
			internal.LogWarn("failed to load environment config: %v", err)
			loaded = &internal.Config{Homes: map[string]string{}}
		}
		cfg = loaded
		internal.SetLogLevel(cfg.LogLevel)
		if verbose || trace {
			internal.SetVerbosity(verbose, trace)
		}
		registry = provider.NewRegistry(cfg)
	},
}

// Execute runs the CLI. Failures exit non-zero; in --json mode the error
// is rendered as a structured payload with a stable error_type.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if jsonOutput {
			payload, _ := json.Marshal(pipeline.NewErrorReport(err))
			fmt.Println(string(payload))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Validate and report without writing any files")
	rootCmd.PersistentFlags().BoolVar(&force, "force", false, "Overwrite an existing target session (the old file is kept as a .bak backup)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "Enable per-record trace logging")
	rootCmd.PersistentFlags().StringVar(&sourceFlag, "source", "", "Source provider alias or direct session file path")
	rootCmd.PersistentFlags().BoolVar(&enrich, "enrich", false, "Prepend an orientation message describing the conversion to the written session")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// printJSON renders any payload as indented JSON on stdout.
func printJSON(payload any) error {
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
