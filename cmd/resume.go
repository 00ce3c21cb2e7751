package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/iksnae/session-bridge/internal/pipeline"
)

var (
	// Styles for resume output
	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	commandStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

var resumeCmd = &cobra.Command{
	Use:   "resume <target> <session-id>",
	Short: "Convert a session so another tool can resume it",
	Long: `Convert a session into the target provider's native format and print
the command that resumes it there.

The target is a provider alias or slug (cc, cod, gmi, vib, cur, fac). The
session id is looked up across every installed provider unless --source
narrows the search to one provider or names a session file directly.

A fresh session id is minted in the target's namespace; existing target
files are never overwritten unless --force is given.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := pipeline.New(registry).Convert(args[0], args[1], pipeline.Options{
			DryRun:     dryRun,
			Force:      force,
			Enrich:     enrich,
			Verbose:    verbose || trace,
			SourceHint: sourceFlag,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(result.Report())
		}

		displayConversion(result)
		return nil
	},
}

func displayConversion(result *pipeline.Result) {
	if result.DryRun {
		fmt.Println(successStyle.Render("✓ Dry run: session is convertible"))
	} else {
		fmt.Println(successStyle.Render("✓ Session converted"))
	}
	fmt.Println()

	fmt.Println(detailStyle.Render(fmt.Sprintf("  %s (%s) → %s",
		result.Session.SessionID, result.SourceProvider, result.TargetProvider)))
	fmt.Println(detailStyle.Render(fmt.Sprintf("  %d message(s)", len(result.Session.Messages))))
	if result.Session.Workspace != "" {
		fmt.Println(detailStyle.Render("  workspace: " + result.Session.Workspace))
	}
	if result.Written != nil {
		for _, path := range result.Written.Paths {
			fmt.Println(detailStyle.Render("  wrote: " + path))
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Println()
		for _, warning := range result.Warnings {
			fmt.Println(warningStyle.Render("  ⚠ " + warning))
		}
	}

	fmt.Println()
	if result.DryRun {
		fmt.Println(detailStyle.Render("  No files were written. Run again without --dry-run to convert."))
		return
	}
	fmt.Println("  Resume with: " + commandStyle.Render(result.ResumeCommand))
	if result.Session.Workspace != "" {
		fmt.Println(detailStyle.Render("  (run it from " + result.Session.Workspace + ")"))
	}
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
