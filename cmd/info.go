package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/iksnae/session-bridge/internal"
	"github.com/iksnae/session-bridge/internal/provider"
)

var infoYAML bool

var (
	// Styles for info output
	infoHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Padding(0, 1)

	infoLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	infoValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))
)

var infoCmd = &cobra.Command{
	Use:   "info <session-id>",
	Short: "Show details of a session",
	Long: `Locate a session and display its canonical form: provider, workspace,
time range, message roles, and validation findings. Use --source to
disambiguate ids that exist under more than one provider.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var hint *provider.SourceHint
		if sourceFlag != "" {
			parsed := provider.ParseSourceHint(sourceFlag)
			hint = &parsed
		}

		resolved, err := registry.ResolveSession(args[0], hint)
		if err != nil {
			return err
		}
		session, err := resolved.Provider.ReadSession(resolved.Path)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(session)
		}
		if infoYAML {
			out, err := yaml.Marshal(session)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		}

		displaySessionInfo(session)
		return nil
	},
}

func displaySessionInfo(session *internal.Session) {
	title := session.Title
	if title == "" {
		title = "Untitled"
	}
	fmt.Println(infoHeaderStyle.Render("📄 " + title))
	fmt.Println()

	row := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Printf("  %s %s\n", infoLabelStyle.Render(label+":"), infoValueStyle.Render(value))
	}

	row("Session", session.SessionID)
	row("Provider", session.ProviderSlug)
	row("Path", session.SourcePath)
	row("Workspace", session.Workspace)
	row("Model", session.ModelName)
	row("Started", internal.FormatTimestamp(session.StartedAt))
	row("Ended", internal.FormatTimestamp(session.EndedAt))
	row("Messages", fmt.Sprintf("%d (%s)", len(session.Messages), roleBreakdown(session)))

	report := internal.ValidateSession(session)
	if len(report.Findings) > 0 {
		fmt.Println()
		for _, finding := range report.Findings {
			prefix := "ℹ"
			style := infoLabelStyle
			switch finding.Severity {
			case internal.SeverityError:
				prefix, style = "✗", lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
			case internal.SeverityWarning:
				prefix, style = "⚠", warningStyle
			}
			fmt.Println(style.Render(fmt.Sprintf("  %s %s: %s", prefix, finding.Code, finding.Message)))
		}
	}
}

// roleBreakdown summarizes message counts per role, e.g. "3 user, 3 assistant".
func roleBreakdown(session *internal.Session) string {
	counts := make(map[string]int)
	var order []string
	for _, msg := range session.Messages {
		key := msg.Role.String()
		if counts[key] == 0 {
			order = append(order, key)
		}
		counts[key]++
	}
	parts := make([]string, 0, len(order))
	for _, key := range order {
		parts = append(parts, fmt.Sprintf("%d %s", counts[key], key))
	}
	return strings.Join(parts, ", ")
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().BoolVar(&infoYAML, "yaml", false, "Output the canonical session as YAML")
}
