package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/iksnae/session-bridge/internal/provider"
)

var (
	listProvider  string
	listWorkspace string
	listLimit     int
	listSort      string
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	providerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Italic(true)
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List discoverable sessions across providers",
	Long: `Scan every installed provider's session directory and list what can
be converted, most recent first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listProvider != "" {
			p, err := registry.ByAlias(listProvider)
			if err != nil {
				return err
			}
			listProvider = p.Slug()
		}

		summaries, err := registry.ListSessions(listProvider)
		if err != nil {
			return err
		}
		summaries, err = filterAndSort(summaries)
		if err != nil {
			return err
		}

		if jsonOutput {
			if summaries == nil {
				summaries = []provider.SessionSummary{}
			}
			return printJSON(summaries)
		}

		displaySessions(summaries)
		return nil
	},
}

// filterAndSort applies the --workspace, --sort, and --limit flags.
// ListSessions already returns newest-first, so "updated" is a no-op.
func filterAndSort(summaries []provider.SessionSummary) ([]provider.SessionSummary, error) {
	if listWorkspace != "" {
		kept := summaries[:0]
		for _, summary := range summaries {
			if strings.Contains(summary.Workspace, listWorkspace) {
				kept = append(kept, summary)
			}
		}
		summaries = kept
	}

	switch listSort {
	case "", "updated":
	case "messages":
		sort.SliceStable(summaries, func(i, j int) bool {
			return summaries[i].MessageCount > summaries[j].MessageCount
		})
	case "id":
		sort.SliceStable(summaries, func(i, j int) bool {
			return summaries[i].SessionID < summaries[j].SessionID
		})
	default:
		return nil, fmt.Errorf("unknown sort key %q (expected updated, messages, or id)", listSort)
	}

	if listLimit > 0 && len(summaries) > listLimit {
		summaries = summaries[:listLimit]
	}
	return summaries, nil
}

func displaySessions(summaries []provider.SessionSummary) {
	if len(summaries) == 0 {
		fmt.Println(headerStyle.Render("📋 No sessions found"))
		return
	}

	header := headerStyle.Render(fmt.Sprintf("📋 Found %d session(s)", len(summaries)))
	fmt.Println(header)
	fmt.Println()

	// Use tabwriter for aligned columns with better spacing
	w := tabwriter.NewWriter(lipgloss.DefaultRenderer().Output(), 0, 0, 3, ' ', tabwriter.AlignRight)

	_, _ = fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Provider")+"\t"+titleStyle.Render("Title")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Updated")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 100))

	for _, summary := range summaries {
		title := summary.Title
		if title == "" {
			title = "Untitled"
		}
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		title = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Render(title)

		// Show short ID (first 8 chars) for readability
		shortID := summary.SessionID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
			idStyle.Render(shortID),
			providerStyle.Render(summary.Provider),
			title,
			countStyle.Render(strconv.Itoa(summary.MessageCount)),
			dateStyle.Render(relativeDate(summary.UpdatedAt)))
	}

	_ = w.Flush()
	fmt.Println()
	fmt.Println(idStyle.Render("💡 Tip: Use the full ID with `session-bridge resume <target> <id>`"))
}

// relativeDate renders an epoch-millisecond timestamp compactly, with
// finer granularity for recent activity.
func relativeDate(millis int64) string {
	if millis == 0 {
		return "—"
	}
	t := time.UnixMilli(millis)
	diff := time.Since(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listProvider, "provider", "p", "", "Only list sessions from this provider (alias or slug)")
	listCmd.Flags().StringVar(&listWorkspace, "workspace", "", "Only list sessions whose workspace contains this path fragment")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Show at most this many sessions (0 = all)")
	listCmd.Flags().StringVar(&listSort, "sort", "updated", "Sort order: updated, messages, or id")
}
