package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	installedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	missingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show supported providers and their detection status",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			type providerInfo struct {
				Name      string   `json:"name"`
				Slug      string   `json:"slug"`
				Alias     string   `json:"alias"`
				Installed bool     `json:"installed"`
				Evidence  []string `json:"evidence,omitempty"`
			}
			var out []providerInfo
			for _, p := range registry.Providers() {
				detection := p.Detect()
				out = append(out, providerInfo{
					Name:      p.Name(),
					Slug:      p.Slug(),
					Alias:     p.Alias(),
					Installed: detection.Installed,
					Evidence:  detection.Evidence,
				})
			}
			return printJSON(out)
		}

		fmt.Println(headerStyle.Render("🔌 Supported providers"))
		fmt.Println()
		for _, p := range registry.Providers() {
			detection := p.Detect()
			status := missingStyle.Render("not detected")
			if detection.Installed {
				status = installedStyle.Render("installed")
			}
			fmt.Printf("  %s (%s, alias %s) %s\n",
				titleStyle.Render(p.Name()), p.Slug(), p.Alias(), status)
			for _, evidence := range detection.Evidence {
				fmt.Println(missingStyle.Render("      " + evidence))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
