// Package ui holds the terminal styles shared by the CLI commands.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	// Header styles section titles in list and status output.
	Header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

	// Good marks healthy states (online, synced).
	Good = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	// Warn marks transitional states (pending, syncing).
	Warn = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	// Bad marks failures (offline, failed records, sync errors).
	Bad = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	// Muted styles secondary detail (identifiers, timestamps).
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// SyncStateStyle picks the style for a record sync state string.
func SyncStateStyle(state string) lipgloss.Style {
	switch state {
	case "synced":
		return Good
	case "failed":
		return Bad
	default:
		return Warn
	}
}

// RenderPass renders s in the healthy style.
func RenderPass(s string) string { return Good.Render(s) }

// RenderWarn renders s in the transitional style.
func RenderWarn(s string) string { return Warn.Render(s) }

// RenderErr renders s in the failure style.
func RenderErr(s string) string { return Bad.Render(s) }

// RenderAccent renders s in the header style.
func RenderAccent(s string) string { return Header.Render(s) }

// RenderMuted renders s in the secondary style.
func RenderMuted(s string) string { return Muted.Render(s) }
