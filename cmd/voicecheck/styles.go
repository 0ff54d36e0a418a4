package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/voicecheck/internal/analysis"
)

var (
	primaryColor = lipgloss.Color("#2196F3")
	mutedColor   = lipgloss.Color("#888888")
	errorColor   = lipgloss.Color("#F44336")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	keyStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	valueStyle = lipgloss.NewStyle().Bold(true)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(errorColor)
)

// statusColors are the display colors per status. Statuses without an entry
// use defaultStatusColor.
var statusColors = map[analysis.Label]lipgloss.Color{
	analysis.Good:         "#4CAF50",
	analysis.TooQuiet:     "#FFC107",
	analysis.TooLoud:      "#F44336",
	analysis.Noisy:        "#FF9800",
	analysis.CheckProfile: "#2196F3",
	analysis.Error:        "#F44336",
}

const defaultStatusColor = lipgloss.Color("#212121")

func statusColor(l analysis.Label) lipgloss.Color {
	if c, ok := statusColors[l]; ok {
		return c
	}
	return defaultStatusColor
}

// statusStyle renders a status label with its color using r.
func statusStyle(r *lipgloss.Renderer, l analysis.Label) lipgloss.Style {
	return r.NewStyle().Bold(true).Foreground(statusColor(l))
}

func printError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render("Error:"), message)
}

func printKV(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "  %s %s\n", keyStyle.Render(fmt.Sprintf("%-12s", key+":")), valueStyle.Render(fmt.Sprint(value)))
}

// styledHelp prints a colored title before kong's default help.
func styledHelp(options kong.HelpOptions, ctx *kong.Context) error {
	fmt.Fprintln(ctx.Stdout, titleStyle.Render("voicecheck "+version))
	return kong.DefaultHelpPrinter(options, ctx)
}
