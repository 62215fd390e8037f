package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette for the lumen CLI
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple - headers, borders
	SuccessColor = lipgloss.Color("#43BF6D") // Green - success, online
	ErrorColor   = lipgloss.Color("#FF5555") // Red - errors, offline
	WarningColor = lipgloss.Color("#FFA500") // Orange - in-progress states
	MutedColor   = lipgloss.Color("#626262") // Gray - secondary info
	TextColor    = lipgloss.Color("#FFFFFF") // White - main content
)

// Layout constants
const (
	MinTerminalWidth = 60
	MaxContentWidth  = 100
)

// Shared styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Bold(true).
			PaddingLeft(2)

	LabelStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			PaddingLeft(2)

	SuccessTitleStyle = lipgloss.NewStyle().
				Foreground(SuccessColor).
				Bold(true)

	ErrorTitleStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	ErrorMessageStyle = lipgloss.NewStyle().
				Foreground(ErrorColor)

	OnlineStyle = lipgloss.NewStyle().
			Foreground(SuccessColor)

	OfflineStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)

	UpdatingStyle = lipgloss.NewStyle().
			Foreground(WarningColor)

	KeyStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Width(15)

	ValueStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	NoteStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	HintStyle = lipgloss.NewStyle().
			Foreground(MutedColor)
)

// Status markers
const (
	SuccessMarker = "✓"
	FailureMarker = "✗"
	OnlineMarker  = "●"
	OfflineMarker = "○"
)

// GetTerminalWidth returns the current terminal width, clamped to the
// supported range.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < MinTerminalWidth {
		return MinTerminalWidth
	}
	if width > MaxContentWidth {
		return MaxContentWidth
	}
	return width
}

// SuccessBoxStyle returns the border style for success result boxes.
func SuccessBoxStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(SuccessColor).
		Width(width - 2).
		Padding(1, 2)
}

// ErrorBoxStyle returns the border style for error result boxes.
func ErrorBoxStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(ErrorColor).
		Width(width - 2).
		Padding(1, 2)
}

// TroubleshootingBoxStyle returns the border style for troubleshooting
// sections nested inside error boxes.
func TroubleshootingBoxStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(width - 8).
		Padding(0, 1)
}

// RenderHorizontalDivider creates a horizontal line of the given width.
func RenderHorizontalDivider(width int, char string) string {
	return lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Render(strings.Repeat(char, width))
}
