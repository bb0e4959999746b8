package output

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette. Never use inline lipgloss.Color literals elsewhere.
var (
	// ColorCyan is used for identifiable nouns: image tags, queue kinds.
	ColorCyan = lipgloss.Color("14")

	// ColorGreen is used for successful outcomes.
	ColorGreen = lipgloss.Color("82")

	// ColorYellow is used for pending work and partial success.
	ColorYellow = lipgloss.Color("220")

	// ColorBoldRed is used for failures.
	ColorBoldRed = lipgloss.Color("204")

	// ColorGreenCheck is used for the completion checkmark.
	ColorGreenCheck = lipgloss.Color("10")

	// ColorDimGray is used for borders and other structural chrome.
	ColorDimGray = lipgloss.Color("240")

	// ColorBlue is used for table headers.
	ColorBlue = lipgloss.Color("12")
)

// Semantic styles.
var (
	// StyleNoun styles identifiable nouns.
	StyleNoun = lipgloss.NewStyle().Foreground(ColorCyan)

	// StyleDim styles structural chrome such as log prefixes.
	StyleDim = lipgloss.NewStyle().Faint(true)

	// StyleSummary styles completion and summary lines.
	StyleSummary = lipgloss.NewStyle().Bold(true)
)

// Outcome names shared by the build and test commands.
const (
	StatusPublished  = "published"
	StatusPushFailed = "push failed"
	StatusPassed     = "passed"
	StatusFailed     = "failed"
	StatusIdle       = "nothing to do"
	StatusPending    = "pending"
)

// StatusStyle returns the style for an outcome name.
// Unknown statuses return an unstyled default.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case StatusPublished, StatusPassed:
		return lipgloss.NewStyle().Foreground(ColorGreen)
	case StatusPushFailed, StatusPending:
		return lipgloss.NewStyle().Foreground(ColorYellow)
	case StatusFailed:
		return lipgloss.NewStyle().Bold(true).Foreground(ColorBoldRed)
	case StatusIdle:
		return lipgloss.NewStyle().Faint(true)
	default:
		return lipgloss.NewStyle()
	}
}

// FormatOutcome renders "<noun>  <status>" with the status colored.
func FormatOutcome(noun, status string) string {
	return StyleNoun.Render(noun) + "  " + StatusStyle(status).Render(status)
}

// FormatCheckmark renders a green checkmark with a message.
func FormatCheckmark(msg string) string {
	check := lipgloss.NewStyle().Foreground(ColorGreenCheck).Render("✔")
	return check + " " + msg
}
