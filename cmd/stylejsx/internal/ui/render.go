package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
)

// Style definitions
var (
	// Colors
	primaryColor = lipgloss.Color("#3b82f6")
	successColor = lipgloss.Color("#10b981")
	warningColor = lipgloss.Color("#f59e0b")
	mutedColor   = lipgloss.Color("#94a3b8")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	selectedStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	normalStyle = lipgloss.NewStyle()

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	listStyle = lipgloss.NewStyle().
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	hydratedBadge = warningStyle.Render("[ssr]")
)

func joinColumns(left, right string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

// Highlight renders css with chroma for a 256 colour terminal. On
// failure the css is returned unchanged.
func Highlight(css, theme string) string {
	var sb strings.Builder
	if err := quick.Highlight(&sb, css, "css", "terminal256", theme); err != nil {
		return css
	}
	return sb.String()
}

// Report is the outcome of a benchmark run.
type Report struct {
	Backend    string
	Operations int
	Elapsed    time.Duration
	Containers int
	Indices    int
	Live       int
}

// OpsPerSecond is the throughput of the run.
func (r Report) OpsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Operations) / r.Elapsed.Seconds()
}

// RenderReports renders benchmark results as a bordered table.
func RenderReports(reports []Report) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("stylejsx bench"))
	sb.WriteString("\n\n")
	sb.WriteString(mutedStyle.Render(fmt.Sprintf("%-8s %10s %12s %10s %10s %6s",
		"backend", "ops", "ops/s", "containers", "indices", "live")))
	sb.WriteString("\n")
	for _, r := range reports {
		sb.WriteString(fmt.Sprintf("%-8s %10d ", r.Backend, r.Operations))
		sb.WriteString(successStyle.Render(fmt.Sprintf("%12.0f", r.OpsPerSecond())))
		sb.WriteString(fmt.Sprintf(" %10d %10d %6d\n", r.Containers, r.Indices, r.Live))
	}
	return boxStyle.Render(strings.TrimRight(sb.String(), "\n"))
}
